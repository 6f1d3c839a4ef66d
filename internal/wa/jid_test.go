package wa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kedaiservis/repair-service/internal/errs"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0123456789", "+60123456789"},
		{"60123456789", "+60123456789"},
		{"+60123456789", "+60123456789"},
		{"+60 12-345 6789", "+60123456789"},
		{"(012) 345-6789", "+60123456789"},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in, "60")
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestNormalizePhoneIsIdempotent(t *testing.T) {
	once, err := NormalizePhone("0123456789", "60")
	require.NoError(t, err)
	twice, err := NormalizePhone(once, "60")
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestNormalizePhoneInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "+", "12345"} {
		_, err := NormalizePhone(in, "60")
		assert.ErrorIs(t, err, errs.ErrInvalidPhone, "input %q", in)
	}
}

func TestSessionID(t *testing.T) {
	assert.Equal(t, "60123456789", SessionID("+60123456789"))
	assert.Equal(t, "60123456789", SessionID("60123456789"))
}

func TestEnsureJID(t *testing.T) {
	jid, err := EnsureJID("+60123456789")
	require.NoError(t, err)
	assert.Equal(t, "60123456789@s.whatsapp.net", jid)

	passthrough, err := EnsureJID("60123456789@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "60123456789@s.whatsapp.net", passthrough)

	_, err = EnsureJID("")
	assert.ErrorIs(t, err, errs.ErrInvalidPhone)
}

func TestParseRemoteJID(t *testing.T) {
	user := ParseRemoteJID("60123456789@s.whatsapp.net")
	assert.Equal(t, "60123456789", user.PhoneNumber)
	assert.False(t, user.IsGroup)

	group := ParseRemoteJID("1203630000000000@g.us")
	assert.True(t, group.IsGroup)
}
