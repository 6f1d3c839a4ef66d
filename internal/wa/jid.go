package wa

import (
	"strings"

	"github.com/kedaiservis/repair-service/internal/errs"
)

// userJIDDomain is the WhatsApp address domain for individual chats.
const userJIDDomain = "s.whatsapp.net"

// NormalizePhone canonicalizes a raw phone number into E.164-ish form with a
// leading plus. A leading zero is treated as the local form and replaced with
// the default country code. Already-normalized input passes through unchanged.
func NormalizePhone(raw, defaultCountryCode string) (string, error) {
	digits := keepDigits(raw)
	if digits == "" {
		return "", errs.ErrInvalidPhone
	}
	if strings.HasPrefix(digits, "0") {
		digits = defaultCountryCode + strings.TrimPrefix(digits, "0")
	}
	if len(digits) < 7 {
		return "", errs.ErrInvalidPhone
	}
	return "+" + digits, nil
}

// SessionID derives the message-log session key from a normalized phone
// number: the digits without the plus.
func SessionID(normalizedPhone string) string {
	return strings.TrimPrefix(normalizedPhone, "+")
}

// EnsureJID converts a recipient into a WhatsApp JID. Input that already
// carries a domain is passed through.
func EnsureJID(recipient string) (string, error) {
	if recipient == "" {
		return "", errs.ErrInvalidPhone
	}
	if strings.Contains(recipient, "@") {
		return recipient, nil
	}
	digits := keepDigits(recipient)
	if digits == "" {
		return "", errs.ErrInvalidPhone
	}
	return digits + "@" + userJIDDomain, nil
}

// RemoteJID is the decomposed form of a provider remote JID.
type RemoteJID struct {
	PhoneNumber string
	JID         string
	IsGroup     bool
}

// ParseRemoteJID splits a provider JID into its phone number and domain parts.
func ParseRemoteJID(remoteJID string) RemoteJID {
	user, domain, _ := strings.Cut(remoteJID, "@")
	return RemoteJID{
		PhoneNumber: keepDigits(user),
		JID:         remoteJID,
		IsGroup:     domain == "g.us",
	}
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
