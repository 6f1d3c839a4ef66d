package sop

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kedaiservis/repair-service/internal/model"
)

func TestCoerceMetadataEmpty(t *testing.T) {
	assert.Equal(t, Metadata{}, CoerceMetadata(nil))
	assert.Equal(t, Metadata{}, CoerceMetadata([]byte{}))
	assert.Equal(t, Metadata{}, CoerceMetadata([]byte(`null`)))
	assert.Equal(t, Metadata{}, CoerceMetadata([]byte(`"not an object"`)))
	assert.Equal(t, Metadata{}, CoerceMetadata([]byte(`[1,2]`)))
}

func TestCoerceMetadataFromSopKey(t *testing.T) {
	id := uuid.New()
	raw := []byte(`{"from":"60123","sop":{"stage":"awaiting_approval","ticketId":"` + id.String() + `","lastCommand":"approve","ticketStatus":"approved"}}`)

	got := CoerceMetadata(raw)
	require.NotNil(t, got.Stage)
	assert.Equal(t, StageAwaitingApproval, *got.Stage)
	require.NotNil(t, got.TicketID)
	assert.Equal(t, id, *got.TicketID)
	require.NotNil(t, got.LastCommand)
	assert.Equal(t, CommandApprove, *got.LastCommand)
	require.NotNil(t, got.TicketStatus)
	assert.Equal(t, model.TicketStatusApproved, *got.TicketStatus)
}

func TestCoerceMetadataContainerIsSnapshot(t *testing.T) {
	raw := []byte(`{"stage":"done_invoice","ticketId":null,"lastCommand":"invoice","ticketStatus":"done"}`)

	got := CoerceMetadata(raw)
	require.NotNil(t, got.Stage)
	assert.Equal(t, StageDoneInvoice, *got.Stage)
	assert.Nil(t, got.TicketID)
}

func TestCoerceMetadataStageAliases(t *testing.T) {
	got := CoerceMetadata([]byte(`{"sop":{"stage":"diagnosis_approval"}}`))
	require.NotNil(t, got.Stage)
	assert.Equal(t, StageAwaitingApproval, *got.Stage)

	got = CoerceMetadata([]byte(`{"sop":{"stage":"repair_update"}}`))
	require.NotNil(t, got.Stage)
	assert.Equal(t, StageRepairUpdates, *got.Stage)
}

// One invalid field poisons the whole snapshot: partial session state is worse
// than none.
func TestCoerceMetadataRejectsWholeSnapshot(t *testing.T) {
	cases := [][]byte{
		[]byte(`{"sop":{"stage":"launching_rockets"}}`),
		[]byte(`{"sop":{"stage":"awaiting_approval","ticketId":"not-a-uuid"}}`),
		[]byte(`{"sop":{"lastCommand":"unknown"}}`),
		[]byte(`{"sop":{"lastCommand":"shout"}}`),
		[]byte(`{"sop":{"ticketStatus":"exploded"}}`),
		[]byte(`{"sop":{"stage":42}}`),
	}
	for _, raw := range cases {
		assert.Equal(t, Metadata{}, CoerceMetadata(raw), "raw: %s", raw)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	id := uuid.New()
	stage := StagePickupReady
	command := CommandPickup
	status := model.TicketStatusDone
	in := Metadata{
		Stage:        &stage,
		TicketID:     &id,
		LastCommand:  &command,
		TicketStatus: &status,
	}

	raw, err := json.Marshal(map[string]interface{}{"sop": in})
	require.NoError(t, err)

	got := CoerceMetadata(raw)
	assert.Equal(t, in, got)
}
