package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicketStatusValid(t *testing.T) {
	for _, status := range TicketStatuses {
		assert.True(t, status.Valid(), "status %s", status)
	}
	assert.False(t, TicketStatus("on_fire").Valid())
	assert.False(t, TicketStatus("").Valid())
}

func TestTicketStatusTransitions(t *testing.T) {
	assert.True(t, TicketStatusIntake.CanTransition(TicketStatusDiagnosed))
	assert.True(t, TicketStatusDiagnosed.CanTransition(TicketStatusAwaitingApproval))
	assert.True(t, TicketStatusAwaitingApproval.CanTransition(TicketStatusApproved))
	assert.True(t, TicketStatusAwaitingApproval.CanTransition(TicketStatusRejected))
	assert.True(t, TicketStatusApproved.CanTransition(TicketStatusRepairing))
	assert.True(t, TicketStatusRepairing.CanTransition(TicketStatusDone))
	assert.True(t, TicketStatusDone.CanTransition(TicketStatusPickedUp))

	// No backward edges and nothing out of the terminal states.
	assert.False(t, TicketStatusApproved.CanTransition(TicketStatusAwaitingApproval))
	assert.False(t, TicketStatusRejected.CanTransition(TicketStatusApproved))
	assert.False(t, TicketStatusPickedUp.CanTransition(TicketStatusIntake))
	assert.False(t, TicketStatusIntake.CanTransition(TicketStatusDone))
}
