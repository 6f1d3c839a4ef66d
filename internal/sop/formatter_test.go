package sop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kedaiservis/repair-service/internal/model"
)

func newTestFormatter() *Formatter {
	return NewFormatter(DefaultFormatterConfig())
}

func TestFormatCurrency(t *testing.T) {
	f := newTestFormatter()

	assert.Nil(t, f.FormatCurrency(nil))

	v := 120.5
	got := f.FormatCurrency(&v)
	require.NotNil(t, got)
	assert.Equal(t, "RM120.50", *got)

	big := 1234.5
	got = f.FormatCurrency(&big)
	require.NotNil(t, got)
	assert.Equal(t, "RM1,234.50", *got)
}

func TestStatusSummaryStages(t *testing.T) {
	f := newTestFormatter()

	cases := []struct {
		status model.TicketStatus
		stage  Stage
	}{
		{model.TicketStatusIntake, StageIntakeAck},
		{model.TicketStatusDiagnosed, StageDiagnosisSummary},
		{model.TicketStatusAwaitingApproval, StageAwaitingApproval},
		{model.TicketStatusApproved, StageRepairUpdates},
		{model.TicketStatusRepairing, StageRepairUpdates},
		{model.TicketStatusDone, StageDoneInvoice},
		{model.TicketStatusPickedUp, StagePickupComplete},
		{model.TicketStatusRejected, StageAwaitingApproval},
	}
	for _, tc := range cases {
		reply := f.StatusSummary(StatusSummaryContext{TicketNumber: "TKT-1", Status: tc.status})
		assert.Equal(t, tc.stage, reply.Stage, "status %s", tc.status)
		assert.Contains(t, reply.Text, "TKT-1")
		assert.True(t, strings.HasSuffix(reply.Text, f.MenuFooter()), "status %s missing footer", tc.status)
	}
}

func TestApprovalMessages(t *testing.T) {
	f := newTestFormatter()
	name := "Aisyah"
	cost := "RM250.00"

	accepted := f.ApprovalAccepted("TKT-9", &name, &cost)
	assert.Contains(t, accepted, "Terima kasih Aisyah!")
	assert.Contains(t, accepted, "TKT-9")
	assert.Contains(t, accepted, "RM250.00")
	assert.True(t, strings.HasSuffix(accepted, f.MenuFooter()))

	acceptedNoCost := f.ApprovalAccepted("TKT-9", nil, nil)
	assert.NotContains(t, acceptedNoCost, "Anggaran kos")

	rejected := f.ApprovalRejected("TKT-9", &name)
	assert.Contains(t, rejected, "Baik Aisyah,")
	assert.Contains(t, rejected, "TKT-9")
	assert.True(t, strings.HasSuffix(rejected, f.MenuFooter()))
}

func TestInvoiceSummary(t *testing.T) {
	f := newTestFormatter()

	notReady := f.InvoiceSummary(InvoiceSummaryContext{TicketNumber: "TKT-5"})
	assert.Equal(t, StageDoneInvoice, notReady.Stage)
	assert.Contains(t, notReady.Text, "belum tersedia")

	number := "INV-2026-00042"
	total := "RM310.00"
	status := "sent"
	ready := f.InvoiceSummary(InvoiceSummaryContext{
		TicketNumber:  "TKT-5",
		InvoiceNumber: &number,
		InvoiceTotal:  &total,
		InvoiceStatus: &status,
	})
	assert.Contains(t, ready.Text, "INV-2026-00042")
	assert.Contains(t, ready.Text, "RM310.00")
	assert.Contains(t, ready.Text, "sent")
}

func TestPickupInstructionsBranches(t *testing.T) {
	f := newTestFormatter()

	done := f.PickupInstructions(PickupInstructionsContext{TicketNumber: "T", Status: model.TicketStatusDone})
	assert.Equal(t, StagePickupReady, done.Stage)
	assert.Contains(t, done.Text, "sedia untuk diambil")

	collected := f.PickupInstructions(PickupInstructionsContext{TicketNumber: "T", Status: model.TicketStatusPickedUp})
	assert.Equal(t, StagePickupComplete, collected.Stage)

	awaiting := f.PickupInstructions(PickupInstructionsContext{TicketNumber: "T", Status: model.TicketStatusAwaitingApproval})
	assert.Equal(t, StageAwaitingApproval, awaiting.Stage)
	assert.Contains(t, awaiting.Text, "kelulusan")

	repairing := f.PickupInstructions(PickupInstructionsContext{TicketNumber: "T", Status: model.TicketStatusRepairing})
	assert.Equal(t, StageRepairUpdates, repairing.Stage)
	assert.Contains(t, repairing.Text, "sedang dibaiki")
}

// The no-ticket fallback is the only reply without the quick menu footer.
func TestNoTicketHasNoFooter(t *testing.T) {
	f := newTestFormatter()

	assert.NotContains(t, f.NoTicket(), f.MenuFooter())
	assert.Contains(t, f.UnknownCommand(), f.MenuFooter())
	assert.Contains(t, f.SupportHandoff(nil), f.MenuFooter())
}
