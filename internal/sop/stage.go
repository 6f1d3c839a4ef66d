package sop

import "github.com/kedaiservis/repair-service/internal/model"

// Stage is the conversational checkpoint label for a session. It is distinct
// from, but usually derived from, the ticket status.
type Stage string

const (
	StageIntakeAck        Stage = "intake_ack"
	StageDiagnosisSummary Stage = "diagnosis_summary"
	StageAwaitingApproval Stage = "awaiting_approval"
	StageRepairUpdates    Stage = "repair_updates"
	StageDoneInvoice      Stage = "done_invoice"
	StagePickupReady      Stage = "pickup_ready"
	StagePickupComplete   Stage = "pickup_complete"
	StageReviewReminder   Stage = "review_reminder"
)

// stageAliases maps legacy stage labels that still exist in old message rows
// onto their canonical values.
var stageAliases = map[string]Stage{
	"diagnosis_approval": StageAwaitingApproval,
	"repair_update":      StageRepairUpdates,
}

var validStages = map[Stage]bool{
	StageIntakeAck:        true,
	StageDiagnosisSummary: true,
	StageAwaitingApproval: true,
	StageRepairUpdates:    true,
	StageDoneInvoice:      true,
	StagePickupReady:      true,
	StagePickupComplete:   true,
	StageReviewReminder:   true,
}

// NormalizeStage resolves aliases and rejects unknown labels.
func NormalizeStage(value string) (Stage, bool) {
	if validStages[Stage(value)] {
		return Stage(value), true
	}
	if canonical, ok := stageAliases[value]; ok {
		return canonical, true
	}
	return "", false
}

// StageForStatus maps a ticket status to the default conversational stage.
func StageForStatus(status model.TicketStatus) Stage {
	switch status {
	case model.TicketStatusIntake:
		return StageIntakeAck
	case model.TicketStatusDiagnosed:
		return StageDiagnosisSummary
	case model.TicketStatusAwaitingApproval, model.TicketStatusRejected:
		return StageAwaitingApproval
	case model.TicketStatusApproved, model.TicketStatusRepairing:
		return StageRepairUpdates
	case model.TicketStatusDone:
		return StageDoneInvoice
	case model.TicketStatusPickedUp:
		return StagePickupComplete
	default:
		return StageRepairUpdates
	}
}
