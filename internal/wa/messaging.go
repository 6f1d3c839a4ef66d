package wa

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kedaiservis/repair-service/internal/model"
	"github.com/kedaiservis/repair-service/internal/sop"
)

// MessageAppender persists one message-log row. Implemented by the message
// service; the notifier stays decoupled from gorm.
type MessageAppender interface {
	Append(ctx context.Context, msg *model.WaMessage) error
}

// WorkflowMessage is a staff-triggered ticket notification (intake receipt,
// diagnosis summary, repair update, pickup notice).
type WorkflowMessage struct {
	CustomerID uuid.UUID
	TicketID   uuid.UUID
	Phone      string
	Stage      sop.Stage
	Text       string
}

// Notifier sends workflow messages and records every outcome in the message
// log, so the log stays the complete history of the conversation.
type Notifier struct {
	sender             sop.TextSender
	log                MessageAppender
	defaultCountryCode string
	logger             zerolog.Logger
	now                func() time.Time
}

func NewNotifier(sender sop.TextSender, log MessageAppender, defaultCountryCode string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		sender:             sender,
		log:                log,
		defaultCountryCode: defaultCountryCode,
		logger:             logger,
		now:                time.Now,
	}
}

type workflowEnvelope struct {
	Stage               sop.Stage    `json:"stage"`
	TicketID            uuid.UUID    `json:"ticketId"`
	NormalizedRecipient string       `json:"normalizedRecipient"`
	Sop                 sop.Metadata `json:"sop"`
	Error               *string      `json:"error,omitempty"`
}

// Notify delivers a workflow message. An unroutable phone number is logged and
// skipped; a delivery failure is recorded as a failed row. Neither aborts the
// staff operation that triggered the notification, so the returned error only
// reports persistence problems.
func (n *Notifier) Notify(ctx context.Context, msg WorkflowMessage) error {
	normalized, err := NormalizePhone(msg.Phone, n.defaultCountryCode)
	if err != nil {
		n.logger.Warn().
			Str("customer_id", msg.CustomerID.String()).
			Msg("skipping whatsapp send: invalid phone number")
		return nil
	}

	stage := msg.Stage
	if canonical, ok := sop.NormalizeStage(string(stage)); ok {
		stage = canonical
	}

	ticketID := msg.TicketID
	envelope := workflowEnvelope{
		Stage:               stage,
		TicketID:            ticketID,
		NormalizedRecipient: normalized,
		Sop: sop.Metadata{
			Stage:    &stage,
			TicketID: &ticketID,
		},
	}

	sessionID := SessionID(normalized)
	row := &model.WaMessage{
		SessionID:  sessionID,
		CustomerID: &msg.CustomerID,
		TicketID:   &ticketID,
		Direction:  model.WaDirectionOut,
		Status:     model.WaMessageStatusSent,
		Body:       msg.Text,
		SentAt:     n.now(),
	}

	messageID, sendErr := n.sender.SendText(ctx, normalized, msg.Text)
	if messageID != "" {
		row.MessageID = &messageID
	}
	if sendErr != nil {
		n.logger.Warn().Err(sendErr).
			Str("ticket_id", ticketID.String()).
			Msg("failed to send ticket workflow message")
		row.Status = model.WaMessageStatusFailed
		errText := sendErr.Error()
		envelope.Error = &errText
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row.Metadata = raw

	return n.log.Append(ctx, row)
}
