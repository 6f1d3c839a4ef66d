package sop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kedaiservis/repair-service/internal/model"
)

// CustomerRef is the slice of a customer record the engine needs.
type CustomerRef struct {
	ID    uuid.UUID
	Name  *string
	Phone string
}

// InvoiceContext is the latest invoice attached to a ticket, if any.
type InvoiceContext struct {
	ID     uuid.UUID
	Number string
	Total  *float64
	Status *model.InvoiceStatus
}

// TicketContext is a ticket joined with its customer and latest invoice,
// loaded once per inbound message.
type TicketContext struct {
	ID            uuid.UUID
	TicketNumber  string
	Status        model.TicketStatus
	CustomerID    uuid.UUID
	CustomerName  *string
	CustomerPhone string
	EstimatedCost *float64
	Invoice       *InvoiceContext
}

// Directory reads customers and tickets and applies guarded status
// transitions. Lookups return (nil, nil) when no record matches.
type Directory interface {
	CustomerByPhone(ctx context.Context, phone string) (*CustomerRef, error)
	TicketContextByID(ctx context.Context, ticketID uuid.UUID) (*TicketContext, error)
	LatestTicketByStatus(ctx context.Context, customerID uuid.UUID, status model.TicketStatus) (*TicketContext, error)
	LatestTicket(ctx context.Context, customerID uuid.UUID) (*TicketContext, error)

	// TransitionTicket updates the ticket status only when the current status
	// still equals from, reporting whether a row changed. Two concurrent
	// approvals therefore race on the database, not in memory.
	TransitionTicket(ctx context.Context, ticketID uuid.UUID, from, to model.TicketStatus) (bool, error)
}

// MessageLog is the append-only message store. Append fills in the row ID.
type MessageLog interface {
	LatestSessionMetadata(ctx context.Context, sessionID string) ([]byte, error)
	Append(ctx context.Context, msg *model.WaMessage) error
}

// TextSender delivers one outbound text and returns the provider message id.
type TextSender interface {
	SendText(ctx context.Context, to, text string) (string, error)
}

// Policy carries the business toggles the engine consults at runtime.
type Policy struct {
	// AllowRejectedReapproval permits "setuju" to move a rejected ticket back
	// into the approved state over chat.
	AllowRejectedReapproval bool
}

// Inbound is one normalized customer message.
type Inbound struct {
	From      string
	Phone     string // E.164 with leading +
	SessionID string
	Text      string
}

// Result reports what the engine decided and whether the reply went out.
type Result struct {
	Command   Command
	Stage     *Stage
	TicketID  *uuid.UUID
	ReplyText string
	Delivered bool
}

type replyMode int

const (
	replyModeText replyMode = iota
	replyModeWorkflow
)

// Engine runs the conversation loop: classify the message, resolve the ticket,
// mutate state where the command asks for it, persist the inbound row with the
// new session snapshot, and deliver the reply.
type Engine struct {
	classifier *Classifier
	formatter  *Formatter
	directory  Directory
	log        MessageLog
	sender     TextSender
	policy     Policy
	logger     zerolog.Logger
	now        func() time.Time
}

func NewEngine(
	classifier *Classifier,
	formatter *Formatter,
	directory Directory,
	log MessageLog,
	sender TextSender,
	policy Policy,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		classifier: classifier,
		formatter:  formatter,
		directory:  directory,
		log:        log,
		sender:     sender,
		policy:     policy,
		logger:     logger,
		now:        time.Now,
	}
}

// resolveTicket picks the ticket a command applies to. The sticky ticket from
// the previous snapshot wins, except that approve/reject skip it when it is no
// longer awaiting approval; then the newest awaiting_approval ticket, then the
// newest ticket overall.
func (e *Engine) resolveTicket(ctx context.Context, customer *CustomerRef, prior Metadata, command Command) (*TicketContext, error) {
	if customer == nil {
		return nil, nil
	}

	decision := command == CommandApprove || command == CommandReject

	if prior.TicketID != nil {
		ticket, err := e.directory.TicketContextByID(ctx, *prior.TicketID)
		if err != nil {
			return nil, err
		}
		if ticket != nil {
			if !decision || e.decidable(command, ticket.Status) {
				return ticket, nil
			}
		}
	}

	if decision {
		awaiting, err := e.directory.LatestTicketByStatus(ctx, customer.ID, model.TicketStatusAwaitingApproval)
		if err != nil {
			return nil, err
		}
		if awaiting != nil {
			return awaiting, nil
		}
	}

	return e.directory.LatestTicket(ctx, customer.ID)
}

// decidable reports whether an approve/reject command can act on a ticket in
// the given status. The re-approval policy only opens the rejected state to
// approve; rejecting an already rejected ticket stays a status-summary no-op.
func (e *Engine) decidable(command Command, status model.TicketStatus) bool {
	if status == model.TicketStatusAwaitingApproval {
		return true
	}
	return command == CommandApprove &&
		e.policy.AllowRejectedReapproval &&
		status == model.TicketStatusRejected
}

// HandleInbound processes one customer message end to end. An error is only
// returned for infrastructure failures; delivery failures are recorded as a
// failed outbound row and the call still succeeds.
func (e *Engine) HandleInbound(ctx context.Context, in Inbound) (*Result, error) {
	rawPrior, err := e.log.LatestSessionMetadata(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session metadata: %w", err)
	}
	prior := CoerceMetadata(rawPrior)

	command := e.classifier.Classify(in.Text)

	customer, err := e.directory.CustomerByPhone(ctx, in.Phone)
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}

	ticket, err := e.resolveTicket(ctx, customer, prior, command)
	if err != nil {
		return nil, fmt.Errorf("resolve ticket: %w", err)
	}

	customerName := preferredName(customer, ticket)

	mode := replyModeText
	var responseStage *Stage
	var responseText string
	nextTicketStatus := prior.TicketStatus
	if ticket != nil {
		nextTicketStatus = &ticket.Status
	}
	sessionTicketID := prior.TicketID
	if ticket != nil {
		sessionTicketID = &ticket.ID
	}

	switch command {
	case CommandApprove, CommandReject:
		if ticket == nil {
			responseText = e.formatter.NoTicket()
			responseStage = prior.Stage
			break
		}
		if !e.decidable(command, ticket.Status) {
			summary := e.formatter.StatusSummary(StatusSummaryContext{
				TicketNumber: ticket.TicketNumber,
				Status:       ticket.Status,
				CustomerName: customerName,
			})
			mode = replyModeWorkflow
			responseStage = &summary.Stage
			responseText = summary.Text
			break
		}

		target := model.TicketStatusApproved
		if command == CommandReject {
			target = model.TicketStatusRejected
		}
		changed, err := e.directory.TransitionTicket(ctx, ticket.ID, ticket.Status, target)
		if err != nil {
			return nil, fmt.Errorf("transition ticket: %w", err)
		}
		if !changed {
			// Lost the race: someone moved the ticket first. Reload and answer
			// with the current state instead of a stale confirmation.
			current, err := e.directory.TicketContextByID(ctx, ticket.ID)
			if err != nil {
				return nil, fmt.Errorf("reload ticket: %w", err)
			}
			if current != nil {
				ticket = current
			}
			summary := e.formatter.StatusSummary(StatusSummaryContext{
				TicketNumber: ticket.TicketNumber,
				Status:       ticket.Status,
				CustomerName: customerName,
			})
			mode = replyModeWorkflow
			responseStage = &summary.Stage
			responseText = summary.Text
			nextTicketStatus = &ticket.Status
			break
		}

		ticket.Status = target
		nextTicketStatus = &target
		mode = replyModeWorkflow
		stage := StageAwaitingApproval
		responseStage = &stage
		if command == CommandApprove {
			responseText = e.formatter.ApprovalAccepted(ticket.TicketNumber, customerName, e.formatter.FormatCurrency(ticket.EstimatedCost))
		} else {
			responseText = e.formatter.ApprovalRejected(ticket.TicketNumber, customerName)
		}
	case CommandStatus:
		if ticket == nil {
			responseText = e.formatter.NoTicket()
			responseStage = prior.Stage
			break
		}
		summary := e.formatter.StatusSummary(StatusSummaryContext{
			TicketNumber: ticket.TicketNumber,
			Status:       ticket.Status,
			CustomerName: customerName,
		})
		mode = replyModeWorkflow
		responseStage = &summary.Stage
		responseText = summary.Text
	case CommandInvoice:
		if ticket == nil {
			responseText = e.formatter.NoTicket()
			responseStage = prior.Stage
			break
		}
		summaryCtx := InvoiceSummaryContext{TicketNumber: ticket.TicketNumber}
		if ticket.Invoice != nil {
			summaryCtx.InvoiceNumber = &ticket.Invoice.Number
			summaryCtx.InvoiceTotal = e.formatter.FormatCurrency(ticket.Invoice.Total)
			if ticket.Invoice.Status != nil {
				status := string(*ticket.Invoice.Status)
				summaryCtx.InvoiceStatus = &status
			}
		}
		summary := e.formatter.InvoiceSummary(summaryCtx)
		mode = replyModeWorkflow
		responseStage = &summary.Stage
		responseText = summary.Text
	case CommandPickup:
		if ticket == nil {
			responseText = e.formatter.NoTicket()
			responseStage = prior.Stage
			break
		}
		pickupCtx := PickupInstructionsContext{
			TicketNumber: ticket.TicketNumber,
			Status:       ticket.Status,
			CustomerName: customerName,
		}
		if ticket.Invoice != nil {
			pickupCtx.InvoiceTotal = e.formatter.FormatCurrency(ticket.Invoice.Total)
			if ticket.Invoice.Status != nil {
				status := string(*ticket.Invoice.Status)
				pickupCtx.InvoiceStatus = &status
			}
		}
		pickup := e.formatter.PickupInstructions(pickupCtx)
		mode = replyModeWorkflow
		responseStage = &pickup.Stage
		responseText = pickup.Text
	case CommandSupport:
		responseText = e.formatter.SupportHandoff(customerName)
		if ticket != nil {
			stage := StageForStatus(ticket.Status)
			responseStage = &stage
		} else {
			responseStage = prior.Stage
		}
	default:
		responseText = e.formatter.UnknownCommand()
		if ticket != nil {
			mode = replyModeWorkflow
			stage := StageForStatus(ticket.Status)
			responseStage = &stage
		} else {
			responseStage = prior.Stage
		}
	}

	if responseStage == nil && ticket != nil {
		status := ticket.Status
		if nextTicketStatus != nil {
			status = *nextTicketStatus
		}
		stage := StageForStatus(status)
		responseStage = &stage
	}
	if responseStage == nil {
		responseStage = prior.Stage
	}

	session := Metadata{
		Stage:        responseStage,
		TicketID:     sessionTicketID,
		LastCommand:  storableCommand(command, prior.LastCommand),
		TicketStatus: nextTicketStatus,
	}

	now := e.now()

	inboundMeta, err := json.Marshal(inboundEnvelope{
		From:           in.From,
		NormalizedFrom: in.Phone,
		Command:        command,
		Sop:            session,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal inbound metadata: %w", err)
	}

	inboundRow := &model.WaMessage{
		SessionID:  in.SessionID,
		CustomerID: customerIDOf(customer),
		TicketID:   sessionTicketID,
		Direction:  model.WaDirectionIn,
		Status:     model.WaMessageStatusReceived,
		Body:       in.Text,
		SentAt:     now,
		Metadata:   inboundMeta,
	}
	if err := e.log.Append(ctx, inboundRow); err != nil {
		return nil, fmt.Errorf("append inbound message: %w", err)
	}

	result := &Result{
		Command:   command,
		Stage:     responseStage,
		TicketID:  sessionTicketID,
		ReplyText: responseText,
	}

	if responseText == "" {
		return result, nil
	}
	if mode == replyModeWorkflow && (ticket == nil || customer == nil) {
		return result, nil
	}

	outMeta := outboundEnvelope{
		NormalizedRecipient: in.Phone,
		RespondsTo:          &inboundRow.ID,
		Command:             command,
		Sop:                 session,
	}
	if mode == replyModeWorkflow {
		outMeta.Stage = responseStage
	}

	messageID, sendErr := e.sender.SendText(ctx, in.Phone, responseText)
	outboundRow := &model.WaMessage{
		SessionID:  in.SessionID,
		CustomerID: customerIDOf(customer),
		TicketID:   sessionTicketID,
		Direction:  model.WaDirectionOut,
		Status:     model.WaMessageStatusSent,
		Body:       responseText,
		SentAt:     now,
	}
	if messageID != "" {
		outboundRow.MessageID = &messageID
	}
	if sendErr != nil {
		e.logger.Error().Err(sendErr).Str("session_id", in.SessionID).Msg("failed to send reply")
		outboundRow.Status = model.WaMessageStatusFailed
		msg := sendErr.Error()
		outMeta.Error = &msg
	} else {
		result.Delivered = true
	}

	rawOut, err := json.Marshal(outMeta)
	if err != nil {
		return nil, fmt.Errorf("marshal outbound metadata: %w", err)
	}
	outboundRow.Metadata = rawOut

	if err := e.log.Append(ctx, outboundRow); err != nil {
		return nil, fmt.Errorf("append outbound message: %w", err)
	}

	return result, nil
}

// preferredName prefers the customer record's name and falls back to the name
// joined onto the ticket.
func preferredName(customer *CustomerRef, ticket *TicketContext) *string {
	if customer != nil && customer.Name != nil {
		return customer.Name
	}
	if ticket != nil {
		return ticket.CustomerName
	}
	return nil
}

// storableCommand keeps the previous lastCommand when the new message could
// not be classified.
func storableCommand(command Command, previous *Command) *Command {
	if storableCommands[command] {
		return &command
	}
	return previous
}

func customerIDOf(customer *CustomerRef) *uuid.UUID {
	if customer == nil {
		return nil
	}
	return &customer.ID
}

type inboundEnvelope struct {
	From           string   `json:"from"`
	NormalizedFrom string   `json:"normalizedFrom"`
	Command        Command  `json:"command"`
	Sop            Metadata `json:"sop"`
}

type outboundEnvelope struct {
	NormalizedRecipient string     `json:"normalizedRecipient"`
	RespondsTo          *uuid.UUID `json:"respondsTo"`
	Command             Command    `json:"command"`
	Stage               *Stage     `json:"stage,omitempty"`
	Sop                 Metadata   `json:"sop"`
	Error               *string    `json:"error,omitempty"`
}
