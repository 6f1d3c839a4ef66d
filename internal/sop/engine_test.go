package sop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kedaiservis/repair-service/internal/model"
)

type transitionCall struct {
	ticketID uuid.UUID
	from, to model.TicketStatus
}

type fakeDirectory struct {
	customer    *CustomerRef
	tickets     []*TicketContext
	transitions []transitionCall
	failNext    bool
}

func (d *fakeDirectory) CustomerByPhone(_ context.Context, phone string) (*CustomerRef, error) {
	if d.customer != nil && (d.customer.Phone == phone || "+"+d.customer.Phone == phone) {
		return d.customer, nil
	}
	return nil, nil
}

func (d *fakeDirectory) TicketContextByID(_ context.Context, id uuid.UUID) (*TicketContext, error) {
	for _, t := range d.tickets {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) LatestTicketByStatus(_ context.Context, customerID uuid.UUID, status model.TicketStatus) (*TicketContext, error) {
	for _, t := range d.tickets {
		if t.CustomerID == customerID && t.Status == status {
			return t, nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) LatestTicket(_ context.Context, customerID uuid.UUID) (*TicketContext, error) {
	for _, t := range d.tickets {
		if t.CustomerID == customerID {
			return t, nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) TransitionTicket(_ context.Context, id uuid.UUID, from, to model.TicketStatus) (bool, error) {
	d.transitions = append(d.transitions, transitionCall{id, from, to})
	if d.failNext {
		d.failNext = false
		return false, nil
	}
	for _, t := range d.tickets {
		if t.ID == id && t.Status == from {
			t.Status = to
			return true, nil
		}
	}
	return false, nil
}

type fakeLog struct {
	rows []*model.WaMessage
}

func (l *fakeLog) LatestSessionMetadata(_ context.Context, sessionID string) ([]byte, error) {
	for i := len(l.rows) - 1; i >= 0; i-- {
		if l.rows[i].SessionID == sessionID {
			return []byte(l.rows[i].Metadata), nil
		}
	}
	return nil, nil
}

func (l *fakeLog) Append(_ context.Context, msg *model.WaMessage) error {
	msg.ID = uuid.New()
	l.rows = append(l.rows, msg)
	return nil
}

type sentMessage struct {
	to, text string
}

type fakeSender struct {
	err  error
	sent []sentMessage
}

func (s *fakeSender) SendText(_ context.Context, to, text string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, sentMessage{to, text})
	return fmt.Sprintf("MSG-%d", len(s.sent)), nil
}

type engineFixture struct {
	engine    *Engine
	directory *fakeDirectory
	log       *fakeLog
	sender    *fakeSender
}

func newEngineFixture(policy Policy) *engineFixture {
	directory := &fakeDirectory{}
	log := &fakeLog{}
	sender := &fakeSender{}
	engine := NewEngine(
		NewClassifier(DefaultClassifierConfig()),
		NewFormatter(DefaultFormatterConfig()),
		directory, log, sender, policy, zerolog.Nop(),
	)
	return &engineFixture{engine: engine, directory: directory, log: log, sender: sender}
}

func awaitingTicketFixture(f *engineFixture) *TicketContext {
	name := "Farid"
	cost := 250.0
	customer := &CustomerRef{ID: uuid.New(), Name: &name, Phone: "+60123456789"}
	ticket := &TicketContext{
		ID:            uuid.New(),
		TicketNumber:  "TKT-20260815-AB12CD34",
		Status:        model.TicketStatusAwaitingApproval,
		CustomerID:    customer.ID,
		CustomerName:  &name,
		CustomerPhone: customer.Phone,
		EstimatedCost: &cost,
	}
	f.directory.customer = customer
	f.directory.tickets = []*TicketContext{ticket}
	return ticket
}

func inboundFixture(text string) Inbound {
	return Inbound{
		From:      "60123456789",
		Phone:     "+60123456789",
		SessionID: "60123456789",
		Text:      text,
	}
}

func TestHandleInboundApprove(t *testing.T) {
	f := newEngineFixture(Policy{})
	ticket := awaitingTicketFixture(f)

	result, err := f.engine.HandleInbound(context.Background(), inboundFixture("setuju"))
	require.NoError(t, err)

	assert.Equal(t, CommandApprove, result.Command)
	assert.True(t, result.Delivered)
	assert.Equal(t, model.TicketStatusApproved, ticket.Status)
	require.Len(t, f.directory.transitions, 1)
	assert.Equal(t, transitionCall{ticket.ID, model.TicketStatusAwaitingApproval, model.TicketStatusApproved}, f.directory.transitions[0])

	assert.Contains(t, result.ReplyText, "Terima kasih Farid!")
	assert.Contains(t, result.ReplyText, "RM250.00")
	assert.Contains(t, result.ReplyText, ticket.TicketNumber)

	require.Len(t, f.log.rows, 2)
	inbound, outbound := f.log.rows[0], f.log.rows[1]
	assert.Equal(t, model.WaDirectionIn, inbound.Direction)
	assert.Equal(t, model.WaMessageStatusReceived, inbound.Status)
	assert.Equal(t, model.WaDirectionOut, outbound.Direction)
	assert.Equal(t, model.WaMessageStatusSent, outbound.Status)
	require.NotNil(t, outbound.MessageID)

	session := CoerceMetadata([]byte(inbound.Metadata))
	require.NotNil(t, session.Stage)
	assert.Equal(t, StageAwaitingApproval, *session.Stage)
	require.NotNil(t, session.TicketStatus)
	assert.Equal(t, model.TicketStatusApproved, *session.TicketStatus)
	require.NotNil(t, session.LastCommand)
	assert.Equal(t, CommandApprove, *session.LastCommand)
	require.NotNil(t, session.TicketID)
	assert.Equal(t, ticket.ID, *session.TicketID)
}

func TestHandleInboundReject(t *testing.T) {
	f := newEngineFixture(Policy{})
	ticket := awaitingTicketFixture(f)

	result, err := f.engine.HandleInbound(context.Background(), inboundFixture("tak setuju"))
	require.NoError(t, err)

	assert.Equal(t, CommandReject, result.Command)
	assert.Equal(t, model.TicketStatusRejected, ticket.Status)
	assert.Contains(t, result.ReplyText, "kami hentikan pembaikan")
}

func TestHandleInboundApproveIsIdempotent(t *testing.T) {
	f := newEngineFixture(Policy{})
	ticket := awaitingTicketFixture(f)

	_, err := f.engine.HandleInbound(context.Background(), inboundFixture("setuju"))
	require.NoError(t, err)
	require.Equal(t, model.TicketStatusApproved, ticket.Status)

	// The second approve finds the ticket already approved and answers with a
	// status summary instead of a second confirmation.
	result, err := f.engine.HandleInbound(context.Background(), inboundFixture("setuju"))
	require.NoError(t, err)
	require.Len(t, f.directory.transitions, 1)
	assert.Contains(t, result.ReplyText, "kelulusan bagi tiket #"+ticket.TicketNumber+" diterima")
}

func TestHandleInboundApproveRace(t *testing.T) {
	f := newEngineFixture(Policy{})
	ticket := awaitingTicketFixture(f)
	f.directory.failNext = true

	result, err := f.engine.HandleInbound(context.Background(), inboundFixture("setuju"))
	require.NoError(t, err)

	// The conditional update lost; the reply reflects whatever the ticket is
	// now, without claiming the approval was recorded.
	assert.Equal(t, model.TicketStatusAwaitingApproval, ticket.Status)
	assert.NotContains(t, result.ReplyText, "telah direkodkan")
}

func TestHandleInboundNoCustomer(t *testing.T) {
	f := newEngineFixture(Policy{})

	result, err := f.engine.HandleInbound(context.Background(), inboundFixture("setuju"))
	require.NoError(t, err)

	assert.Empty(t, f.directory.transitions)
	assert.Equal(t, "Maaf, kami tidak menemui tiket aktif yang berkait dengan nombor ini. Sila hubungi kaunter kami untuk bantuan lanjut.", result.ReplyText)
	assert.NotContains(t, result.ReplyText, DefaultMenuFooter)

	require.Len(t, f.log.rows, 2)
	assert.Nil(t, f.log.rows[0].CustomerID)
	assert.Nil(t, f.log.rows[0].TicketID)
}

func TestHandleInboundStatusSummary(t *testing.T) {
	f := newEngineFixture(Policy{})
	ticket := awaitingTicketFixture(f)
	ticket.Status = model.TicketStatusRepairing

	result, err := f.engine.HandleInbound(context.Background(), inboundFixture("1"))
	require.NoError(t, err)

	assert.Equal(t, CommandStatus, result.Command)
	require.NotNil(t, result.Stage)
	assert.Equal(t, StageRepairUpdates, *result.Stage)
	assert.Contains(t, result.ReplyText, "pembaikan untuk tiket #"+ticket.TicketNumber+" sedang dijalankan")
}

func TestHandleInboundInvoiceNotReady(t *testing.T) {
	f := newEngineFixture(Policy{})
	awaitingTicketFixture(f)

	result, err := f.engine.HandleInbound(context.Background(), inboundFixture("2"))
	require.NoError(t, err)

	assert.Equal(t, CommandInvoice, result.Command)
	assert.Contains(t, result.ReplyText, "belum tersedia")
}

func TestHandleInboundUnknownRetainsLastCommand(t *testing.T) {
	f := newEngineFixture(Policy{})
	ticket := awaitingTicketFixture(f)

	_, err := f.engine.HandleInbound(context.Background(), inboundFixture("1"))
	require.NoError(t, err)

	result, err := f.engine.HandleInbound(context.Background(), inboundFixture("hmm entahlah"))
	require.NoError(t, err)
	assert.Equal(t, CommandUnknown, result.Command)

	inbound := f.log.rows[len(f.log.rows)-2]
	session := CoerceMetadata([]byte(inbound.Metadata))
	require.NotNil(t, session.LastCommand)
	assert.Equal(t, CommandStatus, *session.LastCommand)
	require.NotNil(t, session.TicketID)
	assert.Equal(t, ticket.ID, *session.TicketID)
}

func TestHandleInboundDeliveryFailure(t *testing.T) {
	f := newEngineFixture(Policy{})
	awaitingTicketFixture(f)
	f.sender.err = errors.New("gateway down")

	result, err := f.engine.HandleInbound(context.Background(), inboundFixture("setuju"))
	require.NoError(t, err)

	assert.False(t, result.Delivered)
	require.Len(t, f.log.rows, 2)
	outbound := f.log.rows[1]
	assert.Equal(t, model.WaMessageStatusFailed, outbound.Status)
	assert.Contains(t, string(outbound.Metadata), "gateway down")
}

func TestHandleInboundRejectedReapprovalPolicy(t *testing.T) {
	// Policy off: approving a rejected ticket only reports its state.
	f := newEngineFixture(Policy{})
	ticket := awaitingTicketFixture(f)
	ticket.Status = model.TicketStatusRejected

	result, err := f.engine.HandleInbound(context.Background(), inboundFixture("setuju"))
	require.NoError(t, err)
	assert.Empty(t, f.directory.transitions)
	assert.Equal(t, model.TicketStatusRejected, ticket.Status)
	assert.Contains(t, result.ReplyText, "telah dihentikan")

	// Policy on: the same message revives the ticket.
	f = newEngineFixture(Policy{AllowRejectedReapproval: true})
	ticket = awaitingTicketFixture(f)
	ticket.Status = model.TicketStatusRejected

	result, err = f.engine.HandleInbound(context.Background(), inboundFixture("setuju"))
	require.NoError(t, err)
	require.Len(t, f.directory.transitions, 1)
	assert.Equal(t, model.TicketStatusApproved, ticket.Status)
	assert.Contains(t, result.ReplyText, "telah direkodkan")
}

// Rejecting an already rejected ticket must never request a transition, even
// with re-approval enabled: the customer gets the current-state summary and
// the inbound message is still logged.
func TestHandleInboundRejectOnRejectedTicket(t *testing.T) {
	f := newEngineFixture(Policy{AllowRejectedReapproval: true})
	ticket := awaitingTicketFixture(f)
	ticket.Status = model.TicketStatusRejected

	result, err := f.engine.HandleInbound(context.Background(), inboundFixture("tak setuju"))
	require.NoError(t, err)

	assert.Empty(t, f.directory.transitions)
	assert.Equal(t, model.TicketStatusRejected, ticket.Status)
	assert.Equal(t, CommandReject, result.Command)
	assert.Contains(t, result.ReplyText, "telah dihentikan")

	require.Len(t, f.log.rows, 2)
	assert.Equal(t, model.WaDirectionIn, f.log.rows[0].Direction)
	assert.Equal(t, model.WaDirectionOut, f.log.rows[1].Direction)
}

func TestHandleInboundStickyTicketPreferred(t *testing.T) {
	f := newEngineFixture(Policy{})
	name := "Lim"
	customer := &CustomerRef{ID: uuid.New(), Name: &name, Phone: "+60123456789"}
	newer := &TicketContext{
		ID: uuid.New(), TicketNumber: "TKT-NEW", Status: model.TicketStatusIntake,
		CustomerID: customer.ID, CustomerName: &name,
	}
	sticky := &TicketContext{
		ID: uuid.New(), TicketNumber: "TKT-STICKY", Status: model.TicketStatusRepairing,
		CustomerID: customer.ID, CustomerName: &name,
	}
	f.directory.customer = customer
	f.directory.tickets = []*TicketContext{newer, sticky}

	// Seed the session with the sticky ticket id.
	_, err := f.engine.HandleInbound(context.Background(), inboundFixture("1"))
	require.NoError(t, err)
	// The fake returns the first matching ticket, so re-point the session.
	stage := StageRepairUpdates
	seedSession := Metadata{Stage: &stage, TicketID: &sticky.ID}
	raw, err := marshalSession(seedSession)
	require.NoError(t, err)
	f.log.rows[len(f.log.rows)-1].Metadata = raw

	result, err := f.engine.HandleInbound(context.Background(), inboundFixture("1"))
	require.NoError(t, err)
	assert.Contains(t, result.ReplyText, "TKT-STICKY")
}

func marshalSession(m Metadata) ([]byte, error) {
	return json.Marshal(map[string]interface{}{"sop": m})
}
