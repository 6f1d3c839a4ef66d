package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type TicketStatus string

const (
	TicketStatusIntake           TicketStatus = "intake"
	TicketStatusDiagnosed        TicketStatus = "diagnosed"
	TicketStatusAwaitingApproval TicketStatus = "awaiting_approval"
	TicketStatusApproved         TicketStatus = "approved"
	TicketStatusRejected         TicketStatus = "rejected"
	TicketStatusRepairing        TicketStatus = "repairing"
	TicketStatusDone             TicketStatus = "done"
	TicketStatusPickedUp         TicketStatus = "picked_up"
)

// TicketStatuses lists every lifecycle state in order.
var TicketStatuses = []TicketStatus{
	TicketStatusIntake,
	TicketStatusDiagnosed,
	TicketStatusAwaitingApproval,
	TicketStatusApproved,
	TicketStatusRejected,
	TicketStatusRepairing,
	TicketStatusDone,
	TicketStatusPickedUp,
}

// ticketTransitions is the lifecycle graph. Forward edges only; the
// rejected -> awaiting_approval edge is gated separately by business policy.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusIntake:           {TicketStatusDiagnosed},
	TicketStatusDiagnosed:        {TicketStatusAwaitingApproval},
	TicketStatusAwaitingApproval: {TicketStatusApproved, TicketStatusRejected},
	TicketStatusApproved:         {TicketStatusRepairing, TicketStatusDone},
	TicketStatusRepairing:        {TicketStatusDone},
	TicketStatusDone:             {TicketStatusPickedUp},
	TicketStatusRejected:         {},
	TicketStatusPickedUp:         {},
}

// Valid reports whether s is a known lifecycle state.
func (s TicketStatus) Valid() bool {
	_, ok := ticketTransitions[s]
	return ok
}

// CanTransition reports whether next is reachable from s in one step.
func (s TicketStatus) CanTransition(next TicketStatus) bool {
	for _, t := range ticketTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "draft"
	InvoiceStatusSent  InvoiceStatus = "sent"
	InvoiceStatusPaid  InvoiceStatus = "paid"
	InvoiceStatusVoid  InvoiceStatus = "void"
)

type WaDirection string

const (
	WaDirectionIn  WaDirection = "in"
	WaDirectionOut WaDirection = "out"
)

type WaMessageStatus string

const (
	WaMessageStatusPending   WaMessageStatus = "pending"
	WaMessageStatusSent      WaMessageStatus = "sent"
	WaMessageStatusDelivered WaMessageStatus = "delivered"
	WaMessageStatusRead      WaMessageStatus = "read"
	WaMessageStatusFailed    WaMessageStatus = "failed"
	WaMessageStatusReceived  WaMessageStatus = "received"
	WaMessageStatusDeleted   WaMessageStatus = "deleted"
)

type Customer struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name    string    `gorm:"type:varchar(120);not null" json:"name"`
	Phone   string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"phone"`
	Email   *string   `gorm:"type:varchar(120)" json:"email,omitempty"`
	Company *string   `gorm:"type:varchar(120)" json:"company,omitempty"`
	Notes   *string   `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Ticket struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TicketNumber string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"ticket_number"`
	CustomerID   uuid.UUID `gorm:"type:uuid;index;not null" json:"customer_id"`
	Customer     *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`

	DeviceBrand  *string `gorm:"type:varchar(100)" json:"device_brand,omitempty"`
	DeviceModel  *string `gorm:"type:varchar(120)" json:"device_model,omitempty"`
	DeviceType   *string `gorm:"type:varchar(80)" json:"device_type,omitempty"`
	SerialNumber *string `gorm:"type:varchar(60)" json:"serial_number,omitempty"`

	ProblemDescription string       `gorm:"type:text;not null" json:"problem_description"`
	Status             TicketStatus `gorm:"type:varchar(20);index;not null;default:intake" json:"status"`
	Priority           string       `gorm:"type:varchar(20);not null;default:normal" json:"priority"`
	EstimatedCost      *float64     `gorm:"type:numeric(10,2)" json:"estimated_cost,omitempty"`
	ActualCost         *float64     `gorm:"type:numeric(10,2)" json:"actual_cost,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

type Diagnostic struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TicketID uuid.UUID `gorm:"type:uuid;index;not null" json:"ticket_id"`

	Summary            string   `gorm:"type:text;not null" json:"summary"`
	Findings           *string  `gorm:"type:text" json:"findings,omitempty"`
	RecommendedActions *string  `gorm:"type:text" json:"recommended_actions,omitempty"`
	EstimatedCost      *float64 `gorm:"type:numeric(10,2)" json:"estimated_cost,omitempty"`

	Approved   bool       `gorm:"not null;default:false" json:"approved"`
	ApprovedBy *string    `gorm:"type:varchar(120)" json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Invoice struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Number     string     `gorm:"column:invoice_number;type:varchar(40);uniqueIndex;not null" json:"number"`
	CustomerID uuid.UUID  `gorm:"type:uuid;index;not null" json:"customer_id"`
	TicketID   *uuid.UUID `gorm:"type:uuid;index" json:"ticket_id,omitempty"`

	Status     InvoiceStatus `gorm:"type:varchar(20);not null;default:draft" json:"status"`
	NumberYear int           `gorm:"not null;uniqueIndex:invoices_number_year_sequence_unique" json:"number_year"`
	Sequence   int           `gorm:"not null;uniqueIndex:invoices_number_year_sequence_unique" json:"sequence"`

	Subtotal   float64  `gorm:"type:numeric(12,2);not null;default:0" json:"subtotal"`
	TaxRate    float64  `gorm:"type:numeric(5,2);not null;default:6.00" json:"tax_rate"`
	TaxAmount  float64  `gorm:"type:numeric(12,2);not null;default:0" json:"tax_amount"`
	Total      float64  `gorm:"type:numeric(12,2);not null;default:0" json:"total"`
	PaidAmount float64  `gorm:"type:numeric(12,2);not null;default:0" json:"paid_amount"`
	Balance    *float64 `gorm:"type:numeric(12,2)" json:"balance,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TicketUpdate struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TicketID   uuid.UUID `gorm:"type:uuid;index;not null" json:"ticket_id"`
	UpdateType string    `gorm:"type:varchar(50);not null" json:"update_type"`
	Description *string  `gorm:"type:text" json:"description,omitempty"`
	ImageURL    *string  `gorm:"type:text" json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// WaMessage is one row of the append-only WhatsApp message log. The log doubles
// as the conversation session store: the SOP snapshot for a session is the
// metadata of the most recently inserted row for that session id.
type WaMessage struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CustomerID *uuid.UUID `gorm:"type:uuid;index" json:"customer_id,omitempty"`
	TicketID   *uuid.UUID `gorm:"type:uuid;index" json:"ticket_id,omitempty"`

	SessionID string  `gorm:"type:varchar(100);index;not null" json:"session_id"`
	MessageID *string `gorm:"type:varchar(100);index" json:"message_id,omitempty"`

	Direction WaDirection     `gorm:"type:varchar(10);not null" json:"direction"`
	Status    WaMessageStatus `gorm:"type:varchar(20);not null;default:pending" json:"status"`
	Body      string          `gorm:"column:message_content;type:text;not null" json:"body"`

	SentAt    time.Time      `gorm:"column:timestamp;not null" json:"sent_at"`
	Metadata  datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

type ReminderLog struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TicketID    *uuid.UUID `gorm:"type:uuid;index" json:"ticket_id,omitempty"`
	WaMessageID *uuid.UUID `gorm:"type:uuid" json:"wa_message_id,omitempty"`

	Kind      string         `gorm:"type:varchar(20);not null" json:"kind"`
	SentAt    time.Time      `gorm:"not null" json:"sent_at"`
	Metadata  datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (WaMessage) TableName() string   { return "wa_messages" }
func (ReminderLog) TableName() string { return "reminder_log" }
