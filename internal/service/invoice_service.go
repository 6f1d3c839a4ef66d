package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kedaiservis/repair-service/internal/errs"
	"github.com/kedaiservis/repair-service/internal/model"
)

// InvoiceService allocates sequential invoice numbers and tracks payment
// status.
type InvoiceService struct {
	db *gorm.DB
}

func NewInvoiceService(db *gorm.DB) *InvoiceService {
	return &InvoiceService{db: db}
}

// CreateInput opens an invoice for a ticket. TaxRate is a percentage; the
// default is the Malaysian service tax.
type CreateInput struct {
	TicketID uuid.UUID
	Subtotal float64
	TaxRate  *float64
}

func (s *InvoiceService) Create(ctx context.Context, in CreateInput) (*model.Invoice, error) {
	var ticket model.Ticket
	err := s.db.WithContext(ctx).Where("id = ?", in.TicketID).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}

	taxRate := 6.0
	if in.TaxRate != nil {
		taxRate = *in.TaxRate
	}
	taxAmount := roundCents(in.Subtotal * taxRate / 100)
	total := roundCents(in.Subtotal + taxAmount)

	var invoice model.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		year := time.Now().Year()
		number, sequence, err := nextInvoiceNumber(tx, year)
		if err != nil {
			return err
		}
		ticketID := in.TicketID
		invoice = model.Invoice{
			Number:     number,
			NumberYear: year,
			Sequence:   sequence,
			CustomerID: ticket.CustomerID,
			TicketID:   &ticketID,
			Status:     model.InvoiceStatusDraft,
			Subtotal:   in.Subtotal,
			TaxRate:    taxRate,
			TaxAmount:  taxAmount,
			Total:      total,
		}
		return tx.Create(&invoice).Error
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *InvoiceService) GetByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// MarkStatus moves an invoice through its payment lifecycle.
func (s *InvoiceService) MarkStatus(ctx context.Context, id uuid.UUID, status model.InvoiceStatus) (*model.Invoice, error) {
	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(invoice).Update("status", status).Error; err != nil {
		return nil, err
	}
	invoice.Status = status
	return invoice, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
