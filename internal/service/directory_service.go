package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kedaiservis/repair-service/internal/errs"
	"github.com/kedaiservis/repair-service/internal/model"
	"github.com/kedaiservis/repair-service/internal/sop"
)

// DirectoryService is the conversation engine's read/transition port backed by
// the tickets, customers and invoices tables.
type DirectoryService struct {
	db *gorm.DB
}

func NewDirectoryService(db *gorm.DB) *DirectoryService {
	return &DirectoryService{db: db}
}

var _ sop.Directory = (*DirectoryService)(nil)

// CustomerByPhone matches the stored phone with or without the leading plus,
// since rows predating normalization kept the local form.
func (s *DirectoryService) CustomerByPhone(ctx context.Context, phone string) (*sop.CustomerRef, error) {
	if phone == "" {
		return nil, nil
	}
	plain := strings.TrimPrefix(phone, "+")

	var customer model.Customer
	err := s.db.WithContext(ctx).
		Where("phone = ? OR phone = ?", phone, plain).
		First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	ref := &sop.CustomerRef{ID: customer.ID, Phone: customer.Phone}
	if customer.Name != "" {
		name := customer.Name
		ref.Name = &name
	}
	return ref, nil
}

func (s *DirectoryService) TicketContextByID(ctx context.Context, ticketID uuid.UUID) (*sop.TicketContext, error) {
	var ticket model.Ticket
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Where("id = ?", ticketID).
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.buildContext(ctx, &ticket)
}

func (s *DirectoryService) LatestTicketByStatus(ctx context.Context, customerID uuid.UUID, status model.TicketStatus) (*sop.TicketContext, error) {
	return s.latestTicket(ctx, s.db.WithContext(ctx).
		Where("customer_id = ? AND status = ?", customerID, status))
}

func (s *DirectoryService) LatestTicket(ctx context.Context, customerID uuid.UUID) (*sop.TicketContext, error) {
	return s.latestTicket(ctx, s.db.WithContext(ctx).
		Where("customer_id = ?", customerID))
}

func (s *DirectoryService) latestTicket(ctx context.Context, tx *gorm.DB) (*sop.TicketContext, error) {
	var ticket model.Ticket
	err := tx.Preload("Customer").
		Order("updated_at DESC, created_at DESC").
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.buildContext(ctx, &ticket)
}

func (s *DirectoryService) buildContext(ctx context.Context, ticket *model.Ticket) (*sop.TicketContext, error) {
	out := &sop.TicketContext{
		ID:            ticket.ID,
		TicketNumber:  ticket.TicketNumber,
		Status:        ticket.Status,
		CustomerID:    ticket.CustomerID,
		EstimatedCost: ticket.EstimatedCost,
	}
	if ticket.Customer != nil {
		out.CustomerPhone = ticket.Customer.Phone
		if ticket.Customer.Name != "" {
			name := ticket.Customer.Name
			out.CustomerName = &name
		}
	}

	var invoice model.Invoice
	err := s.db.WithContext(ctx).
		Where("ticket_id = ?", ticket.ID).
		Order("created_at DESC").
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return out, nil
		}
		return nil, err
	}

	total := invoice.Total
	status := invoice.Status
	out.Invoice = &sop.InvoiceContext{
		ID:     invoice.ID,
		Number: invoice.Number,
		Total:  &total,
		Status: &status,
	}
	return out, nil
}

// TransitionTicket applies a guarded status change. The WHERE clause carries
// the expected current status, so a concurrent writer makes this a no-op
// reported as changed=false rather than a double transition.
func (s *DirectoryService) TransitionTicket(ctx context.Context, ticketID uuid.UUID, from, to model.TicketStatus) (bool, error) {
	if !from.CanTransition(to) && !(from == model.TicketStatusRejected && to == model.TicketStatusApproved) {
		return false, errs.ErrInvalidTransition
	}

	result := s.db.WithContext(ctx).
		Model(&model.Ticket{}).
		Where("id = ? AND status = ?", ticketID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
