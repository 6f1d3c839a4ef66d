package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/kedaiservis/repair-service/internal/errs"
	"github.com/kedaiservis/repair-service/internal/model"
	"github.com/kedaiservis/repair-service/internal/sop"
	"github.com/kedaiservis/repair-service/internal/wa"
)

// WorkflowNotifier pushes staff-triggered ticket notifications to the
// customer. Implemented by wa.Notifier.
type WorkflowNotifier interface {
	Notify(ctx context.Context, msg wa.WorkflowMessage) error
}

// TicketService implements the staff-side ticket workflows: intake, diagnosis,
// progress updates and pickup. Every workflow step notifies the customer over
// WhatsApp; notification failures are recorded in the message log and never
// fail the staff operation.
type TicketService struct {
	db        *gorm.DB
	notifier  WorkflowNotifier
	formatter *sop.Formatter
	logger    zerolog.Logger
}

func NewTicketService(db *gorm.DB, notifier WorkflowNotifier, formatter *sop.Formatter, logger zerolog.Logger) *TicketService {
	return &TicketService{db: db, notifier: notifier, formatter: formatter, logger: logger}
}

func (s *TicketService) GetByID(ctx context.Context, id uuid.UUID) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).Preload("Customer").Where("id = ?", id).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *TicketService) List(ctx context.Context, filter map[string]interface{}, limit, offset int) ([]model.Ticket, int64, error) {
	var items []model.Ticket
	var total int64
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	for k, v := range filter {
		tx = tx.Where(k, v)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	if err := tx.Preload("Customer").Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// IntakeInput registers a device drop-off.
type IntakeInput struct {
	Customer struct {
		Name    string
		Phone   string
		Email   *string
		Company *string
		Notes   *string
	}
	Device struct {
		Type         string
		Brand        *string
		Model        string
		SerialNumber *string
	}
	ProblemDescription string
	Priority           string
	EstimatedCost      *float64
}

// Intake upserts the customer by phone, opens the ticket and sends the intake
// acknowledgement.
func (s *TicketService) Intake(ctx context.Context, in IntakeInput) (*model.Ticket, error) {
	if in.Priority == "" {
		in.Priority = "normal"
	}

	var ticket model.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer model.Customer
		err := tx.Where("phone = ?", in.Customer.Phone).First(&customer).Error
		switch {
		case err == nil:
			customer.Name = in.Customer.Name
			if in.Customer.Email != nil {
				customer.Email = in.Customer.Email
			}
			if in.Customer.Company != nil {
				customer.Company = in.Customer.Company
			}
			if in.Customer.Notes != nil {
				customer.Notes = in.Customer.Notes
			}
			if err := tx.Save(&customer).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			customer = model.Customer{
				Name:    in.Customer.Name,
				Phone:   in.Customer.Phone,
				Email:   in.Customer.Email,
				Company: in.Customer.Company,
				Notes:   in.Customer.Notes,
			}
			if err := tx.Create(&customer).Error; err != nil {
				return err
			}
		default:
			return err
		}

		deviceType := in.Device.Type
		deviceModel := in.Device.Model
		ticket = model.Ticket{
			TicketNumber:       GenerateTicketNumber(time.Now()),
			CustomerID:         customer.ID,
			DeviceType:         &deviceType,
			DeviceBrand:        in.Device.Brand,
			DeviceModel:        &deviceModel,
			SerialNumber:       in.Device.SerialNumber,
			ProblemDescription: in.ProblemDescription,
			Priority:           in.Priority,
			EstimatedCost:      in.EstimatedCost,
			Status:             model.TicketStatusIntake,
		}
		if err := tx.Create(&ticket).Error; err != nil {
			return err
		}
		ticket.Customer = &customer
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, wa.WorkflowMessage{
		CustomerID: ticket.CustomerID,
		TicketID:   ticket.ID,
		Phone:      ticket.Customer.Phone,
		Stage:      sop.StageIntakeAck,
		Text: "Terima kasih " + ticket.Customer.Name + "! Tiket servis #" + ticket.TicketNumber +
			" telah diterima. Kami akan jalankan diagnosis dan hubungi anda untuk langkah seterusnya.",
	})

	return &ticket, nil
}

// DiagnoseInput records diagnosis findings. When Approved carries a value the
// staff member recorded the customer's decision in person, skipping the
// WhatsApp approval step.
type DiagnoseInput struct {
	Summary            string
	Findings           *string
	RecommendedActions *string
	EstimatedCost      *float64
	Approved           *bool
	ApprovedBy         *string
	ApprovalNotes      *string
}

func (s *TicketService) Diagnose(ctx context.Context, ticketID uuid.UUID, in DiagnoseInput) (*model.Diagnostic, model.TicketStatus, error) {
	ticket, err := s.GetByID(ctx, ticketID)
	if err != nil {
		return nil, "", err
	}

	nextStatus := model.TicketStatusAwaitingApproval
	if in.Approved != nil {
		if *in.Approved {
			nextStatus = model.TicketStatusApproved
		} else {
			nextStatus = model.TicketStatusRejected
		}
	}

	now := time.Now()
	diagnostic := model.Diagnostic{
		TicketID:           ticketID,
		Summary:            in.Summary,
		Findings:           in.Findings,
		RecommendedActions: in.RecommendedActions,
		EstimatedCost:      in.EstimatedCost,
	}
	if in.Approved != nil && *in.Approved {
		diagnostic.Approved = true
		diagnostic.ApprovedBy = in.ApprovedBy
		diagnostic.ApprovedAt = &now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&diagnostic).Error; err != nil {
			return err
		}
		changes := map[string]interface{}{
			"status":     nextStatus,
			"updated_at": now,
		}
		if in.EstimatedCost != nil {
			changes["estimated_cost"] = *in.EstimatedCost
		}
		return tx.Model(&model.Ticket{}).Where("id = ?", ticketID).Updates(changes).Error
	})
	if err != nil {
		return nil, "", err
	}

	summary := "Ringkasan diagnosis untuk tiket #" + ticket.TicketNumber + ": " + in.Summary + "."
	if cost := s.formatter.FormatCurrency(in.EstimatedCost); cost != nil {
		summary += " Anggaran kos: " + *cost + "."
	}
	if in.RecommendedActions != nil {
		summary += " Cadangan tindakan: " + *in.RecommendedActions + "."
	}

	s.notify(ctx, wa.WorkflowMessage{
		CustomerID: ticket.CustomerID,
		TicketID:   ticket.ID,
		Phone:      ticket.Customer.Phone,
		Stage:      sop.StageDiagnosisSummary,
		Text:       summary,
	})

	if in.Approved != nil {
		var decision string
		if *in.Approved {
			decision = "Kerja pembaikan untuk tiket #" + ticket.TicketNumber +
				" telah diluluskan. Kami akan mulakan servis sebaik sahaja bahagian disediakan."
		} else {
			decision = "Pembaikan untuk tiket #" + ticket.TicketNumber +
				" ditolak mengikut permintaan anda. Hubungi kami jika mahu membuat perubahan."
		}
		if in.ApprovalNotes != nil {
			decision += " " + *in.ApprovalNotes
		}
		s.notify(ctx, wa.WorkflowMessage{
			CustomerID: ticket.CustomerID,
			TicketID:   ticket.ID,
			Phone:      ticket.Customer.Phone,
			Stage:      sop.StageAwaitingApproval,
			Text:       decision,
		})
	}

	return &diagnostic, nextStatus, nil
}

// UpdateInput records a progress note, optionally moving the ticket status.
type UpdateInput struct {
	UpdateType  string
	Description string
	ImageURL    *string
	Status      *model.TicketStatus
	ActualCost  *float64
	Notify      bool
}

// statusLabel is the customer-facing Malay label for a ticket status.
func statusLabel(status model.TicketStatus) string {
	switch status {
	case model.TicketStatusDiagnosed:
		return "Diagnosis sedang dijalankan"
	case model.TicketStatusAwaitingApproval:
		return "Menunggu kelulusan pelanggan"
	case model.TicketStatusApproved:
		return "Pembaikan diluluskan"
	case model.TicketStatusRepairing:
		return "Pembaikan sedang dilakukan"
	case model.TicketStatusDone:
		return "Sedia untuk diambil"
	case model.TicketStatusPickedUp:
		return "Telah diambil"
	case model.TicketStatusRejected:
		return "Tiket ditolak"
	default:
		return "Dalam giliran servis"
	}
}

func (s *TicketService) AddUpdate(ctx context.Context, ticketID uuid.UUID, in UpdateInput) (*model.TicketUpdate, error) {
	ticket, err := s.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, errs.ErrInvalidTransition
	}

	update := model.TicketUpdate{
		TicketID:    ticketID,
		UpdateType:  in.UpdateType,
		Description: &in.Description,
		ImageURL:    in.ImageURL,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&update).Error; err != nil {
			return err
		}
		changes := map[string]interface{}{"updated_at": time.Now()}
		if in.Status != nil {
			changes["status"] = *in.Status
		}
		if in.ActualCost != nil {
			changes["actual_cost"] = *in.ActualCost
		}
		return tx.Model(&model.Ticket{}).Where("id = ?", ticketID).Updates(changes).Error
	})
	if err != nil {
		return nil, err
	}

	if in.Notify {
		text := "Status terkini tiket #" + ticket.TicketNumber + ": " + in.Description + "."
		if in.Status != nil {
			text += " Status kini: " + statusLabel(*in.Status) + "."
		}
		s.notify(ctx, wa.WorkflowMessage{
			CustomerID: ticket.CustomerID,
			TicketID:   ticket.ID,
			Phone:      ticket.Customer.Phone,
			Stage:      sop.StageRepairUpdates,
			Text:       text,
		})
	}

	return &update, nil
}

// PickupInput marks the ticket ready for pickup or collected, optionally
// settling the linked invoice.
type PickupInput struct {
	Status        model.TicketStatus // done or picked_up
	Message       *string
	InvoiceID     *uuid.UUID
	PaymentStatus *model.InvoiceStatus
	Notify        bool
}

func (s *TicketService) Pickup(ctx context.Context, ticketID uuid.UUID, in PickupInput) (model.TicketStatus, error) {
	if in.Status != model.TicketStatusDone && in.Status != model.TicketStatusPickedUp {
		return "", errs.ErrInvalidTransition
	}

	ticket, err := s.GetByID(ctx, ticketID)
	if err != nil {
		return "", err
	}

	var invoice *model.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changes := map[string]interface{}{
			"status":     in.Status,
			"updated_at": time.Now(),
		}
		if err := tx.Model(&model.Ticket{}).Where("id = ?", ticketID).Updates(changes).Error; err != nil {
			return err
		}

		if in.InvoiceID == nil {
			return nil
		}
		var record model.Invoice
		if err := tx.Where("id = ?", *in.InvoiceID).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if record.TicketID != nil && *record.TicketID != ticketID {
			return errs.ErrInvoiceNotFound
		}

		nextInvoiceStatus := model.InvoiceStatusSent
		if in.Status == model.TicketStatusPickedUp {
			nextInvoiceStatus = model.InvoiceStatusPaid
		}
		if in.PaymentStatus != nil {
			nextInvoiceStatus = *in.PaymentStatus
		}
		if err := tx.Model(&record).Update("status", nextInvoiceStatus).Error; err != nil {
			return err
		}
		record.Status = nextInvoiceStatus
		invoice = &record
		return nil
	})
	if err != nil {
		return "", err
	}

	if in.Notify {
		stage := sop.StagePickupReady
		deviceLabel := "anda"
		if ticket.DeviceBrand != nil || ticket.DeviceModel != nil {
			parts := ""
			if ticket.DeviceBrand != nil {
				parts = *ticket.DeviceBrand
			}
			if ticket.DeviceModel != nil {
				if parts != "" {
					parts += " "
				}
				parts += *ticket.DeviceModel
			}
			if parts != "" {
				deviceLabel = parts
			}
		}
		text := "Peranti " + deviceLabel + " kini sedia untuk diambil di kedai kami. Sila tunjukkan tiket #" +
			ticket.TicketNumber + " semasa pengambilan."
		if in.Status == model.TicketStatusPickedUp {
			stage = sop.StagePickupComplete
			text = "Terima kasih " + ticket.Customer.Name + "! Pembaikan untuk tiket #" + ticket.TicketNumber +
				" selesai dan telah diambil. Jumpa lagi."
		}
		if in.Message != nil {
			text = *in.Message
		}
		if invoice != nil {
			total := invoice.Total
			if formatted := s.formatter.FormatCurrency(&total); formatted != nil {
				text += " Jumlah invois " + invoice.Number + ": " + *formatted + "."
			}
			text += " Status invois: " + string(invoice.Status) + "."
		}
		s.notify(ctx, wa.WorkflowMessage{
			CustomerID: ticket.CustomerID,
			TicketID:   ticket.ID,
			Phone:      ticket.Customer.Phone,
			Stage:      stage,
			Text:       text,
		})
	}

	return in.Status, nil
}

// notify pushes a workflow message; persistence failures in the notifier are
// logged and swallowed, the staff operation already committed.
func (s *TicketService) notify(ctx context.Context, msg wa.WorkflowMessage) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Error().Err(err).
			Str("ticket_id", msg.TicketID.String()).
			Msg("failed to record workflow notification")
	}
}
