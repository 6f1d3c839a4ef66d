package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kedaiservis/repair-service/internal/errs"
	"github.com/kedaiservis/repair-service/internal/model"
	"github.com/kedaiservis/repair-service/internal/service"
)

type TicketHandler struct {
	svc      *service.TicketService
	invoices *service.InvoiceService
}

func NewTicketHandler(svc *service.TicketService, invoices *service.InvoiceService) *TicketHandler {
	return &TicketHandler{svc: svc, invoices: invoices}
}

type intakeRequest struct {
	Customer struct {
		Name    string  `json:"name" binding:"required,min=2"`
		Phone   string  `json:"phone" binding:"required,min=6"`
		Email   *string `json:"email"`
		Company *string `json:"company"`
		Notes   *string `json:"notes"`
	} `json:"customer" binding:"required"`
	Device struct {
		Type         string  `json:"type" binding:"required"`
		Brand        *string `json:"brand"`
		Model        string  `json:"model" binding:"required"`
		SerialNumber *string `json:"serial_number"`
	} `json:"device" binding:"required"`
	ProblemDescription string   `json:"problem_description" binding:"required,min=10"`
	Priority           string   `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	EstimatedCost      *float64 `json:"estimated_cost" binding:"omitempty,gte=0"`
}

func (h *TicketHandler) Intake(c *gin.Context) {
	var req intakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	in := service.IntakeInput{
		ProblemDescription: req.ProblemDescription,
		Priority:           req.Priority,
		EstimatedCost:      req.EstimatedCost,
	}
	in.Customer.Name = req.Customer.Name
	in.Customer.Phone = req.Customer.Phone
	in.Customer.Email = req.Customer.Email
	in.Customer.Company = req.Customer.Company
	in.Customer.Notes = req.Customer.Notes
	in.Device.Type = req.Device.Type
	in.Device.Brand = req.Device.Brand
	in.Device.Model = req.Device.Model
	in.Device.SerialNumber = req.Device.SerialNumber

	ticket, err := h.svc.Intake(c.Request.Context(), in)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create ticket"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticket": ticket})
}

func (h *TicketHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	t, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) List(c *gin.Context) {
	filter := make(map[string]interface{})
	if v := c.Query("customer_id"); v != "" {
		filter["customer_id = ?"] = v
	}
	if v := c.Query("status"); v != "" {
		filter["status = ?"] = v
	}
	if v := c.Query("priority"); v != "" {
		filter["priority = ?"] = v
	}

	limit := atoiOrZero(c.Query("limit"))
	offset := atoiOrZero(c.Query("offset"))

	items, total, err := h.svc.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": items,
		"total":   total,
	})
}

type diagnoseRequest struct {
	Summary            string   `json:"summary" binding:"required,min=5"`
	Findings           *string  `json:"findings"`
	RecommendedActions *string  `json:"recommended_actions"`
	EstimatedCost      *float64 `json:"estimated_cost" binding:"omitempty,gte=0"`
	Approved           *bool    `json:"approved"`
	ApprovedBy         *string  `json:"approved_by"`
	ApprovalNotes      *string  `json:"approval_notes"`
}

func (h *TicketHandler) Diagnose(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req diagnoseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	diagnostic, status, err := h.svc.Diagnose(c.Request.Context(), id, service.DiagnoseInput{
		Summary:            req.Summary,
		Findings:           req.Findings,
		RecommendedActions: req.RecommendedActions,
		EstimatedCost:      req.EstimatedCost,
		Approved:           req.Approved,
		ApprovedBy:         req.ApprovedBy,
		ApprovalNotes:      req.ApprovalNotes,
	})
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"diagnostic": diagnostic, "status": status})
}

type updateRequest struct {
	UpdateType  string   `json:"update_type" binding:"required,min=2"`
	Description string   `json:"description" binding:"required,min=4"`
	ImageURL    *string  `json:"image_url" binding:"omitempty,url"`
	Status      *string  `json:"status"`
	ActualCost  *float64 `json:"actual_cost" binding:"omitempty,gte=0"`
	Notify      *bool    `json:"notify"`
}

func (h *TicketHandler) AddUpdate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	in := service.UpdateInput{
		UpdateType:  req.UpdateType,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		ActualCost:  req.ActualCost,
		Notify:      req.Notify == nil || *req.Notify,
	}
	if req.Status != nil {
		status := model.TicketStatus(*req.Status)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		in.Status = &status
	}

	update, err := h.svc.AddUpdate(c.Request.Context(), id, in)
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"update": update})
}

type pickupRequest struct {
	Status        string  `json:"status" binding:"omitempty,oneof=done picked_up"`
	Message       *string `json:"message"`
	InvoiceID     *string `json:"invoice_id" binding:"omitempty,uuid"`
	PaymentStatus *string `json:"payment_status" binding:"omitempty,oneof=draft sent paid void"`
	Notify        *bool   `json:"notify"`
}

func (h *TicketHandler) Pickup(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req pickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	in := service.PickupInput{
		Status:  model.TicketStatusDone,
		Message: req.Message,
		Notify:  req.Notify == nil || *req.Notify,
	}
	if req.Status != "" {
		in.Status = model.TicketStatus(req.Status)
	}
	if req.InvoiceID != nil {
		invoiceID, err := uuid.Parse(*req.InvoiceID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
			return
		}
		in.InvoiceID = &invoiceID
	}
	if req.PaymentStatus != nil {
		status := model.InvoiceStatus(*req.PaymentStatus)
		in.PaymentStatus = &status
	}

	status, err := h.svc.Pickup(c.Request.Context(), id, in)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrTicketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		case errors.Is(err, errs.ErrInvoiceNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invoice does not belong to ticket"})
		case errors.Is(err, errs.ErrInvalidTransition):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

type createInvoiceRequest struct {
	Subtotal float64  `json:"subtotal" binding:"required,gte=0"`
	TaxRate  *float64 `json:"tax_rate" binding:"omitempty,gte=0"`
}

func (h *TicketHandler) CreateInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	invoice, err := h.invoices.Create(c.Request.Context(), service.CreateInput{
		TicketID: id,
		Subtotal: req.Subtotal,
		TaxRate:  req.TaxRate,
	})
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create invoice"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invoice": invoice})
}

func atoiOrZero(v string) int {
	if v == "" {
		return 0
	}
	if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
		return parsed
	}
	return 0
}
