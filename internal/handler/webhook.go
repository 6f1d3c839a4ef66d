package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kedaiservis/repair-service/internal/errs"
	"github.com/kedaiservis/repair-service/internal/model"
	"github.com/kedaiservis/repair-service/internal/service"
	"github.com/kedaiservis/repair-service/internal/sop"
	"github.com/kedaiservis/repair-service/internal/wa"
)

// WebhookHandler is the ingress for the WhatsApp gateway: inbound customer
// messages and delivery receipts.
type WebhookHandler struct {
	engine             *sop.Engine
	messages           *service.MessageService
	defaultCountryCode string
	logger             zerolog.Logger
}

func NewWebhookHandler(engine *sop.Engine, messages *service.MessageService, defaultCountryCode string, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		engine:             engine,
		messages:           messages,
		defaultCountryCode: defaultCountryCode,
		logger:             logger,
	}
}

type inboundRequest struct {
	From string `json:"from" binding:"required"`
	Text string `json:"text" binding:"required"`
}

// Inbound handles one customer message. The gateway treats any non-2xx as a
// redelivery hint, so delivery failures of the reply still return 200; only
// malformed payloads and processing errors do not.
func (h *WebhookHandler) Inbound(c *gin.Context) {
	var req inboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
		return
	}

	normalized, err := wa.NormalizePhone(req.From, h.defaultCountryCode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sender phone number"})
		return
	}

	result, err := h.engine.HandleInbound(c.Request.Context(), sop.Inbound{
		From:      req.From,
		Phone:     normalized,
		SessionID: wa.SessionID(normalized),
		Text:      req.Text,
	})
	if err != nil {
		if errors.Is(err, errs.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{"error": "ticket state changed"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to process whatsapp webhook")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process webhook"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"command":   result.Command,
		"delivered": result.Delivered,
	})
}

type gatewayEventRequest struct {
	Type      string `json:"type" binding:"required"`
	MessageID string `json:"messageId"`
	RemoteJID string `json:"remoteJid"`
	Status    string `json:"status"`
	Text      string `json:"text"`
	FromMe    bool   `json:"fromMe"`
}

// eventStatuses maps gateway receipt types onto message-log statuses.
var eventStatuses = map[string]model.WaMessageStatus{
	"delivered": model.WaMessageStatusDelivered,
	"read":      model.WaMessageStatusRead,
	"failed":    model.WaMessageStatusFailed,
	"deleted":   model.WaMessageStatusDeleted,
}

// Event applies one gateway event. "messages.upsert" routes inbound texts into
// the conversation engine; "messages.update" and "messages.delete" adjust the
// delivery status of a logged row, as do the bare receipt types. Group chat
// events, own messages and unknown types are acknowledged without side effects.
func (h *WebhookHandler) Event(c *gin.Context) {
	var req gatewayEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
		return
	}
	if req.RemoteJID != "" && wa.ParseRemoteJID(req.RemoteJID).IsGroup {
		c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
		return
	}

	switch req.Type {
	case "messages.upsert":
		h.upsert(c, req)
		return
	case "messages.update":
		if status, ok := eventStatuses[req.Status]; ok && req.MessageID != "" {
			h.applyReceipt(c, req.MessageID, status)
			return
		}
	case "messages.delete":
		if req.MessageID != "" {
			h.applyReceipt(c, req.MessageID, model.WaMessageStatusDeleted)
			return
		}
	default:
		if status, ok := eventStatuses[req.Type]; ok && req.MessageID != "" {
			h.applyReceipt(c, req.MessageID, status)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
}

// upsert feeds a relayed inbound message into the engine. Own messages and
// empty texts are acknowledged without processing.
func (h *WebhookHandler) upsert(c *gin.Context, req gatewayEventRequest) {
	if req.FromMe || req.Text == "" || req.RemoteJID == "" {
		c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
		return
	}
	phone := wa.ParseRemoteJID(req.RemoteJID).PhoneNumber
	normalized, err := wa.NormalizePhone(phone, h.defaultCountryCode)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
		return
	}

	result, err := h.engine.HandleInbound(c.Request.Context(), sop.Inbound{
		From:      phone,
		Phone:     normalized,
		SessionID: wa.SessionID(normalized),
		Text:      req.Text,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to process relayed message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"command":   result.Command,
		"delivered": result.Delivered,
	})
}

func (h *WebhookHandler) applyReceipt(c *gin.Context, messageID string, status model.WaMessageStatus) {
	if err := h.messages.UpdateStatusByProviderID(c.Request.Context(), messageID, status); err != nil {
		h.logger.Error().Err(err).Str("message_id", messageID).Msg("failed to apply delivery receipt")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply event"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Session returns recent log rows for one session, for support staff.
func (h *WebhookHandler) Session(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		limit = atoiOrZero(v)
	}
	items, err := h.messages.ListBySession(c.Request.Context(), sessionID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": items, "total": len(items)})
}
