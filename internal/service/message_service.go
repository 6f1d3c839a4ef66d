package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/kedaiservis/repair-service/internal/model"
	"github.com/kedaiservis/repair-service/internal/sop"
	"github.com/kedaiservis/repair-service/internal/wa"
)

// MessageService owns the append-only wa_messages log.
type MessageService struct {
	db *gorm.DB
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

var (
	_ sop.MessageLog     = (*MessageService)(nil)
	_ wa.MessageAppender = (*MessageService)(nil)
)

// Append inserts one log row. The row ID is filled in from the database.
func (s *MessageService) Append(ctx context.Context, msg *model.WaMessage) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(msg).Error
}

// LatestSessionMetadata returns the metadata blob of the newest row for the
// session, or nil when the session has no history yet.
func (s *MessageService) LatestSessionMetadata(ctx context.Context, sessionID string) ([]byte, error) {
	var msg model.WaMessage
	err := s.db.WithContext(ctx).
		Select("metadata").
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []byte(msg.Metadata), nil
}

// ListBySession returns the newest rows for a session, newest first.
func (s *MessageService) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.WaMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var items []model.WaMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// UpdateStatusByProviderID applies a delivery receipt (delivered, read) from
// the gateway to the matching outbound row. Unknown provider ids are ignored:
// the gateway also relays receipts for chats we never initiated.
func (s *MessageService) UpdateStatusByProviderID(ctx context.Context, providerMessageID string, status model.WaMessageStatus) error {
	if providerMessageID == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&model.WaMessage{}).
		Where("message_id = ? AND direction = ?", providerMessageID, model.WaDirectionOut).
		Update("status", status).Error
}
