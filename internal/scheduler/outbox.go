package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/kedaiservis/repair-service/internal/model"
	"github.com/kedaiservis/repair-service/internal/sop"
)

// OutboxWorker drains pending outbound rows (queued by the reminder job) and
// delivers them through the gateway, marking each row sent or failed.
type OutboxWorker struct {
	db       *gorm.DB
	sender   sop.TextSender
	interval time.Duration
	batch    int
	logger   zerolog.Logger
}

func NewOutboxWorker(db *gorm.DB, sender sop.TextSender, interval time.Duration, logger zerolog.Logger) *OutboxWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &OutboxWorker{
		db:       db,
		sender:   sender,
		interval: interval,
		batch:    50,
		logger:   logger,
	}
}

// Start runs the drain loop until ctx is cancelled.
func (w *OutboxWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.DrainOnce(ctx); err != nil {
					w.logger.Error().Err(err).Msg("outbox drain failed")
				}
			}
		}
	}()
}

// DrainOnce sends one batch of pending rows, oldest first.
func (w *OutboxWorker) DrainOnce(ctx context.Context) error {
	var pending []model.WaMessage
	err := w.db.WithContext(ctx).
		Where("direction = ? AND status = ?", model.WaDirectionOut, model.WaMessageStatusPending).
		Order("created_at ASC").
		Limit(w.batch).
		Find(&pending).Error
	if err != nil {
		return fmt.Errorf("list pending messages: %w", err)
	}

	for i := range pending {
		msg := &pending[i]
		recipient := "+" + msg.SessionID

		messageID, sendErr := w.sender.SendText(ctx, recipient, msg.Body)
		changes := map[string]interface{}{"status": model.WaMessageStatusSent}
		if messageID != "" {
			changes["message_id"] = messageID
		}
		if sendErr != nil {
			w.logger.Warn().Err(sendErr).
				Str("wa_message_id", msg.ID.String()).
				Msg("failed to deliver queued message")
			changes["status"] = model.WaMessageStatusFailed
		}
		if err := w.db.WithContext(ctx).
			Model(&model.WaMessage{}).
			Where("id = ?", msg.ID).
			Updates(changes).Error; err != nil {
			return fmt.Errorf("update queued message %s: %w", msg.ID, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}
