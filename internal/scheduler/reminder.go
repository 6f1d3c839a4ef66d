package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/kedaiservis/repair-service/internal/model"
	"github.com/kedaiservis/repair-service/internal/sop"
	"github.com/kedaiservis/repair-service/internal/wa"
)

const (
	reminderContext = "ticket_awaiting_approval"
	reminderKind    = "custom"
)

// reminderBuckets are the day thresholds after which an approval reminder goes
// out. Each threshold fires at most once per ticket; when several are overdue
// at once only the largest is sent.
var reminderBuckets = []int{1, 20, 30}

// ReminderJob nudges customers whose tickets sit in awaiting_approval. It
// queues pending outbound rows for the delivery worker instead of sending
// inline, and records every send in reminder_log for dedupe.
type ReminderJob struct {
	db                 *gorm.DB
	defaultCountryCode string
	logger             zerolog.Logger
	now                func() time.Time

	cron    *cron.Cron
	running atomic.Bool
}

func NewReminderJob(db *gorm.DB, defaultCountryCode string, logger zerolog.Logger) *ReminderJob {
	return &ReminderJob{
		db:                 db,
		defaultCountryCode: defaultCountryCode,
		logger:             logger,
		now:                time.Now,
	}
}

// Start schedules the job and fires one pass immediately.
func (j *ReminderJob) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := j.Run(ctx); err != nil {
			j.logger.Error().Err(err).Msg("ticket approval reminder job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reminder job: %w", err)
	}
	j.cron = c
	c.Start()
	j.logger.Info().Str("schedule", schedule).Msg("ticket approval reminder cron started")

	go func() {
		if err := j.Run(ctx); err != nil {
			j.logger.Error().Err(err).Msg("ticket approval reminder job failed")
		}
	}()
	return nil
}

func (j *ReminderJob) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}

type awaitingTicket struct {
	TicketID      uuid.UUID
	TicketNumber  string
	CustomerID    uuid.UUID
	CustomerName  *string
	CustomerPhone string
	CreatedAt     time.Time
}

type reminderEnvelope struct {
	Stage               sop.Stage `json:"stage"`
	Context             string    `json:"context"`
	ThresholdDays       int       `json:"thresholdDays"`
	AgeInDays           int       `json:"ageInDays"`
	NormalizedRecipient string    `json:"normalizedRecipient"`
	TicketNumber        string    `json:"ticketNumber"`
}

// Run performs one reminder pass. Overlapping passes are skipped.
func (j *ReminderJob) Run(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		j.logger.Warn().Msg("skipping reminder pass: previous run still in progress")
		return nil
	}
	defer j.running.Store(false)

	now := j.now()
	oldest := now.AddDate(0, 0, -reminderBuckets[0])

	var tickets []awaitingTicket
	err := j.db.WithContext(ctx).
		Table("tickets").
		Select(`tickets.id AS ticket_id, tickets.ticket_number, tickets.customer_id,
			customers.name AS customer_name, customers.phone AS customer_phone, tickets.created_at`).
		Joins("INNER JOIN customers ON customers.id = tickets.customer_id").
		Where("tickets.status = ? AND tickets.created_at <= ?", model.TicketStatusAwaitingApproval, oldest).
		Scan(&tickets).Error
	if err != nil {
		return fmt.Errorf("list awaiting tickets: %w", err)
	}
	if len(tickets) == 0 {
		return nil
	}

	ticketIDs := make([]uuid.UUID, 0, len(tickets))
	for _, t := range tickets {
		ticketIDs = append(ticketIDs, t.TicketID)
	}

	sent, err := j.sentThresholds(ctx, ticketIDs)
	if err != nil {
		return err
	}

	for _, ticket := range tickets {
		logged := sent[ticket.TicketID]
		age := calendarDays(ticket.CreatedAt, now)
		bucket, ok := dueBucket(age, logged)
		if !ok {
			continue
		}

		normalized, err := wa.NormalizePhone(ticket.CustomerPhone, j.defaultCountryCode)
		if err != nil {
			j.logger.Warn().
				Str("ticket_id", ticket.TicketID.String()).
				Msg("skipping reminder: invalid phone number")
			continue
		}

		if err := j.queueReminder(ctx, ticket, bucket, age, normalized, now); err != nil {
			j.logger.Error().Err(err).
				Str("ticket_id", ticket.TicketID.String()).
				Msg("failed to queue awaiting approval reminder")
		}
	}
	return nil
}

func (j *ReminderJob) queueReminder(ctx context.Context, ticket awaitingTicket, bucket, age int, normalized string, now time.Time) error {
	envelope := reminderEnvelope{
		Stage:               sop.StageAwaitingApproval,
		Context:             reminderContext,
		ThresholdDays:       bucket,
		AgeInDays:           age,
		NormalizedRecipient: normalized,
		TicketNumber:        ticket.TicketNumber,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	body := reminderMessage(ticket, bucket, age)

	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ticketID := ticket.TicketID
		customerID := ticket.CustomerID
		msg := model.WaMessage{
			SessionID:  wa.SessionID(normalized),
			CustomerID: &customerID,
			TicketID:   &ticketID,
			Direction:  model.WaDirectionOut,
			Status:     model.WaMessageStatusPending,
			Body:       body,
			SentAt:     now,
			Metadata:   raw,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		msgID := msg.ID
		log := model.ReminderLog{
			TicketID:    &ticketID,
			WaMessageID: &msgID,
			Kind:        reminderKind,
			SentAt:      now,
			Metadata:    raw,
		}
		if err := tx.Create(&log).Error; err != nil {
			return err
		}

		j.logger.Info().
			Str("ticket_id", ticket.TicketID.String()).
			Int("threshold_days", bucket).
			Str("wa_message_id", msg.ID.String()).
			Msg("queued awaiting approval reminder")
		return nil
	})
}

// sentThresholds collects the per-ticket day thresholds already reminded.
func (j *ReminderJob) sentThresholds(ctx context.Context, ticketIDs []uuid.UUID) (map[uuid.UUID]map[int]bool, error) {
	var logs []model.ReminderLog
	err := j.db.WithContext(ctx).
		Where("ticket_id IN ? AND kind = ? AND metadata ->> 'context' = ?", ticketIDs, reminderKind, reminderContext).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("load reminder log: %w", err)
	}

	sent := make(map[uuid.UUID]map[int]bool)
	for _, log := range logs {
		if log.TicketID == nil {
			continue
		}
		var meta map[string]json.RawMessage
		if err := json.Unmarshal(log.Metadata, &meta); err != nil {
			continue
		}
		threshold, ok := numericField(meta, "thresholdDays")
		if !ok {
			continue
		}
		if sent[*log.TicketID] == nil {
			sent[*log.TicketID] = make(map[int]bool)
		}
		sent[*log.TicketID][threshold] = true
	}
	return sent, nil
}

func numericField(meta map[string]json.RawMessage, key string) (int, bool) {
	raw, ok := meta[key]
	if !ok {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.Atoi(s); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

// dueBucket returns the largest overdue threshold not yet reminded.
func dueBucket(age int, logged map[int]bool) (int, bool) {
	due := -1
	for _, days := range reminderBuckets {
		if age >= days && !logged[days] {
			due = days
		}
	}
	if due < 0 {
		return 0, false
	}
	return due, true
}

// calendarDays counts whole calendar days between two instants, ignoring the
// time of day.
func calendarDays(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

func reminderMessage(ticket awaitingTicket, bucket, age int) string {
	name := "there"
	if ticket.CustomerName != nil && *ticket.CustomerName != "" {
		name = *ticket.CustomerName
	}

	switch bucket {
	case 1:
		return fmt.Sprintf("Hi %s, thanks for your patience. Ticket %s has been awaiting your approval for 1 day. Please review and approve the estimate so we can continue with the repair. Reply to this message if you need any help.", name, ticket.TicketNumber)
	case 20:
		return fmt.Sprintf("Hello %s, ticket %s is still awaiting approval after %d days. We are ready to proceed once you approve the work. Let us know if you have any questions about the estimate.", name, ticket.TicketNumber, bucket)
	default:
		return fmt.Sprintf("Hi %s, this is a final reminder that ticket %s has been awaiting approval for %d days. Please approve the repair or contact us if you would like to make changes. We would love to get your device fixed as soon as possible.", name, ticket.TicketNumber, age)
	}
}
