package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/keyforge/backend/internal/models"
	"github.com/keyforge/backend/internal/queue"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ReminderMessage is the queued payload for one renewal reminder
type ReminderMessage struct {
	KeyID         uint      `json:"key_id"`
	Key           string    `json:"key"`
	ProductID     uint      `json:"product_id"`
	ProductName   string    `json:"product_name"`
	CustomerEmail string    `json:"customer_email"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Notifier is the injected delivery capability. Actual transport
// (email, webhook) lives outside this engine.
type Notifier interface {
	RenewalReminder(ctx context.Context, msg ReminderMessage) error
}

// LogNotifier records reminders to the log instead of delivering them.
// The default when no delivery integration is configured.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) RenewalReminder(_ context.Context, msg ReminderMessage) error {
	n.Logger.Info().
		Str("key", msg.Key).
		Str("email", msg.CustomerEmail).
		Time("expires_at", msg.ExpiresAt).
		Msg("renewal reminder due")
	return nil
}

// ReminderService periodically sweeps overdue keys to expired, queues
// renewal reminders for keys entering the lead window, and drains the
// queue through the notifier at a bounded rate per tick.
type ReminderService struct {
	db       *gorm.DB
	licenses *LicenseService
	queue    queue.Queue
	notifier Notifier
	logger   zerolog.Logger

	interval  time.Duration
	leadDays  int
	batchSize int

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewReminderService(db *gorm.DB, licenses *LicenseService, q queue.Queue, notifier Notifier,
	logger zerolog.Logger, interval time.Duration, leadDays, batchSize int) *ReminderService {
	return &ReminderService{
		db:        db,
		licenses:  licenses,
		queue:     q,
		notifier:  notifier,
		logger:    logger.With().Str("component", "ReminderService").Logger(),
		interval:  interval,
		leadDays:  leadDays,
		batchSize: batchSize,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the background loop
func (s *ReminderService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info().Dur("interval", s.interval).Msg("reminder service started")

		// Run immediately on start
		s.tick()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-s.stopChan:
				s.logger.Info().Msg("reminder service stopped")
				return
			}
		}
	}()
}

// Stop stops the service and waits for the loop to exit
func (s *ReminderService) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *ReminderService) tick() {
	if _, err := s.licenses.ExpireOverdue(); err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
	}
	if err := s.EnqueueDue(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("reminder enqueue failed")
	}
	if _, err := s.DrainBatch(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("reminder drain failed")
	}
}

// EnqueueDue finds active, non-superseded keys whose expiration falls
// inside the lead window and queues one reminder each.
func (s *ReminderService) EnqueueDue(ctx context.Context) error {
	now := time.Now().UTC()
	horizon := now.AddDate(0, 0, s.leadDays)

	var keys []models.LicenseKey
	err := s.db.Preload("Product").
		Where("status = ? AND superseded = ? AND reminder_sent_at IS NULL", models.KeyStatusActive, false).
		Where("expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ?", now, horizon).
		Find(&keys).Error
	if err != nil {
		return fmt.Errorf("load expiring keys: %w", err)
	}

	for i := range keys {
		key := &keys[i]
		msg, err := queue.NewMessage("renewal.reminder", ReminderMessage{
			KeyID:         key.ID,
			Key:           key.Key,
			ProductID:     key.ProductID,
			ProductName:   key.Product.Name,
			CustomerEmail: key.CustomerEmail,
			ExpiresAt:     *key.ExpiresAt,
		})
		if err != nil {
			return fmt.Errorf("build reminder: %w", err)
		}
		if err := s.queue.Enqueue(ctx, msg); err != nil {
			return err
		}
		if err := s.db.Model(key).Update("reminder_sent_at", time.Now().UTC()).Error; err != nil {
			return fmt.Errorf("mark reminder queued: %w", err)
		}
	}
	return nil
}

// DrainBatch processes at most batchSize queued reminders. A delivery
// failure re-queues the message and stops the batch; the next tick
// retries.
func (s *ReminderService) DrainBatch(ctx context.Context) (int, error) {
	processed := 0
	for processed < s.batchSize {
		msg, err := s.queue.Dequeue(ctx)
		if err != nil {
			return processed, err
		}
		if msg == nil {
			return processed, nil
		}

		var payload ReminderMessage
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dropping malformed reminder")
			continue
		}

		if err := s.notifier.RenewalReminder(ctx, payload); err != nil {
			s.logger.Warn().Err(err).Str("key", payload.Key).Msg("reminder delivery failed, requeueing")
			if qerr := s.queue.Enqueue(ctx, msg); qerr != nil {
				return processed, qerr
			}
			return processed, nil
		}
		processed++
	}
	return processed, nil
}
