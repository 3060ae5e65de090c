// Package delivery implements dispatch and management of the notification
// delivery queue: claiming due items, sending notifications, and applying
// the retry-with-backoff policy on failure.
package delivery

import (
	"context"
	"time"

	"github.com/contabil/fiscore/internal/config"
	deliverydomain "github.com/contabil/fiscore/internal/domain/delivery"
	"github.com/contabil/fiscore/internal/domain/intake"
	"github.com/contabil/fiscore/internal/infrastructure/messaging/kafka"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
)

// ─────────────────────────────────────────────────────────────────────────────
// Collaborator interfaces
// ─────────────────────────────────────────────────────────────────────────────

// Notifier sends one notification about a delivered document.  A returned
// error triggers the backoff/retry policy on the queue item.
type Notifier interface {
	Send(ctx context.Context, item *deliverydomain.QueueItem, doc *intake.Document) error
}

// EventPublisher is the subset of the kafka producer the notifier needs.
type EventPublisher interface {
	PublishJSON(ctx context.Context, topic, key, eventType string, payload interface{}) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Kafka notifier
// ─────────────────────────────────────────────────────────────────────────────

// KafkaNotifier publishes notification requests onto the notification topic,
// where an external dispatcher picks them up.
type KafkaNotifier struct {
	publisher EventPublisher
}

func NewKafkaNotifier(publisher EventPublisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher}
}

func (n *KafkaNotifier) Send(ctx context.Context, item *deliverydomain.QueueItem, doc *intake.Document) error {
	payload := kafka.NotificationPayload{
		DocumentID: doc.ID.String(),
		OrgID:      string(doc.OrgID),
		ClientID:   doc.ClientID.String(),
		FileName:   doc.FileName,
	}
	return n.publisher.PublishJSON(ctx, kafka.TopicNotification,
		doc.ID.String(), "notification.requested", payload)
}

// ─────────────────────────────────────────────────────────────────────────────
// Dispatcher service
// ─────────────────────────────────────────────────────────────────────────────

// DispatchReport summarises one dispatch pass over the due queue.
type DispatchReport struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
}

// DispatcherService drains due queue items.  It is driven periodically by
// the worker process.
type DispatcherService interface {
	DispatchDue(ctx context.Context) (*DispatchReport, error)
}

type dispatcherService struct {
	queue     deliverydomain.QueueRepository
	documents intake.DocumentRepository
	notifier  Notifier
	cfg       config.DeliveryConfig
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
}

func NewDispatcherService(
	queue deliverydomain.QueueRepository,
	documents intake.DocumentRepository,
	notifier Notifier,
	cfg config.DeliveryConfig,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) DispatcherService {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	return &dispatcherService{
		queue:     queue,
		documents: documents,
		notifier:  notifier,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *dispatcherService) DispatchDue(ctx context.Context) (*DispatchReport, error) {
	now := time.Now().UTC()

	due, err := s.queue.FindDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	report := &DispatchReport{}
	for _, item := range due {
		if ctx.Err() != nil {
			break
		}
		s.dispatchOne(ctx, item, report)
	}

	s.refreshQueueDepth(ctx)

	if report.Claimed > 0 {
		s.logger.Info("delivery dispatch pass finished",
			logging.Int("claimed", report.Claimed),
			logging.Int("sent", report.Sent),
			logging.Int("retried", report.Retried),
			logging.Int("failed", report.Failed))
	}
	return report, nil
}

func (s *dispatcherService) dispatchOne(ctx context.Context, item *deliverydomain.QueueItem, report *DispatchReport) {
	now := time.Now().UTC()

	if err := item.BeginAttempt(now); err != nil {
		// Concurrently claimed or cancelled between FindDue and here.
		return
	}
	if err := s.queue.Update(ctx, item); err != nil {
		s.logger.Warn("delivery claim update failed",
			logging.String("item_id", item.ID.String()), logging.Err(err))
		return
	}
	report.Claimed++

	err := s.send(ctx, item)
	now = time.Now().UTC()
	if err == nil {
		item.MarkSent(now)
		report.Sent++
		s.metrics.DeliveryAttemptsTotal.WithLabelValues("sent").Inc()
	} else {
		item.MarkFailure(err.Error(), s.cfg.InitialBackoff, s.cfg.MaxBackoff, now)
		if item.Status == deliverydomain.StatusFailed {
			report.Failed++
			s.metrics.DeliveryAttemptsTotal.WithLabelValues("failed").Inc()
			s.logger.Error("delivery attempts exhausted",
				logging.String("item_id", item.ID.String()),
				logging.String("document_id", item.DocumentID.String()),
				logging.Int("attempts", item.Attempts),
				logging.Err(err))
		} else {
			report.Retried++
			s.metrics.DeliveryAttemptsTotal.WithLabelValues("retry").Inc()
			s.logger.Warn("delivery attempt failed, will retry",
				logging.String("item_id", item.ID.String()),
				logging.Int("attempts", item.Attempts),
				logging.Err(err))
		}
	}

	if err := s.queue.Update(ctx, item); err != nil {
		s.logger.Error("delivery outcome update failed",
			logging.String("item_id", item.ID.String()), logging.Err(err))
	}
}

func (s *dispatcherService) send(ctx context.Context, item *deliverydomain.QueueItem) error {
	doc, err := s.documents.FindByID(ctx, item.OrgID, item.DocumentID)
	if err != nil {
		return err
	}
	return s.notifier.Send(ctx, item, doc)
}

func (s *dispatcherService) refreshQueueDepth(ctx context.Context) {
	for _, status := range []deliverydomain.Status{
		deliverydomain.StatusPending,
		deliverydomain.StatusProcessing,
		deliverydomain.StatusFailed,
	} {
		n, err := s.queue.CountByStatus(ctx, status)
		if err != nil {
			s.logger.Debug("queue depth count failed",
				logging.String("status", string(status)), logging.Err(err))
			continue
		}
		s.metrics.DeliveryQueueDepth.WithLabelValues(string(status)).Set(float64(n))
	}
}
