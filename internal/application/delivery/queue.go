package delivery

import (
	"context"
	"time"

	deliverydomain "github.com/contabil/fiscore/internal/domain/delivery"
	"github.com/contabil/fiscore/internal/infrastructure/messaging/kafka"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Queue management service
// ─────────────────────────────────────────────────────────────────────────────

// QueueService exposes operator-facing queue management: inspection plus the
// two manual transitions, cancel and reprocess.
type QueueService interface {
	Get(ctx context.Context, orgID common.OrgID, id common.ID) (*deliverydomain.QueueItem, error)
	List(ctx context.Context, orgID common.OrgID, status *deliverydomain.Status, page common.Pagination) ([]*deliverydomain.QueueItem, int64, error)

	// Cancel withdraws a pending notification before it is sent.
	Cancel(ctx context.Context, orgID common.OrgID, id common.ID, actor common.UserID) (*deliverydomain.QueueItem, error)

	// Reprocess resets a failed item for a fresh retry cycle.
	Reprocess(ctx context.Context, orgID common.OrgID, id common.ID, actor common.UserID) (*deliverydomain.QueueItem, error)
}

type queueService struct {
	queue     deliverydomain.QueueRepository
	publisher EventPublisher
	logger    logging.Logger
}

func NewQueueService(
	queue deliverydomain.QueueRepository,
	publisher EventPublisher,
	logger logging.Logger,
) QueueService {
	return &queueService{queue: queue, publisher: publisher, logger: logger}
}

func (s *queueService) Get(ctx context.Context, orgID common.OrgID, id common.ID) (*deliverydomain.QueueItem, error) {
	return s.queue.FindByID(ctx, orgID, id)
}

func (s *queueService) List(ctx context.Context, orgID common.OrgID, status *deliverydomain.Status, page common.Pagination) ([]*deliverydomain.QueueItem, int64, error) {
	page = page.Normalize()
	return s.queue.List(ctx, orgID, status, page)
}

func (s *queueService) Cancel(ctx context.Context, orgID common.OrgID, id common.ID, actor common.UserID) (*deliverydomain.QueueItem, error) {
	item, err := s.queue.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := item.Cancel(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.queue.Update(ctx, item); err != nil {
		return nil, err
	}

	s.logger.Info("delivery item cancelled",
		logging.String("item_id", item.ID.String()),
		logging.String("actor", string(actor)))
	s.audit(ctx, item, actor, "delivery.cancel")
	return item, nil
}

func (s *queueService) Reprocess(ctx context.Context, orgID common.OrgID, id common.ID, actor common.UserID) (*deliverydomain.QueueItem, error) {
	item, err := s.queue.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := item.Reprocess(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.queue.Update(ctx, item); err != nil {
		return nil, err
	}

	s.logger.Info("delivery item requeued",
		logging.String("item_id", item.ID.String()),
		logging.String("actor", string(actor)))
	s.audit(ctx, item, actor, "delivery.reprocess")
	return item, nil
}

func (s *queueService) audit(ctx context.Context, item *deliverydomain.QueueItem, actor common.UserID, action string) {
	payload := kafka.AuditLogPayload{
		OrgID:      string(item.OrgID),
		Actor:      string(actor),
		Action:     action,
		EntityType: "delivery_queue_item",
		EntityID:   item.ID.String(),
		Details: map[string]string{
			"document_id": item.DocumentID.String(),
			"status":      string(item.Status),
		},
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishJSON(ctx, kafka.TopicAuditLog,
		item.ID.String(), action, payload); err != nil {
		s.logger.Warn("audit publish failed",
			logging.String("item_id", item.ID.String()), logging.Err(err))
	}
}
