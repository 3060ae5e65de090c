package obligation

import (
	"context"
	"time"

	domain "github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/messaging/kafka"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
	"github.com/contabil/fiscore/pkg/types/common"
)

// CompleteRequest marks an instance done by a staff member.
type CompleteRequest struct {
	InstanceID common.ID     `json:"instance_id"`
	Notes      string        `json:"notes"`
	Actor      common.UserID `json:"actor"`
}

// InstanceService exposes the obligation-instance operations the HTTP
// layer and the document classifier call.
type InstanceService interface {
	// Get returns one instance with its status recomputed for now.
	Get(ctx context.Context, orgID common.OrgID, id common.ID) (*domain.Instance, error)

	// List returns instances matching the filter, paginated.
	List(ctx context.Context, orgID common.OrgID, filter domain.InstanceFilter, page common.Pagination) ([]*domain.Instance, int64, error)

	// Complete marks an instance done with the staff member's notes.
	Complete(ctx context.Context, orgID common.OrgID, req CompleteRequest) (*domain.Instance, error)

	// CompleteFromDocument is the cascade completion a successful
	// classification triggers.  It is a no-op when the instance is
	// already done and never fails the classification.
	CompleteFromDocument(ctx context.Context, orgID common.OrgID, clientID, obligationID common.ID, competence domain.Competence) error

	// Unmark reverses a completion, returning the instance to its
	// time-derived bucket.
	Unmark(ctx context.Context, orgID common.OrgID, id common.ID, actor common.UserID) (*domain.Instance, error)
}

type instanceServiceImpl struct {
	instanceRepo domain.InstanceRepository
	publisher    EventPublisher
	metrics      *prometheus.AppMetrics
	logger       logging.Logger
}

// NewInstanceService constructs an InstanceService.
func NewInstanceService(
	instanceRepo domain.InstanceRepository,
	publisher EventPublisher,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) InstanceService {
	return &instanceServiceImpl{
		instanceRepo: instanceRepo,
		publisher:    publisher,
		metrics:      metrics,
		logger:       logger,
	}
}

func (s *instanceServiceImpl) Get(ctx context.Context, orgID common.OrgID, id common.ID) (*domain.Instance, error) {
	inst, err := s.instanceRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	inst.RefreshStatus(time.Now().UTC())
	return inst, nil
}

func (s *instanceServiceImpl) List(ctx context.Context, orgID common.OrgID, filter domain.InstanceFilter, page common.Pagination) ([]*domain.Instance, int64, error) {
	page = page.Normalize()
	instances, total, err := s.instanceRepo.List(ctx, orgID, filter, page)
	if err != nil {
		return nil, 0, err
	}
	now := time.Now().UTC()
	for _, inst := range instances {
		inst.RefreshStatus(now)
	}
	return instances, total, nil
}

func (s *instanceServiceImpl) Complete(ctx context.Context, orgID common.OrgID, req CompleteRequest) (*domain.Instance, error) {
	inst, err := s.instanceRepo.FindByID(ctx, orgID, req.InstanceID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := inst.CompleteManually(now, req.Notes); err != nil {
		return nil, err
	}
	if err := s.instanceRepo.Update(ctx, inst); err != nil {
		return nil, err
	}

	s.metrics.CompletionsTotal.WithLabelValues(string(inst.Status), "manual").Inc()
	s.logger.Info("instance completed",
		logging.String("instance_id", string(inst.ID)),
		logging.String("status", string(inst.Status)),
		logging.String("actor", string(req.Actor)))

	s.publishCompleted(ctx, inst)
	s.audit(ctx, orgID, string(req.Actor), "instance.complete", string(inst.ID), map[string]string{
		"status": string(inst.Status),
	})
	return inst, nil
}

func (s *instanceServiceImpl) CompleteFromDocument(ctx context.Context, orgID common.OrgID, clientID, obligationID common.ID, competence domain.Competence) error {
	inst, err := s.instanceRepo.FindByKey(ctx, orgID, clientID, obligationID, competence)
	if err != nil {
		// No matching open instance is not a classification failure;
		// periods without a generated instance simply have nothing to
		// complete.
		s.logger.Debug("no instance to cascade-complete",
			logging.String("client_id", string(clientID)),
			logging.String("obligation_id", string(obligationID)),
			logging.String("competence", string(competence)))
		return nil
	}
	if inst.Status.IsDone() {
		return nil
	}

	inst.CompleteFromClassification(time.Now().UTC())
	if err := s.instanceRepo.Update(ctx, inst); err != nil {
		return err
	}

	s.metrics.CompletionsTotal.WithLabelValues(string(inst.Status), "document").Inc()
	s.logger.Info("instance completed via document classification",
		logging.String("instance_id", string(inst.ID)),
		logging.String("status", string(inst.Status)))

	s.publishCompleted(ctx, inst)
	return nil
}

func (s *instanceServiceImpl) Unmark(ctx context.Context, orgID common.OrgID, id common.ID, actor common.UserID) (*domain.Instance, error) {
	inst, err := s.instanceRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if err := inst.Unmark(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.instanceRepo.Update(ctx, inst); err != nil {
		return nil, err
	}

	s.metrics.UnmarksTotal.WithLabelValues().Inc()
	s.logger.Info("instance completion reversed",
		logging.String("instance_id", string(inst.ID)),
		logging.String("status", string(inst.Status)),
		logging.String("actor", string(actor)))

	s.audit(ctx, orgID, string(actor), "instance.unmark", string(inst.ID), map[string]string{
		"status": string(inst.Status),
	})
	return inst, nil
}

func (s *instanceServiceImpl) publishCompleted(ctx context.Context, inst *domain.Instance) {
	if s.publisher == nil || inst.CompletedAt == nil {
		return
	}
	payload := kafka.InstanceCompletedPayload{
		InstanceID:   string(inst.ID),
		OrgID:        string(inst.OrgID),
		ClientID:     string(inst.ClientID),
		ObligationID: string(inst.ObligationID),
		Competence:   string(inst.Competence),
		Status:       string(inst.Status),
		Source:       string(inst.CompletionSource),
		CompletedAt:  *inst.CompletedAt,
	}
	if err := s.publisher.PublishJSON(ctx, kafka.TopicInstanceCompleted, string(inst.OrgID), "instance.completed", payload); err != nil {
		s.logger.Warn("failed to publish completion event", logging.Err(err))
	}
}

func (s *instanceServiceImpl) audit(ctx context.Context, orgID common.OrgID, actor, action, entityID string, details map[string]string) {
	if s.publisher == nil {
		return
	}
	payload := kafka.AuditLogPayload{
		OrgID:      string(orgID),
		Actor:      actor,
		Action:     action,
		EntityType: "obligation_instance",
		EntityID:   entityID,
		Details:    details,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishJSON(ctx, kafka.TopicAuditLog, string(orgID), "audit.log", payload); err != nil {
		s.logger.Warn("failed to publish audit event", logging.Err(err))
	}
}
