package obligation

import (
	"context"
	"fmt"
	"time"

	domain "github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/database/redis"
	"github.com/contabil/fiscore/internal/infrastructure/messaging/kafka"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

// EventPublisher is the slice of the Kafka producer the obligation
// services use.
type EventPublisher interface {
	PublishJSON(ctx context.Context, topic, key, eventType string, payload interface{}) error
}

// GenerationReport summarizes one generator run.
type GenerationReport struct {
	Competence       domain.Competence `json:"competence"`
	LinksVisited     int               `json:"links_visited"`
	InstancesCreated int               `json:"instances_created"`
	AlreadyExisting  int               `json:"already_existing"`
	Skipped          int               `json:"skipped"`
	GeneratedAt      time.Time         `json:"generated_at"`
}

// GeneratorService creates the month's obligation instances.
type GeneratorService interface {
	// GenerateForCompetence walks every active client-obligation link and
	// creates the missing instance for the given competence.  Safe to run
	// repeatedly and concurrently; existing instances are left untouched.
	GenerateForCompetence(ctx context.Context, orgID common.OrgID, competence domain.Competence) (*GenerationReport, error)
}

type generatorServiceImpl struct {
	catalogRepo  domain.CatalogRepository
	linkRepo     domain.LinkRepository
	instanceRepo domain.InstanceRepository
	locks        *redis.Client
	lockTTL      time.Duration
	publisher    EventPublisher
	metrics      *prometheus.AppMetrics
	logger       logging.Logger
}

// NewGeneratorService constructs a GeneratorService.
func NewGeneratorService(
	catalogRepo domain.CatalogRepository,
	linkRepo domain.LinkRepository,
	instanceRepo domain.InstanceRepository,
	locks *redis.Client,
	lockTTL time.Duration,
	publisher EventPublisher,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) GeneratorService {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &generatorServiceImpl{
		catalogRepo:  catalogRepo,
		linkRepo:     linkRepo,
		instanceRepo: instanceRepo,
		locks:        locks,
		lockTTL:      lockTTL,
		publisher:    publisher,
		metrics:      metrics,
		logger:       logger,
	}
}

func (s *generatorServiceImpl) GenerateForCompetence(ctx context.Context, orgID common.OrgID, competence domain.Competence) (*GenerationReport, error) {
	if err := competence.Validate(); err != nil {
		return nil, err
	}

	// One run per (org, competence) at a time.  A second caller gets a
	// conflict instead of waiting: the holder will create whatever is
	// missing.
	mutex := s.locks.NewMutex(fmt.Sprintf("generator:%s:%s", orgID, competence), s.lockTTL)
	acquired, err := mutex.TryLock(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, errors.New(errors.ErrCodeConflict, "instance generation already running for this competence")
	}
	defer func() {
		if err := mutex.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release generator lock", logging.Err(err))
		}
	}()

	links, err := s.linkRepo.FindActive(ctx, orgID)
	if err != nil {
		s.metrics.GeneratorRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// Catalog templates are shared across links; fetch each once.
	templates := make(map[common.ID]*domain.Obligation)
	now := time.Now().UTC()
	report := &GenerationReport{Competence: competence, GeneratedAt: now}

	for _, link := range links {
		report.LinksVisited++

		template, ok := templates[link.ObligationID]
		if !ok {
			template, err = s.catalogRepo.FindByID(ctx, orgID, link.ObligationID)
			if err != nil {
				s.logger.Warn("skipping link with missing obligation template",
					logging.String("link_id", string(link.ID)),
					logging.String("obligation_id", string(link.ObligationID)),
					logging.Err(err))
				report.Skipped++
				continue
			}
			templates[link.ObligationID] = template
		}
		if template.Archived {
			report.Skipped++
			continue
		}

		schedule := link.EffectiveSchedule(template.Schedule)
		deadlines, err := domain.ComputeDeadlines(schedule, competence)
		if err != nil {
			s.logger.Warn("skipping link with invalid schedule",
				logging.String("link_id", string(link.ID)),
				logging.Err(err))
			report.Skipped++
			continue
		}

		inst, err := domain.NewInstance(orgID, link.ClientID, link.ObligationID, competence, deadlines, now)
		if err != nil {
			report.Skipped++
			continue
		}

		if err := s.instanceRepo.Create(ctx, inst); err != nil {
			if errors.IsCode(err, errors.ErrCodeInstanceDuplicate) {
				report.AlreadyExisting++
				continue
			}
			s.metrics.GeneratorRunsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		report.InstancesCreated++
		s.metrics.InstancesGeneratedTotal.WithLabelValues(string(competence)).Inc()
	}

	s.metrics.GeneratorRunsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("instance generation finished",
		logging.String("org_id", string(orgID)),
		logging.String("competence", string(competence)),
		logging.Int("links_visited", report.LinksVisited),
		logging.Int("created", report.InstancesCreated),
		logging.Int("already_existing", report.AlreadyExisting),
		logging.Int("skipped", report.Skipped))

	if s.publisher != nil {
		payload := kafka.InstancesGeneratedPayload{
			OrgID:            string(orgID),
			Competence:       string(competence),
			InstancesCreated: report.InstancesCreated,
			LinksVisited:     report.LinksVisited,
			GeneratedAt:      now,
		}
		if err := s.publisher.PublishJSON(ctx, kafka.TopicInstancesGenerated, string(orgID), "instance.generated", payload); err != nil {
			s.logger.Warn("failed to publish generation event", logging.Err(err))
		}
	}

	return report, nil
}
