package obligation

import (
	"context"
	"time"

	domain "github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
	"github.com/contabil/fiscore/pkg/types/common"
)

// SweepService keeps the persisted status cache aligned with the
// time-derived buckets so list filters stay accurate between reads.
type SweepService interface {
	// SweepStatuses rewrites the cached status of every open instance
	// whose bucket has drifted.  Returns the number of rows updated.
	SweepStatuses(ctx context.Context, orgID common.OrgID) (int, error)
}

type sweepServiceImpl struct {
	instanceRepo domain.InstanceRepository
	metrics      *prometheus.AppMetrics
	logger       logging.Logger
}

// NewSweepService constructs a SweepService.
func NewSweepService(instanceRepo domain.InstanceRepository, metrics *prometheus.AppMetrics, logger logging.Logger) SweepService {
	return &sweepServiceImpl{instanceRepo: instanceRepo, metrics: metrics, logger: logger}
}

func (s *sweepServiceImpl) SweepStatuses(ctx context.Context, orgID common.OrgID) (int, error) {
	now := time.Now().UTC()
	instances, err := s.instanceRepo.FindOpenForSweep(ctx, orgID, now)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, inst := range instances {
		if !inst.RefreshStatus(now) {
			continue
		}
		if err := s.instanceRepo.Update(ctx, inst); err != nil {
			s.logger.Warn("sweep failed to update instance",
				logging.String("instance_id", string(inst.ID)),
				logging.Err(err))
			continue
		}
		updated++
		s.metrics.SweepUpdatesTotal.WithLabelValues().Inc()
	}

	if updated > 0 {
		s.logger.Info("status sweep finished",
			logging.String("org_id", string(orgID)),
			logging.Int("candidates", len(instances)),
			logging.Int("updated", updated))
	}
	return updated, nil
}
