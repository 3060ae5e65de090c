package intake

import (
	"context"
	"fmt"

	"github.com/contabil/fiscore/internal/domain/intake"
	"github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/database/redis"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

// legacyFiscalCodes maps revenue codes that no longer appear verbatim in
// the obligation catalog to a name fragment the catalog does carry.
var legacyFiscalCodes = map[string]string{
	"0190": "Carnê Leão",
	"0211": "Carnê Leão",
	"1007": "GPS",
	"1104": "GPS",
	"6015": "IRPF",
}

// MatcherService resolves extracted identifiers to catalog records.
// "Not found" is an answer, not an error: both match results carry a
// Found flag and a human-readable reason.
type MatcherService interface {
	// MatchClient resolves a raw taxpayer identifier to an active client.
	MatchClient(ctx context.Context, orgID common.OrgID, kind obligation.IdentifierKind, rawIdentifier string) intake.ClientMatch

	// MatchObligation resolves a fiscal code to a catalog obligation,
	// falling back to the legacy code table when no exact code matches.
	MatchObligation(ctx context.Context, orgID common.OrgID, fiscalCode string) intake.ObligationMatch
}

type matcherServiceImpl struct {
	clientRepo  obligation.ClientRepository
	catalogRepo obligation.CatalogRepository
	cache       *redis.Cache
	metrics     *prometheus.AppMetrics
	logger      logging.Logger
}

// NewMatcherService constructs a MatcherService.  The cache is optional;
// pass nil to skip memoization.
func NewMatcherService(
	clientRepo obligation.ClientRepository,
	catalogRepo obligation.CatalogRepository,
	cache *redis.Cache,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) MatcherService {
	return &matcherServiceImpl{
		clientRepo:  clientRepo,
		catalogRepo: catalogRepo,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
	}
}

func (s *matcherServiceImpl) MatchClient(ctx context.Context, orgID common.OrgID, kind obligation.IdentifierKind, rawIdentifier string) intake.ClientMatch {
	identifier := obligation.NormalizeIdentifier(rawIdentifier)
	if identifier == "" {
		s.metrics.MatchesTotal.WithLabelValues("client", "not_found").Inc()
		return intake.ClientMatch{Found: false, Reason: "no identifier extracted"}
	}

	cacheKey := fmt.Sprintf("match:client:%s:%s:%s", orgID, kind, identifier)
	var cached intake.ClientMatch
	if s.cacheGet(ctx, cacheKey, &cached) {
		return cached
	}

	client, err := s.clientRepo.FindByIdentifier(ctx, orgID, kind, identifier)
	if err != nil {
		if !errors.IsCode(err, errors.ErrCodeClientNotFound) {
			// Lookup failure must not be cached as a definitive miss.
			s.logger.Warn("client lookup failed",
				logging.String("identifier_kind", string(kind)),
				logging.Err(err))
			return intake.ClientMatch{Found: false, Reason: "client lookup unavailable"}
		}
		match := intake.ClientMatch{
			Found:  false,
			Reason: fmt.Sprintf("no active client with %s %s", kind, rawIdentifier),
		}
		s.metrics.MatchesTotal.WithLabelValues("client", "not_found").Inc()
		s.cacheSet(ctx, cacheKey, match)
		return match
	}

	match := intake.ClientMatch{
		Found:      true,
		ClientID:   string(client.ID),
		ClientName: client.Name,
		ClientCode: client.Code,
	}
	s.metrics.MatchesTotal.WithLabelValues("client", "found").Inc()
	s.cacheSet(ctx, cacheKey, match)
	return match
}

func (s *matcherServiceImpl) MatchObligation(ctx context.Context, orgID common.OrgID, fiscalCode string) intake.ObligationMatch {
	if fiscalCode == "" {
		s.metrics.MatchesTotal.WithLabelValues("obligation", "not_found").Inc()
		return intake.ObligationMatch{Found: false, Reason: "no fiscal code extracted"}
	}

	cacheKey := fmt.Sprintf("match:obligation:%s:%s", orgID, fiscalCode)
	var cached intake.ObligationMatch
	if s.cacheGet(ctx, cacheKey, &cached) {
		return cached
	}

	o, err := s.catalogRepo.FindByFiscalCode(ctx, orgID, fiscalCode)
	if err != nil && errors.IsCode(err, errors.ErrCodeObligationNotFound) {
		if fragment, ok := legacyFiscalCodes[fiscalCode]; ok {
			o, err = s.catalogRepo.FindByNameSubstring(ctx, orgID, fragment)
		}
	}
	if err != nil {
		if !errors.IsCode(err, errors.ErrCodeObligationNotFound) {
			s.logger.Warn("obligation lookup failed",
				logging.String("fiscal_code", fiscalCode),
				logging.Err(err))
			return intake.ObligationMatch{Found: false, Reason: "obligation lookup unavailable"}
		}
		match := intake.ObligationMatch{
			Found:  false,
			Reason: fmt.Sprintf("no obligation with fiscal code %s", fiscalCode),
		}
		s.metrics.MatchesTotal.WithLabelValues("obligation", "not_found").Inc()
		s.cacheSet(ctx, cacheKey, match)
		return match
	}

	match := intake.ObligationMatch{
		Found:          true,
		ObligationID:   string(o.ID),
		ObligationName: o.Name,
	}
	s.metrics.MatchesTotal.WithLabelValues("obligation", "found").Inc()
	s.cacheSet(ctx, cacheKey, match)
	return match
}

func (s *matcherServiceImpl) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.GetJSON(ctx, key, dest)
	if err == nil {
		return true
	}
	if err != redis.ErrCacheMiss {
		s.logger.Debug("match cache read failed", logging.Err(err))
	}
	return false
}

func (s *matcherServiceImpl) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, key, value); err != nil {
		s.logger.Debug("match cache write failed", logging.Err(err))
	}
}
