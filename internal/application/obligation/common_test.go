package obligation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	domain "github.com/contabil/fiscore/internal/domain/obligation"
	redisinfra "github.com/contabil/fiscore/internal/infrastructure/database/redis"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

const testOrg = common.OrgID("org-1")

// ─────────────────────────────────────────────────────────────────────────────
// In-memory fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeCatalogRepo struct {
	obligations map[common.ID]*domain.Obligation
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{obligations: make(map[common.ID]*domain.Obligation)}
}

func (r *fakeCatalogRepo) Save(_ context.Context, o *domain.Obligation) error {
	r.obligations[o.ID] = o
	return nil
}

func (r *fakeCatalogRepo) FindByID(_ context.Context, _ common.OrgID, id common.ID) (*domain.Obligation, error) {
	o, ok := r.obligations[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeObligationNotFound, "obligation not found")
	}
	return o, nil
}

func (r *fakeCatalogRepo) FindByFiscalCode(_ context.Context, _ common.OrgID, code string) (*domain.Obligation, error) {
	for _, o := range r.obligations {
		if o.FiscalCode == code && !o.Archived {
			return o, nil
		}
	}
	return nil, errors.New(errors.ErrCodeObligationNotFound, "obligation not found")
}

func (r *fakeCatalogRepo) FindByNameSubstring(_ context.Context, _ common.OrgID, fragment string) (*domain.Obligation, error) {
	for _, o := range r.obligations {
		if !o.Archived && containsFold(o.Name, fragment) {
			return o, nil
		}
	}
	return nil, errors.New(errors.ErrCodeObligationNotFound, "obligation not found")
}

func (r *fakeCatalogRepo) List(_ context.Context, _ common.OrgID, includeArchived bool) ([]*domain.Obligation, error) {
	var out []*domain.Obligation
	for _, o := range r.obligations {
		if o.Archived && !includeArchived {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func containsFold(haystack, needle string) bool {
	h, n := []rune(haystack), []rune(needle)
	lower := func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			if lower(h[i+j]) != lower(n[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

type fakeLinkRepo struct {
	links []*domain.ClientObligationLink
}

func (r *fakeLinkRepo) Save(_ context.Context, l *domain.ClientObligationLink) error {
	r.links = append(r.links, l)
	return nil
}

func (r *fakeLinkRepo) FindByID(_ context.Context, _ common.OrgID, id common.ID) (*domain.ClientObligationLink, error) {
	for _, l := range r.links {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound, "link not found")
}

func (r *fakeLinkRepo) FindActive(_ context.Context, _ common.OrgID) ([]*domain.ClientObligationLink, error) {
	var out []*domain.ClientObligationLink
	for _, l := range r.links {
		if l.Active {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeLinkRepo) ListByClient(_ context.Context, _ common.OrgID, clientID common.ID) ([]*domain.ClientObligationLink, error) {
	var out []*domain.ClientObligationLink
	for _, l := range r.links {
		if l.ClientID == clientID {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeInstanceRepo struct {
	mu        sync.Mutex
	instances map[common.ID]*domain.Instance
	createErr error
	updateErr error
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: make(map[common.ID]*domain.Instance)}
}

func (r *fakeInstanceRepo) Create(_ context.Context, inst *domain.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.instances {
		if existing.ClientID == inst.ClientID &&
			existing.ObligationID == inst.ObligationID &&
			existing.Competence == inst.Competence {
			return errors.New(errors.ErrCodeInstanceDuplicate, "instance already exists")
		}
	}
	copied := *inst
	r.instances[inst.ID] = &copied
	return nil
}

func (r *fakeInstanceRepo) FindByID(_ context.Context, _ common.OrgID, id common.ID) (*domain.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeInstanceNotFound, "instance not found")
	}
	copied := *inst
	return &copied, nil
}

func (r *fakeInstanceRepo) FindByKey(_ context.Context, _ common.OrgID, clientID, obligationID common.ID, competence domain.Competence) (*domain.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.ClientID == clientID && inst.ObligationID == obligationID && inst.Competence == competence {
			copied := *inst
			return &copied, nil
		}
	}
	return nil, errors.New(errors.ErrCodeInstanceNotFound, "instance not found")
}

func (r *fakeInstanceRepo) Update(_ context.Context, inst *domain.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.instances[inst.ID]; !ok {
		return errors.New(errors.ErrCodeInstanceNotFound, "instance not found")
	}
	copied := *inst
	r.instances[inst.ID] = &copied
	return nil
}

func (r *fakeInstanceRepo) List(_ context.Context, _ common.OrgID, filter domain.InstanceFilter, _ common.Pagination) ([]*domain.Instance, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Instance
	for _, inst := range r.instances {
		if filter.ClientID != nil && inst.ClientID != *filter.ClientID {
			continue
		}
		if filter.Status != nil && inst.Status != *filter.Status {
			continue
		}
		copied := *inst
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

func (r *fakeInstanceRepo) FindOpenForSweep(_ context.Context, _ common.OrgID, now time.Time) ([]*domain.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Instance
	for _, inst := range r.instances {
		if inst.CompletedAt != nil {
			continue
		}
		if inst.Status != inst.ResolveStatus(now) {
			copied := *inst
			out = append(out, &copied)
		}
	}
	return out, nil
}

type publishedEvent struct {
	Topic     string
	Key       string
	EventType string
	Payload   interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) PublishJSON(_ context.Context, topic, key, eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Key: key, EventType: eventType, Payload: payload})
	return nil
}

func (p *fakePublisher) byType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func newTestLockClient(t *testing.T) *redisinfra.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	client := redisinfra.NewClientWithBackend(rdb, "fiscore:", logging.NewNopLogger())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testMetrics() *prometheus.AppMetrics {
	return prometheus.NewAppMetrics(prometheus.NewNopCollector())
}

func monthlySchedule(t *testing.T, targetDay int) domain.Schedule {
	t.Helper()
	s := domain.Schedule{
		Frequency:        domain.FrequencyMonthly,
		InternalTargetDay: targetDay,
		LegalDueRule:     domain.LegalDueRule{Kind: domain.LegalDueLastDayOfMonth},
	}
	require.NoError(t, s.Validate())
	return s
}

func seedObligation(t *testing.T, repo *fakeCatalogRepo, name, fiscalCode string) *domain.Obligation {
	t.Helper()
	o, err := domain.NewObligation(testOrg, name, monthlySchedule(t, 15), fiscalCode)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), o))
	return o
}

func seedLink(t *testing.T, repo *fakeLinkRepo, clientID, obligationID common.ID) *domain.ClientObligationLink {
	t.Helper()
	l, err := domain.NewClientObligationLink(testOrg, clientID, obligationID, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), l))
	return l
}

func seedInstance(t *testing.T, repo *fakeInstanceRepo, clientID, obligationID common.ID, competence domain.Competence, due, target time.Time) *domain.Instance {
	t.Helper()
	inst, err := domain.NewInstance(testOrg, clientID, obligationID, competence,
		domain.Deadlines{DueAt: due, InternalTargetAt: target}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), inst))
	return inst
}
