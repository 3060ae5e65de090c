package obligation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/types/common"
)

func TestSweepStatuses_PromotesDriftedBuckets(t *testing.T) {
	instances := newFakeInstanceRepo()
	svc := NewSweepService(instances, testMetrics(), logging.NewNopLogger())
	ctx := context.Background()

	now := time.Now().UTC()

	// Cached as pending but the target is now inside the 48h window.
	drifted := seedInstance(t, instances, common.NewID(), common.NewID(), "03/2025",
		now.Add(72*time.Hour), now.Add(24*time.Hour))
	instances.mu.Lock()
	instances.instances[drifted.ID].Status = domain.StatusPending
	instances.mu.Unlock()

	// Cached correctly; the sweep must leave it alone.
	fresh := seedInstance(t, instances, common.NewID(), common.NewID(), "04/2025",
		now.Add(30*24*time.Hour), now.Add(20*24*time.Hour))

	updated, err := svc.SweepStatuses(ctx, testOrg)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	stored, err := instances.FindByID(ctx, testOrg, drifted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDue48h, stored.Status)

	untouched, err := instances.FindByID(ctx, testOrg, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, untouched.Status)
}

func TestSweepStatuses_SkipsCompletedInstances(t *testing.T) {
	instances := newFakeInstanceRepo()
	svc := NewSweepService(instances, testMetrics(), logging.NewNopLogger())
	ctx := context.Background()

	now := time.Now().UTC()
	inst := seedInstance(t, instances, common.NewID(), common.NewID(), "03/2025",
		now.Add(72*time.Hour), now.Add(24*time.Hour))

	instances.mu.Lock()
	completedAt := now.Add(-time.Hour)
	stored := instances.instances[inst.ID]
	stored.CompletedAt = &completedAt
	stored.Status = domain.StatusOnTimeDone
	instances.mu.Unlock()

	updated, err := svc.SweepStatuses(ctx, testOrg)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestSweepStatuses_EmptyOrg(t *testing.T) {
	svc := NewSweepService(newFakeInstanceRepo(), testMetrics(), logging.NewNopLogger())

	updated, err := svc.SweepStatuses(context.Background(), testOrg)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}
