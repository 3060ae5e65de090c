package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

var (
	queueNow       = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	initialBackoff = time.Minute
	maxBackoff     = time.Hour
)

func newTestItem(t *testing.T, maxAttempts int) *QueueItem {
	t.Helper()
	item, err := NewQueueItem(common.OrgID("org-1"), common.NewID(), maxAttempts, queueNow)
	require.NoError(t, err)
	return item
}

func TestNewQueueItem_DueImmediately(t *testing.T) {
	item := newTestItem(t, 5)
	assert.Equal(t, StatusPending, item.Status)
	assert.True(t, item.Due(queueNow))

	_, err := NewQueueItem(common.OrgID("org-1"), common.NewID(), 0, queueNow)
	assert.Error(t, err)
}

func TestQueueItem_SuccessfulDispatch(t *testing.T) {
	item := newTestItem(t, 5)

	require.NoError(t, item.BeginAttempt(queueNow))
	assert.Equal(t, StatusProcessing, item.Status)
	assert.Equal(t, 1, item.Attempts)
	assert.False(t, item.Due(queueNow))

	item.MarkSent(queueNow)
	assert.Equal(t, StatusSent, item.Status)
	assert.True(t, item.Status.Terminal())
	assert.Nil(t, item.NextRetryAt)
}

func TestQueueItem_FailureSchedulesBackoff(t *testing.T) {
	item := newTestItem(t, 5)

	require.NoError(t, item.BeginAttempt(queueNow))
	item.MarkFailure("smtp timeout", initialBackoff, maxBackoff, queueNow)

	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, "smtp timeout", item.ErrorMessage)
	require.NotNil(t, item.NextRetryAt)
	assert.Equal(t, queueNow.Add(time.Minute), *item.NextRetryAt)
	assert.False(t, item.Due(queueNow))
	assert.True(t, item.Due(queueNow.Add(time.Minute)))
}

func TestQueueItem_BackoffDoublesAndCaps(t *testing.T) {
	item := newTestItem(t, 20)
	expected := []time.Duration{
		time.Minute, 2 * time.Minute, 4 * time.Minute, 8 * time.Minute,
		16 * time.Minute, 32 * time.Minute, time.Hour, time.Hour,
	}

	at := queueNow
	for _, want := range expected {
		require.NoError(t, item.BeginAttempt(at))
		item.MarkFailure("still failing", initialBackoff, maxBackoff, at)
		require.NotNil(t, item.NextRetryAt)
		assert.Equal(t, at.Add(want), *item.NextRetryAt, "attempt %d", item.Attempts)
		at = *item.NextRetryAt
	}
}

func TestQueueItem_ExhaustionFreezesAtFailed(t *testing.T) {
	item := newTestItem(t, 2)

	require.NoError(t, item.BeginAttempt(queueNow))
	item.MarkFailure("bounce", initialBackoff, maxBackoff, queueNow)
	assert.Equal(t, StatusPending, item.Status)

	require.NoError(t, item.BeginAttempt(queueNow.Add(time.Minute)))
	item.MarkFailure("bounce again", initialBackoff, maxBackoff, queueNow.Add(time.Minute))

	assert.Equal(t, StatusFailed, item.Status)
	assert.Nil(t, item.NextRetryAt)
	assert.False(t, item.Due(queueNow.Add(time.Hour)))

	// Frozen: no further automatic attempts.
	err := item.BeginAttempt(queueNow.Add(2 * time.Hour))
	assert.Error(t, err)
}

func TestQueueItem_Cancel(t *testing.T) {
	item := newTestItem(t, 5)
	require.NoError(t, item.Cancel(queueNow))
	assert.Equal(t, StatusCancelled, item.Status)
	assert.True(t, item.Status.Terminal())

	// Cancel is only legal from pending.
	sent := newTestItem(t, 5)
	require.NoError(t, sent.BeginAttempt(queueNow))
	sent.MarkSent(queueNow)
	err := sent.Cancel(queueNow)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDeliveryNotCancellable))

	processing := newTestItem(t, 5)
	require.NoError(t, processing.BeginAttempt(queueNow))
	err = processing.Cancel(queueNow)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDeliveryNotCancellable))
}

func TestQueueItem_ReprocessResetsFailedItem(t *testing.T) {
	item := newTestItem(t, 1)
	require.NoError(t, item.BeginAttempt(queueNow))
	item.MarkFailure("mailbox full", initialBackoff, maxBackoff, queueNow)
	require.Equal(t, StatusFailed, item.Status)

	later := queueNow.Add(24 * time.Hour)
	require.NoError(t, item.Reprocess(later))

	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, 0, item.Attempts)
	assert.Empty(t, item.ErrorMessage)
	assert.True(t, item.Due(later))

	// Reprocess is only legal from failed.
	err := item.Reprocess(later)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDeliveryNotReprocessable))
}
