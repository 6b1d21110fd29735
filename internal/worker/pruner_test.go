package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Chatplane/internal/domain"
)

type pruneCall struct {
	queue  domain.QueueName
	state  domain.JobState
	keep   int
	maxAge time.Duration
}

type recordingPruner struct {
	calls []pruneCall
	fail  domain.QueueName
}

func (r *recordingPruner) Prune(_ context.Context, queue domain.QueueName, state domain.JobState, keep int, maxAge time.Duration) (int64, error) {
	r.calls = append(r.calls, pruneCall{queue, state, keep, maxAge})
	if queue == r.fail {
		return 0, errors.New("lock timeout")
	}
	return 1, nil
}

func TestPruner_AppliesPresetRetention(t *testing.T) {
	rec := &recordingPruner{}
	n, err := NewPruner(rec, nil).Prune(context.Background())
	require.NoError(t, err)

	// 5 очередей × completed/failed
	assert.Len(t, rec.calls, 10)
	assert.Equal(t, int64(10), n)
	assert.Contains(t, rec.calls, pruneCall{domain.QueueHighPriority, domain.JobStateCompleted, 100, time.Hour})
	assert.Contains(t, rec.calls, pruneCall{domain.QueueCleanup, domain.JobStateFailed, 0, 30 * 24 * time.Hour})
}

func TestPruner_ContinuesAfterQueueError(t *testing.T) {
	rec := &recordingPruner{fail: domain.QueueDefault}
	n, err := NewPruner(rec, nil).Prune(context.Background())

	assert.ErrorContains(t, err, "lock timeout")
	assert.Len(t, rec.calls, 10)
	assert.Equal(t, int64(8), n)
}
