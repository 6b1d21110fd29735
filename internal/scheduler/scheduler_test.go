package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/jobs"
)

type fakeQueue struct {
	orgs []string
}

func (q *fakeQueue) EnqueueCleanup(_ context.Context, orgID string) (*jobs.Result, error) {
	q.orgs = append(q.orgs, orgID)
	return &jobs.Result{Job: &domain.Job{ID: uuid.New()}, Created: true}, nil
}

type fakePruner struct {
	calls int
	err   error
}

func (p *fakePruner) Prune(context.Context) (int64, error) {
	p.calls++
	return 3, p.err
}

type staticLeader struct {
	leader bool
	err    error
}

func (l staticLeader) IsLeader(context.Context) (bool, error) { return l.leader, l.err }

func TestNextRun(t *testing.T) {
	from := time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)

	next, err := NextRun(DefaultCleanupSpec, from, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), next)

	next, err = NextRun(DefaultCleanupSpec, from.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC), next)

	next, err = NextRun(DefaultPruneSpec, from, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), next)
}

func TestValidateSpec(t *testing.T) {
	assert.NoError(t, ValidateSpec("*/5 * * * *"))
	assert.NoError(t, ValidateSpec("@hourly"))
	assert.Error(t, ValidateSpec("every day"))
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New(Config{CleanupSpec: "61 * * * *"})
	assert.ErrorContains(t, err, TaskAttachmentCleanup)
}

func TestRunTask(t *testing.T) {
	q := &fakeQueue{}
	p := &fakePruner{}
	s, err := New(Config{Jobs: q, Pruner: p})
	require.NoError(t, err)

	require.NoError(t, s.RunTask(context.Background(), TaskAttachmentCleanup))
	assert.Equal(t, []string{domain.SystemOrganization}, q.orgs)

	require.NoError(t, s.RunTask(context.Background(), TaskPrune))
	assert.Equal(t, 1, p.calls)

	assert.Error(t, s.RunTask(context.Background(), "nope"))
}

func TestRun_OnlyLeaderExecutes(t *testing.T) {
	q := &fakeQueue{}

	follower, err := New(Config{Jobs: q, Pruner: &fakePruner{}, Leader: staticLeader{leader: false}})
	require.NoError(t, err)
	follower.run(TaskAttachmentCleanup)
	assert.Empty(t, q.orgs)

	broken, err := New(Config{Jobs: q, Pruner: &fakePruner{}, Leader: staticLeader{err: errors.New("db down")}})
	require.NoError(t, err)
	broken.run(TaskAttachmentCleanup)
	assert.Empty(t, q.orgs)

	leader, err := New(Config{Jobs: q, Pruner: &fakePruner{}, Leader: staticLeader{leader: true}})
	require.NoError(t, err)
	leader.run(TaskAttachmentCleanup)
	assert.Len(t, q.orgs, 1)
}
