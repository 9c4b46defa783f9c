package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/markdown"
	"github.com/trellis-dev/trellis/internal/paths"
	"github.com/trellis-dev/trellis/internal/types"
)

type fixture struct {
	roots    paths.Roots
	resolver *paths.Resolver
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	roots, err := paths.EnsureLayout(t.TempDir())
	require.NoError(t, err)
	return &fixture{
		roots:    roots,
		resolver: paths.NewResolver(roots),
		now:      time.Now(),
	}
}

func (f *fixture) write(t *testing.T, kind types.Kind, id, parent string, status types.Status, mutate func(*types.Object)) {
	t.Helper()
	obj := &types.Object{
		Kind: kind, ID: id, Parent: parent, Status: status,
		Title: id, Priority: types.PriorityNormal,
		Prerequisites: []string{}, Created: f.now, Updated: f.now,
		SchemaVersion: types.SchemaVersion,
	}
	if mutate != nil {
		mutate(obj)
	}
	path, err := f.resolver.Path(kind, id, parent, status, f.now)
	require.NoError(t, err)
	require.NoError(t, markdown.WriteObject(path, obj))
}

func (f *fixture) hierarchy(t *testing.T) {
	t.Helper()
	f.write(t, types.KindProject, "site", "", types.StatusInProgress, nil)
	f.write(t, types.KindEpic, "users", "site", types.StatusInProgress, nil)
	f.write(t, types.KindFeature, "login", "users", types.StatusInProgress, nil)
}

func (f *fixture) scheduler() *Scheduler {
	return New(f.roots, nil, nil, nil)
}

func TestClaimHonorsPriorityThenAge(t *testing.T) {
	f := newFixture(t)
	older := f.now.Add(-time.Hour)

	f.write(t, types.KindTask, "low-old", "", types.StatusOpen, func(o *types.Object) {
		o.Priority = types.PriorityLow
		o.Created = older
	})
	f.write(t, types.KindTask, "normal-old", "", types.StatusOpen, func(o *types.Object) {
		o.Created = older
	})
	f.write(t, types.KindTask, "high-new", "", types.StatusOpen, func(o *types.Object) {
		o.Priority = types.PriorityHigh
	})
	f.write(t, types.KindTask, "high-old", "", types.StatusOpen, func(o *types.Object) {
		o.Priority = types.PriorityHigh
		o.Created = older
	})

	res, err := f.scheduler().ClaimNext(Request{})
	require.NoError(t, err)
	assert.Equal(t, "high-old", res.Task.ID, "highest priority, oldest created wins")
	assert.Equal(t, types.StatusInProgress, res.Task.Status)

	// The winner is out of the pool; next claim takes the younger high.
	res, err = f.scheduler().ClaimNext(Request{})
	require.NoError(t, err)
	assert.Equal(t, "high-new", res.Task.ID)
}

func TestClaimSkipsBlockedTasks(t *testing.T) {
	f := newFixture(t)
	f.write(t, types.KindTask, "dep", "", types.StatusOpen, nil)
	f.write(t, types.KindTask, "blocked", "", types.StatusOpen, func(o *types.Object) {
		o.Priority = types.PriorityHigh
		o.Prerequisites = []string{"T-dep"}
	})

	res, err := f.scheduler().ClaimNext(Request{})
	require.NoError(t, err)
	assert.Equal(t, "dep", res.Task.ID, "a blocked task must not win on priority")
}

func TestClaimUnblocksWhenPrereqDone(t *testing.T) {
	f := newFixture(t)
	f.write(t, types.KindTask, "dep", "", types.StatusDone, nil)
	f.write(t, types.KindTask, "next", "", types.StatusOpen, func(o *types.Object) {
		o.Prerequisites = []string{"dep"}
	})

	res, err := f.scheduler().ClaimNext(Request{})
	require.NoError(t, err)
	assert.Equal(t, "next", res.Task.ID)
}

func TestClaimMissingPrereqBlocks(t *testing.T) {
	f := newFixture(t)
	f.write(t, types.KindTask, "orphan", "", types.StatusOpen, func(o *types.Object) {
		o.Prerequisites = []string{"T-ghost"}
	})

	_, err := f.scheduler().ClaimNext(Request{})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeNoAvailableTask), "err = %v", err)
}

func TestClaimNoAvailableTaskMentionsScope(t *testing.T) {
	f := newFixture(t)
	f.hierarchy(t)

	_, err := f.scheduler().ClaimNext(Request{Scope: "P-site"})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeNoAvailableTask))
	assert.Contains(t, err.Error(), "P-site")
}

func TestClaimSetsWorktree(t *testing.T) {
	f := newFixture(t)
	f.write(t, types.KindTask, "solo", "", types.StatusOpen, nil)

	res, err := f.scheduler().ClaimNext(Request{Worktree: "wt-7"})
	require.NoError(t, err)
	assert.Equal(t, "wt-7", res.Worktree)

	stored, err := markdown.ReadObject(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "wt-7", stored.Worktree)
	assert.Equal(t, types.StatusInProgress, stored.Status)
}

func TestClaimByIDRequiresOpen(t *testing.T) {
	f := newFixture(t)
	f.write(t, types.KindTask, "busy", "", types.StatusInProgress, nil)

	_, err := f.scheduler().ClaimNext(Request{TaskID: "T-busy"})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeInvalidStatusTransition), "err = %v", err)
}

func TestClaimByIDBlockedPrereqs(t *testing.T) {
	f := newFixture(t)
	f.write(t, types.KindTask, "dep", "", types.StatusOpen, nil)
	f.write(t, types.KindTask, "blocked", "", types.StatusOpen, func(o *types.Object) {
		o.Prerequisites = []string{"dep"}
	})

	_, err := f.scheduler().ClaimNext(Request{TaskID: "blocked"})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodePrerequisitesIncomplete), "err = %v", err)
}

func TestForceClaimBypassesChecks(t *testing.T) {
	f := newFixture(t)
	f.write(t, types.KindTask, "dep", "", types.StatusOpen, nil)
	f.write(t, types.KindTask, "blocked", "", types.StatusReview, func(o *types.Object) {
		o.Prerequisites = []string{"dep"}
	})

	res, err := f.scheduler().ClaimNext(Request{TaskID: "T-blocked", Force: true})
	require.NoError(t, err)
	assert.Equal(t, "blocked", res.Task.ID)
	assert.Equal(t, types.StatusInProgress, res.Task.Status)
}

func TestForceClaimDoneTaskReopens(t *testing.T) {
	f := newFixture(t)
	f.write(t, types.KindTask, "shipped", "", types.StatusDone, nil)

	res, err := f.scheduler().ClaimNext(Request{TaskID: "shipped", Force: true})
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, res.Task.Status)
	assert.False(t, paths.IsDonePath(res.Path), "reopened task must move back to tasks-open")

	// The done-file is gone; locating the task finds the open copy.
	found, err := f.resolver.Locate(types.KindTask, "shipped")
	require.NoError(t, err)
	assert.Equal(t, res.Path, found)
}

func TestClaimAdvancesUpdatedDespiteClockSkew(t *testing.T) {
	f := newFixture(t)
	ahead := f.now.Add(time.Hour)
	f.write(t, types.KindTask, "skewed", "", types.StatusInProgress, func(o *types.Object) {
		o.Updated = ahead
	})

	res, err := f.scheduler().ClaimNext(Request{TaskID: "T-skewed", Force: true})
	require.NoError(t, err)
	assert.True(t, res.Task.Updated.After(ahead), "updated must move forward on every claim")

	stored, err := markdown.ReadObject(res.Path)
	require.NoError(t, err)
	assert.True(t, stored.Updated.After(ahead))
}

func TestForceWithoutTaskIDRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.scheduler().ClaimNext(Request{Force: true})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeInvalidField))
}

func TestScopeAndTaskIDMutuallyExclusive(t *testing.T) {
	f := newFixture(t)
	_, err := f.scheduler().ClaimNext(Request{Scope: "P-site", TaskID: "T-x"})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeInvalidField))
}

func TestCheckScope(t *testing.T) {
	for _, ok := range []string{"P-site", "E-users", "F-login", "P-a_b", "E-X9"} {
		assert.NoError(t, CheckScope(ok), "scope %q", ok)
	}
	for _, bad := range []string{"T-auth", "site", "P-", "Q-x", "p-site"} {
		assert.Error(t, CheckScope(bad), "scope %q", bad)
	}
}

func TestScopeFiltering(t *testing.T) {
	f := newFixture(t)
	f.hierarchy(t)
	f.write(t, types.KindTask, "inside", "login", types.StatusOpen, nil)
	f.write(t, types.KindTask, "standalone", "", types.StatusOpen, func(o *types.Object) {
		o.Priority = types.PriorityHigh
	})

	// Feature scope admits only the hierarchical task.
	res, err := f.scheduler().ClaimNext(Request{Scope: "F-login"})
	require.NoError(t, err)
	assert.Equal(t, "inside", res.Task.ID)
}

func TestProjectScopeIncludesStandalone(t *testing.T) {
	f := newFixture(t)
	f.hierarchy(t)
	f.write(t, types.KindTask, "standalone", "", types.StatusOpen, nil)

	res, err := f.scheduler().ClaimNext(Request{Scope: "P-site"})
	require.NoError(t, err)
	assert.Equal(t, "standalone", res.Task.ID)
}

func TestReviewableOldestFirst(t *testing.T) {
	f := newFixture(t)
	older := f.now.Add(-2 * time.Hour)

	f.write(t, types.KindTask, "fresh", "", types.StatusReview, nil)
	f.write(t, types.KindTask, "stale", "", types.StatusReview, func(o *types.Object) {
		o.Updated = older
	})
	f.write(t, types.KindTask, "working", "", types.StatusInProgress, nil)

	got, err := f.scheduler().Reviewable()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "stale", got.Object.ID)
}

func TestReviewableEmpty(t *testing.T) {
	f := newFixture(t)
	f.write(t, types.KindTask, "open", "", types.StatusOpen, nil)

	got, err := f.scheduler().Reviewable()
	require.NoError(t, err)
	assert.Nil(t, got)
}
