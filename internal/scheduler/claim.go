// Package scheduler selects and atomically claims the next workable
// task: open, unblocked, highest priority, oldest first. A direct claim
// by ID can bypass the checks with force, which is the only way to grab
// a task that is not open.
package scheduler

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trellis-dev/trellis/internal/cache"
	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/ids"
	"github.com/trellis-dev/trellis/internal/markdown"
	"github.com/trellis-dev/trellis/internal/paths"
	"github.com/trellis-dev/trellis/internal/scanner"
	"github.com/trellis-dev/trellis/internal/security"
	"github.com/trellis-dev/trellis/internal/types"
)

// scopePattern accepts project, epic and feature scopes only.
var scopePattern = regexp.MustCompile(`^[PEF]-[A-Za-z0-9_-]+$`)

// Request carries the claim parameters after transport decoding.
type Request struct {
	Worktree string
	Scope    string
	TaskID   string
	Force    bool
}

// Result is a successful claim.
type Result struct {
	Task     *types.Object
	Path     string
	Worktree string
}

// Scheduler wires the claim operation to the tree.
type Scheduler struct {
	roots    paths.Roots
	resolver *paths.Resolver
	scan     *scanner.Scanner
	children *cache.Children
	audit    *security.Auditor
	log      *zap.Logger
}

// New creates a Scheduler. cache and audit may be nil.
func New(roots paths.Roots, children *cache.Children, audit *security.Auditor, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		roots:    roots,
		resolver: paths.NewResolver(roots),
		scan:     scanner.New(roots, log),
		children: children,
		audit:    audit,
		log:      log,
	}
}

// ClaimNext validates the request and claims a task.
func (s *Scheduler) ClaimNext(req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.TaskID != "" {
		return s.claimByID(req)
	}
	return s.claimNextEligible(req)
}

func validateRequest(req Request) error {
	if req.Scope != "" && req.TaskID != "" {
		return errs.New(errs.CodeInvalidField, "scope and taskId are mutually exclusive")
	}
	if req.Force && req.TaskID == "" {
		return errs.New(errs.CodeInvalidField, "force=true requires taskId")
	}
	if req.Scope != "" {
		if err := CheckScope(req.Scope); err != nil {
			return err
		}
	}
	return nil
}

// CheckScope validates a scope filter's format.
func CheckScope(scope string) error {
	if !scopePattern.MatchString(scope) {
		return errs.New(errs.CodeInvalidField,
			"scope %q must match P-, E- or F- followed by an identifier", scope)
	}
	return nil
}

func (s *Scheduler) claimByID(req Request) (*Result, error) {
	cleanID, err := ids.Normalize(req.TaskID, string(types.KindTask))
	if err != nil {
		return nil, err
	}
	path, err := s.resolver.Locate(types.KindTask, cleanID)
	if err != nil {
		return nil, err
	}
	task, err := markdown.ReadObject(path)
	if err != nil {
		return nil, err
	}

	if !req.Force {
		if task.Status != types.StatusOpen {
			return nil, errs.New(errs.CodeInvalidStatusTransition,
				"task is '%s', not open; pass force to claim anyway", task.Status).
				WithObject(cleanID, string(types.KindTask))
		}
		objects, err := s.scan.AllObjects()
		if err != nil {
			return nil, err
		}
		if incomplete := incompletePrereqs(task, objects); len(incomplete) > 0 {
			return nil, errs.New(errs.CodePrerequisitesIncomplete,
				"prerequisites not yet done: %s", strings.Join(incomplete, ", ")).
				WithObject(cleanID, string(types.KindTask))
		}
	} else if s.audit != nil {
		s.audit.Action("force_claim", map[string]string{
			"task":     cleanID,
			"status":   string(task.Status),
			"worktree": req.Worktree,
		})
	}

	return s.claim(task, path, req.Worktree)
}

func (s *Scheduler) claimNextEligible(req Request) (*Result, error) {
	objects, err := s.scan.AllObjects()
	if err != nil {
		return nil, err
	}
	tasks, err := s.scan.Tasks()
	if err != nil {
		return nil, err
	}

	var eligible []*scanner.Loaded
	for _, t := range tasks {
		if t.Object.Status != types.StatusOpen {
			continue
		}
		if req.Scope != "" && !InScope(t.Path, req.Scope) {
			continue
		}
		if len(incompletePrereqs(t.Object, objects)) > 0 {
			continue
		}
		eligible = append(eligible, t)
	}
	if len(eligible) == 0 {
		if req.Scope != "" {
			return nil, errs.New(errs.CodeNoAvailableTask,
				"no claimable task within scope %s", req.Scope)
		}
		return nil, errs.New(errs.CodeNoAvailableTask, "no claimable task")
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i].Object, eligible[j].Object
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		return a.Created.Before(b.Created)
	})

	winner := eligible[0]
	return s.claim(winner.Object, winner.Path, req.Worktree)
}

// claim performs the atomic status write. A forced claim of a done task
// reopens it, which moves the file back to tasks-open.
func (s *Scheduler) claim(task *types.Object, path, worktree string) (*Result, error) {
	now := time.Now()
	wasDone := task.Status == types.StatusDone
	prevUpdated := task.Updated

	task.Status = types.StatusInProgress
	if worktree != "" {
		task.Worktree = worktree
	}
	task.Touch(now)
	if !task.Updated.After(prevUpdated) {
		// Same-instant rewrites still move forward.
		task.Updated = prevUpdated.Add(time.Microsecond)
	}

	targetPath := path
	if wasDone {
		open, err := s.resolver.Path(types.KindTask, task.ID, task.Parent, task.Status, now)
		if err != nil {
			return nil, err
		}
		targetPath = open
	}

	if err := markdown.WriteObject(targetPath, task); err != nil {
		return nil, err
	}
	if targetPath != path {
		if err := os.Remove(path); err != nil {
			s.log.Warn("stale done-file could not be removed", zap.Error(err))
		}
	}

	s.invalidateParent(task)

	return &Result{Task: task, Path: targetPath, Worktree: task.Worktree}, nil
}

func (s *Scheduler) invalidateParent(task *types.Object) {
	if s.children == nil || task.Parent == "" {
		return
	}
	parentFile, err := s.resolver.Locate(types.KindFeature, task.Parent)
	if err != nil {
		return
	}
	s.children.Invalidate(parentFile)
}

// incompletePrereqs returns the prerequisites of a task that are not
// yet done, clean IDs, in declaration order. A reference to a missing
// object counts as incomplete.
func incompletePrereqs(task *types.Object, objects map[string]*scanner.Loaded) []string {
	var incomplete []string
	for _, p := range task.Prerequisites {
		clean := ids.CleanPrereq(p)
		dep, ok := objects[clean]
		if !ok || dep.Object.Status != types.StatusDone {
			incomplete = append(incomplete, clean)
		}
	}
	return incomplete
}

// InScope checks whether a task file path falls under a scope ID.
// Project scope also admits standalone tasks; epic and feature scopes
// never do.
func InScope(taskPath, scope string) bool {
	sep := string(os.PathSeparator)
	switch {
	case strings.HasPrefix(scope, "P-"):
		if strings.Contains(taskPath, sep+paths.ProjectsDir+sep+scope+sep) {
			return true
		}
		// Standalone tasks ride along with any project scope.
		return !strings.Contains(taskPath, sep+paths.ProjectsDir+sep)
	case strings.HasPrefix(scope, "E-"):
		return strings.Contains(taskPath, sep+paths.EpicsDir+sep+scope+sep)
	case strings.HasPrefix(scope, "F-"):
		return strings.Contains(taskPath, sep+paths.FeaturesDir+sep+scope+sep)
	}
	return false
}

// Reviewable returns the task with status review that was updated
// longest ago (priority breaks ties), or nil when none exists.
func (s *Scheduler) Reviewable() (*scanner.Loaded, error) {
	tasks, err := s.scan.Tasks()
	if err != nil {
		return nil, err
	}
	var reviewable []*scanner.Loaded
	for _, t := range tasks {
		if t.Object.Status == types.StatusReview {
			reviewable = append(reviewable, t)
		}
	}
	if len(reviewable) == 0 {
		return nil, nil
	}
	sort.SliceStable(reviewable, func(i, j int) bool {
		a, b := reviewable[i].Object, reviewable[j].Object
		if !a.Updated.Equal(b.Updated) {
			return a.Updated.Before(b.Updated)
		}
		return a.Priority.Rank() < b.Priority.Rank()
	})
	return reviewable[0], nil
}

// CheckUnblocked verifies that every prerequisite of a task is done.
// Exposed for completeTask-style preflight by the tool layer.
func CheckUnblocked(task *types.Object, objects map[string]*scanner.Loaded) error {
	if incomplete := incompletePrereqs(task, objects); len(incomplete) > 0 {
		return errs.New(errs.CodePrerequisitesIncomplete,
			"prerequisites not yet done: %s", strings.Join(incomplete, ", ")).
			WithObject(task.ID, string(types.KindTask))
	}
	return nil
}
