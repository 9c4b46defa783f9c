// Package lifecycle encodes the legal status transitions per kind, the
// completion-eligibility rule, and the cascade-delete policy.
package lifecycle

import (
	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/types"
)

// Direct edges per kind. The legal relation is the reachability closure
// of these, minus the explicitly forbidden pairs below.
var containerEdges = map[types.Status][]types.Status{
	types.StatusDraft:      {types.StatusInProgress},
	types.StatusInProgress: {types.StatusDone},
}

var taskEdges = map[types.Status][]types.Status{
	types.StatusOpen:       {types.StatusInProgress},
	types.StatusInProgress: {types.StatusReview},
	types.StatusReview:     {types.StatusInProgress, types.StatusDone},
}

// Containers may not jump straight from draft to done.
var forbidden = map[[2]types.Status]bool{
	{types.StatusDraft, types.StatusDone}: true,
}

// CanTransition reports whether from -> to is legal for the kind.
// Staying put is always legal.
func CanTransition(kind types.Kind, from, to types.Status) bool {
	if from == to {
		return true
	}
	if kind.IsContainer() && forbidden[[2]types.Status{from, to}] {
		return false
	}
	edges := taskEdges
	if kind.IsContainer() {
		edges = containerEdges
	}
	// Reachability over the edge set.
	seen := map[types.Status]bool{from: true}
	frontier := []types.Status{from}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, s := range edges[next] {
			if s == to {
				return true
			}
			if !seen[s] {
				seen[s] = true
				frontier = append(frontier, s)
			}
		}
	}
	return false
}

// CheckTransition returns a typed error for an illegal edge.
func CheckTransition(kind types.Kind, from, to types.Status) error {
	if CanTransition(kind, from, to) {
		return nil
	}
	return errs.New(errs.CodeInvalidStatusTransition,
		"status cannot change from '%s' to '%s' for %s", from, to, kind)
}

// CanComplete reports whether a task is eligible for completeTask:
// only in-progress and review qualify.
func CanComplete(status types.Status) bool {
	return status == types.StatusInProgress || status == types.StatusReview
}

// CheckComplete returns a typed error when completion is not allowed.
func CheckComplete(taskID string, status types.Status) error {
	if CanComplete(status) {
		return nil
	}
	return errs.New(errs.CodeInvalidStatusTransition,
		"task cannot be completed from status '%s'; must be in-progress or review", status).
		WithObject(taskID, string(types.KindTask))
}

// IsProtected reports whether a descendant task blocks cascade delete.
func IsProtected(status types.Status) bool {
	return status == types.StatusInProgress || status == types.StatusReview
}
