package tools

import (
	"github.com/trellis-dev/trellis/internal/scheduler"
)

// ClaimNextTask claims the next eligible task, or a specific one by ID.
func (rt *Runtime) ClaimNextTask(req ClaimRequest) (map[string]any, error) {
	roots, err := rt.resolveRoots(req.ProjectRoot)
	if err != nil {
		return nil, err
	}
	if req.TaskID != "" {
		if err := rt.Validator.CheckID(req.TaskID); err != nil {
			return nil, err
		}
	}

	result, err := rt.scheduler(roots).ClaimNext(scheduler.Request{
		Worktree: req.Worktree,
		Scope:    req.Scope,
		TaskID:   req.TaskID,
		Force:    req.Force,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"task":           taskMap(result.Task),
		"claimed_status": string(result.Task.Status),
		"worktree":       result.Worktree,
		"file_path":      result.Path,
	}, nil
}

// GetNextReviewableTask returns the review-status task that has waited
// longest, or a null task when none is pending.
func (rt *Runtime) GetNextReviewableTask(req ReviewableRequest) (map[string]any, error) {
	roots, err := rt.resolveRoots(req.ProjectRoot)
	if err != nil {
		return nil, err
	}
	loaded, err := rt.scheduler(roots).Reviewable()
	if err != nil {
		return nil, err
	}
	if loaded == nil {
		return map[string]any{"task": nil}, nil
	}
	return map[string]any{"task": taskMap(loaded.Object)}, nil
}
