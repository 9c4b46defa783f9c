package tools

import (
	"sort"

	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/ids"
	"github.com/trellis-dev/trellis/internal/scheduler"
	"github.com/trellis-dev/trellis/internal/types"
)

// ListBacklog walks every task file (hierarchical and standalone),
// applies the scope/status/priority filters and returns the rows
// sorted by (priority rank, created) unless sorting is disabled.
func (rt *Runtime) ListBacklog(req ListRequest) (map[string]any, error) {
	roots, err := rt.resolveRoots(req.ProjectRoot)
	if err != nil {
		return nil, err
	}
	if req.Scope != "" {
		if err := scheduler.CheckScope(req.Scope); err != nil {
			return nil, err
		}
	}
	var statusFilter types.Status
	if req.Status != "" {
		statusFilter = types.Status(req.Status)
		if !statusFilter.ValidFor(types.KindTask) {
			return nil, errs.New(errs.CodeInvalidField,
				"Invalid status '%s' for task. Must be one of: open, in-progress, review, done", req.Status)
		}
	}
	var priorityFilter types.Priority
	if req.Priority != "" {
		p, err := types.CanonicalPriority(req.Priority)
		if err != nil {
			return nil, err
		}
		priorityFilter = p
	}

	tasks, err := rt.scanner(roots).Tasks()
	if err != nil {
		return nil, err
	}

	type row struct {
		obj  *types.Object
		path string
	}
	var rows []row
	for _, t := range tasks {
		if req.Scope != "" && !scheduler.InScope(t.Path, req.Scope) {
			continue
		}
		if statusFilter != "" && t.Object.Status != statusFilter {
			continue
		}
		if priorityFilter != "" && t.Object.Priority != priorityFilter {
			continue
		}
		rows = append(rows, row{obj: t.Object, path: t.Path})
	}

	sortByPriority := req.SortByPriority == nil || *req.SortByPriority
	if sortByPriority {
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i].obj, rows[j].obj
			if a.Priority.Rank() != b.Priority.Rank() {
				return a.Priority.Rank() < b.Priority.Rank()
			}
			return a.Created.Before(b.Created)
		})
	}

	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		entry := map[string]any{
			"id":        r.obj.ID,
			"title":     r.obj.Title,
			"status":    string(r.obj.Status),
			"priority":  string(r.obj.Priority),
			"file_path": r.path,
			"created":   r.obj.Created.Format(types.TimestampLayout),
			"updated":   r.obj.Updated.Format(types.TimestampLayout),
		}
		if r.obj.Parent != "" {
			entry["parent"] = ids.AddPrefix(r.obj.Parent, string(types.KindFeature))
		} else {
			entry["parent"] = nil
		}
		out = append(out, entry)
	}
	return map[string]any{"tasks": out}, nil
}
