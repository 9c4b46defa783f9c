package tools

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/ids"
	"github.com/trellis-dev/trellis/internal/lifecycle"
	"github.com/trellis-dev/trellis/internal/markdown"
	"github.com/trellis-dev/trellis/internal/types"
)

// CompleteTask marks a claimed task done, appends the completion record
// to its Log section and moves the file into tasks-done under a
// timestamped name. This is the only path by which a task reaches done.
func (rt *Runtime) CompleteTask(req CompleteRequest) (map[string]any, error) {
	if req.TaskID == "" {
		return nil, errs.New(errs.CodeMissingRequiredField, "taskId is required")
	}
	if err := rt.Validator.CheckID(req.TaskID); err != nil {
		return nil, err
	}
	roots, err := rt.resolveRoots(req.ProjectRoot)
	if err != nil {
		return nil, err
	}
	resolver := rt.resolver(roots)

	clean, err := ids.Normalize(req.TaskID, string(types.KindTask))
	if err != nil {
		return nil, err
	}
	path, err := resolver.Locate(types.KindTask, clean)
	if err != nil {
		return nil, err
	}
	task, err := markdown.ReadObject(path)
	if err != nil {
		return nil, err
	}

	if err := lifecycle.CheckComplete(clean, task.Status); err != nil {
		return nil, err
	}

	now := time.Now()
	task.Body = appendLogEntry(task.Body, req.Summary, req.FilesChanged, now)
	task.Status = types.StatusDone
	task.Touch(now)

	donePath, err := resolver.Path(types.KindTask, task.ID, task.Parent, types.StatusDone, now)
	if err != nil {
		return nil, err
	}
	if err := markdown.WriteObject(donePath, task); err != nil {
		return nil, err
	}
	if donePath != path {
		if err := os.Remove(path); err != nil {
			rt.Log.Warn("open task file could not be removed after completion",
				zap.String("path", path), zap.Error(err))
		}
	}

	rt.Children.Invalidate(path)
	rt.invalidateParentOf(resolver, task)

	return map[string]any{
		"task":              taskMap(task),
		"validation_status": "passed",
		"file_path":         donePath,
	}, nil
}
