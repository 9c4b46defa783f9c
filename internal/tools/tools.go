// Package tools implements the remote tool surface: createObject,
// getObject, updateObject, listBacklog, claimNextTask, completeTask and
// getNextReviewableTask. Handlers are stateless; each invocation reads
// the tree anew and relies on atomic rename for write linearization.
package tools

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/trellis-dev/trellis/internal/cache"
	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/paths"
	"github.com/trellis-dev/trellis/internal/scanner"
	"github.com/trellis-dev/trellis/internal/scheduler"
	"github.com/trellis-dev/trellis/internal/security"
)

// Operation names as they appear on the wire.
const (
	OpCreateObject          = "createObject"
	OpGetObject             = "getObject"
	OpUpdateObject          = "updateObject"
	OpListBacklog           = "listBacklog"
	OpClaimNextTask         = "claimNextTask"
	OpCompleteTask          = "completeTask"
	OpGetNextReviewableTask = "getNextReviewableTask"
)

// Operations lists every supported operation name.
var Operations = []string{
	OpCreateObject, OpGetObject, OpUpdateObject, OpListBacklog,
	OpClaimNextTask, OpCompleteTask, OpGetNextReviewableTask,
}

// Runtime carries the injected dependencies every handler shares. The
// children cache is owned here, not by a global, so tests stay
// deterministic.
type Runtime struct {
	Children       *cache.Children
	Audit          *security.Auditor
	Validator      *security.Validator
	Log            *zap.Logger
	AutoCreateDirs bool
}

// NewRuntime builds a Runtime around a logger and cache size.
func NewRuntime(log *zap.Logger, cacheMax int, autoCreateDirs bool) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	audit := security.NewAuditor(log)
	return &Runtime{
		Children:       cache.NewChildren(cacheMax),
		Audit:          audit,
		Validator:      security.NewValidator(audit),
		Log:            log,
		AutoCreateDirs: autoCreateDirs,
	}
}

// Dispatch decodes args for the named operation and runs its handler.
// Used by the transport; in-process callers use the typed methods.
func (rt *Runtime) Dispatch(op string, args json.RawMessage) (any, error) {
	switch op {
	case OpCreateObject:
		var req CreateRequest
		if err := decode(args, &req); err != nil {
			return nil, err
		}
		return rt.CreateObject(req)
	case OpGetObject:
		var req GetRequest
		if err := decode(args, &req); err != nil {
			return nil, err
		}
		return rt.GetObject(req)
	case OpUpdateObject:
		var req UpdateRequest
		if err := decode(args, &req); err != nil {
			return nil, err
		}
		return rt.UpdateObject(req)
	case OpListBacklog:
		var req ListRequest
		if err := decode(args, &req); err != nil {
			return nil, err
		}
		return rt.ListBacklog(req)
	case OpClaimNextTask:
		var req ClaimRequest
		if err := decode(args, &req); err != nil {
			return nil, err
		}
		return rt.ClaimNextTask(req)
	case OpCompleteTask:
		var req CompleteRequest
		if err := decode(args, &req); err != nil {
			return nil, err
		}
		return rt.CompleteTask(req)
	case OpGetNextReviewableTask:
		var req ReviewableRequest
		if err := decode(args, &req); err != nil {
			return nil, err
		}
		return rt.GetNextReviewableTask(req)
	}
	return nil, errs.New(errs.CodeInvalidField, "unknown operation %q", op)
}

func decode(args json.RawMessage, into any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, into); err != nil {
		return errs.Wrap(errs.CodeInvalidField, err, "operation arguments could not be decoded")
	}
	return nil
}

// resolveRoots validates and resolves the projectRoot parameter.
func (rt *Runtime) resolveRoots(projectRoot string) (paths.Roots, error) {
	if projectRoot == "" {
		return paths.Roots{}, errs.New(errs.CodeMissingRequiredField, "projectRoot is required")
	}
	return paths.Resolve(projectRoot)
}

func (rt *Runtime) resolver(roots paths.Roots) *paths.Resolver {
	return paths.NewResolver(roots)
}

func (rt *Runtime) scanner(roots paths.Roots) *scanner.Scanner {
	return scanner.New(roots, rt.Log)
}

func (rt *Runtime) scheduler(roots paths.Roots) *scheduler.Scheduler {
	return scheduler.New(roots, rt.Children, rt.Audit, rt.Log)
}
