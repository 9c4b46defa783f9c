package tools

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/graph"
	"github.com/trellis-dev/trellis/internal/ids"
	"github.com/trellis-dev/trellis/internal/markdown"
	"github.com/trellis-dev/trellis/internal/paths"
	"github.com/trellis-dev/trellis/internal/security"
	"github.com/trellis-dev/trellis/internal/types"
)

// CreateObject writes a new object file. The ID is derived from the
// title when omitted (with -1, -2, ... collision suffixes); a cycle in
// the prerequisites rejects the create and removes the file again.
func (rt *Runtime) CreateObject(req CreateRequest) (map[string]any, error) {
	var list errs.List
	if req.Kind == "" {
		list.Addf(errs.CodeMissingRequiredField, "kind is required")
	}
	if req.Title == "" {
		list.Addf(errs.CodeMissingRequiredField, "title is required")
	}
	if req.ProjectRoot == "" {
		list.Addf(errs.CodeMissingRequiredField, "projectRoot is required")
	}
	if err := list.Err(); err != nil {
		return nil, err
	}

	kind := types.Kind(req.Kind)
	if !kind.IsValid() {
		return nil, errs.New(errs.CodeInvalidField,
			"Invalid kind '%s'. Must be one of: [project, epic, feature, task]", req.Kind)
	}

	roots, err := rt.createRoots(req.ProjectRoot)
	if err != nil {
		return nil, err
	}
	resolver := rt.resolver(roots)

	if req.Parent != "" {
		if err := rt.Validator.CheckParent(req.Parent); err != nil {
			return nil, err
		}
		if err := rt.Validator.CheckID(req.Parent); err != nil {
			return nil, err
		}
	}

	parentClean := ""
	if req.Parent != "" {
		parentClean = ids.CleanPrereq(req.Parent)
	}

	now := time.Now()
	obj := &types.Object{
		Kind:          kind,
		Parent:        parentClean,
		Status:        types.Status(req.Status),
		Title:         req.Title,
		Prerequisites: req.Prerequisites,
		Created:       now,
		Updated:       now,
	}
	if p, err := types.CanonicalPriority(req.Priority); err != nil {
		return nil, err
	} else {
		obj.Priority = p
	}

	obj.ID, err = rt.chooseID(resolver, kind, req, now)
	if err != nil {
		return nil, err
	}

	obj.SetDefaults()
	for _, p := range obj.Prerequisites {
		if err := ids.Validate(ids.CleanPrereq(p), false); err != nil {
			return nil, err
		}
	}
	if err := obj.Validate(); err != nil {
		return nil, err
	}
	if obj.IsStandaloneTask() && security.StandaloneChecksApply(obj.SchemaVersion) {
		if err := rt.Validator.CheckID(ids.AddPrefix(obj.ID, string(kind))); err != nil {
			return nil, err
		}
	}

	path, err := resolver.Path(kind, obj.ID, parentClean, obj.Status, now)
	if err != nil {
		return nil, err
	}
	if err := rt.Validator.CheckPath(roots.Resolution, path); err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return nil, errs.New(errs.CodeInvalidField,
			"an object with ID %q already exists", obj.ID).WithObject(obj.ID, string(kind))
	}

	obj.Body = ensureLogSection(req.Description)

	// Pre-write cycle check against the existing graph.
	objects, err := rt.scanner(roots).AllObjects()
	if err != nil {
		return nil, err
	}
	if err := graph.ValidateCandidate(objects, obj); err != nil {
		return nil, err
	}

	if err := markdown.WriteObject(path, obj); err != nil {
		return nil, err
	}

	// Defense in depth: re-validate the stored graph; a concurrent
	// write may have raced a cycle in. On detection the create is
	// undone.
	stored, err := rt.scanner(roots).AllObjects()
	if err == nil {
		if cycleErr := graph.Build(stored).Check(); cycleErr != nil {
			if rmErr := os.Remove(path); rmErr != nil {
				rt.Log.Error("rollback of rejected create failed", zap.Error(rmErr))
			}
			return nil, cycleErr
		}
	}

	rt.invalidateParentOf(resolver, obj)

	return map[string]any{
		"id":        obj.ID,
		"kind":      string(obj.Kind),
		"title":     obj.Title,
		"status":    string(obj.Status),
		"file_path": path,
		"created":   obj.Created.Format(types.TimestampLayout),
	}, nil
}

// createRoots resolves the planning root, creating the skeleton when
// the handler is pointed at a bare directory and auto-create is on.
func (rt *Runtime) createRoots(projectRoot string) (paths.Roots, error) {
	roots, err := rt.resolveRoots(projectRoot)
	if err != nil {
		return paths.Roots{}, err
	}
	if !rt.AutoCreateDirs {
		return roots, nil
	}
	// A bare root resolves to itself; give it the planning skeleton.
	if roots.Resolution != filepath.Join(roots.Scanning, paths.PlanningDirName) {
		return paths.EnsureLayout(projectRoot)
	}
	return roots, nil
}

// chooseID validates an explicit ID or derives one from the title,
// suffixing on collision.
func (rt *Runtime) chooseID(resolver *paths.Resolver, kind types.Kind, req CreateRequest, now time.Time) (string, error) {
	if req.ID != "" {
		if err := rt.Validator.CheckID(req.ID); err != nil {
			return "", err
		}
		clean, err := ids.Normalize(req.ID, string(kind))
		if err != nil {
			return "", err
		}
		if err := ids.Validate(clean, true); err != nil {
			return "", err
		}
		return clean, nil
	}

	base, err := ids.FromTitle(req.Title, string(kind))
	if err != nil {
		return "", err
	}
	if err := ids.Validate(base, true); err != nil {
		return "", err
	}
	candidate := base
	for n := 1; ; n++ {
		if _, err := resolver.Locate(kind, candidate); err != nil {
			return candidate, nil // no existing object with this ID
		}
		candidate = ids.WithSuffix(base, n)
		if n > 1000 {
			return "", errs.New(errs.CodeInvalidField,
				"could not derive a unique ID from title %q", req.Title)
		}
	}
}

// invalidateParentOf drops the children-cache entry of the new
// object's parent.
func (rt *Runtime) invalidateParentOf(resolver *paths.Resolver, obj *types.Object) {
	if rt.Children == nil || obj.Parent == "" {
		return
	}
	parentKind := obj.Kind.ParentKind()
	if parentKind == "" {
		return
	}
	if parentFile, err := resolver.Locate(parentKind, obj.Parent); err == nil {
		rt.Children.Invalidate(parentFile)
	}
}
