package tools

import (
	"fmt"
	"sort"
	"time"

	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/graph"
	"github.com/trellis-dev/trellis/internal/lifecycle"
	"github.com/trellis-dev/trellis/internal/markdown"
	"github.com/trellis-dev/trellis/internal/types"
)

// UpdateObject applies a header patch and/or body replacement. The
// header patch deep-merges (nested maps merge, scalars and lists
// replace); the whole header is re-validated, the transition checked,
// and the prerequisites graph re-verified with rollback on cycle.
// Setting a container's status to "deleted" switches to the cascade
// delete path instead.
func (rt *Runtime) UpdateObject(req UpdateRequest) (map[string]any, error) {
	if req.ID == "" {
		return nil, errs.New(errs.CodeMissingRequiredField, "id is required")
	}
	if req.YamlPatch == nil && req.BodyPatch == nil {
		return nil, errs.New(errs.CodeMissingRequiredField,
			"at least one of yamlPatch or bodyPatch is required")
	}
	if err := rt.Validator.CheckID(req.ID); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(req.YamlPatch))
	for k := range req.YamlPatch {
		keys = append(keys, k)
	}
	if err := rt.Validator.CheckHeaderKeys(keys); err != nil {
		return nil, err
	}

	roots, err := rt.resolveRoots(req.ProjectRoot)
	if err != nil {
		return nil, err
	}
	resolver := rt.resolver(roots)

	kind, clean, err := inferKind(resolver, req.ID)
	if err != nil {
		return nil, err
	}
	path, err := resolver.Locate(kind, clean)
	if err != nil {
		return nil, err
	}

	// Cascade delete sentinel takes over before any merge.
	if raw, ok := req.YamlPatch["status"]; ok {
		if s, ok := raw.(string); ok && types.Status(s) == types.StatusDeleted {
			if kind == types.KindTask {
				return nil, errs.New(errs.CodeInvalidField,
					"Invalid status 'deleted' for task. Must be one of: open, in-progress, review, done")
			}
			return rt.cascadeDelete(resolver, path, clean, kind, req.Force)
		}
	}

	snapshot, err := graph.Take(path)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, err, "object state could not be captured")
	}
	obj, err := markdown.ReadObject(path)
	if err != nil {
		return nil, err
	}
	prevStatus := obj.Status
	prevUpdated := obj.Updated

	changes, err := rt.applyPatch(obj, req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	obj.Touch(now)
	if !obj.Updated.After(prevUpdated) {
		// Same-instant writes still move forward.
		obj.Updated = prevUpdated.Add(time.Microsecond)
	}

	if err := obj.Validate(); err != nil {
		return nil, err
	}
	if obj.Status != prevStatus {
		if obj.Kind == types.KindTask && obj.Status == types.StatusDone {
			return nil, errs.New(errs.CodeInvalidStatusTransition,
				"tasks reach done only through completeTask").WithObject(clean, string(kind))
		}
		if err := lifecycle.CheckTransition(obj.Kind, prevStatus, obj.Status); err != nil {
			return nil, err
		}
	}

	// Pre-write cycle check against the rest of the tree.
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

	// Post-write re-validation; a racing write may have closed a cycle.
	stored, scanErr := rt.scanner(roots).AllObjects()
	if scanErr == nil {
		if cycleErr := graph.Build(stored).Check(); cycleErr != nil {
			snapshot.Restore(rt.Log)
			return nil, cycleErr
		}
	}

	rt.Children.Invalidate(path)
	rt.invalidateParentOf(resolver, obj)

	sort.Strings(changes)
	return map[string]any{
		"id":      obj.ID,
		"kind":    string(obj.Kind),
		"updated": obj.Updated.Format(types.TimestampLayout),
		"changes": changes,
	}, nil
}

// applyPatch merges the request into the object and returns the list
// of changed fields.
func (rt *Runtime) applyPatch(obj *types.Object, req UpdateRequest) ([]string, error) {
	var changes []string

	for key, raw := range req.YamlPatch {
		switch key {
		case "title":
			s, err := stringValue(key, raw)
			if err != nil {
				return nil, err
			}
			obj.Title = s
		case "status":
			s, err := stringValue(key, raw)
			if err != nil {
				return nil, err
			}
			obj.Status = types.Status(s)
		case "priority":
			s, err := stringValue(key, raw)
			if err != nil {
				return nil, err
			}
			p, err := types.CanonicalPriority(s)
			if err != nil {
				return nil, err
			}
			obj.Priority = p
		case "prerequisites":
			prereqs, err := stringListValue(key, raw)
			if err != nil {
				return nil, err
			}
			obj.Prerequisites = prereqs
		case "worktree":
			s, err := stringValue(key, raw)
			if err != nil {
				return nil, err
			}
			obj.Worktree = s
		case "parent":
			// Reparenting would move files across the tree; it is not
			// supported through update.
			return nil, errs.New(errs.CodeParentInvalid,
				"parent cannot be changed through updateObject")
		case "kind", "id", "created", "schema_version":
			return nil, errs.New(errs.CodeInvalidField, "field %q is immutable", key)
		case "updated":
			// Refreshed by the handler; a caller-supplied value is
			// ignored rather than rejected.
			continue
		default:
			mergeExtra(obj, key, raw)
		}
		changes = append(changes, key)
	}

	if req.BodyPatch != nil {
		obj.Body = *req.BodyPatch
		changes = append(changes, "body")
	}
	return changes, nil
}

// mergeExtra deep-merges an unrecognized key into the preserved header
// fields: nested maps merge recursively, everything else replaces.
func mergeExtra(obj *types.Object, key string, value any) {
	for i, extra := range obj.Extra {
		if extra.Key == key {
			obj.Extra[i].Value = mergeValues(extra.Value, value)
			return
		}
	}
	obj.Extra = append(obj.Extra, types.ExtraField{Key: key, Value: value})
}

func mergeValues(old, new any) any {
	oldMap, oldOK := asStringMap(old)
	newMap, newOK := asStringMap(new)
	if !oldOK || !newOK {
		return new
	}
	merged := make(map[string]any, len(oldMap)+len(newMap))
	for k, v := range oldMap {
		merged[k] = v
	}
	for k, v := range newMap {
		if existing, ok := merged[k]; ok {
			merged[k] = mergeValues(existing, v)
		} else {
			merged[k] = v
		}
	}
	return merged
}

func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, true
	}
	return nil, false
}

func stringValue(key string, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", errs.New(errs.CodeInvalidField, "field %q must be a string", key)
	}
	return s, nil
}

func stringListValue(key string, raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errs.New(errs.CodeInvalidField, "field %q must be a list of strings", key)
			}
			out[i] = s
		}
		return out, nil
	case nil:
		return []string{}, nil
	}
	return nil, errs.New(errs.CodeInvalidField, "field %q must be a list of strings", key)
}
