package tools

import (
	"github.com/trellis-dev/trellis/internal/markdown"
	"github.com/trellis-dev/trellis/internal/paths"
	"github.com/trellis-dev/trellis/internal/types"
)

// GetObject reads one object plus its immediate-children listing. The
// children listing goes through the cache; any cache or discovery
// failure degrades to an empty list without failing the read.
func (rt *Runtime) GetObject(req GetRequest) (map[string]any, error) {
	if err := rt.Validator.CheckID(req.ID); err != nil {
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
	obj, err := markdown.ReadObject(path)
	if err != nil {
		return nil, err
	}

	children := rt.childrenListing(roots, path)

	return map[string]any{
		"yaml":     headerMap(obj),
		"body":     obj.Body,
		"kind":     string(obj.Kind),
		"id":       obj.ID,
		"children": children,
	}, nil
}

// childrenListing returns the immediate children of the object at
// parentFile, using the cache when fresh. Failures yield an empty
// list: children are a convenience, never a reason to fail a read.
func (rt *Runtime) childrenListing(roots paths.Roots, parentFile string) []map[string]any {
	resolver := rt.resolver(roots)

	if rt.Children != nil {
		if cached, ok := rt.Children.Get(parentFile); ok {
			return summariesToMaps(cached)
		}
	}
	children, err := resolver.Children(parentFile)
	if err != nil {
		return []map[string]any{}
	}
	if rt.Children != nil {
		rt.Children.Put(parentFile, children, resolver.ChildMtimeFiles(parentFile))
	}
	return summariesToMaps(children)
}

func summariesToMaps(children []types.ChildSummary) []map[string]any {
	out := make([]map[string]any, 0, len(children))
	for _, c := range children {
		// file_path is internal; the getObject listing omits it.
		out = append(out, map[string]any{
			"id":      c.ID,
			"title":   c.Title,
			"status":  string(c.Status),
			"kind":    string(c.Kind),
			"created": c.Created.Format(types.TimestampLayout),
		})
	}
	return out
}
