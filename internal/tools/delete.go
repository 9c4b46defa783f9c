package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/lifecycle"
	"github.com/trellis-dev/trellis/internal/markdown"
	"github.com/trellis-dev/trellis/internal/paths"
	"github.com/trellis-dev/trellis/internal/types"
)

// cascadeDelete removes a container and every descendant file in one
// logical sweep. Descendant tasks in in-progress or review protect the
// subtree unless force is set.
func (rt *Runtime) cascadeDelete(resolver *paths.Resolver, path, cleanID string, kind types.Kind, force bool) (map[string]any, error) {
	descendants, err := resolver.Descendants(path)
	if err != nil {
		return nil, err
	}

	var protected []string
	for _, d := range descendants {
		obj, err := markdown.ReadObject(d)
		if err != nil {
			continue // unreadable descendants cannot protect the subtree
		}
		if obj.Kind == types.KindTask && lifecycle.IsProtected(obj.Status) {
			protected = append(protected, obj.ID)
		}
	}
	if len(protected) > 0 && !force {
		return nil, errs.New(errs.CodeProtectedObject,
			"cannot delete: descendant tasks are in progress or review: %s",
			strings.Join(protected, ", ")).WithObject(cleanID, string(kind))
	}

	if rt.Audit != nil {
		rt.Audit.Action("cascade_delete", map[string]string{
			"object":      cleanID,
			"kind":        string(kind),
			"descendants": fmt.Sprintf("%d", len(descendants)),
			"forced":      fmt.Sprintf("%t", force),
		})
	}

	// The container directory holds the container file and the whole
	// subtree; removing it is the single sweep.
	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		return nil, errs.Wrap(errs.CodeCascadeError, err,
			"delete of %s did not complete; the tree may hold partial state", cleanID).
			WithObject(cleanID, string(kind))
	}

	// Listings of every ancestor are stale now.
	rt.Children.InvalidateAll()

	return map[string]any{
		"id":      cleanID,
		"kind":    string(kind),
		"updated": time.Now().Format(types.TimestampLayout),
		"changes": []string{"status: deleted", fmt.Sprintf("removed %d descendant files", len(descendants))},
	}, nil
}
