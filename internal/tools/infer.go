package tools

import (
	"strings"

	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/ids"
	"github.com/trellis-dev/trellis/internal/paths"
	"github.com/trellis-dev/trellis/internal/types"
)

// inferKind determines an object's kind from its ID. A recognized
// prefix decides immediately; otherwise the tree is probed for a unique
// match across the four kinds.
func inferKind(resolver *paths.Resolver, id string) (types.Kind, string, error) {
	if kind := ids.KindFromPrefix(id); kind != "" {
		return types.Kind(kind), ids.CleanPrereq(id), nil
	}

	clean := ids.CleanPrereq(id)
	var candidates []types.Kind
	for _, kind := range types.AllKinds {
		if _, err := resolver.Locate(kind, clean); err == nil {
			candidates = append(candidates, kind)
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], clean, nil
	case 0:
		return "", "", errs.New(errs.CodeInvalidField,
			"no object found with ID %q", clean).WithObject(clean, "")
	default:
		names := make([]string, len(candidates))
		for i, k := range candidates {
			names[i] = string(k)
		}
		return "", "", errs.New(errs.CodeInvalidField,
			"ID %q is ambiguous across kinds: %s", clean, strings.Join(names, ", ")).
			WithObject(clean, "")
	}
}
