// Package graph builds the prerequisites adjacency over all stored
// objects and detects cycles. All keys are clean IDs; prerequisite
// references may arrive prefixed or clean and are normalized when the
// adjacency is built, so a chain weaving between hierarchical and
// standalone tasks is one graph.
package graph

import (
	"sort"
	"strings"

	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/ids"
	"github.com/trellis-dev/trellis/internal/scanner"
	"github.com/trellis-dev/trellis/internal/types"
)

// Adjacency maps a clean ID to the clean IDs of its prerequisites.
type Adjacency map[string][]string

// Build constructs the adjacency from a loaded object set.
func Build(objects map[string]*scanner.Loaded) Adjacency {
	adj := make(Adjacency, len(objects))
	for id, loaded := range objects {
		adj[id] = cleanAll(loaded.Object.Prerequisites)
	}
	return adj
}

// WithCandidate returns a copy of the adjacency with one node added or
// replaced by a hypothetical header, for pre-write validation.
func (a Adjacency) WithCandidate(obj *types.Object) Adjacency {
	out := make(Adjacency, len(a)+1)
	for k, v := range a {
		out[k] = v
	}
	out[obj.ID] = cleanAll(obj.Prerequisites)
	return out
}

// FindCycle runs DFS with a recursion stack over every node and returns
// the first cycle found as a path (closing node repeated at the end),
// or nil when the graph is acyclic. Iteration order is sorted so the
// result is deterministic.
func (a Adjacency) FindCycle() []string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(a))

	nodes := make([]string, 0, len(a))
	for n := range a {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	var stack []string
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		state[node] = inStack
		stack = append(stack, node)
		for _, dep := range a[node] {
			switch state[dep] {
			case inStack:
				// Back-edge: slice the cycle out of the stack.
				for i, s := range stack {
					if s == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						return true
					}
				}
				cycle = []string{dep, node, dep}
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[node] = done
		return false
	}

	for _, n := range nodes {
		if state[n] == unvisited && visit(n) {
			return cycle
		}
	}
	return nil
}

// Check returns a CIRCULAR_DEPENDENCY error when the adjacency has a
// cycle, nil otherwise.
func (a Adjacency) Check() error {
	if cycle := a.FindCycle(); cycle != nil {
		return errs.New(errs.CodeCircularDependency,
			"prerequisites form a cycle: %s", strings.Join(cycle, " -> "))
	}
	return nil
}

// ValidateCandidate checks a hypothetical new or updated header against
// the existing object set without writing anything.
func ValidateCandidate(objects map[string]*scanner.Loaded, obj *types.Object) error {
	return Build(objects).WithCandidate(obj).Check()
}

func cleanAll(prereqs []string) []string {
	out := make([]string, len(prereqs))
	for i, p := range prereqs {
		out[i] = ids.CleanPrereq(p)
	}
	return out
}
