package workflow

import (
	"github.com/flowd-dev/flowd/runtime/floerr"
)

// Validate performs the structural checks the runtime requires before
// accepting a graph: unique node identifiers, edge reference integrity, and
// acyclicity. Validation is pure and idempotent; it runs before execution
// start and before generator output is accepted.
//
// Disconnected nodes are legal and merely unreachable.
func Validate(w *Workflow) error {
	nodes := make(map[string]struct{}, len(w.Nodes))
	for _, n := range w.Nodes {
		if _, dup := nodes[n.ID]; dup {
			return floerr.Newf(floerr.KindDuplicateNode, "duplicate node id %q", n.ID)
		}
		nodes[n.ID] = struct{}{}
	}

	// Reference integrity: both endpoints of every edge must be known nodes.
	for _, e := range w.Edges {
		if _, ok := nodes[e.Source]; !ok {
			return floerr.Newf(floerr.KindDanglingEdge, "edge %s references missing source node %q", e.ID, e.Source)
		}
		if _, ok := nodes[e.Target]; !ok {
			return floerr.Newf(floerr.KindDanglingEdge, "edge %s references missing target node %q", e.ID, e.Target)
		}
	}

	// Acyclicity: depth-first traversal with a visit set and a recursion set;
	// any back-edge is a cycle.
	adjacency := make(map[string][]string, len(w.Nodes))
	for _, e := range w.Edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}
	visited := make(map[string]bool, len(w.Nodes))
	inStack := make(map[string]bool, len(w.Nodes))

	var visit func(id string) error
	visit = func(id string) error {
		visited[id] = true
		inStack[id] = true
		for _, next := range adjacency[id] {
			if inStack[next] {
				return floerr.Newf(floerr.KindCycleDetected, "cycle through node %q", next)
			}
			if !visited[next] {
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		inStack[id] = false
		return nil
	}

	for _, n := range w.Nodes {
		if !visited[n.ID] {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
