// Package graph builds and executes a validated node topology:
// kind-compatibility checked edges, producer-first open with rollback,
// end-to-end stream composition, and reverse-order close with a timeout.
package graph

import (
	"fmt"

	"github.com/speechflow/speechflow/chunk"
	"github.com/speechflow/speechflow/errs"
	"github.com/speechflow/speechflow/node"
)

// Builder accumulates nodes and edges before validating them into a Graph.
type Builder struct {
	order []string
	byID  map[string]node.Node
	edges map[string][]string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		byID:  make(map[string]node.Node),
		edges: make(map[string][]string),
	}
}

// AddNode registers a node without connecting it.
func (b *Builder) AddNode(n node.Node) *Builder {
	if _, exists := b.byID[n.ID()]; !exists {
		b.order = append(b.order, n.ID())
	}
	b.byID[n.ID()] = n
	return b
}

// Chain registers nodes and connects each to the next in sequence.
func (b *Builder) Chain(nodes ...node.Node) *Builder {
	for i, n := range nodes {
		b.AddNode(n)
		if i > 0 {
			b.Connect(nodes[i-1].ID(), n.ID())
		}
	}
	return b
}

// Connect adds a directed edge between two already-registered node ids.
func (b *Builder) Connect(fromID, toID string) *Builder {
	b.edges[fromID] = append(b.edges[fromID], toID)
	return b
}

// Branch fans a single node's output out to several downstream nodes. The
// data layer tracks these edges; Build permits them, but Runtime.Run
// requires a single linear path (see Graph.linearize).
func (b *Builder) Branch(fromID string, toIDs ...string) *Builder {
	for _, toID := range toIDs {
		b.Connect(fromID, toID)
	}
	return b
}

// Graph is a validated, immutable node topology.
type Graph struct {
	order []string
	byID  map[string]node.Node
	edges map[string][]string
}

// Build validates the accumulated nodes/edges and returns an immutable Graph:
// every edge must reference a registered node, kinds must be compatible
// across every edge, and the topology must be acyclic.
func (b *Builder) Build() (*Graph, error) {
	if len(b.order) == 0 {
		return nil, errs.New("graph", "build", errs.Configuration, fmt.Errorf("graph has no nodes"))
	}
	for from, tos := range b.edges {
		if _, ok := b.byID[from]; !ok {
			return nil, errs.New("graph", "build", errs.Configuration, fmt.Errorf("edge references unknown node %q", from))
		}
		for _, to := range tos {
			target, ok := b.byID[to]
			if !ok {
				return nil, errs.New("graph", "build", errs.Configuration, fmt.Errorf("edge references unknown node %q", to))
			}
			source := b.byID[from]
			if !kindCompatible(source.Output(), target.Input()) {
				return nil, errs.New("graph", "build", errs.Configuration,
					fmt.Errorf("incompatible edge %s(%s) -> %s(%s)", from, source.Output(), to, target.Input()))
			}
		}
	}
	if err := detectCycle(b.order, b.edges); err != nil {
		return nil, err
	}

	g := &Graph{
		order: append([]string(nil), b.order...),
		byID:  make(map[string]node.Node, len(b.byID)),
		edges: make(map[string][]string, len(b.edges)),
	}
	for k, v := range b.byID {
		g.byID[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = append([]string(nil), v...)
	}
	return g, nil
}

// kindCompatible requires both sides of an edge to agree on a concrete
// kind. KindNone is never legal on an edge: it marks a source's input or a
// sink's output, and a node declaring it must sit at the corresponding end
// of the chain, with no edge attached to that side.
func kindCompatible(out, in chunk.Kind) bool {
	return out != chunk.KindNone && in != chunk.KindNone && out == in
}

func detectCycle(order []string, edges map[string][]string) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(order))
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, next := range edges[id] {
			switch color[next] {
			case gray:
				return errs.New("graph", "build", errs.Configuration, fmt.Errorf("cycle detected at %q", next))
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, id := range order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Nodes returns the registered nodes in registration order.
func (g *Graph) Nodes() []node.Node {
	out := make([]node.Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.byID[id])
	}
	return out
}

// roots returns node ids with no incoming edge.
func (g *Graph) roots() []string {
	hasIncoming := make(map[string]bool)
	for _, tos := range g.edges {
		for _, to := range tos {
			hasIncoming[to] = true
		}
	}
	var roots []string
	for _, id := range g.order {
		if !hasIncoming[id] {
			roots = append(roots, id)
		}
	}
	return roots
}

// linearize resolves the single producer-to-sink chain Runtime.Run executes.
// It fails if the graph branches (a node with more than one outgoing edge)
// or merges (a node with more than one incoming edge) or has more than one
// root. Branching topologies validate at Build but need a fan-out
// scheduler this runtime does not ship yet.
func (g *Graph) linearize() ([]node.Node, error) {
	roots := g.roots()
	if len(roots) != 1 {
		return nil, errs.New("graph", "linearize", errs.Configuration,
			fmt.Errorf("runtime requires exactly one root, found %d", len(roots)))
	}

	incoming := make(map[string]int)
	for _, tos := range g.edges {
		for _, to := range tos {
			incoming[to]++
		}
	}
	for id, n := range incoming {
		if n > 1 {
			return nil, errs.New("graph", "linearize", errs.Configuration,
				fmt.Errorf("node %q has multiple upstreams; Runtime.Run does not support fan-in", id))
		}
	}

	chain := []node.Node{g.byID[roots[0]]}
	cur := roots[0]
	for {
		tos := g.edges[cur]
		if len(tos) == 0 {
			break
		}
		if len(tos) > 1 {
			return nil, errs.New("graph", "linearize", errs.Configuration,
				fmt.Errorf("node %q fans out to %d nodes; Runtime.Run does not support branching", cur, len(tos)))
		}
		cur = tos[0]
		chain = append(chain, g.byID[cur])
	}
	if len(chain) != len(g.order) {
		return nil, errs.New("graph", "linearize", errs.Configuration,
			fmt.Errorf("graph contains nodes unreachable from the single root"))
	}
	return chain, nil
}
