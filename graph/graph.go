// Package graph provides a small state-graph runner: named nodes, each a
// function that updates a shared State and names its successor, executed
// strictly sequentially under an iteration ceiling.
package graph

import (
	"context"
	"fmt"
	"sort"
)

// End is the pseudo node a node returns to stop the run.
const End = "__end__"

// NodeFunc runs one node. It may read and update state and returns the name
// of the next node, or End.
type NodeFunc func(ctx context.Context, state *State) (next string, err error)

// Graph is an immutable set of named nodes with an entry node and a finish
// node. The finish node is where the runner jumps when the run is out of
// budget; it should return End.
type Graph struct {
	nodes  map[string]NodeFunc
	entry  string
	finish string
}

// Builder assembles a Graph.
type Builder struct {
	nodes  map[string]NodeFunc
	order  []string
	entry  string
	finish string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{nodes: map[string]NodeFunc{}}
}

// AddNode registers a node. The first node added is the default entry.
func (b *Builder) AddNode(name string, fn NodeFunc) *Builder {
	if _, ok := b.nodes[name]; !ok {
		b.order = append(b.order, name)
	}

	b.nodes[name] = fn

	return b
}

// SetEntry sets the entry node.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

// SetFinish sets the finish node.
func (b *Builder) SetFinish(name string) *Builder {
	b.finish = name
	return b
}

// Build validates and returns the Graph.
func (b *Builder) Build() (*Graph, error) {
	if len(b.nodes) == 0 {
		return nil, fmt.Errorf("graph has no nodes")
	}

	if b.finish == "" {
		return nil, fmt.Errorf("graph has no finish node")
	}

	entry := b.entry
	if entry == "" {
		entry = b.order[0]
	}

	for _, name := range []string{entry, b.finish} {
		if _, ok := b.nodes[name]; !ok {
			return nil, fmt.Errorf("graph references unknown node %q", name)
		}
	}

	nodes := make(map[string]NodeFunc, len(b.nodes))

	for name, fn := range b.nodes {
		if name == End || name == "" {
			return nil, fmt.Errorf("invalid node name %q", name)
		}

		if fn == nil {
			return nil, fmt.Errorf("node %q has no function", name)
		}

		nodes[name] = fn
	}

	return &Graph{nodes: nodes, entry: entry, finish: b.finish}, nil
}

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// Finish returns the finish node name.
func (g *Graph) Finish() string { return g.finish }

// Nodes returns the sorted node names.
func (g *Graph) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
