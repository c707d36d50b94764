// Package graph provides a small directed graph used to detect
// cycles among group ids before a topology is frozen.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/slices"
)

// ErrCycleDetected is returned by TopologicalOrder when the graph
// contains a cycle.
var ErrCycleDetected = errors.New("cycle detected")

// AdjacencyListDigraph is a directed graph using an adjacency list
// representation. V should be a small, comparable type (an id).
// Multiple edges between the same pair of vertices are not supported.
type AdjacencyListDigraph[V comparable] struct {
	adj map[V][]V
}

func NewAdjacencyListDigraph[V comparable]() *AdjacencyListDigraph[V] {
	return &AdjacencyListDigraph[V]{
		adj: make(map[V][]V),
	}
}

// AddNode adds a vertex unconnected to any other vertex.
// It returns true if the node didn't already exist.
func (g *AdjacencyListDigraph[V]) AddNode(node V) bool {
	_, ok := g.adj[node]
	if !ok {
		g.adj[node] = nil
	}
	return !ok
}

// AddEdge adds an edge from -> to. Both vertices are created if absent.
// Duplicate edges are not added twice.
func (g *AdjacencyListDigraph[V]) AddEdge(from, to V) {
	fromList := g.adj[from]
	if len(fromList) == 0 {
		g.adj[from] = []V{to}
		g.AddNode(to)
		return
	}

	if !g.AddNode(to) {
		if slices.Contains(fromList, to) {
			return
		}
	}

	g.adj[from] = append(g.adj[from], to)
}

// Nodes returns all vertices in the graph, in no particular order.
func (g *AdjacencyListDigraph[V]) Nodes() []V {
	nodes := make([]V, 0, len(g.adj))
	for n := range g.adj {
		nodes = append(nodes, n)
	}
	return nodes
}

// Edges returns all edges in the graph as {tail, head} pairs, in no
// particular order.
func (g *AdjacencyListDigraph[V]) Edges() [][2]V {
	edges := make([][2]V, 0, len(g.adj))
	for from, list := range g.adj {
		for _, to := range list {
			edges = append(edges, [2]V{from, to})
		}
	}
	return edges
}

// Has returns true if node is a vertex of the graph.
func (g *AdjacencyListDigraph[V]) Has(node V) bool {
	_, ok := g.adj[node]
	return ok
}

// Neighbours returns the out-neighbours of node, in no particular order.
// (nil, false) is returned if node is not in the graph.
func (g *AdjacencyListDigraph[V]) Neighbours(node V) ([]V, bool) {
	if l, ok := g.adj[node]; !ok {
		return nil, false
	} else if len(l) == 0 {
		return nil, true
	} else {
		return slices.Clone(l), true
	}
}

type line struct {
	node string
	outs []string
}

// String renders the graph with one line per vertex, sorted
// lexicographically by the vertex's fmt.Sprint representation.
func (g *AdjacencyListDigraph[V]) String() string {
	var lines []line
	for node, to := range g.adj {
		toStr := make([]string, len(to))
		for i, neighbour := range to {
			toStr[i] = fmt.Sprint(neighbour)
		}
		slices.Sort(toStr)
		lines = append(lines, line{node: fmt.Sprint(node), outs: toStr})
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].node < lines[j].node })

	var sb strings.Builder
	for i, l := range lines {
		sb.WriteString(l.node)
		sb.WriteString(" ->")
		for _, neighbour := range l.outs {
			sb.WriteRune(' ')
			sb.WriteString(neighbour)
		}
		if i < len(lines)-1 {
			sb.WriteRune('\n')
		}
	}
	return sb.String()
}

// TopologicalOrder produces a topological order over all vertices using
// a depth-first visit. It returns ErrCycleDetected if the graph is
// cyclic, in which case order is nil.
func (g *AdjacencyListDigraph[V]) TopologicalOrder() (order []V, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if err2, ok := r.(error); ok && errors.Is(err2, ErrCycleDetected) {
			order = nil
			err = err2
			return
		}
		panic(r)
	}()

	// 0 (absent): unvisited, 1: on the current DFS stack, 2: finished
	seen := make(map[V]int, len(g.adj))
	toVisit := make(map[V]struct{}, len(g.adj))
	for v := range g.adj {
		toVisit[v] = struct{}{}
	}

	i := len(toVisit) - 1
	order = make([]V, len(toVisit))

	var visit func(v V)
	visit = func(v V) {
		switch seen[v] {
		case 1:
			panic(ErrCycleDetected)
		case 2:
			return
		}
		seen[v] = 1

		for _, neighbour := range g.adj[v] {
			visit(neighbour)
		}

		order[i] = v
		i--
		seen[v] = 2
		delete(toVisit, v)
	}

	for v := range toVisit {
		// toVisit shrinks as visit() runs; a vertex that visit has
		// already finished is deleted from it, and the check below
		// skips it if the range still yields it.
		if _, ok := toVisit[v]; ok {
			visit(v)
		}
	}

	return order, nil
}
