// Package graph builds the in-memory address-interaction graph that the
// clustering and pattern stages analyze. A graph is rebuilt from scratch for
// every analysis run; nothing here survives across requests.
package graph

import (
	"sort"

	"github.com/shopspring/decimal"

	"walletscope/internal/ledger"
)

// Stats aggregates activity observed for one address.
type Stats struct {
	Interactions int
	Volume       decimal.Decimal
}

// Edge aggregates directed flow between an ordered address pair.
type Edge struct {
	Count  int
	Volume decimal.Decimal
}

// Graph is the interaction graph for one analysis run. Addresses keep their
// first-seen order so downstream stages stay deterministic for a fixed input.
type Graph struct {
	center string
	order  []string
	seen   map[string]bool

	neighbors map[string]map[string]bool
	edges     map[string]map[string]Edge
	stats     map[string]Stats

	transferCount int
	totalVolume   decimal.Decimal
}

// New creates an empty graph centered on the analyzed address.
func New(center string) *Graph {
	return &Graph{
		center:    center,
		seen:      make(map[string]bool),
		neighbors: make(map[string]map[string]bool),
		edges:     make(map[string]map[string]Edge),
		stats:     make(map[string]Stats),
	}
}

// Build constructs a graph from one transfer batch.
func Build(center string, records []ledger.TransferRecord) *Graph {
	g := New(center)
	g.Add(records)
	return g
}

// Add merges a transfer batch into the graph. Multi-hop expansion calls this
// once per fetched address; everything else calls it exactly once.
func (g *Graph) Add(records []ledger.TransferRecord) {
	for _, rec := range records {
		if rec.From == "" || rec.To == "" || rec.From == rec.To {
			continue
		}

		g.observe(rec.From)
		g.observe(rec.To)

		g.neighbors[rec.From][rec.To] = true
		g.neighbors[rec.To][rec.From] = true

		edge := g.edges[rec.From][rec.To]
		edge.Count++
		edge.Volume = edge.Volume.Add(rec.Amount)
		g.edges[rec.From][rec.To] = edge

		for _, addr := range [2]string{rec.From, rec.To} {
			st := g.stats[addr]
			st.Interactions++
			st.Volume = st.Volume.Add(rec.Amount)
			g.stats[addr] = st
		}

		g.transferCount++
		g.totalVolume = g.totalVolume.Add(rec.Amount)
	}
}

func (g *Graph) observe(addr string) {
	if !g.seen[addr] {
		g.seen[addr] = true
		g.order = append(g.order, addr)
		g.neighbors[addr] = make(map[string]bool)
		g.edges[addr] = make(map[string]Edge)
	}
}

// Center returns the analyzed address.
func (g *Graph) Center() string { return g.center }

// Addresses returns every observed address in first-seen order.
func (g *Graph) Addresses() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Neighbors returns the undirected counterparty set of an address.
func (g *Graph) Neighbors(addr string) map[string]bool {
	return g.neighbors[addr]
}

// HasEdge reports whether a directed from→to edge exists.
func (g *Graph) HasEdge(from, to string) bool {
	_, ok := g.edges[from][to]
	return ok
}

// EdgeBetween returns the directed aggregate for from→to.
func (g *Graph) EdgeBetween(from, to string) (Edge, bool) {
	e, ok := g.edges[from][to]
	return e, ok
}

// OutNeighbors returns the directed targets of an address in sorted order,
// so traversals over the graph stay deterministic.
func (g *Graph) OutNeighbors(addr string) []string {
	targets := g.edges[addr]
	if len(targets) == 0 {
		return nil
	}
	out := make([]string, 0, len(targets))
	for to := range targets {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// Stats returns the per-address aggregate.
func (g *Graph) Stats(addr string) Stats {
	return g.stats[addr]
}

// TransferCount is the number of transfers merged into the graph.
func (g *Graph) TransferCount() int { return g.transferCount }

// TotalVolume is the summed amount of all merged transfers.
func (g *Graph) TotalVolume() decimal.Decimal { return g.totalVolume }

// TopCounterparties returns up to n non-center addresses ranked by
// interaction count, ties broken by first-seen order. Used to pick expansion
// targets for multi-hop clustering.
func (g *Graph) TopCounterparties(n int) []string {
	type ranked struct {
		addr  string
		count int
		pos   int
	}

	list := make([]ranked, 0, len(g.order))
	for i, addr := range g.order {
		if addr == g.center {
			continue
		}
		list = append(list, ranked{addr: addr, count: g.stats[addr].Interactions, pos: i})
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].pos < list[j].pos
	})

	if n > 0 && len(list) > n {
		list = list[:n]
	}
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.addr
	}
	return out
}
