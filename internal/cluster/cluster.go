// Package cluster groups addresses that transact with overlapping
// counterparty sets and scores how strongly the resulting groups connect.
package cluster

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"walletscope/internal/cycle"
	"walletscope/internal/graph"
	"walletscope/internal/ledger"
)

// Related points at another cluster with a [0,1] connection strength.
type Related struct {
	ID       string  `json:"id"`
	Strength float64 `json:"strength"`
}

// Cluster is a group of addresses hypothesized to be related.
type Cluster struct {
	ID               string          `json:"id"`
	Label            string          `json:"label"`
	Members          []string        `json:"members"`
	TransactionCount int             `json:"transactionCount"`
	Volume           decimal.Decimal `json:"volume"`
	SuspicionScore   float64         `json:"suspicionScore"`
	RelatedClusters  []Related       `json:"relatedClusters,omitempty"`
}

// Options tune the clustering heuristics. The defaults are uncalibrated
// heuristic constants, which is exactly why they are configurable.
type Options struct {
	// OverlapThreshold is the neighbor-overlap ratio above which two
	// addresses are grouped.
	OverlapThreshold float64
	// RelationFloor drops inter-cluster relations weaker than this.
	RelationFloor float64
	// ExpansionBreadth caps how many top counterparties get their own
	// transfer fetch when multi-hop expansion is on.
	ExpansionBreadth int
	// ExpansionFetchLimit is the per-address transfer limit for expansion
	// rounds.
	ExpansionFetchLimit int
}

func (o Options) withDefaults() Options {
	if o.OverlapThreshold <= 0 {
		o.OverlapThreshold = 0.3
	}
	if o.RelationFloor <= 0 {
		o.RelationFloor = 0.1
	}
	if o.ExpansionBreadth <= 0 {
		o.ExpansionBreadth = 5
	}
	if o.ExpansionFetchLimit <= 0 {
		o.ExpansionFetchLimit = 50
	}
	return o
}

// Engine partitions graph addresses into clusters.
type Engine struct {
	opts   Options
	source ledger.TransferSource
	logger zerolog.Logger
}

// NewEngine constructs a cluster engine. The transfer source is only used
// for multi-hop expansion and may be nil when expansion is never requested.
func NewEngine(opts Options, source ledger.TransferSource, logger zerolog.Logger) *Engine {
	return &Engine{
		opts:   opts.withDefaults(),
		source: source,
		logger: logger.With().Str("component", "cluster_engine").Logger(),
	}
}

// Cluster builds the interaction graph for the center address and partitions
// it. With expand set, transfers of the most-interacted counterparties are
// fetched sequentially and merged in first; the shared indexer rate limit is
// why those fetches are not parallel.
func (e *Engine) Cluster(ctx context.Context, center string, records []ledger.TransferRecord, expand bool) ([]Cluster, *graph.Graph, error) {
	g := graph.Build(center, records)

	if expand && e.source != nil {
		for _, addr := range g.TopCounterparties(e.opts.ExpansionBreadth) {
			more, err := e.source.Transfers(ctx, addr, e.opts.ExpansionFetchLimit)
			if err != nil {
				return nil, nil, fmt.Errorf("expand cluster via %s: %w", addr, err)
			}
			g.Add(more)
		}
		e.logger.Debug().
			Str("center", center).
			Int("addresses", len(g.Addresses())).
			Msg("merged expansion rounds")
	}

	clusters := e.partition(g)
	e.scoreRelations(g, clusters)
	return clusters, g, nil
}

// Partition groups the addresses of an already-built graph. Exposed for
// callers that manage their own expansion.
func (e *Engine) Partition(g *graph.Graph) []Cluster {
	clusters := e.partition(g)
	e.scoreRelations(g, clusters)
	return clusters
}

func (e *Engine) partition(g *graph.Graph) []Cluster {
	center := g.Center()

	// The analyzed wallet always leads as its own singleton, carrying the
	// aggregates of the whole input set.
	clusters := []Cluster{{
		ID:               "cluster-0",
		Label:            "analyzed wallet",
		Members:          []string{center},
		TransactionCount: g.TransferCount(),
		Volume:           g.TotalVolume(),
	}}

	order := g.Addresses()
	assigned := map[string]bool{center: true}

	for _, a := range order {
		if assigned[a] {
			continue
		}
		assigned[a] = true
		members := []string{a}

		na := g.Neighbors(a)
		if len(na) > 0 {
			for _, b := range order {
				if assigned[b] {
					continue
				}
				if overlap(na, g.Neighbors(b)) > e.opts.OverlapThreshold {
					assigned[b] = true
					members = append(members, b)
				}
			}
		}

		c := Cluster{
			ID:      fmt.Sprintf("cluster-%d", len(clusters)),
			Label:   fmt.Sprintf("related group %d", len(clusters)),
			Members: members,
		}
		for _, m := range members {
			st := g.Stats(m)
			c.TransactionCount += st.Interactions
			c.Volume = c.Volume.Add(st.Volume)
		}
		c.SuspicionScore = cycle.Density(g, members)
		clusters = append(clusters, c)
	}

	clusters[0].SuspicionScore = cycle.Density(g, clusters[0].Members)
	return clusters
}

// overlap is |shared| / |na|; the caller guarantees na is non-empty.
func overlap(na, nb map[string]bool) float64 {
	shared := 0
	for n := range na {
		if nb[n] {
			shared++
		}
	}
	return float64(shared) / float64(len(na))
}

// scoreRelations records, for every ordered cluster pair, how densely
// members of one send directly to members of the other.
func (e *Engine) scoreRelations(g *graph.Graph, clusters []Cluster) {
	for i := range clusters {
		for j := range clusters {
			if i == j {
				continue
			}

			edges := 0
			for _, from := range clusters[i].Members {
				for _, to := range clusters[j].Members {
					if g.HasEdge(from, to) {
						edges++
					}
				}
			}
			if edges == 0 {
				continue
			}

			strength := float64(edges) / float64(len(clusters[i].Members)*len(clusters[j].Members))
			if strength > 1 {
				strength = 1
			}
			if strength > e.opts.RelationFloor {
				clusters[i].RelatedClusters = append(clusters[i].RelatedClusters, Related{
					ID:       clusters[j].ID,
					Strength: strength,
				})
			}
		}
	}
}
