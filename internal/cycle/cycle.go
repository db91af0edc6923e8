// Package cycle estimates how circular a set of addresses' fund flows are.
// It backs both the cluster suspicion score (a cheap density estimate) and
// the critical-path report (bounded enumeration of concrete cycles).
package cycle

import (
	"strings"

	"walletscope/internal/graph"
)

// DefaultMaxDepth bounds path enumeration. Unbounded DFS over a dense
// transfer graph is combinatorial, so a depth cap is mandatory, not an
// optimization.
const DefaultMaxDepth = 8

const circularFlowReason = "circular fund flow detected"

// Finding is one concrete circular fund-flow path.
type Finding struct {
	Path      []string `json:"path"`
	RiskScore float64  `json:"riskScore"`
	Reason    string   `json:"reason"`
}

// Density estimates circularity for a member set: the share of ordered
// member pairs connected by a direct edge, scaled so that a fully
// interconnected trio already reads as suspicious. Fewer than three members
// cannot form a meaningful cycle and score zero.
func Density(g *graph.Graph, members []string) float64 {
	k := len(members)
	if k < 3 {
		return 0
	}

	pairs := 0
	for _, from := range members {
		for _, to := range members {
			if from == to {
				continue
			}
			if g.HasEdge(from, to) {
				pairs++
			}
		}
	}

	score := float64(pairs) / float64(k*2)
	if score > 1 {
		score = 1
	}
	return score
}

// Detector enumerates circular paths up to a fixed depth.
type Detector struct {
	maxDepth int
}

// NewDetector builds a path detector. A non-positive depth falls back to
// DefaultMaxDepth.
func NewDetector(maxDepth int) *Detector {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Detector{maxDepth: maxDepth}
}

// FindCircularPaths walks directed edges depth-first from every address and
// reports each distinct cycle longer than two hops. The walk keeps a single
// visited set with push/pop backtracking and an explicit frame stack, so a
// sibling branch may revisit an address a previous branch released.
// Rotations of the same cycle are collapsed to one finding.
func (d *Detector) FindCircularPaths(g *graph.Graph) []Finding {
	var findings []Finding
	reported := make(map[string]bool)

	type frame struct {
		node string
		next int
	}

	for _, start := range g.Addresses() {
		stack := []frame{{node: start}}
		visited := map[string]bool{start: true}
		path := []string{start}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			outs := g.OutNeighbors(top.node)

			if top.next >= len(outs) {
				stack = stack[:len(stack)-1]
				delete(visited, top.node)
				path = path[:len(path)-1]
				continue
			}

			nb := outs[top.next]
			top.next++

			if nb == start && len(path) > 2 {
				key := canonical(path)
				if !reported[key] {
					reported[key] = true
					findings = append(findings, Finding{
						Path:      append([]string(nil), path...),
						RiskScore: cycleRisk(len(path)),
						Reason:    circularFlowReason,
					})
				}
				continue
			}
			if visited[nb] || len(path) >= d.maxDepth {
				continue
			}

			stack = append(stack, frame{node: nb})
			visited[nb] = true
			path = append(path, nb)
		}
	}

	return findings
}

func cycleRisk(pathLen int) float64 {
	score := 0.5 + 0.1*float64(pathLen)
	if score > 1 {
		score = 1
	}
	return score
}

// canonical rotates a cycle so its lexicographically smallest member comes
// first, preserving direction. Every start address discovers the same cycle
// as a rotation of the same sequence.
func canonical(path []string) string {
	min := 0
	for i := 1; i < len(path); i++ {
		if path[i] < path[min] {
			min = i
		}
	}

	rotated := make([]string, 0, len(path))
	rotated = append(rotated, path[min:]...)
	rotated = append(rotated, path[:min]...)
	return strings.Join(rotated, "→")
}
