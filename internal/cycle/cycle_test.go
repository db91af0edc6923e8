package cycle

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"walletscope/internal/graph"
	"walletscope/internal/ledger"
)

func tx(sig, from, to string) ledger.TransferRecord {
	return ledger.TransferRecord{
		Signature: sig,
		From:      from,
		To:        to,
		Amount:    decimal.NewFromInt(1),
		Token:     "SOL",
		TxType:    "transfer",
	}
}

func ring(addrs ...string) *graph.Graph {
	var records []ledger.TransferRecord
	for i, from := range addrs {
		to := addrs[(i+1)%len(addrs)]
		records = append(records, tx(fmt.Sprintf("s%d", i), from, to))
	}
	return graph.Build(addrs[0], records)
}

func TestDensitySmallClusters(t *testing.T) {
	g := ring("A", "B", "C")
	if got := Density(g, []string{"A", "B"}); got != 0 {
		t.Fatalf("少于 3 个成员 suspicion 应为 0, got %f", got)
	}
	if got := Density(g, nil); got != 0 {
		t.Fatalf("empty member set: got %f", got)
	}
}

func TestDensityRing(t *testing.T) {
	g := ring("A", "B", "C")
	// 3 directed edges over k*2 = 6 ordered-pair budget.
	if got := Density(g, []string{"A", "B", "C"}); got != 0.5 {
		t.Fatalf("density = %f, want 0.5", got)
	}
}

func TestDensityClamped(t *testing.T) {
	// Complete directed graph on 4 nodes: 12 edges, budget 8.
	var records []ledger.TransferRecord
	addrs := []string{"A", "B", "C", "D"}
	i := 0
	for _, from := range addrs {
		for _, to := range addrs {
			if from == to {
				continue
			}
			records = append(records, tx(fmt.Sprintf("s%d", i), from, to))
			i++
		}
	}
	g := graph.Build("A", records)
	if got := Density(g, addrs); got != 1 {
		t.Fatalf("density 应被钳制到 1, got %f", got)
	}
}

func TestFourHopCycleScore(t *testing.T) {
	g := ring("A", "B", "C", "D")

	findings := NewDetector(0).FindCircularPaths(g)
	if len(findings) != 1 {
		t.Fatalf("期望 1 条环路, 实际 %d: %+v", len(findings), findings)
	}

	f := findings[0]
	if len(f.Path) != 4 {
		t.Fatalf("path = %v, want 4 hops", f.Path)
	}
	if f.RiskScore != 0.9 {
		t.Fatalf("riskScore = %f, want 0.9", f.RiskScore)
	}
	if f.Reason != "circular fund flow detected" {
		t.Fatalf("unexpected reason: %s", f.Reason)
	}
}

func TestLongCycleScoreClamped(t *testing.T) {
	g := ring("A", "B", "C", "D", "E", "F", "G")
	findings := NewDetector(10).FindCircularPaths(g)
	if len(findings) != 1 {
		t.Fatalf("findings = %+v", findings)
	}
	if findings[0].RiskScore != 1 {
		t.Fatalf("7 跳环路评分应钳制为 1, got %f", findings[0].RiskScore)
	}
}

func TestDepthBoundTerminates(t *testing.T) {
	// Complete graph on 7 nodes; without a depth cap the walk is
	// combinatorial. The detector must return and only report cycles
	// within the bound.
	addrs := []string{"A", "B", "C", "D", "E", "F", "G"}
	var records []ledger.TransferRecord
	i := 0
	for _, from := range addrs {
		for _, to := range addrs {
			if from == to {
				continue
			}
			records = append(records, tx(fmt.Sprintf("s%d", i), from, to))
			i++
		}
	}
	g := graph.Build("A", records)

	findings := NewDetector(4).FindCircularPaths(g)
	if len(findings) == 0 {
		t.Fatal("dense graph 应检出环路")
	}
	for _, f := range findings {
		if len(f.Path) > 4 {
			t.Fatalf("path %v exceeds depth bound", f.Path)
		}
		if f.RiskScore < 0 || f.RiskScore > 1 {
			t.Fatalf("riskScore out of range: %f", f.RiskScore)
		}
	}
}

func TestSiblingBranchesIndependent(t *testing.T) {
	// Two triangles sharing node M: visiting M in one branch must not
	// block the sibling branch from completing its own cycle.
	records := []ledger.TransferRecord{
		tx("s1", "A", "M"), tx("s2", "M", "B"), tx("s3", "B", "A"),
		tx("s4", "A", "C"), tx("s5", "C", "M"), tx("s6", "M", "A"),
	}
	g := graph.Build("A", records)

	findings := NewDetector(6).FindCircularPaths(g)
	if len(findings) < 2 {
		t.Fatalf("期望至少 2 条不同环路, 实际 %d: %+v", len(findings), findings)
	}
}

func TestDeterministicOrder(t *testing.T) {
	g := ring("A", "B", "C", "D")
	first := NewDetector(0).FindCircularPaths(g)
	second := NewDetector(0).FindCircularPaths(g)
	if len(first) != len(second) {
		t.Fatal("重复运行应得到相同结果")
	}
	for i := range first {
		if first[i].Path[0] != second[i].Path[0] || first[i].RiskScore != second[i].RiskScore {
			t.Fatalf("run mismatch: %+v vs %+v", first[i], second[i])
		}
	}
}
