package cluster

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"walletscope/internal/ledger"
)

func noopLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func tx(sig, from, to string, amount float64) ledger.TransferRecord {
	return ledger.TransferRecord{
		Signature: sig,
		From:      from,
		To:        to,
		Amount:    decimal.NewFromFloat(amount),
		Token:     "SOL",
		TxType:    "transfer",
	}
}

type fakeSource struct {
	calls []string
	data  map[string][]ledger.TransferRecord
	err   error
}

func (f *fakeSource) Transfers(ctx context.Context, address string, limit int) ([]ledger.TransferRecord, error) {
	f.calls = append(f.calls, address)
	if f.err != nil {
		return nil, f.err
	}
	return f.data[address], nil
}

func TestCenterIsSingletonWithFullAggregates(t *testing.T) {
	records := []ledger.TransferRecord{
		tx("s1", "X", "A", 5),
		tx("s2", "B", "X", 3),
	}

	engine := NewEngine(Options{}, nil, noopLogger())
	clusters, _, err := engine.Cluster(context.Background(), "X", records, false)
	if err != nil {
		t.Fatal(err)
	}

	first := clusters[0]
	if len(first.Members) != 1 || first.Members[0] != "X" {
		t.Fatalf("中心地址应为首个单元素簇: %+v", first)
	}
	if first.TransactionCount != 2 {
		t.Fatalf("center transactionCount = %d, want 2", first.TransactionCount)
	}
	if !first.Volume.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("center volume = %s, want 8", first.Volume)
	}
}

func TestOverlappingNeighborsMerge(t *testing.T) {
	// A, B, C, D all interact with each other, so their pairwise neighbor
	// overlap clears the threshold and they merge into one cluster.
	records := []ledger.TransferRecord{
		tx("s0", "X", "A", 1),
		tx("s1", "A", "B", 1),
		tx("s2", "A", "C", 1),
		tx("s3", "A", "D", 1),
		tx("s4", "B", "C", 1),
		tx("s5", "B", "D", 1),
		tx("s6", "C", "D", 1),
	}

	engine := NewEngine(Options{}, nil, noopLogger())
	clusters, _, err := engine.Cluster(context.Background(), "X", records, false)
	if err != nil {
		t.Fatal(err)
	}

	if len(clusters) != 2 {
		t.Fatalf("期望中心簇 + 1 个关联簇, 实际 %d: %+v", len(clusters), clusters)
	}

	group := clusters[1]
	if !reflect.DeepEqual(group.Members, []string{"A", "B", "C", "D"}) {
		t.Fatalf("members = %v", group.Members)
	}
	// A has 4 interactions, B/C/D have 3 each.
	if group.TransactionCount != 13 {
		t.Fatalf("transactionCount = %d, want 13", group.TransactionCount)
	}
	if group.SuspicionScore < 0 || group.SuspicionScore > 1 {
		t.Fatalf("suspicion out of range: %f", group.SuspicionScore)
	}
}

func TestMembershipIsPartition(t *testing.T) {
	records := []ledger.TransferRecord{
		tx("s1", "X", "A", 1),
		tx("s2", "X", "B", 1),
		tx("s3", "A", "B", 1),
		tx("s4", "C", "D", 1),
		tx("s5", "D", "E", 1),
	}

	engine := NewEngine(Options{}, nil, noopLogger())
	clusters, g, err := engine.Cluster(context.Background(), "X", records, false)
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]int{}
	for _, c := range clusters {
		if len(c.Members) == 0 {
			t.Fatalf("empty cluster: %+v", c)
		}
		for _, m := range c.Members {
			seen[m]++
		}
	}
	for _, addr := range g.Addresses() {
		if seen[addr] != 1 {
			t.Fatalf("地址 %s 出现 %d 次, 应恰好 1 次", addr, seen[addr])
		}
	}
}

func TestClusterDeterminism(t *testing.T) {
	records := []ledger.TransferRecord{
		tx("s1", "X", "A", 2),
		tx("s2", "A", "B", 4),
		tx("s3", "B", "A", 4),
		tx("s4", "C", "X", 9),
	}

	engine := NewEngine(Options{}, nil, noopLogger())
	first, _, _ := engine.Cluster(context.Background(), "X", records, false)
	second, _, _ := engine.Cluster(context.Background(), "X", records, false)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("重复运行结果不一致:\n%+v\n%+v", first, second)
	}
}

func TestExpansionFetchesTopCounterpartiesSequentially(t *testing.T) {
	records := []ledger.TransferRecord{
		tx("s1", "X", "A", 1),
		tx("s2", "X", "A", 1),
		tx("s3", "X", "B", 1),
	}
	src := &fakeSource{data: map[string][]ledger.TransferRecord{
		"A": {tx("s4", "A", "C", 1)},
	}}

	engine := NewEngine(Options{ExpansionBreadth: 2}, src, noopLogger())
	_, g, err := engine.Cluster(context.Background(), "X", records, true)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(src.calls, []string{"A", "B"}) {
		t.Fatalf("expansion fetch order = %v, want [A B]", src.calls)
	}
	if !g.HasEdge("A", "C") {
		t.Fatal("扩展获取的转账应并入同一张图")
	}
}

func TestExpansionPropagatesFetchErrors(t *testing.T) {
	src := &fakeSource{err: errors.New("indexer down")}
	engine := NewEngine(Options{}, src, noopLogger())

	_, _, err := engine.Cluster(context.Background(), "X", []ledger.TransferRecord{tx("s1", "X", "A", 1)}, true)
	if err == nil {
		t.Fatal("扩展阶段的拉取失败应向上传播")
	}
}

func TestRelationStrengthBounds(t *testing.T) {
	records := []ledger.TransferRecord{
		tx("s1", "X", "A", 1),
		tx("s2", "A", "X", 1),
	}

	engine := NewEngine(Options{}, nil, noopLogger())
	clusters, _, err := engine.Cluster(context.Background(), "X", records, false)
	if err != nil {
		t.Fatal(err)
	}

	if len(clusters) != 2 {
		t.Fatalf("clusters = %+v", clusters)
	}
	if len(clusters[0].RelatedClusters) != 1 {
		t.Fatalf("center 应与簇 1 相连: %+v", clusters[0].RelatedClusters)
	}
	rel := clusters[0].RelatedClusters[0]
	if rel.ID != "cluster-1" {
		t.Fatalf("related id = %s", rel.ID)
	}
	if rel.Strength <= 0.1 || rel.Strength > 1 {
		t.Fatalf("strength out of range: %f", rel.Strength)
	}
}
