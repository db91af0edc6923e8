package analyzer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"walletscope/internal/cluster"
	"walletscope/internal/ledger"
	"walletscope/internal/riskapi"
)

func noopLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func tx(sig, from, to string, amount float64, ts int64) ledger.TransferRecord {
	return ledger.TransferRecord{
		Signature: sig,
		From:      from,
		To:        to,
		Amount:    decimal.NewFromFloat(amount),
		Token:     "SOL",
		Timestamp: ts,
		TxType:    "transfer",
	}
}

type staticSource struct {
	records []ledger.TransferRecord
	err     error
}

func (s *staticSource) Transfers(ctx context.Context, address string, limit int) ([]ledger.TransferRecord, error) {
	return s.records, s.err
}

type staticRisk struct {
	assessment riskapi.Assessment
	err        error
}

func (s *staticRisk) FetchAll(ctx context.Context, address string) (riskapi.Assessment, error) {
	return s.assessment, s.err
}

func newTestAnalyzer(src ledger.TransferSource, ext RiskSource) *Analyzer {
	engine := cluster.NewEngine(cluster.Options{}, src, noopLogger())
	return New(Options{}, src, engine, ext, noopLogger())
}

func TestAnalyzeLedgerFailureIsFatal(t *testing.T) {
	src := &staticSource{err: errors.New("indexer unreachable")}
	a := newTestAnalyzer(src, nil)

	if _, err := a.Analyze(context.Background(), "X"); err == nil {
		t.Fatal("账本拉取失败应使分析失败")
	}
}

func TestAnalyzeFullPipeline(t *testing.T) {
	records := []ledger.TransferRecord{
		tx("s1", "X", "A", 5, 1_700_000_000),
		tx("s2", "A", "B", 5, 1_700_000_060),
		tx("s3", "B", "X", 5, 1_700_000_120),
		tx("s4", "X", "A", 5, 1_700_000_180),
		tx("s5", "A", "X", 5, 1_700_000_240),
		tx("s6", "X", "B", 5, 1_700_000_300),
	}
	src := &staticSource{records: records}
	ext := &staticRisk{assessment: riskapi.Assessment{
		Threat: riskapi.ThreatAssessment{RiskScore: 0.5},
	}}

	a := newTestAnalyzer(src, ext)
	res, err := a.Analyze(context.Background(), "X")
	if err != nil {
		t.Fatal(err)
	}

	if res.RunID == "" || res.Address != "X" || res.TransferCount != 6 {
		t.Fatalf("result header = %+v", res)
	}
	if len(res.Clusters) == 0 || res.Clusters[0].Members[0] != "X" {
		t.Fatalf("clusters = %+v", res.Clusters)
	}
	if len(res.Patterns) == 0 {
		t.Fatal("6 笔同小时转账应检出 pattern")
	}
	if res.Report.OverallScore < 0 || res.Report.OverallScore > 1 {
		t.Fatalf("overall = %f", res.Report.OverallScore)
	}
	if res.External == nil || res.External.OverallScore != 0.15 {
		t.Fatalf("external = %+v", res.External)
	}
}

func TestAnalyzeWithoutExternalSource(t *testing.T) {
	src := &staticSource{records: []ledger.TransferRecord{tx("s1", "X", "A", 1, 0)}}
	a := newTestAnalyzer(src, nil)

	res, err := a.Analyze(context.Background(), "X")
	if err != nil {
		t.Fatal(err)
	}
	if res.External != nil {
		t.Fatal("未配置外部风险源时不应有 external 区块")
	}
}

func TestAnalyzeExternalConfigErrorDegrades(t *testing.T) {
	src := &staticSource{records: []ledger.TransferRecord{tx("s1", "X", "A", 1, 0)}}
	ext := &staticRisk{err: errors.New("base url not configured")}
	a := newTestAnalyzer(src, ext)

	res, err := a.Analyze(context.Background(), "X")
	if err != nil {
		t.Fatalf("外部风险源配置错误不应使分析失败: %v", err)
	}
	if res.External != nil {
		t.Fatal("失败的外部评估不应出现在结果中")
	}
}

func TestAnalyzeEmptyWallet(t *testing.T) {
	src := &staticSource{}
	a := newTestAnalyzer(src, nil)

	res, err := a.Analyze(context.Background(), "X")
	if err != nil {
		t.Fatal(err)
	}
	if res.TransferCount != 0 || res.Report.OverallScore != 0 {
		t.Fatalf("空钱包应得到零风险结果: %+v", res)
	}
	if len(res.Clusters) != 1 {
		t.Fatalf("空钱包仍应包含中心簇: %+v", res.Clusters)
	}
	if len(res.Patterns) != 0 {
		t.Fatalf("patterns = %+v", res.Patterns)
	}
}
