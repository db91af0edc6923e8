package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"walletscope/internal/ledger"
)

// SimulateAlert 使用一组合成的可疑转账跑通整条流水线并触发告警,
// 用于验证告警通道配置。
func (a *App) SimulateAlert(ctx context.Context) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	source := &syntheticSource{}
	result, err := a.newAnalyzer(source, false).Analyze(ctx, syntheticAddress)
	if err != nil {
		return err
	}

	// Force the alert path regardless of the configured threshold.
	saved := a.Config.Alerting.ScoreThreshold
	a.Config.Alerting.ScoreThreshold = 0
	defer func() { a.Config.Alerting.ScoreThreshold = saved }()

	return a.maybeAlert(ctx, notifier, result)
}

const syntheticAddress = "SIMULATED_WALLET"

// syntheticSource yields a burst of identical round-amount transfers, which
// trips the rapid-succession and wash-trading heuristics by construction.
type syntheticSource struct{}

func (s *syntheticSource) Transfers(ctx context.Context, address string, limit int) ([]ledger.TransferRecord, error) {
	const base = int64(1_700_000_000)
	records := make([]ledger.TransferRecord, 0, 12)
	for i := 0; i < 12; i++ {
		records = append(records, ledger.TransferRecord{
			Signature: fmt.Sprintf("simulated-%d", i),
			From:      address,
			To:        fmt.Sprintf("COUNTERPARTY_%d", i%3),
			Amount:    decimal.NewFromInt(1000),
			Token:     "SOL",
			Timestamp: base + int64(i*60),
			TxType:    "transfer",
		})
	}
	return records, nil
}

var _ ledger.TransferSource = (*syntheticSource)(nil)
