package app

import (
	"time"

	"github.com/rs/zerolog"

	"walletscope/internal/alerting"
	"walletscope/internal/analyzer"
	"walletscope/internal/cluster"
	"walletscope/internal/config"
	"walletscope/internal/ledger"
	"walletscope/internal/riskapi"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newTransferSource() ledger.TransferSource {
	if a.Config.Ledger.EVM.Enabled {
		return ledger.NewEVMSource(ledger.EVMOptions{
			RPCURL:      a.Config.Ledger.EVM.RPCURL,
			Token:       a.Config.Ledger.EVM.Token,
			BlockWindow: a.Config.Ledger.EVM.BlockWindow,
			Timeout:     a.Config.Ledger.EVM.RequestTimeout,
			Decimals:    a.Config.Ledger.EVM.Decimals,
		}, a.Logger)
	}

	return ledger.NewClient(ledger.ClientOptions{
		BaseURL:            a.Config.Ledger.BaseURL,
		APIKey:             a.Config.Ledger.APIKey,
		Timeout:            a.Config.Ledger.RequestTimeout,
		MinRequestInterval: a.Config.Ledger.MinRequestInterval,
		MaxRetries:         a.Config.Ledger.MaxRetries,
		BackoffBase:        a.Config.Ledger.BackoffBase,
		UserAgent:          a.Config.Ledger.UserAgent,
	}, a.Logger)
}

func (a *App) newRiskSource() analyzer.RiskSource {
	if a.Config.RiskAPI.BaseURL == "" {
		return nil
	}
	return riskapi.NewClient(riskapi.ClientOptions{
		BaseURL:   a.Config.RiskAPI.BaseURL,
		APIKey:    a.Config.RiskAPI.APIKey,
		Timeout:   a.Config.RiskAPI.RequestTimeout,
		UserAgent: a.Config.RiskAPI.UserAgent,
	}, a.Logger)
}

func (a *App) newAnalyzer(source ledger.TransferSource, expand bool) *analyzer.Analyzer {
	engine := cluster.NewEngine(cluster.Options{
		OverlapThreshold:    a.Config.Analysis.OverlapThreshold,
		RelationFloor:       a.Config.Analysis.RelationFloor,
		ExpansionBreadth:    a.Config.Analysis.ExpansionBreadth,
		ExpansionFetchLimit: a.Config.Analysis.ExpansionFetchLimit,
	}, source, a.Logger)

	return analyzer.New(analyzer.Options{
		FetchLimit:    a.Config.Ledger.TransferLimit,
		Expand:        expand,
		MaxCycleDepth: a.Config.Analysis.MaxCycleDepth,
	}, source, engine, a.newRiskSource(), a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

// AnalyzeOptions configure a one-shot analysis.
type AnalyzeOptions struct {
	Address string
	Expand  bool
	OutPath string
}

// WatchOptions configure the periodic re-analysis loop.
type WatchOptions struct {
	Address string
}
