package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"walletscope/internal/cluster"
	"walletscope/internal/cycle"
	"walletscope/internal/ledger"
	"walletscope/internal/pattern"
	"walletscope/internal/risk"
	"walletscope/internal/riskapi"
)

// RiskSource fetches the external risk-category assessment for an address.
type RiskSource interface {
	FetchAll(ctx context.Context, address string) (riskapi.Assessment, error)
}

// Options tune one analyzer instance.
type Options struct {
	// FetchLimit caps how many transfers the initial ledger fetch returns.
	FetchLimit int
	// Expand turns on multi-hop cluster expansion.
	Expand bool
	// MaxCycleDepth bounds circular-path enumeration.
	MaxCycleDepth int
}

// Result is everything one analysis run produces. It is built fresh per
// invocation and holds no shared state.
type Result struct {
	RunID         string               `json:"runId"`
	Address       string               `json:"address"`
	GeneratedAt   time.Time            `json:"generatedAt"`
	TransferCount int                  `json:"transferCount"`
	Clusters      []cluster.Cluster    `json:"clusters"`
	Patterns      []pattern.Pattern    `json:"patterns"`
	CircularPaths []cycle.Finding      `json:"circularPaths,omitempty"`
	Report        risk.Report          `json:"report"`
	External      *risk.ExternalReport `json:"external,omitempty"`
}

// Analyzer runs the full forensics pipeline for one address at a time.
// Instances are safe for concurrent use; every run builds its own graph and
// cluster state.
type Analyzer struct {
	source   ledger.TransferSource
	clusters *cluster.Engine
	cycles   *cycle.Detector
	external RiskSource
	logger   zerolog.Logger
	opts     Options
}

// New constructs the analyzer. The external risk source may be nil, in which
// case results carry no external fusion section.
func New(opts Options, source ledger.TransferSource, clusters *cluster.Engine, external RiskSource, logger zerolog.Logger) *Analyzer {
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 100
	}
	return &Analyzer{
		source:   source,
		clusters: clusters,
		cycles:   cycle.NewDetector(opts.MaxCycleDepth),
		external: external,
		logger:   logger.With().Str("component", "analyzer").Logger(),
		opts:     opts,
	}
}

// Analyze runs ledger fetch → graph → clustering → cycle enumeration →
// pattern detection → risk fusion for one address. A ledger failure aborts
// the run; external risk degradation does not. The whole pipeline sits
// behind one recover boundary so malformed data for one address cannot take
// the process down.
func (a *Analyzer) Analyze(ctx context.Context, address string) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("analysis pipeline panicked for %s: %v", address, r)
		}
	}()

	started := time.Now().UTC()

	transfers, err := a.source.Transfers(ctx, address, a.opts.FetchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch transfers: %w", err)
	}

	clusters, g, err := a.clusters.Cluster(ctx, address, transfers, a.opts.Expand)
	if err != nil {
		return nil, err
	}

	result = &Result{
		RunID:         uuid.NewString(),
		Address:       address,
		GeneratedAt:   started,
		TransferCount: len(transfers),
		Clusters:      clusters,
		Patterns:      pattern.Detect(address, transfers),
		CircularPaths: a.cycles.FindCircularPaths(g),
	}
	result.Report = risk.Score(address, transfers, result.Patterns)

	if a.external != nil {
		assessment, extErr := a.external.FetchAll(ctx, address)
		if extErr != nil {
			// Only configuration errors surface here; category failures
			// already degraded inside the client.
			a.logger.Warn().Err(extErr).Str("address", address).Msg("external risk assessment skipped")
		} else {
			ext := risk.FuseExternal(assessment)
			result.External = &ext
		}
	}

	a.logger.Info().
		Str("address", address).
		Str("run_id", result.RunID).
		Int("transfers", result.TransferCount).
		Int("clusters", len(result.Clusters)).
		Int("patterns", len(result.Patterns)).
		Float64("overall_score", result.Report.OverallScore).
		Dur("elapsed", time.Since(started)).
		Msg("analysis complete")

	return result, nil
}
