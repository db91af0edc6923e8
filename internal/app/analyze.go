package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"walletscope/internal/analyzer"
)

// Analyze runs the pipeline once for an address, prints the result, and
// optionally writes the JSON report.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	if opts.Address == "" {
		return errors.New("address required")
	}

	source := a.newTransferSource()
	expand := opts.Expand || a.Config.Analysis.Expand

	result, err := a.newAnalyzer(source, expand).Analyze(ctx, opts.Address)
	if err != nil {
		return err
	}

	renderResult(os.Stdout, result)

	if opts.OutPath != "" {
		if err := writeResultJSON(opts.OutPath, result); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.OutPath).Msg("report written")
	}

	return nil
}

func renderResult(out *os.File, res *analyzer.Result) {
	fmt.Fprintf(out, "Address: %s\n", res.Address)
	fmt.Fprintf(out, "Run: %s (%s UTC)\n", res.RunID, res.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Transfers analyzed: %d\n\n", res.TransferCount)

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(writer, "Cluster\tLabel\tMembers\tTxCount\tVolume\tSuspicion\tRelated")
	for _, c := range res.Clusters {
		related := make([]string, 0, len(c.RelatedClusters))
		for _, r := range c.RelatedClusters {
			related = append(related, fmt.Sprintf("%s(%.2f)", r.ID, r.Strength))
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%s\t%.2f\t%s\n",
			c.ID, c.Label, len(c.Members), c.TransactionCount, c.Volume.StringFixed(2), c.SuspicionScore, strings.Join(related, ","))
	}
	writer.Flush()

	if len(res.Patterns) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(writer, "Pattern\tSeverity\tConfidence\tEvidence")
		for _, p := range res.Patterns {
			fmt.Fprintf(writer, "%s\t%s\t%.2f\t%d transfers\n", p.Type, p.Severity, p.Confidence, len(p.Evidence))
		}
		writer.Flush()
	}

	if len(res.CircularPaths) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(writer, "Circular path\tRisk")
		for _, f := range res.CircularPaths {
			fmt.Fprintf(writer, "%s\t%.2f\n", strings.Join(f.Path, " → "), f.RiskScore)
		}
		writer.Flush()
	}

	fmt.Fprintln(out)
	fmt.Fprintln(writer, "Factor\tScore\tDescription")
	for _, f := range res.Report.Factors {
		fmt.Fprintf(writer, "%s\t%.2f\t%s\n", f.Name, f.Score, f.Description)
	}
	writer.Flush()
	fmt.Fprintf(out, "\nOverall risk score: %.2f\n", res.Report.OverallScore)

	if res.External != nil {
		fmt.Fprintf(out, "External risk score: %.2f", res.External.OverallScore)
		if len(res.External.Degraded) > 0 {
			fmt.Fprintf(out, " (degraded: %s)", strings.Join(res.External.Degraded, ","))
		}
		fmt.Fprintln(out)
	}

	for _, rec := range res.Report.Recommendations {
		fmt.Fprintf(out, "  - %s\n", rec)
	}
}

func writeResultJSON(path string, res *analyzer.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
