// Package pattern evaluates independent anomaly heuristics over a wallet's
// transfer sequence. Each heuristic is a pure function of the input: same
// transfers in, same patterns out.
package pattern

import (
	"sort"

	"github.com/shopspring/decimal"

	"walletscope/internal/ledger"
)

// Type names a detected anomaly heuristic.
type Type string

const (
	TypeRapidSuccession Type = "RAPID_SUCCESSION"
	TypeCircularTrading Type = "CIRCULAR_TRADING"
	TypeWashTrading     Type = "WASH_TRADING"
	TypeLayering        Type = "LAYERING"
)

// Severity grades a pattern.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Metadata is the typed payload carried by a pattern. Exactly one concrete
// struct exists per pattern type; no open string-keyed bags.
type Metadata interface {
	isMetadata()
}

// RapidSuccessionMetadata describes the densest hour bucket.
type RapidSuccessionMetadata struct {
	Hour       int64           `json:"hour"`
	Count      int             `json:"count"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

// CircularTradingMetadata lists the frequent counterparties involved.
type CircularTradingMetadata struct {
	Participants []string `json:"participants"`
	Interactions int      `json:"interactions"`
}

// WashTradingMetadata maps each repeated round amount to its frequency.
type WashTradingMetadata struct {
	Amounts map[string]int `json:"amounts"`
}

// LayeringMetadata lists the suspicious value ranges.
type LayeringMetadata struct {
	Ranges      []string `json:"ranges"`
	Occurrences int      `json:"occurrences"`
}

func (RapidSuccessionMetadata) isMetadata() {}
func (CircularTradingMetadata) isMetadata() {}
func (WashTradingMetadata) isMetadata()     {}
func (LayeringMetadata) isMetadata()        {}

// Pattern is a named, evidenced anomaly with severity and confidence.
type Pattern struct {
	Type       Type     `json:"type"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
	Metadata   Metadata `json:"metadata"`
}

// Heuristic thresholds. Uncalibrated constants carried over from field
// practice; treat as tunable, not ground truth.
const (
	rapidBucketMin      = 5
	rapidHighMin        = 11
	frequentInteraction = 3
	washRepeatMin       = 3
	layerRangeWidth     = 10
	layerRangeMin       = 5
	layerSuspiciousMin  = 2
)

// Detect runs all four heuristics over the transfer sequence for the focal
// address. Heuristics are order-insensitive; the returned slice keeps a
// fixed heuristic order for determinism.
func Detect(focal string, transfers []ledger.TransferRecord) []Pattern {
	var patterns []Pattern
	if p, ok := detectRapidSuccession(transfers); ok {
		patterns = append(patterns, p)
	}
	if p, ok := detectCircularTrading(focal, transfers); ok {
		patterns = append(patterns, p)
	}
	if p, ok := detectWashTrading(transfers); ok {
		patterns = append(patterns, p)
	}
	if p, ok := detectLayering(transfers); ok {
		patterns = append(patterns, p)
	}
	return patterns
}

// detectRapidSuccession flags the densest hour-of-epoch bucket once it holds
// at least five transfers. Ties go to the earliest bucket.
func detectRapidSuccession(transfers []ledger.TransferRecord) (Pattern, bool) {
	type bucketAgg struct {
		count int
		value decimal.Decimal
		sigs  []string
	}
	buckets := make(map[int64]*bucketAgg)
	for _, t := range transfers {
		hour := t.Timestamp / 3600
		agg := buckets[hour]
		if agg == nil {
			agg = &bucketAgg{}
			buckets[hour] = agg
		}
		agg.count++
		agg.value = agg.value.Add(t.Amount)
		agg.sigs = append(agg.sigs, t.Signature)
	}

	var best int64
	found := false
	for hour, agg := range buckets {
		if agg.count < rapidBucketMin {
			continue
		}
		if !found || agg.count > buckets[best].count || (agg.count == buckets[best].count && hour < best) {
			best = hour
			found = true
		}
	}
	if !found {
		return Pattern{}, false
	}

	agg := buckets[best]
	severity := SeverityMedium
	if agg.count >= rapidHighMin {
		severity = SeverityHigh
	}

	return Pattern{
		Type:       TypeRapidSuccession,
		Severity:   severity,
		Confidence: 0.8,
		Evidence:   agg.sigs,
		Metadata: RapidSuccessionMetadata{
			Hour:       best,
			Count:      agg.count,
			TotalValue: agg.value,
		},
	}, true
}

// detectCircularTrading looks for counterparties the wallet keeps coming
// back to. Three or more interactions with the same address, across at
// least three transfers, reads as a loop.
func detectCircularTrading(focal string, transfers []ledger.TransferRecord) (Pattern, bool) {
	counts := make(map[string]int)
	for _, t := range transfers {
		if t.From != focal {
			counts[t.From]++
		}
		if t.To != focal {
			counts[t.To]++
		}
	}

	frequent := make(map[string]bool)
	total := 0
	for addr, n := range counts {
		if n >= frequentInteraction {
			frequent[addr] = true
			total += n
		}
	}
	if len(frequent) == 0 {
		return Pattern{}, false
	}

	var evidence []string
	for _, t := range transfers {
		if frequent[t.From] || frequent[t.To] {
			evidence = append(evidence, t.Signature)
		}
	}
	if len(evidence) < 3 {
		return Pattern{}, false
	}

	participants := make([]string, 0, len(frequent))
	for addr := range frequent {
		participants = append(participants, addr)
	}
	sort.Strings(participants)

	return Pattern{
		Type:       TypeCircularTrading,
		Severity:   SeverityHigh,
		Confidence: 0.7,
		Evidence:   evidence,
		Metadata: CircularTradingMetadata{
			Participants: participants,
			Interactions: total,
		},
	}, true
}

// detectWashTrading flags exact integer amounts recurring across three or
// more transfers. Repeated round figures are the classic wash signature.
func detectWashTrading(transfers []ledger.TransferRecord) (Pattern, bool) {
	counts := make(map[string]int)
	for _, t := range transfers {
		if t.Amount.IsInteger() {
			counts[t.Amount.String()]++
		}
	}

	repeated := make(map[string]int)
	for amount, n := range counts {
		if n >= washRepeatMin {
			repeated[amount] = n
		}
	}
	if len(repeated) == 0 {
		return Pattern{}, false
	}

	var evidence []string
	for _, t := range transfers {
		if !t.Amount.IsInteger() {
			continue
		}
		if _, ok := repeated[t.Amount.String()]; ok {
			evidence = append(evidence, t.Signature)
		}
	}

	return Pattern{
		Type:       TypeWashTrading,
		Severity:   SeverityHigh,
		Confidence: 0.6,
		Evidence:   evidence,
		Metadata:   WashTradingMetadata{Amounts: repeated},
	}, true
}

// detectLayering buckets amounts into width-10 ranges and flags the wallet
// when at least two ranges each hold five or more transfers.
func detectLayering(transfers []ledger.TransferRecord) (Pattern, bool) {
	width := decimal.NewFromInt(layerRangeWidth)

	rangeOf := func(amount decimal.Decimal) string {
		return amount.Div(width).Floor().Mul(width).String()
	}

	counts := make(map[string]int)
	for _, t := range transfers {
		counts[rangeOf(t.Amount)]++
	}

	suspicious := make(map[string]bool)
	occurrences := 0
	for rng, n := range counts {
		if n >= layerRangeMin {
			suspicious[rng] = true
			occurrences += n
		}
	}
	if len(suspicious) < layerSuspiciousMin {
		return Pattern{}, false
	}

	var evidence []string
	for _, t := range transfers {
		if suspicious[rangeOf(t.Amount)] {
			evidence = append(evidence, t.Signature)
		}
	}

	ranges := make([]string, 0, len(suspicious))
	for rng := range suspicious {
		ranges = append(ranges, rng)
	}
	sort.Strings(ranges)

	return Pattern{
		Type:       TypeLayering,
		Severity:   SeverityMedium,
		Confidence: 0.65,
		Evidence:   evidence,
		Metadata: LayeringMetadata{
			Ranges:      ranges,
			Occurrences: occurrences,
		},
	}, true
}
