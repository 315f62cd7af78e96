// Package stats accumulates and reports collapse run statistics (spec.md
// §7), and supplies the adaptive RAM safety-factor estimator referenced in
// SPEC_FULL.md's Open Question 2. It is grounded on gonum.org/v1/gonum/stat,
// a dependency the teacher's go.mod already pulls in transitively; nothing
// in the teacher itself reports statistics this way; the spec's own need
// for a reported distribution of per-sample bytes/record ratios is what
// promotes gonum/stat from indirect to a direct import.
package stats

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Sample is one single-sample collapse's contribution to an aggregate
// multi-sample report.
type Sample struct {
	SampleID           string
	RawBytes           uint64
	CollapsedBytes     uint64
	RawSequences       uint64
	CollapsedSequences uint64
	BytesPerSequence   float64
}

// Result is the full report spec.md §7 describes for one collapse
// invocation (single- or multi-sample).
type Result struct {
	Samples            []Sample
	OverallSequences   uint64
	CollapsedSequences uint64
	TemporaryRunCount  int
	MergeTierCount     int
	SafetyFactorUsed   float64
}

// CompressionRatio is CollapsedSequences / OverallSequences, or 0 if no
// input sequences were observed.
func (r *Result) CompressionRatio() float64 {
	if r.OverallSequences == 0 {
		return 0
	}
	return float64(r.CollapsedSequences) / float64(r.OverallSequences)
}

// BytesPerSequenceStats reports the mean and standard deviation of the
// probe's bytes-per-record ratio across every sample in a multi-sample
// collapse, using gonum/stat.MeanStdDev. A multi-sample run with a wide
// spread of per-sample record sizes (high std relative to mean) is the
// signal AdaptiveSafetyFactor below reacts to.
func (r *Result) BytesPerSequenceStats() (mean, std float64) {
	if len(r.Samples) == 0 {
		return 0, 0
	}
	ratios := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		ratios[i] = s.BytesPerSequence
	}
	return stat.MeanStdDev(ratios, nil)
}

// BaseSafetyFactor is the constant the original BioSeqZip collapser uses
// for single-sample runs (RAMSafetyFactor in collapser.h).
const BaseSafetyFactor = 1.65

// AdaptiveSafetyFactor widens BaseSafetyFactor in proportion to how much
// per-sample record sizes vary across a multi-sample collapse's probed
// ratios: a coefficient of variation of cv inflates the base factor by
// (1 + cv), so a batch of uniformly-sized samples keeps the base factor
// while a batch with one much larger sample gets extra headroom before its
// probe-based estimate is trusted (SPEC_FULL.md Open Question 2).
func AdaptiveSafetyFactor(ratios []float64) float64 {
	if len(ratios) <= 1 {
		return BaseSafetyFactor
	}
	mean, std := stat.MeanStdDev(ratios, nil)
	if mean == 0 {
		return BaseSafetyFactor
	}
	cv := std / mean
	return BaseSafetyFactor * (1 + cv)
}

// String renders a human-readable summary, in the teacher's terse
// single-paragraph log-line style.
func (r *Result) String() string {
	return fmt.Sprintf(
		"collapsed %d/%d sequences (ratio %.4f) across %d temporary run(s) in %d merge tier(s), safety factor %.3f",
		r.CollapsedSequences, r.OverallSequences, r.CompressionRatio(),
		r.TemporaryRunCount, r.MergeTierCount, r.SafetyFactorUsed,
	)
}
