package collapse

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bioinformatics-polito/BioSeqZip/buffer"
	"github.com/bioinformatics-polito/BioSeqZip/errs"
	"github.com/bioinformatics-polito/BioSeqZip/layout"
	"github.com/bioinformatics-polito/BioSeqZip/seqio"
	"github.com/bioinformatics-polito/BioSeqZip/stats"
)

// multiSampleFanout is the maximum k-way merge width for cross-sample
// merging (collapser.h's collapseMS_<64, ...>); effectiveMultiFanout below
// narrows it when MaxRAMBytes can't support that many open sources.
const multiSampleFanout = 64

// ramSeqSafetyFactor and ramTabSafetyFactor are the multi-sample sizing
// constants collapseMS_ applies on top of the worst observed per-sample
// bytes/record ratio: every open merge source holds one SequenceRecord
// (ramSeqSafetyFactor headroom) and one DetailsRecord of nSamples
// counters plus its overall (ramTabSafetyFactor headroom), so
// together they bound how many sources effectiveMultiFanout can afford.
const (
	ramSeqSafetyFactor = 2.0
	ramTabSafetyFactor = 3.0
)

// Sample is one input sample for a multi-sample collapse: Tag is its
// column header in the details file, and Paths is one path for
// SingleEnd/Interleaved/Breakpoint layouts or two for PairedEnd.
type Sample struct {
	Tag   string
	Paths []string
}

// effectiveMultiFanout narrows multiSampleFanout to however many merge
// sources MaxRAMBytes can hold at once, each costing one buffered
// SequenceRecord plus one DetailsRecord column per sample.
func effectiveMultiFanout(maxRAM uint64, worstSeqRatio float64, nSamples int) int {
	if maxRAM == 0 || worstSeqRatio <= 0 {
		return multiSampleFanout
	}
	perSourceBytes := worstSeqRatio*ramSeqSafetyFactor + float64(8*nSamples+8)*ramTabSafetyFactor
	n := int(float64(maxRAM) / perSourceBytes)
	if n < 2 {
		n = 2
	}
	if n > multiSampleFanout {
		n = multiSampleFanout
	}
	return n
}

// CollapseMultiSample runs the three-phase multi-sample pipeline spec.md
// §4.5 describes: Phase A collapses each sample independently into a
// temporary tag run (reusing CollapseSingleSample), Phase B cross-sample
// merges those runs with a DetailsRecord per distinct sequence, and Phase
// C removes the Phase A/B scratch files and assembles the aggregate
// report.
func (c *Collapser) CollapseMultiSample(samples []Sample) (*stats.Result, error) {
	res := &stats.Result{}

	// Phase A preserves the original layout kind in its tag-format output
	// (PairedEnd still splits into two mate files; Interleaved collapses
	// to a single file read back under effectiveTempKind), so Phase B
	// must read it back the same way single-sample temp runs are.
	phaseBKind := effectiveTempKind(c.cfg.Layout.Kind)

	phaseARatios := make([]float64, len(samples))
	tempRuns := make([]seqio.ShardPaths, len(samples))
	var bpOffset int
	for i, s := range samples {
		perSampleCfg := c.cfg
		perSampleCfg.OutputDir = c.cfg.TempDir
		perSampleCfg.OutputBasename = fmt.Sprintf("phaseA-%d-%s", i, s.Tag)
		perSampleCfg.OutputFormat = layout.Tag
		perSampleCfg.MaxOutputRecords = 0
		sub := New(perSampleCfg)

		sampleRes, err := sub.CollapseSingleSample(s.Paths...)
		if err != nil {
			return nil, errs.Wrap(errs.IoFailure, err, fmt.Sprintf("collapsing sample %q in phase A", s.Tag))
		}
		if len(sub.lastOutputPaths) != 1 {
			return nil, errs.New(errs.InvariantViolated, "phase A collapse did not produce exactly one output shard")
		}
		tempRuns[i] = sub.lastOutputPaths[0]

		ratio, firstBpOffset, err := probeBytesPerSequence(phaseBKind, layout.Tag, bpOffset, shardPathsFor(phaseBKind, tempRuns[i])...)
		if err != nil {
			return nil, err
		}
		phaseARatios[i] = ratio
		if i == 0 {
			bpOffset = firstBpOffset
		}

		res.OverallSequences += sampleRes.OverallSequences
		res.Samples = append(res.Samples, stats.Sample{
			SampleID:           s.Tag,
			RawSequences:       sampleRes.OverallSequences,
			CollapsedSequences: sampleRes.CollapsedSequences,
			BytesPerSequence:   ratio,
		})
	}

	res.SafetyFactorUsed = stats.AdaptiveSafetyFactor(phaseARatios)

	var worstSeqRatio float64
	for _, r := range phaseARatios {
		if r > worstSeqRatio {
			worstSeqRatio = r
		}
	}
	fanout := effectiveMultiFanout(c.cfg.MaxRAMBytes, worstSeqRatio, len(samples))

	sampleIDs := make([]int, len(samples))
	tags := make([]string, len(samples))
	for i, s := range samples {
		sampleIDs[i] = i
		tags[i] = s.Tag
	}

	finalRuns, finalDetails, tiers, err := mergeSamplesTiered(tempRuns, sampleIDs, tags, c.cfg.TempDir, fanout, phaseBKind, bpOffset)
	if err != nil {
		return nil, err
	}
	res.MergeTierCount = tiers + 1 // + the final tier below

	written, err := finalCrossSampleMerge(finalRuns, finalDetails, sampleIDs, tags, c, phaseBKind, bpOffset)
	if err != nil {
		return nil, err
	}
	res.CollapsedSequences = uint64(written)

	removeRuns(tempRuns)
	removeRuns(finalRuns)
	for _, d := range finalDetails {
		os.Remove(d)
	}

	return res, nil
}

// mergeSamplesTiered repeatedly merges up to fanout sample runs at a time
// until fanout or fewer remain, seeding DetailsRecords on the first tier
// and propagating them on every subsequent tier, mirroring collapseMS_'s
// own tiering for nSamples > N_WAY_MERGE. kind/bpOffset describe how
// Phase A's tag runs (and every intermediate tier's own output) must be
// read back, per effectiveTempKind.
func mergeSamplesTiered(runs []seqio.ShardPaths, sampleIDs []int, tags []string, tempDir string, fanout int, kind layout.Kind, bpOffset int) (finalRuns []seqio.ShardPaths, finalDetails []string, tiers int, err error) {
	nSamples := len(tags)
	currentRuns := runs
	var currentDetails []string
	seeding := true

	for len(currentRuns) > fanout {
		var nextRuns []seqio.ShardPaths
		var nextDetails []string

		for start := 0; start < len(currentRuns); start += fanout {
			end := start + fanout
			if end > len(currentRuns) {
				end = len(currentRuns)
			}
			groupRuns := currentRuns[start:end]
			groupIDs := sampleIDs[start:end]
			var groupDetails []string
			if !seeding {
				groupDetails = currentDetails[start:end]
			}

			readers, err := openRuns(groupRuns, kind, bpOffset)
			if err != nil {
				return nil, nil, tiers, err
			}

			var w seqio.Writer
			if err := w.ConfigureTemporary(kind, layout.Tag, tempDir); err != nil {
				closeReaders(readers)
				return nil, nil, tiers, err
			}
			dpath := w.OutputPaths()[0].Mate1 + ".details"
			var dw seqio.DetailsWriter
			if err := dw.Configure(dpath, tags); err != nil {
				closeReaders(readers)
				return nil, nil, tiers, err
			}

			if _, err := mergeTier(readers, groupDetails, groupIDs, nSamples, seeding, &w, &dw); err != nil {
				closeReaders(readers)
				return nil, nil, tiers, err
			}
			closeReaders(readers)

			if err := w.Flush(); err != nil {
				return nil, nil, tiers, err
			}
			if err := w.Close(); err != nil {
				return nil, nil, tiers, err
			}
			if err := dw.Close(); err != nil {
				return nil, nil, tiers, err
			}

			nextRuns = append(nextRuns, w.OutputPaths()...)
			nextDetails = append(nextDetails, dpath)
		}

		removeRuns(currentRuns)
		for _, d := range currentDetails {
			os.Remove(d)
		}

		currentRuns = nextRuns
		currentDetails = nextDetails
		sampleIDs = make([]int, len(currentRuns))
		for i := range sampleIDs {
			sampleIDs[i] = i
		}
		seeding = false
		tiers++
	}

	return currentRuns, currentDetails, tiers, nil
}

// mergeTier runs one merge group through SeedingDetailsMerge (tier 1) or
// PropagatingDetailsMerge (later tiers, reading each source's sidecar
// details file written by the previous tier), returning the number of
// distinct sequence records written.
func mergeTier(readers []*seqio.Reader, groupDetails []string, groupIDs []int, nSamples int, seeding bool, w *seqio.Writer, dw *seqio.DetailsWriter) (int, error) {
	if seeding {
		return buffer.SeedingDetailsMerge(readers, groupIDs, nSamples, w, dw)
	}

	detailsReaders := make([]*seqio.DetailsReader, len(groupDetails))
	for i, d := range groupDetails {
		var dr seqio.DetailsReader
		if err := dr.Configure(d); err != nil {
			for _, opened := range detailsReaders[:i] {
				opened.Close()
			}
			return 0, err
		}
		drc := dr
		detailsReaders[i] = &drc
	}
	defer func() {
		for _, dr := range detailsReaders {
			dr.Close()
		}
	}()

	return buffer.PropagatingDetailsMerge(readers, detailsReaders, w, dw)
}

// finalCrossSampleMerge runs the last merge tier, writing straight to the
// Collapser's configured final output and details file.
func finalCrossSampleMerge(runs []seqio.ShardPaths, detailsPaths []string, sampleIDs []int, tags []string, c *Collapser, kind layout.Kind, bpOffset int) (int, error) {
	readers, err := openRuns(runs, kind, bpOffset)
	if err != nil {
		return 0, err
	}
	defer closeReaders(readers)

	var w seqio.Writer
	if err := w.Configure(c.cfg.Layout.Kind, c.cfg.OutputFormat, c.cfg.OutputDir, c.cfg.OutputBasename, c.cfg.MaxOutputRecords); err != nil {
		return 0, err
	}
	defer w.Close()

	var dw seqio.DetailsWriter
	if err := dw.Configure(filepath.Join(c.cfg.OutputDir, c.cfg.OutputBasename+".details"), tags); err != nil {
		return 0, err
	}
	defer dw.Close()

	seeding := len(detailsPaths) == 0
	written, err := mergeTier(readers, detailsPaths, sampleIDs, len(tags), seeding, &w, &dw)
	if err != nil {
		return 0, err
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	if err := dw.Flush(); err != nil {
		return 0, err
	}
	return written, nil
}

// shardPathsFor adapts a ShardPaths to the []string form Reader.Configure
// wants: PairedEnd reads two files in lockstep, everything else reads one.
func shardPathsFor(kind layout.Kind, p seqio.ShardPaths) []string {
	if kind == layout.PairedEnd {
		return []string{p.Mate1, p.Mate2}
	}
	return []string{p.Mate1}
}
