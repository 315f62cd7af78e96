package collapse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bioinformatics-polito/BioSeqZip/layout"
	"github.com/bioinformatics-polito/BioSeqZip/seqio"
)

func TestCollapseMultiSampleAttributesCounts(t *testing.T) {
	dir := t.TempDir()
	p0 := filepath.Join(dir, "s0.fastq")
	p1 := filepath.Join(dir, "s1.fastq")
	p2 := filepath.Join(dir, "s2.fastq")
	// AAAA appears twice in s0 and once in s1; CCCC only in s1; GGGG only in s2.
	writeFile(t, p0, "@a\nAAAA\n+\nIIII\n@b\nAAAA\n+\nIIII\n")
	writeFile(t, p1, "@a\nAAAA\n+\nIIII\n@b\nCCCC\n+\nIIII\n")
	writeFile(t, p2, "@a\nGGGG\n+\nIIII\n")

	c := New(Config{
		Layout:         layout.Layout{Kind: layout.SingleEnd},
		InputFormat:    layout.Fastq,
		OutputFormat:   layout.Tag,
		OutputDir:      dir,
		OutputBasename: "merged",
		TempDir:        dir,
		MaxRAMBytes:    1 << 30,
	})

	samples := []Sample{
		{Tag: "s0", Paths: []string{p0}},
		{Tag: "s1", Paths: []string{p1}},
		{Tag: "s2", Paths: []string{p2}},
	}

	res, err := c.CollapseMultiSample(samples)
	if err != nil {
		t.Fatalf("CollapseMultiSample: %v", err)
	}
	if res.OverallSequences != 5 {
		t.Fatalf("OverallSequences = %d, want 5", res.OverallSequences)
	}
	if res.CollapsedSequences != 3 {
		t.Fatalf("CollapsedSequences = %d, want 3 (AAAA, CCCC, GGGG)", res.CollapsedSequences)
	}

	data := readFile(t, filepath.Join(dir, "merged.tag"))
	want := "AAAA\t3\nCCCC\t1\nGGGG\t1\n"
	if data != want {
		t.Fatalf("merged output = %q, want %q", data, want)
	}

	var dr seqio.DetailsReader
	if err := dr.Configure(filepath.Join(dir, "merged.details")); err != nil {
		t.Fatalf("Configure details reader: %v", err)
	}
	defer dr.Close()
	if len(dr.SampleTags) != 3 || dr.SampleTags[0] != "s0" || dr.SampleTags[1] != "s1" || dr.SampleTags[2] != "s2" {
		t.Fatalf("SampleTags = %v, want [s0 s1 s2]", dr.SampleTags)
	}

	row, ok, err := dr.ReadOne()
	if err != nil || !ok {
		t.Fatalf("ReadOne AAAA: ok=%v err=%v", ok, err)
	}
	if row.Overall != 3 || row.Counters[0] != 2 || row.Counters[1] != 1 || row.Counters[2] != 0 {
		t.Fatalf("AAAA details = %+v, want Overall=3 Counters=[2 1 0]", row)
	}
	if err := row.CheckInvariant(); err != nil {
		t.Fatalf("CheckInvariant: %v", err)
	}

	row, ok, err = dr.ReadOne()
	if err != nil || !ok {
		t.Fatalf("ReadOne CCCC: ok=%v err=%v", ok, err)
	}
	if row.Overall != 1 || row.Counters[0] != 0 || row.Counters[1] != 1 || row.Counters[2] != 0 {
		t.Fatalf("CCCC details = %+v, want Overall=1 Counters=[0 1 0]", row)
	}

	row, ok, err = dr.ReadOne()
	if err != nil || !ok {
		t.Fatalf("ReadOne GGGG: ok=%v err=%v", ok, err)
	}
	if row.Overall != 1 || row.Counters[0] != 0 || row.Counters[1] != 0 || row.Counters[2] != 1 {
		t.Fatalf("GGGG details = %+v, want Overall=1 Counters=[0 0 1]", row)
	}

	_, ok, err = dr.ReadOne()
	if err != nil || ok {
		t.Fatalf("expected end of details stream, got ok=%v err=%v", ok, err)
	}

	// Phase A/B scratch files must all be gone; only the inputs and the
	// final output/details pair survive.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	want2 := map[string]bool{
		"s0.fastq": true, "s1.fastq": true, "s2.fastq": true,
		"merged.tag": true, "merged.details": true,
	}
	for _, e := range entries {
		if !want2[e.Name()] {
			t.Fatalf("unexpected leftover file %q", e.Name())
		}
	}
}

func TestCollapseMultiSampleTiersBeyondFanout(t *testing.T) {
	dir := t.TempDir()

	const nSamples = 5
	samples := make([]Sample, nSamples)
	for i := 0; i < nSamples; i++ {
		tag := "sample" + string(rune('0'+i))
		p := filepath.Join(dir, tag+".fastq")
		writeFile(t, p, "@a\nAAAA\n+\nIIII\n")
		samples[i] = Sample{Tag: tag, Paths: []string{p}}
	}

	c := New(Config{
		Layout:         layout.Layout{Kind: layout.SingleEnd},
		InputFormat:    layout.Fastq,
		OutputFormat:   layout.Tag,
		OutputDir:      dir,
		OutputBasename: "merged",
		TempDir:        dir,
		MaxRAMBytes:    1 << 30,
	})

	// Force a tiny fanout so even 5 samples require an intermediate tier.
	tempRuns := make([]seqio.ShardPaths, nSamples)
	tags := make([]string, nSamples)
	sampleIDs := make([]int, nSamples)
	for i, s := range samples {
		sub := New(Config{
			Layout:         layout.Layout{Kind: layout.SingleEnd},
			InputFormat:    layout.Fastq,
			OutputFormat:   layout.Tag,
			OutputDir:      dir,
			OutputBasename: "phaseA-" + s.Tag,
			TempDir:        dir,
			MaxRAMBytes:    1 << 30,
		})
		if _, err := sub.CollapseSingleSample(s.Paths...); err != nil {
			t.Fatalf("CollapseSingleSample: %v", err)
		}
		tempRuns[i] = sub.lastOutputPaths[0]
		tags[i] = s.Tag
		sampleIDs[i] = i
	}

	finalRuns, finalDetails, tiers, err := mergeSamplesTiered(tempRuns, sampleIDs, tags, dir, 2, layout.SingleEnd, 0)
	if err != nil {
		t.Fatalf("mergeSamplesTiered: %v", err)
	}
	if tiers == 0 {
		t.Fatalf("tiers = 0, want at least one intermediate tier for 5 sources at fanout 2")
	}
	if len(finalRuns) > 2 {
		t.Fatalf("finalRuns = %d, want <= fanout (2)", len(finalRuns))
	}

	written, err := finalCrossSampleMerge(finalRuns, finalDetails, sampleIDsFor(len(finalRuns)), tags, c, layout.SingleEnd, 0)
	if err != nil {
		t.Fatalf("finalCrossSampleMerge: %v", err)
	}
	if written != 1 {
		t.Fatalf("written = %d, want 1 (every sample has only AAAA)", written)
	}

	var dr seqio.DetailsReader
	if err := dr.Configure(filepath.Join(dir, "merged.details")); err != nil {
		t.Fatalf("Configure details reader: %v", err)
	}
	defer dr.Close()
	row, ok, err := dr.ReadOne()
	if err != nil || !ok {
		t.Fatalf("ReadOne: ok=%v err=%v", ok, err)
	}
	if int(row.Overall) != nSamples {
		t.Fatalf("Overall = %v, want %d", row.Overall, nSamples)
	}
	for i, cnt := range row.Counters {
		if cnt != 1 {
			t.Fatalf("Counters[%d] = %v, want 1", i, cnt)
		}
	}
}

func sampleIDsFor(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}
