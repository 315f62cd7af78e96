package collapse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bioinformatics-polito/BioSeqZip/layout"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(data)
}

func TestCollapseSingleSampleFastPath(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.fastq")
	writeFile(t, in, "@r1\nACGT\n+\nIIII\n@r2\nACGT\n+\n!!!!\n@r3\nTTTT\n+\nIIII\n")

	c := New(Config{
		Layout:         layout.Layout{Kind: layout.SingleEnd},
		InputFormat:    layout.Fastq,
		OutputFormat:   layout.Tag,
		OutputDir:      dir,
		OutputBasename: "out",
		TempDir:        dir,
		MaxRAMBytes:    1 << 30, // large enough for the whole input in one batch
	})

	res, err := c.CollapseSingleSample(in)
	if err != nil {
		t.Fatalf("CollapseSingleSample: %v", err)
	}
	if res.OverallSequences != 3 {
		t.Fatalf("OverallSequences = %d, want 3", res.OverallSequences)
	}
	if res.CollapsedSequences != 2 {
		t.Fatalf("CollapsedSequences = %d, want 2", res.CollapsedSequences)
	}
	if res.TemporaryRunCount != 0 {
		t.Fatalf("TemporaryRunCount = %d, want 0 (fast path)", res.TemporaryRunCount)
	}
	if len(c.lastOutputPaths) != 1 {
		t.Fatalf("lastOutputPaths = %d, want 1", len(c.lastOutputPaths))
	}

	got := readFile(t, c.lastOutputPaths[0].Mate1)
	want := "ACGT\t2\nTTTT\t1\n"
	if got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestCollapseSingleSampleForcesTemporaryRuns(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.fastq")
	// Six records, four distinct sequences, duplicates split across
	// one-record batches under a tight RAM ceiling.
	writeFile(t, in, ""+
		"@r1\nAAAA\n+\nIIII\n"+
		"@r2\nCCCC\n+\nIIII\n"+
		"@r3\nAAAA\n+\nIIII\n"+
		"@r4\nGGGG\n+\nIIII\n"+
		"@r5\nTTTT\n+\nIIII\n"+
		"@r6\nAAAA\n+\nIIII\n",
	)

	c := New(Config{
		Layout:         layout.Layout{Kind: layout.SingleEnd},
		InputFormat:    layout.Fastq,
		OutputFormat:   layout.Tag,
		OutputDir:      dir,
		OutputBasename: "out",
		TempDir:        dir,
		MaxRAMBytes:    1, // forces loadableRecords down to its floor of 1
	})

	res, err := c.CollapseSingleSample(in)
	if err != nil {
		t.Fatalf("CollapseSingleSample: %v", err)
	}
	if res.OverallSequences != 6 {
		t.Fatalf("OverallSequences = %d, want 6", res.OverallSequences)
	}
	if res.CollapsedSequences != 4 {
		t.Fatalf("CollapsedSequences = %d, want 4", res.CollapsedSequences)
	}
	if res.TemporaryRunCount == 0 || res.TemporaryRunCount == 1 {
		t.Fatalf("TemporaryRunCount = %d, want >= 2", res.TemporaryRunCount)
	}

	got := readFile(t, c.lastOutputPaths[0].Mate1)
	want := "AAAA\t3\nCCCC\t1\nGGGG\t1\nTTTT\t1\n"
	if got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}

	// Temporary runs must have been cleaned up.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "in.fastq" && e.Name() != "out.tag" {
			t.Fatalf("unexpected leftover file %q", e.Name())
		}
	}
}

func TestCollapseSingleSamplePairedEnd(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "r1.fastq")
	p2 := filepath.Join(dir, "r2.fastq")
	writeFile(t, p1, "@a\nAC\n+\nII\n@b\nAC\n+\nII\n")
	writeFile(t, p2, "@a\nGT\n+\nII\n@b\nGT\n+\nII\n")

	c := New(Config{
		Layout:         layout.Layout{Kind: layout.PairedEnd},
		InputFormat:    layout.Fastq,
		OutputFormat:   layout.Tagq,
		OutputDir:      dir,
		OutputBasename: "out",
		TempDir:        dir,
		MaxRAMBytes:    1 << 30,
	})

	res, err := c.CollapseSingleSample(p1, p2)
	if err != nil {
		t.Fatalf("CollapseSingleSample: %v", err)
	}
	if res.CollapsedSequences != 1 {
		t.Fatalf("CollapsedSequences = %d, want 1", res.CollapsedSequences)
	}
	if len(c.lastOutputPaths) != 1 || c.lastOutputPaths[0].Mate2 == "" {
		t.Fatalf("expected a paired shard, got %+v", c.lastOutputPaths)
	}
}
