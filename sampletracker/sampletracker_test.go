package sampletracker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bioinformatics-polito/BioSeqZip/layout"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDiscoverDirectorySingleEnd(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "sampleB.fastq"))
	touch(t, filepath.Join(dir, "sampleA.fastq"))
	touch(t, filepath.Join(dir, "notes.txt"))

	entries, err := DiscoverDirectory(dir, layout.SingleEnd, "fastq")
	if err != nil {
		t.Fatalf("DiscoverDirectory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Tag != "sampleA" || entries[1].Tag != "sampleB" {
		t.Fatalf("tags = [%s %s], want [sampleA sampleB]", entries[0].Tag, entries[1].Tag)
	}
	if len(entries[0].Paths) != 1 || entries[0].Paths[0] != filepath.Join(dir, "sampleA.fastq") {
		t.Fatalf("entries[0].Paths = %v", entries[0].Paths)
	}
}

func TestDiscoverDirectoryPairedEnd(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "sampleA_1.fastq"))
	touch(t, filepath.Join(dir, "sampleA_2.fastq"))
	touch(t, filepath.Join(dir, "sampleB_1.fastq"))
	touch(t, filepath.Join(dir, "sampleB_2.fastq"))

	entries, err := DiscoverDirectory(dir, layout.PairedEnd, "fastq")
	if err != nil {
		t.Fatalf("DiscoverDirectory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if len(e.Paths) != 2 {
			t.Fatalf("sample %q has %d paths, want 2", e.Tag, len(e.Paths))
		}
	}
}

func TestDiscoverDirectoryPairedEndMissingMate(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "sampleA_1.fastq"))

	if _, err := DiscoverDirectory(dir, layout.PairedEnd, "fastq"); err == nil {
		t.Fatalf("expected error for an unpaired mate file")
	}
}

func TestReadManifest(t *testing.T) {
	dir := t.TempDir()
	s0m1 := filepath.Join(dir, "s0_1.fastq")
	s0m2 := filepath.Join(dir, "s0_2.fastq")
	s1m1 := filepath.Join(dir, "s1_1.fastq")
	s1m2 := filepath.Join(dir, "s1_2.fastq")
	for _, p := range []string{s0m1, s0m2, s1m1, s1m2} {
		touch(t, p)
	}

	manifest := filepath.Join(dir, "samples.csv")
	content := s0m1 + "," + s0m2 + "\n" + s1m1 + "," + s1m2 + "\n\n"
	if err := os.WriteFile(manifest, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := ReadManifest(manifest)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Tag != "s0" || len(entries[0].Paths) != 2 {
		t.Fatalf("entries[0] = %+v", entries[0])
	}
	if entries[1].Tag != "s1" || len(entries[1].Paths) != 2 {
		t.Fatalf("entries[1] = %+v", entries[1])
	}
}

func TestReadManifestSkipsLinesWithMissingPaths(t *testing.T) {
	dir := t.TempDir()
	s0m1 := filepath.Join(dir, "s0_1.fastq")
	s0m2 := filepath.Join(dir, "s0_2.fastq")
	touch(t, s0m1)
	touch(t, s0m2)

	manifest := filepath.Join(dir, "samples.csv")
	content := s0m1 + "," + s0m2 + "\n" +
		filepath.Join(dir, "missing_1.fastq") + "," + filepath.Join(dir, "missing_2.fastq") + "\n"
	if err := os.WriteFile(manifest, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := ReadManifest(manifest)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1 (the line naming missing files must be skipped)", len(entries))
	}
	if entries[0].Tag != "s0" {
		t.Fatalf("entries[0].Tag = %q, want s0", entries[0].Tag)
	}
}
