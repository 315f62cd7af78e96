package seqio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bioinformatics-polito/BioSeqZip/layout"
	"github.com/bioinformatics-polito/BioSeqZip/record"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestReaderSingleEndFastq(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.fastq")
	writeFile(t, path, "@r1\nACGT\n+\nIIII\n@r2\nTTTT\n+\n!!!!\n")

	var r Reader
	if err := r.Configure(layout.SingleEnd, layout.Fastq, 0, path); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer r.Close()

	var rec record.SequenceRecord
	ok, err := r.ReadOne(&rec)
	if err != nil || !ok {
		t.Fatalf("ReadOne #1: ok=%v err=%v", ok, err)
	}
	if string(rec.Sequence) != "ACGT" {
		t.Fatalf("Sequence = %q, want ACGT", rec.Sequence)
	}
	if rec.Quality[0] != 'I'-33 {
		t.Fatalf("Quality[0] = %v, want %v", rec.Quality[0], 'I'-33)
	}

	ok, err = r.ReadOne(&rec)
	if err != nil || !ok {
		t.Fatalf("ReadOne #2: ok=%v err=%v", ok, err)
	}
	if string(rec.Sequence) != "TTTT" {
		t.Fatalf("Sequence = %q, want TTTT", rec.Sequence)
	}

	ok, err = r.ReadOne(&rec)
	if err != nil || ok {
		t.Fatalf("ReadOne #3: expected end of stream, got ok=%v err=%v", ok, err)
	}
	if !r.AtEnd() {
		t.Fatalf("AtEnd() = false after exhausting stream")
	}
}

func TestReaderSkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.fastq")
	writeFile(t, path, "\n# a comment\n\n@r1\nACGT\n+\nIIII\n# another comment\n@r2\nTTTT\n+\n!!!!\n")

	var r Reader
	if err := r.Configure(layout.SingleEnd, layout.Fastq, 0, path); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer r.Close()

	var rec record.SequenceRecord
	ok, err := r.ReadOne(&rec)
	if err != nil || !ok {
		t.Fatalf("ReadOne #1: ok=%v err=%v", ok, err)
	}
	if string(rec.Sequence) != "ACGT" {
		t.Fatalf("Sequence = %q, want ACGT", rec.Sequence)
	}

	ok, err = r.ReadOne(&rec)
	if err != nil || !ok {
		t.Fatalf("ReadOne #2: ok=%v err=%v", ok, err)
	}
	if string(rec.Sequence) != "TTTT" {
		t.Fatalf("Sequence = %q, want TTTT", rec.Sequence)
	}
}

func TestReaderTagSkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.tag")
	writeFile(t, path, "# header comment\n\nACGT\t3\n\nTTTT\t1\n")

	var r Reader
	if err := r.Configure(layout.SingleEnd, layout.Tag, 0, path); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer r.Close()

	var rec record.SequenceRecord
	ok, err := r.ReadOne(&rec)
	if err != nil || !ok {
		t.Fatalf("ReadOne #1: ok=%v err=%v", ok, err)
	}
	if string(rec.Sequence) != "ACGT" {
		t.Fatalf("Sequence = %q, want ACGT", rec.Sequence)
	}

	ok, err = r.ReadOne(&rec)
	if err != nil || !ok {
		t.Fatalf("ReadOne #2: ok=%v err=%v", ok, err)
	}
	if string(rec.Sequence) != "TTTT" {
		t.Fatalf("Sequence = %q, want TTTT", rec.Sequence)
	}
}

func TestReaderPairedEndSetsBpOffset(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "r1.fasta")
	p2 := filepath.Join(dir, "r2.fasta")
	writeFile(t, p1, ">m1\nAC\n")
	writeFile(t, p2, ">m2\nGT\n")

	var r Reader
	if err := r.Configure(layout.PairedEnd, layout.Fasta, 0, p1, p2); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer r.Close()

	var rec record.SequenceRecord
	ok, err := r.ReadOne(&rec)
	if err != nil || !ok {
		t.Fatalf("ReadOne: ok=%v err=%v", ok, err)
	}
	if string(rec.Sequence) != "ACGT" {
		t.Fatalf("Sequence = %q, want ACGT", rec.Sequence)
	}
	if rec.BpOffset != 2 {
		t.Fatalf("BpOffset = %v, want 2", rec.BpOffset)
	}
}

func TestReaderInterleavedMatchesPairedEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.fasta")
	writeFile(t, path, ">m1\nAC\n>m2\nGT\n")

	var r Reader
	if err := r.Configure(layout.Interleaved, layout.Fasta, 0, path); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer r.Close()

	var rec record.SequenceRecord
	ok, err := r.ReadOne(&rec)
	if err != nil || !ok {
		t.Fatalf("ReadOne: ok=%v err=%v", ok, err)
	}
	if string(rec.Sequence) != "ACGT" || rec.BpOffset != 2 {
		t.Fatalf("got Sequence=%q BpOffset=%v, want ACGT/2", rec.Sequence, rec.BpOffset)
	}
}

func TestWriterTagRoundTrip(t *testing.T) {
	dir := t.TempDir()
	var w Writer
	if err := w.Configure(layout.SingleEnd, layout.Tag, dir, "out", 0); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	records := []*record.SequenceRecord{
		{Sequence: record.Sequence("ACGT"), Count: 3},
		{Sequence: record.Sequence("TTTT"), Count: 0}, // tombstone, must be skipped
	}
	n, err := w.WriteMany(records)
	if err != nil {
		t.Fatalf("WriteMany: %v", err)
	}
	if n != 1 {
		t.Fatalf("WriteMany wrote %d records, want 1", n)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	paths := w.OutputPaths()
	if len(paths) != 1 {
		t.Fatalf("OutputPaths returned %d shards, want 1", len(paths))
	}
	data, err := os.ReadFile(paths[0].Mate1)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "ACGT\t3\n" {
		t.Fatalf("output = %q, want %q", data, "ACGT\t3\n")
	}
}

func TestWriterFastaEmitsBioseqzipHeader(t *testing.T) {
	dir := t.TempDir()
	var w Writer
	if err := w.Configure(layout.SingleEnd, layout.Fasta, dir, "out", 0); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	records := []*record.SequenceRecord{
		{Sequence: record.Sequence("ACGT"), Count: 5},
	}
	if _, err := w.WriteMany(records); err != nil {
		t.Fatalf("WriteMany: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(w.OutputPaths()[0].Mate1)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := ">BIOSEQZIP|ID:0|CN:5\nACGT\n"
	if string(data) != want {
		t.Fatalf("output = %q, want %q", data, want)
	}
}

func TestWriterFastqEmitsBioseqzipHeader(t *testing.T) {
	dir := t.TempDir()
	var w Writer
	if err := w.Configure(layout.SingleEnd, layout.Fastq, dir, "out", 0); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	records := []*record.SequenceRecord{
		{Sequence: record.Sequence("ACGT"), Quality: record.Quality{40, 40, 40, 40}, Count: 2},
	}
	if _, err := w.WriteMany(records); err != nil {
		t.Fatalf("WriteMany: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(w.OutputPaths()[0].Mate1)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "@BIOSEQZIP|ID:0|CN:2\nACGT\n+\nIIII\n"
	if string(data) != want {
		t.Fatalf("output = %q, want %q", data, want)
	}
}

func TestWriterShardRollover(t *testing.T) {
	dir := t.TempDir()
	var w Writer
	if err := w.Configure(layout.SingleEnd, layout.Tag, dir, "out", 1); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	records := []*record.SequenceRecord{
		{Sequence: record.Sequence("AA"), Count: 1},
		{Sequence: record.Sequence("CC"), Count: 1},
		{Sequence: record.Sequence("GG"), Count: 1},
	}
	if _, err := w.WriteMany(records); err != nil {
		t.Fatalf("WriteMany: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(w.OutputPaths()) != 3 {
		t.Fatalf("OutputPaths = %d, want 3 (one per record)", len(w.OutputPaths()))
	}
}

func TestDetailsWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.details")

	var dw DetailsWriter
	if err := dw.Configure(path, []string{"s1", "s2"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	rows := []*record.DetailsRecord{
		{Counters: []record.Counter{2, 1}, Overall: 3},
	}
	if _, err := dw.WriteMany(rows); err != nil {
		t.Fatalf("WriteMany: %v", err)
	}
	if err := dw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var dr DetailsReader
	if err := dr.Configure(path); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer dr.Close()
	if len(dr.SampleTags) != 2 || dr.SampleTags[0] != "s1" {
		t.Fatalf("SampleTags = %v, want [s1 s2]", dr.SampleTags)
	}
	got, ok, err := dr.ReadOne()
	if err != nil || !ok {
		t.Fatalf("ReadOne: ok=%v err=%v", ok, err)
	}
	if got.Overall != 3 || got.Counters[0] != 2 || got.Counters[1] != 1 {
		t.Fatalf("got %+v, want Overall=3 Counters=[2 1]", got)
	}
}
