package seqio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bioinformatics-polito/BioSeqZip/errs"
	"github.com/bioinformatics-polito/BioSeqZip/record"
)

// DetailsWriter serializes DetailsRecords to the tab-separated details
// file spec.md §4.2 describes: a header row "Overall\ttag_1\t...\ttag_n"
// followed by one row per surviving sequence.
type DetailsWriter struct {
	file   *os.File
	buf    *bufio.Writer
	header bool
}

// Configure opens path and writes the header row for the given sample tags.
func (d *DetailsWriter) Configure(path string, sampleTags []string) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.IoFailure, err, "creating details file")
	}
	d.file = f
	d.buf = bufio.NewWriterSize(f, 64*1024)

	cols := make([]string, 0, len(sampleTags)+1)
	cols = append(cols, "Overall")
	cols = append(cols, sampleTags...)
	if _, err := fmt.Fprintln(d.buf, strings.Join(cols, "\t")); err != nil {
		return errs.Wrap(errs.IoFailure, err, "writing details header")
	}
	d.header = true
	return nil
}

// WriteMany writes one row per alive DetailsRecord.
func (d *DetailsWriter) WriteMany(records []*record.DetailsRecord) (int, error) {
	if !d.header {
		return 0, errs.New(errs.ConfigInvalid, "DetailsWriter used before Configure")
	}
	n := 0
	for _, r := range records {
		if !r.Alive() {
			continue
		}
		if err := d.writeOne(r); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (d *DetailsWriter) writeOne(r *record.DetailsRecord) error {
	if _, err := fmt.Fprintf(d.buf, "%d", r.Overall); err != nil {
		return errs.Wrap(errs.IoFailure, err, "writing details row")
	}
	for _, c := range r.Counters {
		if _, err := fmt.Fprintf(d.buf, "\t%d", c); err != nil {
			return errs.Wrap(errs.IoFailure, err, "writing details row")
		}
	}
	if _, err := d.buf.WriteString("\n"); err != nil {
		return errs.Wrap(errs.IoFailure, err, "writing details row")
	}
	return nil
}

// Flush flushes buffered output.
func (d *DetailsWriter) Flush() error {
	if err := d.buf.Flush(); err != nil {
		return errs.Wrap(errs.IoFailure, err, "flushing details file")
	}
	return nil
}

// Close flushes and closes the details file.
func (d *DetailsWriter) Close() error {
	if err := d.Flush(); err != nil {
		return err
	}
	return d.file.Close()
}

// DetailsReader reads back a details file, used by tests and by the
// multi-sample collapser's cross-tier merges.
type DetailsReader struct {
	scanner    *bufio.Scanner
	file       *os.File
	SampleTags []string
}

// Configure opens path and parses its header row.
func (d *DetailsReader) Configure(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.PathMissing, err, "opening details file")
	}
	d.file = f
	d.scanner = newLineScanner(f)
	if !d.scanner.Scan() {
		return errs.New(errs.FormatError, "empty details file")
	}
	cols := strings.Split(d.scanner.Text(), "\t")
	if len(cols) < 1 || cols[0] != "Overall" {
		return errs.New(errs.FormatError, "details file missing Overall header column")
	}
	d.SampleTags = cols[1:]
	return nil
}

// ReadOne reads the next details row.
func (d *DetailsReader) ReadOne() (*record.DetailsRecord, bool, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return nil, false, errs.Wrap(errs.IoFailure, err, "reading details file")
		}
		return nil, false, nil
	}
	cols := strings.Split(d.scanner.Text(), "\t")
	if len(cols) != len(d.SampleTags)+1 {
		return nil, false, errs.New(errs.FormatError, "details row column count mismatch")
	}
	overall, err := strconv.ParseUint(cols[0], 10, 64)
	if err != nil {
		return nil, false, errs.Wrap(errs.FormatError, err, "parsing details Overall column")
	}
	counters := make([]record.Counter, len(d.SampleTags))
	for i, c := range cols[1:] {
		v, err := strconv.ParseUint(c, 10, 64)
		if err != nil {
			return nil, false, errs.Wrap(errs.FormatError, err, "parsing details counter column")
		}
		counters[i] = record.Counter(v)
	}
	return &record.DetailsRecord{Counters: counters, Overall: record.Counter(overall)}, true, nil
}

// Close closes the underlying file.
func (d *DetailsReader) Close() error {
	return d.file.Close()
}
