// Package seqio implements the on-disk record formats spec.md §4.2
// describes (fasta, fastq, tag, tagq) and the Reader/Writer contract that
// the buffer and collapse packages drive. Readers are grounded on the
// teacher's line-oriented bufio.Scanner use in fasta.ParseFasta
// (fasta/fasta-files.go); unlike that reference-genome parser, every
// record here is assumed single-line (spec.md's short-read domain), so no
// multi-line sequence folding is needed.
package seqio

import (
	"bufio"
	"io"

	"github.com/bioinformatics-polito/BioSeqZip/errs"
	"github.com/bioinformatics-polito/BioSeqZip/layout"
	"github.com/bioinformatics-polito/BioSeqZip/record"
)

// qualityOffset is the Phred+33 ASCII offset used by fastq and tagq.
const qualityOffset = 33

func decodeQuality(dst, ascii []byte) {
	for i, c := range ascii {
		dst[i] = c - qualityOffset
	}
}

func encodeQuality(dst, decoded []byte) {
	for i, q := range decoded {
		dst[i] = q + qualityOffset
	}
}

// unitReader reads one mate stream's worth of (sequence, quality) pairs,
// one record per call, with no layout awareness.
type unitReader interface {
	readOne() (seq, qual []byte, ok bool, err error)
	close() error
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return s
}

// scanRecordStart advances s to the next line that is neither blank nor a
// '#'-comment line, the leading-whitespace/comment skip every record-start
// line (a fasta/fastq header, or a bare tag/tagq line) must apply. It
// reports false at end-of-stream or on a scan error, exactly like
// bufio.Scanner.Scan.
func scanRecordStart(s *bufio.Scanner) bool {
	for s.Scan() {
		line := s.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		return true
	}
	return false
}

// --- fasta ---

type fastaUnitReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

func newFastaUnitReader(r io.Reader, c io.Closer) *fastaUnitReader {
	return &fastaUnitReader{scanner: newLineScanner(r), closer: c}
}

func (u *fastaUnitReader) readOne() (seq, qual []byte, ok bool, err error) {
	if !scanRecordStart(u.scanner) {
		return nil, nil, false, u.scanner.Err()
	}
	header := u.scanner.Bytes()
	if len(header) == 0 || header[0] != '>' {
		return nil, nil, false, errs.New(errs.FormatError, "expected '>' header line in fasta record")
	}
	if !u.scanner.Scan() {
		if err := u.scanner.Err(); err != nil {
			return nil, nil, false, err
		}
		return nil, nil, false, errs.New(errs.FormatError, "fasta header with no sequence line")
	}
	line := u.scanner.Bytes()
	seq = make([]byte, len(line))
	copy(seq, line)
	return seq, nil, true, nil
}

func (u *fastaUnitReader) close() error { return u.closer.Close() }

// --- fastq ---

type fastqUnitReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

func newFastqUnitReader(r io.Reader, c io.Closer) *fastqUnitReader {
	return &fastqUnitReader{scanner: newLineScanner(r), closer: c}
}

func (u *fastqUnitReader) readOne() (seq, qual []byte, ok bool, err error) {
	if !scanRecordStart(u.scanner) {
		return nil, nil, false, u.scanner.Err()
	}
	header := u.scanner.Bytes()
	if len(header) == 0 || header[0] != '@' {
		return nil, nil, false, errs.New(errs.FormatError, "expected '@' header line in fastq record")
	}
	if !u.scanner.Scan() {
		return nil, nil, false, errs.New(errs.FormatError, "fastq header with no sequence line")
	}
	seqLine := u.scanner.Bytes()
	seq = make([]byte, len(seqLine))
	copy(seq, seqLine)

	if !u.scanner.Scan() {
		return nil, nil, false, errs.New(errs.FormatError, "fastq record missing '+' separator line")
	}
	sep := u.scanner.Bytes()
	if len(sep) == 0 || sep[0] != '+' {
		return nil, nil, false, errs.New(errs.FormatError, "expected '+' separator line in fastq record")
	}
	if !u.scanner.Scan() {
		return nil, nil, false, errs.New(errs.FormatError, "fastq record missing quality line")
	}
	qualLine := u.scanner.Bytes()
	if len(qualLine) != len(seqLine) {
		return nil, nil, false, errs.New(errs.FormatError, "fastq sequence/quality length mismatch")
	}
	qual = make([]byte, len(qualLine))
	decodeQuality(qual, qualLine)
	return seq, qual, true, nil
}

func (u *fastqUnitReader) close() error { return u.closer.Close() }

// --- tag ---

type tagUnitReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

func newTagUnitReader(r io.Reader, c io.Closer) *tagUnitReader {
	return &tagUnitReader{scanner: newLineScanner(r), closer: c}
}

func (u *tagUnitReader) readOne() (seq, qual []byte, ok bool, err error) {
	if !scanRecordStart(u.scanner) {
		return nil, nil, false, u.scanner.Err()
	}
	seq, _, ok = splitTagLine(u.scanner.Bytes(), 1)
	if !ok {
		return nil, nil, false, errs.New(errs.FormatError, "malformed tag record")
	}
	return seq, nil, true, nil
}

func (u *tagUnitReader) close() error { return u.closer.Close() }

// --- tagq ---

type tagqUnitReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

func newTagqUnitReader(r io.Reader, c io.Closer) *tagqUnitReader {
	return &tagqUnitReader{scanner: newLineScanner(r), closer: c}
}

func (u *tagqUnitReader) readOne() (seq, qual []byte, ok bool, err error) {
	if !scanRecordStart(u.scanner) {
		return nil, nil, false, u.scanner.Err()
	}
	seq, rest, ok := splitTagLine(u.scanner.Bytes(), 2)
	if !ok {
		return nil, nil, false, errs.New(errs.FormatError, "malformed tagq record")
	}
	asciiQual, _, ok := splitTagLine(rest, 1)
	if !ok {
		return nil, nil, false, errs.New(errs.FormatError, "malformed tagq record")
	}
	if len(asciiQual) != len(seq) {
		return nil, nil, false, errs.New(errs.FormatError, "tagq sequence/quality length mismatch")
	}
	qual = make([]byte, len(asciiQual))
	decodeQuality(qual, asciiQual)
	return seq, qual, true, nil
}

func (u *tagqUnitReader) close() error { return u.closer.Close() }

// splitTagLine splits off the first field of a tab-separated line, leaving
// fieldsRemaining more fields expected after it. The count argument is used
// only for early malformed-line detection.
func splitTagLine(line []byte, fieldsRemaining int) (field, rest []byte, ok bool) {
	for i, c := range line {
		if c == '\t' {
			return line[:i], line[i+1:], true
		}
	}
	if fieldsRemaining == 1 {
		return line, nil, len(line) > 0
	}
	return nil, nil, false
}

func newUnitReader(f layout.Format, r io.Reader, c io.Closer) (unitReader, error) {
	switch f {
	case layout.Fasta:
		return newFastaUnitReader(r, c), nil
	case layout.Fastq:
		return newFastqUnitReader(r, c), nil
	case layout.Tag:
		return newTagUnitReader(r, c), nil
	case layout.Tagq:
		return newTagqUnitReader(r, c), nil
	default:
		return nil, errs.New(errs.ConfigInvalid, "unknown sequence format")
	}
}

// concatMates builds the single SequenceRecord a paired or interleaved
// layout produces from two mate reads, recording the junction in BpOffset.
func concatMates(seq1, qual1, seq2, qual2 []byte) *record.SequenceRecord {
	seq := make(record.Sequence, len(seq1)+len(seq2))
	copy(seq, seq1)
	copy(seq[len(seq1):], seq2)

	var qual record.Quality
	if qual1 != nil || qual2 != nil {
		qual = make(record.Quality, len(qual1)+len(qual2))
		copy(qual, qual1)
		copy(qual[len(qual1):], qual2)
	}

	return &record.SequenceRecord{
		Sequence: seq,
		Quality:  qual,
		Count:    1,
		BpOffset: record.BpOffset(len(seq1)),
	}
}
