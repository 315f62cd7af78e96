package seqio

import (
	"os"

	"github.com/bioinformatics-polito/BioSeqZip/errs"
	"github.com/bioinformatics-polito/BioSeqZip/layout"
	"github.com/bioinformatics-polito/BioSeqZip/record"
)

// Reader pulls SequenceRecords from one configured source, which may span
// one or two files depending on layout.Kind. It is the seqio half of
// spec.md §4.2's Reader/Writer contract.
type Reader struct {
	kind     layout.Kind
	format   layout.Format
	bpOffset record.BpOffset // only meaningful for layout.Breakpoint

	mate1 unitReader
	mate2 unitReader // nil unless kind == PairedEnd

	atEnd bool
}

// Configure opens paths according to kind: one path for SingleEnd,
// Interleaved and Breakpoint, two for PairedEnd (mate1, mate2).
func (r *Reader) Configure(kind layout.Kind, format layout.Format, bpOffset int, paths ...string) error {
	switch kind {
	case layout.SingleEnd, layout.Interleaved, layout.Breakpoint:
		if len(paths) != 1 {
			return errs.New(errs.ConfigInvalid, "expected exactly one input path for this layout")
		}
	case layout.PairedEnd:
		if len(paths) != 2 {
			return errs.New(errs.ConfigInvalid, "expected exactly two input paths for paired-end layout")
		}
	default:
		return errs.New(errs.ConfigInvalid, "unknown layout kind")
	}

	f1, err := os.Open(paths[0])
	if err != nil {
		return errs.Wrap(errs.PathMissing, err, "opening input path")
	}
	u1, err := newUnitReader(format, f1, f1)
	if err != nil {
		f1.Close()
		return err
	}

	r.kind = kind
	r.format = format
	r.bpOffset = record.BpOffset(bpOffset)
	r.mate1 = u1
	r.mate2 = nil
	r.atEnd = false

	if kind == layout.PairedEnd {
		f2, err := os.Open(paths[1])
		if err != nil {
			u1.close()
			return errs.Wrap(errs.PathMissing, err, "opening mate-2 input path")
		}
		u2, err := newUnitReader(format, f2, f2)
		if err != nil {
			u1.close()
			f2.Close()
			return err
		}
		r.mate2 = u2
	}
	return nil
}

// AtEnd reports whether the previous ReadOne/ReadMany call observed
// end-of-stream.
func (r *Reader) AtEnd() bool {
	return r.atEnd
}

// ReadOne reads the next record into *out, overwriting its fields, and
// reports whether a record was available.
func (r *Reader) ReadOne(out *record.SequenceRecord) (bool, error) {
	if r.atEnd {
		return false, nil
	}

	switch r.kind {
	case layout.SingleEnd:
		seq, qual, ok, err := r.mate1.readOne()
		if err != nil {
			return false, errs.Wrap(errs.IoFailure, err, "reading single-end record")
		}
		if !ok {
			r.atEnd = true
			return false, nil
		}
		*out = record.SequenceRecord{Sequence: record.Sequence(seq), Quality: record.Quality(qual), Count: 1}
		return true, nil

	case layout.Breakpoint:
		seq, qual, ok, err := r.mate1.readOne()
		if err != nil {
			return false, errs.Wrap(errs.IoFailure, err, "reading breakpoint record")
		}
		if !ok {
			r.atEnd = true
			return false, nil
		}
		*out = record.SequenceRecord{Sequence: record.Sequence(seq), Quality: record.Quality(qual), Count: 1, BpOffset: r.bpOffset}
		return true, nil

	case layout.PairedEnd:
		seq1, qual1, ok1, err := r.mate1.readOne()
		if err != nil {
			return false, errs.Wrap(errs.IoFailure, err, "reading mate-1 record")
		}
		seq2, qual2, ok2, err := r.mate2.readOne()
		if err != nil {
			return false, errs.Wrap(errs.IoFailure, err, "reading mate-2 record")
		}
		if !ok1 && !ok2 {
			r.atEnd = true
			return false, nil
		}
		if ok1 != ok2 {
			return false, errs.New(errs.FormatError, "paired-end mate streams have mismatched lengths")
		}
		*out = *concatMates(seq1, qual1, seq2, qual2)
		return true, nil

	case layout.Interleaved:
		seq1, qual1, ok1, err := r.mate1.readOne()
		if err != nil {
			return false, errs.Wrap(errs.IoFailure, err, "reading interleaved mate-1 record")
		}
		if !ok1 {
			r.atEnd = true
			return false, nil
		}
		seq2, qual2, ok2, err := r.mate1.readOne()
		if err != nil {
			return false, errs.Wrap(errs.IoFailure, err, "reading interleaved mate-2 record")
		}
		if !ok2 {
			return false, errs.New(errs.FormatError, "interleaved stream has an odd number of records")
		}
		*out = *concatMates(seq1, qual1, seq2, qual2)
		return true, nil

	default:
		return false, errs.New(errs.ConfigInvalid, "unknown layout kind")
	}
}

// ReadMany fills buf[start:end] by repeated ReadOne calls, stopping early
// at end-of-stream, and returns how many records were filled.
func (r *Reader) ReadMany(buf []*record.SequenceRecord, start, end int) (int, error) {
	n := 0
	for i := start; i < end; i++ {
		ok, err := r.ReadOne(buf[i])
		if err != nil {
			return n, err
		}
		if !ok {
			break
		}
		n++
	}
	return n, nil
}

// Close releases the underlying file handles.
func (r *Reader) Close() error {
	var firstErr error
	if r.mate1 != nil {
		if err := r.mate1.close(); err != nil {
			firstErr = err
		}
	}
	if r.mate2 != nil {
		if err := r.mate2.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
