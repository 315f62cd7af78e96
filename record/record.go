// Package record defines the SequenceRecord and DetailsRecord types that
// flow through the rest of BioSeqZip, and their merge algebra. It is
// grounded on the teacher's sam.Alignment (sam/sam-types.go): a flat,
// owned-by-value struct with explicit invariants, no hidden allocation in
// the hot path, and a merge operation that mutates in place.
package record

import (
	"github.com/bioinformatics-polito/BioSeqZip/errs"
)

// Sequence is the alphabet-agnostic byte representation of a tag sequence.
// The core never interprets the alphabet; it only compares bytes.
type Sequence []byte

// Quality holds one Phred+33-decoded quality byte per symbol of a Sequence,
// or is nil/empty when qualities are suppressed.
type Quality []byte

// Counter is the occurrence counter type. ~32-bit per spec.md §3; stored as
// uint64 internally so intermediate sums (e.g. across samples) cannot
// silently wrap before the CounterOverflow check runs, but range-checked at
// every mutation against MaxCounter.
type Counter uint64

// MaxCounter is the largest representable occurrence count, matching the
// spec's "~32-bit" counter width.
const MaxCounter Counter = 1<<32 - 1

// BpOffset is the breakpoint offset: the index within Sequence where mate-2
// begins. 0 means single-end; len(Sequence) means "all on mate-1".
type BpOffset uint32

// SequenceRecord represents one distinct observed sequence, carrying its
// occurrence count and optional per-base quality.
//
// SequenceRecord is always owned by value by whichever Buffer currently
// holds it; Merge and Trim mutate in place rather than allocating a new
// record, mirroring the teacher's Alignment lifecycle (owned by a []*
// Alignment slice, mutated through pointers during filtering).
type SequenceRecord struct {
	Sequence Sequence
	Quality  Quality
	Count    Counter
	BpOffset BpOffset
}

// Alive reports whether this record is a live record (Count > 0) as opposed
// to a tombstone produced by a prior Merge.
func (r *SequenceRecord) Alive() bool {
	return r.Count > 0
}

// Less implements the canonical total order: lexicographic on Sequence.
func Less(a, b *SequenceRecord) bool {
	return lessBytes(a.Sequence, b.Sequence)
}

func lessBytes(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Equal reports whether two records carry bitwise-identical sequences. This
// is the collapse equality test (spec.md §3: "Equality for collapse is
// bitwise equality of sequence, not of quality or count").
func Equal(a, b *SequenceRecord) bool {
	if len(a.Sequence) != len(b.Sequence) {
		return false
	}
	for i := range a.Sequence {
		if a.Sequence[i] != b.Sequence[i] {
			return false
		}
	}
	return true
}

// Merge folds record2 into record1: record1.Sequence must equal
// record2.Sequence, and len(record1.Quality) must equal len(record2.Quality).
// record1's quality becomes the occurrence-weighted average (rounded down),
// its count becomes the sum, and record2 is zeroed into a tombstone.
// record1's BpOffset is left untouched (equal sequences carry equal offsets
// by construction).
func Merge(record1, record2 *SequenceRecord) error {
	if len(record1.Quality) != len(record2.Quality) {
		return errs.New(errs.InvariantViolated, "mismatched quality lengths in SequenceRecord.Merge")
	}
	total := record1.Count + record2.Count
	if total > MaxCounter || total < record1.Count {
		return errs.New(errs.CounterOverflow, "occurrence counter overflow in SequenceRecord.Merge")
	}
	for i := range record1.Quality {
		w1 := int64(record1.Quality[i]) * int64(record1.Count)
		w2 := int64(record2.Quality[i]) * int64(record2.Count)
		record1.Quality[i] = byte((w1 + w2) / int64(total))
	}
	record1.Count = total
	record2.Count = 0
	return nil
}

// MergeRange folds records[1:] into records[0] in a single pass, computing
// per-position weighted quality with a 64-bit accumulator to avoid overflow
// across many folded records (spec.md §4.1). Every record after the first
// becomes a tombstone.
func MergeRange(records []*SequenceRecord) error {
	if len(records) <= 1 {
		return nil
	}
	first := records[0]
	qlen := len(first.Quality)
	for _, r := range records[1:] {
		if len(r.Quality) != qlen {
			return errs.New(errs.InvariantViolated, "mismatched quality lengths in SequenceRecord.MergeRange")
		}
	}

	var totalOverall Counter
	for _, r := range records {
		next := totalOverall + r.Count
		if next > MaxCounter || next < totalOverall {
			return errs.New(errs.CounterOverflow, "occurrence counter overflow in SequenceRecord.MergeRange")
		}
		totalOverall = next
	}

	if qlen > 0 {
		acc := make([]int64, qlen)
		for _, r := range records {
			w := int64(r.Count)
			for i, q := range r.Quality {
				acc[i] += int64(q) * w
			}
		}
		for i := range first.Quality {
			first.Quality[i] = byte(acc[i] / int64(totalOverall))
		}
	}

	first.Count = totalOverall
	for _, r := range records[1:] {
		r.Count = 0
	}
	return nil
}

// Trim replaces Sequence and Quality with their [L, len-R) infix, adjusting
// BpOffset per spec.md §4.1's three-way rule.
func (r *SequenceRecord) Trim(left, right uint64) error {
	n := uint64(len(r.Sequence))
	if left+right > n {
		return errs.New(errs.InvariantViolated, "trim window larger than sequence")
	}
	newLen := n - left - right

	newSeq := make(Sequence, newLen)
	copy(newSeq, r.Sequence[left:n-right])

	var newQual Quality
	if len(r.Quality) > 0 {
		newQual = make(Quality, newLen)
		copy(newQual, r.Quality[left:n-right])
	}

	bp := uint64(r.BpOffset)
	switch {
	case bp < left:
		r.BpOffset = 0
	case bp <= n-right:
		r.BpOffset = BpOffset(bp - left)
	default:
		r.BpOffset = BpOffset(newLen)
	}

	r.Sequence = newSeq
	r.Quality = newQual
	return nil
}

// MemoryBytes returns the heap + inline byte cost of the record, reflecting
// the *capacity* (not length) of its variable-length parts, so that a
// Buffer's probe-based sizing (spec.md §4.4 step 1) sees real allocator
// pressure rather than just logical size.
func (r *SequenceRecord) MemoryBytes() uint64 {
	const structOverhead = 64 // Sequence/Quality headers + Count + BpOffset, rounded up
	return uint64(cap(r.Sequence)) + uint64(cap(r.Quality)) + structOverhead
}
