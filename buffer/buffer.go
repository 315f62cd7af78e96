// Package buffer implements the in-memory batch that the single- and
// multi-sample collapsers load, sort and collapse one RAM-bounded chunk at
// a time (spec.md §4.3). Its parallel sort and parallel collapse are
// grounded on the teacher's intervals.go: psort.StableSort with a
// stableIntervalSorter-shaped adapter, and a ParallelFlatten-style
// divide-and-stitch pass for the part that cannot be expressed as a plain
// sort (collapsing equal neighbors).
package buffer

import (
	"runtime"

	"github.com/exascience/pargo/parallel"
	psort "github.com/exascience/pargo/sort"

	"github.com/bioinformatics-polito/BioSeqZip/errs"
	"github.com/bioinformatics-polito/BioSeqZip/record"
	"github.com/bioinformatics-polito/BioSeqZip/seqio"
)

// Buffer owns a slice of SequenceRecords loaded from a Reader, to be
// sorted and collapsed in place before being flushed to a Writer.
type Buffer struct {
	Records []*record.SequenceRecord

	// workers bounds how many goroutines Collapse/CollapseDetails
	// partition into; 0 means "use runtime.GOMAXPROCS(0)", the same
	// 0-means-default convention the teacher's nr-of-threads flags use.
	workers int
}

// New allocates a Buffer with capacity records pre-allocated, matching
// capacity records each already carrying a SequenceRecord so that Load can
// reuse them across probe + full-load passes without reallocating (spec.md
// §4.4 step 1's probe). workers is the parallelism Collapse/CollapseDetails
// partition into (spec.md §6's n_threads); 0 falls back to
// runtime.GOMAXPROCS(0).
func New(capacity, workers int) *Buffer {
	b := &Buffer{Records: make([]*record.SequenceRecord, capacity), workers: workers}
	for i := range b.Records {
		b.Records[i] = &record.SequenceRecord{}
	}
	return b
}

// effectiveWorkers returns b.workers, or runtime.GOMAXPROCS(0) if b.workers
// is unset.
func (b *Buffer) effectiveWorkers() int {
	if b.workers > 0 {
		return b.workers
	}
	return runtime.GOMAXPROCS(0)
}

// Len reports how many records are currently loaded.
func (b *Buffer) Len() int {
	return len(b.Records)
}

// MemoryBytes sums MemoryBytes across every loaded record.
func (b *Buffer) MemoryBytes() uint64 {
	var total uint64
	for _, r := range b.Records {
		total += r.MemoryBytes()
	}
	return total
}

// Load reads up to len(b.Records) records from r, trimming the buffer down
// to however many were actually read (spec.md §4.4's "last batch may be
// short" case).
func (b *Buffer) Load(r *seqio.Reader) (int, error) {
	n, err := r.ReadMany(b.Records, 0, len(b.Records))
	if err != nil {
		return n, err
	}
	b.Records = b.Records[:n]
	return n, nil
}

// stableSorter adapts []*record.SequenceRecord to pargo/sort.StableSorter,
// following the shape of the teacher's stableIntervalSorter
// (intervals/intervals.go).
type stableSorter []*record.SequenceRecord

func (s stableSorter) SequentialSort(i, j int) {
	sortByLess(s[i:j])
}

func (s stableSorter) NewTemp() psort.StableSorter {
	return stableSorter(make([]*record.SequenceRecord, len(s)))
}

func (s stableSorter) Len() int { return len(s) }

func (s stableSorter) Less(i, j int) bool {
	return record.Less(s[i], s[j])
}

func (s stableSorter) Assign(source psort.StableSorter) func(i, j, len int) {
	dst, src := s, source.(stableSorter)
	return func(i, j, length int) {
		copy(dst[i:i+length], src[j:j+length])
	}
}

// sortByLess is a plain sequential insertion sort used as the leaf of
// the parallel merge sort; pargo only needs a Less-consistent sequential
// sort for small spans.
func sortByLess(s []*record.SequenceRecord) {
	// Simple, stable: Go's sort.SliceStable would also work, but a direct
	// insertion sort avoids reflection overhead on the small leaf spans
	// pargo hands to SequentialSort.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && record.Less(s[j], s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// Sort orders Records lexicographically by Sequence using a parallel
// stable merge sort (spec.md §4.4 step 2).
func (b *Buffer) Sort() {
	psort.StableSort(stableSorter(b.Records))
}

const collapseGrainSize = 1 << 12

// Collapse folds every maximal run of Sequence-equal records into a single
// live representative, tombstoning the rest (spec.md §4.1, §4.4 step 3).
// Records must already be Sort-ed. It returns the number of live records
// remaining.
//
// Partitions are collapsed independently in parallel, then adjacent
// partitions are stitched together sequentially — the same
// divide-then-stitch shape as the teacher's ParallelFlatten
// (intervals/intervals.go), generalized from interval overlap to sequence
// equality.
func (b *Buffer) Collapse() (int, error) {
	n := len(b.Records)
	if n == 0 {
		return 0, nil
	}

	workers := b.effectiveWorkers()
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	bounds := partitionBounds(n, workers)

	var perPartitionErr error
	parallel.Range(0, len(bounds)-1, 0, func(low, high int) {
		for p := low; p < high; p++ {
			if err := collapseRun(b.Records[bounds[p]:bounds[p+1]]); err != nil {
				perPartitionErr = err
			}
		}
	})
	if perPartitionErr != nil {
		return 0, perPartitionErr
	}

	for i := 1; i < len(bounds)-1; i++ {
		if err := stitchBoundary(b.Records, bounds[i]); err != nil {
			return 0, err
		}
	}

	return countLive(b.Records), nil
}

func partitionBounds(n, workers int) []int {
	bounds := make([]int, workers+1)
	base := n / workers
	rem := n % workers
	pos := 0
	for i := 0; i < workers; i++ {
		size := base
		if i < rem {
			size++
		}
		bounds[i] = pos
		pos += size
	}
	bounds[workers] = n
	return bounds
}

// collapseRun merges every maximal run of Sequence-equal records within
// records in place via record.MergeRange.
func collapseRun(records []*record.SequenceRecord) error {
	i := 0
	for i < len(records) {
		j := i + 1
		for j < len(records) && record.Equal(records[i], records[j]) {
			j++
		}
		if j-i > 1 {
			if err := record.MergeRange(records[i:j]); err != nil {
				return err
			}
		}
		i = j
	}
	return nil
}

// stitchBoundary merges the last live record before p into the first live
// record at-or-after p, if their sequences are equal — repairing a run
// that a partition boundary split in two.
func stitchBoundary(records []*record.SequenceRecord, p int) error {
	left := p - 1
	for left >= 0 && !records[left].Alive() {
		left--
	}
	right := p
	for right < len(records) && !records[right].Alive() {
		right++
	}
	if left < 0 || right >= len(records) {
		return nil
	}
	if record.Equal(records[left], records[right]) {
		return record.Merge(records[left], records[right])
	}
	return nil
}

func countLive(records []*record.SequenceRecord) int {
	n := 0
	for _, r := range records {
		if r.Alive() {
			n++
		}
	}
	return n
}

// CollapseDetails runs Collapse and folds the parallel DetailsRecord slice
// using the identical partition bounds, keeping sample occurrence vectors
// in lockstep with their SequenceRecords (spec.md §3). details must have
// the same length as b.Records.
func (b *Buffer) CollapseDetails(details []*record.DetailsRecord) error {
	n := len(b.Records)
	if n != len(details) {
		return errs.New(errs.InvariantViolated, "details slice length does not match buffer length")
	}
	if n == 0 {
		return nil
	}

	workers := b.effectiveWorkers()
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	bounds := partitionBounds(n, workers)

	var perPartitionErr error
	parallel.Range(0, len(bounds)-1, 0, func(low, high int) {
		for p := low; p < high; p++ {
			if err := collapseRunDetails(b.Records[bounds[p]:bounds[p+1]], details[bounds[p]:bounds[p+1]]); err != nil {
				perPartitionErr = err
			}
		}
	})
	if perPartitionErr != nil {
		return perPartitionErr
	}

	for i := 1; i < len(bounds)-1; i++ {
		if err := stitchBoundaryDetails(b.Records, details, bounds[i]); err != nil {
			return err
		}
	}
	return nil
}

func collapseRunDetails(records []*record.SequenceRecord, details []*record.DetailsRecord) error {
	i := 0
	for i < len(records) {
		j := i + 1
		for j < len(records) && record.Equal(records[i], records[j]) {
			j++
		}
		if j-i > 1 {
			if err := record.MergeRange(records[i:j]); err != nil {
				return err
			}
			for k := i + 1; k < j; k++ {
				if err := record.MergeDetails(details[i], details[k]); err != nil {
					return err
				}
			}
		}
		i = j
	}
	return nil
}

func stitchBoundaryDetails(records []*record.SequenceRecord, details []*record.DetailsRecord, p int) error {
	left := p - 1
	for left >= 0 && !records[left].Alive() {
		left--
	}
	right := p
	for right < len(records) && !records[right].Alive() {
		right++
	}
	if left < 0 || right >= len(records) {
		return nil
	}
	if record.Equal(records[left], records[right]) {
		if err := record.Merge(records[left], records[right]); err != nil {
			return err
		}
		return record.MergeDetails(details[left], details[right])
	}
	return nil
}
