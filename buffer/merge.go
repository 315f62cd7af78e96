package buffer

import (
	"container/heap"

	"github.com/willf/bitset"

	"github.com/bioinformatics-polito/BioSeqZip/errs"
	"github.com/bioinformatics-polito/BioSeqZip/record"
	"github.com/bioinformatics-polito/BioSeqZip/seqio"
)

// mergeSource is one already sorted-and-collapsed run being merged, paired
// with whatever else rides alongside each SequenceRecord at that position
// (nothing, for a one-stream merge; a DetailsRecord for the two
// details-aware variants below).
type mergeSource struct {
	reader *seqio.Reader
	index  int
}

// heapItem is one candidate record.SequenceRecord currently buffered from
// a source, ordered by record.Less for the k-way merge.
type heapItem struct {
	rec    *record.SequenceRecord
	source int
}

type mergeHeap []heapItem

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return record.Less(h[i].rec, h[j].rec) }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// activeSources tracks, across the lifetime of a k-way merge, which
// sources have not yet reached end-of-stream. It is consulted only for
// the active-source count OneStreamMerge returns; the heap itself is the
// correctness-critical structure.
type activeSources struct {
	set *bitset.BitSet
}

func newActiveSources(n int) *activeSources {
	return &activeSources{set: bitset.New(uint(n))}
}

func (a *activeSources) markActive(i int)   { a.set.Set(uint(i)) }
func (a *activeSources) markExhausted(i int) { a.set.Clear(uint(i)) }
func (a *activeSources) count() uint         { return a.set.Count() }

// OneStreamMerge performs a k-way merge of readers, each already sorted
// and internally collapsed, folding cross-stream duplicates with
// record.Merge as they meet at the head of the heap, and writing every
// surviving record to w. It returns how many records were written and how
// many source streams had not yet reached end-of-stream when it returned
// (0 after a successful merge).
func OneStreamMerge(readers []*seqio.Reader, w *seqio.Writer) (written int, stillActive uint, err error) {
	active := newActiveSources(len(readers))
	h := &mergeHeap{}
	heap.Init(h)

	for i, r := range readers {
		rec := &record.SequenceRecord{}
		ok, rerr := r.ReadOne(rec)
		if rerr != nil {
			return 0, 0, rerr
		}
		if ok {
			active.markActive(i)
			heap.Push(h, heapItem{rec: rec, source: i})
		}
	}

	out := make([]*record.SequenceRecord, 0, 1)
	var pending *record.SequenceRecord

	flush := func() error {
		if pending == nil {
			return nil
		}
		out = out[:0]
		out = append(out, pending)
		if _, werr := w.WriteMany(out); werr != nil {
			return werr
		}
		written++
		pending = nil
		return nil
	}

	for h.Len() > 0 {
		item := heap.Pop(h).(heapItem)

		if pending == nil {
			pending = item.rec
		} else if record.Equal(pending, item.rec) {
			if merr := record.Merge(pending, item.rec); merr != nil {
				return written, active.count(), merr
			}
		} else {
			if ferr := flush(); ferr != nil {
				return written, active.count(), ferr
			}
			pending = item.rec
		}

		next := &record.SequenceRecord{}
		ok, rerr := readers[item.source].ReadOne(next)
		if rerr != nil {
			return written, active.count(), rerr
		}
		if ok {
			heap.Push(h, heapItem{rec: next, source: item.source})
		} else {
			active.markExhausted(item.source)
		}
	}

	if ferr := flush(); ferr != nil {
		return written, active.count(), ferr
	}
	return written, active.count(), nil
}

// detailsHeapItem pairs a candidate SequenceRecord with its DetailsRecord
// for the two details-aware merge variants.
type detailsHeapItem struct {
	rec     *record.SequenceRecord
	details *record.DetailsRecord
	source  int
}

type detailsMergeHeap []detailsHeapItem

func (h detailsMergeHeap) Len() int            { return len(h) }
func (h detailsMergeHeap) Less(i, j int) bool  { return record.Less(h[i].rec, h[j].rec) }
func (h detailsMergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *detailsMergeHeap) Push(x interface{}) { *h = append(*h, x.(detailsHeapItem)) }
func (h *detailsMergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// detailsSource reads paired (SequenceRecord, DetailsRecord) streams. Two
// shapes are supported: seeding, where the source is a plain per-sample
// run and a DetailsRecord is synthesized on the fly attributing all mass
// to sampleID; and propagating, where the source already carries a details
// file written by an earlier seeding or propagating tier.
type detailsSource struct {
	reader   *seqio.Reader
	detailsR *seqio.DetailsReader // nil in seeding mode
	sampleID int
	nSamples int
}

func (s *detailsSource) readOne() (*record.SequenceRecord, *record.DetailsRecord, bool, error) {
	rec := &record.SequenceRecord{}
	ok, err := s.reader.ReadOne(rec)
	if err != nil || !ok {
		return nil, nil, ok, err
	}
	if s.detailsR == nil {
		return rec, record.NewDetailsRecord(rec.Count, s.sampleID, s.nSamples), true, nil
	}
	d, ok, err := s.detailsR.ReadOne()
	if err != nil {
		return nil, nil, false, err
	}
	if !ok {
		return nil, nil, false, errs.New(errs.FormatError, "details file shorter than its sequence run")
	}
	return rec, d, true, nil
}

// SeedingDetailsMerge is the first multi-sample merge tier: it reads one
// already-collapsed per-sample run per source, synthesizes a
// DetailsRecord attributing each record's count entirely to that sample,
// and k-way merges them, writing both the merged SequenceRecords (to w)
// and their DetailsRecords (to dw).
func SeedingDetailsMerge(readers []*seqio.Reader, sampleIDs []int, nSamples int, w *seqio.Writer, dw *seqio.DetailsWriter) (int, error) {
	sources := make([]*detailsSource, len(readers))
	for i, r := range readers {
		sources[i] = &detailsSource{reader: r, sampleID: sampleIDs[i], nSamples: nSamples}
	}
	return detailsMerge(sources, w, dw)
}

// PropagatingDetailsMerge is every subsequent multi-sample merge tier: its
// sources are themselves (SequenceRecord run, DetailsRecord file) pairs
// produced by an earlier seeding or propagating tier. Sample IDs are
// already baked into each source's DetailsRecord, so none are needed here.
func PropagatingDetailsMerge(readers []*seqio.Reader, detailsReaders []*seqio.DetailsReader, w *seqio.Writer, dw *seqio.DetailsWriter) (int, error) {
	if len(readers) != len(detailsReaders) {
		return 0, errs.New(errs.InvariantViolated, "mismatched sequence/details source counts")
	}
	sources := make([]*detailsSource, len(readers))
	for i := range readers {
		sources[i] = &detailsSource{reader: readers[i], detailsR: detailsReaders[i]}
	}
	return detailsMerge(sources, w, dw)
}

func detailsMerge(sources []*detailsSource, w *seqio.Writer, dw *seqio.DetailsWriter) (int, error) {
	h := &detailsMergeHeap{}
	heap.Init(h)

	for i, s := range sources {
		rec, det, ok, err := s.readOne()
		if err != nil {
			return 0, err
		}
		if ok {
			heap.Push(h, detailsHeapItem{rec: rec, details: det, source: i})
		}
	}

	written := 0
	var pendingRec *record.SequenceRecord
	var pendingDet *record.DetailsRecord

	recBuf := make([]*record.SequenceRecord, 0, 1)
	detBuf := make([]*record.DetailsRecord, 0, 1)

	flush := func() error {
		if pendingRec == nil {
			return nil
		}
		recBuf, detBuf = recBuf[:0], detBuf[:0]
		recBuf = append(recBuf, pendingRec)
		detBuf = append(detBuf, pendingDet)
		if _, err := w.WriteMany(recBuf); err != nil {
			return err
		}
		if _, err := dw.WriteMany(detBuf); err != nil {
			return err
		}
		written++
		pendingRec, pendingDet = nil, nil
		return nil
	}

	for h.Len() > 0 {
		item := heap.Pop(h).(detailsHeapItem)

		if pendingRec == nil {
			pendingRec, pendingDet = item.rec, item.details
		} else if record.Equal(pendingRec, item.rec) {
			if err := record.Merge(pendingRec, item.rec); err != nil {
				return written, err
			}
			if err := record.MergeDetails(pendingDet, item.details); err != nil {
				return written, err
			}
		} else {
			if err := flush(); err != nil {
				return written, err
			}
			pendingRec, pendingDet = item.rec, item.details
		}

		rec, det, ok, err := sources[item.source].readOne()
		if err != nil {
			return written, err
		}
		if ok {
			heap.Push(h, detailsHeapItem{rec: rec, details: det, source: item.source})
		}
	}

	if err := flush(); err != nil {
		return written, err
	}
	return written, nil
}
