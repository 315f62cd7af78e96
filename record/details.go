package record

import "github.com/bioinformatics-polito/BioSeqZip/errs"

// DetailsRecord carries the per-sample occurrence vector for one distinct
// sequence, produced whenever multiple input samples are collapsed
// together (spec.md §3).
type DetailsRecord struct {
	Counters []Counter
	Overall  Counter
}

// NewDetailsRecord allocates a DetailsRecord of the given width with all
// mass attributed to sampleID.
func NewDetailsRecord(overall Counter, sampleID, nSamples int) *DetailsRecord {
	d := &DetailsRecord{Counters: make([]Counter, nSamples)}
	d.Counters[sampleID] = overall
	d.Overall = overall
	return d
}

// Alive reports whether this details record still carries any mass.
func (d *DetailsRecord) Alive() bool {
	return d.Overall > 0
}

// MergeDetails folds b into a: element-wise sum of Counters and Overall, and b is
// cleared to all zero (the loser of the corresponding SequenceRecord merge).
func MergeDetails(a, b *DetailsRecord) error {
	if len(a.Counters) != len(b.Counters) {
		return errs.New(errs.InvariantViolated, "mismatched sample counts in DetailsRecord.Merge")
	}
	for i := range a.Counters {
		sum := a.Counters[i] + b.Counters[i]
		if sum > MaxCounter || sum < a.Counters[i] {
			return errs.New(errs.CounterOverflow, "per-sample counter overflow in DetailsRecord.Merge")
		}
		a.Counters[i] = sum
	}
	sum := a.Overall + b.Overall
	if sum > MaxCounter || sum < a.Overall {
		return errs.New(errs.CounterOverflow, "overall counter overflow in DetailsRecord.Merge")
	}
	a.Overall = sum

	for i := range b.Counters {
		b.Counters[i] = 0
	}
	b.Overall = 0
	return nil
}

// CheckInvariant verifies that Overall == sum(Counters), as required after
// every merge (spec.md §3).
func (d *DetailsRecord) CheckInvariant() error {
	var sum Counter
	for _, c := range d.Counters {
		sum += c
	}
	if sum != d.Overall {
		return errs.New(errs.InvariantViolated, "DetailsRecord.Overall does not match sum of Counters")
	}
	return nil
}
