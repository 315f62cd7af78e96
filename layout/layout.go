// Package layout enumerates the library-layout combinations spec.md §4.2
// and §6 describe, grounded on the teacher's small enum-like helpers (e.g.
// sam.HD_SO/HD_GO string constants in sam/sam-types.go).
package layout

// Kind distinguishes how mate information is encoded in a dataset.
type Kind int

const (
	// SingleEnd records have no mate; BpOffset is always 0.
	SingleEnd Kind = iota
	// PairedEnd records are read from two separate streams, one per mate.
	PairedEnd
	// Interleaved records are read two-at-a-time from a single stream.
	Interleaved
	// Breakpoint records are read from a single stream with a caller-supplied
	// fixed mate-1/mate-2 boundary.
	Breakpoint
)

func (k Kind) String() string {
	switch k {
	case SingleEnd:
		return "single-end"
	case PairedEnd:
		return "paired-end"
	case Interleaved:
		return "interleaved"
	case Breakpoint:
		return "breakpoint"
	default:
		return "unknown"
	}
}

// Layout bundles a Kind with the breakpoint offset, which is only
// meaningful when Kind == Breakpoint.
type Layout struct {
	Kind           Kind
	BreakpointSize int
}

// Paired reports whether this layout produces two-mate records (spec.md
// §6's "paired shard" semantics in Writer.OutputPaths and S10's
// paired-end symmetry property apply to these).
func (l Layout) Paired() bool {
	return l.Kind == PairedEnd
}

// Format is the on-disk record format: whether quality is present, and
// whether records are tabular (tag/tagq) or fastx (fasta/fastq).
type Format int

const (
	// Fasta is the quality-absent fastx format.
	Fasta Format = iota
	// Fastq is the quality-bearing fastx format (Phred+33).
	Fastq
	// Tag is the quality-absent tabular format: sequence\tcount.
	Tag
	// Tagq is the quality-bearing tabular format: sequence\tquality\tcount.
	Tagq
)

func (f Format) String() string {
	switch f {
	case Fasta:
		return "fasta"
	case Fastq:
		return "fastq"
	case Tag:
		return "tag"
	case Tagq:
		return "tagq"
	default:
		return "unknown"
	}
}

// HasQuality reports whether this format carries per-base quality.
func (f Format) HasQuality() bool {
	return f == Fastq || f == Tagq
}

// Extension returns the file extension used for shard naming (spec.md
// §4.2's "Shard naming" rule).
func (f Format) Extension() string {
	switch f {
	case Fasta:
		return "fasta"
	case Fastq:
		return "fastq"
	case Tag:
		return "tag"
	case Tagq:
		return "tagq"
	default:
		return "dat"
	}
}

// ParseFormat maps a user-facing format name (spec.md §6's output_format
// option) to a Format, or reports ok=false for unknown names.
func ParseFormat(name string) (Format, bool) {
	switch name {
	case "fasta":
		return Fasta, true
	case "fastq":
		return Fastq, true
	case "tag":
		return Tag, true
	case "tagq":
		return Tagq, true
	default:
		return Fasta, false
	}
}
