package cmd

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/bioinformatics-polito/BioSeqZip/collapse"
	"github.com/bioinformatics-polito/BioSeqZip/internal"
	"github.com/bioinformatics-polito/BioSeqZip/layout"
	"github.com/bioinformatics-polito/BioSeqZip/sampletracker"
	"github.com/bioinformatics-polito/BioSeqZip/stats"
)

// CollapseHelp is the help string for the collapse command.
const CollapseHelp = "Collapse parameters:\n" +
	"bioseqzip collapse /path/to/input /path/to/output/basename\n" +
	"[--mate2 path]\n" +
	"[--interleaved | --breakpoint n]\n" +
	"[--input-format [fasta | fastq]]\n" +
	"[--output-format [fasta | fastq | tag | tagq]]\n" +
	"[--max-ram size]\n" +
	"[--temp-dir path]\n" +
	"[--max-output-records n]\n" +
	"[--trim-left n] [--trim-right n]\n" +
	"[--nr-of-threads n]\n" +
	"[--multi-sample-dir path | --manifest path]\n" +
	"[--timed] [--profile path] [--log-path path]\n"

// Collapse implements the bioseqzip collapse command.
func Collapse() error {
	var (
		interleaved, timed                bool
		breakpointSize, maxOutputRecords  int
		inputFormatName, outputFormatName string
		maxRAMSize, tempDir               string
		mate2, multiSampleDir, manifest   string
		trimLeft, trimRight               uint64
		nrOfThreads                       int
		profile, logPath                  string
	)

	var flags flag.FlagSet

	flags.StringVar(&mate2, "mate2", "", "second mate file, for paired-end single-sample input")
	flags.BoolVar(&interleaved, "interleaved", false, "input mates alternate record-by-record within a single file")
	flags.IntVar(&breakpointSize, "breakpoint", 0, "read a single stream with a fixed mate-1/mate-2 boundary at this offset")
	flags.StringVar(&inputFormatName, "input-format", "fastq", "format of the input file(s): fasta or fastq")
	flags.StringVar(&outputFormatName, "output-format", "tag", "format of the output file: fasta, fastq, tag or tagq")
	flags.StringVar(&maxRAMSize, "max-ram", "1G", "RAM ceiling, e.g. 512M, 4G")
	flags.StringVar(&tempDir, "temp-dir", "", "directory for temporary runs (defaults to the output directory)")
	flags.IntVar(&maxOutputRecords, "max-output-records", 0, "split output into shards of this many records (0 = single shard)")
	flags.Uint64Var(&trimLeft, "trim-left", 0, "bases to trim from the 5' end before collapsing")
	flags.Uint64Var(&trimRight, "trim-right", 0, "bases to trim from the 3' end before collapsing")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads (0 = runtime.GOMAXPROCS default)")
	flags.StringVar(&multiSampleDir, "multi-sample-dir", "", "directory of per-sample input files for multi-sample collapse")
	flags.StringVar(&manifest, "manifest", "", "CSV sample manifest (path1,path2 per line) for multi-sample collapse")
	flags.BoolVar(&timed, "timed", false, "log elapsed time")
	flags.StringVar(&profile, "profile", "", "write CPU profiles under this prefix")
	flags.StringVar(&logPath, "log-path", "", "directory for the run's log file")

	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, CollapseHelp)
		os.Exit(1)
	}

	input := getFilename(os.Args[2], CollapseHelp)
	output := getFilename(os.Args[3], CollapseHelp)

	if err := flags.Parse(os.Args[4:]); err != nil {
		x := 0
		if err != flag.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			x = 1
		}
		fmt.Fprint(os.Stderr, CollapseHelp)
		os.Exit(x)
	}

	setLogOutput(logPath)

	var sanityChecksFailed bool

	pairedEnd := mate2 != ""
	breakpoint := breakpointSize > 0
	exclusive := 0
	for _, set := range []bool{pairedEnd, interleaved, breakpoint} {
		if set {
			exclusive++
		}
	}
	if exclusive > 1 {
		log.Println("Error: --mate2, --interleaved and --breakpoint are mutually exclusive.")
		sanityChecksFailed = true
	}
	if multiSampleDir != "" && manifest != "" {
		log.Println("Error: --multi-sample-dir and --manifest are mutually exclusive.")
		sanityChecksFailed = true
	}
	if nrOfThreads < 0 {
		log.Println("Error: Invalid nr-of-threads:", nrOfThreads)
		sanityChecksFailed = true
	}

	inputFormat, ok := layout.ParseFormat(inputFormatName)
	if !ok || !isFastx(inputFormat) {
		log.Printf("Error: Invalid input format %v.\n", inputFormatName)
		sanityChecksFailed = true
	}
	outputFormat, ok := layout.ParseFormat(outputFormatName)
	if !ok {
		log.Printf("Error: Invalid output format %v.\n", outputFormatName)
		sanityChecksFailed = true
	}

	maxRAM, err := internal.ParseRAMSize(maxRAMSize)
	if err != nil {
		log.Printf("Error: %v.\n", err)
		sanityChecksFailed = true
	}

	kind := layout.SingleEnd
	switch {
	case pairedEnd:
		kind = layout.PairedEnd
	case interleaved:
		kind = layout.Interleaved
	case breakpoint:
		kind = layout.Breakpoint
	}

	switch {
	case multiSampleDir != "":
		sanityChecksFailed = !checkExistDir("--multi-sample-dir", multiSampleDir) || sanityChecksFailed
	case manifest != "":
		sanityChecksFailed = !checkExist("--manifest", manifest) || sanityChecksFailed
	default:
		sanityChecksFailed = !checkExist("", input) || sanityChecksFailed
		if pairedEnd {
			sanityChecksFailed = !checkExist("--mate2", mate2) || sanityChecksFailed
		}
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, CollapseHelp)
		os.Exit(1)
	}

	if tempDir == "" {
		tempDir = filepath.Dir(output)
	}

	cfg := collapse.Config{
		Layout:           layout.Layout{Kind: kind, BreakpointSize: breakpointSize},
		InputFormat:      inputFormat,
		OutputFormat:     outputFormat,
		OutputDir:        filepath.Dir(output),
		OutputBasename:   filepath.Base(output),
		TempDir:          tempDir,
		MaxRAMBytes:      maxRAM,
		MaxOutputRecords: maxOutputRecords,
		TrimLeft:         trimLeft,
		TrimRight:        trimRight,
		NThreads:         nrOfThreads,
	}

	var runErr error
	timedRun(timed, profile, "Running collapse", 0, func() {
		c := collapse.New(cfg)

		if multiSampleDir != "" || manifest != "" {
			var entries []sampletracker.Entry
			if multiSampleDir != "" {
				entries, runErr = sampletracker.DiscoverDirectory(multiSampleDir, kind, inputFormat.Extension())
			} else {
				entries, runErr = sampletracker.ReadManifest(manifest)
			}
			if runErr != nil {
				return
			}
			samples := make([]collapse.Sample, len(entries))
			for i, e := range entries {
				samples[i] = collapse.Sample{Tag: e.Tag, Paths: e.Paths}
			}
			var res *stats.Result
			res, runErr = c.CollapseMultiSample(samples)
			if runErr == nil {
				logResult(res)
			}
			return
		}

		paths := []string{input}
		if pairedEnd {
			paths = []string{input, mate2}
		}
		var res *stats.Result
		res, runErr = c.CollapseSingleSample(paths...)
		if runErr == nil {
			logResult(res)
		}
	})

	return runErr
}

func isFastx(f layout.Format) bool {
	return f == layout.Fasta || f == layout.Fastq
}

func logResult(res *stats.Result) {
	log.Printf("Collapsed %d sequences into %d (ratio %.4f), %d temporary run(s), %d merge tier(s), safety factor %.3f.\n",
		res.OverallSequences, res.CollapsedSequences, res.CompressionRatio(),
		res.TemporaryRunCount, res.MergeTierCount, res.SafetyFactorUsed)
}
