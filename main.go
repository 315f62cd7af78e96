// BioSeqZip is an exact-collapse engine for short-read biological
// sequence datasets: it deduplicates identical reads within or across
// samples, folds quality scores by occurrence-weighted averaging, and
// bounds its working set under a caller-declared RAM ceiling via
// external sort-merge.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/bioinformatics-polito/BioSeqZip/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: collapse")
	fmt.Fprint(os.Stderr, "\n", cmd.CollapseHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "collapse":
		err = cmd.Collapse()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command:", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal("ERROR: ", err)
	}
}
