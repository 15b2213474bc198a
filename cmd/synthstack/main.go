package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"slicestack/pkg/synth"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "synthstack: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	defaults := synth.DefaultStackOptions()

	fs := flag.NewFlagSet("synthstack", flag.ContinueOnError)
	outputDir := fs.String("output", "", "Directory to write the synthetic stack to")
	slices := fs.Int("slices", defaults.Slices, "Number of slices")
	rows := fs.Int("rows", defaults.Rows, "Rows per slice")
	cols := fs.Int("cols", defaults.Columns, "Columns per slice")
	spacing := fs.Float64("spacing", defaults.Spacing, "Distance between slices in mm")
	dropPosition := fs.Bool("drop-position", false, "Omit Image Position (Patient)")
	dropLocation := fs.Bool("drop-location", false, "Omit Slice Location")
	corruptEvery := fs.Int("corrupt-every", 0, "Truncate every n-th file (0: none)")
	seed := fs.Uint64("seed", defaults.Seed, "Seed for the file name shuffle")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *outputDir == "" {
		fs.Usage()
		return fmt.Errorf("-output is required")
	}

	opts := synth.StackOptions{
		Slices:       *slices,
		Rows:         *rows,
		Columns:      *cols,
		Spacing:      *spacing,
		Origin:       defaults.Origin,
		Seed:         *seed,
		DropPosition: *dropPosition,
		DropLocation: *dropLocation,
		CorruptEvery: *corruptEvery,
	}
	paths, err := synth.GenerateStack(*outputDir, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Wrote %d slices to %s\n", len(paths), *outputDir)
	return nil
}
