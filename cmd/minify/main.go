package main

import (
	"fmt"
	"os"

	"github.com/woozymasta/routesync/internal/server"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Output string `short:"o" long:"out" description:"Output file path" default:"index.html"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	page, err := server.BuildIndex()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building page: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(opts.Output, page, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "minify done: %s (%d bytes)\n", opts.Output, len(page))
}
