package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/woozymasta/routesync/internal/config"
	"github.com/woozymasta/routesync/internal/overlay"
	"github.com/woozymasta/routesync/internal/route"
	"github.com/woozymasta/routesync/internal/surface"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Input    string `short:"i" long:"in"       description:"Input file with a JSON array of routes. Reads from stdin if empty"`
	Output   string `short:"o" long:"out"      description:"Output file path. Writes to stdout if empty"`
	Format   string `short:"f" long:"format"   description:"Output format" choice:"json" choice:"yaml" default:"json"`
	Category string `short:"k" long:"category" description:"Overlay category to render into" choice:"live" choice:"optimized" default:"live"`
	Config   string `short:"c" long:"config"   description:"Optional configuration file providing palette and optimized color"`
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

	// Read Input
	var inputData []byte
	var err error

	if opts.Input != "" {
		inputData, err = os.ReadFile(opts.Input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input file: %v\n", err)
			os.Exit(1)
		}
	} else {
		inputData, err = io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
			os.Exit(1)
		}
	}

	routes, err := route.ParseSet(inputData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing routes: %v\n", err)
		os.Exit(1)
	}

	var ropts overlay.Options
	if opts.Config != "" {
		cfg, err := config.Read(opts.Config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			os.Exit(1)
		}
		ropts = overlay.Options{Palette: cfg.Palette, OptimizedColor: cfg.OptimizedColor}
	}

	mem := surface.NewMemory()
	renderer := overlay.NewRenderer(mem, ropts)
	if err := renderer.Reconcile(overlay.Category(opts.Category), routes); err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering overlay: %v\n", err)
		os.Exit(1)
	}

	outputData, err := encode(mem, opts.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling data: %v\n", err)
		os.Exit(1)
	}

	count := len(renderer.Entries(overlay.Category(opts.Category)))
	if opts.Output != "" {
		err = os.WriteFile(opts.Output, outputData, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Rendered %d of %d routes to %s (format: %s)\n", count, len(routes), opts.Output, opts.Format)
	} else {
		fmt.Println(string(outputData))
	}
}

// encode renders the surface as GeoJSON. YAML output goes through a generic
// JSON tree so geometry keeps its GeoJSON shape.
func encode(mem *surface.Memory, format string) ([]byte, error) {
	data, err := json.MarshalIndent(mem.FeatureCollection(), "", "  ")
	if err != nil || format != "yaml" {
		return data, err
	}

	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return yaml.Marshal(tree)
}
