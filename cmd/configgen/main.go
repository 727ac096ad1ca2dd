package main

import (
	"flag"
	"log"
	"path/filepath"
	"strings"

	"github.com/danmuck/edgelink/internal/config"
)

func main() {
	format := flag.String("format", "", "template format: toml|yaml (defaults to the output extension)")
	output := flag.String("output", "edgelink.toml", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "edgelink.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated config at %s (%d nodes, store=%s)", *input, len(cfg.Nodes), cfg.Store.Kind)
		return
	}

	kind := formatFor(*format, *output)
	if err := config.WriteTemplate(*output, kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", kind, *output)
}

func formatFor(format, path string) string {
	if format != "" {
		return strings.ToLower(format)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}
