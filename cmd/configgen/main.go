package main

import (
	"flag"
	"log"
	"os"

	"github.com/danmuck/supctl/internal/config"
)

func main() {
	kind := flag.String("kind", "supd", "config kind: supd|cli")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	path := *output
	if *validate {
		path = *input
	}
	if path == "" {
		path = defaultPath(*kind)
	}

	if *validate {
		if err := validateConfig(*kind, path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	if err := config.WriteTemplate(path, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, path)
}

func defaultPath(kind string) string {
	switch kind {
	case "supd":
		return "supd.toml"
	case "cli":
		return config.CLIConfigPath(os.Getenv)
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

func validateConfig(kind, path string) error {
	switch kind {
	case "supd":
		_, err := config.LoadSupd(path)
		return err
	case "cli":
		if _, err := os.Stat(path); err != nil {
			return err
		}
		_, err := config.LoadCLI(path)
		return err
	default:
		log.Fatalf("unknown kind: %s", kind)
		return nil
	}
}
