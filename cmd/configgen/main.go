package main

import (
	"flag"

	"github.com/danmuck/adbtp/internal/config"
	"github.com/danmuck/adbtp/internal/logging"
	"github.com/rs/zerolog/log"
)

func defaultPath(kind string) string {
	switch kind {
	case "daemon":
		return "cmd/adbtpd/config.toml"
	case "client":
		return "cmd/adbtpctl/config.toml"
	default:
		log.Fatal().Str("kind", kind).Msg("unknown config kind")
		return ""
	}
}

func main() {
	kind := flag.String("kind", "daemon", "config kind: daemon|client")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()
	logging.ConfigureRuntime()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		var err error
		switch *kind {
		case "daemon":
			_, err = config.LoadDaemonConfig(path)
		case "client":
			_, err = config.LoadClientConfig(path)
		default:
			log.Fatal().Str("kind", *kind).Msg("unknown config kind")
		}
		if err != nil {
			log.Fatal().Err(err).Msg("config invalid")
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("config validated")
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Err(err).Msg("write template failed")
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("config template written")
}
