package main

import (
	"flag"
	"os"

	"github.com/danmuck/midikiti/internal/config"
	"github.com/danmuck/midikiti/internal/logging"
	"github.com/rs/zerolog/log"
)

const defaultPath = "mkctl.toml"

func main() {
	kind := flag.String("kind", "mkctl", "config kind: mkctl")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation or -print (defaults to mkctl.toml)")
	printCfg := flag.Bool("print", false, "print the resolved config, defaults filled in")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	logging.ConfigureRuntime()

	path := *input
	if path == "" {
		path = defaultPath
	}

	if *validate || *printCfg {
		cfg, err := config.Load(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("configgen validation failed")
		}
		if *printCfg {
			out, err := config.Render(cfg)
			if err != nil {
				log.Fatal().Err(err).Msg("configgen render failed")
			}
			_, _ = os.Stdout.Write(out)
			return
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("configgen validated config")
		return
	}

	target := *output
	if target == "" {
		target = defaultPath
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Err(err).Msg("configgen write failed")
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("configgen wrote config template")
}
