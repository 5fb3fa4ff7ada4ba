package main

import (
	"fmt"

	"github.com/mcdev12/crossroads/go/internal/config"
	"github.com/mcdev12/crossroads/go/internal/scenes"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	zerolog.SetGlobalLevel(cfg.Level())
	if CLI.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Warn().Msg("debug logging enabled")
	}
	return cfg, nil
}

func checkScenesCommand(path string) error {
	story, err := scenes.LoadStory(path)
	if err != nil {
		return err
	}

	problems := story.Validate()
	for _, p := range problems {
		log.Error().Str("file", path).Msg(p.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s: %d problem(s) found", path, len(problems))
	}

	log.Info().
		Str("file", path).
		Str("start", story.Start).
		Int("scenes", len(story.Scenes)).
		Msg("scene file is valid")
	return nil
}
