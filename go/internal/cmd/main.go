package main

import (
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var CLI struct {
	Debug bool `help:"Enable debug logging, overriding LOG_LEVEL."`

	Serve struct {
	} `cmd:"" default:"1" help:"Start the session coordinator."`

	CheckScenes struct {
		File string `arg:"" name:"file" help:"Scene file to validate." type:"existingfile"`
	} `cmd:"" help:"Validate the scene graph of a YAML scene file."`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	ctx := kong.Parse(&CLI,
		kong.Name("crossroads"),
		kong.Description("Real-time coordinator for branching-scenario voting sessions."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	var err error
	switch ctx.Command() {
	case "serve":
		err = serveCommand()
	case "check-scenes <file>":
		err = checkScenesCommand(CLI.CheckScenes.File)
	default:
		ctx.Fatalf("unknown command %q", ctx.Command())
	}
	if err != nil {
		log.Fatal().Err(err).Msg(ctx.Command() + " failed")
	}
}
