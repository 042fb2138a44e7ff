package main

import (
	"os"

	"github.com/lithammer/dedent"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := cli.NewApp()
	app.Name = "consolectl"
	app.Usage = "Manage the fleet console session"
	app.Description = dedent.Dedent(`
		consolectl holds the credential for the fleet console API, attaches it
		to API calls and renews it before it expires.

		Settings are read from CONSOLE_* environment variables, optionally
		seeded from config.env in the user config directory.`)
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  flagLocation,
			Usage: "The console location the command runs from; locations under the UI prefix are interactive",
			Value: defaultLocation,
		},
	}
	app.Before = setupLogging
	app.Commands = []*cli.Command{
		loginCommand,
		registerCommand,
		logoutCommand,
		statusCommand,
		refreshCommand,
		watchCommand,
		getCommand,
		renderCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
