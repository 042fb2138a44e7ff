package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gosuri/uitable"
	"github.com/lithammer/dedent"
	"github.com/raine/console-session/config"
	"github.com/raine/console-session/internal/app"
	"github.com/raine/console-session/internal/auth"
	"github.com/raine/console-session/internal/console"
	"github.com/raine/console-session/internal/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

const (
	flagEmail    = "email"
	flagLocation = "location"
	flagPassword = "password"
	flagUsername = "username"

	// Commands run in API context unless --location says otherwise
	defaultLocation = "/cli"
)

var loginCommand = &cli.Command{
	Name:  "login",
	Usage: "Log in to the console API",
	Description: dedent.Dedent(`
		Exchanges a username and password for a credential and stores it.
		The password is prompted for when --password is not given.`),
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     flagUsername,
			Aliases:  []string{"u"},
			Usage:    "The username to log in as (required)",
			Required: true,
		},
		&cli.StringFlag{
			Name:    flagPassword,
			Aliases: []string{"p"},
			Usage:   "The password; prompted for when omitted",
		},
	},
	Action: login,
}

var registerCommand = &cli.Command{
	Name:  "register",
	Usage: "Create a console account",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     flagUsername,
			Aliases:  []string{"u"},
			Usage:    "The username to register (required)",
			Required: true,
		},
		&cli.StringFlag{
			Name:    flagPassword,
			Aliases: []string{"p"},
			Usage:   "The password; prompted for when omitted",
		},
		&cli.StringFlag{
			Name:  flagEmail,
			Usage: "An optional email address",
		},
	},
	Action: register,
}

var logoutCommand = &cli.Command{
	Name:   "logout",
	Usage:  "Forget the stored credential",
	Action: logout,
}

var statusCommand = &cli.Command{
	Name:   "status",
	Usage:  "Show the session state",
	Action: status,
}

var refreshCommand = &cli.Command{
	Name:   "refresh",
	Usage:  "Renew the stored credential now",
	Action: refresh,
}

var watchCommand = &cli.Command{
	Name:  "watch",
	Usage: "Keep the credential renewed until interrupted",
	Description: dedent.Dedent(`
		Checks the credential every CONSOLE_CHECK_INTERVAL and renews it once
		less than CONSOLE_EXPIRING_THRESHOLD of its lifetime is left.`),
	Action: watch,
}

var getCommand = &cli.Command{
	Name:      "get",
	Usage:     "Call an API path with the stored credential and print the response",
	ArgsUsage: "PATH",
	Action:    get,
}

var renderCommand = &cli.Command{
	Name:   "render",
	Usage:  "Print the console shell as the current session would show it",
	Action: render,
}

func setupLogging(c *cli.Context) error {
	config.LoadEnvFile()
	level := os.Getenv(config.EnvPrefix + "_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// withManager loads the configuration, opens the session backend and runs fn
// against a Manager positioned at the --location flag.
func withManager(c *cli.Context, fn func(m *app.Manager, nav *auth.History) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	backend, closeBackend, err := app.OpenBackend(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeBackend(); err != nil {
			log.Warn().Err(err).Msg("failed to close session store")
		}
	}()

	nav := auth.NewHistory(c.String(flagLocation))
	m := app.New(backend, nav, app.OptionsFromConfig(cfg))

	if err := fn(m, nav); err != nil {
		return err
	}

	for _, location := range nav.Visited() {
		fmt.Printf("Navigated to %s\n", location)
	}
	return nil
}

func readPassword(c *cli.Context) (string, error) {
	if password := c.String(flagPassword); password != "" {
		return password, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("no password given and stdin is not a terminal")
	}
	fmt.Print("Password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func login(c *cli.Context) error {
	username := c.String(flagUsername)
	password, err := readPassword(c)
	if err != nil {
		return err
	}

	return withManager(c, func(m *app.Manager, _ *auth.History) error {
		if err := m.Login(c.Context, username, password); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s.\n", m.Store.User().DisplayName())
		return nil
	})
}

func register(c *cli.Context) error {
	username := c.String(flagUsername)
	password, err := readPassword(c)
	if err != nil {
		return err
	}

	return withManager(c, func(m *app.Manager, _ *auth.History) error {
		err := m.Client.Register(c.Context, console.RegisterRequest{
			Username: username,
			Password: password,
			Email:    c.String(flagEmail),
		})
		if err != nil {
			return err
		}
		fmt.Printf("Account %q registered. Log in to continue.\n", username)
		return nil
	})
}

func logout(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("logout requires no arguments")
	}
	return withManager(c, func(m *app.Manager, _ *auth.History) error {
		m.Logout()
		fmt.Println("Logout was successful.")
		return nil
	})
}

func status(c *cli.Context) error {
	return withManager(c, func(m *app.Manager, _ *auth.History) error {
		state := m.Store.State()

		table := uitable.New()
		table.AddRow("STATE", state)
		if !state.IsAuthenticated() {
			fmt.Println(table)
			return nil
		}

		cred, _ := m.Store.Current()
		table.AddRow("USER", cred.User.DisplayName())
		table.AddRow("ADMIN", cred.User != nil && cred.User.IsAdmin)
		table.AddRow("TOKEN TYPE", cred.TokenType)
		if cred.HasExpiry() {
			remaining, _ := m.Store.Remaining()
			table.AddRow("EXPIRES", cred.ExpiresAt.Local().Format(time.RFC1123))
			table.AddRow("REMAINING", remaining.Round(time.Second))
		} else {
			table.AddRow("EXPIRES", "never (until rejected)")
		}

		if claims, err := session.PeekClaims(cred.AccessToken); err == nil {
			if sub, err := claims.GetSubject(); err == nil && sub != "" {
				table.AddRow("SUBJECT", sub)
			}
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
				table.AddRow("TOKEN EXP", exp.Local().Format(time.RFC1123))
			}
		}

		fmt.Println(table)
		return nil
	})
}

func refresh(c *cli.Context) error {
	return withManager(c, func(m *app.Manager, _ *auth.History) error {
		outcome, err := m.Refresher.Refresh(c.Context)
		fmt.Printf("Renewal: %s\n", outcome)
		if outcome == auth.Skipped {
			return errors.New("not logged in")
		}
		return err
	})
}

func watch(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return withManager(c, func(m *app.Manager, _ *auth.History) error {
		g, ctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			// Catch up right away instead of waiting a whole interval
			m.Monitor.Tick(ctx)
			return m.Run(ctx)
		})

		g.Go(func() error {
			<-ctx.Done()
			log.Info().Str("state", m.Store.State().String()).Msg("stopping watch")
			return nil
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}

func get(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("get requires one argument-- an API path")
	}
	path := c.Args().First()
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return withManager(c, func(m *app.Manager, _ *auth.History) error {
		res, err := m.Client.Get(c.Context, path, nil)
		if res != nil {
			fmt.Println(string(res.Body()))
		}
		return err
	})
}

func render(c *cli.Context) error {
	return withManager(c, func(m *app.Manager, _ *auth.History) error {
		return m.Projector.Render(os.Stdout)
	})
}
