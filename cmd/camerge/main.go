package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"camerge/internal/config"
	"camerge/internal/ics"
	appLog "camerge/internal/log"
	"camerge/internal/web"
)

func main() {
	// Load .env first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "camerge",
		Usage: "Merge calendar feeds into one busy/free iCalendar stream.",
		Commands: []*cli.Command{
			serveCommand(),
			mergeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		appLog.Error("camerge failed", err)
		os.Exit(1)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Value:   "/etc/camerge/config.yaml",
			Usage:   "Path to config file",
			EnvVars: []string{"CAMERGE_CONFIG"},
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the merged calendar over HTTP.",
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:  "listen",
				Usage: "HTTP listen address (overrides config if set)",
			},
		),
		Action: func(c *cli.Context) error {
			cfg, merger, err := setup(c)
			if err != nil {
				return err
			}
			if listen := c.String("listen"); listen != "" {
				cfg.Listen = listen
			}

			sources := web.Sources(cfg)
			server := web.NewServer(cfg, merger, sources)

			// Root context cancelled on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Periodic cache re-warm on the configured schedule.
			cr := cron.New()
			if _, err := cr.AddFunc(cfg.RefreshCron, func() {
				server.Refresh(context.Background())
			}); err != nil {
				return fmt.Errorf("invalid refresh schedule %q: %w", cfg.RefreshCron, err)
			}
			cr.Start()
			defer cr.Stop()

			httpServer := &http.Server{
				Addr:    cfg.Listen,
				Handler: server.Handler(),
			}

			errCh := make(chan error, 1)
			go func() {
				appLog.Info("starting HTTP server",
					"listen", "http://"+cfg.Listen,
					"sources", len(sources),
					"refresh", cfg.RefreshCron,
				)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
				appLog.Info("signal received, shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			}
		},
	}
}

func mergeCommand() *cli.Command {
	return &cli.Command{
		Name:  "merge",
		Usage: "Merge the configured calendars once and print the result.",
		Flags: commonFlags(),
		Action: func(c *cli.Context) error {
			cfg, merger, err := setup(c)
			if err != nil {
				return err
			}
			fmt.Print(merger.Merge(c.Context, web.Sources(cfg)))
			return nil
		},
	}
}

// setup loads the config and builds the merger shared by both commands.
func setup(c *cli.Context) (*config.Config, *ics.Merger, error) {
	if c.Bool("debug") {
		appLog.SetLevel(appLog.LevelDebug)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cutoff, err := cfg.Cutoff()
	if err != nil {
		return nil, nil, err
	}

	merger := ics.NewMerger(ics.NewFetcher(cfg.CacheDir), ics.Options{
		Name:                 cfg.Name,
		Domain:               cfg.Domain,
		Placeholder:          cfg.Placeholder,
		KnownEmails:          cfg.KnownEmails,
		Cutoff:               cutoff,
		SkipExpiredRecurring: cfg.SkipExpiredRecurring,
	})

	return cfg, merger, nil
}
