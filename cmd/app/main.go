package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/dppportal/internal/app"
	"github.com/atvirokodosprendimai/dppportal/internal/core/usecase"
	"github.com/atvirokodosprendimai/dppportal/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("load .env")
	}

	cmd := &cli.Command{
		Name:  "dppportal",
		Usage: "Digital Product Passport developer portal with a mock API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("DPP_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "store",
				Value:   app.StoreMemory,
				Sources: cli.EnvVars("DPP_STORE"),
				Usage:   "Storage backend: memory or sqlite",
			},
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./dppportal.sqlite",
				Sources: cli.EnvVars("DPP_DB_PATH"),
				Usage:   "SQLite file path (store=sqlite)",
			},
			&cli.StringFlag{
				Name:    "environment",
				Value:   "sandbox",
				Sources: cli.EnvVars("DPP_ENVIRONMENT"),
				Usage:   "Environment stamped on emitted events: sandbox or production",
			},
			&cli.StringFlag{
				Name:    "public-base-url",
				Sources: cli.EnvVars("DPP_PUBLIC_BASE_URL"),
				Usage:   "Base URL the playground uses to reach this server (defaults to the listen address)",
			},
			&cli.StringFlag{
				Name:    "sandbox-base-url",
				Sources: cli.EnvVars("DPP_SANDBOX_BASE_URL"),
				Usage:   "Sandbox base URL shown in generated snippets",
			},
			&cli.StringFlag{
				Name:    "production-base-url",
				Sources: cli.EnvVars("DPP_PRODUCTION_BASE_URL"),
				Usage:   "Production base URL shown in generated snippets",
			},
			&cli.DurationFlag{
				Name:    "mock-delay",
				Value:   usecase.DefaultMockDelay,
				Sources: cli.EnvVars("DPP_MOCK_DELAY"),
				Usage:   "Simulated latency before each playground request",
			},
			&cli.Uint64Flag{
				Name:    "random-seed",
				Sources: cli.EnvVars("DPP_RANDOM_SEED"),
				Usage:   "Seed for generated ids, keys and vote weights (0 seeds from the clock)",
			},
			&cli.BoolFlag{
				Name:    "seed-demo-data",
				Value:   true,
				Sources: cli.EnvVars("DPP_SEED_DEMO_DATA"),
				Usage:   "Load demo keys, webhooks, proposals and passports at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-api-key",
				Sources: cli.EnvVars("DPP_BOOTSTRAP_API_KEY"),
				Usage:   "Optional API key to import as Active at startup",
			},
			&cli.DurationFlag{
				Name:    "outbox-interval",
				Value:   2 * time.Second,
				Sources: cli.EnvVars("DPP_OUTBOX_INTERVAL"),
				Usage:   "Outbox dispatch poll interval",
			},
			&cli.DurationFlag{
				Name:    "webhook-timeout",
				Value:   5 * time.Second,
				Sources: cli.EnvVars("DPP_WEBHOOK_TIMEOUT"),
				Usage:   "Timeout for outbound webhook deliveries",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("DPP_LOG_LEVEL"),
				Usage:   "Log level: debug, info, warn, error",
			},
			&cli.BoolFlag{
				Name:    "log-pretty",
				Sources: cli.EnvVars("DPP_LOG_PRETTY"),
				Usage:   "Human readable console logs",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := app.Config{
				Addr:              c.String("addr"),
				Store:             c.String("store"),
				DBPath:            c.String("db-path"),
				Environment:       c.String("environment"),
				PublicBaseURL:     c.String("public-base-url"),
				SandboxBaseURL:    c.String("sandbox-base-url"),
				ProductionBaseURL: c.String("production-base-url"),
				MockDelay:         c.Duration("mock-delay"),
				RandomSeed:        c.Uint64("random-seed"),
				SeedDemoData:      c.Bool("seed-demo-data"),
				BootstrapAPIKey:   c.String("bootstrap-api-key"),
				OutboxInterval:    c.Duration("outbox-interval"),
				WebhookTimeout:    c.Duration("webhook-timeout"),
			}

			logger := logging.New(logging.Options{
				Level:       c.String("log-level"),
				Service:     "dppportal",
				Environment: cfg.Environment,
				Pretty:      c.Bool("log-pretty"),
			})

			server, closer, err := app.NewServer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					logger.Error().Err(closeErr).Msg("close resources")
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", cfg.Addr).Str("store", cfg.Store).Msg("listening")
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case sig := <-sigCh:
				logger.Info().Str("signal", sig.String()).Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("dppportal exited")
	}
}
