package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/hcpcrm/internal/ai"
	"github.com/hcpcrm/internal/api"
	"github.com/hcpcrm/internal/chat"
	"github.com/hcpcrm/internal/config"
	"github.com/hcpcrm/internal/database"
	"github.com/hcpcrm/internal/extract"
	"github.com/hcpcrm/internal/store"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HCP CRM API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	// A local .env may carry DATABASE_URL and the AI credential.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupLogging(cfg.Log.Level)

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	port := cfg.Server.Port
	if c.IsSet("port") {
		port = c.Int("port")
	}

	db, err := database.NewDB(cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.EnsureSchema(ctx, db); err != nil {
		return err
	}

	connector, err := ai.NewConnector(ctx, ai.ConnectorOptions{
		Provider:    ai.Provider(cfg.AI.Provider),
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
	})
	if err != nil {
		return fmt.Errorf("failed to create AI connector: %w", err)
	}

	storage := store.NewStorage(db, ai.NewSummarizer(connector))
	stepper := chat.NewStepper(storage, extract.New())
	handler := api.NewHandler(storage, stepper)

	log.Info().
		Str("provider", cfg.AI.Provider).
		Str("model", cfg.AI.Model).
		Msg("Starting HCP CRM API server")

	server := api.NewServer(port, handler)
	return server.Start()
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
