package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/values-report/internal/catalog"
	"github.com/jonathan/values-report/internal/config"
	"github.com/jonathan/values-report/internal/db"
	"github.com/jonathan/values-report/internal/delivery"
	"github.com/jonathan/values-report/internal/gate"
	"github.com/jonathan/values-report/internal/logging"
	"github.com/jonathan/values-report/internal/pipeline"
	"github.com/jonathan/values-report/internal/server"
	"github.com/jonathan/values-report/internal/server/ratelimit"
)

var (
	servePort    int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the access gate, the assessment and report generation.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (defaults to PORT, then 8080)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply the database schema before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger, err := logging.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	database, err := db.Connect(ctx, cfg.Server.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if serveMigrate {
		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	writer, client, err := newWriter(ctx, cfg.Gemini)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	if !cfg.Email.Enabled() {
		logger.Warn("EMAIL_HOST not set; reports will be generated but not emailed")
	}
	mailer := delivery.NewMailer(delivery.NewTransport(cfg.Email), cfg.Email.From, cfg.Email.FromName)

	values := catalog.Default()
	g := gate.New(database, cfg.AccessCode, gate.NewTokenService(cfg.JWT), logger.Named("gate"))

	reports, err := pipeline.New(pipeline.Deps{
		Catalog:     values,
		Store:       database,
		Completion:  g,
		Synthesizer: writer,
		Renderer:    newRenderer(cfg.Report),
		Deliverer:   mailer,
		Logger:      logger.Named("pipeline"),
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	rl, err := ratelimit.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load rate limit config: %w", err)
	}

	srv, err := server.New(server.Config{Port: cfg.Server.Port}, server.Deps{
		Gate:      g,
		Reports:   reports,
		Catalog:   values,
		RateLimit: rl,
		Logger:    logger.Named("server"),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("values report ready",
		zap.Int("port", cfg.Server.Port),
		zap.String("renderer", cfg.Report.Renderer),
		zap.Int("catalog_size", values.Len()),
	)
	return srv.Start()
}
