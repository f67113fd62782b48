package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/values-report/internal/catalog"
	"github.com/jonathan/values-report/internal/config"
	"github.com/jonathan/values-report/internal/db"
	"github.com/jonathan/values-report/internal/delivery"
	"github.com/jonathan/values-report/internal/observability"
	"github.com/jonathan/values-report/internal/pipeline"
)

var (
	renderValues      string
	renderSession     string
	renderDatabaseURL string
	renderEmail       string
	renderOut         string
	renderVerbose     bool
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Generate a report from the command line",
	Long: `Runs the report pipeline for five values given in rank order and writes the document to disk.

With --session the ranking saved for an assessment session is loaded from the
database instead, and the session's email is used unless --email is given.

Selections are not persisted. The report is emailed only when EMAIL_HOST is configured.`,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVar(&renderValues, "values", "", "Comma-separated value IDs, most important first (required)")
	renderCmd.Flags().StringVar(&renderSession, "session", "", "Session ID whose saved ranking to render")
	renderCmd.Flags().StringVar(&renderDatabaseURL, "db-url", "", "PostgreSQL connection URL for --session (optional, defaults to DATABASE_URL env var)")
	renderCmd.Flags().StringVar(&renderEmail, "email", "", "Recipient email address (required with --values)")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "Output path (defaults to the document's own filename)")
	renderCmd.Flags().BoolVarP(&renderVerbose, "verbose", "v", false, "Print each pipeline step")
	renderCmd.MarkFlagsOneRequired("values", "session")
	renderCmd.MarkFlagsMutuallyExclusive("values", "session")
	rootCmd.AddCommand(renderCmd)
}

// parseValueList turns "a, b,c" into selections ranked in the order given.
func parseValueList(s string) []catalog.Selection {
	var selections []catalog.Selection
	for _, id := range strings.Split(s, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		selections = append(selections, catalog.Selection{ValueID: id, Rank: len(selections) + 1})
	}
	return selections
}

// sessionReader loads a stored session. *db.DB satisfies it.
type sessionReader interface {
	GetSession(ctx context.Context, sessionID string) (*db.Session, error)
	GetSelections(ctx context.Context, sessionID string) ([]catalog.Selection, error)
}

// sessionRequest rebuilds a report request from a session's saved ranking.
// A non-empty email overrides the session's own address.
func sessionRequest(ctx context.Context, store sessionReader, sessionID, email string) (pipeline.Request, error) {
	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return pipeline.Request{}, fmt.Errorf("session %s not found", sessionID)
	}
	selections, err := store.GetSelections(ctx, sessionID)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("failed to load selections: %w", err)
	}
	if len(selections) == 0 {
		return pipeline.Request{}, fmt.Errorf("session %s has no saved ranking", sessionID)
	}
	if email == "" {
		email = session.Email
	}
	return pipeline.Request{SessionID: sessionID, Recipient: email, Selections: selections}, nil
}

// renderRequest builds the request from flags, reading the database only for
// --session.
func renderRequest(ctx context.Context) (pipeline.Request, error) {
	if renderSession == "" {
		if renderEmail == "" {
			return pipeline.Request{}, fmt.Errorf("--email is required with --values")
		}
		return pipeline.Request{
			SessionID:  fmt.Sprintf("cli-%d", time.Now().Unix()),
			Recipient:  renderEmail,
			Selections: parseValueList(renderValues),
		}, nil
	}

	url, err := databaseURL(renderDatabaseURL)
	if err != nil {
		return pipeline.Request{}, err
	}
	database, err := db.Connect(ctx, url)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	return sessionRequest(ctx, database, renderSession, renderEmail)
}

func runRender(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := observability.NewPrinter(cmd.OutOrStdout())

	req, err := renderRequest(ctx)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	geminiCfg, err := config.NewGeminiConfig()
	if err != nil {
		return err
	}
	reportCfg, err := config.NewReportConfig()
	if err != nil {
		return err
	}
	emailCfg, err := config.NewEmailConfig()
	if err != nil {
		return err
	}

	writer, client, err := newWriter(ctx, *geminiCfg)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	p, err := pipeline.New(pipeline.Deps{
		Synthesizer: writer,
		Renderer:    newRenderer(*reportCfg),
		Deliverer:   delivery.NewMailer(delivery.NewTransport(*emailCfg), emailCfg.From, emailCfg.FromName),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	var onProgress pipeline.ProgressCallback
	if renderVerbose {
		onProgress = out.PrintProgress
	}

	result, err := p.Run(ctx, req, onProgress)
	if err != nil {
		return err
	}

	path := renderOut
	if path == "" {
		path = result.Document.Filename
	}
	if err := os.WriteFile(path, result.Document.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	out.PrintRanking(result.Ranked)
	out.PrintResult(result)
	fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path) //nolint:errcheck
	return nil
}
