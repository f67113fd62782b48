package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/values-report/internal/config"
	"github.com/jonathan/values-report/internal/llm"
	"github.com/jonathan/values-report/internal/logging"
	"github.com/jonathan/values-report/internal/pipeline"
	"github.com/jonathan/values-report/internal/rendering"
	"github.com/jonathan/values-report/internal/synthesis"
)

// newLogger builds the process logger from LOG_* settings.
func newLogger() (*zap.Logger, error) {
	cfg, err := config.NewLogConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// llmConfig applies any model overrides on top of the Gemini defaults.
func llmConfig(cfg config.GeminiConfig) *llm.Config {
	return llm.DefaultGeminiConfig().
		WithModel(llm.TierLite, cfg.ModelLite).
		WithModel(llm.TierStandard, cfg.ModelStandard).
		WithModel(llm.TierAdvanced, cfg.ModelAdvanced)
}

// newWriter connects to Gemini and returns the report writer. The caller
// closes the returned client.
func newWriter(ctx context.Context, cfg config.GeminiConfig) (*synthesis.Writer, llm.Client, error) {
	client, err := llm.NewClient(ctx, llmConfig(cfg), cfg.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return synthesis.NewWriter(client), client, nil
}

// newRenderer picks the document renderer named by REPORT_RENDERER.
func newRenderer(cfg config.ReportConfig) pipeline.Renderer {
	if cfg.Renderer == config.RendererChrome {
		return rendering.NewChromeRenderer(cfg.LogoPath, cfg.ChromeTimeout)
	}
	return rendering.NewPDFRenderer(cfg.LogoPath)
}
