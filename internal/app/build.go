package app

import (
	"context"
	"fmt"

	"github.com/antoniostano/waply/internal/config"
	"github.com/antoniostano/waply/internal/httpapi"
	"github.com/antoniostano/waply/internal/observability"
	"github.com/antoniostano/waply/internal/ollama"
	"github.com/antoniostano/waply/internal/ratelimit"
	"github.com/antoniostano/waply/internal/reply"
	"github.com/antoniostano/waply/internal/store"
	"github.com/antoniostano/waply/internal/webhook"
	"github.com/antoniostano/waply/internal/whatsapp"
)

type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Limiter *ratelimit.SlidingWindow
	Metrics *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

// Build constructs every component once and wires them into the webhook
// processor. No package-level state; everything flows through here.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, err := store.New(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	limiter := ratelimit.NewSlidingWindow()

	backend := ollama.NewClient(ollama.Config{
		BaseURL: cfg.OllamaBaseURL,
		Model:   cfg.OllamaModel,
		Timeout: cfg.OllamaTimeout,
	})
	generator := reply.NewGenerator(backend)

	sender := whatsapp.NewClient(whatsapp.Config{
		AccessToken:   cfg.MetaAccessToken,
		PhoneNumberID: cfg.MetaPhoneNumberID,
		APIVersion:    cfg.MetaAPIVersion,
		BaseURL:       cfg.MetaBaseURL,
		Timeout:       cfg.MetaTimeout,
	})

	processor := webhook.NewProcessor(st, limiter, generator, sender, metrics, cfg.RateLimitPerMinute)
	api := httpapi.New(cfg, processor, metrics)

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Limiter: limiter,
		Metrics: metrics,
		Cleanup: st.Close,
	}, nil
}
