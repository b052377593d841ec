package ml

import (
	"context"
	"fmt"
	"net/http"
)

// Model is a generative model able to answer an analysis request
type Model interface {
	// Load initializes the model with its configuration
	Load(ctx context.Context) error
	// Generate sends one request and returns the model's raw text reply
	Generate(ctx context.Context, req *AnalysisRequest) (string, error)
	// Name identifies the model in logs
	Name() string
	// Close releases the model's connections
	Close() error
}

// NewModel creates the model backend selected by cfg.Type
func NewModel(cfg Config, httpClient *http.Client) (Model, error) {
	cfg.ApplyDefaults()
	switch cfg.Type {
	case TypeGemini:
		return NewGeminiModel(cfg, httpClient), nil
	case TypeGoogle:
		return NewGoogleModel(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported model type: %s", cfg.Type)
	}
}
