// Package ml builds analysis requests and exchanges them with a generative model.
package ml

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/franckalain/sosscan/internal/errors"
)

// ErrMissingCredential is wrapped by every missing-credential failure
var ErrMissingCredential = errors.NewStd("analysis service credential is not configured")

// RawResponse is the unvalidated text returned by the model
type RawResponse struct {
	Text    string
	Latency time.Duration
	Bytes   int
	Model   string
}

// Client submits analysis requests to an injected model
type Client struct {
	model      Model
	credential string
	logger     *slog.Logger
}

// NewClient creates a client. credential is the configured service secret;
// an empty one makes every Submit fail without reaching the model.
func NewClient(model Model, credential string, logger *slog.Logger) *Client {
	return &Client{model: model, credential: credential, logger: logger.With("component", "ml")}
}

// Submit performs a single request/response exchange with the model.
// ctx cancels the in-flight call.
func (c *Client) Submit(ctx context.Context, req *AnalysisRequest) (*RawResponse, error) {
	if c.credential == "" {
		return nil, errors.New(ErrMissingCredential).
			Category(errors.CategoryMissingCredential).
			Build()
	}
	if req == nil {
		return nil, errors.Newf("no analysis request").
			Category(errors.CategoryMissingInput).
			Build()
	}

	start := time.Now()
	text, err := c.model.Generate(ctx, req)
	latency := time.Since(start)
	if err != nil {
		c.logger.Warn("model call failed",
			"model", c.model.Name(),
			"artifact", req.ArtifactRef(),
			"latency", latency,
			"error", err)
		return nil, categorize(ctx, err)
	}

	c.logger.Info("model call completed",
		"model", c.model.Name(),
		"artifact", req.ArtifactRef(),
		"latency", latency,
		"bytes", len(text))

	return &RawResponse{
		Text:    text,
		Latency: latency,
		Bytes:   len(text),
		Model:   c.model.Name(),
	}, nil
}

// categorize makes sure an error leaving the client carries a category
func categorize(ctx context.Context, err error) error {
	if errors.CategoryOf(err) != "" {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return networkError(fmt.Errorf("model call interrupted: %w", err), ctxReason(ctxErr))
	}
	return errors.New(fmt.Errorf("model call failed: %w", err)).
		Category(errors.CategoryUnknown).
		Build()
}
