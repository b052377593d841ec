// Package telemetry reports classified pipeline failures for diagnostics.
package telemetry

import (
	"fmt"
	"time"

	"github.com/franckalain/sosscan/internal/errors"
	"github.com/getsentry/sentry-go"
)

// Reporter receives failures with their diagnostic context
type Reporter interface {
	ReportFailure(err error, category errors.ErrorCategory)
}

// NopReporter drops every report
type NopReporter struct{}

func (NopReporter) ReportFailure(error, errors.ErrorCategory) {}

// SentryReporter forwards failures to Sentry on its own hub
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter creates a reporter from client options
func NewSentryReporter(opts sentry.ClientOptions) (*SentryReporter, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// ReportFailure captures err tagged with its category. The enhanced error's
// context (excerpts, reasons) goes along as event context.
func (r *SentryReporter) ReportFailure(err error, category errors.ErrorCategory) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("category", string(category))
		var ee *errors.EnhancedError
		if errors.As(err, &ee) {
			if reason := ee.Reason(); reason != "" {
				scope.SetTag("reason", reason)
			}
			if ctx := ee.GetContext(); len(ctx) > 0 {
				scope.SetContext("failure", sentry.Context(ctx))
			}
		}
		r.hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}
