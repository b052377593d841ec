package ml

import (
	"context"
	"net/http"
	"strings"

	"github.com/franckalain/sosscan/internal/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func networkError(err error, reason string) error {
	return errors.New(err).
		Category(errors.CategoryNetwork).
		Context(errors.ContextReason, reason).
		Build()
}

func rejected(err error, reason string) error {
	return errors.New(err).
		Category(errors.CategoryRequestRejected).
		Context(errors.ContextReason, reason).
		Build()
}

func unsupportedImage(err error) error {
	return errors.New(err).
		Category(errors.CategoryUnsupportedImage).
		Build()
}

func malformed(err error, excerpt string) error {
	return errors.New(err).
		Category(errors.CategoryMalformedResponse).
		Context(errors.ContextExcerpt, excerpt).
		Build()
}

func ctxReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "cancelled"
}

// complainsAboutKey reports whether a service message blames the API key
func complainsAboutKey(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "api key") || strings.Contains(msg, "api_key")
}

// complainsAboutImage reports whether a service message blames the image payload
func complainsAboutImage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{"mime", "image", "inline_data", "unsupported"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// classifyHTTP maps a Gemini API error status to a categorized error
func classifyHTTP(statusCode int, err error, msg string) error {
	switch {
	case statusCode == http.StatusBadRequest && complainsAboutKey(msg):
		return rejected(err, errors.ReasonCredentialRejected)
	case statusCode == http.StatusBadRequest && complainsAboutImage(msg):
		return unsupportedImage(err)
	case statusCode == http.StatusBadRequest:
		return rejected(err, errors.ReasonInvalidRequest)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return rejected(err, errors.ReasonCredentialRejected)
	case statusCode == http.StatusNotFound, statusCode == http.StatusGone:
		return rejected(err, errors.ReasonModelUnavailable)
	case statusCode == http.StatusTooManyRequests:
		return rejected(err, errors.ReasonQuota)
	case statusCode >= http.StatusInternalServerError:
		return networkError(err, "service_unavailable")
	default:
		return errors.New(err).Category(errors.CategoryUnknown).Context(errors.ContextStatus, statusCode).Build()
	}
}

// classifyGRPC maps a Vertex AI error to a categorized error
func classifyGRPC(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return errors.New(err).Category(errors.CategoryUnknown).Build()
	}
	msg := st.Message()
	switch st.Code() {
	case codes.InvalidArgument:
		if complainsAboutKey(msg) {
			return rejected(err, errors.ReasonCredentialRejected)
		}
		if complainsAboutImage(msg) {
			return unsupportedImage(err)
		}
		return rejected(err, errors.ReasonInvalidRequest)
	case codes.FailedPrecondition:
		return rejected(err, errors.ReasonInvalidRequest)
	case codes.NotFound:
		return rejected(err, errors.ReasonModelUnavailable)
	case codes.PermissionDenied, codes.Unauthenticated:
		return rejected(err, errors.ReasonCredentialRejected)
	case codes.ResourceExhausted:
		return rejected(err, errors.ReasonQuota)
	case codes.Unavailable:
		return networkError(err, "service_unavailable")
	case codes.DeadlineExceeded:
		return networkError(err, "timeout")
	case codes.Canceled:
		return networkError(err, "cancelled")
	default:
		return errors.New(err).Category(errors.CategoryUnknown).Context(errors.ContextStatus, st.Code().String()).Build()
	}
}
