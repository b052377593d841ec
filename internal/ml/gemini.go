package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/franckalain/sosscan/internal/errors"
	"google.golang.org/genai"
)

// GeminiModel implements the Model interface for the Gemini API with an API key
type GeminiModel struct {
	config     Config
	httpClient *http.Client
	client     *genai.Client
}

// NewGeminiModel creates a Gemini backend; Load must be called before use.
// A nil httpClient uses the SDK default.
func NewGeminiModel(config Config, httpClient *http.Client) *GeminiModel {
	config.ApplyDefaults()
	return &GeminiModel{config: config, httpClient: httpClient}
}

// Load initializes the Gemini client
func (m *GeminiModel) Load(ctx context.Context) error {
	if m.config.Model == "" {
		return fmt.Errorf("model name is not set")
	}

	cfg := &genai.ClientConfig{
		APIKey:     m.config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: m.httpClient,
	}
	if m.config.Endpoint != "" && m.config.Endpoint != DefaultGeminiEndpoint {
		if _, err := url.Parse(m.config.Endpoint); err != nil {
			return fmt.Errorf("invalid endpoint %q: %w", m.config.Endpoint, err)
		}
		cfg.HTTPOptions.BaseURL = strings.TrimRight(m.config.Endpoint, "/") + "/"
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	m.client = client
	return nil
}

func (m *GeminiModel) Name() string { return m.config.Model }

func (m *GeminiModel) Close() error { return nil }

// Generate sends the instruction and the inline image, returning the reply text
func (m *GeminiModel) Generate(ctx context.Context, req *AnalysisRequest) (string, error) {
	if m.client == nil {
		return "", fmt.Errorf("model not loaded")
	}

	data, err := req.ImageBytes()
	if err != nil {
		return "", err
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(req.Instruction()),
			genai.NewPartFromBytes(data, req.MIMEType()),
		}, genai.RoleUser),
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.config.Model, contents, nil)
	if err != nil {
		return "", classifyGemini(ctx, fmt.Errorf("failed to call ai: %w", err))
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", rejected(fmt.Errorf("request blocked: %s", resp.PromptFeedback.BlockReason), errors.ReasonBlocked)
		}
		return "", malformed(fmt.Errorf("no response generated"), "")
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil {
				text.WriteString(part.Text)
			}
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		switch reason := string(candidate.FinishReason); reason {
		case "SAFETY", "BLOCKLIST", "PROHIBITED_CONTENT":
			return "", rejected(fmt.Errorf("response blocked: %s", reason), errors.ReasonBlocked)
		}
		return "", malformed(fmt.Errorf("no content in response"), "")
	}
	return text.String(), nil
}

// classifyGemini maps an error from the Gemini SDK to a categorized error
func classifyGemini(ctx context.Context, err error) error {
	if apiErr, ok := asAPIError(err); ok {
		return classifyHTTP(apiErr.Code, err, apiErr.Message)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return networkError(err, ctxReason(ctxErr))
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return networkError(err, "transport")
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || strings.Contains(err.Error(), "invalid character") {
		return malformed(err, excerpt(err.Error()))
	}
	return errors.New(err).Category(errors.CategoryUnknown).Build()
}

// asAPIError finds a service error whether the SDK returned it by value or by pointer
func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

func excerpt(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
