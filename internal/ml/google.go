package ml

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/franckalain/sosscan/internal/errors"
	"google.golang.org/api/option"
)

// GoogleModel implements the Model interface for Google's Vertex AI
type GoogleModel struct {
	config Config
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGoogleModel creates a Vertex AI backend; Load must be called before use
func NewGoogleModel(config Config) *GoogleModel {
	config.ApplyDefaults()
	return &GoogleModel{config: config}
}

// Load initializes the Vertex AI client
func (m *GoogleModel) Load(ctx context.Context) error {
	opts := []option.ClientOption{}

	if m.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(m.config.CredentialsFile))
	}
	if m.config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(m.config.Endpoint))
	}

	client, err := genai.NewClient(ctx, m.config.ProjectID, m.config.Location, opts...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	m.client = client
	m.model = client.GenerativeModel(m.config.Model)
	return nil
}

func (m *GoogleModel) Name() string { return m.config.Model }

// Close closes the underlying client
func (m *GoogleModel) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Generate sends the instruction and the image blob to Vertex AI
func (m *GoogleModel) Generate(ctx context.Context, req *AnalysisRequest) (string, error) {
	if m.model == nil {
		return "", fmt.Errorf("model not loaded")
	}

	data, err := req.ImageBytes()
	if err != nil {
		return "", err
	}
	img := genai.Blob{MIMEType: req.MIMEType(), Data: data}

	resp, err := m.model.GenerateContent(ctx, genai.Text(req.Instruction()), img)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", rejected(fmt.Errorf("failed to call ai: %w", err), errors.ReasonBlocked)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", networkError(fmt.Errorf("failed to call ai: %w", err), ctxReason(ctxErr))
		}
		return "", classifyGRPC(fmt.Errorf("failed to call ai: %w", err))
	}

	if len(resp.Candidates) == 0 {
		return "", malformed(fmt.Errorf("no response generated"), "")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", malformed(fmt.Errorf("no content in response"), "")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", malformed(fmt.Errorf("no text in response"), "")
	}
	return text.String(), nil
}
