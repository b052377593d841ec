package ml

import "fmt"

// Model types understood by NewModel
const (
	TypeGemini = "gemini" // Gemini REST API with an API key
	TypeGoogle = "google" // Vertex AI with a service account
)

const (
	DefaultModelName      = "gemini-1.5-flash"
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com"
)

// Config holds the configuration of the analysis model
type Config struct {
	Type     string `json:"type" envconfig:"ML_TYPE"` // "gemini" or "google"
	Model    string `json:"model" envconfig:"ML_MODEL"`
	Endpoint string `json:"endpoint" envconfig:"ML_ENDPOINT"`

	// Gemini
	APIKey string `json:"-" envconfig:"API_KEY"`

	// Vertex AI
	ProjectID       string `json:"project_id" envconfig:"PROJECT_ID"`
	Location        string `json:"location" envconfig:"LOCATION"`
	CredentialsFile string `json:"credentials_file" envconfig:"CREDENTIALS_FILE"`

	RequestTimeoutSeconds int `json:"request_timeout_seconds" envconfig:"REQUEST_TIMEOUT_SECONDS"`
}

// ApplyDefaults fills unset fields
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = TypeGemini
	}
	if c.Model == "" {
		c.Model = DefaultModelName
	}
	if c.Type == TypeGemini && c.Endpoint == "" {
		c.Endpoint = DefaultGeminiEndpoint
	}
}

// Credential returns the single service secret for the configured model type
func (c *Config) Credential() string {
	switch c.Type {
	case TypeGoogle:
		return c.CredentialsFile
	default:
		return c.APIKey
	}
}

// Validate checks the settings the chosen backend needs
func (c *Config) Validate() error {
	switch c.Type {
	case TypeGemini:
		if c.APIKey == "" {
			return fmt.Errorf("%w: SOS_API_KEY is not set", ErrMissingCredential)
		}
	case TypeGoogle:
		if c.CredentialsFile == "" {
			return fmt.Errorf("%w: SOS_CREDENTIALS_FILE is not set", ErrMissingCredential)
		}
		if c.ProjectID == "" || c.Location == "" {
			return fmt.Errorf("google model requires project_id and location")
		}
	default:
		return fmt.Errorf("unsupported model type: %s", c.Type)
	}
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("request_timeout_seconds must not be negative")
	}
	return nil
}
