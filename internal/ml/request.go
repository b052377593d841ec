package ml

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/franckalain/sosscan/internal/capture"
	"github.com/franckalain/sosscan/internal/errors"
)

const systemDirective = `You are SOS, a sustainability analyst. Identify the product shown in the photo and assess the environmental harm caused by producing, using and disposing of it.`

const outputSchema = `Respond with a single JSON object and nothing else, in exactly this shape:
{
  "sustainability_data": {
    "affect_on": {
      "plant_life": {"value": number, "max_value": number},
      "marine_life": {"value": number, "max_value": number},
      "land_life": {"value": number, "max_value": number}
    },
    "bad_effect": "string explaining why the product is harmful",
    "alternative": {
      "product_title": "string naming a more sustainable product",
      "reason": "string explaining why the alternative is better"
    }
  }
}
Each max_value must be greater than 0 and each value must be between 0 and its max_value.`

// Instruction returns the fixed analysis prompt sent with every image
func Instruction() string {
	return systemDirective + "\n\n" + outputSchema
}

// AnalysisRequest is an outbound request to the model. It is immutable once built.
type AnalysisRequest struct {
	instruction string
	imageBase64 string
	mimeType    string
	artifactRef string
	builtAt     time.Time
}

func (r *AnalysisRequest) Instruction() string { return r.instruction }
func (r *AnalysisRequest) ImageBase64() string { return r.imageBase64 }
func (r *AnalysisRequest) MIMEType() string    { return r.mimeType }
func (r *AnalysisRequest) ArtifactRef() string { return r.artifactRef }
func (r *AnalysisRequest) BuiltAt() time.Time  { return r.builtAt }

// ImageBytes decodes the embedded payload
func (r *AnalysisRequest) ImageBytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(r.imageBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return data, nil
}

// RequestBuilder combines the fixed instruction with a captured artifact
type RequestBuilder struct {
	instruction string
}

// NewRequestBuilder creates a builder using the standard instruction
func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{instruction: Instruction()}
}

// Build encodes the artifact into a new request. The artifact is left untouched
// and may be built again.
func (b *RequestBuilder) Build(a *capture.Artifact) (*AnalysisRequest, error) {
	if a == nil || len(a.Data) == 0 || a.Released() {
		return nil, errors.Newf("no captured image to analyze").
			Category(errors.CategoryMissingInput).
			Build()
	}
	return &AnalysisRequest{
		instruction: b.instruction,
		imageBase64: base64.StdEncoding.EncodeToString(a.Data),
		mimeType:    a.MIMEType,
		artifactRef: a.Ref(),
		builtAt:     time.Now(),
	}, nil
}
