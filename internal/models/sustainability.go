package models

import (
	"time"

	"github.com/franckalain/sosscan/internal/errors"
)

// Impact is one impact category score, judged against its declared maximum
type Impact struct {
	Value    float64 `json:"value"`
	MaxValue float64 `json:"max_value"`
}

// AffectOn groups the three impact categories
type AffectOn struct {
	PlantLife  Impact `json:"plant_life"`
	MarineLife Impact `json:"marine_life"`
	LandLife   Impact `json:"land_life"`
}

// Alternative is a suggested replacement product
type Alternative struct {
	ProductTitle string `json:"product_title"`
	Reason       string `json:"reason"`
}

// Assessment is a validated sustainability analysis of a scanned product
type Assessment struct {
	AffectOn    AffectOn    `json:"affect_on"`
	BadEffect   string      `json:"bad_effect"`
	Alternative Alternative `json:"alternative"`
}

// Failure is the classified failure half of a ScanOutcome
type Failure struct {
	Category errors.ErrorCategory `json:"category"`
	Message  string               `json:"message"` // user-facing, never raw diagnostics
}

// ScanOutcome is the terminal result of one pipeline run.
// Exactly one of Assessment and Failure is set.
type ScanOutcome struct {
	Assessment *Assessment `json:"assessment,omitempty"`
	Failure    *Failure    `json:"failure,omitempty"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Succeeded builds a successful outcome
func Succeeded(a *Assessment) *ScanOutcome {
	return &ScanOutcome{Assessment: a, FinishedAt: time.Now()}
}

// Failed builds a failed outcome
func Failed(category errors.ErrorCategory, message string) *ScanOutcome {
	return &ScanOutcome{
		Failure:    &Failure{Category: category, Message: message},
		FinishedAt: time.Now(),
	}
}

// OK reports whether the outcome carries an assessment
func (o *ScanOutcome) OK() bool {
	return o != nil && o.Assessment != nil
}

// Handoff is the transfer object passed from the pipeline to the presentation stage.
// It is consumed once and never persisted.
type Handoff struct {
	RunID          string      `json:"run_id"`
	ImageRef       string      `json:"image_ref"` // artifact access handle
	Assessment     *Assessment `json:"assessment,omitempty"`
	FailureMessage string      `json:"failure_message,omitempty"`
}
