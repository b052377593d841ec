// Package present derives what the results view shows from a pipeline handoff.
package present

import (
	"fmt"
	"math"
	"time"

	"github.com/franckalain/sosscan/internal/errors"
	"github.com/franckalain/sosscan/internal/models"
)

// ErrZeroMaximum is returned when an impact declares a maximum of zero or less
var ErrZeroMaximum = errors.NewStd("impact max_value must be positive")

// DisplayMetrics are the integer percentages shown for an assessment
type DisplayMetrics struct {
	PlantLife  int `json:"plant_life"`
	MarineLife int `json:"marine_life"`
	LandLife   int `json:"land_life"`
	Score      int `json:"score"` // rounded mean of the three percentages
}

// Present computes the display metrics of an assessment
func Present(a *models.Assessment) (DisplayMetrics, error) {
	if a == nil {
		return DisplayMetrics{}, fmt.Errorf("no assessment to present")
	}
	plant, err := Percentage(a.AffectOn.PlantLife)
	if err != nil {
		return DisplayMetrics{}, fmt.Errorf("plant_life: %w", err)
	}
	marine, err := Percentage(a.AffectOn.MarineLife)
	if err != nil {
		return DisplayMetrics{}, fmt.Errorf("marine_life: %w", err)
	}
	land, err := Percentage(a.AffectOn.LandLife)
	if err != nil {
		return DisplayMetrics{}, fmt.Errorf("land_life: %w", err)
	}
	return DisplayMetrics{
		PlantLife:  plant,
		MarineLife: marine,
		LandLife:   land,
		Score:      int(math.Round(float64(plant+marine+land) / 3)),
	}, nil
}

// Percentage returns round(value / max * 100)
func Percentage(i models.Impact) (int, error) {
	if i.MaxValue <= 0 {
		return 0, ErrZeroMaximum
	}
	return int(math.Round(i.Value / i.MaxValue * 100)), nil
}

// ViewState tells the results page which layout to render
type ViewState string

const (
	ViewEmpty  ViewState = "empty"
	ViewFailed ViewState = "failed"
	ViewResult ViewState = "result"
)

// EmptyMessage is shown when the results page has nothing to display
const EmptyMessage = "No product scan data available"

// View is everything the results page renders
type View struct {
	State       ViewState           `json:"state"`
	Title       string              `json:"title"`
	ImageRef    string              `json:"image_ref,omitempty"`
	Message     string              `json:"message,omitempty"`
	Metrics     *DisplayMetrics     `json:"metrics,omitempty"`
	BadEffect   string              `json:"bad_effect,omitempty"`
	Alternative *models.Alternative `json:"alternative,omitempty"`
}

const viewTitle = "SCAN ANALYSIS"

// Render validates a handoff at the presentation boundary. A missing handoff or
// an assessment without its image gives the empty view; a failure is shown with
// the image when one was captured; an assessment that cannot be presented is
// shown as a failure.
func Render(h *models.Handoff) View {
	if h == nil {
		return View{State: ViewEmpty, Title: viewTitle, Message: EmptyMessage}
	}
	if h.FailureMessage != "" {
		return View{State: ViewFailed, Title: viewTitle, ImageRef: h.ImageRef, Message: h.FailureMessage}
	}
	if h.ImageRef == "" || h.Assessment == nil {
		return View{State: ViewEmpty, Title: viewTitle, ImageRef: h.ImageRef, Message: EmptyMessage}
	}

	metrics, err := Present(h.Assessment)
	if err != nil {
		return View{State: ViewFailed, Title: viewTitle, ImageRef: h.ImageRef, Message: "Could not read the analysis result. Please try again."}
	}
	alt := h.Assessment.Alternative
	return View{
		State:       ViewResult,
		Title:       viewTitle,
		ImageRef:    h.ImageRef,
		Metrics:     &metrics,
		BadEffect:   h.Assessment.BadEffect,
		Alternative: &alt,
	}
}

// DefaultName is used when no display name is stored
const DefaultName = "User"

// Greeting returns the time-of-day greeting for name
func Greeting(now time.Time, name string) string {
	if name == "" {
		name = DefaultName
	}
	switch hour := now.Hour(); {
	case hour < 12:
		return "Good Morning, " + name
	case hour < 18:
		return "Good Afternoon, " + name
	default:
		return "Good Evening, " + name
	}
}
