package present

import (
	"testing"
	"time"

	"github.com/franckalain/sosscan/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assessment(plant, marine, land models.Impact) *models.Assessment {
	return &models.Assessment{
		AffectOn:    models.AffectOn{PlantLife: plant, MarineLife: marine, LandLife: land},
		BadEffect:   "Harms rivers.",
		Alternative: models.Alternative{ProductTitle: "Bar soap", Reason: "No plastic."},
	}
}

func TestPresentAggregatesPercentages(t *testing.T) {
	t.Parallel()

	m, err := Present(assessment(
		models.Impact{Value: 40, MaxValue: 100},
		models.Impact{Value: 60, MaxValue: 100},
		models.Impact{Value: 80, MaxValue: 100},
	))
	require.NoError(t, err)
	assert.Equal(t, DisplayMetrics{PlantLife: 40, MarineLife: 60, LandLife: 80, Score: 60}, m)
}

func TestPresentRounding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		impacts [3]models.Impact
		want    DisplayMetrics
	}{
		{
			name:    "thirds",
			impacts: [3]models.Impact{{Value: 1, MaxValue: 3}, {Value: 2, MaxValue: 3}, {Value: 3, MaxValue: 3}},
			want:    DisplayMetrics{PlantLife: 33, MarineLife: 67, LandLife: 100, Score: 67},
		},
		{
			name:    "half rounds up",
			impacts: [3]models.Impact{{Value: 1, MaxValue: 200}, {Value: 0, MaxValue: 5}, {Value: 0, MaxValue: 5}},
			want:    DisplayMetrics{PlantLife: 1, MarineLife: 0, LandLife: 0, Score: 0},
		},
		{
			name:    "different maxima",
			impacts: [3]models.Impact{{Value: 7, MaxValue: 10}, {Value: 3, MaxValue: 5}, {Value: 45, MaxValue: 50}},
			want:    DisplayMetrics{PlantLife: 70, MarineLife: 60, LandLife: 90, Score: 73},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Present(assessment(tt.impacts[0], tt.impacts[1], tt.impacts[2]))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPresentBounds(t *testing.T) {
	t.Parallel()

	for maxValue := 1.0; maxValue <= 13; maxValue += 3 {
		for v := 0.0; v <= maxValue; v += 0.5 {
			m, err := Present(assessment(
				models.Impact{Value: v, MaxValue: maxValue},
				models.Impact{Value: maxValue - v, MaxValue: maxValue},
				models.Impact{Value: v / 2, MaxValue: maxValue},
			))
			require.NoError(t, err)
			for _, p := range []int{m.PlantLife, m.MarineLife, m.LandLife, m.Score} {
				assert.GreaterOrEqual(t, p, 0)
				assert.LessOrEqual(t, p, 100)
			}
		}
	}
}

func TestPresentZeroMaximumFailsFast(t *testing.T) {
	t.Parallel()

	_, err := Present(assessment(
		models.Impact{Value: 1, MaxValue: 10},
		models.Impact{Value: 0, MaxValue: 0},
		models.Impact{Value: 1, MaxValue: 10},
	))
	require.ErrorIs(t, err, ErrZeroMaximum)
	assert.Contains(t, err.Error(), "marine_life")

	_, err = Present(nil)
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("no handoff", func(t *testing.T) {
		v := Render(nil)
		assert.Equal(t, ViewEmpty, v.State)
		assert.Equal(t, EmptyMessage, v.Message)
	})

	t.Run("assessment without image", func(t *testing.T) {
		a := assessment(
			models.Impact{Value: 4, MaxValue: 10},
			models.Impact{Value: 6, MaxValue: 10},
			models.Impact{Value: 8, MaxValue: 10},
		)
		v := Render(&models.Handoff{Assessment: a})
		assert.Equal(t, ViewEmpty, v.State)
		assert.Nil(t, v.Metrics)
	})

	t.Run("failure before capture", func(t *testing.T) {
		v := Render(&models.Handoff{FailureMessage: "Camera access is unavailable."})
		assert.Equal(t, ViewFailed, v.State)
		assert.Empty(t, v.ImageRef)
	})

	t.Run("failure", func(t *testing.T) {
		v := Render(&models.Handoff{ImageRef: "img", FailureMessage: "Network error."})
		assert.Equal(t, ViewFailed, v.State)
		assert.Equal(t, "img", v.ImageRef)
		assert.Equal(t, "Network error.", v.Message)
		assert.Nil(t, v.Metrics)
	})

	t.Run("result", func(t *testing.T) {
		a := assessment(
			models.Impact{Value: 4, MaxValue: 10},
			models.Impact{Value: 6, MaxValue: 10},
			models.Impact{Value: 8, MaxValue: 10},
		)
		v := Render(&models.Handoff{ImageRef: "img", Assessment: a})
		assert.Equal(t, ViewResult, v.State)
		require.NotNil(t, v.Metrics)
		assert.Equal(t, 60, v.Metrics.Score)
		assert.Equal(t, "Harms rivers.", v.BadEffect)
		assert.Equal(t, "Bar soap", v.Alternative.ProductTitle)
	})

	t.Run("unpresentable assessment", func(t *testing.T) {
		a := assessment(models.Impact{}, models.Impact{}, models.Impact{})
		v := Render(&models.Handoff{ImageRef: "img", Assessment: a})
		assert.Equal(t, ViewFailed, v.State)
	})
}

func TestGreeting(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Good Morning, Ada", Greeting(day.Add(9*time.Hour), "Ada"))
	assert.Equal(t, "Good Afternoon, Ada", Greeting(day.Add(12*time.Hour), "Ada"))
	assert.Equal(t, "Good Evening, Ada", Greeting(day.Add(18*time.Hour), "Ada"))
	assert.Equal(t, "Good Morning, User", Greeting(day, ""))
}
