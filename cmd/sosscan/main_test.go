package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/franckalain/sosscan/internal/config"
	"github.com/franckalain/sosscan/internal/logging"
	"github.com/franckalain/sosscan/internal/ml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reply = "```json\n" + `{"sustainability_data": {
  "affect_on": {
    "plant_life": {"value": 4, "max_value": 10},
    "marine_life": {"value": 6, "max_value": 10},
    "land_life": {"value": 8, "max_value": 10}
  },
  "bad_effect": "Plastic packaging.",
  "alternative": {"product_title": "Refill pack", "reason": "Less plastic."}
}}` + "\n```"

type stubSubmitter struct{}

func (stubSubmitter) Submit(context.Context, *ml.AnalysisRequest) (*ml.RawResponse, error) {
	return &ml.RawResponse{Text: reply, Latency: time.Millisecond}, nil
}

func productPhoto(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "product.jpg")
	require.NoError(t, imaging.Save(imaging.New(80, 60, color.NRGBA{B: 200, A: 255}), path))
	return path
}

func TestPromptCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := RootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"prompt"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "sustainability_data")
	assert.Contains(t, out.String(), "max_value")
}

func TestAnalyzeImagePrintsResult(t *testing.T) {
	var out bytes.Buffer
	err := analyzeImage(context.Background(), &out, productPhoto(t), config.Default(), stubSubmitter{}, logging.Discard(), false)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "SCAN ANALYSIS")
	assert.Contains(t, out.String(), "Score:        60%")
	assert.Contains(t, out.String(), "Refill pack (Less plastic.)")
}

func TestAnalyzeImageJSON(t *testing.T) {
	var out bytes.Buffer
	err := analyzeImage(context.Background(), &out, productPhoto(t), config.Default(), stubSubmitter{}, logging.Discard(), true)
	require.NoError(t, err)

	var view map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	assert.Equal(t, "result", view["state"])
	assert.NotEmpty(t, view["image_ref"])
}

func TestAnalyzeImageFailures(t *testing.T) {
	t.Run("missing credential", func(t *testing.T) {
		var out bytes.Buffer
		client := ml.NewClient(nil, "", logging.Discard())
		err := analyzeImage(context.Background(), &out, productPhoto(t), config.Default(), client, logging.Discard(), false)
		require.Error(t, err)
		assert.Contains(t, out.String(), "not configured")
	})

	t.Run("missing image", func(t *testing.T) {
		var out bytes.Buffer
		missing := filepath.Join(t.TempDir(), "none.jpg")
		err := analyzeImage(context.Background(), &out, missing, config.Default(), stubSubmitter{}, logging.Discard(), false)
		require.Error(t, err)
		assert.Contains(t, out.String(), "Camera access is unavailable")
	})
}
