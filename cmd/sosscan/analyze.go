package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/franckalain/sosscan/internal/camera"
	"github.com/franckalain/sosscan/internal/capture"
	"github.com/franckalain/sosscan/internal/config"
	"github.com/franckalain/sosscan/internal/logging"
	"github.com/franckalain/sosscan/internal/ml"
	"github.com/franckalain/sosscan/internal/pipeline"
	"github.com/franckalain/sosscan/internal/present"
	"github.com/spf13/cobra"
)

func analyzeCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "analyze [image]",
		Short: "Analyze a product photo",
		Long:  `Run one scan against a still image and print the sustainability result.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Logs go to stderr so the result can be piped
			logger := logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level))

			model, err := ml.NewModel(cfg.ML, &http.Client{})
			if err != nil {
				return err
			}
			if err := model.Load(cmd.Context()); err != nil {
				return fmt.Errorf("failed to load model: %w", err)
			}
			defer model.Close()

			client := ml.NewClient(model, cfg.ML.Credential(), logger)
			return analyzeImage(cmd.Context(), cmd.OutOrStdout(), args[0], cfg, client, logger, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result view as JSON")
	return cmd
}

// analyzeImage runs a pipeline over a still image and prints the rendered view.
// A failed scan is printed and returned as an error.
func analyzeImage(ctx context.Context, out io.Writer, path string, cfg *config.Config, client pipeline.Submitter, logger *slog.Logger, jsonOutput bool) error {
	store := capture.NewStore(cfg.ArtifactTTL())
	ctrl := pipeline.New(pipeline.Options{
		Camera:         camera.NewSession(camera.NewStillDevice(path), logger),
		Capturer:       capture.NewCapturer(store, cfg.CaptureOptions(), logger),
		Client:         client,
		RequestTimeout: cfg.RequestTimeout(),
		Logger:         logger,
	})
	defer ctrl.Close()

	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	if ctrl.State() == pipeline.StateStreaming {
		if _, err := ctrl.CaptureAndAnalyze(ctx); err != nil {
			return err
		}
	}

	view := present.Render(ctrl.TakeHandoff())
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			return err
		}
	} else {
		printView(out, view)
	}

	if view.State == present.ViewFailed {
		return fmt.Errorf("scan failed: %s", view.Message)
	}
	return nil
}

func printView(out io.Writer, view present.View) {
	fmt.Fprintln(out, view.Title)
	switch view.State {
	case present.ViewResult:
		fmt.Fprintf(out, "Plant life:   %d%%\n", view.Metrics.PlantLife)
		fmt.Fprintf(out, "Marine life:  %d%%\n", view.Metrics.MarineLife)
		fmt.Fprintf(out, "Land life:    %d%%\n", view.Metrics.LandLife)
		fmt.Fprintf(out, "Score:        %d%%\n", view.Metrics.Score)
		fmt.Fprintf(out, "Bad effect:   %s\n", view.BadEffect)
		fmt.Fprintf(out, "Alternative:  %s (%s)\n", view.Alternative.ProductTitle, view.Alternative.Reason)
	default:
		fmt.Fprintln(out, view.Message)
	}
}
