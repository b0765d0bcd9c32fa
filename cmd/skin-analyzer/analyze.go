package main

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/internal/history"
	"github.com/menta2k/skin-analyzer/internal/utils"
	"github.com/menta2k/skin-analyzer/pkg/presenter"
	"github.com/menta2k/skin-analyzer/pkg/processing"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

var (
	analyzeCheckQuality bool
	analyzeOverlay      string
	analyzeJSON         bool
	analyzeNoSave       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image|url>",
	Short: "Analyze an uploaded photo (jpg/png/webp, file or URL)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVarP(&analyzeCheckQuality, "check-quality", "q", false, "refuse photos that would not pass the live capture check")
	analyzeCmd.Flags().StringVar(&analyzeOverlay, "overlay", "", "write the photo with the face guide drawn on it (png|jpg|webp by extension)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the display model as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeNoSave, "no-save", false, "do not store the result in history")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sa, err := newPipeline()
	if err != nil {
		return err
	}

	data, err := sa.Processor().ReadSmart(ctx, args[0])
	if err != nil {
		return err
	}

	if analyzeCheckQuality || analyzeOverlay != "" {
		img, err := processing.DecodeBytes(data)
		if err != nil {
			return types.InvalidImagef("%v", err)
		}
		report, err := sa.Inspect(img)
		if err != nil {
			return err
		}
		if analyzeOverlay != "" {
			if err := saveOverlay(sa.Processor(), sa.Overlay(img, report.Verdict), analyzeOverlay); err != nil {
				return err
			}
		}
		if analyzeCheckQuality && !report.Ready {
			return fmt.Errorf("photo quality is not sufficient (lighting %s, position %s): %s",
				report.Verdict.Lighting, report.Verdict.Position, strings.Join(sa.Guidance(report), "; "))
		}
	}

	result, err := sa.AnalyzeBytes(ctx, data)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if !analyzeNoSave {
		store, err := openHistory(ctx)
		if err != nil {
			logger.Warn("History unavailable", zap.Error(err))
		} else {
			defer store.Close()
			pub := openPublisher(ctx)
			defer pub.Close()
			record(ctx, store, pub, "", history.OriginUpload, result)
		}
	}

	return printResult(sa.Present(result), analyzeJSON)
}

func printResult(view presenter.DisplayModel, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	return presenter.WriteText(os.Stdout, view)
}

// saveOverlay writes img in the format named by the path's extension
func saveOverlay(p *processing.Processor, img image.Image, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := utils.EnsureDir(dir); err != nil {
			return err
		}
	}
	if err := p.SaveImage(img, path, utils.GetFileExtension(path), 92, false); err != nil {
		return fmt.Errorf("failed to save overlay %s: %w", path, err)
	}
	logger.Info("Overlay written", zap.String("path", path))
	return nil
}
