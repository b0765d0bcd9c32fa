package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	skinanalyzer "github.com/menta2k/skin-analyzer"
	"github.com/menta2k/skin-analyzer/internal/history"
	"github.com/menta2k/skin-analyzer/internal/utils"
	"github.com/menta2k/skin-analyzer/pkg/analyzer"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

var (
	batchOutDir       string
	batchCheckQuality bool
	batchSave         bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Analyze every photo in a directory and write one JSON file per photo",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchOutDir, "out", "o", "out", "output directory")
	batchCmd.Flags().BoolVarP(&batchCheckQuality, "check-quality", "q", false, "skip photos that would not pass the live capture check")
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "store results in history")
	rootCmd.AddCommand(batchCmd)
}

// batchOutput is the per-photo JSON file
type batchOutput struct {
	Source   string      `json:"source"`
	Display  interface{} `json:"display,omitempty"`
	Error    string      `json:"error,omitempty"`
	Guidance []string    `json:"guidance,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	files, err := utils.ListImageFiles(args[0])
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", args[0], err)
	}
	if len(files) == 0 {
		fmt.Println("No images found.")
		return nil
	}
	if err := utils.EnsureDir(batchOutDir); err != nil {
		return err
	}

	sa, err := newPipeline()
	if err != nil {
		return err
	}

	var store history.Store
	if batchSave {
		store, err = openHistory(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
	}
	pub := openPublisher(ctx)
	defer pub.Close()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Analyzing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	start := time.Now()
	var ok, failed, skipped int
	var totalBytes int64
	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		out := batchOutput{Source: file}
		rejected := false

		data, err := os.ReadFile(file)
		if err != nil {
			out.Error = err.Error()
		} else {
			totalBytes += int64(len(data))
			if batchCheckQuality {
				if report, ierr := inspectFile(sa, file); ierr != nil {
					out.Error = ierr.Error()
				} else if !report.Ready {
					out.Error = "photo quality is not sufficient"
					out.Guidance = sa.Guidance(report)
					rejected = true
				}
			}
		}

		if out.Error == "" {
			result, err := sa.AnalyzeBytes(ctx, data)
			if err != nil {
				out.Error = err.Error()
			} else {
				out.Display = sa.Present(result)
				if store != nil {
					record(ctx, store, pub, "", history.OriginBatch, result)
				}
			}
		}
		switch {
		case rejected:
			skipped++
		case out.Error != "":
			failed++
			logger.Warn("Analysis failed", zap.String("file", file), zap.String("error", out.Error))
		default:
			ok++
		}

		if err := writeJSON(utils.OutputPath(file, batchOutDir, ".analysis", "json"), out); err != nil {
			return err
		}
		bar.Add(1)
	}
	bar.Finish()

	fmt.Fprintf(os.Stderr, "Analyzed %d, skipped %d, failed %d of %d photos (%s) in %s\n",
		ok, skipped, failed, len(files), utils.FormatFileSize(totalBytes), time.Since(start).Round(time.Millisecond))
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func inspectFile(sa *skinanalyzer.SkinAnalyzer, file string) (analyzer.Report, error) {
	img, err := sa.LoadImage(file)
	if err != nil {
		return analyzer.Report{}, types.InvalidImagef("%v", err)
	}
	return sa.Inspect(img)
}

func writeJSON(path string, v interface{}) error {
	js, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, js, 0o644)
}
