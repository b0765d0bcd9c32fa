package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/menta2k/skin-analyzer/internal/utils"
	"github.com/menta2k/skin-analyzer/pkg/analyzer"
)

var (
	evaluateOverlayDir string
	evaluateJSON       bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <image|url>...",
	Short: "Grade lighting and face placement of photos without analyzing them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateOverlayDir, "overlay-dir", "", "write guide overlays to this directory")
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "print reports as JSON lines")
	rootCmd.AddCommand(evaluateCmd)
}

// evaluation is one line of JSON output
type evaluation struct {
	Source string `json:"source"`
	analyzer.Report
	Guidance []string `json:"guidance"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	sa, err := newPipeline()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	if !evaluateJSON {
		fmt.Fprintln(w, "SOURCE\tSIZE\tLIGHTING\tPOSITION\tLIGHT\tCOVERAGE\tGUIDANCE")
	}
	enc := json.NewEncoder(os.Stdout)

	failed := 0
	for _, src := range args {
		img, err := sa.Processor().LoadImageSmart(cmd.Context(), src)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", src, err)
			failed++
			continue
		}
		report, err := sa.Inspect(img)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", src, err)
			failed++
			continue
		}
		guidance := sa.Guidance(report)

		if evaluateOverlayDir != "" {
			out := utils.OutputPath(src, evaluateOverlayDir, ".guide", "png")
			if err := saveOverlay(sa.Processor(), sa.Overlay(img, report.Verdict), out); err != nil {
				return err
			}
		}

		if evaluateJSON {
			if err := enc.Encode(evaluation{Source: src, Report: report, Guidance: guidance}); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(w, "%s\t%dx%d\t%s\t%s\t%.2f\t%.2f\t%s\n",
			src, report.Info.Width, report.Info.Height,
			report.Verdict.Lighting, report.Verdict.Position,
			report.Sample.LightingScore, report.Sample.FaceCoverageRatio,
			strings.Join(guidance, "; "))
	}
	w.Flush()

	if failed > 0 {
		return fmt.Errorf("%d of %d images could not be evaluated", failed, len(args))
	}
	return nil
}
