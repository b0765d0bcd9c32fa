package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored analysis results",
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one stored result",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of results to list")
	historyShowCmd.Flags().BoolVar(&historyJSON, "json", false, "print the display model as JSON")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tORIGIN\tSCORE\tSKIN AGE\tPROVIDER\tCREATED")
	fmt.Fprintln(w, "--\t------\t-----\t--------\t--------\t-------")
	for _, e := range entries {
		r := e.Result
		provider := r.Provenance.Provider
		if r.Provenance.FallbackReason != "" {
			provider += " (fallback)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID, e.Origin, r.OverallScore, r.SkinAge, provider, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	sa, err := newPipeline()
	if err != nil {
		return err
	}
	return printResult(sa.Present(e.Result), historyJSON)
}
