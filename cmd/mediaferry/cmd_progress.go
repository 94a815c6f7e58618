package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediaferry/internal/store"
)

var progressDay int

var progressCmd = &cobra.Command{
	Use:   "progress [transfer-id]",
	Short: "Capture a snapshot and estimate transfer progress",
	Long: `Reads the destination's current storage usage, stores it as a day-indexed
snapshot, and estimates percent-complete from growth over the baseline.
The day number is inferred from time since the baseline unless --day is
given. Estimates are recomputed on every check; only snapshots persist.`,
	Args: cobra.ExactArgs(1),
	RunE: runProgress,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known transfers",
	RunE:  runList,
}

func init() {
	progressCmd.Flags().IntVar(&progressDay, "day", 0, "Override the day number (default: inferred from elapsed time)")
}

func runProgress(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	est, err := app.orch.CheckProgress(ctx, args[0], progressDay)
	if err != nil {
		return err
	}

	fmt.Println(est.Message)
	fmt.Printf("  Growth: %.2f GB, estimated %d photos / %d videos transferred\n",
		est.GrowthGB, est.EstimatedPhotos, est.EstimatedVideos)
	if est.RateGBPerDay > 0 {
		fmt.Printf("  Rate: %.2f GB/day", est.RateGBPerDay)
		if est.DaysRemaining >= 0 {
			fmt.Printf(", ~%d days remaining (day %d)", est.DaysRemaining, est.ProjectedCompletionDay)
		}
		fmt.Println()
	}
	return nil
}

// runList reads straight from the store: no browser needed to list records.
func runList(cmd *cobra.Command, args []string) error {
	st, err := store.New(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	transfers, err := st.ListTransfers()
	if err != nil {
		return err
	}
	if len(transfers) == 0 {
		fmt.Println("No transfers recorded.")
		return nil
	}
	for _, t := range transfers {
		fmt.Printf("%s  %-12s  %d photos / %d videos / %.1f GB  started %s\n",
			t.ID, t.Status, t.SourcePhotos, t.SourceVideos, t.SourceTotalGB,
			t.InitiatedAt.Format("2006-01-02"))
	}
	return nil
}
