package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediaferry/internal/transfer"
)

var (
	startReuseSession bool
	startConfirm      bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Initiate a transfer and capture the destination baseline",
	Long: `Signs in to both services, records the destination's current storage usage
as the transfer baseline, then walks the source service's transfer-setup
flow: destination selection, content types, the OAuth consent handoff, and
the final confirmation page.

Without --confirm the run stops at the confirmation page and leaves the
irreversible commit to you; the transfer record stays pending.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startReuseSession, "reuse-session", true, "Reuse stored browser sessions when still fresh")
	startCmd.Flags().BoolVar(&startConfirm, "confirm", false, "Click the final confirmation instead of deferring it")
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.orch.StartTransfer(ctx, startReuseSession, startConfirm)
	if err != nil {
		if res.TransferID != "" {
			fmt.Printf("Transfer %s did not finish initiation; rerun start to retry.\n", res.TransferID)
		}
		return err
	}

	fmt.Printf("Transfer %s\n", res.TransferID)
	fmt.Printf("  Source: %d photos, %d videos, %.1f GB\n",
		res.Counts.Photos, res.Counts.Videos, res.Counts.TotalSizeGB)
	fmt.Printf("  Baseline: %.2f GB in destination photos\n", res.Baseline.PhotosGB)

	if res.Outcome == transfer.OutcomeInitiated {
		fmt.Println("  Initiated. Check progress daily; content usually surfaces around day 4.")
	} else {
		fmt.Println("  Awaiting confirmation. Rerun with --confirm to commit the transfer.")
	}
	return nil
}
