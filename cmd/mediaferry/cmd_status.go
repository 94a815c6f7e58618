package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusReuseSession bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read the source library summary (item counts and total size)",
	Long: `Signs in to the source service and reads the account's library summary:
how many photos and videos it holds and how large the library is. Useful
before a transfer to know what the baseline should grow toward.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusReuseSession, "reuse-session", true, "Reuse a stored browser session when still fresh")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	counts, err := app.orch.CheckSourceStatus(ctx, statusReuseSession)
	if err != nil {
		return err
	}

	fmt.Printf("Source library: %d photos, %d videos, %.1f GB total\n",
		counts.Photos, counts.Videos, counts.TotalSizeGB)
	return nil
}
