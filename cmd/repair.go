package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Remove duplicate sessions and overflowing buckets, backfill missing days",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		app, err := openApplication(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := app.Close(); err == nil {
				err = closeErr
			}
		}()

		report, err := app.Repair(cmd.Context())
		if err != nil {
			return fmt.Errorf("repair failed: %w", err)
		}
		fmt.Printf("Duplicates removed: %d\n", report.Duplicates)
		fmt.Printf("Overflowing buckets removed: %d\n", report.Overflows)
		fmt.Printf("Days backfilled: %d\n", len(report.Backfilled))
		if len(report.Purged) > 0 {
			fmt.Printf("Days purged: %d\n", len(report.Purged))
		}
		return nil
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rebuild daily summaries missing from the look-back window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		app, err := openApplication(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := app.Close(); err == nil {
				err = closeErr
			}
		}()

		dates, skipped, err := app.Backfill(cmd.Context())
		if err != nil {
			return fmt.Errorf("backfill failed: %w", err)
		}
		if skipped {
			fmt.Println("Another backfill is already running")
			return nil
		}
		if len(dates) == 0 {
			fmt.Println("Nothing to backfill")
			return nil
		}
		fmt.Printf("Backfilled: %s\n", strings.Join(dates, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(backfillCmd)
}
