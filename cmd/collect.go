package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection pass and exit",
	Long: `Pull every event since the last watermark, rebuild the affected hour buckets,
daily totals and weekly/monthly averages, run the consistency checks and flush
applications that are still in the foreground.`,
	Args: cobra.NoArgs,
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

		result, err := app.Collect(cmd.Context())
		if err != nil {
			return fmt.Errorf("collection failed: %w", err)
		}
		for _, stageErr := range result.Errors {
			cmd.PrintErrf("warning: %v\n", stageErr)
		}
		fmt.Printf("Collected in %s, cleanup=%t\n", result.Duration.Round(time.Millisecond), result.Cleaned)
		if len(result.Dates) > 0 {
			fmt.Printf("Updated dates: %s\n", strings.Join(result.Dates, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
}
