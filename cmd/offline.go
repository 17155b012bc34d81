package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/penwyp/ScreenCat/output"
)

// offlineTimeLayout is how start and end are given on the command line
const offlineTimeLayout = "2006-01-02 15:04"

var offlineCmd = &cobra.Command{
	Use:   "offline <name> <category-id> <start> <end>",
	Short: "Record an activity done away from the device",
	Long: `Record a manual offline activity such as reading or exercise. It is stored as a
session flagged offline and counted in the category's totals.

Start and end use the form "YYYY-MM-DD HH:MM" in the configured timezone.

Example:
  screencat offline reading 4 "2024-03-09 20:00" "2024-03-09 21:15"`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		categoryID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid category id %q: %w", args[1], err)
		}

		app, err := openApplication(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := app.Close(); err == nil {
				err = closeErr
			}
		}()

		loc := app.Location()
		start, err := time.ParseInLocation(offlineTimeLayout, args[2], loc)
		if err != nil {
			return fmt.Errorf("invalid start %q: %w", args[2], err)
		}
		end, err := time.ParseInLocation(offlineTimeLayout, args[3], loc)
		if err != nil {
			return fmt.Errorf("invalid end %q: %w", args[3], err)
		}

		session, err := app.RecordOffline(args[0], categoryID, start, end)
		if err != nil {
			return fmt.Errorf("failed to record offline activity: %w", err)
		}
		fmt.Printf("Recorded %s in %s on %s (%s)\n", args[0], app.Catalog().CategoryName(categoryID),
			session.Date, output.FormatDuration(session.DurationSeconds))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(offlineCmd)
}
