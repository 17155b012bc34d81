package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/penwyp/ScreenCat/models"
	"github.com/penwyp/ScreenCat/output"
)

var (
	reportDate    string
	reportNoColor bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show daily, weekly and monthly usage per category",
	Long: `Show the category totals of one date with an hour-by-hour bar, followed by the
weekly and monthly averages and reward/punishment counts of the periods that
contain it.`,
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

		loc := app.Location()
		date := reportDate
		if date == "" {
			date = time.Now().In(loc).Format(models.DateLayout)
		}
		if _, err := models.ParseDate(date, loc); err != nil {
			return err
		}

		data, err := output.LoadReport(app.Store(), date, loc)
		if err != nil {
			return err
		}
		width, styled := output.DetectTerminal(os.Stdout)
		if reportNoColor {
			styled = false
		}
		fmt.Print(output.NewRenderer(app.Catalog(), width, styled).Render(data))
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportDate, "date", "d", "", "date to report (YYYY-MM-DD, default today)")
	reportCmd.Flags().BoolVar(&reportNoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(reportCmd)
}
