package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/penwyp/ScreenCat/export"
	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

var (
	exportFormat    string
	exportTable     string
	exportRange     string
	exportFrom      string
	exportTo        string
	exportOverwrite bool
)

var exportCmd = &cobra.Command{
	Use:   "export [flags] <output-file>",
	Short: "Export usage data to CSV, JSON or SQLite",
	Long: `Export sessions, daily totals and weekly/monthly averages for a date range.

Supported export formats:
  csv     - one table per file, chosen with --table (sessions, daily, periods)
  json    - every table in one document
  sqlite  - every table, upserted into an SQLite database; exporting again updates rows in place

Time ranges:
  today   - Today only
  week    - The last 7 days (default)
  month   - The last 30 days
  --from/--to override the range with explicit YYYY-MM-DD dates

Examples:
  screencat export usage.csv
  screencat export --table daily --range month daily.csv
  screencat export --format json --from 2024-03-01 --to 2024-03-31 march.json
  screencat export --format sqlite usage.db`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		outputFile := args[0]
		format := detectFormat(exportFormat, cmd.Flags().Changed("format"), outputFile)

		// SQLite exports upsert, so an existing database is expected
		if format != export.FormatSQLite {
			if err := validateOutputFile(outputFile, exportOverwrite); err != nil {
				return err
			}
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
		today := time.Now().In(loc).Format(models.DateLayout)
		from, to, err := resolveRange(exportRange, exportFrom, exportTo, today, loc)
		if err != nil {
			return fmt.Errorf("invalid export range: %w", err)
		}

		exporter := export.NewExporter(app.Store(), loc, logging.GetGlobalLogger())
		result, err := exporter.Export(cmd.Context(), export.Options{
			Format:     format,
			Table:      exportTable,
			From:       from,
			To:         to,
			OutputFile: outputFile,
		})
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		// Print export summary
		fmt.Printf("Export completed successfully:\n")
		fmt.Printf("  Output file: %s\n", result.OutputFile)
		fmt.Printf("  Format: %s\n", result.Format)
		fmt.Printf("  Range: %s to %s\n", from, to)
		fmt.Printf("  Sessions: %d, daily rows: %d, period rows: %d\n", result.Sessions, result.Daily, result.Periods)
		fmt.Printf("  File size: %d bytes\n", result.FileSize)
		fmt.Printf("  Export duration: %v\n", result.Duration)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", export.FormatCSV, "export format (csv, json, sqlite)")
	exportCmd.Flags().StringVarP(&exportTable, "table", "t", export.TableSessions, "table for csv exports (sessions, daily, periods)")
	exportCmd.Flags().StringVarP(&exportRange, "range", "r", "week", "time range (today, week, month)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "first date (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "last date (YYYY-MM-DD)")
	exportCmd.Flags().BoolVar(&exportOverwrite, "overwrite", false, "overwrite existing files")

	rootCmd.AddCommand(exportCmd)
}

// detectFormat picks the format from the file extension unless --format was given
func detectFormat(flagValue string, explicit bool, outputFile string) string {
	if explicit {
		return strings.ToLower(flagValue)
	}
	switch strings.ToLower(filepath.Ext(outputFile)) {
	case ".json":
		return export.FormatJSON
	case ".db", ".sqlite", ".sqlite3":
		return export.FormatSQLite
	default:
		return strings.ToLower(flagValue)
	}
}

// resolveRange turns a named range or explicit dates into an inclusive date span
func resolveRange(name, from, to, today string, loc *time.Location) (string, string, error) {
	if from != "" || to != "" {
		if from == "" {
			from = to
		}
		if to == "" {
			to = today
		}
		for _, d := range []string{from, to} {
			if _, err := models.ParseDate(d, loc); err != nil {
				return "", "", err
			}
		}
		if from > to {
			return "", "", fmt.Errorf("from %s is after to %s", from, to)
		}
		return from, to, nil
	}

	var days int
	switch strings.ToLower(name) {
	case "today":
		days = 1
	case "week":
		days = 7
	case "month":
		days = 30
	default:
		return "", "", fmt.Errorf("unknown range %q (valid options: today, week, month)", name)
	}
	first, err := models.AddDays(today, -(days - 1), loc)
	if err != nil {
		return "", "", err
	}
	return first, today, nil
}

func validateOutputFile(outputFile string, overwrite bool) error {
	// Check if file already exists
	if _, err := os.Stat(outputFile); err == nil && !overwrite {
		return fmt.Errorf("file already exists: %s (use --overwrite to replace)", outputFile)
	}

	// Check if directory exists
	dir := filepath.Dir(outputFile)
	if dir != "" && dir != "." {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", dir)
		}
	}
	return nil
}
