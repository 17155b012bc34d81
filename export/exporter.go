package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

// Supported formats
const (
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
)

// CSV tables
const (
	TableSessions = "sessions"
	TableDaily    = "daily"
	TablePeriods  = "periods"
)

// Options contains export configuration
type Options struct {
	Format     string
	Table      string // csv only
	From       string
	To         string
	OutputFile string
}

// Result contains the results of an export operation
type Result struct {
	OutputFile string
	Format     string
	Sessions   int
	Daily      int
	Periods    int
	FileSize   int64
	Duration   time.Duration
}

// Exporter provides data export functionality
type Exporter struct {
	repo   Repository
	loc    *time.Location
	logger logging.LoggerInterface
}

// NewExporter creates a new exporter instance
func NewExporter(repo Repository, loc *time.Location, logger logging.LoggerInterface) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Exporter{repo: repo, loc: loc, logger: logger}
}

// Export writes the requested range in the requested format
func (e *Exporter) Export(ctx context.Context, options Options) (*Result, error) {
	startTime := time.Now()
	if options.OutputFile == "" {
		return nil, fmt.Errorf("output file is required")
	}

	ds, err := LoadDataset(e.repo, options.From, options.To, e.loc)
	if err != nil {
		return nil, err
	}

	switch options.Format {
	case FormatCSV:
		err = e.exportCSV(ds, options)
	case FormatJSON:
		err = e.exportJSON(ds, options)
	case FormatSQLite:
		err = e.exportSQLite(ctx, ds, options)
	default:
		err = fmt.Errorf("unsupported export format: %s", options.Format)
	}
	if err != nil {
		return nil, err
	}

	fileInfo, err := os.Stat(options.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	result := &Result{
		OutputFile: options.OutputFile,
		Format:     options.Format,
		Sessions:   len(ds.Sessions),
		Daily:      len(ds.Daily),
		Periods:    len(ds.Periods),
		FileSize:   fileInfo.Size(),
		Duration:   time.Since(startTime),
	}
	e.logger.Infof("Export completed: format=%s sessions=%d daily=%d periods=%d bytes=%d",
		result.Format, result.Sessions, result.Daily, result.Periods, result.FileSize)
	return result, nil
}

func (e *Exporter) exportCSV(ds *Dataset, options Options) error {
	file, err := createOutputFile(options.OutputFile)
	if err != nil {
		return err
	}
	defer file.Close()

	table := options.Table
	if table == "" {
		table = TableSessions
	}
	return WriteCSV(file, ds, table, e.loc)
}

// WriteCSV writes one table of ds as CSV
func WriteCSV(w io.Writer, ds *Dataset, table string, loc *time.Location) error {
	writer := csv.NewWriter(w)

	var header []string
	var records [][]string
	switch table {
	case TableSessions:
		header = []string{"ID", "Date", "Package", "Category", "Start", "End", "Duration Seconds", "Offline"}
		for _, s := range ds.Sessions {
			records = append(records, []string{
				strconv.FormatUint(s.ID, 10),
				s.Date,
				s.Package,
				strconv.FormatInt(s.CategoryID, 10),
				time.UnixMilli(s.StartTime).In(loc).Format(models.DisplayTimeFormat),
				time.UnixMilli(s.EndTime).In(loc).Format(models.DisplayTimeFormat),
				strconv.FormatInt(s.DurationSeconds, 10),
				strconv.FormatBool(s.Offline),
			})
		}
	case TableDaily:
		header = []string{"Date", "Category", "Total Seconds"}
		for _, d := range ds.Daily {
			records = append(records, []string{d.Date, strconv.FormatInt(d.CategoryID, 10), strconv.FormatInt(d.TotalSeconds, 10)})
		}
	case TablePeriods:
		header = []string{"Kind", "Period", "Category", "Total Seconds", "Days", "Average Daily Seconds"}
		for _, p := range ds.Periods {
			records = append(records, []string{
				string(p.Kind),
				p.PeriodKey,
				strconv.FormatInt(p.CategoryID, 10),
				strconv.FormatInt(p.TotalSeconds, 10),
				strconv.Itoa(p.DayCount),
				strconv.FormatInt(p.AverageDailySeconds, 10),
			})
		}
	default:
		return fmt.Errorf("unknown csv table: %s", table)
	}

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write CSV records: %w", err)
	}
	return nil
}

func (e *Exporter) exportJSON(ds *Dataset, options Options) error {
	data, err := sonic.ConfigStd.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	file, err := createOutputFile(options.OutputFile)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON data: %w", err)
	}
	return nil
}

func (e *Exporter) exportSQLite(ctx context.Context, ds *Dataset, options Options) error {
	projector, err := NewSQLiteProjector(options.OutputFile)
	if err != nil {
		return err
	}
	defer projector.Close()
	return projector.Project(ctx, ds)
}

func createOutputFile(filename string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return file, nil
}
