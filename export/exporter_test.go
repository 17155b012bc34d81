package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/ScreenCat/calculations"
	"github.com/penwyp/ScreenCat/models"
	"github.com/penwyp/ScreenCat/store"
)

type oneCategory struct{}

func (oneCategory) CategoryOf(string) int64 { return 1 }
func (oneCategory) IsExcludedPackage(string) bool { return false }
func (oneCategory) IsExcludedCategory(int64) bool { return false }

func ms(s string) int64 {
	t, err := time.ParseInLocation(models.DisplayTimeFormat, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t.UnixMilli()
}

func seededExporter(t *testing.T) *Exporter {
	t.Helper()
	s, err := store.OpenInMemory(time.UTC, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for _, in := range []store.SessionInput{
		{Package: "com.a", CategoryID: 1, Start: ms("2024-03-04 09:00:00"), End: ms("2024-03-04 10:00:00")},
		{Package: "com.b", CategoryID: 1, Start: ms("2024-03-05 09:00:00"), End: ms("2024-03-05 09:30:00")},
	} {
		_, err := s.UpsertSessionSmart(in)
		require.NoError(t, err)
	}

	engine := calculations.NewEngine(s, oneCategory{}, time.UTC, nil)
	require.NoError(t, engine.RecomputeDates([]string{"2024-03-04", "2024-03-05"}, "2024-03-05"))
	require.NoError(t, engine.RecomputePeriodsFor([]string{"2024-03-05"}, "2024-03-05"))

	return NewExporter(s, time.UTC, nil)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExportCSV(t *testing.T) {
	e := seededExporter(t)
	dir := t.TempDir()

	tests := []struct {
		table string
		rows  int
	}{
		{TableSessions, 2},
		{TableDaily, 4}, // category 1 plus the aggregate row per day
		{TablePeriods, 4},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			out := filepath.Join(dir, tt.table+".csv")
			result, err := e.Export(context.Background(), Options{
				Format: FormatCSV, Table: tt.table, From: "2024-03-04", To: "2024-03-05", OutputFile: out,
			})
			require.NoError(t, err)
			assert.Positive(t, result.FileSize)

			records := readCSV(t, out)
			assert.Len(t, records, tt.rows+1)
		})
	}

	records := readCSV(t, filepath.Join(dir, TableSessions+".csv"))
	assert.Equal(t, []string{"1", "2024-03-04", "com.a", "1", "2024-03-04 09:00:00", "2024-03-04 10:00:00", "3600", "false"}, records[1])
}

func TestExportJSON(t *testing.T) {
	e := seededExporter(t)
	out := filepath.Join(t.TempDir(), "out", "usage.json")

	result, err := e.Export(context.Background(), Options{Format: FormatJSON, From: "2024-03-04", To: "2024-03-05", OutputFile: out})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sessions)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var ds Dataset
	require.NoError(t, sonic.Unmarshal(raw, &ds))
	assert.Equal(t, "2024-03-04", ds.From)
	assert.Len(t, ds.Sessions, 2)
	assert.Len(t, ds.Daily, 4)

	var weekly *models.PeriodSummary
	for i := range ds.Periods {
		p := ds.Periods[i]
		if p.Kind == models.PeriodWeekly && p.CategoryID == 1 {
			weekly = &ds.Periods[i]
		}
	}
	require.NotNil(t, weekly)
	assert.Equal(t, int64(5400), weekly.TotalSeconds)
	assert.Equal(t, int64(2700), weekly.AverageDailySeconds)
}

func TestExportSQLiteIsIdempotent(t *testing.T) {
	e := seededExporter(t)
	out := filepath.Join(t.TempDir(), "usage.db")
	opts := Options{Format: FormatSQLite, From: "2024-03-04", To: "2024-03-05", OutputFile: out}

	for i := 0; i < 2; i++ {
		_, err := e.Export(context.Background(), opts)
		require.NoError(t, err)
	}

	p, err := NewSQLiteProjector(out)
	require.NoError(t, err)
	defer p.Close()

	for table, want := range map[string]int{
		"usage_sessions":   2,
		"daily_summaries":  4,
		"period_summaries": 4,
	} {
		n, err := p.Count(context.Background(), table)
		require.NoError(t, err)
		assert.Equal(t, want, n, table)
	}
	_, err = p.Count(context.Background(), "sqlite_master; DROP TABLE usage_sessions")
	assert.Error(t, err)
}

func TestExportRejectsBadOptions(t *testing.T) {
	e := seededExporter(t)
	dir := t.TempDir()

	_, err := e.Export(context.Background(), Options{Format: "xlsx", From: "2024-03-04", To: "2024-03-05", OutputFile: filepath.Join(dir, "x")})
	assert.Error(t, err)

	_, err = e.Export(context.Background(), Options{Format: FormatCSV, From: "2024-03-04", To: "2024-03-05"})
	assert.Error(t, err)

	_, err = e.Export(context.Background(), Options{Format: FormatCSV, Table: "hours", From: "2024-03-04", To: "2024-03-05", OutputFile: filepath.Join(dir, "h.csv")})
	assert.Error(t, err)
}
