package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/penwyp/ScreenCat/models"
)

// Repository is the read side of the store used by reports
type Repository interface {
	DailySummariesForDate(date string) ([]models.DailySummary, error)
	HourBucketsForDate(date string) ([]models.HourBucket, error)
	PeriodSummaries(kind models.PeriodKind, key string) ([]models.PeriodSummary, error)
	RewardPeriods(kind models.PeriodKind, key string) ([]models.RewardPunishmentPeriod, error)
}

// CategoryNamer resolves display names
type CategoryNamer interface {
	CategoryName(id int64) string
}

// PeriodReport holds the rollups of one week or month
type PeriodReport struct {
	Kind    models.PeriodKind
	Key     string
	Rows    []models.PeriodSummary
	Rewards []models.RewardPunishmentPeriod
}

// ReportData is everything shown for one date
type ReportData struct {
	Date    string
	Daily   []models.DailySummary
	Hours   map[int64][models.HoursPerDay]int64
	Periods []PeriodReport
}

// LoadReport gathers the report for date
func LoadReport(repo Repository, date string, loc *time.Location) (*ReportData, error) {
	data := &ReportData{Date: date, Hours: make(map[int64][models.HoursPerDay]int64)}

	daily, err := repo.DailySummariesForDate(date)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily summaries: %w", err)
	}
	data.Daily = daily

	buckets, err := repo.HourBucketsForDate(date)
	if err != nil {
		return nil, fmt.Errorf("failed to load hour buckets: %w", err)
	}
	for _, b := range buckets {
		if b.Hour < 0 || b.Hour >= models.HoursPerDay {
			continue
		}
		hours := data.Hours[b.CategoryID]
		hours[b.Hour] += b.DurationSeconds
		data.Hours[b.CategoryID] = hours
	}

	for _, kind := range []models.PeriodKind{models.PeriodWeekly, models.PeriodMonthly} {
		key, _, _, err := models.PeriodBounds(kind, date, loc)
		if err != nil {
			return nil, err
		}
		rows, err := repo.PeriodSummaries(kind, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s summary: %w", kind, err)
		}
		rewards, err := repo.RewardPeriods(kind, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s rewards: %w", kind, err)
		}
		data.Periods = append(data.Periods, PeriodReport{Kind: kind, Key: key, Rows: rows, Rewards: rewards})
	}
	return data, nil
}

// DetectTerminal returns the width of f and whether styled output suits it
func DetectTerminal(f *os.File) (int, bool) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 100, false
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return 100, true
	}
	return width, true
}

// Renderer draws reports as text tables
type Renderer struct {
	names  CategoryNamer
	width  int
	styled bool

	titleStyle  lipgloss.Style
	headerStyle lipgloss.Style
	barStyle    lipgloss.Style
	faintStyle  lipgloss.Style
	totalStyle  lipgloss.Style
}

// NewRenderer creates a renderer for a terminal of the given width
func NewRenderer(names CategoryNamer, width int, styled bool) *Renderer {
	return &Renderer{
		names:       names,
		width:       width,
		styled:      styled,
		titleStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		headerStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		barStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		faintStyle:  lipgloss.NewStyle().Faint(true),
		totalStyle:  lipgloss.NewStyle().Bold(true),
	}
}

func (r *Renderer) paint(style lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return style.Render(text)
}

// Render formats data
func (r *Renderer) Render(data *ReportData) string {
	var b strings.Builder
	b.WriteString(r.paint(r.titleStyle, "Screen time "+data.Date))
	b.WriteString("\n\n")
	b.WriteString(r.renderDaily(data))
	for _, p := range data.Periods {
		b.WriteString("\n")
		b.WriteString(r.renderPeriod(p))
	}
	return b.String()
}

func (r *Renderer) name(id int64) string {
	if id == models.AggregateCategoryID {
		return "Total"
	}
	if r.names == nil {
		return fmt.Sprintf("category %d", id)
	}
	return r.names.CategoryName(id)
}

func (r *Renderer) nameWidth(ids []int64) int {
	w := len("Category")
	for _, id := range ids {
		w = max(w, runewidth.StringWidth(r.name(id)))
	}
	return min(w, max(r.width/3, 12))
}

func (r *Renderer) renderDaily(data *ReportData) string {
	rows := append([]models.DailySummary(nil), data.Daily...)
	sort.Slice(rows, func(i, j int) bool { return categoryLess(rows[i].CategoryID, rows[j].CategoryID) })

	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.CategoryID
	}
	nw := r.nameWidth(ids)

	var b strings.Builder
	header := fmt.Sprintf("%s  %8s  %s", PadCell("Category", nw), "Total", "0     6     12    18   ")
	b.WriteString(r.paint(r.headerStyle, header))
	b.WriteString("\n")
	if len(rows) == 0 {
		b.WriteString(r.paint(r.faintStyle, "no usage recorded"))
		b.WriteString("\n")
		return b.String()
	}
	for _, row := range rows {
		hours := data.Hours[row.CategoryID]
		line := fmt.Sprintf("%s  %8s  %s", PadCell(r.name(row.CategoryID), nw), FormatDuration(row.TotalSeconds), r.paint(r.barStyle, HourBar(hours)))
		if row.CategoryID == models.AggregateCategoryID {
			line = r.paint(r.totalStyle, line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) renderPeriod(p PeriodReport) string {
	rows := append([]models.PeriodSummary(nil), p.Rows...)
	sort.Slice(rows, func(i, j int) bool { return categoryLess(rows[i].CategoryID, rows[j].CategoryID) })
	rewards := make(map[int64]models.RewardPunishmentPeriod, len(p.Rewards))
	ids := make([]int64, 0, len(rows)+len(p.Rewards))
	for _, row := range rows {
		ids = append(ids, row.CategoryID)
	}
	for _, rw := range p.Rewards {
		rewards[rw.CategoryID] = rw
		ids = append(ids, rw.CategoryID)
	}
	nw := r.nameWidth(ids)

	var b strings.Builder
	title := fmt.Sprintf("%s %s", strings.ToUpper(string(p.Kind[:1]))+string(p.Kind[1:]), p.Key)
	b.WriteString(r.paint(r.titleStyle, title))
	b.WriteString("\n")
	header := fmt.Sprintf("%s  %8s  %4s  %8s  %7s  %7s", PadCell("Category", nw), "Total", "Days", "Avg/day", "Reward", "Punish")
	b.WriteString(r.paint(r.headerStyle, header))
	b.WriteString("\n")
	if len(rows) == 0 {
		b.WriteString(r.paint(r.faintStyle, "no usage recorded"))
		b.WriteString("\n")
		return b.String()
	}
	for _, row := range rows {
		reward, punish := "-", "-"
		if rw, ok := rewards[row.CategoryID]; ok {
			reward = fmt.Sprintf("%d/%d", rw.DoneRewardCount, rw.TotalRewardCount)
			punish = fmt.Sprintf("%d/%d", rw.DonePunishCount, rw.TotalPunishCount)
		}
		line := fmt.Sprintf("%s  %8s  %4d  %8s  %7s  %7s", PadCell(r.name(row.CategoryID), nw),
			FormatDuration(row.TotalSeconds), row.DayCount, FormatDuration(row.AverageDailySeconds), reward, punish)
		if row.CategoryID == models.AggregateCategoryID {
			line = r.paint(r.totalStyle, line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// categoryLess orders real categories by id with the aggregate last
func categoryLess(a, b int64) bool {
	if a == models.AggregateCategoryID {
		return false
	}
	if b == models.AggregateCategoryID {
		return true
	}
	return a < b
}

// PadCell truncates or pads s to exactly width display columns
func PadCell(s string, width int) string {
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

var barLevels = []rune(" ▁▂▃▄▅▆▇█")

// HourBar renders 24 hourly totals as a sparkline, one column per hour
func HourBar(hours [models.HoursPerDay]int64) string {
	var b strings.Builder
	top := int64(len(barLevels) - 1)
	for _, sec := range hours {
		sec = min(max(sec, 0), models.MaxBucketSeconds)
		level := (sec*top + models.MaxBucketSeconds - 1) / models.MaxBucketSeconds
		b.WriteRune(barLevels[level])
	}
	return b.String()
}

// FormatDuration renders seconds as "1h 05m", "12m" or "40s"
func FormatDuration(seconds int64) string {
	switch {
	case seconds >= 3600:
		return fmt.Sprintf("%dh %02dm", seconds/3600, (seconds%3600)/60)
	case seconds >= 60:
		return fmt.Sprintf("%dm", seconds/60)
	default:
		return fmt.Sprintf("%ds", max(seconds, 0))
	}
}
