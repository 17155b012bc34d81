package calculations

import (
	"fmt"
	"sort"
	"time"

	"github.com/penwyp/ScreenCat/models"
)

// RewardRollup 奖惩完成次数统计
type RewardRollup struct {
	repo Repository
	loc  *time.Location
}

// NewRewardRollup creates a reward rollup
func NewRewardRollup(repo Repository, loc *time.Location) *RewardRollup {
	if loc == nil {
		loc = time.Local
	}
	return &RewardRollup{repo: repo, loc: loc}
}

// Rollup counts, per category, the days in the period up to evalDate that
// offered a reward (goal met) or a punishment (goal missed), and how many of
// those were fulfilled.
func (r *RewardRollup) Rollup(kind models.PeriodKind, evalDate string) ([]models.RewardPunishmentPeriod, error) {
	key, first, last, err := models.PeriodBounds(kind, evalDate, r.loc)
	if err != nil {
		return nil, err
	}
	last = min(last, evalDate)

	dailies, err := r.repo.RewardDailiesInRange(first, last)
	if err != nil {
		return nil, fmt.Errorf("load reward flags %s..%s: %w", first, last, err)
	}

	counts := make(map[int64]*models.RewardPunishmentPeriod)
	for _, d := range dailies {
		row, ok := counts[d.CategoryID]
		if !ok {
			row = &models.RewardPunishmentPeriod{Kind: kind, PeriodKey: key, CategoryID: d.CategoryID}
			counts[d.CategoryID] = row
		}
		if d.GoalMet {
			row.TotalRewardCount++
			if d.RewardDone {
				row.DoneRewardCount++
			}
			continue
		}
		row.TotalPunishCount++
		if d.PunishDone {
			row.DonePunishCount++
		}
	}

	out := make([]models.RewardPunishmentPeriod, 0, len(counts))
	for _, row := range counts {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })

	if err := r.repo.ReplaceRewardPeriods(kind, key, out); err != nil {
		return nil, fmt.Errorf("replace %s reward counts for %s: %w", kind, key, err)
	}
	return out, nil
}
