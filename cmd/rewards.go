package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/penwyp/ScreenCat/models"
)

var rewardsCmd = &cobra.Command{
	Use:   "rewards",
	Short: "Manage reward and punishment flags",
}

var rewardsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import daily reward/punishment flags from a JSON file",
	Long: `Import the daily reward/punishment flags computed by an external goal evaluator
and recount the weekly and monthly totals they belong to.

The file holds an array of objects:
  [{"date":"2024-03-04","category_id":1,"goal_met":true,"reward_done":true}]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		rows, err := readRewardFile(args[0])
		if err != nil {
			return err
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

		dates, err := app.ImportRewards(rows)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		fmt.Printf("Imported %d rows covering %d dates\n", len(rows), len(dates))
		if len(dates) > 0 {
			fmt.Printf("Dates: %s\n", strings.Join(dates, ", "))
		}
		return nil
	},
}

func readRewardFile(path string) ([]models.RewardPunishmentDaily, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var rows []models.RewardPunishmentDaily
	if err := sonic.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return rows, nil
}

func init() {
	rewardsCmd.AddCommand(rewardsImportCmd)
	rootCmd.AddCommand(rewardsCmd)
}
