package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"daily-leaderboard-service/internal/app"
	"daily-leaderboard-service/internal/config"
	"github.com/spf13/cobra"
)

// NewReplayCmd rebuilds a day from the ledger and reports drift against the stored aggregates.
func NewReplayCmd(configPath *string) *cobra.Command {
	var date string
	var limit int
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Recompute a day's leaderboard from the event ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			backend, err := buildBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer backend.Close()
			return runReplay(cmd.Context(), backend.service, date, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to replay (YYYY-MM-DD, defaults to today)")
	cmd.Flags().IntVar(&limit, "limit", 10, "leaderboard rows to print")
	return cmd
}

type replayReport struct {
	Date        string      `json:"date"`
	Users       int         `json:"users"`
	Leaderboard any         `json:"leaderboard"`
	Drift       []app.Drift `json:"drift"`
}

func runReplay(ctx context.Context, service *app.LeaderboardService, date string, limit int, out io.Writer) error {
	day := service.Today()
	if date != "" {
		parsed, err := service.Policy().ParseDayKey(date)
		if err != nil {
			return err
		}
		day = parsed
	}

	replayed, err := service.ReplayDay(ctx, day)
	if err != nil {
		return fmt.Errorf("replay %s: %w", day, err)
	}
	drift, err := service.VerifyDay(ctx, day)
	if err != nil {
		return fmt.Errorf("verify %s: %w", day, err)
	}
	lb, err := service.GetDailyLeaderboard(ctx, day, limit)
	if err != nil {
		return err
	}
	if drift == nil {
		drift = []app.Drift{}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(replayReport{
		Date:        day.String(),
		Users:       len(replayed),
		Leaderboard: lb.Leaderboard,
		Drift:       drift,
	})
}
