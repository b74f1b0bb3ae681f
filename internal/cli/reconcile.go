package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"daily-leaderboard-service/internal/app"
	"daily-leaderboard-service/internal/config"
	"github.com/spf13/cobra"
)

// NewReconcileCmd groups operator commands for rejected events.
func NewReconcileCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Inspect answer events rejected outside the writable window",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List parked events",
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
			return listRejected(cmd.Context(), backend.service, limit, cmd.OutOrStdout())
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum events to print (0 for all)")
	cmd.AddCommand(list)
	return cmd
}

func listRejected(ctx context.Context, service *app.LeaderboardService, limit int, out io.Writer) error {
	rejected, err := service.PendingRejections(ctx, limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tUSER\tQUESTION\tANSWERED_AT\tREJECTED_AT\tREASON")
	for _, r := range rejected {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Event.EventID,
			r.Event.UserID,
			r.Event.QuestionID,
			r.Event.AnsweredAt.UTC().Format(time.RFC3339),
			r.RejectedAt.UTC().Format(time.RFC3339),
			r.Reason,
		)
	}
	return w.Flush()
}
