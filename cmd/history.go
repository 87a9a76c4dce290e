package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/srt-watcher/internal/config"
	"github.com/example/srt-watcher/internal/db"
	"github.com/example/srt-watcher/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent poll attempts from the history store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set; the history store is disabled")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			rows, err := history.NewRepo(d, nil).RecentAttempts(ctx, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "AT\tOK\tOPENINGS\tFAILURES\tERROR")
			for _, a := range rows {
				fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%s\n",
					a.At.Local().Format(time.RFC3339), a.OK, a.Openings, a.Failures, a.Err)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of attempts to list")
	return cmd
}
