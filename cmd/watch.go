package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/srt-watcher/internal/config"
	"github.com/example/srt-watcher/internal/itinerary"
	"github.com/example/srt-watcher/internal/logbuf"
	"github.com/example/srt-watcher/internal/monitor"
)

func newWatchCmd() *cobra.Command {
	raw := itinerary.Raw{
		Origin:      "동탄",
		Destination: "동대구",
		Hour:        "18",
		FromTrain:   1,
		ToTrain:     3,
		Seats:       "both",
	}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch one itinerary from the terminal, no control panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.CheckScrape(); err != nil {
				return err
			}

			q, err := itinerary.Validate(raw)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logs := logbuf.New(500)
			log := slog.New(logs.Handler(slog.NewTextHandler(os.Stderr, nil)))
			slog.SetDefault(log)

			sched := monitor.New(
				monitor.Config{
					PollInterval:   cfg.PollInterval,
					BackoffMax:     cfg.BackoffMax,
					FailureCeiling: cfg.FailureCeiling,
					AutoBook:       cfg.AutoBook,
					Standby:        cfg.Standby,
				},
				scrapeFactory(cfg, log),
				newNotifier(cfg, log),
				nil,
				log,
			)
			if err := sched.Start(q); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				_ = sched.Stop()
				<-sched.Done()
			case <-sched.Done():
			}

			st := sched.Status()
			if st.Status == monitor.StatusFailed {
				return fmt.Errorf("watch failed: %s", st.LastError)
			}
			log.Info("watch ended", "status", st.Status, "checks", st.Checks)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&raw.Origin, "from", raw.Origin, "departure station")
	f.StringVar(&raw.Destination, "to", raw.Destination, "arrival station")
	f.StringVar(&raw.Date, "date", raw.Date, "travel date (YYYYMMDD)")
	f.StringVar(&raw.Hour, "hour", raw.Hour, "departure hour, even (00..22)")
	f.IntVar(&raw.FromTrain, "first", raw.FromTrain, "first result row to watch (1-10)")
	f.IntVar(&raw.ToTrain, "last", raw.ToTrain, "last result row to watch (1-10)")
	f.StringVar(&raw.Seats, "seats", raw.Seats, "seat preference: standard, special or both")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}
