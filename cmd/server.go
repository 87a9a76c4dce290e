package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/srt-watcher/internal/auth"
	"github.com/example/srt-watcher/internal/config"
	"github.com/example/srt-watcher/internal/db"
	"github.com/example/srt-watcher/internal/history"
	"github.com/example/srt-watcher/internal/logbuf"
	"github.com/example/srt-watcher/internal/migrate"
	"github.com/example/srt-watcher/internal/monitor"
	"github.com/example/srt-watcher/internal/notify"
	"github.com/example/srt-watcher/internal/srt"
	"github.com/example/srt-watcher/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the control panel + watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.CheckScrape(); err != nil {
				return err
			}
			if err := cfg.CheckWeb(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logs := logbuf.New(500)
			log := slog.New(logs.Handler(slog.NewTextHandler(os.Stderr, nil)))
			slog.SetDefault(log)

			var recorder monitor.Recorder
			if cfg.DatabaseURL != "" {
				d, err := db.Open(ctx, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer d.Close()
				if err := d.Ping(ctx); err != nil {
					return fmt.Errorf("db ping: %w", err)
				}
				if migrateUp {
					if err := migrate.Up(ctx, d); err != nil {
						return err
					}
				}
				recorder = history.NewRepo(d, log)
			}

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
				recorder,
				log,
			)
			defer func() {
				_ = sched.Stop()
				<-sched.Done()
			}()

			authStore := auth.NewStore(cfg.CookieHashKey, cfg.CookieBlockKey, cfg.PanelPasswordHash)
			ws := &web.Server{Auth: authStore, Scheduler: sched, Logs: logs}
			log.Info("control panel listening", "addr", cfg.ListenAddr)
			return web.Start(ctx, cfg.ListenAddr, ws.Routes())
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup (when DATABASE_URL is set)")
	return cmd
}

func scrapeFactory(cfg config.Config, log *slog.Logger) monitor.ScrapeFactory {
	return func(ctx context.Context) (monitor.ScrapeClient, error) {
		return srt.Launch(ctx, srt.Config{
			MemberNumber: cfg.MemberNumber,
			Password:     cfg.Password,
			Headless:     cfg.Headless,
		}, log)
	}
}

func newNotifier(cfg config.Config, log *slog.Logger) monitor.Notifier {
	var transport notify.Transport
	if cfg.WebhookURL != "" {
		transport = notify.NewDiscordWebhook(cfg.WebhookURL)
	}
	return notify.NewDispatcher(transport, log)
}
