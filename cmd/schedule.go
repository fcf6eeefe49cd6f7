package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"github.com/sells-group/geocover/internal/scheduler"
)

var (
	scheduleOpts scrapeFlags
	scheduleHTTP bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Scrape repeatedly on schedule.interval",
	Long:  "Runs a scrape immediately and then every schedule.interval until interrupted. Failed runs are logged and alerted; the loop continues.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		scheduleOpts.apply(cfg)
		if err := cfg.Validate("schedule"); err != nil {
			return err
		}
		interval, err := cfg.Interval()
		if err != nil {
			return err
		}

		env, err := initScrape(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		job := func(ctx context.Context) error {
			_, err := env.Runner.Run(ctx)
			return err
		}
		sched := scheduler.New(interval, job, scheduler.NewAlerter(cfg.Alert))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return sched.Run(gctx) })
		if scheduleHTTP {
			rl, closeRuns, err := openRunLog(ctx)
			if err != nil {
				zap.L().Warn("run log unavailable, /runs disabled", zap.Error(err))
			}
			if closeRuns != nil {
				defer closeRuns()
			}
			g.Go(func() error { return serveHTTP(gctx, cfg.Server.Port, buildRouter(rl, cfg.Server.CORSOrigins)) })
		}
		return g.Wait()
	},
}

func init() {
	f := scheduleCmd.Flags()
	f.StringVar(&scheduleOpts.bbox, "bbox", "", "bounding box ne_lat,ne_lon,sw_lat,sw_lon (default from config)")
	f.IntVar(&scheduleOpts.workers, "workers", 0, "concurrent region queries (default from config)")
	f.StringVar(&scheduleOpts.replay, "replay", "", "serve regions from a YAML or JSON fixture file instead of the live API")
	f.BoolVar(&scheduleHTTP, "http", true, "serve /health, /metrics and /runs on server.port while scheduling")
	rootCmd.AddCommand(scheduleCmd)
}
