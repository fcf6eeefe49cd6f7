package main

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geocover/internal/config"
	"github.com/sells-group/geocover/internal/coverage"
	"github.com/sells-group/geocover/internal/db"
	"github.com/sells-group/geocover/internal/engine"
	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/metrics"
	"github.com/sells-group/geocover/internal/pipeline"
	"github.com/sells-group/geocover/internal/resilience"
	"github.com/sells-group/geocover/internal/runlog"
	"github.com/sells-group/geocover/internal/sink"
	"github.com/sells-group/geocover/internal/source"
	"github.com/sells-group/geocover/pkg/chargepoint"
)

// scrapeFlags override config for a single invocation.
type scrapeFlags struct {
	bbox    string
	workers int
	replay  string
}

func (f scrapeFlags) apply(c *config.Config) {
	if f.bbox != "" {
		c.Scrape.BBox = f.bbox
	}
	if f.workers > 0 {
		c.Scrape.Workers = f.workers
	}
	if f.replay != "" {
		c.Source.ReplayFile = f.replay
	}
}

// scrapeEnv holds a wired Runner and the resources it owns.
type scrapeEnv struct {
	Runner *pipeline.Runner
	Root   geo.Rect
	Sinks  []string

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (e *scrapeEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func (e *scrapeEnv) onClose(fn func()) { e.closers = append(e.closers, fn) }

// initScrape wires source, engine, sinks and run log from c.
func initScrape(ctx context.Context, c *config.Config) (*scrapeEnv, error) {
	root, err := geo.ParseRect(c.Scrape.BBox)
	if err != nil {
		return nil, eris.Wrap(err, "parse scrape.bbox")
	}
	env := &scrapeEnv{Root: root}

	q, err := buildSource(c, env)
	if err != nil {
		env.Close()
		return nil, err
	}

	var pool db.Pool
	if c.Store.DatabaseURL != "" {
		pgPool, err := db.Open(ctx, c.Store.DatabaseURL, db.PoolConfig{MaxConns: c.Store.MaxConns})
		if err != nil {
			env.Close()
			return nil, err
		}
		env.onClose(pgPool.Close)
		pool = pgPool
	}

	sinks, err := buildSinks(c, pool, env)
	if err != nil {
		env.Close()
		return nil, err
	}
	for _, s := range sinks {
		env.Sinks = append(env.Sinks, s.Name())
	}

	retry := resilience.DefaultRetryConfig("sink")
	if c.Export.RetryAttempts > 0 {
		retry.Attempts = c.Export.RetryAttempts
	}

	e := engine.New(q,
		geo.NewPlanner(c.Scrape.LatLimit, c.Scrape.LonLimit),
		coverage.NewEvaluator(c.Scrape.Threshold),
		engine.Options{Workers: c.Scrape.Workers},
	)

	var opts []pipeline.Option
	if pool != nil {
		log := runlog.New(pool)
		if err := log.Migrate(ctx); err != nil {
			env.Close()
			return nil, err
		}
		opts = append(opts, pipeline.WithRunLog(log))
	}

	env.Runner = pipeline.NewRunner(e, root, sink.NewFanout(retry, sinks...), opts...)
	return env, nil
}

// buildSource returns the replay source when a fixture file is configured,
// otherwise the live client behind cache, guard and instrumentation.
func buildSource(c *config.Config, env *scrapeEnv) (source.RegionQuery, error) {
	if c.Source.ReplayFile != "" {
		fixtures, err := source.LoadFixtures(c.Source.ReplayFile)
		if err != nil {
			return nil, err
		}
		zap.L().Info("using replay source",
			zap.String("file", c.Source.ReplayFile),
			zap.Int("fixtures", len(fixtures)),
		)
		return source.NewInstrument(source.NewReplay(fixtures, c.Source.PageSize), "replay"), nil
	}

	client := chargepoint.NewClient(
		chargepoint.WithBaseURL(c.Source.BaseURL),
		chargepoint.WithHTTPClient(&http.Client{Timeout: c.Source.Timeout()}),
		chargepoint.WithRateLimit(c.Source.RateLimit, c.Source.RateBurst),
		chargepoint.WithUserLocation(c.Source.UserLat, c.Source.UserLon),
		chargepoint.WithPageSize(c.Source.PageSize),
	)

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: c.Breaker.FailureThreshold,
		ResetTimeout:     time.Duration(c.Breaker.ResetSecs) * time.Second,
		Trips:            source.TripsBreaker,
		OnChange: func(from, to resilience.State) {
			metrics.BreakerState.Set(float64(to))
			zap.L().Warn("region query breaker changed state",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	var q source.RegionQuery = source.NewGuard(client, c.Source.Timeout(), breaker)
	if c.Cache.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Cache.Addr,
			Password: c.Cache.Password,
			DB:       c.Cache.DB,
		})
		env.onClose(func() { _ = rdb.Close() })
		q = source.NewCache(q, rdb, c.Cache.TTL())
	}
	return source.NewInstrument(q, "chargepoint"), nil
}

// buildSinks creates the sinks named in export.sinks, in order.
func buildSinks(c *config.Config, pool db.Pool, env *scrapeEnv) ([]sink.Sink, error) {
	layout := sink.LayoutFull
	if c.Store.Columns == string(sink.LayoutCompact) {
		layout = sink.LayoutCompact
	}

	var sinks []sink.Sink
	seen := map[string]bool{}
	for _, name := range c.Export.Sinks {
		name = strings.ToLower(strings.TrimSpace(name))
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case config.SinkSQLite:
			sinks = append(sinks, sink.NewSQLite(c.Store.SQLitePath, layout))
		case config.SinkPostgres:
			if pool == nil {
				return nil, eris.New("postgres sink requires store.database_url")
			}
			sinks = append(sinks, sink.NewPostgres(pool, c.Store.Schema, layout))
		case config.SinkMap:
			sinks = append(sinks, sink.NewMapView(c.Export.Dir, c.Export.MapCenterLat, c.Export.MapCenterLon, c.Export.MapZoom))
		case config.SinkShapefile:
			sinks = append(sinks, sink.NewShapefile(filepath.Join(c.Export.Dir, "shp"), layout))
		case config.SinkXLSX:
			sinks = append(sinks, sink.NewWorkbook(c.Export.Dir, layout))
		case config.SinkObjectStore:
			mc, err := sink.NewMinioClient(c.ObjectStore)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sink.NewObjectStore(mc, c.ObjectStore.Bucket, c.ObjectStore.Region, c.ObjectStore.Prefix))
		case config.SinkKafka:
			w, err := sink.NewKafkaWriter(c.Kafka)
			if err != nil {
				return nil, err
			}
			env.onClose(func() { _ = w.Close() })
			sinks = append(sinks, sink.NewKafka(w))
		default:
			return nil, eris.Errorf("unknown sink %q", name)
		}
	}
	return sinks, nil
}
