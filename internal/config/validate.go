package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Known sink names for export.sinks.
const (
	SinkSQLite      = "sqlite"
	SinkPostgres    = "postgres"
	SinkMap         = "map"
	SinkShapefile   = "shapefile"
	SinkXLSX        = "xlsx"
	SinkObjectStore = "objectstore"
	SinkKafka       = "kafka"
)

var knownSinks = map[string]bool{
	SinkSQLite: true, SinkPostgres: true, SinkMap: true, SinkShapefile: true,
	SinkXLSX: true, SinkObjectStore: true, SinkKafka: true,
}

// HasSink reports whether name is enabled in export.sinks.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Export.Sinks {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return true
		}
	}
	return false
}

// Interval parses schedule.interval.
func (c *Config) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Schedule.Interval)
	if err != nil {
		return 0, eris.Wrapf(err, "config: parse schedule.interval %q", c.Schedule.Interval)
	}
	return d, nil
}

// Validate checks the settings a command needs. mode is one of scrape,
// schedule, serve or runs.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(s string) { problems = append(problems, s) }

	switch mode {
	case "scrape", "schedule":
		c.validateScrape(add)
		if mode == "schedule" {
			if d, err := c.Interval(); err != nil {
				add("schedule.interval must be a duration like 10m")
			} else if d <= 0 {
				add("schedule.interval must be > 0")
			}
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
	case "runs":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateScrape(add func(string)) {
	if c.Source.ReplayFile == "" && c.Source.BaseURL == "" {
		add("source.base_url or source.replay_file is required")
	}
	if c.Source.TimeoutSecs <= 0 {
		add("source.timeout_secs must be > 0")
	}
	if c.Scrape.Workers <= 0 {
		add("scrape.workers must be > 0")
	}
	if c.Scrape.Threshold <= 0 {
		add("scrape.threshold must be > 0")
	}
	if c.Source.PageSize > 0 && c.Scrape.Threshold > c.Source.PageSize {
		add("scrape.threshold must not exceed source.page_size")
	}
	if c.Scrape.LatLimit <= 0 || c.Scrape.LonLimit <= 0 {
		add("scrape.lat_limit and scrape.lon_limit must be > 0")
	}
	switch c.Store.Columns {
	case "", "full", "compact":
	default:
		add(`store.columns must be "full" or "compact"`)
	}

	for _, s := range c.Export.Sinks {
		if !knownSinks[strings.ToLower(strings.TrimSpace(s))] {
			add("export.sinks: unknown sink " + s)
		}
	}
	if c.HasSink(SinkSQLite) && c.Store.SQLitePath == "" {
		add("store.sqlite_path is required for the sqlite sink")
	}
	if c.HasSink(SinkPostgres) && c.Store.DatabaseURL == "" {
		add("store.database_url is required for the postgres sink")
	}
	if c.HasSink(SinkObjectStore) {
		if c.ObjectStore.Endpoint == "" || c.ObjectStore.AccessKey == "" || c.ObjectStore.SecretKey == "" || c.ObjectStore.Bucket == "" {
			add("object_store.endpoint, access_key, secret_key and bucket are required for the objectstore sink")
		}
	}
	if c.HasSink(SinkKafka) && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		add("kafka.brokers and kafka.topic are required for the kafka sink")
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
