package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"airwatch/internal/device"
	"airwatch/internal/oui"
	"airwatch/internal/scan"
	"airwatch/internal/store"
	"airwatch/internal/tracker"
	"airwatch/internal/tsdb"
	"airwatch/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// errSourceDone stops the group when the source ends and nothing else runs.
var errSourceDone = errors.New("source closed")

type Config struct {
	Source struct {
		Type       string `yaml:"type"` // "stdin", "file", "serial"
		Path       string `yaml:"path"`
		Port       string `yaml:"port"`
		Baud       int    `yaml:"baud"`
		BufferSize int    `yaml:"buffer_size"`
	} `yaml:"source"`
	PollInterval string `yaml:"poll_interval"`
	OUI          struct {
		Path string `yaml:"path"`
	} `yaml:"oui"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	History struct {
		Enabled   bool   `yaml:"enabled"`
		Path      string `yaml:"path"`
		QueueSize int    `yaml:"queue_size"`
	} `yaml:"history"`
	MQTT struct {
		Enabled         bool   `yaml:"enabled"`
		Broker          string `yaml:"broker"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		ClientID        string `yaml:"client_id"`
		TopicPrefix     string `yaml:"topic_prefix"`
		Discovery       bool   `yaml:"discovery"`
		DiscoveryPrefix string `yaml:"discovery_prefix"`
	} `yaml:"mqtt"`
	InfluxDB struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		Token         string `yaml:"token"`
		Org           string `yaml:"org"`
		Bucket        string `yaml:"bucket"`
		BatchSize     int    `yaml:"batch_size"`
		FlushInterval string `yaml:"flush_interval"`
	} `yaml:"influxdb"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Telegram struct {
		BotToken string   `yaml:"bot_token"`
		ChatIDs  []string `yaml:"chat_ids"`
	} `yaml:"telegram"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	switch c.Source.Type {
	case "stdin":
	case "file":
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for file sources")
		}
	case "serial":
		if c.Source.Port == "" {
			return fmt.Errorf("source.port is required for serial sources")
		}
	default:
		return fmt.Errorf("unknown source.type %q (supported: stdin, file, serial)", c.Source.Type)
	}
	if c.Source.BufferSize < 0 {
		return fmt.Errorf("source.buffer_size must not be negative, got %d", c.Source.BufferSize)
	}
	if d, err := time.ParseDuration(c.PollInterval); err != nil || d <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration, got %q", c.PollInterval)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb.url and influxdb.bucket are required when influxdb is enabled")
		}
		if _, err := time.ParseDuration(c.InfluxDB.FlushInterval); err != nil {
			return fmt.Errorf("influxdb.flush_interval: %w", err)
		}
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if c.History.QueueSize < 0 {
		return fmt.Errorf("history.queue_size must not be negative, got %d", c.History.QueueSize)
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("airwatch starting", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("airwatch stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	var lookup oui.Lookup
	if cfg.OUI.Path != "" {
		table, err := oui.LoadFile(cfg.OUI.Path)
		if err != nil {
			return fmt.Errorf("load oui table: %w", err)
		}
		logger.Info("oui table loaded", "prefixes", table.Len())
		lookup = table
	} else {
		logger.Warn("no oui table configured, all manufacturers will be Unknown")
	}

	producer, err := openProducer(cfg)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	source := scan.NewLineSource(producer,
		scan.WithBufferSize(cfg.Source.BufferSize),
		scan.WithLogger(logger),
	)
	defer source.Close()

	poll, _ := time.ParseDuration(cfg.PollInterval)
	events := tracker.NewEventBus(logger)
	tr := tracker.New(source, scan.NewParser(lookup), device.NewRegistry(), events,
		tracker.Config{PollInterval: poll}, logger)

	var history store.Store
	var recorder *tracker.Recorder
	if cfg.History.Enabled {
		db, err := store.NewBoltStore(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer db.Close()
		history = db
		recorder = tracker.NewRecorder(db, cfg.History.QueueSize, logger)
		defer recorder.Attach(events)()
	}

	if cfg.InfluxDB.Enabled {
		flush, _ := time.ParseDuration(cfg.InfluxDB.FlushInterval)
		influx, err := tsdb.Connect(tsdb.Config{
			Enabled:       true,
			URL:           cfg.InfluxDB.URL,
			Token:         cfg.InfluxDB.Token,
			Org:           cfg.InfluxDB.Org,
			Bucket:        cfg.InfluxDB.Bucket,
			BatchSize:     cfg.InfluxDB.BatchSize,
			FlushInterval: flush,
		})
		if err != nil {
			// Signal series are optional; keep tracking without them.
			logger.Error("influxdb connect", "err", err)
		} else {
			influx.SetOnError(func(err error) {
				logger.Warn("influxdb write", "err", err)
			})
			detach := influx.Attach(events)
			defer func() {
				detach()
				influx.Close()
			}()
		}
	}

	// Start automation engine (no-op when built with no_automation tag).
	auto, autoWebOpts := initAutomation(tr.View(), events, cfg, logger)
	defer auto.Stop()

	// Start MQTT bridge (no-op when built with no_mqtt tag).
	mqtt := initMQTT(tr.View(), events, cfg, logger)
	defer mqtt.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if recorder != nil {
		// Returns once gctx ends and the queue is flushed.
		g.Go(func() error { return recorder.Run(gctx) })
	}

	g.Go(func() error {
		if err := tr.Run(gctx); err != nil {
			return fmt.Errorf("tracker: %w", err)
		}
		if cfg.Web.Listen == "" && gctx.Err() == nil {
			return errSourceDone
		}
		return nil
	})

	if cfg.Web.Listen != "" {
		webOpts := []web.ServerOption{
			web.WithVersion(version),
			web.WithStats(tr.Stats),
		}
		if cfg.Web.APIKey != "" {
			webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
		}
		if len(cfg.Web.AllowedOrigins) > 0 {
			webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
		}
		if history != nil {
			webOpts = append(webOpts, web.WithHistory(history))
		}
		webOpts = append(webOpts, autoWebOpts...)

		webServer := web.NewServer(tr.View(), events, logger, webOpts...)
		defer webServer.Stop()

		httpServer := &http.Server{
			Addr:         cfg.Web.Listen,
			Handler:      webServer,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		g.Go(func() error {
			logger.Info("web server starting", "addr", cfg.Web.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("shutting down", "reason", context.Cause(ctx))
	}
	if errors.Is(err, errSourceDone) {
		return nil
	}
	return err
}

// openProducer opens the configured byte stream feeding the line source.
func openProducer(cfg *Config) (io.Reader, error) {
	switch cfg.Source.Type {
	case "stdin":
		return os.Stdin, nil
	case "file":
		f, err := os.Open(cfg.Source.Path)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "serial":
		port, err := scan.OpenSerial(cfg.Source.Port, cfg.Source.Baud)
		if err != nil {
			return nil, err
		}
		return port, nil
	default:
		return nil, fmt.Errorf("unknown source type: %q", cfg.Source.Type)
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Type == "" {
		cfg.Source.Type = "stdin"
	}
	if cfg.Source.Baud == 0 {
		cfg.Source.Baud = scan.DefaultBaud
	}
	if cfg.Source.BufferSize == 0 {
		cfg.Source.BufferSize = scan.DefaultBufferSize
	}
	if cfg.PollInterval == "" {
		cfg.PollInterval = tracker.DefaultPollInterval.String()
	}
	if cfg.History.Path == "" {
		cfg.History.Path = "airwatch.db"
	}
	if cfg.History.QueueSize == 0 {
		cfg.History.QueueSize = tracker.DefaultHistoryQueue
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "airwatch"
	}
	if cfg.InfluxDB.FlushInterval == "" {
		cfg.InfluxDB.FlushInterval = "1s"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Log to stderr so stdout stays free when the scan feed is piped in.
	var out io.Writer = os.Stderr
	if cfg.Log.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
		})
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}
