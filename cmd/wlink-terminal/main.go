package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dbehnke/wlink-terminal/pkg/alias"
	"github.com/dbehnke/wlink-terminal/pkg/codeplug"
	"github.com/dbehnke/wlink-terminal/pkg/config"
	"github.com/dbehnke/wlink-terminal/pkg/database"
	"github.com/dbehnke/wlink-terminal/pkg/logger"
	"github.com/dbehnke/wlink-terminal/pkg/metrics"
	"github.com/dbehnke/wlink-terminal/pkg/recorder"
	"github.com/dbehnke/wlink-terminal/pkg/session"
	"github.com/dbehnke/wlink-terminal/pkg/transport"
	"github.com/dbehnke/wlink-terminal/pkg/watchdog"
	"github.com/dbehnke/wlink-terminal/pkg/web"
	flag "github.com/spf13/pflag"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	configFile := flag.StringP("config", "c", "config.yaml", "Path to configuration file")
	showVersion := flag.BoolP("version", "v", false, "Show version information")
	validate := flag.Bool("validate", false, "Validate configuration and codeplug, then exit")
	rid := flag.String("rid", "", "Override radio.rid")
	codeplugPath := flag.String("codeplug", "", "Override radio.codeplug")
	logLevel := flag.String("log-level", "", "Override logging.level")
	watch := flag.Bool("watch-codeplug", true, "Reload the codeplug when the file changes")
	flag.Parse()

	if *showVersion {
		fmt.Printf("wlink-terminal %s (%s, built %s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *rid != "" {
		cfg.Radio.RID = *rid
	}
	if *codeplugPath != "" {
		cfg.Radio.Codeplug = *codeplugPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	log.Info("Starting wlink-terminal",
		logger.String("version", version),
		logger.String("build_time", buildTime),
		logger.String("config_file", *configFile))
	for _, w := range cfg.Warnings {
		log.Warn("Configuration adjusted", logger.String("detail", w))
	}

	cp, cpErr := codeplug.Load(cfg.Radio.Codeplug)
	if cpErr != nil {
		log.Error("Codeplug not loaded", logger.String("path", cfg.Radio.Codeplug), logger.Error(cpErr))
	}

	if *validate {
		if cpErr != nil {
			os.Exit(1)
		}
		log.Info("Configuration and codeplug are valid",
			logger.Int("zones", len(cp.Zones)),
			logger.Int("systems", len(cp.Systems)))
		os.Exit(0)
	}

	web.SetVersionInfo(version, commit, buildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && err != context.Canceled {
				log.Error("Component stopped", logger.String("component", name), logger.Error(err))
			}
		}()
	}

	// Persistence
	var (
		db       *database.DB
		calls    *database.CallRepository
		alerts   *database.AlertRepository
		aliases  *database.AliasRepository
		rec      *recorder.Recorder
		sinks    session.MultiSink
		resolver session.AliasResolver
	)
	if cfg.Database.Enabled {
		db, err = database.NewDB(database.Config{Path: cfg.Database.Path}, log)
		if err != nil {
			log.Error("Failed to open database", logger.Error(err))
			os.Exit(1)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn("Failed to close database", logger.Error(err))
			}
		}()

		calls = database.NewCallRepository(db.GetDB())
		alerts = database.NewAlertRepository(db.GetDB())
		aliases = database.NewAliasRepository(db.GetDB())
		resolver = aliases

		rcfg := recorder.DefaultConfig()
		rcfg.Retention = cfg.Database.Retention
		rec = recorder.New(calls, alerts, rcfg, log)
		sinks = append(sinks, rec)
		run("recorder", func(ctx context.Context) error {
			rec.Run(ctx)
			return nil
		})

		if cfg.Alias.Enabled {
			syncer := alias.NewSyncer(aliases, cfg.Alias, log)
			run("alias", func(ctx context.Context) error {
				syncer.Start(ctx)
				return nil
			})
		}
	}

	collector := metrics.NewCollector(nil)
	sinks = append(sinks, collector)

	hub := web.NewWebSocketHub(log.WithComponent("web"))
	sinks = append(sinks, hub)
	speaker := web.NewAudioHub(log.WithComponent("audio"))

	// Session
	tcfg := transport.DefaultConfig()
	radio := session.New(session.NewConfig(cfg), session.Options{
		Connector: transport.WebsocketConnector{Config: tcfg, Logger: log},
		Sink:      sinks,
		Player:    speaker,
		Aliases:   resolver,
		Logger:    log,
	})
	defer radio.Close()
	collector.SetSource(radio)

	if cp != nil {
		radio.SetCodeplug(cp)
	}
	if *watch {
		w := newCodeplugWatcher(cfg.Radio.Codeplug, radio, log)
		run("codeplug", w.Run)
	}

	supervisor := watchdog.New(radio, watchdog.IntervalsFromConfig(cfg.Timers), nil, log)
	supervisor.Start()
	defer supervisor.Stop()

	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		server := metrics.NewPrometheusServer(metrics.PrometheusConfig{
			Enabled: true,
			Port:    cfg.Metrics.Prometheus.Port,
			Path:    cfg.Metrics.Prometheus.Path,
		}, collector, log)
		run("metrics", server.Start)
	}

	if cfg.Web.Enabled {
		server := web.NewServer(cfg.Web, web.Options{
			Radio:  radio,
			Calls:  calls,
			Alerts: alerts,
			Hub:    hub,
			Audio:  speaker,
		}, log)
		run("web", server.Start)
	}

	if cfg.Radio.PowerOn {
		radio.PowerOn()
	}
	log.Info("wlink-terminal initialized",
		logger.String("rid", cfg.Radio.RID),
		logger.Bool("powered_on", radio.State().PoweredOn))

	sig := <-sigChan
	log.Info("Received shutdown signal", logger.String("signal", sig.String()))

	supervisor.Stop()
	radio.Close()
	cancel()
	wg.Wait()

	if rec != nil {
		st := rec.Stats()
		log.Info("Recorder stopped",
			logger.Any("saved", st.Saved),
			logger.Any("dropped", st.Dropped))
	}
	log.Info("wlink-terminal stopped")
}

// newLogger builds the root logger, writing to a file when one is set
func newLogger(cfg config.LoggingConfig) (*logger.Logger, func(), error) {
	var out io.Writer = os.Stdout
	closeFn := func() {}
	if path := strings.TrimSpace(cfg.File); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { _ = f.Close() }
	}
	return logger.New(logger.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: out,
	}), closeFn, nil
}
