package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"regcal/internal/catalog"
	"regcal/internal/config"
	"regcal/internal/ics"
	appLog "regcal/internal/log"
	"regcal/internal/schedule"
	"regcal/internal/upload"
	"regcal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	convert    string
	out        string
	logLevel   string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(); err != nil {
		appLog.Error("failed to apply environment", err)
		os.Exit(1)
	}

	// CLI flags override file and environment values.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
		conf.Normalize()
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("config rejected", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.SetOutput(os.Stderr, conf.LogPretty)
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("regcal starting", "version", version)

	loc, err := resolveLocation(conf.Timezone)
	if err != nil {
		appLog.Error("invalid timezone", err, "timezone", conf.Timezone)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"catalog_url", appLog.RedactURL(conf.CatalogURL),
		"cache_dir", conf.CacheDir,
		"refresh", conf.RefreshCron,
		"catalog_ttl_minutes", conf.CatalogTTLMinutes,
		"timezone", loc.String(),
		"convert", flags.convert,
	)

	store := catalog.NewStore(
		catalog.NewFetcher(conf.CatalogURL, conf.CacheDir),
		time.Duration(conf.CatalogTTLMinutes)*time.Minute,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.convert != "" {
		if err := runConvert(ctx, conf, store, loc, flags.convert, flags.out); err != nil {
			appLog.Error("conversion failed", err, "input", flags.convert)
			os.Exit(1)
		}
		return
	}

	if err := runServer(ctx, conf, store, loc); err != nil {
		appLog.Error("server exited with error", err)
		os.Exit(1)
	}
	appLog.Info("regcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./regcal.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.convert, "convert", "", "Convert this registration .xlsx to iCalendar and exit")
	flag.StringVar(&cfg.out, "out", ics.Filename, "Output path for -convert")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	flag.Parse()

	return cfg
}

func resolveLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// runConvert performs one upload-to-calendar conversion from the command line.
func runConvert(ctx context.Context, conf *config.Config, store *catalog.Store, loc *time.Location, in, out string) error {
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := upload.ReadXLSX(f)
	if err != nil {
		return err
	}

	idx, err := store.Index(ctx)
	if err != nil {
		return err
	}

	events, err := schedule.Build(rows, idx, schedule.Options{Location: loc})
	if err != nil {
		return err
	}

	body, err := ics.Serialize(events, ics.WriteOptions{Name: conf.CalendarName, Stamp: time.Now()})
	if err != nil {
		return err
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(out, body, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	appLog.Info("calendar written",
		"out", out,
		"rows", len(rows),
		"events", len(events),
		"unmatched", len(rows)-len(events),
	)
	return nil
}

func runServer(ctx context.Context, conf *config.Config, store *catalog.Store, loc *time.Location) error {
	// Warm the catalog; a failure here is retried on the first request.
	if _, err := store.Refresh(ctx); err != nil {
		appLog.Warn("initial catalog fetch failed", "error", err.Error())
	}

	if conf.RefreshEnabled() {
		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})), cron.WithLogger(cronLogger{}))
		_, err := c.AddFunc(conf.RefreshCron, func() {
			refreshCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if _, err := store.Refresh(refreshCtx); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Warn("scheduled catalog refresh failed", "error", err.Error())
			}
		})
		if err != nil {
			return fmt.Errorf("refresh schedule %q: %w", conf.RefreshCron, err)
		}
		c.Start()
		defer func() {
			<-c.Stop().Done()
		}()
		appLog.Info("catalog refresh scheduled", "cron", conf.RefreshCron)
	}

	srv := web.NewServer(conf, store, loc)
	return web.StartServer(ctx, conf, srv)
}

// cronLogger routes robfig/cron's internal logging through appLog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
