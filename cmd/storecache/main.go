// Command storecache inspects and maintains a storefront response cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/ZaguanLabs/storecache"
	"github.com/ZaguanLabs/storecache/cache"
	"github.com/ZaguanLabs/storecache/commerce"
)

// Build-time variables (can be overridden with ldflags)
var (
	version   = storecache.Version
	commit    = storecache.GitCommit
	buildDate = storecache.BuildDate
)

const usage = `Usage: storecache [flags] <command> [args]

Commands:
  init               Restore the persisted locale and print it
  locale <code>      Switch the active locale
  warm [code]        Prefetch a locale (default: active); --both warms every locale
  stats              Show cache occupancy
  diagnose           Report problems and suggested remedies
  clear [code]       Clear one locale, or everything when no code is given
  export <file>      Write a JSON snapshot of the durable medium
  import <file>      Load a JSON snapshot into the durable medium
  version            Show version

Flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options are the resolved global settings of one invocation.
type options struct {
	json    bool
	both    bool
	noColor bool
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := storecache.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	fs := flag.NewFlagSet("storecache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	// Flags override the STORECACHE_* environment
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Durable backend: badger, redis or memory")
	fs.StringVar(&cfg.BadgerDir, "badger-dir", cfg.BadgerDir, "Badger data directory")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis connection URL")
	fs.StringVar(&cfg.SchemaVersion, "schema", cfg.SchemaVersion, "Durable entry schema version")
	fs.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "Commerce API base URL (default: built-in sample catalogue)")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "Commerce API key")
	fs.StringVar(&cfg.DefaultLocale, "default-locale", cfg.DefaultLocale, "Locale used on first launch")
	fs.BoolVar(&cfg.LiveRelayout, "live-relayout", cfg.LiveRelayout, "Host can re-layout without a restart")
	fs.DurationVar(&cfg.PrefetchDelay, "delay", cfg.PrefetchDelay, "Pause between warming the active and the other locales")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")

	var opts options
	fs.BoolVar(&opts.json, "json", false, "Output results as JSON")
	fs.BoolVar(&opts.both, "both", false, "warm: warm every supported locale")
	fs.BoolVar(&opts.noColor, "no-color", false, "Disable coloured log output")
	showVersion := fs.Bool("version", false, "Show version")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion || fs.Arg(0) == "version" {
		return printVersion(stdout)
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("a command is required")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(stderr, cfg, opts.noColor)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "init":
		return cmdInit(ctx, a, opts, stdout)
	case "locale":
		return cmdLocale(ctx, a, opts, rest, stdout)
	case "warm":
		return cmdWarm(ctx, a, opts, rest, stdout)
	case "stats":
		return cmdStats(ctx, a, opts, stdout)
	case "diagnose":
		return cmdDiagnose(ctx, a, opts, stdout)
	case "clear":
		return cmdClear(ctx, a, opts, rest, stdout)
	case "export":
		return cmdExport(ctx, a, rest, stdout)
	case "import":
		return cmdImport(ctx, a, rest, stdout)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printVersion(stdout io.Writer) error {
	fmt.Fprintf(stdout, "%s %s\n", storecache.Name, version)
	if commit != "unknown" && commit != "" {
		fmt.Fprintf(stdout, "  commit:  %s\n", commit)
	}
	if buildDate != "unknown" && buildDate != "" {
		fmt.Fprintf(stdout, "  built:   %s\n", buildDate)
	}
	return nil
}

// newLogger builds a tint console logger or a JSON logger on w.
func newLogger(w io.Writer, cfg storecache.Config, noColor bool) (*slog.Logger, error) {
	level, err := storecache.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	})), nil
}

// app is the wired cache stack of one invocation.
type app struct {
	medium   cache.Medium
	cache    *storecache.ResponseCache
	prefetch *storecache.Prefetcher
	coord    *storecache.Coordinator
	maint    *storecache.Maintenance
	logger   *slog.Logger
	closer   func() error
}

func open(ctx context.Context, cfg storecache.Config, logger *slog.Logger) (*app, error) {
	medium, closer, err := openMedium(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry, err := cfg.Registry()
	if err != nil {
		_ = closer()
		return nil, err
	}

	rc := storecache.New(medium,
		storecache.WithPolicy(cfg.Policy()),
		storecache.WithSchemaVersion(cfg.SchemaVersion),
		storecache.WithRegistry(registry),
		storecache.WithWriteTimeout(cfg.WriteTimeout),
		storecache.WithLogger(logger),
	)

	prefetch := storecache.NewPrefetcher(rc, newSource(cfg, logger),
		storecache.WithDelay(cfg.PrefetchDelay),
		storecache.WithConcurrency(cfg.PrefetchConcurrency),
	)

	direction := storecache.NewStoredDirection(medium)
	prefs := storecache.NewPreferences(medium)

	coord, err := storecache.NewCoordinator(rc, prefetch, direction, prefs,
		storecache.WithLiveRelayout(cfg.LiveRelayout),
		storecache.WithRestartHook(func(c storecache.Change) {
			logger.Warn("restart the storefront to apply the new layout direction", "locale", c.To.Code, "direction", c.Direction.String())
		}),
	)
	if err != nil {
		_ = closer()
		return nil, err
	}

	return &app{
		medium:   medium,
		cache:    rc,
		prefetch: prefetch,
		coord:    coord,
		maint:    storecache.NewMaintenance(rc, prefetch, direction, prefs),
		logger:   logger,
		closer:   closer,
	}, nil
}

// close waits for background work and releases the medium.
func (a *app) close() {
	a.prefetch.Wait()
	a.cache.Flush()
	if err := a.closer(); err != nil {
		a.logger.Warn("closing medium failed", "err", err)
	}
}

func openMedium(ctx context.Context, cfg storecache.Config) (cache.Medium, func() error, error) {
	switch cfg.Backend {
	case storecache.BackendMemory:
		return cache.NewMemoryMedium(), func() error { return nil }, nil
	case storecache.BackendRedis:
		m, err := cache.NewRedisMedium(ctx, cache.RedisConfig{URL: cfg.RedisURL})
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	default:
		m, err := cache.NewBadgerMedium(cache.BadgerConfig{Dir: cfg.BadgerDir, SyncWrites: true})
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	}
}

// newSource returns the commerce API client, or the built-in sample
// catalogue when no API is configured.
func newSource(cfg storecache.Config, logger *slog.Logger) commerce.Source {
	if cfg.APIBaseURL == "" {
		logger.Debug("no API base URL configured, using the sample catalogue")
		return commerce.NewMockSource()
	}

	var source commerce.Source = commerce.NewHTTPSource(commerce.HTTPConfig{
		BaseURL:   cfg.APIBaseURL,
		APIKey:    cfg.APIKey,
		DataPath:  cfg.APIDataPath,
		UserAgent: storecache.UserAgent(),
	})
	source = commerce.NewRateLimitedSource(source, commerce.RateLimitConfig{RequestsPerMinute: cfg.APIRateRPM})
	retry := commerce.DefaultRetryConfig()
	retry.Logger = logger
	return commerce.NewRetryableSource(source, retry)
}

// localeArg resolves an optional locale argument, defaulting to the
// active locale.
func localeArg(ctx context.Context, a *app, args []string) (storecache.Locale, error) {
	if len(args) == 0 {
		return a.coord.Initialize(ctx), nil
	}
	l, err := a.cache.Registry().Lookup(args[0])
	if err != nil {
		return storecache.Locale{}, fmt.Errorf("%w (supported: %s)", err, supportedCodes(a.cache.Registry()))
	}
	return l, nil
}

func supportedCodes(r *storecache.Registry) string {
	var codes []string
	for _, l := range r.All() {
		codes = append(codes, l.Code)
	}
	return strings.Join(codes, ", ")
}

var errUsage = errors.New("usage")
