// Package main provides the plexvoice CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"plexvoice/internal/core"
	"plexvoice/internal/flood"
	httpserver "plexvoice/internal/http"
	"plexvoice/internal/i18n"
	"plexvoice/internal/plex"
	"plexvoice/internal/store"
	"plexvoice/internal/voice"
	"plexvoice/pkg/fuzzy"
)

const envPrefix = "PLEXVOICE"

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "plexvoice",
	Short: "plexvoice - voice control for a Plex music library",
	Long: `plexvoice serves a voice skill endpoint that turns spoken requests into play queues
from a Plex Media Server and keeps each listener's queue in step with the playback device.`,
	RunE: runPlexVoice,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	registerFlags(rootCmd.PersistentFlags())

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func registerFlags(flags *pflag.FlagSet) {
	defaults := core.DefaultConfig()

	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")

	flags.String("plex-base-url", "", "Plex Media Server URL, e.g. http://192.168.1.10:32400")
	flags.String("plex-token", "", "Plex authentication token")
	flags.String("plex-stream-base-url", "", "Public URL the playback device streams from (default: plex-base-url)")
	flags.String("plex-music-section", defaults.Plex.MusicSection, "Title of the music library section")
	flags.Duration("plex-timeout", defaults.Plex.Timeout, "Timeout of a single Plex request")
	flags.Bool("plex-insecure-skip-verify", false, "Accept self-signed Plex certificates")
	flags.Int("plex-metadata-cache-size", defaults.Plex.MetadataCacheSize, "Number of track metadata entries to cache")

	flags.Int("queue-max-size", defaults.Queue.MaxSize, "Maximum number of tracks in a queue")
	flags.Int("queue-playlist-page-size", defaults.Queue.PlaylistPageSize, "Page size used to sample large playlists")
	flags.Int("queue-parallel-lookups", defaults.Queue.ParallelLookups, "Concurrent Plex lookups while building a queue")
	flags.String("queue-backend", defaults.Queue.Backend, "Queue store backend (memory, sqlite, redis)")
	flags.String("queue-sqlite-path", defaults.Queue.SQLitePath, "SQLite database file")
	flags.String("queue-redis-addr", defaults.Queue.RedisAddr, "Redis address")
	flags.String("queue-redis-password", "", "Redis password")
	flags.Int("queue-redis-db", 0, "Redis database number")
	flags.Duration("queue-ttl", 0, "Expire idle queues after this long (redis only, 0 keeps them)")

	flags.Int("retry-max-retries", defaults.Retry.MaxRetries, "Retries of a transient failure")
	flags.Duration("retry-base-delay", defaults.Retry.BaseDelay, "Delay before the first retry, doubled each time")
	flags.Duration("retry-attempt-timeout", defaults.Retry.AttemptTimeout, "Timeout of a single attempt")

	flags.Float64("matcher-threshold", defaults.Matcher.Threshold, "Minimum similarity to accept a fuzzy artist match")
	flags.StringToString("artist-override", nil, "Extra spoken=Library Artist overrides")

	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	flags.String("language", defaults.Voice.Language, fmt.Sprintf("Fallback speech language (%s)", supportedLangs))
	flags.String("voice-skill-id", "", "Only accept requests for this skill application id")
	flags.Int("voice-play-limit-per-minute", defaults.Voice.PlayLimitPerMinute,
		"Play and rate requests a listener may make per minute (0 disables)")
	flags.Duration("voice-request-timeout", defaults.Voice.RequestTimeout,
		"Time budget for answering one voice request, below the server write timeout")

	flags.String("server-host", defaults.Server.Host, "HTTP server host")
	flags.Int("server-port", defaults.Server.Port, "HTTP server port")
	flags.Duration("server-read-timeout", defaults.Server.ReadTimeout, "HTTP read timeout")
	flags.Duration("server-write-timeout", defaults.Server.WriteTimeout, "HTTP write timeout")

	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Log.Format, "log format (json, console)")
	flags.String("log-file", "", "Also write JSON logs to this rotated file")
	flags.Int("log-max-size-mb", defaults.Log.MaxSizeMB, "Rotate the log file at this size")
	flags.Int("log-max-backups", defaults.Log.MaxBackups, "Rotated log files to keep")
	flags.Int("log-max-age-days", defaults.Log.MaxAgeDays, "Days to keep rotated log files")

	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")
}

func initConfig() {
	// Load .env file explicitly using gotenv
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		// Don't exit if .env file doesn't exist, just warn
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig(viper.GetViper())

	var err error
	logger, err = buildLogger(&config.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
}

func buildConfig(v *viper.Viper) *core.Config {
	cfg := core.DefaultConfig()

	configurePlex(cfg, v)
	configureQueue(cfg, v)
	configureMatcher(cfg, v)
	configureVoice(cfg, v)
	configureServer(cfg, v)
	configureLog(cfg, v)

	return cfg
}

func configurePlex(cfg *core.Config, v *viper.Viper) {
	cfg.Plex.BaseURL = strings.TrimRight(v.GetString("plex-base-url"), "/")
	cfg.Plex.Token = v.GetString("plex-token")
	cfg.Plex.StreamBaseURL = strings.TrimRight(v.GetString("plex-stream-base-url"), "/")
	cfg.Plex.MusicSection = v.GetString("plex-music-section")
	cfg.Plex.Timeout = v.GetDuration("plex-timeout")
	cfg.Plex.InsecureSkipVerify = v.GetBool("plex-insecure-skip-verify")
	cfg.Plex.MetadataCacheSize = v.GetInt("plex-metadata-cache-size")
}

func configureQueue(cfg *core.Config, v *viper.Viper) {
	cfg.Queue.MaxSize = v.GetInt("queue-max-size")
	cfg.Queue.PlaylistPageSize = v.GetInt("queue-playlist-page-size")
	cfg.Queue.ParallelLookups = v.GetInt("queue-parallel-lookups")
	cfg.Queue.Backend = strings.ToLower(v.GetString("queue-backend"))
	cfg.Queue.SQLitePath = v.GetString("queue-sqlite-path")
	cfg.Queue.RedisAddr = v.GetString("queue-redis-addr")
	cfg.Queue.RedisPassword = v.GetString("queue-redis-password")
	cfg.Queue.RedisDB = v.GetInt("queue-redis-db")
	cfg.Queue.TTL = v.GetDuration("queue-ttl")

	cfg.Retry.MaxRetries = v.GetInt("retry-max-retries")
	cfg.Retry.BaseDelay = v.GetDuration("retry-base-delay")
	cfg.Retry.AttemptTimeout = v.GetDuration("retry-attempt-timeout")
}

// configureMatcher layers user overrides on top of the built-in ones. Keys are folded so they
// match however the speech recognizer capitalizes them.
func configureMatcher(cfg *core.Config, v *viper.Viper) {
	cfg.Matcher.Threshold = v.GetFloat64("matcher-threshold")
	for spoken, artist := range v.GetStringMapString("artist-override") {
		spoken = fuzzy.FoldKey(spoken)
		artist = strings.TrimSpace(artist)
		if spoken == "" || artist == "" {
			continue
		}
		cfg.Matcher.Overrides[spoken] = artist
	}
}

func configureVoice(cfg *core.Config, v *viper.Viper) {
	cfg.Voice.SkillID = v.GetString("voice-skill-id")
	cfg.Voice.PlayLimitPerMinute = v.GetInt("voice-play-limit-per-minute")
	cfg.Voice.RequestTimeout = v.GetDuration("voice-request-timeout")

	// Language configuration with validation
	cfg.Voice.Language = v.GetString("language")
	if cfg.Voice.Language == "" {
		cfg.Voice.Language = i18n.DefaultLanguage
	}

	supportedLanguages := i18n.GetSupportedLanguages()
	isSupported := false
	for _, lang := range supportedLanguages {
		if cfg.Voice.Language == lang {
			isSupported = true
			break
		}
	}
	if !isSupported {
		fmt.Fprintf(os.Stderr, "Warning: Unsupported language '%s', falling back to '%s'. Supported languages: %s\n",
			cfg.Voice.Language, i18n.DefaultLanguage, strings.Join(supportedLanguages, ", "))
		cfg.Voice.Language = i18n.DefaultLanguage
	}
}

func configureServer(cfg *core.Config, v *viper.Viper) {
	cfg.Server.Host = v.GetString("server-host")
	cfg.Server.Port = v.GetInt("server-port")
	cfg.Server.ReadTimeout = v.GetDuration("server-read-timeout")
	cfg.Server.WriteTimeout = v.GetDuration("server-write-timeout")
}

func configureLog(cfg *core.Config, v *viper.Viper) {
	cfg.Log.Level = v.GetString("log-level")
	cfg.Log.Format = v.GetString("log-format")
	cfg.Log.File = v.GetString("log-file")
	cfg.Log.MaxSizeMB = v.GetInt("log-max-size-mb")
	cfg.Log.MaxBackups = v.GetInt("log-max-backups")
	cfg.Log.MaxAgeDays = v.GetInt("log-max-age-days")
}

// buildLogger writes to stdout and, when a log file is set, tees JSON into a rotated file.
func buildLogger(cfg *core.LogConfig) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}
	level := zap.NewAtomicLevelAt(zapLevel)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEncoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "json", "":
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		devConfig := encoderConfig
		devConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(devConfig)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level),
	}

	if cfg.File != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func runPlexVoice(cmd *cobra.Command, _ []string) error {
	// Handle generate-env-example flag
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting plexvoice",
		zap.String("plex", config.Plex.BaseURL),
		zap.String("musicSection", config.Plex.MusicSection),
		zap.String("queueBackend", config.Queue.Backend),
		zap.String("language", config.Voice.Language))

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.limiter.Stop()
	defer func() {
		if closeErr := svcs.store.Close(); closeErr != nil {
			logger.Warn("Failed to close queue store", zap.Error(closeErr))
		}
	}()

	return runServices(ctx, svcs)
}

type services struct {
	store      store.Backend
	plex       *plex.Client
	artists    *core.ArtistIndex
	limiter    *flood.Floodgate
	httpServer *httpserver.Server
}

func initializeServices(ctx context.Context) (*services, error) {
	backend, err := store.Open(ctx, &config.Queue, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open queue store: %w", err)
	}

	plexClient, err := plex.NewClient(&config.Plex, logger.Named("plex"))
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to create Plex client: %w", err)
	}

	retry := core.NewRetryExecutor(config.Retry, logger.Named("retry"))
	artists := core.NewArtistIndex(plexClient, retry, logger.Named("artists"))
	matcher := core.NewFuzzyMatcher(config.Matcher, artists, logger.Named("matcher"))
	selector := core.NewTrackSelector(plexClient, matcher, retry, config.Queue, nil, logger.Named("selector"))
	reconciler := core.NewSessionReconciler(backend, plexClient, retry, config.Queue, nil, logger.Named("reconciler"))

	metrics := httpserver.NewMetrics()
	reconciler.SetObserver(metrics)

	limiter := flood.New(config.Voice.PlayLimitPerMinute)

	handler := voice.NewHandler(selector, reconciler, &config.Voice, logger.Named("voice"))
	handler.SetRecorder(metrics)
	handler.SetLimiter(limiter)

	httpServer := httpserver.NewServer(&config.Server, handler, metrics, map[string]httpserver.ReadinessCheck{
		"store": backend.Ping,
		"plex":  plexClient.Ping,
	}, logger.Named("http"))

	return &services{
		store:      backend,
		plex:       plexClient,
		artists:    artists,
		limiter:    limiter,
		httpServer: httpServer,
	}, nil
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	// Warm the artist index so the first artist request does not pay for the full listing.
	// A failure here is retried lazily on first use.
	g.Go(func() error {
		names, err := svcs.artists.Names(gCtx)
		if err != nil {
			logger.Warn("Failed to preload artist index", zap.Error(err))
			return nil
		}
		logger.Info("Artist index loaded", zap.Int("artists", len(names)))
		return nil
	})

	logger.Info("plexvoice started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("plexvoice stopped with error", zap.Error(err))
		return err
	}

	logger.Info("plexvoice stopped gracefully")
	return nil
}

func validateConfig(cfg *core.Config) error {
	if err := validatePlexConfig(&cfg.Plex); err != nil {
		return err
	}

	if err := validateQueueConfig(cfg); err != nil {
		return err
	}

	if cfg.Matcher.Threshold < 0 || cfg.Matcher.Threshold > 1 {
		return fmt.Errorf("matcher threshold must be between 0 and 1, got %v", cfg.Matcher.Threshold)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}

	return validateTimeouts(cfg)
}

// validateTimeouts makes sure a voice request can always be answered before the server gives
// up writing the response.
func validateTimeouts(cfg *core.Config) error {
	budget := cfg.Voice.RequestTimeout
	if budget <= 0 {
		return fmt.Errorf("voice request timeout must be positive")
	}

	if cfg.Server.WriteTimeout > 0 && budget >= cfg.Server.WriteTimeout {
		return fmt.Errorf("voice request timeout %s must be below the server write timeout %s",
			budget, cfg.Server.WriteTimeout)
	}

	if cfg.Retry.AttemptTimeout > budget {
		return fmt.Errorf("retry attempt timeout %s exceeds the voice request timeout %s",
			cfg.Retry.AttemptTimeout, budget)
	}

	if backoff := retryBackoff(&cfg.Retry); backoff >= budget {
		return fmt.Errorf("retry backoff of %s leaves no time inside the voice request timeout %s",
			backoff, budget)
	}

	return nil
}

// retryBackoff is the total sleep between attempts when every retry is used.
func retryBackoff(cfg *core.RetryConfig) time.Duration {
	var total time.Duration
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		total += cfg.BaseDelay * time.Duration(1<<(attempt-1))
	}
	return total
}

func validatePlexConfig(cfg *core.PlexConfig) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("plex base URL is required")
	}

	if cfg.Token == "" {
		return fmt.Errorf("plex token is required")
	}

	if cfg.Timeout <= 0 {
		return fmt.Errorf("plex timeout must be positive")
	}

	return nil
}

func validateQueueConfig(cfg *core.Config) error {
	if cfg.Queue.MaxSize <= 0 {
		return fmt.Errorf("queue max size must be positive, got %d", cfg.Queue.MaxSize)
	}

	if cfg.Queue.PlaylistPageSize <= 0 {
		return fmt.Errorf("playlist page size must be positive, got %d", cfg.Queue.PlaylistPageSize)
	}

	if cfg.Queue.ParallelLookups <= 0 {
		return fmt.Errorf("parallel lookups must be positive, got %d", cfg.Queue.ParallelLookups)
	}

	switch cfg.Queue.Backend {
	case core.BackendMemory, core.BackendRedis:
	case core.BackendSQLite:
		if cfg.Queue.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown queue backend %q (memory, sqlite, redis)", cfg.Queue.Backend)
	}

	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry count must not be negative, got %d", cfg.Retry.MaxRetries)
	}

	return nil
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd.PersistentFlags())

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("Successfully generated .env.example file")
	return nil
}

// generateEnvExampleContent lists every flag as an environment variable, grouped by the flag's
// first word.
func generateEnvExampleContent(flags *pflag.FlagSet) string {
	sections := make(map[string][]*pflag.Flag)
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "generate-env-example" {
			return
		}
		section, _, _ := strings.Cut(f.Name, "-")
		sections[section] = append(sections[section], f)
	})

	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	var content strings.Builder
	content.WriteString("# plexvoice configuration\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values.\n")
	fmt.Fprintf(&content, "# Format: %s_<FLAG>=value, CLI equivalent: --<flag>\n", envPrefix)

	for _, name := range names {
		fmt.Fprintf(&content, "\n# --- %s ---\n", name)
		for _, f := range sections[name] {
			fmt.Fprintf(&content, "# %s\n", f.Usage)
			fmt.Fprintf(&content, "%s=%s\n", flagToEnvVar(f.Name), envDefault(f))
		}
	}

	return content.String()
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// envDefault renders a flag default the way the environment expects it.
func envDefault(f *pflag.Flag) string {
	if f.Value.Type() == "stringToString" {
		return strings.Trim(f.DefValue, "[]")
	}
	return f.DefValue
}
