package core

import (
	"time"
)

type Config struct {
	Plex    PlexConfig
	Queue   QueueConfig
	Retry   RetryConfig
	Matcher MatcherConfig
	Voice   VoiceConfig
	Server  ServerConfig
	Log     LogConfig
}

type PlexConfig struct {
	BaseURL            string
	Token              string
	StreamBaseURL      string
	MusicSection       string
	Timeout            time.Duration
	InsecureSkipVerify bool
	MetadataCacheSize  int
}

type QueueConfig struct {
	MaxSize          int
	PlaylistPageSize int
	ParallelLookups  int
	Backend          string
	SQLitePath       string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	TTL              time.Duration
}

type RetryConfig struct {
	MaxRetries     int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
}

type MatcherConfig struct {
	Threshold float64
	Overrides map[string]string
}

type VoiceConfig struct {
	SkillID            string
	Language           string
	PlayLimitPerMinute int
	// RequestTimeout bounds the work done for one request. It must stay below the server's
	// write timeout so a slow library still gets a spoken answer.
	RequestTimeout time.Duration
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

func DefaultConfig() *Config {
	return &Config{
		Plex: PlexConfig{
			MusicSection:      "Music",
			Timeout:           5 * time.Second,
			MetadataCacheSize: 2048,
		},
		Queue: QueueConfig{
			MaxSize:          150,
			PlaylistPageSize: 50,
			ParallelLookups:  8,
			Backend:          BackendSQLite,
			SQLitePath:       "./plexvoice.db",
			RedisAddr:        "localhost:6379",
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			BaseDelay:      time.Second,
			AttemptTimeout: 5 * time.Second,
		},
		Matcher: MatcherConfig{
			Threshold: 0.6,
			Overrides: DefaultArtistOverrides(),
		},
		Voice: VoiceConfig{
			Language:           "en",
			PlayLimitPerMinute: 10,
			RequestTimeout:     8 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// DefaultArtistOverrides maps spoken variants that speech recognition reliably produces to
// the way the artist is spelled in a typical library.
func DefaultArtistOverrides() map[string]string {
	return map[string]string{
		"acdc":           "AC/DC",
		"ac dc":          "AC/DC",
		"guns and roses": "Guns N' Roses",
		"the weekend":    "The Weeknd",
		"pink":           "P!nk",
		"jay z":          "JAY-Z",
		"blink 182":      "blink-182",
	}
}
