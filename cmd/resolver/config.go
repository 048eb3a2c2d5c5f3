package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// config vem de um YAML opcional (--config); variáveis de ambiente sobrescrevem.
// Backends vazios (REDIS_ADDR, POSTGRES_DSN, NATS_URL) caem para a versão em memória.
type config struct {
	ESIBaseURL string  `yaml:"esi_base_url"`
	UserAgent  string  `yaml:"user_agent"`
	LocalRPS   float64 `yaml:"local_rps"`
	LocalBurst int     `yaml:"local_burst"`

	RateCap             int64         `yaml:"rate_cap"`
	PauseDuration       time.Duration `yaml:"pause_duration"`
	OfflineWait         time.Duration `yaml:"offline_wait"`
	OfflineTTL          time.Duration `yaml:"offline_ttl"`
	MaxRejectionRetries int           `yaml:"max_rejection_retries"`
	MaxSplitAttempt     int           `yaml:"max_split_attempt"`

	CharacterMaxAge   time.Duration `yaml:"character_max_age"`
	CorporationMaxAge time.Duration `yaml:"corporation_max_age"`
	AllianceMaxAge    time.Duration `yaml:"alliance_max_age"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`

	PostgresDSN string `yaml:"postgres_dsn"`

	NatsURL           string `yaml:"nats_url"`
	NatsStream        string `yaml:"nats_stream"`
	NatsSubjectPrefix string `yaml:"nats_subject_prefix"`

	MetricsAddr string        `yaml:"metrics_addr"`
	LogLevel    string        `yaml:"log_level"`
	LogFormat   string        `yaml:"log_format"`
	Timeout     time.Duration `yaml:"timeout"`
}

func defaultConfig() config {
	return config{
		ESIBaseURL:          "https://esi.evetech.net/latest",
		UserAgent:           "killboard-resolver",
		LocalRPS:            20,
		LocalBurst:          20,
		RateCap:             25,
		PauseDuration:       60 * time.Second,
		OfflineWait:         30 * time.Second,
		OfflineTTL:          60 * time.Second,
		MaxRejectionRetries: 3,
		MaxSplitAttempt:     3,
		CharacterMaxAge:     24 * time.Hour,
		CorporationMaxAge:   168 * time.Hour,
		AllianceMaxAge:      720 * time.Hour,
		RedisPrefix:         "killboard",
		NatsStream:          "KILLBOARD_JOBS",
		NatsSubjectPrefix:   "killboard.jobs",
		LogLevel:            "info",
		LogFormat:           "text",
		Timeout:             2 * time.Minute,
	}
}

func readConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.ESIBaseURL = getenvDefault("ESI_BASE_URL", cfg.ESIBaseURL)
	cfg.UserAgent = getenvDefault("ESI_USER_AGENT", cfg.UserAgent)
	cfg.LocalRPS = getenvFloatDefault("ESI_LOCAL_RPS", cfg.LocalRPS)
	cfg.LocalBurst = getenvIntDefault("ESI_LOCAL_BURST", cfg.LocalBurst)

	cfg.RateCap = int64(getenvIntDefault("ESI_RATE_CAP", int(cfg.RateCap)))
	cfg.PauseDuration = getenvDurationDefault("ESI_PAUSE_DURATION", cfg.PauseDuration)
	cfg.OfflineWait = getenvDurationDefault("ESI_OFFLINE_WAIT", cfg.OfflineWait)
	cfg.OfflineTTL = getenvDurationDefault("ESI_OFFLINE_TTL", cfg.OfflineTTL)
	cfg.MaxRejectionRetries = getenvIntDefault("ESI_MAX_REJECTION_RETRIES", cfg.MaxRejectionRetries)
	cfg.MaxSplitAttempt = getenvIntDefault("AFFILIATION_MAX_SPLIT_ATTEMPT", cfg.MaxSplitAttempt)

	cfg.CharacterMaxAge = getenvDurationDefault("CHARACTER_MAX_AGE", cfg.CharacterMaxAge)
	cfg.CorporationMaxAge = getenvDurationDefault("CORPORATION_MAX_AGE", cfg.CorporationMaxAge)
	cfg.AllianceMaxAge = getenvDurationDefault("ALLIANCE_MAX_AGE", cfg.AllianceMaxAge)

	cfg.RedisAddr = getenvDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getenvDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getenvIntDefault("REDIS_DB", cfg.RedisDB)
	cfg.RedisPrefix = getenvDefault("REDIS_PREFIX", cfg.RedisPrefix)

	cfg.PostgresDSN = getenvDefault("POSTGRES_DSN", cfg.PostgresDSN)

	cfg.NatsURL = getenvDefault("NATS_URL", cfg.NatsURL)
	cfg.NatsStream = getenvDefault("NATS_STREAM", cfg.NatsStream)
	cfg.NatsSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", cfg.NatsSubjectPrefix)

	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenvDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Timeout = getenvDurationDefault("TIMEOUT", cfg.Timeout)

	if strings.TrimSpace(cfg.ESIBaseURL) == "" {
		return config{}, errors.New("ESI_BASE_URL is required")
	}
	if cfg.RateCap <= 0 {
		return config{}, errors.New("ESI_RATE_CAP must be > 0")
	}
	// IMPORTANTE: LocalRPS 0 desliga só o suavizador local; o cap compartilhado continua valendo.
	if cfg.LocalRPS < 0 {
		return config{}, errors.New("ESI_LOCAL_RPS must be >= 0")
	}
	if cfg.MaxRejectionRetries < 0 {
		return config{}, errors.New("ESI_MAX_REJECTION_RETRIES must be >= 0")
	}
	if cfg.NatsURL != "" && strings.TrimSpace(cfg.NatsStream) == "" {
		return config{}, errors.New("NATS_STREAM is required when NATS_URL is set")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return config{}, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
