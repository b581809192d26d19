package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
)

type Database struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	MaxConns int32  `yaml:"max_conns"`
}

// DSN returns the explicit URL when set, otherwise a keyword/value string
// assembled from the individual fields.
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	parts := []string{}
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("host", d.Host)
	add("port", d.Port)
	add("user", d.User)
	add("password", d.Password)
	add("database", d.Name)
	return strings.Join(parts, " ")
}

type Auth struct {
	Mode            string `yaml:"mode"`
	JWTSecret       string `yaml:"jwt_secret"`
	JWTIssuer       string `yaml:"jwt_issuer"`
	InsecureDevAuth bool   `yaml:"insecure_dev_auth"`
}

type Limits struct {
	HistoryDefault int `yaml:"history_default"`
	HistoryMax     int `yaml:"history_max"`
	ThreadListMax  int `yaml:"thread_list_max"`
	UserSearch     int `yaml:"user_search"`
}

type Realtime struct {
	SendBuffer      int     `yaml:"send_buffer"`
	EventsPerSecond float64 `yaml:"events_per_second"`
	EventBurst      int     `yaml:"event_burst"`
}

type Config struct {
	Port            string        `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	StoreDriver     string        `yaml:"store_driver"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Database        Database      `yaml:"database"`
	Auth            Auth          `yaml:"auth"`
	Limits          Limits        `yaml:"limits"`
	Realtime        Realtime      `yaml:"realtime"`
}

func Default() Config {
	return Config{
		Port:            "3001",
		AllowedOrigins:  []string{"http://localhost:3000"},
		StoreDriver:     StoreDriverPostgres,
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 10 * time.Second,
		Database:        Database{MaxConns: 8},
		Auth:            Auth{Mode: AuthModeJWT},
		Limits: Limits{
			HistoryDefault: 50,
			HistoryMax:     200,
			ThreadListMax:  100,
			UserSearch:     20,
		},
		Realtime: Realtime{
			SendBuffer:      128,
			EventsPerSecond: 10,
			EventBurst:      20,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional .env file and finally the process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: could not load .env file: %v", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("PORT", &cfg.Port)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	str("STORE_DRIVER", &cfg.StoreDriver)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err))
		} else {
			cfg.ShutdownTimeout = d
		}
	}

	str("DATABASE_URL", &cfg.Database.URL)
	str("DATABASE_HOST", &cfg.Database.Host)
	str("DATABASE_PORT", &cfg.Database.Port)
	str("DATABASE_USER", &cfg.Database.User)
	str("DATABASE_PASSWORD", &cfg.Database.Password)
	str("DATABASE_NAME", &cfg.Database.Name)
	maxConns := int(cfg.Database.MaxConns)
	num("DATABASE_MAX_CONNS", &maxConns)
	cfg.Database.MaxConns = int32(maxConns)

	str("AUTH_MODE", &cfg.Auth.Mode)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("JWT_ISSUER", &cfg.Auth.JWTIssuer)
	if v := os.Getenv("INSECURE_DEV_AUTH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("INSECURE_DEV_AUTH: %w", err))
		} else {
			cfg.Auth.InsecureDevAuth = b
		}
	}

	num("HISTORY_DEFAULT_LIMIT", &cfg.Limits.HistoryDefault)
	num("HISTORY_MAX_LIMIT", &cfg.Limits.HistoryMax)
	num("THREAD_LIST_MAX", &cfg.Limits.ThreadListMax)
	num("USER_SEARCH_LIMIT", &cfg.Limits.UserSearch)

	num("WS_SEND_BUFFER", &cfg.Realtime.SendBuffer)
	num("WS_EVENT_BURST", &cfg.Realtime.EventBurst)
	if v := os.Getenv("WS_EVENTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("WS_EVENTS_PER_SECOND: %w", err))
		} else {
			cfg.Realtime.EventsPerSecond = f
		}
	}

	return errors.Join(errs...)
}

// Validate rejects combinations that must never reach a running server.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	switch c.Auth.Mode {
	case AuthModeJWT:
		if c.Auth.JWTSecret == "" {
			return errors.New("jwt auth mode requires JWT_SECRET")
		}
	case AuthModeHeader:
		if !c.Auth.InsecureDevAuth {
			return errors.New("header auth mode requires INSECURE_DEV_AUTH=true")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}

	if c.Limits.HistoryDefault <= 0 || c.Limits.HistoryMax <= 0 || c.Limits.ThreadListMax <= 0 || c.Limits.UserSearch <= 0 {
		return errors.New("limits must be positive")
	}
	if c.Limits.HistoryDefault > c.Limits.HistoryMax {
		return errors.New("history default limit exceeds history max")
	}
	if c.Realtime.SendBuffer <= 0 || c.Realtime.EventsPerSecond <= 0 || c.Realtime.EventBurst <= 0 {
		return errors.New("realtime settings must be positive")
	}
	return nil
}

func splitList(v string) []string {
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
