package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           int
	DatabaseURL    string
	DatabaseType   string
	LinkSecret     string
	JWTSecret      string
	ServerBase     string
	RedisURL       string
	NotifyStream   string
	GeocoderURL    string
	SweepInterval  time.Duration
	ResponseWindow time.Duration
	ExpiryPolicy   string
	AllowedOrigins []string
}

// ParseFlags reads flags, falling back to environment variables and then
// to defaults. A .env file in the working directory is loaded first and
// never overrides variables already set.
func ParseFlags(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	var (
		cfg     Config
		origins string
	)

	fs := flag.NewFlagSet("real-hero", flag.ContinueOnError)

	// Network and storage (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite, postgres or memory)")
	fs.StringVar(&cfg.ServerBase, "base", "", "Public base URL used in emailed links")
	fs.StringVar(&cfg.RedisURL, "redis", "", "Redis URL for the notification stream")
	fs.StringVar(&cfg.NotifyStream, "notify-stream", "", "Redis stream name for notifications")
	fs.StringVar(&cfg.GeocoderURL, "geocoder", "", "Nominatim base URL")
	fs.StringVar(&origins, "origins", "", "Comma-separated allowed CORS origins")

	// Lifecycle timing
	fs.DurationVar(&cfg.SweepInterval, "sweep", 0, "Scheduler sweep interval")
	fs.DurationVar(&cfg.ResponseWindow, "window", 0, "Primary donor response window")
	fs.StringVar(&cfg.ExpiryPolicy, "expiry", "", "Expiry policy (all or open_only)")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.LinkSecret, "link-secret", "", "HMAC secret for emailed links (prefer env)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "JWT signing secret (prefer env)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 5000 // default
		}
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = "sqlite"
		}
	}
	switch cfg.DatabaseType {
	case "sqlite", "postgres", "memory":
	default:
		return Config{}, fmt.Errorf("unknown database type %q", cfg.DatabaseType)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" && cfg.DatabaseType != "memory" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.ServerBase == "" {
		cfg.ServerBase = os.Getenv("SERVER_BASE")
	}
	if cfg.ServerBase == "" {
		cfg.ServerBase = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	cfg.ServerBase = strings.TrimRight(cfg.ServerBase, "/")

	if cfg.RedisURL == "" {
		cfg.RedisURL = os.Getenv("REDIS_URL")
	}
	if cfg.NotifyStream == "" {
		cfg.NotifyStream = envOr("NOTIFY_STREAM", "notifications")
	}
	if cfg.GeocoderURL == "" {
		cfg.GeocoderURL = envOr("GEOCODER_URL", "https://nominatim.openstreetmap.org")
	}
	if origins == "" {
		origins = envOr("FRONTEND_ORIGINS", "*")
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	var err error
	if cfg.SweepInterval == 0 {
		if cfg.SweepInterval, err = envDuration("SWEEP_INTERVAL", 5*time.Minute); err != nil {
			return Config{}, err
		}
	}
	if cfg.ResponseWindow == 0 {
		if cfg.ResponseWindow, err = envDuration("RESPONSE_WINDOW", 2*time.Hour); err != nil {
			return Config{}, err
		}
	}
	if cfg.SweepInterval <= 0 || cfg.ResponseWindow <= 0 {
		return Config{}, errors.New("sweep interval and response window must be positive")
	}

	if cfg.ExpiryPolicy == "" {
		cfg.ExpiryPolicy = envOr("EXPIRY_POLICY", "all")
	}
	if cfg.ExpiryPolicy != "all" && cfg.ExpiryPolicy != "open_only" {
		return Config{}, fmt.Errorf("unknown expiry policy %q (use all or open_only)", cfg.ExpiryPolicy)
	}

	// Secrets - MUST be provided
	if cfg.LinkSecret == "" {
		cfg.LinkSecret = os.Getenv("LINK_SECRET")
	}
	if cfg.LinkSecret == "" {
		return Config{}, errors.New("LINK_SECRET required")
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable: %w", key, err)
	}
	return d, nil
}
