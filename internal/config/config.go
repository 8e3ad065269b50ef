package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything the server needs at startup. All of it comes from
// environment variables, optionally seeded from a .env file in the working
// directory.
type Config struct {
	Port string

	LogLevel string
	Env      string

	// DatabaseURL selects the Postgres gateway. Empty means the in-memory
	// store, which forgets everything on restart.
	DatabaseURL string
	// RedisURL enables token revocation on logout. Empty disables it.
	RedisURL string

	AuthScheme     string
	JWTSecret      string
	TokenTTL       time.Duration
	SharedPassword string
	AdminUsername  string
	AdminPassword  string

	UploadDir      string
	MaxUploadBytes int64

	SendTimeout    time.Duration
	SendBuffer     int
	AllowedOrigins []string

	HistoryLimit int
}

const (
	AuthSchemeJWT   = "jwt"
	AuthSchemeBasic = "basic"
)

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:           GetEnv("PORT", "8081"),
		DatabaseURL:    GetEnv("DATABASE_URL", ""),
		RedisURL:       GetEnv("REDIS_URL", ""),
		Env:            GetEnv("ENV", "development"),
		LogLevel:       GetEnv("LOG_LEVEL", "info"),
		AuthScheme:     strings.ToLower(GetEnv("AUTH_SCHEME", AuthSchemeJWT)),
		JWTSecret:      GetEnv("JWT_SECRET", "dev-secret-change-me"),
		SharedPassword: GetEnv("SHARED_PASSWORD", "2025"),
		AdminUsername:  GetEnv("ADMIN_USERNAME", "adu"),
		AdminPassword:  GetEnv("ADMIN_PASSWORD", "1995"),
		UploadDir:      GetEnv("UPLOAD_DIR", "uploads"),
		AllowedOrigins: splitList(GetEnv("ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = durationEnv("WS_SEND_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.SendBuffer, err = intEnv("WS_SEND_BUFFER", 256); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit, err = intEnv("HISTORY_LIMIT", 50); err != nil {
		return nil, err
	}
	maxUpload, err := intEnv("MAX_UPLOAD_BYTES", 5<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.AuthScheme {
	case AuthSchemeJWT:
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required when AUTH_SCHEME=jwt")
		}
	case AuthSchemeBasic:
	default:
		return fmt.Errorf("unknown AUTH_SCHEME %q", c.AuthScheme)
	}
	if c.SharedPassword == "" && c.AdminPassword == "" {
		return errors.New("at least one of SHARED_PASSWORD or ADMIN_PASSWORD must be set")
	}
	if c.SendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.SendBuffer)
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := GetEnv(key, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := GetEnv(key, "")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
