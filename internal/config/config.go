// Package config loads server settings from the environment.
//
// A .env file in the working directory is loaded first (unless ENV=prod),
// then every setting is read from the process environment with a default.
// Load validates the result so a misconfigured server fails at startup
// instead of on the first request.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"

	NotifierLog   = "log"
	NotifierSMTP  = "smtp"
	NotifierKafka = "kafka"
)

// OAuthClient holds one provider's credentials. A provider with an empty
// ClientID is disabled.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

func (c OAuthClient) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Kafka struct {
	Broker   string
	Topic    string
	Username string
	Password string
}

type Config struct {
	Port int

	DatabaseType string
	DBPath       string // sqlite file, or ":memory:"
	DatabaseURL  string // postgres DSN

	SessionSecret  string
	SessionTTL     time.Duration
	CookieSecure   bool
	CookieSameSite http.SameSite

	FrontendURL   string
	ProfileDomain string

	Google   OAuthClient
	LinkedIn OAuthClient

	Notifier string
	SMTP     SMTP
	Kafka    Kafka

	LogLevel  slog.Level
	LogFormat string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if os.Getenv("ENV") != "prod" {
		// A missing .env is normal outside development.
		_ = godotenv.Load()
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Tests pass a map-backed
// getenv instead of touching the process environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	var errs []error

	port, err := strconv.Atoi(get("PORT", "5000"))
	if err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a valid port number"))
	}

	ttl, err := time.ParseDuration(get("SESSION_TTL", "24h"))
	if err != nil || ttl <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be a positive duration"))
	}

	secure, err := strconv.ParseBool(get("COOKIE_SECURE", "true"))
	if err != nil {
		errs = append(errs, fmt.Errorf("COOKIE_SECURE must be true or false"))
	}

	sameSite, err := parseSameSite(get("COOKIE_SAMESITE", "none"))
	if err != nil {
		errs = append(errs, err)
	}

	smtpPort, err := strconv.Atoi(get("SMTP_PORT", "587"))
	if err != nil {
		errs = append(errs, fmt.Errorf("SMTP_PORT must be a number"))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	baseURL := fmt.Sprintf("http://localhost:%d", port)
	cfg := &Config{
		Port:           port,
		DatabaseType:   strings.ToLower(get("DATABASE_TYPE", DatabaseSQLite)),
		DBPath:         get("DB_PATH", "data/ballot.db"),
		DatabaseURL:    get("DATABASE_URL", ""),
		SessionSecret:  get("SESSION_SECRET", ""),
		SessionTTL:     ttl,
		CookieSecure:   secure,
		CookieSameSite: sameSite,
		FrontendURL:    strings.TrimRight(get("FRONTEND_URL", "http://localhost:3000"), "/"),
		ProfileDomain:  strings.ToLower(get("PROFILE_DOMAIN", "linkedin.com")),
		Google: OAuthClient{
			ClientID:     get("GOOGLE_CLIENT_ID", ""),
			ClientSecret: get("GOOGLE_CLIENT_SECRET", ""),
			CallbackURL:  get("GOOGLE_CALLBACK_URL", baseURL+"/auth/google/callback"),
		},
		LinkedIn: OAuthClient{
			ClientID:     get("LINKEDIN_CLIENT_ID", ""),
			ClientSecret: get("LINKEDIN_CLIENT_SECRET", ""),
			CallbackURL:  get("LINKEDIN_CALLBACK_URL", baseURL+"/auth/linkedin/callback"),
		},
		Notifier: strings.ToLower(get("NOTIFIER", NotifierLog)),
		SMTP: SMTP{
			Host:     get("SMTP_HOST", "smtp.gmail.com"),
			Port:     smtpPort,
			Username: get("SMTP_USER", ""),
			Password: get("SMTP_PASS", ""),
			From:     get("SMTP_FROM", get("SMTP_USER", "")),
		},
		Kafka: Kafka{
			Broker:   get("KAFKA_BROKER", ""),
			Topic:    get("KAFKA_TOPIC", "password-reset"),
			Username: get("KAFKA_USERNAME", ""),
			Password: get("KAFKA_PASSWORD", ""),
		},
		LogLevel:  level,
		LogFormat: strings.ToLower(get("LOG_FORMAT", "text")),
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error

	if len(c.SessionSecret) < 16 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 16 characters"))
	}

	switch c.DatabaseType {
	case DatabaseSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case DatabasePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DATABASE_TYPE %q is not one of sqlite, postgres", c.DatabaseType))
	}

	switch c.Notifier {
	case NotifierLog:
	case NotifierSMTP:
		if c.SMTP.Username == "" || c.SMTP.Password == "" {
			errs = append(errs, errors.New("SMTP_USER and SMTP_PASS are required for the smtp notifier"))
		}
	case NotifierKafka:
		if c.Kafka.Broker == "" {
			errs = append(errs, errors.New("KAFKA_BROKER is required for the kafka notifier"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIFIER %q is not one of log, smtp, kafka", c.Notifier))
	}

	// Browsers drop SameSite=None cookies that are not Secure.
	if c.CookieSameSite == http.SameSiteNoneMode && !c.CookieSecure {
		errs = append(errs, errors.New("COOKIE_SAMESITE=none requires COOKIE_SECURE=true"))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not one of text, json", c.LogFormat))
	}

	return errs
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(s) {
	case "none":
		return http.SameSiteNoneMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	default:
		return http.SameSiteDefaultMode, fmt.Errorf("COOKIE_SAMESITE %q is not one of none, lax, strict", s)
	}
}

// NewLogger builds the process logger described by the config.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
