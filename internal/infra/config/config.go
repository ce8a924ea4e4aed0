package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingSetting = errors.New("required setting is not set")
	ErrInvalidSetting = errors.New("invalid setting")
)

// AppConfig holds all configuration for the application.
// It is loaded once at startup and treated as read-only afterwards.
type AppConfig struct {
	DatabaseURL string

	MailServer        string
	MailPort          int
	MailUsername      string
	MailPassword      string
	MailDefaultSender string
	MailSenderName    string
	MailLogoPath      string
	MailSendTimeout   time.Duration
	MailRetryCount    int
	MailRetryBackoff  time.Duration
	MailRatePerMinute int
	SupportEmail      string

	LogLevel    string
	LogFile     string
	Environment string

	RulesFile      string
	PushgatewayURL string
	CronSpec       string
}

// Load reads configuration from environment variables and .env file (if present).
// Missing required values fail immediately with an error naming the variable.
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL, err = databaseURL()
	if err != nil {
		return nil, err
	}

	if cfg.MailUsername, err = required("MAIL_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.MailPassword, err = required("MAIL_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.MailDefaultSender, err = required("MAIL_DEFAULT_SENDER"); err != nil {
		return nil, err
	}

	cfg.MailServer = withDefault("MAIL_SERVER", "smtp.office365.com")
	if cfg.MailPort, err = intSetting("MAIL_PORT", 465); err != nil {
		return nil, err
	}
	cfg.MailSenderName = withDefault("MAIL_SENDER_NAME", "The Ribbon Team")
	cfg.MailLogoPath = os.Getenv("MAIL_LOGO_PATH")
	cfg.SupportEmail = os.Getenv("SUPPORT_EMAIL")
	if cfg.MailSendTimeout, err = durationSetting("MAIL_SEND_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.MailRetryCount, err = intSetting("MAIL_RETRY_COUNT", 2); err != nil {
		return nil, err
	}
	if cfg.MailRetryBackoff, err = durationSetting("MAIL_RETRY_BACKOFF", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.MailRatePerMinute, err = intSetting("MAIL_RATE_PER_MINUTE", 0); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(withDefault("LOG_LEVEL", "info"))
	cfg.LogFile = withDefault("LOG_FILE", "renewal_email_notifier.log")
	cfg.Environment = strings.ToLower(withDefault("ENVIRONMENT", "development"))

	cfg.RulesFile = os.Getenv("RENEWAL_RULES_FILE")
	cfg.PushgatewayURL = os.Getenv("PUSHGATEWAY_URL")
	cfg.CronSpec = withDefault("CRON_SPEC", "0 8 * * *") // Default: 08:00 daily

	return cfg, nil
}

// databaseURL prefers DATABASE_URL and otherwise assembles a postgres URL from the DB_* parts.
func databaseURL() (string, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn, nil
	}

	host, err := required("DB_HOST")
	if err != nil {
		return "", err
	}
	user, err := required("DB_USER")
	if err != nil {
		return "", err
	}
	pass, err := required("DB_PASS")
	if err != nil {
		return "", err
	}
	name, err := required("DB_NAME")
	if err != nil {
		return "", err
	}
	port, err := intSetting("DB_PORT", 5432)
	if err != nil {
		return "", err
	}

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + name,
		RawQuery: url.Values{"sslmode": {withDefault("DB_SSLMODE", "require")}}.Encode(),
	}
	return u.String(), nil
}

func required(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingSetting, key)
	}
	return v, nil
}

func withDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intSetting(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s=%q is not a non-negative integer", ErrInvalidSetting, key, raw)
	}
	return v, nil
}

func durationSetting(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s=%q is not a positive duration", ErrInvalidSetting, key, raw)
	}
	return v, nil
}
