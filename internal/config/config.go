package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const sqlitePrefix = "sqlite:"

type Config struct {
	DatabaseURI        string
	HTTPAddr           string
	TickInterval       time.Duration
	SendTimeout        time.Duration
	TestimonialBaseURL string
	EnforcePolicy      bool

	EmailFrom    string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	TelegramToken       string
	TelegramAlertChatID int64

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, after loading an optional .env file.
func Load() (*Config, error) {
	// .env file is optional in production
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("TICK_INTERVAL", "60s")
	v.SetDefault("SEND_TIMEOUT", "30s")
	v.SetDefault("TESTIMONIAL_BASE_URL", "http://localhost:8080")
	v.SetDefault("ENFORCE_REMINDER_POLICY", false)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	cfg := &Config{
		DatabaseURI:        v.GetString("DATABASE_URI"),
		HTTPAddr:           v.GetString("HTTP_ADDR"),
		TickInterval:       v.GetDuration("TICK_INTERVAL"),
		SendTimeout:        v.GetDuration("SEND_TIMEOUT"),
		TestimonialBaseURL: v.GetString("TESTIMONIAL_BASE_URL"),
		EnforcePolicy:      v.GetBool("ENFORCE_REMINDER_POLICY"),

		EmailFrom:    v.GetString("EMAIL_FROM"),
		SMTPHost:     v.GetString("SMTP_HOST"),
		SMTPPort:     v.GetInt("SMTP_PORT"),
		SMTPUsername: v.GetString("SMTP_USERNAME"),
		SMTPPassword: v.GetString("SMTP_PASSWORD"),

		TwilioAccountSID: v.GetString("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  v.GetString("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: v.GetString("TWILIO_FROM_NUMBER"),

		TelegramToken:       v.GetString("TELEGRAM_TOKEN"),
		TelegramAlertChatID: v.GetInt64("TELEGRAM_ALERT_CHAT_ID"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURI == "" {
		errs = append(errs, errors.New("DATABASE_URI is required"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("TICK_INTERVAL must be a positive duration"))
	}
	if c.SendTimeout <= 0 {
		errs = append(errs, errors.New("SEND_TIMEOUT must be a positive duration"))
	}
	return errors.Join(errs...)
}

// SQLitePath returns the database file when DATABASE_URI uses the sqlite: scheme.
func (c *Config) SQLitePath() (string, bool) {
	if !strings.HasPrefix(c.DatabaseURI, sqlitePrefix) {
		return "", false
	}
	return strings.TrimPrefix(c.DatabaseURI, sqlitePrefix), true
}

func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.EmailFrom != ""
}

func (c *Config) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

func (c *Config) AlertsEnabled() bool {
	return c.TelegramToken != "" && c.TelegramAlertChatID != 0
}
