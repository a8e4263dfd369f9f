package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"leetmail/internal/leetcode"
	"leetmail/internal/scheduler"
	"leetmail/internal/slot"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	PublicURL            string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	CronSecret      string
	CronSecretHash  string
	JWTSecret       string
	TriggerTokenTTL time.Duration

	LeetcodeAPI string
	Slots       slot.Table

	Delivery         string // gmail or log
	GmailUser        string
	GmailCredentials string
	GmailToken       string

	Concurrency     int
	RatePerSec      float64
	TaskTimeout     time.Duration
	OracleTimeout   time.Duration
	DeliveryTimeout time.Duration
	CycleTimeout    time.Duration
	FailPolicy      scheduler.Policy
	Schedule        string

	LogLevel   string
	LogConsole bool
}

// SetDefaults registers every key so AutomaticEnv can resolve it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("public_url", "http://localhost:8080")
	v.SetDefault("cors_allowed_origins", "")
	v.SetDefault("cors_allow_credentials", false)
	v.SetDefault("cron_secret", "")
	v.SetDefault("cron_secret_hash", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("trigger_token_ttl", "15m")
	v.SetDefault("leetcode_api", leetcode.DefaultBaseURL)
	v.SetDefault("slots", slot.Default.String())
	v.SetDefault("delivery", "gmail")
	v.SetDefault("gmail_user", "")
	v.SetDefault("gmail_credentials", "credentials.json")
	v.SetDefault("gmail_token", "token.json")
	v.SetDefault("concurrency", 4)
	v.SetDefault("rate_per_sec", 5.0)
	v.SetDefault("task_timeout", "10s")
	v.SetDefault("oracle_timeout", "10s")
	v.SetDefault("delivery_timeout", "20s")
	v.SetDefault("cycle_timeout", "5m")
	v.SetDefault("fail_policy", "open")
	v.SetDefault("schedule", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_console", false)
}

// New returns a viper instance reading .env, the environment and an optional
// config.yaml in the working directory.
func New() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// ReadFile loads config.yaml if present. A missing file is not an error.
func ReadFile(v *viper.Viper) (string, error) {
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if errors.As(err, &nf) {
			return "", nil
		}
		return "", err
	}
	return v.ConfigFileUsed(), nil
}

func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTPAddr:             v.GetString("http_addr"),
		DatabaseURL:          strings.TrimSpace(v.GetString("database_url")),
		PublicURL:            strings.TrimRight(v.GetString("public_url"), "/"),
		CORSAllowCredentials: v.GetBool("cors_allow_credentials"),

		CronSecret:      v.GetString("cron_secret"),
		CronSecretHash:  v.GetString("cron_secret_hash"),
		JWTSecret:       v.GetString("jwt_secret"),
		TriggerTokenTTL: v.GetDuration("trigger_token_ttl"),

		LeetcodeAPI: v.GetString("leetcode_api"),

		Delivery:         strings.ToLower(v.GetString("delivery")),
		GmailUser:        v.GetString("gmail_user"),
		GmailCredentials: v.GetString("gmail_credentials"),
		GmailToken:       v.GetString("gmail_token"),

		Concurrency:     v.GetInt("concurrency"),
		RatePerSec:      v.GetFloat64("rate_per_sec"),
		TaskTimeout:     v.GetDuration("task_timeout"),
		OracleTimeout:   v.GetDuration("oracle_timeout"),
		DeliveryTimeout: v.GetDuration("delivery_timeout"),
		CycleTimeout:    v.GetDuration("cycle_timeout"),
		Schedule:        strings.TrimSpace(v.GetString("schedule")),

		LogLevel:   v.GetString("log_level"),
		LogConsole: v.GetBool("log_console"),
	}

	for _, o := range strings.Split(v.GetString("cors_allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	slots, err := slot.ParseTable(v.GetString("slots"))
	if err != nil {
		return Config{}, fmt.Errorf("SLOTS: %w", err)
	}
	cfg.Slots = slots

	if cfg.FailPolicy, err = scheduler.ParsePolicy(strings.ToLower(v.GetString("fail_policy"))); err != nil {
		return Config{}, fmt.Errorf("FAIL_POLICY: %w", err)
	}

	switch cfg.Delivery {
	case "gmail", "log":
	default:
		return Config{}, fmt.Errorf("DELIVERY: unknown mode %q (gmail|log)", cfg.Delivery)
	}
	if cfg.Concurrency < 1 {
		return Config{}, fmt.Errorf("CONCURRENCY must be at least 1, got %d", cfg.Concurrency)
	}
	if cfg.CycleTimeout <= 0 {
		return Config{}, fmt.Errorf("CYCLE_TIMEOUT must be positive, got %v", cfg.CycleTimeout)
	}
	if cfg.RatePerSec <= 0 {
		return Config{}, fmt.Errorf("RATE_PER_SEC must be positive, got %v", cfg.RatePerSec)
	}
	return cfg, nil
}

func (c Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("missing env: DATABASE_URL")
	}
	return nil
}

// RequireTrigger checks what the HTTP trigger needs: a secret to exchange
// and a key to sign tokens with.
func (c Config) RequireTrigger() error {
	if c.JWTSecret == "" {
		return errors.New("missing env: JWT_SECRET")
	}
	if c.CronSecret == "" && c.CronSecretHash == "" {
		return errors.New("missing env: CRON_SECRET or CRON_SECRET_HASH")
	}
	return nil
}

func (c Config) RequireGmail() error {
	if c.Delivery != "gmail" {
		return nil
	}
	if c.GmailUser == "" {
		return errors.New("missing env: GMAIL_USER")
	}
	return nil
}
