package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Sweep    SweepConfig
	Telegram TelegramConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
	// SiteURL is the public base URL of this service; redirect and webhook
	// URLs handed to the provider are built from it.
	SiteURL     string
	CheckoutURL string
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

// GatewayConfig holds the PipraPay connection settings. Loaded once at boot
// and treated as read-only during request handling.
type GatewayConfig struct {
	APIURL        string
	APIKey        string
	WebhookSecret string
	Currency      string
	// VerifyWebhook enables the server-to-server verify-payments call before
	// a webhook body is trusted.
	VerifyWebhook bool
}

type SweepConfig struct {
	// Spec is a robfig/cron schedule expression for the pending-order
	// recovery sweep.
	Spec          string
	PendingMaxAge time.Duration
	// PendingExpiry is how long a pending order with a provider charge may
	// stay unpaid before the sweep marks it failed.
	PendingExpiry time.Duration
	LogRetention  time.Duration
}

type TelegramConfig struct {
	BotToken   string
	ReportChat string
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("PIPRAPAY_API_URL", "https://sandbox.piprapay.com/api")
	viper.SetDefault("PIPRAPAY_CURRENCY", "BDT")
	viper.SetDefault("PIPRAPAY_VERIFY_WEBHOOK", false)
	viper.SetDefault("RECONCILE_SWEEP_SPEC", "@every 10m")
	viper.SetDefault("PENDING_MAX_AGE", "15m")
	viper.SetDefault("PENDING_EXPIRY", "24h")
	viper.SetDefault("GATEWAY_LOG_RETENTION", "720h")

	pendingMaxAge, err := time.ParseDuration(viper.GetString("PENDING_MAX_AGE"))
	if err != nil {
		pendingMaxAge = 15 * time.Minute
	}
	pendingExpiry, err := time.ParseDuration(viper.GetString("PENDING_EXPIRY"))
	if err != nil {
		pendingExpiry = 24 * time.Hour
	}
	logRetention, err := time.ParseDuration(viper.GetString("GATEWAY_LOG_RETENTION"))
	if err != nil {
		logRetention = 720 * time.Hour
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        viper.GetInt("APP_PORT"),
			Env:         viper.GetString("APP_ENV"),
			SiteURL:     strings.TrimRight(viper.GetString("SITE_URL"), "/"),
			CheckoutURL: viper.GetString("CHECKOUT_URL"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Gateway: GatewayConfig{
			APIURL:        strings.TrimRight(viper.GetString("PIPRAPAY_API_URL"), "/"),
			APIKey:        viper.GetString("PIPRAPAY_API_KEY"),
			WebhookSecret: viper.GetString("PIPRAPAY_WEBHOOK_SECRET"),
			Currency:      viper.GetString("PIPRAPAY_CURRENCY"),
			VerifyWebhook: viper.GetBool("PIPRAPAY_VERIFY_WEBHOOK"),
		},
		Sweep: SweepConfig{
			Spec:          viper.GetString("RECONCILE_SWEEP_SPEC"),
			PendingMaxAge: pendingMaxAge,
			PendingExpiry: pendingExpiry,
			LogRetention:  logRetention,
		},
		Telegram: TelegramConfig{
			BotToken:   viper.GetString("TELEGRAM_BOT_TOKEN"),
			ReportChat: viper.GetString("TELEGRAM_REPORT_CHAT"),
		},
	}

	// Inbound webhooks are checked against the dedicated webhook secret.
	// When none is configured the API key is the secret; this is the single
	// precedence rule for the shared value.
	if cfg.Gateway.WebhookSecret == "" {
		cfg.Gateway.WebhookSecret = cfg.Gateway.APIKey
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.Gateway.APIKey == "" {
		log.Println("WARNING: PIPRAPAY_API_KEY is not set")
	}
	if cfg.Server.SiteURL == "" {
		log.Println("WARNING: SITE_URL is not set; provider callbacks will not resolve")
	}

	return cfg, nil
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
