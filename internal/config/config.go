package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	CORS      CORSConfig
	Pricing   PricingConfig
	Estimator EstimatorConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN builds the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisConfig holds Redis connection settings. Redis is optional; the
// estimate cache is bypassed when disabled.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

type CORSConfig struct {
	AllowOrigins []string
}

// PricingConfig holds the business ratios and payment fee constants fed into
// the cost engine. Values are plain strings so they parse losslessly into decimals.
type PricingConfig struct {
	WiseRatePercent      string
	WiseFixedFeeJpy      string
	AlibabaCCRatePercent string
	BankTransferFeeUsd   string
	DefaultCostRatio     string
	DefaultTaxRate       string
	FactoryAdvanceRatio  string
}

// EstimatorConfig tunes the smart quote estimator
type EstimatorConfig struct {
	RecencyHalfLifeDays float64
	CacheTTL            time.Duration
}

// Load reads configs/.env (best effort), an optional config.yaml and
// BROKER_-prefixed environment variables, in increasing priority.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("BROKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:         v.GetString("database.host"),
			Port:         v.GetInt("database.port"),
			User:         v.GetString("database.user"),
			Password:     v.GetString("database.password"),
			Name:         v.GetString("database.name"),
			SSLMode:      v.GetString("database.sslmode"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		CORS: CORSConfig{
			AllowOrigins: splitList(v.GetString("cors.allow_origins")),
		},
		Pricing: PricingConfig{
			WiseRatePercent:      v.GetString("pricing.wise_rate_percent"),
			WiseFixedFeeJpy:      v.GetString("pricing.wise_fixed_fee_jpy"),
			AlibabaCCRatePercent: v.GetString("pricing.alibaba_cc_rate_percent"),
			BankTransferFeeUsd:   v.GetString("pricing.bank_transfer_fee_usd"),
			DefaultCostRatio:     v.GetString("pricing.default_cost_ratio"),
			DefaultTaxRate:       v.GetString("pricing.default_tax_rate"),
			FactoryAdvanceRatio:  v.GetString("pricing.factory_advance_ratio"),
		},
		Estimator: EstimatorConfig{
			RecencyHalfLifeDays: v.GetFloat64("estimator.recency_half_life_days"),
			CacheTTL:            v.GetDuration("estimator.cache_ttl"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dealdesk")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("cors.allow_origins", "http://localhost:5173,http://127.0.0.1:5173")

	// Fee defaults mirror the values most screens used; operators are expected to override them.
	v.SetDefault("pricing.wise_rate_percent", "0.6")
	v.SetDefault("pricing.wise_fixed_fee_jpy", "150")
	v.SetDefault("pricing.alibaba_cc_rate_percent", "2.99")
	v.SetDefault("pricing.bank_transfer_fee_usd", "25")
	v.SetDefault("pricing.default_cost_ratio", "0.55")
	v.SetDefault("pricing.default_tax_rate", "10")
	v.SetDefault("pricing.factory_advance_ratio", "0.3")

	v.SetDefault("estimator.recency_half_life_days", 180)
	v.SetDefault("estimator.cache_ttl", "10m")
}

// Validate checks required settings
func (c *Config) Validate() error {
	if c.App.Env == "production" && c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required in production")
	}
	if c.Estimator.RecencyHalfLifeDays <= 0 {
		return fmt.Errorf("estimator.recency_half_life_days must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
