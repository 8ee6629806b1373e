package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	derived "settlement-recon/internal/derived/domain"
)

// RateLimitConfig bounds outbound fetch traffic.
type RateLimitConfig struct {
	Requests     int           `yaml:"requests"`
	Window       time.Duration `yaml:"window"`
	SafetyMargin time.Duration `yaml:"safety_margin"`
}

// RetryConfig shapes the period-repair retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Config defines the reconciliation engine configuration. Environment
// variables provide the defaults, RECON_CONFIG points at an optional yaml
// file that overrides them.
type Config struct {
	Tolerance        string            `yaml:"tolerance"`
	Parameters       map[string]string `yaml:"parameters"`
	RateLimit        RateLimitConfig   `yaml:"rate_limit"`
	Retry            RetryConfig       `yaml:"retry"`
	ThrottleCooldown time.Duration     `yaml:"throttle_cooldown"`
	FetchTimeout     time.Duration     `yaml:"fetch_timeout"`
	DateWorkers      int               `yaml:"date_workers"`
	PeriodWorkers    int               `yaml:"period_workers"`
}

// LoadConfig loads engine config from env, then an optional yaml file.
func LoadConfig() (Config, error) {
	cfg := Config{
		Tolerance: getenvDefault("RECON_TOLERANCE", "0.01"),
		RateLimit: RateLimitConfig{
			Requests:     getenvIntDefault("RECON_RATE_REQUESTS", 40),
			Window:       getenvDurationDefault("RECON_RATE_WINDOW", time.Minute),
			SafetyMargin: getenvDurationDefault("RECON_RATE_MARGIN", 250*time.Millisecond),
		},
		Retry: RetryConfig{
			MaxAttempts: getenvIntDefault("RECON_RETRY_ATTEMPTS", 4),
			BaseDelay:   getenvDurationDefault("RECON_RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:    getenvDurationDefault("RECON_RETRY_MAX_DELAY", 30*time.Second),
		},
		ThrottleCooldown: getenvDurationDefault("RECON_THROTTLE_COOLDOWN", 30*time.Second),
		FetchTimeout:     getenvDurationDefault("RECON_FETCH_TIMEOUT", 20*time.Second),
		DateWorkers:      getenvIntDefault("RECON_DATE_WORKERS", 2),
		PeriodWorkers:    getenvIntDefault("RECON_PERIOD_WORKERS", 4),
	}

	if path := os.Getenv("RECON_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if len(cfg.Parameters) == 0 {
		cfg.Parameters = map[string]string{"volume_weighted": "1"}
	}
	if cfg.RateLimit.Requests <= 0 || cfg.RateLimit.Window <= 0 {
		return cfg, errors.New("recon config: rate limit requests and window must be positive")
	}
	return cfg, nil
}

// ToleranceDecimal parses the configured sum tolerance.
func (c Config) ToleranceDecimal() (decimal.Decimal, error) {
	tolerance, err := decimal.NewFromString(c.Tolerance)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("recon config: tolerance %q: %w", c.Tolerance, err)
	}
	if tolerance.IsNegative() {
		return decimal.Decimal{}, errors.New("recon config: tolerance must not be negative")
	}
	return tolerance, nil
}

// ParameterCoefficients parses the per-parameter model coefficients.
func (c Config) ParameterCoefficients() (map[derived.ModelParameter]decimal.Decimal, error) {
	coefficients := make(map[derived.ModelParameter]decimal.Decimal, len(c.Parameters))
	for name, raw := range c.Parameters {
		coefficient, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("recon config: parameter %q coefficient %q: %w", name, raw, err)
		}
		coefficients[derived.ModelParameter(name)] = coefficient
	}
	return coefficients, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDurationDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
