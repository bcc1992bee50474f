package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"lessonflow/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Backup       BackupConfig       `yaml:"backup"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
	API          APIConfig          `yaml:"api"`
	Booking      BookingConfig      `yaml:"booking"`
	Availability AvailabilityConfig `yaml:"availability"`
	Exports      ExportConfig       `yaml:"exports"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// Хранилища резервов слотов
const (
	ReservationBackendSQLite = "sqlite"
	ReservationBackendRedis  = "redis"
	ReservationBackendMemory = "memory"
)

type BookingConfig struct {
	ReservationTTLSeconds int    `yaml:"reservation_ttl_seconds"`
	SweepIntervalSeconds  int    `yaml:"sweep_interval_seconds"`
	SessionTTLSeconds     int    `yaml:"session_ttl_seconds"`
	ReservationBackend    string `yaml:"reservation_backend"`
	CommitRetries         int    `yaml:"commit_retries"`
}

func (b BookingConfig) ReservationTTL() time.Duration {
	return time.Duration(b.ReservationTTLSeconds) * time.Second
}

func (b BookingConfig) SweepInterval() time.Duration {
	return time.Duration(b.SweepIntervalSeconds) * time.Second
}

func (b BookingConfig) SessionTTL() time.Duration {
	return time.Duration(b.SessionTTLSeconds) * time.Second
}

// AvailabilityConfig describes the coach's weekly base availability. Keys are
// lower-case English weekday names, values are slot start times (HH:MM).
type AvailabilityConfig struct {
	Weekly map[string][]string `yaml:"weekly"`
}

// TimesFor returns the configured start times for the weekday of date.
func (a AvailabilityConfig) TimesFor(date time.Time) []string {
	return a.Weekly[strings.ToLower(date.Weekday().String())]
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

var weekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch c.Booking.ReservationBackend {
	case ReservationBackendSQLite, ReservationBackendMemory:
	case ReservationBackendRedis:
		if c.Redis.Address == "" {
			return errors.New("redis address is required for the redis reservation backend")
		}
	default:
		return fmt.Errorf("unknown reservation backend %q", c.Booking.ReservationBackend)
	}

	if c.Booking.ReservationTTLSeconds < 0 || c.Booking.SweepIntervalSeconds < 0 {
		return errors.New("booking intervals must not be negative")
	}

	if c.API.Auth.Enabled && c.API.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth is enabled but no api keys are configured")
	}

	return ValidateAvailability(c.Availability)
}

func ValidateAvailability(a AvailabilityConfig) error {
	for day, times := range a.Weekly {
		if !weekdays[day] {
			return fmt.Errorf("unknown weekday %q in availability", day)
		}
		seen := make(map[string]bool, len(times))
		for _, t := range times {
			if _, err := time.Parse(models.TimeLayout, t); err != nil {
				return fmt.Errorf("invalid time %q for %s: %w", t, day, err)
			}
			if seen[t] {
				return fmt.Errorf("duplicate time %s for %s", t, day)
			}
			seen[t] = true
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "lessonflow"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = models.RateLimitRPS
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = models.RateLimitBurst
	}

	// Booking defaults
	if c.Booking.ReservationTTLSeconds == 0 {
		c.Booking.ReservationTTLSeconds = models.DefaultReservationTTL
	}
	if c.Booking.SweepIntervalSeconds == 0 {
		c.Booking.SweepIntervalSeconds = models.DefaultSweepInterval
	}
	if c.Booking.SessionTTLSeconds == 0 {
		c.Booking.SessionTTLSeconds = models.DefaultSessionTTL
	}
	if c.Booking.ReservationBackend == "" {
		c.Booking.ReservationBackend = ReservationBackendSQLite
	}
	c.Booking.ReservationBackend = strings.ToLower(c.Booking.ReservationBackend)
	if c.Booking.CommitRetries == 0 {
		c.Booking.CommitRetries = models.DefaultCommitRetries
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
