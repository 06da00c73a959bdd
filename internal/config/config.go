// Package config loads the server configuration: defaults, then an optional
// YAML file, then STOCKSYNC_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rl1809/stock-sync/internal/core/service"
)

const envPrefix = "STOCKSYNC_"

type Config struct {
	OwnerID  string `yaml:"owner_id"`
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
	Log   LogConfig   `yaml:"log"`
	Sync  SyncConfig  `yaml:"sync"`
	Alert AlertConfig `yaml:"alerts"`
}

type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Migrate         bool          `yaml:"migrate"`
}

type RedisConfig struct {
	Addr            string `yaml:"addr"`
	PoolSize        int    `yaml:"pool_size"`
	NotificationCap int    `yaml:"notification_cap"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type SyncConfig struct {
	MaxRetries       int           `yaml:"max_retries"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	SubscribeTimeout time.Duration `yaml:"subscribe_timeout"`
	BulkConcurrency  int           `yaml:"bulk_concurrency"`
}

type AlertConfig struct {
	DedupWindow        time.Duration `yaml:"dedup_window"`
	DedupCapacity      int           `yaml:"dedup_capacity"`
	StockAlertCap      int           `yaml:"stock_alert_cap"`
	ExpiryAlertCap     int           `yaml:"expiry_alert_cap"`
	ExpiryWindowDays   int           `yaml:"expiry_window_days"`
	CriticalExpiryDays int           `yaml:"critical_expiry_days"`
	SummaryThreshold   int           `yaml:"summary_threshold"`
}

func Default() Config {
	alerts := service.DefaultAlertConfig()
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":50051",
		MySQL: MySQLConfig{
			DSN:             "root:root@tcp(localhost:3306)/stocksync?parseTime=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
			Migrate:         true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        100,
			NotificationCap: 200,
		},
		Log: LogConfig{Level: "info"},
		Sync: SyncConfig{
			MaxRetries:       service.DefaultMaxRetries,
			BaseDelay:        service.DefaultBaseDelay,
			SubscribeTimeout: 10 * time.Second,
			BulkConcurrency:  service.DefaultBulkConcurrency,
		},
		Alert: AlertConfig{
			DedupWindow:        60 * time.Second,
			DedupCapacity:      1024,
			StockAlertCap:      alerts.StockAlertCap,
			ExpiryAlertCap:     alerts.ExpiryAlertCap,
			ExpiryWindowDays:   alerts.ExpiryWindowDays,
			CriticalExpiryDays: alerts.CriticalExpiryDays,
			SummaryThreshold:   alerts.SummaryThreshold,
		},
	}
}

// Load reads path when it is non-empty and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(envPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("OWNER_ID", &c.OwnerID)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("GRPC_ADDR", &c.GRPCAddr)
	str("MYSQL_DSN", &c.MySQL.DSN)
	flag("MYSQL_MIGRATE", &c.MySQL.Migrate)
	str("REDIS_ADDR", &c.Redis.Addr)
	num("NOTIFICATION_CAP", &c.Redis.NotificationCap)
	str("LOG_LEVEL", &c.Log.Level)
	flag("LOG_JSON", &c.Log.JSON)
	num("MAX_RETRIES", &c.Sync.MaxRetries)
	dur("BASE_DELAY", &c.Sync.BaseDelay)
	dur("SUBSCRIBE_TIMEOUT", &c.Sync.SubscribeTimeout)
	num("BULK_CONCURRENCY", &c.Sync.BulkConcurrency)
	dur("DEDUP_WINDOW", &c.Alert.DedupWindow)
	num("DEDUP_CAPACITY", &c.Alert.DedupCapacity)
	num("SUMMARY_THRESHOLD", &c.Alert.SummaryThreshold)

	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positiveDur := func(name string, v time.Duration) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, v))
		}
	}

	if strings.TrimSpace(c.OwnerID) == "" {
		errs = append(errs, errors.New("owner_id is required"))
	}
	if c.MySQL.DSN == "" {
		errs = append(errs, errors.New("mysql.dsn is required"))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if c.Sync.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("sync.max_retries must not be negative, got %d", c.Sync.MaxRetries))
	}
	positiveDur("sync.base_delay", c.Sync.BaseDelay)
	positiveDur("sync.subscribe_timeout", c.Sync.SubscribeTimeout)
	positive("sync.bulk_concurrency", c.Sync.BulkConcurrency)
	positive("redis.notification_cap", c.Redis.NotificationCap)
	positiveDur("alerts.dedup_window", c.Alert.DedupWindow)
	positive("alerts.dedup_capacity", c.Alert.DedupCapacity)
	positive("alerts.stock_alert_cap", c.Alert.StockAlertCap)
	positive("alerts.expiry_alert_cap", c.Alert.ExpiryAlertCap)
	positive("alerts.expiry_window_days", c.Alert.ExpiryWindowDays)
	positive("alerts.summary_threshold", c.Alert.SummaryThreshold)
	if c.Alert.CriticalExpiryDays < 0 {
		errs = append(errs, fmt.Errorf("alerts.critical_expiry_days must not be negative, got %d", c.Alert.CriticalExpiryDays))
	}
	return errors.Join(errs...)
}

// Session maps the configuration onto the owner session settings.
func (c Config) Session() service.SessionConfig {
	return service.SessionConfig{
		OwnerID:         c.OwnerID,
		MaxRetries:      c.Sync.MaxRetries,
		BaseDelay:       c.Sync.BaseDelay,
		DedupWindow:     c.Alert.DedupWindow,
		DedupCapacity:   c.Alert.DedupCapacity,
		BulkConcurrency: c.Sync.BulkConcurrency,
		Alerts: service.AlertConfig{
			StockAlertCap:      c.Alert.StockAlertCap,
			ExpiryAlertCap:     c.Alert.ExpiryAlertCap,
			ExpiryWindowDays:   c.Alert.ExpiryWindowDays,
			CriticalExpiryDays: c.Alert.CriticalExpiryDays,
			SummaryThreshold:   c.Alert.SummaryThreshold,
		},
	}
}
