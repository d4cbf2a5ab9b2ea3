package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// AppName names the XDG subdirectories used for cache and config files.
const AppName = "garbagecal"

// Config holds all service settings. Values come from built-in defaults,
// then the optional YAML file, then environment variables.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr" validate:"required"`
	LogLevel        string        `yaml:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat       string        `yaml:"log_format" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `yaml:"-"`

	// Address resolution.
	Locality              string        `yaml:"locality" validate:"required"`
	GeocodeURL            string        `yaml:"geocode_url" validate:"required,url"`
	GeocodeAPIKey         string        `yaml:"geocode_api_key"`
	GeocodeConnectTimeout time.Duration `yaml:"geocode_connect_timeout" validate:"gt=0"`
	GeocodeCacheSize      int           `yaml:"geocode_cache_size" validate:"gt=0"`

	// Calendar source.
	CalendarURL            string        `yaml:"calendar_url" validate:"required,url"`
	CalendarConnectTimeout time.Duration `yaml:"calendar_connect_timeout" validate:"gt=0"`
	RefreshInterval        time.Duration `yaml:"refresh_interval" validate:"gt=0"`

	// Local state.
	CacheDir  string `yaml:"cache_dir" validate:"required"`
	PrefsFile string `yaml:"prefs_file" validate:"required"`

	// Optional Kafka sink for calendar change events. Empty brokers disable it.
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic" validate:"required_with=KafkaBrokers"`

	// Optional MQTT reminders. An empty broker disables them.
	MQTTBroker       string `yaml:"mqtt_broker"`
	MQTTTopic        string `yaml:"mqtt_topic" validate:"required_with=MQTTBroker"`
	MQTTClientID     string `yaml:"mqtt_client_id"`
	ReminderHour     int    `yaml:"reminder_hour" validate:"min=0,max=23"`
	ReminderLeadDays int    `yaml:"reminder_lead_days" validate:"min=0,max=7"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:               ":8080",
		LogLevel:               "info",
		LogFormat:              "json",
		ShutdownTimeout:        10 * time.Second,
		Locality:               "Gent",
		GeocodeURL:             "https://maps.googleapis.com/maps/api/geocode/json",
		GeocodeConnectTimeout:  time.Second,
		GeocodeCacheSize:       256,
		CalendarURL:            "http://localhost:8081",
		CalendarConnectTimeout: time.Second,
		RefreshInterval:        6 * time.Hour,
		CacheDir:               filepath.Join(xdg.CacheHome, AppName),
		PrefsFile:              filepath.Join(xdg.ConfigHome, AppName, "prefs.json"),
		KafkaTopic:             "garbagecal-calendar-updates",
		MQTTTopic:              "garbagecal/reminders",
		MQTTClientID:           AppName,
		ReminderHour:           19,
		ReminderLeadDays:       1,
	}
}

// Load reads configuration, applying defaults where unset. The YAML file named
// by GARBAGECAL_CONFIG is required to exist when set; otherwise
// $XDG_CONFIG_HOME/garbagecal/config.yaml is used if present.
func Load() (*Config, error) {
	cfg := Default()

	path, explicit := os.LookupEnv("GARBAGECAL_CONFIG")
	if !explicit {
		path = filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
	}
	if err := cfg.overlayFile(path, explicit); err != nil {
		return nil, err
	}

	if err := cfg.overlayEnv(); err != nil {
		return nil, err
	}

	var err error
	if cfg.CacheDir, err = homedir.Expand(cfg.CacheDir); err != nil {
		return nil, fmt.Errorf("invalid CACHE_DIR: %w", err)
	}
	if cfg.PrefsFile, err = homedir.Expand(cfg.PrefsFile); err != nil {
		return nil, fmt.Errorf("invalid PREFS_FILE: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &cfg, nil
}

// KafkaEnabled reports whether calendar updates are published.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// MQTTEnabled reports whether reminders are published over MQTT.
func (c *Config) MQTTEnabled() bool { return c.MQTTBroker != "" }

func (c *Config) overlayFile(path string, required bool) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("invalid GARBAGECAL_CONFIG: %w", err)
	}

	data, err := os.ReadFile(expanded)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unable to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("unable to unmarshal config file %s: %w", expanded, err)
	}
	return nil
}

func (c *Config) overlayEnv() error {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return err
	}
	c.ShutdownTimeout = shutdownTimeout

	c.HTTPAddr = sharedcfg.EnvOrDefault("HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = sharedcfg.EnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = sharedcfg.EnvOrDefault("LOG_FORMAT", c.LogFormat)

	c.Locality = sharedcfg.EnvOrDefault("LOCALITY", c.Locality)
	c.GeocodeURL = sharedcfg.EnvOrDefault("GEOCODE_URL", c.GeocodeURL)
	c.GeocodeAPIKey = sharedcfg.EnvOrDefault("GEOCODE_API_KEY", c.GeocodeAPIKey)
	c.CalendarURL = sharedcfg.EnvOrDefault("CALENDAR_URL", c.CalendarURL)
	c.CacheDir = sharedcfg.EnvOrDefault("CACHE_DIR", c.CacheDir)
	c.PrefsFile = sharedcfg.EnvOrDefault("PREFS_FILE", c.PrefsFile)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"GEOCODE_CONNECT_TIMEOUT", &c.GeocodeConnectTimeout},
		{"CALENDAR_CONNECT_TIMEOUT", &c.CalendarConnectTimeout},
		{"REFRESH_INTERVAL", &c.RefreshInterval},
	}
	for _, d := range durations {
		if err := envDuration(d.key, d.dst); err != nil {
			return err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"GEOCODE_CACHE_SIZE", &c.GeocodeCacheSize},
		{"REMINDER_HOUR", &c.ReminderHour},
		{"REMINDER_LEAD_DAYS", &c.ReminderLeadDays},
	}
	for _, n := range ints {
		if err := envInt(n.key, n.dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = sharedcfg.ParseBrokers(v)
	}
	c.KafkaTopic = sharedcfg.EnvOrDefault("KAFKA_TOPIC", c.KafkaTopic)

	c.MQTTBroker = sharedcfg.EnvOrDefault("MQTT_BROKER", c.MQTTBroker)
	c.MQTTTopic = sharedcfg.EnvOrDefault("MQTT_TOPIC", c.MQTTTopic)
	c.MQTTClientID = sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", c.MQTTClientID)

	return nil
}

func envDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid %s", key)
	}
	*dst = d
	return nil
}

func envInt(key string, dst *int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid %s", key)
	}
	*dst = n
	return nil
}
