package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const DefaultRegion = "sa-east-1"

type AppConfig struct {
	// DefaultCity is used when a run is not given an explicit city. It may
	// be empty when every command passes --city.
	DefaultCity string `mapstructure:"default_city"`

	OpenWeather OpenWeatherConfig `mapstructure:"openweather"`
	Geocoder    GeocoderConfig    `mapstructure:"geocoder"`
	AWS         AWSConfig         `mapstructure:"aws"`
	Artifacts   ArtifactsConfig   `mapstructure:"artifacts"`
	Probe       ProbeConfig       `mapstructure:"probe"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Schedule    ScheduleConfig    `mapstructure:"schedule"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Log         LogConfig         `mapstructure:"log"`
}

type OpenWeatherConfig struct {
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	APIKey      string        `mapstructure:"api_key" validate:"required"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
}

type GeocoderConfig struct {
	Provider     string `mapstructure:"provider" validate:"oneof=openweather google"`
	GoogleAPIKey string `mapstructure:"google_api_key" validate:"required_if=Provider google"`
}

// AWSConfig holds the object storage target. Static credentials are
// optional; when both are empty the SDK default credential chain is used.
type AWSConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id" validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required_with=AccessKeyID"`
	Bucket          string `mapstructure:"bucket" validate:"required"`
	Region          string `mapstructure:"region" validate:"required"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

type ProbeConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type RetryConfig struct {
	Count int           `mapstructure:"count" validate:"min=0"`
	Delay time.Duration `mapstructure:"delay" validate:"min=0"`
}

type ScheduleConfig struct {
	Cron string `mapstructure:"cron" validate:"required"`
}

type LedgerConfig struct {
	// Path of the sqlite run ledger. Empty disables run history.
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

var validate = validator.New()

// envBindings maps configuration keys to the environment variables that
// override them.
var envBindings = map[string]string{
	"default_city":             "DEFAULT_CITY",
	"openweather.base_url":     "OPENWEATHER_BASE_URL",
	"openweather.api_key":      "OPENWEATHER_API_KEY",
	"openweather.http_timeout": "OPENWEATHER_HTTP_TIMEOUT",
	"geocoder.provider":        "GEOCODER_PROVIDER",
	"geocoder.google_api_key":  "GOOGLE_API_KEY",
	"aws.access_key_id":        "AWS_ACCESS_KEY_ID",
	"aws.secret_access_key":    "AWS_SECRET_ACCESS_KEY",
	"aws.bucket":               "S3_BUCKET_NAME",
	"aws.region":               "AWS_REGION",
	"aws.endpoint":             "S3_ENDPOINT",
	"aws.use_path_style":       "S3_USE_PATH_STYLE",
	"artifacts.dir":            "ARTIFACTS_DIR",
	"probe.interval":           "PROBE_INTERVAL",
	"probe.timeout":            "PROBE_TIMEOUT",
	"retry.count":              "RETRY_COUNT",
	"retry.delay":              "RETRY_DELAY",
	"schedule.cron":            "SCHEDULE_CRON",
	"ledger.path":              "LEDGER_PATH",
	"log.level":                "LOG_LEVEL",
	"log.format":               "LOG_FORMAT",
}

// Load reads configuration from an optional config file, a .env file and the
// environment, applies defaults and validates the result.
func Load(configPath string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}

	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("weather-etl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/weather-etl")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.DefaultCity = strings.TrimSpace(cfg.DefaultCity)
	cfg.OpenWeather.BaseURL = strings.TrimRight(cfg.OpenWeather.BaseURL, "/")
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = DefaultRegion
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and the schedule expression.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("invalid schedule.cron %q: %w", c.Schedule.Cron, err)
	}
	return nil
}

// City returns override when set, otherwise the configured default city.
func (c *AppConfig) City(override string) string {
	if city := strings.TrimSpace(override); city != "" {
		return city
	}
	return c.DefaultCity
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("openweather.base_url", "https://api.openweathermap.org")
	v.SetDefault("openweather.http_timeout", "10s")
	v.SetDefault("geocoder.provider", "openweather")
	v.SetDefault("aws.region", DefaultRegion)
	v.SetDefault("aws.use_path_style", false)
	v.SetDefault("artifacts.dir", "/tmp/weather_dag")
	v.SetDefault("probe.interval", "30s")
	v.SetDefault("probe.timeout", "300s")
	v.SetDefault("retry.count", 2)
	v.SetDefault("retry.delay", "2m")
	v.SetDefault("schedule.cron", "0 0 * * *")
	v.SetDefault("ledger.path", "./weather_etl.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
