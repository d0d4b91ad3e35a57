package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"telemetry-pipeline/internal/logging"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Warehouse WarehouseConfig `mapstructure:"warehouse"`
	RunLog    RunLogConfig    `mapstructure:"runlog"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   logging.Config  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type TrackingConfig struct {
	URL         string        `mapstructure:"url"`
	ClientToken string        `mapstructure:"client_token"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	ClientID    string        `mapstructure:"client_id"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type WarehouseConfig struct {
	Driver       string        `mapstructure:"driver"` // bigquery or postgres
	Project      string        `mapstructure:"project"`
	Dataset      string        `mapstructure:"dataset"`
	Table        string        `mapstructure:"table"`
	DSN          string        `mapstructure:"dsn"` // postgres only
	VerifyWindow time.Duration `mapstructure:"verify_window"`
}

type RunLogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"` // postgres or sqlite
	DSN     string `mapstructure:"dsn"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Stream  string `mapstructure:"stream"`
	Subject string `mapstructure:"subject"`
}

type SchedulerConfig struct {
	Cron string `mapstructure:"cron"`
}

// Addr is the listen address of the trigger server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports every missing setting at once.
func (c *Config) Validate() error {
	var missing []string
	if c.Tracking.URL == "" {
		missing = append(missing, "tracking.url")
	}
	if c.Tracking.ClientToken == "" {
		missing = append(missing, "tracking.client_token")
	}
	if c.Tracking.Username == "" {
		missing = append(missing, "tracking.username")
	}
	if c.Tracking.Password == "" {
		missing = append(missing, "tracking.password")
	}
	if c.Warehouse.Dataset == "" {
		missing = append(missing, "warehouse.dataset")
	}
	if c.Warehouse.Table == "" {
		missing = append(missing, "warehouse.table")
	}

	switch strings.ToLower(c.Warehouse.Driver) {
	case "bigquery":
		if c.Warehouse.Project == "" {
			missing = append(missing, "warehouse.project")
		}
	case "postgres":
		if c.Warehouse.DSN == "" {
			missing = append(missing, "warehouse.dsn")
		}
	default:
		return fmt.Errorf("unsupported warehouse driver: %s. Only bigquery and postgres are supported", c.Warehouse.Driver)
	}

	if c.RunLog.Enabled {
		if c.RunLog.DSN == "" {
			missing = append(missing, "runlog.dsn")
		}
		switch strings.ToLower(c.RunLog.Driver) {
		case "postgres", "sqlite":
		default:
			return fmt.Errorf("unsupported run log driver: %s. Only postgres and sqlite are supported", c.RunLog.Driver)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Load reads an optional .env file, the optional YAML config at configPath
// (or configs/config.yaml) and the environment, in increasing precedence.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("tracking.url", "https://gateway.landairsea.com/Track/MyDevices")
	v.SetDefault("tracking.client_token", "")
	v.SetDefault("tracking.username", "")
	v.SetDefault("tracking.password", "")
	v.SetDefault("tracking.client_id", "rrs-pipeline-client")
	v.SetDefault("tracking.timeout", "30s")
	v.SetDefault("warehouse.driver", "bigquery")
	v.SetDefault("warehouse.project", "landairsea-rrs")
	v.SetDefault("warehouse.dataset", "LAS_RRS_deviceLocations")
	v.SetDefault("warehouse.table", "rrs_device_locations")
	v.SetDefault("warehouse.dsn", "")
	v.SetDefault("warehouse.verify_window", "5m")
	v.SetDefault("runlog.enabled", false)
	v.SetDefault("runlog.driver", "postgres")
	v.SetDefault("runlog.dsn", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.stream", "PIPELINE_RUNS")
	v.SetDefault("nats.subject", "pipeline.runs")
	v.SetDefault("scheduler.cron", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names used by the Cloud Run deployment.
	legacy := map[string]string{
		"tracking.client_token": "CLIENT_TOKEN",
		"tracking.username":     "USERNAME",
		"tracking.password":     "PASSWORD",
		"warehouse.project":     "GOOGLE_CLOUD_PROJECT",
		"server.port":           "PORT",
	}
	for key, name := range legacy {
		envKey := "PIPELINE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, name); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// GetConfigPath returns PIPELINE_CONFIG_PATH, configs/config.yaml when it
// exists, or "" to rely on defaults and the environment.
func GetConfigPath() string {
	if path := os.Getenv("PIPELINE_CONFIG_PATH"); path != "" {
		return path
	}
	configPath := filepath.Join("configs", "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}
	return ""
}
