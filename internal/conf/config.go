// config.go: settings for the analysis engine and the functions that load them.
package conf

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/guianderson/terrama2/internal/logger"
)

//go:embed config.yaml
var defaultConfigYAML string

// MainSettings identifies this engine instance.
type MainSettings struct {
	Name       string // instance name used in notifications
	InstanceID string // stable id published with run records
}

// AnalysisSettings controls the scheduler and the execution pipeline.
type AnalysisSettings struct {
	Workers     int           // worker pool size, fixed at service start
	QueueSize   int           // maximum pending requests across all analyses
	StopTimeout time.Duration // how long Stop waits for in-flight runs
	RowTimeout  time.Duration // per-row script evaluation limit, 0 disables
	Catalog     string        // path to the YAML project catalog
}

// SQLiteSettings configures the embedded output database.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings configures an external output database.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Host     string
	Port     string
	Database string
}

// OutputSettings selects where run logs and analysis results are persisted.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// CacheSettings controls the static geometry cache in the data accessor.
type CacheSettings struct {
	GeometryTTL time.Duration
}

// APISettings configures the HTTP submission endpoint.
type APISettings struct {
	Enabled bool
	Listen  string // host:port
	Metrics bool   // expose /metrics
}

// MQTTSettings configures run-completion publishing.
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// NotifySettings configures shoutrrr failure notifications.
type NotifySettings struct {
	Enabled    bool
	URLs       []string
	OnlyFailed bool
}

// SentrySettings configures optional error telemetry.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// Settings contains all configuration options for the engine.
type Settings struct {
	Debug    bool
	Main     MainSettings
	Logging  logger.LoggingConfig
	Analysis AnalysisSettings
	Output   OutputSettings
	Cache    CacheSettings
	API      APISettings
	MQTT     MQTTSettings
	Notify   NotifySettings
	Sentry   SentrySettings
}

// Load reads defaults, the optional config file at configPath and
// TERRAMA2_* environment variables into a validated Settings. Each call
// uses its own viper instance so several engines can coexist in one process.
func Load(configPath string) (*Settings, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// newViper initializes a viper instance with defaults, env bindings and the config file.
func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaultConfig(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if configPath == "" {
		v.SetConfigName("config")
		for _, path := range defaultConfigPaths() {
			v.AddConfigPath(path)
		}
	} else {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath == "" && errors.As(err, &notFound) {
			// No config file anywhere: defaults and environment only
			return v, nil
		}
		return nil, fmt.Errorf("fatal error reading config file: %w", err)
	}

	return v, nil
}

// DefaultConfigYAML returns the annotated default configuration file.
func DefaultConfigYAML() string {
	return defaultConfigYAML
}

func defaultConfigPaths() []string {
	return []string{".", "./config", "/etc/terrama2"}
}
