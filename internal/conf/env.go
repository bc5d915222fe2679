// env.go - environment variable bindings
package conf

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

const envPrefix = "TERRAMA2"

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings lists variables whose names do not follow the automatic
// TERRAMA2_SECTION_KEY mapping or that need early validation.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"analysis.workers", "TERRAMA2_WORKERS", validateEnvPositiveInt},
		{"analysis.catalog", "TERRAMA2_CATALOG", nil},
		{"output.mysql.password", "TERRAMA2_MYSQL_PASSWORD", nil},
		{"mqtt.password", "TERRAMA2_MQTT_PASSWORD", nil},
		{"sentry.dsn", "SENTRY_DSN", nil},
	}
}

// bindEnvVars binds and validates the explicit environment variables
func bindEnvVars(v *viper.Viper) error {
	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			return fmt.Errorf("failed to bind %s: %w", binding.EnvVar, err)
		}
		if binding.Validate == nil {
			continue
		}
		if value, ok := os.LookupEnv(binding.EnvVar); ok {
			if err := binding.Validate(value); err != nil {
				return fmt.Errorf("invalid %s: %w", binding.EnvVar, err)
			}
		}
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}
