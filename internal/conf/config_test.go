package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsFromEmbeddedConfig(t *testing.T) {
	settings, err := Load(writeConfig(t, DefaultConfigYAML()))
	require.NoError(t, err)

	assert.Equal(t, "TerraMA2", settings.Main.Name)
	assert.Equal(t, 4, settings.Analysis.Workers)
	assert.Equal(t, 30*time.Second, settings.Analysis.StopTimeout)
	assert.Equal(t, 10*time.Second, settings.Analysis.RowTimeout)
	assert.True(t, settings.Output.SQLite.Enabled)
	assert.Equal(t, 10*time.Minute, settings.Cache.GeometryTTL)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
}

func TestLoadOverridesAndEnvironment(t *testing.T) {
	t.Setenv("TERRAMA2_WORKERS", "9")

	path := writeConfig(t, `
analysis:
  workers: 2
  rowtimeout: 250ms
output:
  sqlite:
    path: /tmp/out.db
`)
	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9, settings.Analysis.Workers, "environment wins over file")
	assert.Equal(t, 250*time.Millisecond, settings.Analysis.RowTimeout)
	assert.Equal(t, "/tmp/out.db", settings.Output.SQLite.Path)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("TERRAMA2_WORKERS", "zero")

	_, err := Load(writeConfig(t, "main:\n  name: test\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TERRAMA2_WORKERS")
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	t.Parallel()

	settings := &Settings{
		Analysis: AnalysisSettings{Workers: 0, QueueSize: 0},
		Output: OutputSettings{
			SQLite: SQLiteSettings{Enabled: true, Path: "a.db"},
			MySQL:  MySQLSettings{Enabled: true, Host: "db", Database: "t", Username: "u"},
		},
		API:    APISettings{Enabled: true, Listen: "no-port"},
		MQTT:   MQTTSettings{Enabled: true, Broker: "http://broker:1883", Topic: ""},
		Notify: NotifySettings{Enabled: true},
		Sentry: SentrySettings{Enabled: true},
	}

	err := ValidateSettings(settings)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 8)
}

func TestValidateSettingsAcceptsMinimalConfig(t *testing.T) {
	t.Parallel()

	settings := &Settings{
		Analysis: AnalysisSettings{Workers: 1, QueueSize: 1},
		Output:   OutputSettings{SQLite: SQLiteSettings{Enabled: true, Path: "out.db"}},
	}
	assert.NoError(t, ValidateSettings(settings))
}
