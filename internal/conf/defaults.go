// conf/defaults.go default values for settings
package conf

import (
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "TerraMA2")
	v.SetDefault("main.instanceid", "")

	v.SetDefault("logging.defaultlevel", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.fileoutput.enabled", false)
	v.SetDefault("logging.fileoutput.path", "logs/terrama2.log")
	v.SetDefault("logging.fileoutput.level", "info")

	v.SetDefault("analysis.workers", runtime.NumCPU())
	v.SetDefault("analysis.queuesize", 256)
	v.SetDefault("analysis.stoptimeout", 30*time.Second)
	v.SetDefault("analysis.rowtimeout", 10*time.Second)
	v.SetDefault("analysis.catalog", "project.yaml")

	v.SetDefault("output.sqlite.enabled", true)
	v.SetDefault("output.sqlite.path", "terrama2.db")
	v.SetDefault("output.mysql.enabled", false)
	v.SetDefault("output.mysql.username", "")
	v.SetDefault("output.mysql.password", "")
	v.SetDefault("output.mysql.host", "localhost")
	v.SetDefault("output.mysql.port", "3306")
	v.SetDefault("output.mysql.database", "terrama2")

	v.SetDefault("cache.geometryttl", 10*time.Minute)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", "127.0.0.1:8080")
	v.SetDefault("api.metrics", true)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "terrama2/analysis")
	v.SetDefault("mqtt.clientid", "terrama2")
	v.SetDefault("mqtt.timeout", 5*time.Second)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.onlyfailed", true)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
}
