// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateAnalysisSettings(&settings.Analysis)...)
	ve.Errors = append(ve.Errors, validateOutputSettings(&settings.Output)...)
	ve.Errors = append(ve.Errors, validateAPISettings(&settings.API)...)
	ve.Errors = append(ve.Errors, validateMQTTSettings(&settings.MQTT)...)
	ve.Errors = append(ve.Errors, validateNotifySettings(&settings.Notify)...)

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry is enabled but no DSN is configured")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAnalysisSettings(s *AnalysisSettings) []string {
	var errs []string
	if s.Workers < 1 {
		errs = append(errs, fmt.Sprintf("analysis.workers must be at least 1, got %d", s.Workers))
	}
	if s.QueueSize < 1 {
		errs = append(errs, fmt.Sprintf("analysis.queuesize must be at least 1, got %d", s.QueueSize))
	}
	if s.StopTimeout < 0 {
		errs = append(errs, "analysis.stoptimeout must not be negative")
	}
	if s.RowTimeout < 0 {
		errs = append(errs, "analysis.rowtimeout must not be negative")
	}
	return errs
}

func validateOutputSettings(s *OutputSettings) []string {
	var errs []string
	switch {
	case s.SQLite.Enabled && s.MySQL.Enabled:
		errs = append(errs, "only one of output.sqlite and output.mysql can be enabled")
	case !s.SQLite.Enabled && !s.MySQL.Enabled:
		errs = append(errs, "one of output.sqlite or output.mysql must be enabled")
	}
	if s.SQLite.Enabled && s.SQLite.Path == "" {
		errs = append(errs, "output.sqlite.path is required")
	}
	if s.MySQL.Enabled {
		if s.MySQL.Host == "" || s.MySQL.Database == "" || s.MySQL.Username == "" {
			errs = append(errs, "output.mysql requires host, database and username")
		}
	}
	return errs
}

func validateAPISettings(s *APISettings) []string {
	if !s.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		return []string{fmt.Sprintf("api.listen %q is not a valid host:port: %v", s.Listen, err)}
	}
	return nil
}

func validateMQTTSettings(s *MQTTSettings) []string {
	if !s.Enabled {
		return nil
	}
	var errs []string
	u, err := url.Parse(s.Broker)
	if err != nil || u.Host == "" {
		errs = append(errs, fmt.Sprintf("mqtt.broker %q is not a valid broker URL", s.Broker))
	} else {
		switch u.Scheme {
		case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
		default:
			errs = append(errs, fmt.Sprintf("mqtt.broker scheme %q is not supported", u.Scheme))
		}
	}
	if strings.TrimSpace(s.Topic) == "" {
		errs = append(errs, "mqtt.topic is required")
	}
	return errs
}

func validateNotifySettings(s *NotifySettings) []string {
	if s.Enabled && len(s.URLs) == 0 {
		return []string{"notify is enabled but no service URLs are configured"}
	}
	return nil
}
