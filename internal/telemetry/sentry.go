// Package telemetry initializes optional Sentry error reporting. Errors reach
// Sentry through the errors package once a SentryReporter is installed.
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/guianderson/terrama2/internal/conf"
	"github.com/guianderson/terrama2/internal/errors"
)

const flushTimeout = 2 * time.Second

var sentryInitialized atomic.Bool

// InitSentry configures the Sentry client and installs the error reporter.
// It is a no-op when telemetry is disabled.
func InitSentry(settings *conf.Settings) error {
	if !settings.Sentry.Enabled {
		return nil
	}
	if err := initSentry(settings, sentry.ClientOptions{Dsn: settings.Sentry.DSN}); err != nil {
		return err
	}
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	return nil
}

func initSentry(settings *conf.Settings, opts sentry.ClientOptions) error {
	opts.SampleRate = 1.0
	opts.AttachStacktrace = false
	opts.Environment = "production"
	opts.ServerName = ""
	opts.Release = "terrama2@" + releaseName(settings)
	opts.BeforeSend = func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
		return applyPrivacyFilters(event)
	}

	if err := sentry.Init(opts); err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("instance_id", settings.Main.InstanceID)
	})
	sentryInitialized.Store(true)
	return nil
}

func releaseName(settings *conf.Settings) string {
	if settings.Main.Name != "" {
		return settings.Main.Name
	}
	return "engine"
}

// Flush waits for buffered events before shutdown.
func Flush() {
	if sentryInitialized.Load() {
		sentry.Flush(flushTimeout)
	}
}

// applyPrivacyFilters removes host and user identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}
