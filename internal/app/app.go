// Package app assembles an analysis engine from settings: catalog, output
// database, data accessor, scheduler, observers and the optional HTTP API.
package app

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/guianderson/terrama2/internal/accessor"
	"github.com/guianderson/terrama2/internal/analysis"
	"github.com/guianderson/terrama2/internal/api"
	"github.com/guianderson/terrama2/internal/catalog"
	"github.com/guianderson/terrama2/internal/conf"
	"github.com/guianderson/terrama2/internal/datastore"
	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/geometry"
	"github.com/guianderson/terrama2/internal/logger"
	"github.com/guianderson/terrama2/internal/notify"
	"github.com/guianderson/terrama2/internal/observability"
	"github.com/guianderson/terrama2/internal/telemetry"
)

const notifyTimeout = 10 * time.Second

// Options tune New for the command being run.
type Options struct {
	// Catalog replaces the catalog file named in the settings.
	Catalog *catalog.Catalog
	// DisableAPI skips the HTTP server even when settings enable it.
	DisableAPI bool
	Logger     logger.Logger
}

// App is a wired engine instance.
type App struct {
	settings *conf.Settings
	log      logger.Logger

	catalog *catalog.Catalog
	store   *datastore.Store
	metrics *observability.Metrics
	mqtt    notify.Client
	service *analysis.Service
	server  *api.Server

	closeOnce sync.Once
}

// New wires every component the settings enable. Nothing is started.
func New(settings *conf.Settings, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	}
	a := &App{settings: settings, log: log.Module("app")}

	if err := telemetry.InitSentry(settings); err != nil {
		a.log.Warn("sentry disabled", logger.Error(err))
	}

	a.catalog = opts.Catalog
	if a.catalog == nil {
		cat, err := catalog.LoadFile(settings.Analysis.Catalog)
		if err != nil {
			return nil, err
		}
		a.catalog = cat
	}

	store, err := datastore.Open(settings, log)
	if err != nil {
		return nil, err
	}
	a.store = store

	metrics, err := observability.NewMetrics()
	if err != nil {
		_ = store.Close()
		return nil, errors.New(err).Category(errors.CategoryGeneric).Context("operation", "create_metrics").Build()
	}
	a.metrics = metrics

	observers := []analysis.Observer{metrics}
	if settings.MQTT.Enabled {
		a.mqtt = notify.NewMQTTClient(settings.MQTT, metrics.MQTT, log)
		observers = append(observers, notify.NewPublisher(a.mqtt, settings.MQTT.Topic, settings.MQTT.Timeout, log))
	}
	if settings.Notify.Enabled {
		n, err := notify.NewShoutrrrNotifier(settings.Main.Name, settings.Notify.URLs, settings.Notify.OnlyFailed, notifyTimeout, log)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		observers = append(observers, n)
	}

	svc, err := analysis.NewService(analysis.Config{
		Catalog: a.catalog,
		Accessor: accessor.New(accessor.Config{
			Catalog:     a.catalog,
			Store:       store,
			GeometryTTL: settings.Cache.GeometryTTL,
			Logger:      log,
		}),
		Engine:      geometry.NewEngine(),
		RunLog:      store,
		Writer:      store,
		Workers:     settings.Analysis.Workers,
		QueueSize:   settings.Analysis.QueueSize,
		RowTimeout:  settings.Analysis.RowTimeout,
		StopTimeout: settings.Analysis.StopTimeout,
		InstanceID:  settings.Main.InstanceID,
		Observers:   observers,
		Logger:      log,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.service = svc
	metrics.BindQueue(svc)

	if settings.API.Enabled && !opts.DisableAPI {
		var serverOpts []api.ServerOption
		if settings.API.Metrics {
			errors.AddErrorHook(metrics.ErrorHook())
			serverOpts = append(serverOpts, api.WithMetricsHandler(metrics.Handler()))
		}
		server, err := api.New(api.ConfigFromSettings(settings), svc, log, serverOpts...)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.server = server
	}

	return a, nil
}

// Service returns the scheduler.
func (a *App) Service() *analysis.Service { return a.service }

// Store returns the output database.
func (a *App) Store() *datastore.Store { return a.store }

// Catalog returns the loaded catalog.
func (a *App) Catalog() *catalog.Catalog { return a.catalog }

// Start connects the broker, starts the scheduler and then the API. A broker
// that cannot be reached is logged; paho keeps reconnecting.
func (a *App) Start(ctx context.Context) error {
	if a.mqtt != nil {
		if err := a.mqtt.Connect(ctx); err != nil {
			a.log.Warn("MQTT broker not reachable, publishing will resume on reconnect",
				logger.String("broker", a.settings.MQTT.Broker), logger.Error(err))
		}
	}

	a.service.Start(ctx)

	if a.server != nil {
		if err := a.server.Start(); err != nil {
			return err
		}
		a.log.Info("API listening", logger.String("addr", a.server.Addr()))
	}
	return nil
}

// Close stops the API, drains the scheduler and releases every connection.
// The first error is returned after all components were closed.
func (a *App) Close() error {
	var firstErr error
	a.closeOnce.Do(func() {
		keep := func(err error) {
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}

		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), api.DefaultShutdownTimeout)
			keep(a.server.Shutdown(ctx))
			cancel()
		}
		keep(a.service.Stop())
		if a.mqtt != nil {
			a.mqtt.Disconnect()
		}
		keep(a.store.Close())
		telemetry.Flush()
	})
	return firstErr
}
