package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guianderson/terrama2/internal/app"
	"github.com/guianderson/terrama2/internal/conf"
	"github.com/guianderson/terrama2/internal/logger"
)

// Command creates the serve command, which runs the engine until a signal
// arrives.
func Command(settings *conf.Settings) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis engine and its HTTP API",
		Long:  "Load the project catalog, start the execution queue and accept analysis requests over HTTP until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				settings.API.Enabled = true
				settings.API.Listen = listen
			}
			return serve(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "API listen address (host:port), enables the API")
	return cmd
}

func serve(parent context.Context, settings *conf.Settings) error {
	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = central.Close() }()
	log := central.Module("main")

	engine, err := app.New(settings, app.Options{Logger: central.Module("engine")})
	if err != nil {
		log.Error("failed to initialize engine", logger.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		_ = engine.Close()
		return err
	}
	log.Info("engine started",
		logger.String("instance_id", settings.Main.InstanceID),
		logger.Int("analyses", len(engine.Catalog().Analyses())),
		logger.Int("workers", settings.Analysis.Workers))

	<-ctx.Done()
	log.Info("shutting down")
	return engine.Close()
}
