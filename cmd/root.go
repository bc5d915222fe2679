package cmd

import (
	"github.com/spf13/cobra"

	"github.com/guianderson/terrama2/cmd/run"
	"github.com/guianderson/terrama2/cmd/serve"
	"github.com/guianderson/terrama2/cmd/validate"
	"github.com/guianderson/terrama2/internal/conf"
)

// RootCommand creates and returns the root command. settings is filled
// from the config file before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var (
		configPath  string
		catalogPath string
		debug       bool
	)

	rootCmd := &cobra.Command{
		Use:           "terrama2",
		Short:         "TerraMA2 analysis engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "Path to the project catalog, overrides analysis.catalog")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	rootCmd.AddCommand(
		serve.Command(settings),
		run.Command(settings),
		validate.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configPath)
		if err != nil {
			return err
		}
		*settings = *loaded

		if catalogPath != "" {
			settings.Analysis.Catalog = catalogPath
		}
		if debug {
			settings.Debug = true
			settings.Logging.DefaultLevel = "debug"
			if settings.Logging.Console != nil {
				settings.Logging.Console.Level = "debug"
			}
		}
		return nil
	}

	return rootCmd
}
