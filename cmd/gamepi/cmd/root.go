package cmd

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gamepi/internal/config"
	"github.com/teslashibe/go-gamepi/internal/log"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	// cfg is loaded before any subcommand runs; cfgSource is the file it
	// came from, empty when only defaults and environment apply.
	cfg       *config.Config
	cfgSource string
)

var rootCmd = &cobra.Command{
	Use:           "gamepi",
	Short:         "Flash Arduino games from a web page",
	Long:          "Serves a page listing game images and flashes the selected one with avrdude.",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, source, err := config.Resolve(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if logFormat != "" {
			loaded.Log.Format = logFormat
		}
		log.Init(loaded.Log.Level, loaded.Log.Format)
		if source != "" {
			log.Debug("config loaded", "path", source)
		}
		cfg = loaded
		cfgSource = source
		return nil
	},
	RunE: runServe,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: search "+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")

	addServeFlags(rootCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(flashCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(serviceCmd)
}
