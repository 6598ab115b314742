package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fleet-monitor/tracking/internal/config"
)

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "tracking",
		Short: "Fleet position tracking service",
		Long: `Fleet position tracking service.

Functions:
- Filter incoming device positions and repair or drop bad fixes
- Detect alarms, harsh braking and overspeed on accepted positions
- Store position history and live device state
- Notify operators over SMS, websocket and Redis`,
		SilenceUsage: true,
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment and .env only)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(notificationsCmd)
}

// loadConfig reads the configuration and builds the process logger from it.
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load configuration")
	}

	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if debug {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	return cfg, log, nil
}
