package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kjosib/kale/config"
	"github.com/kjosib/kale/logging"
)

var appDir string

var rootCmd = &cobra.Command{
	Use:   "taskbook",
	Short: "Taskbook - a local to-do list in your browser",
	Long: `Taskbook keeps a to-do list in a SQLite file and serves it to a
browser on localhost. It is a demonstration application: small enough
to read in one sitting, complete enough to show routing, templates,
forms, and per-request transactions working together.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&appDir, "dir", ".",
		"Application directory holding config.json, the database, templates and static files")
}

// loadConfig reads the application directory's configuration and
// builds the logger it asks for.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(appDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  level,
	})
	return cfg, logger, nil
}
