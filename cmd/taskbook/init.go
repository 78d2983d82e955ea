package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kjosib/kale/config"
	"github.com/kjosib/kale/storage"
	"github.com/kjosib/kale/taskbook"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up the application directory",
	Long: `Writes a default config.json, the page templates, a stylesheet, and
an empty database into the application directory. Existing files are
left alone, so init is safe to run again.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(filepath.Join(appDir, "config.json")); os.IsNotExist(err) {
		if err := config.Default().Save(appDir); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	if err := taskbook.WriteDefaults(appDir); err != nil {
		return fmt.Errorf("write defaults: %w", err)
	}

	db, err := storage.Open(filepath.Join(appDir, cfg.Database.Path), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := taskbook.EnsureSchema(db); err != nil {
		return err
	}

	fmt.Printf("Initialized %s\n", appDir)
	fmt.Println("Run 'taskbook serve' and open the printed address in a browser.")
	return nil
}
