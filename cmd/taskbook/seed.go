package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kjosib/kale/storage"
	"github.com/kjosib/kale/taskbook"
)

var seedCmd = &cobra.Command{
	Use:   "seed <tasks.toml>",
	Short: "Load tasks from a TOML file",
	Long: `Reads a TOML file of [[task]] entries and inserts them into the
database, all in one transaction. A bad file leaves the database
untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	seed, err := taskbook.LoadSeed(args[0])
	if err != nil {
		return err
	}
	db, err := storage.Open(filepath.Join(appDir, cfg.Database.Path), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := taskbook.EnsureSchema(db); err != nil {
		return err
	}
	if err := seed.Apply(db); err != nil {
		return err
	}
	fmt.Printf("Loaded %d tasks from %s\n", len(seed.Tasks), args[0])
	return nil
}
