package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kjosib/kale/storage"
	"github.com/kjosib/kale/taskbook"
	"github.com/kjosib/kale/template"
	"github.com/kjosib/kale/web"
)

var servePIN string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the task book to a local browser",
	Long: `Starts the single-threaded server on the configured bind address
(loopback by default) and serves the task book until interrupted or
asked to shut down.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePIN, "pin", "",
		"Require this PIN before serving any page")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
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

	templates, err := template.NewFolder(filepath.Join(appDir, cfg.Templates.Dir),
		template.WithExtension(cfg.Templates.Ext))
	if err != nil {
		return fmt.Errorf("open template folder: %w", err)
	}
	app := taskbook.NewApp(templates)

	router := app.Router()
	if cfg.Static.Dir != "" {
		router.Route("GET", "/static/*",
			web.NewStaticFolder(filepath.Join(appDir, cfg.Static.Dir)))
	}

	var handler web.Handler = web.Transactional(
		func() (web.Tx, error) { return db.Begin() }, router)
	if servePIN != "" {
		hash, err := web.HashPIN(servePIN)
		if err != nil {
			return err
		}
		handler = web.PINGuard(hash, handler)
	}
	if cfg.Templates.AutoReload {
		handler = web.AutoReload(templates, handler)
	}

	server := &web.Server{
		Handler:          handler,
		Logger:           logger,
		FirstByteTimeout: cfg.FirstByteTimeout(),
		RequestTimeout:   cfg.RequestTimeout(),
		WriteTimeout:     cfg.WriteTimeout(),
		MaxRequestBytes:  cfg.MaxRequestBytes,
		AllowNonLoopback: cfg.AllowNonLoopback,
	}
	fmt.Printf("Task book at http://%s/\n", cfg.Bind)
	return server.ListenAndServe(cfg.Bind)
}
