package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ryanfigueredo/mercadito-sub000/internal/config"
	"github.com/ryanfigueredo/mercadito-sub000/internal/store"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var cfgPath string
	rootCmd := &cobra.Command{
		Use:           "mercadito",
		Short:         "Grocery storefront API: checkout, payment reconciliation and stock",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML config file (env vars override it)")

	rootCmd.AddCommand(serveCmd(&cfgPath))
	rootCmd.AddCommand(migrateCmd(&cfgPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)
			db, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			logger.Info("schema_migrated", "db_path", cfg.DBPath)
			return nil
		},
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
