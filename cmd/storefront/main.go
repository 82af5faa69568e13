// Command storefront runs the Mrs. Bean Tempeh shop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/config"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Mrs. Bean Tempeh storefront",
	Long: `Serve the storefront, manage its database schema and prepare admin
credentials.

Configuration is read from the environment, after loading .env (or the
files given with --env-file).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment")
	rootCmd.AddCommand(serveCmd, migrateCmd, hashPasswordCmd)
}

func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, nil, err
	}
	log := logging.NewWithFile("storefront", cfg.Log.Level, cfg.Log.Format, logging.FileConfig{Path: cfg.Log.File})
	return cfg, log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
