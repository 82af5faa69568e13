package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/platform/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down N|version|apply]",
	Short: "Manage the Postgres schema",
	Long: `Apply or roll back the embedded schema migrations against DATABASE_URL.

  up        migrate to the latest version (default)
  down N    roll back N migrations
  version   print the current version
  apply     run every up migration without version tracking, for a
            fresh Supabase project managed outside golang-migrate`,
	Args: cobra.MaximumNArgs(2),
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Storage.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	action := "up"
	if len(args) > 0 {
		action = args[0]
	}
	switch action {
	case "up":
		err = migrations.Up(db)
	case "down":
		if len(args) != 2 {
			return errors.New("down needs the number of steps")
		}
		steps, convErr := strconv.Atoi(args[1])
		if convErr != nil || steps <= 0 {
			return fmt.Errorf("invalid step count %q", args[1])
		}
		err = migrations.Down(db, steps)
	case "apply":
		err = migrations.Apply(ctx, db)
	case "version":
		v, dirty, verr := migrations.Version(db)
		if verr != nil {
			return verr
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", v, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
	if err != nil {
		return err
	}
	log.WithField("action", action).Info("migrations complete")
	return nil
}
