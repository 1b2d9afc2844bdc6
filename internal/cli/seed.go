package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"adaptive-testing-service/internal/config"
	"adaptive-testing-service/internal/domain"
)

// NewSeedCmd loads an item pool JSON file into Postgres. Item authoring is
// outside the engine; this is an operator convenience for getting calibrated
// pools into the catalog.
func NewSeedCmd(configPath *string) *cobra.Command {
	var poolFile string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert an item pool from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, poolFile)
		},
	}
	cmd.Flags().StringVar(&poolFile, "pool", "", "path to item pool JSON")
	_ = cmd.MarkFlagRequired("pool")
	return cmd
}

func runSeed(ctx context.Context, configPath, poolFile string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	data, err := os.ReadFile(poolFile)
	if err != nil {
		return err
	}
	var pool domain.Pool
	if err := json.Unmarshal(data, &pool); err != nil {
		return fmt.Errorf("parse pool file: %w", err)
	}
	if pool.ID == "" {
		return fmt.Errorf("pool file is missing an id")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	if _, err := db.ExecContext(ctx,
		`INSERT INTO item_pools (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`,
		pool.ID, string(data)); err != nil {
		return err
	}
	log.Printf("seeded pool %s with %d items", pool.ID, len(pool.Items))
	return nil
}
