package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fleetcost/rightsize/internal/catalog"
	"github.com/fleetcost/rightsize/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the SKU catalog with the builtin Azure sizes",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := catalog.NewStore(pool)
	service := catalog.NewService(store)

	builtin := catalog.Builtin()
	for _, input := range builtin {
		sku, err := service.Upsert(ctx, input)
		if err != nil {
			return fmt.Errorf("seeding sku %q: %w", input.Name, err)
		}
		slog.Info("seeded sku", "name", sku.Name, "list_monthly_usd", sku.ListMonthly)
	}

	fmt.Printf("\n=== Catalog Seeded ===\n")
	fmt.Printf("SKUs: %d upserted\n", len(builtin))
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl http://localhost:%d/api/v1/skus\n", cfg.Server.Port)

	return nil
}
