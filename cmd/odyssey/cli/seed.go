package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/masterdata/locations"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

type seedFile struct {
	Locations []seedLocation `yaml:"locations"`
	Stock     []seedStock    `yaml:"stock"`
}

type seedLocation struct {
	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Priority int    `yaml:"priority"`
	Capacity *int64 `yaml:"capacity"`
	Default  bool   `yaml:"default"`
}

type seedStock struct {
	Variant         uuid.UUID `yaml:"variant"`
	Location        string    `yaml:"location"`
	Quantity        int64     `yaml:"quantity"`
	ReorderPoint    *int64    `yaml:"reorder_point"`
	ReorderQuantity *int64    `yaml:"reorder_quantity"`
}

func parseSeed(r io.Reader) (seedFile, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return seedFile{}, fmt.Errorf("parse seed: %w", err)
	}
	codes := make(map[string]struct{}, len(file.Locations))
	for _, loc := range file.Locations {
		codes[loc.Code] = struct{}{}
	}
	for i, row := range file.Stock {
		if row.Variant == uuid.Nil {
			return seedFile{}, fmt.Errorf("parse seed: stock[%d]: variant is required", i)
		}
		if row.Quantity < 0 {
			return seedFile{}, fmt.Errorf("parse seed: stock[%d]: quantity must not be negative", i)
		}
		if _, ok := codes[row.Location]; !ok {
			return seedFile{}, fmt.Errorf("parse seed: stock[%d]: unknown location %q", i, row.Location)
		}
	}
	return file, nil
}

type seedLocations interface {
	GetByCode(ctx context.Context, code string) (locations.Location, error)
	Create(ctx context.Context, location locations.Location) (locations.Location, error)
}

type seedStockWriter interface {
	Receive(ctx context.Context, input inventory.ReceiveInput) (inventory.Movement, error)
	SetReorderSettings(ctx context.Context, variantID, locationID uuid.UUID, reorderPoint, reorderQuantity *int64) (inventory.StockLevel, error)
}

// applySeed creates missing locations then receives opening stock. Existing
// locations are left untouched.
func applySeed(ctx context.Context, file seedFile, locs seedLocations, stock seedStockWriter, logger *slog.Logger) error {
	ctx = shared.ContextWithActor(ctx, shared.SystemActor)
	ids := make(map[string]uuid.UUID, len(file.Locations))
	for _, loc := range file.Locations {
		existing, err := locs.GetByCode(ctx, loc.Code)
		switch {
		case err == nil:
			ids[loc.Code] = existing.ID
			continue
		case !errors.Is(err, locations.ErrNotFound):
			return fmt.Errorf("seed location %s: %w", loc.Code, err)
		}
		created, err := locs.Create(ctx, locations.Location{
			Code:      loc.Code,
			Name:      loc.Name,
			Type:      locations.Type(loc.Type),
			Priority:  loc.Priority,
			Capacity:  loc.Capacity,
			IsDefault: loc.Default,
			Active:    true,
		})
		if err != nil {
			return fmt.Errorf("seed location %s: %w", loc.Code, err)
		}
		ids[loc.Code] = created.ID
		logger.Info("seeded location", slog.String("code", loc.Code))
	}

	for _, row := range file.Stock {
		locationID := ids[row.Location]
		if row.Quantity > 0 {
			_, err := stock.Receive(ctx, inventory.ReceiveInput{
				VariantID:  row.Variant,
				LocationID: locationID,
				Quantity:   row.Quantity,
				Reference:  inventory.Reference{Type: "SEED", Number: "opening"},
				Note:       "opening balance",
			})
			if err != nil {
				return fmt.Errorf("seed stock %s@%s: %w", row.Variant, row.Location, err)
			}
		}
		if row.ReorderPoint != nil || row.ReorderQuantity != nil {
			if _, err := stock.SetReorderSettings(ctx, row.Variant, locationID, row.ReorderPoint, row.ReorderQuantity); err != nil {
				return fmt.Errorf("seed reorder %s@%s: %w", row.Variant, row.Location, err)
			}
		}
	}
	logger.Info("seed complete", slog.Int("locations", len(file.Locations)), slog.Int("stock_rows", len(file.Stock)))
	return nil
}

func newSeedCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load locations and opening stock from a YAML file.",
		Long:  `Intended for development databases. Running it twice receives the opening stock twice.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			file, err := parseSeed(f)
			if err != nil {
				return err
			}

			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()
			redisClient, err := cache.New(ctx, cfg.Redis())
			if err != nil {
				return fmt.Errorf("connect redis: %w", err)
			}
			defer redisClient.Close()

			inventoryRepo := inventory.NewRepository(pool)
			locationService := locations.NewService(locations.NewRepository(pool), inventoryRepo,
				cache.NewVersioned(redisClient, "locations", cfg.LocationCacheTTL), logger)
			inventoryService := inventory.NewService(inventoryRepo, locationService, inventory.Ports{
				Audit: shared.NewAuditLogger(pool),
			}, inventory.ServiceConfig{MaxRetries: cfg.InventoryMaxRetries, RetryBackoff: cfg.InventoryRetryBackoff}, logger)

			return applySeed(ctx, file, locationService, inventoryService, logger)
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "seed.yml", "seed file")
	return cmd
}
