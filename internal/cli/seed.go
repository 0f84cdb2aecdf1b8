package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/kattapik/texttosql-project/pkg/catalog/seed"
)

type SeedCmd struct{}

func NewSeedCmd() *SeedCmd {
	return &SeedCmd{}
}

func (c *SeedCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the demo e-commerce database (SQLite only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !strings.EqualFold(cfg.DBDriver, "sqlite") {
				return fmt.Errorf("seed only supports sqlite, got %q", cfg.DBDriver)
			}
			force, _ := cmd.Flags().GetBool("force")
			users, _ := cmd.Flags().GetInt("users")
			products, _ := cmd.Flags().GetInt("products")
			orders, _ := cmd.Flags().GetInt("orders")
			seedValue, _ := cmd.Flags().GetUint64("seed")

			log := newLogger(cmd, verbose(cmd))
			path := cfg.DBDSN

			if path != ":memory:" {
				if _, err := os.Stat(path); err == nil {
					if !force {
						return fmt.Errorf("%s already exists; use --force to replace it", path)
					}
					if err := os.Remove(path); err != nil {
						return fmt.Errorf("failed to remove existing database: %w", err)
					}
				} else if !errors.Is(err, os.ErrNotExist) {
					return err
				}
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return fmt.Errorf("failed to create database directory: %w", err)
				}
			}

			db, err := sql.Open("sqlite", path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			summary, err := seed.Run(cmd.Context(), seed.Config{
				Logger:   log,
				DB:       db,
				Users:    users,
				Products: products,
				Orders:   orders,
				Seed:     seedValue,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database initialized at %s: %d users, %d products, %d orders, %d order items, %d reviews\n",
				path, summary.Users, summary.Products, summary.Orders, summary.OrderItems, summary.Reviews)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "replace an existing database file")
	cmd.Flags().Int("users", 0, "users to create")
	cmd.Flags().Int("products", 0, "products to create")
	cmd.Flags().Int("orders", 0, "orders to create")
	cmd.Flags().Uint64("seed", 0, "random seed")
	return cmd
}
