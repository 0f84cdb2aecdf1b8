package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kattapik/texttosql-project/pkg/catalog"
	"github.com/kattapik/texttosql-project/pkg/config"
)

type TablesCmd struct{}

func NewTablesCmd() *TablesCmd {
	return &TablesCmd{}
}

func (c *TablesCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables [table...]",
		Short: "List tables, or describe the named tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := newLogger(cmd, verbose(cmd))
			ctx := cmd.Context()

			cat, err := config.OpenCatalog(ctx, log, cfg)
			if err != nil {
				return err
			}
			defer cat.Close()

			if len(args) == 0 {
				return listTables(ctx, cmd.OutOrStdout(), cat, jsonOutput(cmd))
			}
			return describeTables(ctx, cmd.OutOrStdout(), cat, args, jsonOutput(cmd))
		},
	}
	return cmd
}

func listTables(ctx context.Context, w io.Writer, tables catalog.TableLister, asJSON bool) error {
	names, err := tables.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	if asJSON {
		if names == nil {
			names = []string{}
		}
		return json.NewEncoder(w).Encode(names)
	}
	for _, name := range names {
		fmt.Fprintln(w, name)
	}
	return nil
}

func describeTables(ctx context.Context, w io.Writer, describer catalog.SchemaDescriber, names []string, asJSON bool) error {
	infos, err := describer.DescribeTables(ctx, names)
	if err != nil {
		return fmt.Errorf("failed to describe tables: %w", err)
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}
	for i, info := range infos {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n", info.TableName)
		for _, col := range info.Columns {
			fmt.Fprintf(w, "  %s\n", col)
		}
	}
	return nil
}
