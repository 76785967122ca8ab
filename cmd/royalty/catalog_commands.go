package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"royalties/internal/app"
	"royalties/internal/catalog"
	"royalties/internal/config"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage tenant catalogs",
	}
	catalogCmd.AddCommand(newCatalogImportCommand(ctx))
	catalogCmd.AddCommand(newCatalogDeleteCommand(ctx))
	catalogCmd.AddCommand(newCatalogStatsCommand(ctx))
	return catalogCmd
}

func newCatalogImportCommand(ctx *commandContext) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "import <works.json>",
		Short: "Insert or replace works for a tenant",
		Long: "Reads a JSON array of works (or an object with a \"works\" array) and\n" +
			"upserts them. The tenant's cached catalog is invalidated in this process\n" +
			"and, when redis is configured, in every other process.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(tenant) == "" {
				return errors.New("--tenant is required")
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read catalog file: %w", err)
			}
			works, err := decodeWorks(data)
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app.App) error {
				written, err := a.ImportCatalog(cmd.Context(), tenant, works)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"tenant": tenant, "works": written})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d works for %s\n", written, tenant)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant that owns the works")
	return cmd
}

func decodeWorks(data []byte) ([]catalog.Work, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("catalog file is empty")
	}
	if trimmed[0] == '[' {
		var works []catalog.Work
		if err := json.Unmarshal(trimmed, &works); err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
		return works, nil
	}
	var wrapped struct {
		Works []catalog.Work `json:"works"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return wrapped.Works, nil
}

func newCatalogDeleteCommand(ctx *commandContext) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "delete <work-id>...",
		Short: "Remove works from a tenant catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(tenant) == "" {
				return errors.New("--tenant is required")
			}
			return ctx.withApp(func(a *app.App) error {
				removed, err := a.Store.DeleteWorks(cmd.Context(), tenant, args)
				if err != nil {
					return err
				}
				if err := a.InvalidateCatalog(cmd.Context(), tenant); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d works from %s\n", removed, tenant)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant that owns the works")
	return cmd
}

func newCatalogStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count works per tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				counts, err := a.Store.CountWorks(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, counts)
				}
				tenants := make([]string, 0, len(counts))
				for tenant := range counts {
					tenants = append(tenants, tenant)
				}
				sort.Strings(tenants)
				rows := make([][]string, 0, len(tenants))
				for _, tenant := range tenants {
					rows = append(rows, []string{tenant, strconv.Itoa(counts[tenant])})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Tenant", "Works"}, rows))
				return nil
			})
		},
	}
}
