package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"voxelhud.ai/internal/persistence/kvstore"
	"voxelhud.ai/internal/sim/catalogs"
)

func newCatalogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogs",
		Short: "Validate catalogs and compare them with what a store last ran with",
	}

	var configDir string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate every catalog file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cats, err := catalogs.Load(configDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			digests := cats.Digests()
			for _, f := range sortedKeys(digests) {
				fmt.Fprintf(out, "ok  %-20s %s\n", f, digests[f])
			}
			return nil
		},
	}
	validate.Flags().StringVar(&configDir, "configs", "./configs", "config directory")

	var dbPath string
	diff := &cobra.Command{
		Use:   "diff",
		Short: "Show catalog files that changed since the store last recorded them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cats, err := catalogs.Load(configDir)
			if err != nil {
				return err
			}
			db, err := kvstore.OpenSQLite(dbPath, 0, nil)
			if err != nil {
				return err
			}
			defer db.Close()
			recorded, err := db.CatalogDigests(context.Background())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			changed := 0
			for f, cur := range cats.Digests() {
				prev, ok := recorded[f]
				switch {
				case !ok:
					fmt.Fprintf(out, "new      %s\n", f)
					changed++
				case prev != cur:
					fmt.Fprintf(out, "changed  %s %s -> %s\n", f, short(prev), short(cur))
					changed++
				}
			}
			if changed == 0 {
				fmt.Fprintln(out, "catalogs unchanged")
			}
			return nil
		},
	}
	diff.Flags().StringVar(&configDir, "configs", "./configs", "config directory")
	diff.Flags().StringVar(&dbPath, "db", "./data/props.sqlite", "sqlite property store")

	cmd.AddCommand(validate, diff)
	return cmd
}

func short(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
