package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"voxelhud.ai/internal/persistence/kvstore"
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/mirror"
)

func openStore(path string) (*kvstore.SQLite, error) {
	if path == "" {
		return nil, errors.New("missing --db")
	}
	return kvstore.OpenSQLite(path, 0, nil)
}

func newPropsCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "props [actor]",
		Short: "List actors in a property store, or dump one actor's properties",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := context.Background()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				actors, err := db.Actors(ctx)
				if err != nil {
					return err
				}
				for _, a := range actors {
					fmt.Fprintln(out, a)
				}
				return nil
			}
			props, err := db.Dump(ctx, args[0])
			if err != nil {
				return err
			}
			if len(props) == 0 {
				return fmt.Errorf("actor %q has no properties", args[0])
			}
			for _, k := range sortedKeys(props) {
				fmt.Fprintf(out, "%s = %s\n", k, props[k].String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "./data/props.sqlite", "sqlite property store")
	return cmd
}

func newBackupCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Inspect or discard borrow backups held in a property store",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "./data/props.sqlite", "sqlite property store")

	inspect := &cobra.Command{
		Use:   "inspect <actor>",
		Short: "Decode the actor's pending borrow backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			store := db.Scope(args[0])

			slots := mirror.Tracked(store)
			if len(slots) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending borrow")
				return nil
			}
			backups, err := mirror.LoadBackups(store)
			if err != nil {
				return fmt.Errorf("decode backup: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Slots   []int `json:"slots"`
				Backups any   `json:"backups"`
			}{slots, backups})
		},
	}

	drop := &cobra.Command{
		Use:   "drop <actor>",
		Short: "Discard the actor's borrow session so it is not restored on next join",
		Long: "Discard the actor's borrow session. The borrowed icons stay in the inventory; " +
			"use this only when the backup itself is unreadable.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := dropSession(db.Scope(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %d keys\n", n)
			return nil
		},
	}

	cmd.AddCommand(inspect, drop)
	return cmd
}

func dropSession(store host.Store) (int, error) {
	keys := []string{mirror.KeySlots}
	if n, ok := host.GetNumber(store, mirror.KeyChunkCount); ok {
		for i := 0; i < int(n); i++ {
			keys = append(keys, mirror.ChunkKey(i))
		}
	}
	keys = append(keys, mirror.KeyChunkCount)

	dropped := 0
	for _, k := range keys {
		if _, ok := store.Get(k); !ok {
			continue
		}
		if err := store.Delete(k); err != nil {
			return dropped, fmt.Errorf("delete %s: %w", k, err)
		}
		dropped++
	}
	return dropped, nil
}
