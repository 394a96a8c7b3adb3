package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"voxelhud.ai/internal/persistence/snapshot"
)

func newSnapshotCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, load and describe property store snapshots",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "./data/props.sqlite", "sqlite property store")

	var out string
	save := &cobra.Command{
		Use:   "save",
		Short: "Write every actor's properties to a snapshot file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			snap, err := snapshot.Take(context.Background(), db, 0)
			if err != nil {
				return err
			}
			path := out
			if path == "" {
				path = filepath.Join(filepath.Dir(dbPath), "snapshots", fmt.Sprintf("admin-%d.snap.zst", time.Now().Unix()))
			}
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s actors=%d\n", path, snap.Header.Actors)
			return nil
		},
	}
	save.Flags().StringVar(&out, "out", "", "output path (default: <db dir>/snapshots/admin-<unix>.snap.zst)")

	load := &cobra.Command{
		Use:   "load <file>",
		Short: "Write a snapshot's properties into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.ReadSnapshot(args[0])
			if err != nil {
				return err
			}
			db, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := snapshot.Restore(snap, db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d props for %d actors\n", n, snap.Header.Actors)
			return nil
		},
	}

	info := &cobra.Command{
		Use:   "info <file>",
		Short: "Print a snapshot's header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := snapshot.ReadHeader(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot v%d tick=%d actors=%d created=%s\n",
				h.Version, h.Tick, h.Actors, h.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.AddCommand(save, load, info)
	return cmd
}
