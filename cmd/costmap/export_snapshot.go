package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/costmap/internal/costmap/l3grid"
	"github.com/banshee-data/costmap/internal/costmap/monitor"
	"github.com/banshee-data/costmap/internal/costmap/storage/sqlite"
)

var exportFlags struct {
	dbPath string
	out    string
	png    string
	list   bool
	yaml   bool
}

var exportSnapshotCmd = &cobra.Command{
	Use:   "export-snapshot [id]",
	Short: "Render a stored grid snapshot to PGM",
	Long: `Loads a grid snapshot from the snapshot database and writes it as a PGM
image (plus the YAML sidecar with --yaml). Without an id the most recent
snapshot is exported. --list prints the stored snapshots instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := exportFlags.dbPath
		if !cmd.Flags().Changed("db") {
			path = cfg.GetDBPath()
		}
		if path == "" {
			return fmt.Errorf("no snapshot database configured")
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if exportFlags.list {
			snaps, err := store.List(0)
			if err != nil {
				return err
			}
			for _, s := range snaps {
				fmt.Fprintf(out, "%s  %s  %dx%d  %.3f m  free=%d occupied=%d unknown=%d  %s\n",
					s.ID, s.Stamp.Format("2006-01-02T15:04:05Z07:00"), s.Width, s.Height, s.Resolution,
					s.Counts.Free, s.Counts.Occupied, s.Counts.Unknown, s.Reason)
			}
			return nil
		}

		var snap *sqlite.Snapshot
		if len(args) == 1 {
			snap, err = store.Get(args[0])
		} else {
			snap, err = store.Latest()
		}
		if err != nil {
			return err
		}

		if err := l3grid.NewMapExporter(exportFlags.out, exportFlags.yaml).Export(snap.Grid); err != nil {
			return err
		}
		if exportFlags.png != "" {
			if err := monitor.NewGridPlotter(exportFlags.png).Export(snap.Grid); err != nil {
				return err
			}
		}
		fmt.Fprintf(out, "exported snapshot %s to %s\n", snap.ID, exportFlags.out)
		return nil
	},
}

func init() {
	f := exportSnapshotCmd.Flags()
	f.StringVar(&exportFlags.dbPath, "db", "", "Snapshot database path (config db_path)")
	f.StringVarP(&exportFlags.out, "out", "o", "snapshot.pgm", "PGM output path")
	f.StringVar(&exportFlags.png, "png", "", "Also write a PNG preview to this path")
	f.BoolVar(&exportFlags.list, "list", false, "List stored snapshots")
	f.BoolVar(&exportFlags.yaml, "yaml", true, "Write the YAML sidecar")
}
