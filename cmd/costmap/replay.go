package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/costmap/internal/costmap/network"
	"github.com/banshee-data/costmap/internal/monitoring"
)

var replayFlags struct {
	port    int
	speed   float64
	save    bool
	mapPath string
}

var replayCmd = &cobra.Command{
	Use:   "replay <capture.pcap>",
	Short: "Feed a packet capture through the pipeline",
	Long: `Reads UDP datagrams from a pcap or pcapng capture and feeds them through the
same decode, integrate and encode pipeline as serve. Messages are handled in
capture order without a queue, so nothing is dropped. With --save a final
save request is issued after the last packet.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("map") {
			cfg.MapPath = &replayFlags.mapPath
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		app, err := newCore(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		listener := network.NewUDPListener(network.UDPListenerConfig{
			Sink: directSink{o: app.orchestrator},
		})
		rs, err := network.ReplayPCAP(ctx, f, listener, network.ReplayConfig{
			Port:  replayFlags.port,
			Speed: replayFlags.speed,
		})
		if err != nil {
			return fmt.Errorf("replay %s: %w", args[0], err)
		}
		if replayFlags.save {
			app.orchestrator.HandleSave(true)
		}

		s := app.stats.Snapshot()
		monitoring.Logf("replayed %d packets (%d datagrams, %d errors): %d clouds, %d poses, %d recomputes, %d exports",
			rs.Packets, rs.Datagrams, rs.Errors, s.PointClouds, s.Poses, s.Recomputes, s.Exports)
		return nil
	},
}

func init() {
	f := replayCmd.Flags()
	f.IntVar(&replayFlags.port, "port", network.DefaultPort, "UDP destination port to replay, 0 for any")
	f.Float64Var(&replayFlags.speed, "speed", 0, "Replay speed multiplier, 0 for as fast as possible")
	f.BoolVar(&replayFlags.save, "save", false, "Save the map after the last packet")
	f.StringVar(&replayFlags.mapPath, "map", "", "PGM output path (config map_path)")
}
