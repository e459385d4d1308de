package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/costmap/internal/costmap/l3grid"
	"github.com/banshee-data/costmap/internal/costmap/visualiser"
)

var watchFlags struct {
	addr  string
	topic string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print a summary of every grid streamed by a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := watchFlags.addr
		if !cmd.Flags().Changed("addr") {
			addr = cfg.GetGRPCAddr()
		}
		if addr == "" {
			return errors.New("no gRPC address configured")
		}

		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stream, err := visualiser.NewClient(conn).StreamGrids(ctx, watchFlags.topic)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for {
			topic, g, err := stream.Recv()
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			c := l3grid.Count(g)
			fmt.Fprintf(out, "%s %s %s %dx%d @%.3f origin=(%.2f, %.2f) free=%d occupied=%d unknown=%d\n",
				g.Header.Stamp.Format("15:04:05.000"), topic, g.Header.FrameID,
				g.Info.Width, g.Info.Height, g.Info.Resolution, g.Info.Origin.X, g.Info.Origin.Y,
				c.Free, c.Occupied, c.Unknown)
		}
	},
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchFlags.addr, "addr", "", "gRPC server address (config grpc_addr)")
	f.StringVar(&watchFlags.topic, "topic", "", "Only stream this topic; empty streams all")
}
