package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/costmap/internal/costmap/monitor"
	"github.com/banshee-data/costmap/internal/costmap/network"
	"github.com/banshee-data/costmap/internal/costmap/pipeline"
	"github.com/banshee-data/costmap/internal/costmap/visualiser"
	"github.com/banshee-data/costmap/internal/monitoring"
	"github.com/banshee-data/costmap/internal/navserial"
)

var serveFlags struct {
	udpAddr    string
	httpAddr   string
	grpcAddr   string
	dbPath     string
	serialPort string
	mapPath    string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for point clouds and poses and publish grids",
	Long: `Listens for type-tagged UDP datagrams (point batches, nav states and save
commands), optionally reads nav states from an INS serial port, and publishes
every recomputed grid to gRPC subscribers and the HTTP monitor.

Flags override the corresponding config file values.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyServeFlags(cmd)
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.udpAddr, "udp-addr", "", "UDP listen address (config udp_addr)")
	f.StringVar(&serveFlags.httpAddr, "http-addr", "", "HTTP monitor address, empty string disables (config http_addr)")
	f.StringVar(&serveFlags.grpcAddr, "grpc-addr", "", "gRPC publisher address, empty string disables (config grpc_addr)")
	f.StringVar(&serveFlags.dbPath, "db", "", "Snapshot database path, empty string disables (config db_path)")
	f.StringVar(&serveFlags.serialPort, "serial", "", "INS serial port (config serial_port)")
	f.StringVar(&serveFlags.mapPath, "map", "", "PGM output path (config map_path)")
}

// applyServeFlags copies explicitly set flags over the loaded config.
func applyServeFlags(cmd *cobra.Command) {
	set := func(name string, dst **string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = &v
		}
	}
	set("udp-addr", &cfg.UDPAddr, serveFlags.udpAddr)
	set("http-addr", &cfg.HTTPAddr, serveFlags.httpAddr)
	set("grpc-addr", &cfg.GRPCAddr, serveFlags.grpcAddr)
	set("db", &cfg.DBPath, serveFlags.dbPath)
	set("serial", &cfg.SerialPort, serveFlags.serialPort)
	set("map", &cfg.MapPath, serveFlags.mapPath)
}

func runServe(ctx context.Context) (err error) {
	var publishers []pipeline.Publisher
	var vis *visualiser.Publisher
	if addr := cfg.GetGRPCAddr(); addr != "" {
		vc := visualiser.DefaultConfig()
		vc.ListenAddr = addr
		vc.MaxClients = cfg.GetGRPCMaxClients()
		vis = visualiser.NewPublisher(vc)
		publishers = append(publishers, vis)
	}

	app, err := newCore(cfg, publishers...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	dispatcher := pipeline.NewDispatcher(app.orchestrator, cfg.GetQueueSize(), app.stats)
	dispatcher.StatsInterval = cfg.GetStatsInterval()

	packets := monitor.NewPacketStats()
	listener := network.NewUDPListener(network.UDPListenerConfig{
		Address:     cfg.GetUDPAddr(),
		RcvBuf:      cfg.GetUDPRcvBuf(),
		LogInterval: cfg.GetStatsInterval(),
		Sink:        dispatcher,
		Stats:       packets,
	})

	var nav *navserial.Source
	if port := cfg.GetSerialPort(); port != "" {
		nav, err = navserial.Open(port, cfg.GetSerialOptions(), dispatcher)
		if err != nil {
			return err
		}
		defer nav.Close()
	}

	var ws *monitor.WebServer
	if addr := cfg.GetHTTPAddr(); addr != "" {
		ws = monitor.NewWebServer(monitor.WebServerConfig{
			Address:  addr,
			Pipeline: app.stats,
			Packets:  packets,
			Engine:   app.engine,
			Grids:    app.latest,
		})
		if app.store != nil {
			if err := app.store.AttachAdminRoutes(ws.Mux()); err != nil {
				return err
			}
		}
		if nav != nil {
			nav.AttachAdminRoutes(ws.Mux())
		}
	}

	if vis != nil {
		if err := vis.Start(); err != nil {
			return err
		}
		defer vis.Stop()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCancel(dispatcher.Run(ctx)) })
	g.Go(func() error { return ignoreCancel(listener.Start(ctx)) })
	if nav != nil {
		g.Go(func() error { return ignoreCancel(nav.Monitor(ctx)) })
	}
	if ws != nil {
		g.Go(func() error { return ws.Start(ctx) })
	}

	monitoring.Logf("costmap serving: udp=%s frame=%s map=%s", cfg.GetUDPAddr(), cfg.GetFrameID(), cfg.GetMapPath())
	err = g.Wait()
	monitoring.Logf("costmap stopped")
	return err
}

// ignoreCancel maps a context cancellation to a clean exit.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
