// stpd -- per-VLAN spanning tree daemon (IEEE 802.1D, PVST+).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/seregega/sonic-stp/internal/config"
	"github.com/seregega/sonic-stp/internal/dbsync"
	"github.com/seregega/sonic-stp/internal/intf"
	"github.com/seregega/sonic-stp/internal/ipc"
	stpmetrics "github.com/seregega/sonic-stp/internal/metrics"
	"github.com/seregega/sonic-stp/internal/netio"
	"github.com/seregega/sonic-stp/internal/stp"
	appversion "github.com/seregega/sonic-stp/internal/version"
)

// shutdownTimeout bounds HTTP server drain during graceful shutdown.
const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.Version)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLogger(cfg.Log, logLevel)

	logger.Info("stpd starting",
		slog.String("version", appversion.Version),
		slog.String("ipc_socket", cfg.IPC.Socket),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Uint64("max_instances", uint64(cfg.Stp.MaxInstances)),
		slog.Int64("max_ports", int64(cfg.Stp.MaxPorts)),
	)

	if err := runDaemon(cfg, logger, logLevel, *configPath); err != nil {
		logger.Error("stpd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("stpd stopped")
	return 0
}

// newLogger builds the root logger from config.
func newLogger(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// runDaemon wires the components and runs them under one errgroup with
// a signal-aware context.
func runDaemon(
	cfg *config.Config,
	logger *slog.Logger,
	logLevel *slog.LevelVar,
	configPath string,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	collector := stpmetrics.NewCollector(reg)

	// State publication: bbolt snapshot store plus event broadcaster.
	sink, closeSink, err := buildSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()
	sink.ClearTables()

	// Interface database and link monitor.
	portDB := intf.New(cfg.Stp.MaxPorts, logger.With(slog.String("component", "intf")))

	// Engine and dispatch loop.
	ipcServer, err := ipc.NewServer(cfg.IPC.Socket, logger.With(slog.String("component", "ipc")))
	if err != nil {
		return err
	}
	defer ipcServer.Close()

	var transport *netio.PacketTransport
	var loop *stp.Loop

	transport, err = netio.NewPacketTransport(portDB,
		func(port stp.PortID, vlan stp.VlanID, frame []byte) {
			loop.DeliverFrame(stp.RxFrame{Port: port, Vlan: vlan, Frame: frame})
		},
		logger.With(slog.String("component", "netio")),
	)
	if err != nil {
		return err
	}
	defer transport.Close()

	engine := stp.NewEngine(
		cfg.Stp.MaxInstances,
		cfg.Stp.MaxPorts,
		portDB,
		transport,
		sink,
		logger.With(slog.String("component", "stp")),
		stp.WithMetrics(collector),
		stp.WithExtendMode(cfg.Stp.ExtendMode),
	)
	loop = stp.NewLoop(engine, ipcServer.Requests(), logger.With(slog.String("component", "loop")),
		stp.WithLogLevelControl(func(level int) {
			logLevel.Set(slog.Level(level))
		}),
		stp.WithNetlinkDump(portDB.Dump),
	)

	monitor := intf.NewMonitor(portDB,
		func(port stp.PortID, up bool) {
			if up {
				if err := transport.OpenPort(port); err != nil {
					logger.Warn("open rx socket",
						slog.Int64("port", int64(port)),
						slog.String("error", err.Error()),
					)
				}
			}
			loop.DeliverLinkEvent(stp.LinkEvent{Port: port, Up: up})
		},
		logger.With(slog.String("component", "netlink")),
	)
	if err := monitor.Start(); err != nil {
		return fmt.Errorf("start link monitor: %w", err)
	}
	defer monitor.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return loop.Run(ctx) })
	g.Go(func() error { return ipcServer.Run(ctx) })
	g.Go(func() error { return monitor.Run(ctx) })

	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return runMetricsServer(ctx, cfg.Metrics, reg, logger)
		})
	}

	g.Go(func() error { return watchSighup(ctx, configPath, logLevel, logger) })

	notifyReady(logger)

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildSink assembles the publication sink: the broadcaster always, the
// bbolt store when configured.
func buildSink(cfg *config.Config, logger *slog.Logger) (dbsync.Sink, func(), error) {
	bc := dbsync.NewBroadcaster(logger.With(slog.String("component", "dbsync")))

	if cfg.State.DBPath == "" {
		return bc, func() { bc.Close() }, nil
	}

	store, err := dbsync.OpenStore(cfg.State.DBPath, logger.With(slog.String("component", "state")))
	if err != nil {
		bc.Close()
		return nil, nil, err
	}

	closer := func() {
		bc.Close()
		store.Close()
	}
	return dbsync.Tee{store, bc}, closer, nil
}

// runMetricsServer serves the Prometheus endpoint until ctx cancels.
func runMetricsServer(
	ctx context.Context,
	cfg config.MetricsConfig,
	reg *prometheus.Registry,
	logger *slog.Logger,
) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Addr),
			slog.String("path", cfg.Path),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// watchSighup reloads the log level from the config file on SIGHUP.
func watchSighup(
	ctx context.Context,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			cfg, err := config.Load(configPath)
			if err != nil {
				logger.Warn("sighup: reload failed", slog.String("error", err.Error()))
				continue
			}
			logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
			logger.Info("sighup: log level set", slog.String("level", cfg.Log.Level))
		}
	}
}

// notifyReady tells systemd the daemon is up. Harmless outside systemd.
func notifyReady(logger *slog.Logger) {
	if _, err := sd.SdNotify(false, sd.SdNotifyReady); err != nil {
		logger.Debug("sd_notify", slog.String("error", err.Error()))
	}
}
