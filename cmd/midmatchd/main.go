package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/midmatch-go/cmd/midmatchd/config"
	"github.com/defistate/midmatch-go/factory"
	"github.com/defistate/midmatch-go/protocols/tokenregistry"
	"github.com/defistate/midmatch-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

func main() {
	closeApp := func() {
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("Failed to load configuration", "error", err)
		closeApp()
	}
	level, _ := cfg.SlogLevel()
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ledger := tokenregistry.NewLedger()
	pairFactory, err := factory.New(&factory.Config{
		Address:  common.HexToAddress(cfg.Factory),
		Owner:    common.HexToAddress(cfg.Owner),
		Ledger:   ledger,
		Registry: registry,
		Logger:   rootLogger.With("component", "factory"),
	})
	if err != nil {
		rootLogger.Error("Failed to initialize factory", "error", err)
		closeApp()
	}

	svc, err := server.NewService(&server.Config{
		Factory:    pairFactory,
		Ledger:     ledger,
		Registry:   registry,
		Logger:     rootLogger.With("component", "stream-service"),
		BufferSize: cfg.BufferSize,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize stream service", "error", err)
		closeApp()
	}

	if err := seed(svc, cfg); err != nil {
		rootLogger.Error("Failed to seed state", "error", err)
		closeApp()
	}
	state := svc.State()
	rootLogger.Info("State seeded", "sequence", state.Sequence, "pairs", len(state.Pairs), "pools", state.PoolCount())

	rpcServer := rpc.NewServer()
	if err := server.Register(rpcServer, server.NewAPI(svc)); err != nil {
		rootLogger.Error("Failed to register API", "error", err)
		closeApp()
	}

	mux := http.NewServeMux()
	mux.Handle("/", rpcServer.WebsocketHandler([]string{"*"}))
	rpcHTTP := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsHTTP := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	errCh := make(chan error, 2)
	for name, srv := range map[string]*http.Server{"rpc": rpcHTTP, "metrics": metricsHTTP} {
		go func() {
			rootLogger.Info("Listening", "server", name, "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		rootLogger.Info("Shutting down...")
	case err := <-errCh:
		rootLogger.Error("Server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	rpcServer.Stop()
	_ = rpcHTTP.Shutdown(shutdownCtx)
	_ = metricsHTTP.Shutdown(shutdownCtx)
}

func loadConfig() (*config.DaemonConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
