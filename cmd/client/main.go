package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/midmatch-go/patcher"
	"github.com/defistate/midmatch-go/streams/jsonrpc/client"
)

const (
	DefaultClientStateBufferSize = 100
)

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	close := func() {
		os.Exit(1)
	}

	rootLogger := slog.New(rootLogHandler)
	url := flag.String("url", "ws://localhost:8546", "Websocket URL of the midmatchd state stream.")
	flag.Parse()

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statePatcher, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{})
	if err != nil {
		rootLogger.Error("Failed to initialize state patcher", "error", err)
		close()
	}

	client, err := client.NewClient(
		ctx,
		client.Config{
			URL:          *url,
			Logger:       rootLogger.With("component", "jsonrpc-client"),
			BufferSize:   DefaultClientStateBufferSize,
			StatePatcher: statePatcher.Patch,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "url", *url, "error", err)
		close()
	}

	for {
		select {
		case state := <-client.State():
			rootLogger.Info("State received", "sequence", state.Sequence, "pairs", len(state.Pairs), "pools", state.PoolCount())
		case err := <-client.Err():
			rootLogger.Error("Fatal client error", "error", err)
			return
		case <-ctx.Done():
			return
		}
	}
}
