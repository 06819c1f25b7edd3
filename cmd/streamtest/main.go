// streamtest connects to the dashboard live stream and prints demultiplexed messages to console.
// Usage: go run ./cmd/streamtest --config configs/opsdash.local.yaml
//
// The bearer token is read from backend.token_file or backend.token_env, e.g.
//
//	OPS_TOKEN=... go run ./cmd/streamtest --config configs/opsdash.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/scamwatch-ops/internal/auth"
	"github.com/rickgao/scamwatch-ops/internal/config"
	"github.com/rickgao/scamwatch-ops/internal/connection"
	"github.com/rickgao/scamwatch-ops/internal/router"
)

func main() {
	configPath := flag.String("config", "configs/opsdash.local.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Backend.Origin == "" {
		logger.Error("backend.origin is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens := auth.FromConfig(cfg.Backend.TokenFile, cfg.Backend.TokenEnv)
	if token, err := tokens.Token(); err != nil {
		logger.Error("failed to read token", "error", err)
		os.Exit(1)
	} else if token == "" {
		logger.Warn("no token configured, connecting anonymously",
			"token_file", cfg.Backend.TokenFile,
			"token_env", cfg.Backend.TokenEnv,
		)
	}

	// Create Connection Manager
	connCfg := connection.DefaultManagerConfig()
	connCfg.Origin = cfg.Backend.Origin
	connCfg.Path = cfg.Stream.Path
	connCfg.TokenParam = cfg.Stream.TokenParam
	connCfg.Reconnect.Delay = cfg.Stream.ReconnectDelay
	connCfg.HeartbeatInterval = cfg.Stream.HeartbeatInterval
	connCfg.KeepaliveToken = cfg.Stream.KeepaliveToken

	connMgr := connection.NewManager(connCfg, tokens, logger)

	// Create Router using Connection Manager's message channel; the alert
	// queue is enabled so alerts can be printed as they arrive.
	rtr := router.NewRouter(router.RouterConfig{
		RecentAlerts:      cfg.Router.RecentAlerts,
		AlertQueueSize:    cfg.Router.QueueSize,
		AlertQueueMaxSize: cfg.Router.QueueMaxSize,
		ArchiveAlerts:     true,
	}, connMgr.Messages(), nil, logger)

	logger.Info("starting connection manager")
	if err := connMgr.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	logger.Info("starting router")
	if err := rtr.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}

	go printStates(ctx, connMgr.States())
	go printAlerts(ctx, rtr.Buffers().Alerts, *verbose)
	go printViews(ctx, rtr, *verbose)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				routerStats := rtr.Stats()
				connStats := connMgr.Stats()
				logger.Info("stats",
					"state", connStats.State.String(),
					"connects", connStats.Connects,
					"reconnect_attempts", connStats.ReconnectAttempts,
					"keepalives", connStats.KeepalivesSent,
					"router_received", routerStats.MessagesReceived,
					"router_routed", routerStats.MessagesRouted,
					"parse_errors", routerStats.ParseErrors,
					"unknown", routerStats.UnknownMessages,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	connMgr.Stop(shutdownCtx)
	rtr.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

func printStates(ctx context.Context, states <-chan connection.StateChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-states:
			if !ok {
				return
			}
			fmt.Printf("[STATE] %s -> %s at %s\n",
				change.From, change.To, change.At.Format(time.RFC3339Nano))
		}
	}
}

func printAlerts(ctx context.Context, buf *router.GrowableBuffer[router.AlertMsg], verbose bool) {
	for {
		msg, ok := buf.ReceiveContext(ctx)
		if !ok {
			return
		}

		if verbose {
			data, _ := json.MarshalIndent(msg, "", "  ")
			fmt.Printf("[ALERT] %s\n", data)
		} else {
			fmt.Printf("[ALERT] id=%s severity=%s title=%q source=%s seq=%d\n",
				msg.Alert.ID, msg.Alert.Severity, msg.Alert.Title, msg.Alert.Source, msg.Seq)
		}
	}
}

func printViews(ctx context.Context, rtr router.Router, verbose bool) {
	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-rtr.Updates():
		}

		if live, ok := rtr.LiveMetrics(); ok && live.Seq != lastSeq {
			lastSeq = live.Seq
			if verbose {
				data, _ := json.MarshalIndent(live, "", "  ")
				fmt.Printf("[METRICS] %s\n", data)
			} else {
				m := live.Snapshot
				fmt.Printf("[METRICS] msgs/min=%.1f scams/min=%.1f p95=%.0fms queue=%d seq=%d\n",
					m.MessagesPerMinute, m.ScamsPerMinute, m.P95LatencyMs, m.QueueDepth, live.Seq)
			}
		}
		fmt.Printf("[ACTIVE] %d active alerts\n", len(rtr.ActiveAlerts()))
	}
}
