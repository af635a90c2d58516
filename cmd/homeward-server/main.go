// Homeward-server is the tool gateway: it publishes the tool registry,
// validates and dispatches tool calls against the NTP, ping, and Home
// Assistant effectors, and keeps a synchronized cache of device state.
//
// Usage:
//
//	homeward-server serve      Start the tool server
//	homeward-server version    Print version information
//
// Configuration is environment-first; see internal/config.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sutro/homeward/internal/buildinfo"
	"github.com/sutro/homeward/internal/config"
	"github.com/sutro/homeward/internal/homeassistant"
	"github.com/sutro/homeward/internal/server"
	"github.com/sutro/homeward/internal/tools"
)

// main constructs the OS-level environment and delegates to run so the
// startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	command := ""
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout)
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "", "-h", "-help", "--help":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Homeward tool server")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: homeward-server <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve      Start the tool server")
	fmt.Fprintln(w, "  version    Show version information")
	return nil
}

// runServe is the primary operating mode: load config, connect the
// cache backend and Home Assistant, build the registry, start the HTTP
// server, and block until a shutdown signal arrives. Shutdown order is
// WebSocket reader, then synchronizer, then HTTP server.
func runServe(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := config.NewLogger(stdout, level, cfg.LogFormat)
	logger.Info("starting homeward-server", "version", buildinfo.Version, "port", cfg.ServerPort)

	// --- Cache backend ---
	// Redis holds the HA state cache. When it is unreachable we degrade
	// to no caching: every read goes to REST and /health reports the
	// backend as absent.
	var cache homeassistant.StateCache
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		logger.Warn("redis unreachable, state caching disabled", "addr", cfg.Redis.Addr(), "error", err)
		rdb.Close()
	} else {
		logger.Info("connected to redis", "addr", cfg.Redis.Addr(), "db", cfg.Redis.DB)
		cache = homeassistant.NewRedisCache(rdb, cfg.HACacheTTL(), logger)
		defer rdb.Close()
	}

	// --- Home Assistant ---
	// Optional. Without a token the synchronizer stays in a permanent
	// not-configured state and HA tools report effector_unavailable.
	var haClient *homeassistant.Client
	var haWS *homeassistant.WSClient
	if cfg.HAConfigured() {
		haClient = homeassistant.NewClient(cfg.HAURL, cfg.HAToken, logger)
		haWS = homeassistant.NewWSClient(cfg.HAURL, cfg.HAToken, logger)
		logger.Info("home assistant configured", "url", cfg.HAURL)
	} else {
		logger.Warn("home assistant not configured, HA tools disabled")
	}

	sync := homeassistant.NewSynchronizer(haClient, haWS, cache, cfg.HACacheTTL(), logger)

	// Supervisor context for the WebSocket reader and event loop, so
	// they stop before the HTTP server drains.
	syncCtx, syncCancel := context.WithCancel(ctx)
	defer syncCancel()
	go sync.Run(syncCtx)

	// --- Tool registry ---
	registry := tools.NewRegistry(logger)
	tools.RegisterBuiltins(registry,
		tools.NewNTPEffector(cfg.NTPServer, cfg.NTPBackupServer, cfg.NTPTimeout(), cfg.LocalTimezone, logger),
		tools.NewPingEffector(logger),
		tools.NewHATools(sync, logger),
	)
	logger.Info("tool registry initialized", "tools", len(registry.List()))

	// --- HTTP server and graceful shutdown ---
	srv := server.NewServer(cfg.ServerPort, registry, sync, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		syncCancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("homeward-server stopped")
	return nil
}
