// Homeward-client is the orchestrator: it routes each user message to
// a tool shortcut or through the LLM's USE_TOOL protocol, bridges
// voice uploads to the transcoder, and records every interaction for
// thumbs-up/down feedback.
//
// Usage:
//
//	homeward-client serve      Start the orchestrator
//	homeward-client version    Print version information
//
// Configuration is environment-first; see internal/config.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sutro/homeward/internal/buildinfo"
	"github.com/sutro/homeward/internal/config"
	"github.com/sutro/homeward/internal/gateway"
	"github.com/sutro/homeward/internal/interaction"
	"github.com/sutro/homeward/internal/llm"
	"github.com/sutro/homeward/internal/orchestrator"
	"github.com/sutro/homeward/internal/transcribe"

	_ "github.com/go-sql-driver/mysql" // MySQL driver for database/sql
)

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
	fmt.Fprintln(w, "Homeward orchestrator")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: homeward-client <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve      Start the orchestrator")
	fmt.Fprintln(w, "  version    Show version information")
	return nil
}

func runServe(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := config.NewLogger(stdout, level, cfg.LogFormat)
	logger.Info("starting homeward-client",
		"version", buildinfo.Version,
		"port", cfg.ClientPort,
		"model", cfg.LLMModel,
		"tool_server", cfg.ToolServerURL,
	)

	// --- Ephemeral interaction store ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, interaction logging degraded", "addr", cfg.Redis.Addr(), "error", err)
	} else {
		logger.Info("connected to redis", "addr", cfg.Redis.Addr())
	}
	pingCancel()

	ephemeral := interaction.NewEphemeralStore(rdb, logger)

	// --- Durable feedback store ---
	// Optional. Without MySQL, feedback only affects the ephemeral
	// store.
	var durable interaction.Durable
	if cfg.MySQL.Configured() {
		db, err := sql.Open("mysql", cfg.MySQL.DSN())
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		defer db.Close()
		interaction.SetConnLimits(db, cfg.MySQL.PoolSize)

		store, err := interaction.NewDurableStore(db, logger)
		if err != nil {
			logger.Error("durable store unavailable, feedback will not persist", "error", err)
		} else {
			durable = store
			logger.Info("durable store initialized",
				"host", cfg.MySQL.Host,
				"database", cfg.MySQL.Database,
				"pool_size", cfg.MySQL.PoolSize,
			)
		}
	} else {
		logger.Warn("MYSQL_PASSWORD not set, feedback only stored ephemerally")
	}

	feedback := interaction.NewService(ephemeral, durable, logger)

	// --- Tool server and LLM clients ---
	gw := gateway.NewClient(cfg.ToolServerURL, logger)
	generator := llm.NewClient(cfg.LLMURL, cfg.LLMModel, logger)

	chat := orchestrator.NewChatService(gw, generator, feedback, logger)
	initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
	chat.Initialize(initCtx)
	initCancel()

	// --- Transcription bridge ---
	var transcriber orchestrator.Transcriber
	if cfg.WhisperURL != "" {
		transcriber = transcribe.NewClient(cfg.WhisperURL, 10*time.Second, logger)
		logger.Info("transcription bridge enabled", "addr", cfg.WhisperURL)
	} else {
		logger.Info("transcription bridge disabled (WHISPER_URL not set)")
	}

	// --- HTTP server and graceful shutdown ---
	srv := orchestrator.NewServer(
		cfg.ClientPort, chat, feedback, transcriber,
		gw, generator.Ping, cfg.LLMModel, logger,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("homeward-client stopped")
	return nil
}
