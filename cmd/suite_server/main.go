package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/countdown_suite/internal/api"
	"github.com/dgnsrekt/countdown_suite/internal/config"
	"github.com/dgnsrekt/countdown_suite/internal/controller"
	"github.com/dgnsrekt/countdown_suite/internal/events"
	"github.com/dgnsrekt/countdown_suite/internal/netutil"
	"github.com/dgnsrekt/countdown_suite/internal/runstore"
	"github.com/dgnsrekt/countdown_suite/internal/storage"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("suite_server config loaded",
		"bind_addr", cfg.BindAddr,
		"target_url", cfg.TargetURL,
		"expiry_at", cfg.ExpiryAt,
		"browser_mode", cfg.BrowserMode,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
		"data_dir", cfg.DataDir,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	store, err := runstore.NewStore(cfg.DataDir)
	if err != nil {
		slog.Error("failed to create run store", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	history := storage.NewHistoryWriter(cfg.DataDir, cfg.HistoryBufferSize, cfg.HistoryMaxSizeMB)
	defer func() {
		if err := history.Close(); err != nil {
			slog.Debug("history close failed", "error", err)
		}
	}()

	broker := events.NewBroker()
	runner, err := controller.NewRunner(cfg, nil, store, events.NewRunObserver(broker))
	if err != nil {
		slog.Error("failed to build suite runner", "error", err)
		os.Exit(1)
	}
	svc := controller.NewService(runner, store,
		controller.WithHistory(history),
		controller.WithNotify(cfg.NotifyURL, &http.Client{Timeout: 10 * time.Second}),
	)
	h := api.NewServer(svc, api.WithEvents(broker))

	baseCtx, cancelRequests := context.WithCancel(context.Background())
	srv := newHTTPServer(bindAddr, h, baseCtx)

	go func() {
		slog.Info("suite_server listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("suite_server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("suite_server shutting down", "signal", sig.String())

	if err := shutdown(srv, cancelRequests, svc, shutdownTimeout); err != nil {
		slog.Error("suite_server shutdown failed", "error", err)
	}
}

const shutdownTimeout = 15 * time.Second

// idleWaiter reports when no suite run holds a browser session.
type idleWaiter interface {
	WaitIdle(ctx context.Context) error
}

// newHTTPServer builds a server whose request contexts derive from base, so
// cancelling base ends in-flight runs and event streams.
func newHTTPServer(addr string, h http.Handler, base context.Context) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

// shutdown cancels in-flight requests, stops the listener, then waits for
// the running suite to finish its teardown.
func shutdown(srv *http.Server, cancelRequests context.CancelFunc, svc idleWaiter, timeout time.Duration) error {
	cancelRequests()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := svc.WaitIdle(ctx); err != nil {
		return fmt.Errorf("wait for suite run: %w", err)
	}
	return nil
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
