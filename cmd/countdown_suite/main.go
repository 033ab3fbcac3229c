package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dgnsrekt/countdown_suite/internal/config"
	"github.com/dgnsrekt/countdown_suite/internal/controller"
	"github.com/dgnsrekt/countdown_suite/internal/runstore"
	"github.com/dgnsrekt/countdown_suite/internal/storage"
	"github.com/dgnsrekt/countdown_suite/internal/suite"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	exitPass  = 0
	exitFail  = 1
	exitUsage = 2
)

type cliOptions struct {
	format string
	checks []suite.Check
}

// parseFlags applies command-line overrides to cfg. Values only replace
// configuration when the flag is given. Problems are reported on stderr.
func parseFlags(cfg *config.Config, args []string, stderr io.Writer) (cliOptions, error) {
	opts, err := parseArgs(cfg, args, stderr)
	if err != nil && !errors.Is(err, errFlagSyntax) {
		fmt.Fprintln(stderr, err)
	}
	return opts, err
}

// errFlagSyntax marks errors the flag package has already printed.
var errFlagSyntax = errors.New("invalid flags")

func parseArgs(cfg *config.Config, args []string, stderr io.Writer) (cliOptions, error) {
	fs := flag.NewFlagSet("countdown_suite", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("url", cfg.TargetURL, "page under test")
	fs.String("expiry", cfg.ExpiryAt.Format(time.RFC3339), "countdown expiry instant ("+config.ExpiryLayout+" local time, or RFC 3339)")
	fs.String("mode", cfg.BrowserMode, "browser mode: exec, remote or launch")
	format := fs.String("format", "text", "report format: text or json")
	only := fs.String("only", "", "comma-separated check names to run (default all)")
	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("%w: %w", errFlagSyntax, err)
	}

	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "url":
			cfg.TargetURL = f.Value.String()
		case "mode":
			cfg.BrowserMode = strings.ToLower(f.Value.String())
		case "expiry":
			if cfg.ExpiryAt, err = config.ParseExpiry(f.Value.String()); err != nil {
				err = fmt.Errorf("-expiry: %w", err)
			}
		}
	})
	if err != nil {
		return cliOptions{}, err
	}

	if *format != "text" && *format != "json" {
		return cliOptions{}, fmt.Errorf("-format: unknown format %q (want text or json)", *format)
	}
	checks, err := suite.Select(suite.Checks(), splitNames(*only))
	if err != nil {
		return cliOptions{}, fmt.Errorf("-only: %w", err)
	}
	return cliOptions{format: *format, checks: checks}, nil
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return exitUsage
	}

	opts, err := parseFlags(cfg, os.Args[1:], os.Stderr)
	if err != nil {
		return exitUsage
	}
	checks := opts.checks

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		fmt.Fprintln(os.Stderr, "logger setup failed:", err)
		return exitFail
	}

	store, err := runstore.NewStore(cfg.DataDir)
	if err != nil {
		slog.Error("failed to create run store", "dir", cfg.DataDir, "error", err)
		return exitFail
	}
	history := storage.NewHistoryWriter(cfg.DataDir, cfg.HistoryBufferSize, cfg.HistoryMaxSizeMB)
	defer func() {
		if err := history.Close(); err != nil {
			slog.Debug("history close failed", "error", err)
		}
	}()

	runner, err := controller.NewRunner(cfg, checks, store, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "-mode:", err)
		return exitUsage
	}
	svc := controller.NewService(runner, store,
		controller.WithHistory(history),
		controller.WithNotify(cfg.NotifyURL, &http.Client{Timeout: 10 * time.Second}),
	)

	slog.Info("countdown_suite starting",
		"target_url", cfg.TargetURL,
		"expiry_at", cfg.ExpiryAt,
		"browser_mode", cfg.BrowserMode,
		"checks", len(checks),
		"data_dir", cfg.DataDir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, runErr := svc.RunSuite(ctx)
	if rep == nil {
		slog.Error("suite run failed", "error", runErr)
		return exitFail
	}

	write := suite.WriteText
	if opts.format == "json" {
		write = suite.WriteJSON
	}
	if err := write(os.Stdout, rep); err != nil {
		slog.Error("failed to write report", "error", err)
		return exitFail
	}
	if runErr != nil || !rep.Passed {
		return exitFail
	}
	return exitPass
}

func splitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// setupLogger logs to stderr and a rotated file; stdout carries the report.
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

	h := slog.NewTextHandler(io.MultiWriter(os.Stderr, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
