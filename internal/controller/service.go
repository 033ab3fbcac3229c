package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dgnsrekt/countdown_suite/internal/browser"
	"github.com/dgnsrekt/countdown_suite/internal/config"
	"github.com/dgnsrekt/countdown_suite/internal/driver"
	"github.com/dgnsrekt/countdown_suite/internal/notify"
	"github.com/dgnsrekt/countdown_suite/internal/runstore"
	"github.com/dgnsrekt/countdown_suite/internal/storage"
	"github.com/dgnsrekt/countdown_suite/internal/suite"
)

// ErrBusy is returned by RunSuite while another run is in progress.
var ErrBusy = errors.New("a suite run is already in progress")

const notifyTimeout = 10 * time.Second

// SuiteRunner executes one suite run.
type SuiteRunner interface {
	Run(ctx context.Context) (*suite.Report, error)
}

// HistorySink records finished runs.
type HistorySink interface {
	Write(entry storage.HistoryEntry) error
}

// CheckInfo describes one entry of the check catalog.
type CheckInfo struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Service runs the suite one run at a time and serves stored results.
type Service struct {
	runner    SuiteRunner
	store     *runstore.Store
	history   HistorySink
	notifyURL string
	client    *http.Client
	mu        sync.Mutex
}

// Option customizes a Service.
type Option func(*Service)

// WithHistory appends a line per finished run to h.
func WithHistory(h HistorySink) Option {
	return func(s *Service) { s.history = h }
}

// WithNotify posts the run summary to endpoint after each run.
func WithNotify(endpoint string, client *http.Client) Option {
	return func(s *Service) {
		s.notifyURL = endpoint
		s.client = client
	}
}

func NewService(runner SuiteRunner, store *runstore.Store, opts ...Option) *Service {
	s := &Service{runner: runner, store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunSuite executes the suite and persists the report. Check failures are
// part of the report; the error is non-nil for ErrBusy and setup failures,
// in which case a report may still be returned.
func (s *Service) RunSuite(ctx context.Context) (*suite.Report, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()

	rep, runErr := s.runner.Run(ctx)
	if rep == nil {
		return nil, runErr
	}

	if err := s.store.SaveRun(rep); err != nil {
		slog.Error("failed to save run report", "run_id", rep.ID, "error", err)
	}
	if s.history != nil {
		if err := s.history.Write(storage.EntryFromReport(rep)); err != nil {
			slog.Warn("failed to queue history entry", "run_id", rep.ID, "error", err)
		}
	}
	if s.notifyURL != "" {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		if err := notify.SendSummary(nctx, s.client, s.notifyURL, rep); err != nil {
			slog.Warn("run notification failed", "run_id", rep.ID, "error", err)
		}
		cancel()
	}

	slog.Info("suite run finished", "run_id", rep.ID, "state", rep.State, "passed", rep.Passed)
	return rep, runErr
}

// WaitIdle blocks until no run is in progress or ctx ends.
func (s *Service) WaitIdle(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		s.mu.Lock()
		s.mu.Unlock()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) ListRuns() ([]runstore.RunSummary, error) {
	return s.store.ListRuns()
}

func (s *Service) GetRun(id string) (*suite.Report, error) {
	return s.store.GetRun(id)
}

func (s *Service) DeleteRun(id string) error {
	return s.store.DeleteRun(id)
}

func (s *Service) ReadArtifact(id string) ([]byte, runstore.ArtifactMeta, error) {
	return s.store.ReadArtifact(id)
}

// Checks returns the fixed check catalog in run order.
func (s *Service) Checks() []CheckInfo {
	all := suite.Checks()
	out := make([]CheckInfo, 0, len(all))
	for _, c := range all {
		out = append(out, CheckInfo{Name: c.Name, Title: c.Title})
	}
	return out
}

// LauncherOptions maps configuration onto driver options.
func LauncherOptions(cfg *config.Config) (driver.Options, error) {
	mode, err := driver.ParseMode(cfg.BrowserMode)
	if err != nil {
		return driver.Options{}, err
	}
	return driver.Options{
		Mode:         mode,
		CDPURL:       cfg.GetCDPURL(),
		Headless:     cfg.Headless,
		WindowWidth:  cfg.WindowWidth,
		WindowHeight: cfg.WindowHeight,
		NoSandbox:    cfg.NoSandbox,
		NavTimeout:   cfg.NavTimeout(),
		OpTimeout:    cfg.OpTimeout(),
		Browser: browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.ProfileDir,
			Headless:   cfg.Headless,
			NoSandbox:  cfg.NoSandbox,
			WindowSize: fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight),
			ExecPath:   cfg.BrowserPath,
		},
	}, nil
}

// NewRunner builds a chromedp-backed runner for checks. Failure screenshots
// go to store when enabled in cfg; obs may be nil.
func NewRunner(cfg *config.Config, checks []suite.Check, store *runstore.Store, obs suite.Observer) (*suite.Runner, error) {
	opts, err := LauncherOptions(cfg)
	if err != nil {
		return nil, err
	}
	ropts := suite.Options{
		TargetURL: cfg.TargetURL,
		ExpiryAt:  cfg.ExpiryAt,
		Checks:    checks,
		Observer:  obs,
	}
	if cfg.ScreenshotOnFailure && store != nil {
		ropts.Artifacts = store
	}
	return suite.NewRunner(driver.NewChromeLauncher(opts), ropts), nil
}
