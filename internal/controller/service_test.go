package controller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/countdown_suite/internal/config"
	"github.com/dgnsrekt/countdown_suite/internal/driver"
	"github.com/dgnsrekt/countdown_suite/internal/runstore"
	"github.com/dgnsrekt/countdown_suite/internal/storage"
	"github.com/dgnsrekt/countdown_suite/internal/suite"
)

type stubRunner struct {
	rep     *suite.Report
	err     error
	started chan struct{}
	release chan struct{}
}

func (r *stubRunner) Run(ctx context.Context) (*suite.Report, error) {
	if r.started != nil {
		close(r.started)
		<-r.release
	}
	return r.rep, r.err
}

type recordingHistory struct {
	mu      sync.Mutex
	entries []storage.HistoryEntry
}

func (h *recordingHistory) Write(e storage.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func report(id string, state suite.State, passed bool) *suite.Report {
	start := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	return &suite.Report{
		ID:         id,
		Suite:      suite.Title,
		State:      state,
		Passed:     passed,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Results:    []suite.Result{{Name: "presence", Status: suite.StatusPassed}},
	}
}

func newStore(t *testing.T) *runstore.Store {
	t.Helper()
	store, err := runstore.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestRunSuitePersistsRecordsAndNotifies(t *testing.T) {
	store := newStore(t)
	hist := &recordingHistory{}
	var body string
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("")), Header: make(http.Header)}, nil
	})}

	rep := report("123e4567-e89b-12d3-a456-426614174000", suite.StateCompleted, true)
	svc := NewService(&stubRunner{rep: rep}, store,
		WithHistory(hist),
		WithNotify("http://ntfy.example/suite", client),
	)

	got, err := svc.RunSuite(context.Background())
	if err != nil {
		t.Fatalf("RunSuite() error = %v", err)
	}
	if got != rep {
		t.Fatalf("RunSuite() report = %+v; want stub report", got)
	}
	if _, err := svc.GetRun(rep.ID); err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if len(hist.entries) != 1 || hist.entries[0].RunID != rep.ID {
		t.Fatalf("history = %+v", hist.entries)
	}
	if body != rep.Summary() {
		t.Fatalf("notify body = %q; want %q", body, rep.Summary())
	}
}

func TestRunSuiteSetupFailureStillPersists(t *testing.T) {
	store := newStore(t)
	rep := report("123e4567-e89b-12d3-a456-426614174001", suite.StateAborted, false)
	setupErr := driver.NewError(driver.CodeSetup, "navigate failed", nil)
	svc := NewService(&stubRunner{rep: rep, err: setupErr}, store)

	got, err := svc.RunSuite(context.Background())
	if driver.CodeOf(err) != driver.CodeSetup {
		t.Fatalf("RunSuite() error = %v; want SETUP", err)
	}
	if got == nil || got.State != suite.StateAborted {
		t.Fatalf("RunSuite() report = %+v; want aborted report", got)
	}
	runs, err := svc.ListRuns()
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns() = %v, %v; want one run", runs, err)
	}
}

func TestRunSuiteBusy(t *testing.T) {
	runner := &stubRunner{
		rep:     report("123e4567-e89b-12d3-a456-426614174002", suite.StateCompleted, true),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := NewService(runner, newStore(t))

	done := make(chan error, 1)
	go func() {
		_, err := svc.RunSuite(context.Background())
		done <- err
	}()
	<-runner.started

	if _, err := svc.RunSuite(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("concurrent RunSuite() error = %v; want ErrBusy", err)
	}
	close(runner.release)
	if err := <-done; err != nil {
		t.Fatalf("first RunSuite() error = %v", err)
	}
}

func TestWaitIdle(t *testing.T) {
	runner := &stubRunner{
		rep:     report("123e4567-e89b-12d3-a456-426614174003", suite.StateCompleted, true),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := NewService(runner, newStore(t))

	done := make(chan error, 1)
	go func() {
		_, err := svc.RunSuite(context.Background())
		done <- err
	}()
	<-runner.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := svc.WaitIdle(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitIdle() during run = %v; want DeadlineExceeded", err)
	}

	close(runner.release)
	if err := <-done; err != nil {
		t.Fatalf("RunSuite() error = %v", err)
	}
	if err := svc.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle() after run = %v; want nil", err)
	}
}

func TestChecksCatalog(t *testing.T) {
	got := (&Service{}).Checks()
	if len(got) != 10 {
		t.Fatalf("len(Checks()) = %d; want 10", len(got))
	}
	if got[0].Name != "presence" || got[len(got)-1].Name != "page-background" {
		t.Fatalf("Checks() order = %+v", got)
	}
}

func TestLauncherOptions(t *testing.T) {
	cfg := &config.Config{
		BrowserMode:  "launch",
		Headless:     true,
		WindowWidth:  1024,
		WindowHeight: 768,
		NavTimeoutMS: 2000,
		OpTimeoutMS:  1500,
		CDPAddress:   "127.0.0.1",
		CDPPort:      9333,
		ProfileDir:   "/tmp/profile",
	}
	opts, err := LauncherOptions(cfg)
	if err != nil {
		t.Fatalf("LauncherOptions() error = %v", err)
	}
	if opts.Mode != driver.ModeLaunch || opts.CDPURL != "http://127.0.0.1:9333" {
		t.Fatalf("opts = %+v", opts)
	}
	if opts.NavTimeout != 2*time.Second || opts.OpTimeout != 1500*time.Millisecond {
		t.Fatalf("timeouts = %v/%v", opts.NavTimeout, opts.OpTimeout)
	}
	if opts.Browser.WindowSize != "1024,768" || opts.Browser.CDPURL() != "http://127.0.0.1:9333" {
		t.Fatalf("browser config = %+v", opts.Browser)
	}

	cfg.BrowserMode = "firefox"
	if _, err := LauncherOptions(cfg); err == nil {
		t.Fatal("LauncherOptions() error = nil; want unknown mode error")
	}
}
