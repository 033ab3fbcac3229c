package suite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/countdown_suite/internal/driver"
	"github.com/google/uuid"
)

// ArtifactSink stores failure screenshots and returns their artifact ID.
type ArtifactSink interface {
	SaveScreenshot(runID, checkName string, png []byte) (string, error)
}

// Options configures a Runner.
type Options struct {
	TargetURL string
	ExpiryAt  time.Time
	// Checks defaults to Checks().
	Checks []Check
	// Now defaults to time.Now.
	Now func() time.Time
	// Artifacts, when set, receives a screenshot after every failed check.
	Artifacts ArtifactSink
	// Observer, when set, is told about run progress.
	Observer Observer
}

// Observer receives progress while a run executes. Calls are made from the
// goroutine running the suite and must not block.
type Observer interface {
	RunStarted(rep *Report)
	CheckFinished(runID string, res Result)
	RunFinished(rep *Report)
}

// Runner executes the check list against a single session per run.
type Runner struct {
	launcher driver.Launcher
	opts     Options
}

// NewRunner creates a runner that obtains sessions from launcher.
func NewRunner(launcher driver.Launcher, opts Options) *Runner {
	if opts.TargetURL == "" {
		opts.TargetURL = DefaultTargetURL
	}
	if opts.ExpiryAt.IsZero() {
		opts.ExpiryAt = DefaultExpiryAt()
	}
	if opts.Checks == nil {
		opts.Checks = Checks()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{launcher: launcher, opts: opts}
}

// Run opens a session, navigates to the target, runs every check in order
// and closes the session. A check failure never stops later checks. The
// returned error is non-nil only for SETUP failures; the report is always
// returned and describes the run either way.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	rep := &Report{
		ID:        uuid.New().String(),
		Suite:     Title,
		TargetURL: r.opts.TargetURL,
		ExpiryAt:  r.opts.ExpiryAt,
		StartedAt: r.opts.Now(),
		Results:   []Result{},
	}
	slog.Info("suite run start", "run_id", rep.ID, "target_url", rep.TargetURL, "checks", len(r.opts.Checks))
	if r.opts.Observer != nil {
		r.opts.Observer.RunStarted(rep)
	}

	session, err := r.launcher.Launch(ctx)
	if err != nil {
		return r.abort(rep, setupError("launch browser failed", err))
	}

	var setupErr error
	func() {
		defer func() {
			if cerr := session.Close(); cerr != nil {
				rep.TeardownError = cerr.Error()
				slog.Warn("suite teardown failed", "run_id", rep.ID, "error", cerr)
			}
		}()
		if err := session.Navigate(ctx, r.opts.TargetURL); err != nil {
			setupErr = setupError("navigate to target failed", err)
			return
		}
		for _, c := range r.opts.Checks {
			res := r.runCheck(ctx, session, rep.ID, c)
			rep.Results = append(rep.Results, res)
			if r.opts.Observer != nil {
				r.opts.Observer.CheckFinished(rep.ID, res)
			}
		}
	}()
	if setupErr != nil {
		return r.abort(rep, setupErr)
	}

	rep.State = StateCompleted
	rep.FinishedAt = r.opts.Now()
	_, failed := rep.Counts()
	rep.Passed = failed == 0
	slog.Info("suite run complete", "run_id", rep.ID, "passed", rep.Passed, "failed", failed)
	r.finished(rep)
	return rep, nil
}

func (r *Runner) abort(rep *Report, err error) (*Report, error) {
	rep.State = StateAborted
	rep.Passed = false
	rep.SetupError = err.Error()
	rep.FinishedAt = r.opts.Now()
	slog.Error("suite run aborted", "run_id", rep.ID, "error", err)
	r.finished(rep)
	return rep, err
}

func (r *Runner) finished(rep *Report) {
	if r.opts.Observer != nil {
		r.opts.Observer.RunFinished(rep)
	}
}

func setupError(msg string, err error) error {
	if driver.CodeOf(err) == driver.CodeSetup {
		return err
	}
	return driver.NewError(driver.CodeSetup, msg, err)
}

func (r *Runner) runCheck(ctx context.Context, s driver.Session, runID string, c Check) Result {
	res := Result{Name: c.Name, Title: c.Title, StartedAt: r.opts.Now()}
	sc := &Scope{Session: s, Now: r.opts.Now, ExpiryAt: r.opts.ExpiryAt}

	start := time.Now()
	err := invoke(ctx, c, sc)
	res.DurationMS = time.Since(start).Milliseconds()

	if err == nil {
		res.Status = StatusPassed
		if sc.vacuous != "" {
			res.Vacuous = true
			res.Note = sc.vacuous
		}
		slog.Info("check passed", "run_id", runID, "check", c.Name, "vacuous", res.Vacuous, "duration_ms", res.DurationMS)
		return res
	}

	res.Status = StatusFailed
	res.Code = driver.CodeOf(err)
	res.Error = err.Error()
	var coded *driver.CodedError
	if errors.As(err, &coded) && coded.Code == driver.CodeAssertionMismatch {
		res.Expected = coded.Expected
		res.Observed = coded.Observed
	}
	slog.Warn("check failed", "run_id", runID, "check", c.Name, "code", res.Code, "error", err, "duration_ms", res.DurationMS)

	if r.opts.Artifacts != nil && ctx.Err() == nil {
		res.ArtifactID = r.captureFailure(ctx, s, runID, c.Name)
	}
	return res
}

// captureFailure never affects the verdict; problems are only logged.
func (r *Runner) captureFailure(ctx context.Context, s driver.Session, runID, checkName string) string {
	png, err := s.Screenshot(ctx)
	if err != nil {
		slog.Warn("failure screenshot capture failed", "run_id", runID, "check", checkName, "error", err)
		return ""
	}
	id, err := r.opts.Artifacts.SaveScreenshot(runID, checkName, png)
	if err != nil {
		slog.Warn("failure screenshot save failed", "run_id", runID, "check", checkName, "error", err)
		return ""
	}
	return id
}

func invoke(ctx context.Context, c Check, sc *Scope) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("check %s panicked: %v", c.Name, p)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Run(ctx, sc)
}
