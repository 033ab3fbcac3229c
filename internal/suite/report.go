package suite

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// State is the terminal state of a run.
type State string

const (
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Status is a check verdict.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Result is the verdict of one check.
type Result struct {
	Name       string    `json:"name"`
	Title      string    `json:"title"`
	Status     Status    `json:"status"`
	Vacuous    bool      `json:"vacuous,omitempty"`
	Note       string    `json:"note,omitempty"`
	Code       string    `json:"code,omitempty"`
	Error      string    `json:"error,omitempty"`
	Expected   string    `json:"expected,omitempty"`
	Observed   string    `json:"observed,omitempty"`
	ArtifactID string    `json:"artifact_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Report describes one suite run.
type Report struct {
	ID            string    `json:"id"`
	Suite         string    `json:"suite"`
	TargetURL     string    `json:"target_url"`
	ExpiryAt      time.Time `json:"expiry_at"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	State         State     `json:"state"`
	Passed        bool      `json:"passed"`
	SetupError    string    `json:"setup_error,omitempty"`
	TeardownError string    `json:"teardown_error,omitempty"`
	Results       []Result  `json:"results"`
}

// Counts returns the number of passed and failed checks.
func (r *Report) Counts() (passed, failed int) {
	for _, res := range r.Results {
		if res.Status == StatusPassed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// Summary is a one-line description suitable for notifications.
func (r *Report) Summary() string {
	if r.State == StateAborted {
		return fmt.Sprintf("%s: aborted, %s (run %s)", r.Suite, r.SetupError, r.ID)
	}
	passed, failed := r.Counts()
	verdict := "PASS"
	if !r.Passed {
		verdict = "FAIL"
	}
	return fmt.Sprintf("%s: %s, %d passing, %d failing (run %s)", r.Suite, verdict, passed, failed, r.ID)
}

// WriteText renders the report in the layout of a mocha-style test runner.
func WriteText(w io.Writer, r *Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s\n", r.Suite)
	if r.State == StateAborted {
		fmt.Fprintf(&b, "    setup failed: %s\n\n", r.SetupError)
		if r.TeardownError != "" {
			fmt.Fprintf(&b, "  teardown: %s\n", r.TeardownError)
		}
		_, err := io.WriteString(w, b.String())
		return err
	}

	var failures []Result
	for _, res := range r.Results {
		switch {
		case res.Status == StatusFailed:
			failures = append(failures, res)
			fmt.Fprintf(&b, "    %d) %s (%dms)\n", len(failures), res.Title, res.DurationMS)
		case res.Vacuous:
			fmt.Fprintf(&b, "    ✓ %s (vacuous: %s) (%dms)\n", res.Title, res.Note, res.DurationMS)
		default:
			fmt.Fprintf(&b, "    ✓ %s (%dms)\n", res.Title, res.DurationMS)
		}
	}

	passed, failed := r.Counts()
	fmt.Fprintf(&b, "\n  %d passing (%dms)\n", passed, r.FinishedAt.Sub(r.StartedAt).Milliseconds())
	if failed > 0 {
		fmt.Fprintf(&b, "  %d failing\n", failed)
	}

	for i, res := range failures {
		fmt.Fprintf(&b, "\n  %d) %s\n", i+1, res.Title)
		fmt.Fprintf(&b, "     %s\n", res.Error)
		if res.Expected != "" || res.Observed != "" {
			fmt.Fprintf(&b, "     expected: %s\n", res.Expected)
			fmt.Fprintf(&b, "     observed: %q\n", res.Observed)
		}
		if res.ArtifactID != "" {
			fmt.Fprintf(&b, "     screenshot: %s\n", res.ArtifactID)
		}
	}
	if r.TeardownError != "" {
		fmt.Fprintf(&b, "\n  teardown: %s\n", r.TeardownError)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON renders the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
