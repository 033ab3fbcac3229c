package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dgnsrekt/countdown_suite/internal/suite"
)

const (
	KindRunStarted    = "run_started"
	KindCheckFinished = "check_finished"
	KindRunFinished   = "run_finished"
)

type runStartedPayload struct {
	RunID     string    `json:"run_id"`
	TargetURL string    `json:"target_url"`
	StartedAt time.Time `json:"started_at"`
}

type checkFinishedPayload struct {
	RunID  string       `json:"run_id"`
	Result suite.Result `json:"result"`
}

type runFinishedPayload struct {
	RunID   string      `json:"run_id"`
	State   suite.State `json:"state"`
	Passed  bool        `json:"passed"`
	Summary string      `json:"summary"`
}

// RunObserver publishes suite progress to a Broker.
type RunObserver struct {
	broker *Broker
}

func NewRunObserver(b *Broker) *RunObserver {
	return &RunObserver{broker: b}
}

func (o *RunObserver) RunStarted(rep *suite.Report) {
	o.publish(KindRunStarted, runStartedPayload{RunID: rep.ID, TargetURL: rep.TargetURL, StartedAt: rep.StartedAt})
}

func (o *RunObserver) CheckFinished(runID string, res suite.Result) {
	o.publish(KindCheckFinished, checkFinishedPayload{RunID: runID, Result: res})
}

func (o *RunObserver) RunFinished(rep *suite.Report) {
	o.publish(KindRunFinished, runFinishedPayload{RunID: rep.ID, State: rep.State, Passed: rep.Passed, Summary: rep.Summary()})
}

func (o *RunObserver) publish(kind string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Debug("event marshal failed", "kind", kind, "error", err)
		return
	}
	o.broker.Publish(Event{Kind: kind, Payload: string(data)})
}
