package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgnsrekt/countdown_suite/internal/controller"
	"github.com/dgnsrekt/countdown_suite/internal/driver"
	"github.com/dgnsrekt/countdown_suite/internal/events"
	"github.com/dgnsrekt/countdown_suite/internal/runstore"
	"github.com/dgnsrekt/countdown_suite/internal/suite"
)

const knownRunID = "123e4567-e89b-12d3-a456-426614174000"

type stubService struct {
	runReport *suite.Report
	runErr    error
	deleted   []string
}

func (s *stubService) RunSuite(ctx context.Context) (*suite.Report, error) {
	return s.runReport, s.runErr
}

func (s *stubService) ListRuns() ([]runstore.RunSummary, error) {
	return nil, nil
}

func (s *stubService) GetRun(id string) (*suite.Report, error) {
	if id == knownRunID {
		return &suite.Report{ID: id, Suite: suite.Title, State: suite.StateCompleted, Passed: true}, nil
	}
	if id == "bad" {
		return nil, fmt.Errorf("%w: %q", runstore.ErrInvalidID, id)
	}
	return nil, fmt.Errorf("run %s: %w", id, runstore.ErrNotFound)
}

func (s *stubService) DeleteRun(id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubService) ReadArtifact(id string) ([]byte, runstore.ArtifactMeta, error) {
	if id != knownRunID {
		return nil, runstore.ArtifactMeta{}, runstore.ErrNotFound
	}
	return []byte("\x89PNG"), runstore.ArtifactMeta{ID: id, Format: "png"}, nil
}

func (s *stubService) Checks() []controller.CheckInfo {
	return (&controller.Service{}).Checks()
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDocsDarkMode(t *testing.T) {
	w := serve(NewServer(&stubService{}), http.MethodGet, "/docs")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
}

func TestHealth(t *testing.T) {
	w := serve(NewServer(&stubService{}), http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestRunSuiteStatuses(t *testing.T) {
	failed := &suite.Report{ID: knownRunID, State: suite.StateCompleted, Passed: false}
	aborted := &suite.Report{ID: knownRunID, State: suite.StateAborted}

	tests := []struct {
		name string
		svc  *stubService
		want int
	}{
		{"checks failed", &stubService{runReport: failed}, http.StatusOK},
		{"busy", &stubService{runErr: controller.ErrBusy}, http.StatusConflict},
		{"setup failed", &stubService{runReport: aborted, runErr: driver.NewError(driver.CodeSetup, "navigate failed", nil)}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(NewServer(tt.svc), http.MethodPost, "/api/v1/runs")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRunSuiteReturnsReport(t *testing.T) {
	rep := &suite.Report{ID: knownRunID, Suite: suite.Title, State: suite.StateCompleted, Passed: true}
	w := serve(NewServer(&stubService{runReport: rep}), http.MethodPost, "/api/v1/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got suite.Report
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != knownRunID || !got.Passed {
		t.Fatalf("report = %+v", got)
	}
}

func TestGetRunErrors(t *testing.T) {
	h := NewServer(&stubService{})
	if w := serve(h, http.MethodGet, "/api/v1/runs/"+knownRunID); w.Code != http.StatusOK {
		t.Fatalf("known run status = %d, want 200", w.Code)
	}
	if w := serve(h, http.MethodGet, "/api/v1/runs/00000000-0000-4000-8000-000000000000"); w.Code != http.StatusNotFound {
		t.Fatalf("missing run status = %d, want 404", w.Code)
	}
	if w := serve(h, http.MethodGet, "/api/v1/runs/bad"); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid run status = %d, want 400", w.Code)
	}
}

func TestListRunsEmptyArray(t *testing.T) {
	w := serve(NewServer(&stubService{}), http.MethodGet, "/api/v1/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"runs":[]`) {
		t.Fatalf("body = %s; want empty runs array", w.Body.String())
	}
}

func TestDeleteRun(t *testing.T) {
	svc := &stubService{}
	w := serve(NewServer(svc), http.MethodDelete, "/api/v1/runs/"+knownRunID)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != knownRunID {
		t.Fatalf("deleted = %v", svc.deleted)
	}
}

func TestArtifactServesPNG(t *testing.T) {
	w := serve(NewServer(&stubService{}), http.MethodGet, "/api/v1/artifacts/"+knownRunID)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("content-type = %q; want image/png", got)
	}
	if w.Body.String() != "\x89PNG" {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestChecksCatalog(t *testing.T) {
	w := serve(NewServer(&stubService{}), http.MethodGet, "/api/v1/checks")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	for _, want := range []string{`"presence"`, `"page-background"`, suite.Title} {
		if !strings.Contains(w.Body.String(), want) {
			t.Fatalf("body = %s; missing %s", w.Body.String(), want)
		}
	}
}

func TestEventsRouteOnlyWithBroker(t *testing.T) {
	if w := serve(NewServer(&stubService{}), http.MethodGet, "/api/v1/events"); w.Code != http.StatusNotFound {
		t.Fatalf("status without broker = %d; want 404", w.Code)
	}

	b := events.NewBroker()
	srv := httptest.NewServer(NewServer(&stubService{}, WithEvents(b)))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content-type = %q; want text/event-stream", got)
	}
}
