package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/countdown_suite/internal/controller"
	"github.com/dgnsrekt/countdown_suite/internal/driver"
	"github.com/dgnsrekt/countdown_suite/internal/events"
	"github.com/dgnsrekt/countdown_suite/internal/runstore"
	"github.com/dgnsrekt/countdown_suite/internal/suite"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	RunSuite(ctx context.Context) (*suite.Report, error)
	ListRuns() ([]runstore.RunSummary, error)
	GetRun(id string) (*suite.Report, error)
	DeleteRun(id string) error
	ReadArtifact(id string) ([]byte, runstore.ArtifactMeta, error)
	Checks() []controller.CheckInfo
}

// ServerOption customizes NewServer.
type ServerOption func(*serverOptions)

type serverOptions struct {
	broker *events.Broker
}

// WithEvents mounts the run progress stream at /api/v1/events.
func WithEvents(b *events.Broker) ServerOption {
	return func(o *serverOptions) { o.broker = b }
}

func NewServer(svc Service, opts ...ServerOption) http.Handler {
	var so serverOptions
	for _, opt := range opts {
		opt(&so)
	}

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Countdown Suite API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	if so.broker != nil {
		router.Get("/api/v1/events", events.SSEHandler(so.broker))
	}

	registerRunHandlers(api, svc)
	registerArtifactHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, controller.ErrBusy):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, runstore.ErrInvalidID):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, runstore.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	}
	var coded *driver.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case driver.CodeSetup:
			return huma.Error502BadGateway(coded.Error())
		case driver.CodeTimeout:
			return huma.Error504GatewayTimeout(coded.Error())
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
