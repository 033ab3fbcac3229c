package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/countdown_suite/internal/controller"
	"github.com/dgnsrekt/countdown_suite/internal/runstore"
	"github.com/dgnsrekt/countdown_suite/internal/suite"
)

type runIDInput struct {
	RunID string `path:"run_id" doc:"Run UUID"`
}

type reportOutput struct {
	Body *suite.Report
}

func registerRunHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{
		OperationID: "run-suite",
		Method:      http.MethodPost,
		Path:        "/api/v1/runs",
		Summary:     "Run the countdown suite",
		Description: "Runs every check against the configured page and returns the report. Failed checks still answer 200; 502 means the page could not be opened and 409 means a run is already in progress.",
		Tags:        []string{"Runs"},
	}, func(ctx context.Context, input *struct{}) (*reportOutput, error) {
		rep, err := svc.RunSuite(ctx)
		if err != nil {
			if rep != nil {
				return nil, mapErr(fmt.Errorf("run %s: %w", rep.ID, err))
			}
			return nil, mapErr(err)
		}
		return &reportOutput{Body: rep}, nil
	})

	type listRunsOutput struct {
		Body struct {
			Runs []runstore.RunSummary `json:"runs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-runs", Method: http.MethodGet, Path: "/api/v1/runs", Summary: "List runs", Tags: []string{"Runs"}},
		func(ctx context.Context, input *struct{}) (*listRunsOutput, error) {
			runs, err := svc.ListRuns()
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listRunsOutput{}
			out.Body.Runs = runs
			if out.Body.Runs == nil {
				out.Body.Runs = []runstore.RunSummary{}
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-run", Method: http.MethodGet, Path: "/api/v1/runs/{run_id}", Summary: "Get run report", Tags: []string{"Runs"}},
		func(ctx context.Context, input *runIDInput) (*reportOutput, error) {
			rep, err := svc.GetRun(input.RunID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &reportOutput{Body: rep}, nil
		})

	type deleteRunOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "delete-run", Method: http.MethodDelete, Path: "/api/v1/runs/{run_id}", Summary: "Delete run and its screenshots", Tags: []string{"Runs"}},
		func(ctx context.Context, input *runIDInput) (*deleteRunOutput, error) {
			if err := svc.DeleteRun(input.RunID); err != nil {
				return nil, mapErr(err)
			}
			out := &deleteRunOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})

	type checksOutput struct {
		Body struct {
			Suite  string                 `json:"suite"`
			Checks []controller.CheckInfo `json:"checks"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-checks", Method: http.MethodGet, Path: "/api/v1/checks", Summary: "List checks in run order", Tags: []string{"Runs"}},
		func(ctx context.Context, input *struct{}) (*checksOutput, error) {
			out := &checksOutput{}
			out.Body.Suite = suite.Title
			out.Body.Checks = svc.Checks()
			return out, nil
		})
}

func registerArtifactHandlers(api huma.API, svc Service) {
	type artifactOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-artifact",
		Method:      http.MethodGet,
		Path:        "/api/v1/artifacts/{artifact_id}",
		Summary:     "Get failure screenshot",
		Tags:        []string{"Artifacts"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Screenshot image",
				Content: map[string]*huma.MediaType{
					"image/png": {Schema: &huma.Schema{Type: "string", Format: "binary"}},
				},
			},
		},
	}, func(ctx context.Context, input *struct {
		ArtifactID string `path:"artifact_id" doc:"Artifact UUID"`
	}) (*artifactOutput, error) {
		data, meta, err := svc.ReadArtifact(input.ArtifactID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &artifactOutput{ContentType: "image/" + meta.Format, Body: data}, nil
	})
}
