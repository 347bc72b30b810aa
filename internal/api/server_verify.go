package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/rendercheck/internal/artifact"
	"github.com/dgnsrekt/rendercheck/internal/service"
	"github.com/dgnsrekt/rendercheck/internal/verify"
)

func imageURL(id string) string {
	return "/api/v1/verifications/" + id + "/image"
}

func registerVerificationHandlers(api huma.API, svc Service) {
	type verifyOutput struct {
		Body struct {
			Run      artifact.Record `json:"run"`
			Outcome  verify.Outcome  `json:"outcome"`
			ImageURL string          `json:"image_url,omitempty"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "run-verification", Method: http.MethodPost, Path: "/api/v1/verifications", Summary: "Run a render verification", Description: "Loads the target in a fresh headless browser, waits for the readiness selector, settles and captures a PNG. A failed verification is still a 200 with run.ok=false; 409 means another run is in flight.", Tags: []string{"Verifications"}},
		func(ctx context.Context, input *struct {
			Body struct {
				TargetURL          string `json:"target_url,omitempty" doc:"Absolute URL to load; defaults to the configured target" example:"http://localhost:5173"`
				ReadinessSelector  string `json:"readiness_selector,omitempty" doc:"CSS selector that signals the page is ready" example:"canvas"`
				ReadinessState     string `json:"readiness_state,omitempty" doc:"visible (default) or attached"`
				ReadinessTimeoutMS *int   `json:"readiness_timeout_ms,omitempty" doc:"Maximum wait for the selector in milliseconds"`
				SettleDelayMS      *int   `json:"settle_delay_ms,omitempty" doc:"Fixed wait after readiness before capture"`
				FullPage           *bool  `json:"full_page,omitempty" doc:"Capture the full scrollable page"`
				Notes              string `json:"notes,omitempty" doc:"Free-form annotation stored with the run"`
			}
		}) (*verifyOutput, error) {
			rec, outcome, err := svc.Verify(ctx, service.VerifyRequest{
				TargetURL:          input.Body.TargetURL,
				ReadinessSelector:  input.Body.ReadinessSelector,
				ReadinessState:     input.Body.ReadinessState,
				ReadinessTimeoutMS: input.Body.ReadinessTimeoutMS,
				SettleDelayMS:      input.Body.SettleDelayMS,
				FullPage:           input.Body.FullPage,
				Notes:              input.Body.Notes,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			out := &verifyOutput{}
			out.Body.Run = rec
			out.Body.Outcome = outcome
			if rec.HasImage() {
				out.Body.ImageURL = imageURL(rec.ID)
			}
			return out, nil
		})

	type listOutput struct {
		Body struct {
			Runs []artifact.Record `json:"runs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-verifications", Method: http.MethodGet, Path: "/api/v1/verifications", Summary: "List verification runs", Tags: []string{"Verifications"}},
		func(ctx context.Context, input *struct{}) (*listOutput, error) {
			recs, err := svc.List(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listOutput{}
			out.Body.Runs = recs
			if out.Body.Runs == nil {
				out.Body.Runs = []artifact.Record{}
			}
			return out, nil
		})

	type runIDInput struct {
		RunID string `path:"run_id"`
	}
	type getOutput struct {
		Body artifact.Record
	}
	huma.Register(api, huma.Operation{OperationID: "get-verification", Method: http.MethodGet, Path: "/api/v1/verifications/{run_id}", Summary: "Get verification run metadata", Tags: []string{"Verifications"}},
		func(ctx context.Context, input *runIDInput) (*getOutput, error) {
			rec, err := svc.Get(ctx, input.RunID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &getOutput{Body: rec}, nil
		})

	type imageOutput struct {
		ContentType  string `header:"Content-Type"`
		CacheControl string `header:"Cache-Control"`
		Body         []byte
	}
	huma.Register(api, huma.Operation{OperationID: "get-verification-image", Method: http.MethodGet, Path: "/api/v1/verifications/{run_id}/image", Summary: "Download the captured screenshot", Description: "404 for runs that did not produce an image.", Tags: []string{"Verifications"}},
		func(ctx context.Context, input *runIDInput) (*imageOutput, error) {
			data, contentType, err := svc.ReadImage(ctx, input.RunID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &imageOutput{ContentType: contentType, CacheControl: "no-store", Body: data}, nil
		})

	type deleteOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "delete-verification", Method: http.MethodDelete, Path: "/api/v1/verifications/{run_id}", Summary: "Delete a verification run and its image", Tags: []string{"Verifications"}},
		func(ctx context.Context, input *runIDInput) (*deleteOutput, error) {
			if err := svc.Delete(ctx, input.RunID); err != nil {
				return nil, mapErr(err)
			}
			out := &deleteOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})
}
