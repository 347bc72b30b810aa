package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/rendercheck/internal/artifact"
	"github.com/dgnsrekt/rendercheck/internal/service"
	"github.com/dgnsrekt/rendercheck/internal/verify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Service interface {
	Verify(ctx context.Context, req service.VerifyRequest) (artifact.Record, verify.Outcome, error)
	List(ctx context.Context) ([]artifact.Record, error)
	Get(ctx context.Context, id string) (artifact.Record, error)
	ReadImage(ctx context.Context, id string) ([]byte, string, error)
	Delete(ctx context.Context, id string) error
	Gatherer() prometheus.Gatherer
}

// Option customizes NewServer.
type Option func(*serverOptions)

type serverOptions struct {
	eventStream http.Handler
}

// WithEventStream serves h at GET /api/v1/events.
func WithEventStream(h http.Handler) Option {
	return func(o *serverOptions) { o.eventStream = h }
}

func NewServer(svc Service, opts ...Option) http.Handler {
	var so serverOptions
	for _, opt := range opts {
		opt(&so)
	}

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("rendercheck API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Handle("/metrics", promhttp.HandlerFor(svc.Gatherer(), promhttp.HandlerOpts{}))
	if so.eventStream != nil {
		router.Get("/api/v1/events", so.eventStream.ServeHTTP)
	}

	registerHealthHandlers(api)
	registerVerificationHandlers(api, svc)

	return router
}

func registerHealthHandlers(api huma.API) {
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
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *service.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case service.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case service.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case service.CodeBusy:
			return huma.Error409Conflict(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
