package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgnsrekt/rendercheck/internal/artifact"
	"github.com/dgnsrekt/rendercheck/internal/service"
	"github.com/dgnsrekt/rendercheck/internal/verify"
	"github.com/prometheus/client_golang/prometheus"
)

type stubService struct {
	records  map[string]artifact.Record
	images   map[string][]byte
	verified []service.VerifyRequest
	err      error
	outcome  verify.Outcome
	registry *prometheus.Registry
}

func newStubService() *stubService {
	return &stubService{
		records:  map[string]artifact.Record{},
		images:   map[string][]byte{},
		registry: prometheus.NewRegistry(),
	}
}

func (s *stubService) Verify(ctx context.Context, req service.VerifyRequest) (artifact.Record, verify.Outcome, error) {
	s.verified = append(s.verified, req)
	if s.err != nil {
		return artifact.Record{}, verify.Outcome{}, s.err
	}
	rec := artifact.Record{ID: "6f1c2d3e-4a5b-4c6d-8e7f-9a0b1c2d3e4f", TargetURL: req.TargetURL, OK: s.outcome.OK, Kind: string(s.outcome.Kind)}
	if s.outcome.OK {
		rec.Format = "png"
	}
	s.records[rec.ID] = rec
	return rec, s.outcome, nil
}

func (s *stubService) List(ctx context.Context) ([]artifact.Record, error) {
	var out []artifact.Record
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubService) Get(ctx context.Context, id string) (artifact.Record, error) {
	rec, ok := s.records[id]
	if !ok {
		return artifact.Record{}, &service.CodedError{Code: service.CodeNotFound, Message: "run record not found: " + id}
	}
	return rec, nil
}

func (s *stubService) ReadImage(ctx context.Context, id string) ([]byte, string, error) {
	data, ok := s.images[id]
	if !ok {
		return nil, "", &service.CodedError{Code: service.CodeNotFound, Message: "no image for run " + id}
	}
	return data, "image/png", nil
}

func (s *stubService) Delete(ctx context.Context, id string) error {
	if _, ok := s.records[id]; !ok {
		return &service.CodedError{Code: service.CodeNotFound, Message: "run record not found: " + id}
	}
	delete(s.records, id)
	return nil
}

func (s *stubService) Gatherer() prometheus.Gatherer { return s.registry }

func TestDocsDarkMode(t *testing.T) {
	h := NewServer(newStubService())
	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
	if !strings.Contains(body, `apiDescriptionUrl="/openapi.json"`) {
		t.Fatalf("docs missing openapi reference")
	}
}

func TestOpenAPIListsVerificationRoutes(t *testing.T) {
	h := NewServer(newStubService())
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, path := range []string{"/health", "/api/v1/verifications", "/api/v1/verifications/{run_id}", "/api/v1/verifications/{run_id}/image"} {
		if !strings.Contains(body, `"`+path+`"`) {
			t.Fatalf("openapi missing path %s", path)
		}
	}
}
