//go:build integration

package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestHealth(t *testing.T) {
	resp := env.GET(t, "/health")
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[struct {
		Status string `json:"status"`
	}](t, resp)
	requireField(t, result.Status, "ok", "status")
}

func TestOpenAPIListsVerificationRoutes(t *testing.T) {
	resp := env.GET(t, "/openapi.json")
	requireStatus(t, resp, http.StatusOK)
	doc := decodeJSON[struct {
		Paths map[string]any `json:"paths"`
	}](t, resp)
	for _, p := range []string{"/api/v1/verifications", "/api/v1/verifications/{run_id}", "/api/v1/verifications/{run_id}/image"} {
		if _, ok := doc.Paths[p]; !ok {
			t.Fatalf("openapi missing path %s", p)
		}
	}
}

func TestMetricsExposeRunCounter(t *testing.T) {
	env.verify(t, map[string]any{"target_url": env.AppURL + "/", "settle_delay_ms": 0})

	resp := env.GET(t, "/metrics")
	requireStatus(t, resp, http.StatusOK)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), "rendercheck_runs_total") {
		t.Fatalf("metrics missing rendercheck_runs_total")
	}
}
