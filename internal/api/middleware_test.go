package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRequestLoggerLevels(t *testing.T) {
	h := requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	cases := []struct {
		path string
		want string
	}{
		{"/api/v1/verifications", "level=INFO"},
		{"/metrics", ""},
		{"/boom", "level=WARN"},
	}
	for _, tc := range cases {
		buf := captureLogs(t, slog.LevelInfo)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tc.path, nil))
		got := buf.String()
		if tc.want == "" {
			if got != "" {
				t.Fatalf("%s logged at info: %s", tc.path, got)
			}
			continue
		}
		if !strings.Contains(got, tc.want) || !strings.Contains(got, "path="+tc.path) {
			t.Fatalf("%s log = %q, want %s", tc.path, got, tc.want)
		}
	}
}
