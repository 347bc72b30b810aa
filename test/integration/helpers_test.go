//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

var env *Env

// Env holds shared state for all integration tests.
type Env struct {
	BaseURL string
	Client  *http.Client
	// AppURL serves the fixture pages the daemon is pointed at.
	AppURL string
}

const canvasPage = `<!doctype html>
<html><body>
<script>
setTimeout(function () {
  var c = document.createElement("canvas");
  c.width = 320; c.height = 240;
  document.body.appendChild(c);
  var g = c.getContext("2d");
  g.fillStyle = "#3a7"; g.fillRect(0, 0, 320, 240);
}, 250);
</script>
</body></html>`

const blankPage = `<!doctype html><html><body><p>no canvas here</p></body></html>`

func fixtureHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, canvasPage)
	})
	mux.HandleFunc("/blank", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, blankPage)
	})
	return mux
}

func TestMain(m *testing.M) {
	baseURL := os.Getenv("RENDERCHECKD_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8199"
	}

	app := httptest.NewServer(fixtureHandler())
	env = &Env{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 90 * time.Second},
		AppURL:  app.URL,
	}

	resp, err := env.Client.Get(env.BaseURL + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "rendercheckd not reachable at %s: %v\n", env.BaseURL, err)
		app.Close()
		os.Exit(1)
	}
	resp.Body.Close()
	fmt.Fprintf(os.Stdout, "integration: using %s, fixtures at %s\n", env.BaseURL, env.AppURL)

	code := m.Run()
	app.Close()
	os.Exit(code)
}

// --- HTTP helpers ---

func (e *Env) GET(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.Client.Get(e.BaseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (e *Env) POST(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPost, path, body)
}

func (e *Env) DELETE(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodDelete, path, nil)
}

func (e *Env) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("%s %s: marshal body: %v", method, path, err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.BaseURL+path, r)
	if err != nil {
		t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func requireField[T comparable](t *testing.T, got, want T, name string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

// --- Verification helpers ---

type runRecord struct {
	ID        string `json:"id"`
	TargetURL string `json:"target_url"`
	OK        bool   `json:"ok"`
	Kind      string `json:"kind"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int    `json:"size_bytes"`
}

type verifyResult struct {
	Run     runRecord `json:"run"`
	Outcome struct {
		OK      bool   `json:"ok"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"outcome"`
	ImageURL string `json:"image_url"`
}

func (e *Env) verify(t *testing.T, body map[string]any) verifyResult {
	t.Helper()
	resp := e.POST(t, "/api/v1/verifications", body)
	requireStatus(t, resp, http.StatusOK)
	res := decodeJSON[verifyResult](t, resp)
	t.Cleanup(func() {
		if res.Run.ID == "" {
			return
		}
		if resp, err := e.Client.Do(mustRequest(http.MethodDelete, e.BaseURL+"/api/v1/verifications/"+res.Run.ID)); err == nil {
			resp.Body.Close()
		}
	})
	return res
}

func mustRequest(method, url string) *http.Request {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		panic(err)
	}
	return req
}
