package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/dgnsrekt/rendercheck/internal/verify"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func TestNewSelectsDriver(t *testing.T) {
	d, err := New(Config{})
	if err != nil {
		t.Fatalf("New(default) error = %v", err)
	}
	if _, ok := d.(*ChromeDriver); !ok {
		t.Fatalf("New(default) = %T, want *ChromeDriver", d)
	}

	d, err = New(Config{Name: " Playwright "})
	if err != nil {
		t.Fatalf("New(playwright) error = %v", err)
	}
	if _, ok := d.(*PlaywrightDriver); !ok {
		t.Fatalf("New(playwright) = %T, want *PlaywrightDriver", d)
	}

	if _, err := New(Config{Name: "selenium"}); err == nil {
		t.Fatalf("New(selenium) error = nil, want unknown driver error")
	}
	if _, err := New(Config{Name: DriverPlaywright, CDPURL: "http://127.0.0.1:9222"}); err == nil {
		t.Fatalf("New(playwright with CDP URL) error = nil, want error")
	}
}

func TestFreshDriverHasNoLiveHandles(t *testing.T) {
	d := NewChromeDriver(Config{})
	if d.LiveSessions() != 0 || d.LivePages() != 0 {
		t.Fatalf("live = (%d, %d), want (0, 0)", d.LiveSessions(), d.LivePages())
	}
}

func TestWaitForCDPReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"HeadlessChrome/126.0.0.0"}`))
	}))
	defer srv.Close()

	if err := waitForCDP(context.Background(), srv.URL+"/", time.Second); err != nil {
		t.Fatalf("waitForCDP() error = %v", err)
	}
}

// devtoolsServer answers /json/version with a websocket URL on an
// unreachable host, so the check must rewrite it to reach the upgrade
// handler.
func devtoolsServer(t *testing.T, upgrade bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Browser":"HeadlessChrome/126.0.0.0","webSocketDebuggerUrl":"ws://0.0.0.0:9222/devtools/browser/abc"}`))
	})
	mux.HandleFunc("/devtools/browser/abc", func(w http.ResponseWriter, r *http.Request) {
		if !upgrade {
			http.Error(w, "no upgrade", http.StatusForbidden)
			return
		}
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = wsutil.ReadClientData(conn)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWaitForCDPDialsWebSocket(t *testing.T) {
	srv := devtoolsServer(t, true)
	if err := waitForCDP(context.Background(), srv.URL, 2*time.Second); err != nil {
		t.Fatalf("waitForCDP() error = %v", err)
	}
}

func TestWaitForCDPRejectedWebSocket(t *testing.T) {
	srv := devtoolsServer(t, false)
	err := waitForCDP(context.Background(), srv.URL, 300*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "websocket") {
		t.Fatalf("waitForCDP() error = %v, want websocket failure", err)
	}
}

func TestReachableWSURL(t *testing.T) {
	got := reachableWSURL("ws://0.0.0.0:9222/devtools/browser/abc", "http://chrome.internal:9333")
	if want := "ws://chrome.internal:9333/devtools/browser/abc"; got != want {
		t.Fatalf("reachableWSURL() = %q, want %q", got, want)
	}
	if got := reachableWSURL("ws://127.0.0.1:9222/x", "not a url\x7f"); got != "ws://127.0.0.1:9222/x" {
		t.Fatalf("reachableWSURL(bad base) = %q", got)
	}
}

func TestWaitForCDPTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	start := time.Now()
	err := waitForCDP(context.Background(), srv.URL, 300*time.Millisecond)
	if err == nil {
		t.Fatalf("waitForCDP() error = nil, want timeout")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("waitForCDP() took %s, want about 300ms", elapsed)
	}
}

func TestWaitForCDPCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := waitForCDP(ctx, "http://127.0.0.1:1", 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("waitForCDP() error = %v, want context.Canceled", err)
	}
}

func TestCheckStatus(t *testing.T) {
	cases := []struct {
		name    string
		resp    *network.Response
		wantBad bool
	}{
		{"nil response", nil, false},
		{"no status", &network.Response{}, false},
		{"ok", &network.Response{Status: 200}, false},
		{"no content", &network.Response{Status: 204}, false},
		{"not found", &network.Response{Status: 404, StatusText: "Not Found"}, true},
		{"server error", &network.Response{Status: 502}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkStatus(tc.resp)
			if got := errors.Is(err, verify.ErrBadStatus); got != tc.wantBad {
				t.Fatalf("checkStatus() = %v, want bad status = %v", err, tc.wantBad)
			}
		})
	}
}
