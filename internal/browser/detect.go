package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// detectBrowser finds an available Chrome/Chromium binary.
func detectBrowser() (string, error) {
	candidates := []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried %s)", strings.Join(candidates, ", "))
}

// waitForCDP polls the CDP /json/version endpoint under baseURL until it
// answers 200 and the advertised browser websocket accepts a handshake, or
// the timeout elapses.
func waitForCDP(ctx context.Context, baseURL string, timeout time.Duration) error {
	versionURL := strings.TrimRight(baseURL, "/") + "/json/version"
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	var lastErr error
	for {
		lastErr = checkCDP(ctx, client, baseURL, versionURL)
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("CDP did not become ready within %s at %s: %w", timeout, versionURL, lastErr)
		case <-ticker.C:
		}
	}
}

func checkCDP(ctx context.Context, client *http.Client, baseURL, versionURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return fmt.Errorf("decode version: %w", err)
	}
	if version.WebSocketDebuggerURL == "" {
		return nil
	}
	return dialCDP(ctx, reachableWSURL(version.WebSocketDebuggerURL, baseURL))
}

// dialCDP completes a websocket handshake with the browser endpoint and
// closes it again.
func dialCDP(ctx context.Context, wsURL string) error {
	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(dialCtx, wsURL)
	if err != nil {
		return fmt.Errorf("websocket %s: %w", wsURL, err)
	}
	defer conn.Close()
	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	if err := wsutil.WriteClientMessage(conn, ws.OpClose, body); err != nil {
		slog.Debug("cdp check close frame failed", "error", err)
	}
	return nil
}

// reachableWSURL points the advertised websocket at the host the caller
// used, since browsers in containers advertise their internal address.
func reachableWSURL(wsURL, baseURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return wsURL
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return wsURL
	}
	u.Host = base.Host
	return u.String()
}
