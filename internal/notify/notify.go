package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgnsrekt/rendercheck/internal/verify"
)

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	return post(ctx, client, endpoint, message, nil)
}

// SendOutcome posts OutcomeMessage(out) with ntfy title, tag and priority
// headers derived from the result.
func SendOutcome(ctx context.Context, client *http.Client, endpoint string, out verify.Outcome) error {
	headers := http.Header{}
	if out.OK {
		headers.Set("Title", "rendercheck passed")
		headers.Set("Tags", "white_check_mark")
	} else {
		headers.Set("Title", "rendercheck failed: "+string(out.Kind))
		headers.Set("Tags", "rotating_light")
		headers.Set("Priority", "high")
	}
	return post(ctx, client, endpoint, OutcomeMessage(out), headers)
}

// OutcomeMessage formats a one-line summary of a verification.
func OutcomeMessage(out verify.Outcome) string {
	if out.OK {
		return fmt.Sprintf("%s rendered in %dms: %s (%dx%d, %d bytes)",
			out.TargetURL, out.ElapsedMS, out.OutputPath, out.Width, out.Height, out.SizeBytes)
	}
	return fmt.Sprintf("%s failed after %dms: %s: %s", out.TargetURL, out.ElapsedMS, out.Kind, out.Message)
}

func post(ctx context.Context, client *http.Client, endpoint, message string, headers http.Header) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("notify: endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	for key, vals := range headers {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
