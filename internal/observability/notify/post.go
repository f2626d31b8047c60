package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 4 * 1024

// RetryBackoff is the linear step between delivery attempts.
var RetryBackoff = 200 * time.Millisecond

// PostJSON posts body to url, retrying non-2xx answers and transport errors up to
// retries extra times. name prefixes returned errors.
func PostJSON(ctx context.Context, client *http.Client, name, url string, body []byte, retries int) error {
	var lastErr error
	for attempt := range max(retries, 0) + 1 {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * RetryBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if lastErr = postOnce(ctx, client, name, url, body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func postOnce(ctx context.Context, client *http.Client, name, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%s %s: %s", name, resp.Status, strings.TrimSpace(string(snippet)))
}
