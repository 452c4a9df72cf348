package automation

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// StatusURL is the Selenium status endpoint on the given local port.
func StatusURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d/wd/hub/status", port)
}

// WaitReady polls url until it answers 200 OK. It gives up when the server
// exits (h.Done) or ctx ends. There is no overall timeout.
func WaitReady(ctx context.Context, client *http.Client, url string, h Handle, interval time.Duration) error {
	if client == nil {
		client = http.DefaultClient
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if probe(ctx, client, url) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.Done():
			return fmt.Errorf("waiting for %s: %w", url, h.Err())
		case <-ticker.C:
		}
	}
}

func probe(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
