package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a thin HTTP client for the collector's best-effort ingest
// endpoint.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a client posting reports to the given URL.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url: url,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// Publish posts one report as JSON.
func (c *Client) Publish(ctx context.Context, report Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("publish failed: %s: %s", res.Status, msg)
		}
		return fmt.Errorf("publish failed: %s", res.Status)
	}
	return nil
}
