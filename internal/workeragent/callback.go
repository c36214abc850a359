package workeragent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// statusCallbackPayload is the body posted to POST /api/node/status.
type statusCallbackPayload struct {
	ExecutionID string  `json:"execution_id"`
	Status      Status  `json:"status"`
	ExitCode    *int    `json:"exit_code,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// HTTPCallback posts terminal (and running) status transitions back to the
// backend ingress endpoint described in §6.
type HTTPCallback struct {
	client *http.Client
	url    string
}

func NewHTTPCallback(url string, timeout time.Duration) *HTTPCallback {
	return &HTTPCallback{client: &http.Client{Timeout: timeout}, url: url}
}

func (c *HTTPCallback) Post(ctx context.Context, executionID string, status Status, exitCode *int, errMsg string) error {
	body, err := json.Marshal(statusCallbackPayload{
		ExecutionID: executionID,
		Status:      status,
		ExitCode:    exitCode,
		Error:       errMsg,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post status callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("status callback rejected: %s", resp.Status)
	}
	return nil
}
