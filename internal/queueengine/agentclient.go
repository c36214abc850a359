package queueengine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/dispatch/internal/domain/worker"
)

// HTTPAgentClient calls a worker agent's /execute endpoint over HTTP.
// Worker.Hostname/IPAddress and Worker.Port address the agent directly;
// a local worker's hostname defaults to 127.0.0.1 by convention of the
// worker manager that starts it.
type HTTPAgentClient struct {
	client *http.Client
}

func NewHTTPAgentClient(timeout time.Duration) *HTTPAgentClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAgentClient{client: &http.Client{Timeout: timeout}}
}

type executeRequest struct {
	ExecutionID string   `json:"execution_id"`
	Command     string   `json:"command"`
	Args        []string `json:"args"`
}

type executeResponse struct {
	ExecutionID string `json:"execution_id"`
	PID         int    `json:"pid"`
	Status      string `json:"status"`
}

func (c *HTTPAgentClient) ExecuteCommand(ctx context.Context, w worker.Worker, executionID, command string, args []string) error {
	encodedArgs := make([]string, len(args))
	for i, a := range args {
		encodedArgs[i] = base64.StdEncoding.EncodeToString([]byte(a))
	}

	body, err := json.Marshal(executeRequest{
		ExecutionID: executionID,
		Command:     base64.StdEncoding.EncodeToString([]byte(command)),
		Args:        encodedArgs,
	})
	if err != nil {
		return fmt.Errorf("encode execute request: %w", err)
	}

	url := "http://" + agentHost(w) + ":" + strconv.Itoa(w.Port) + "/execute"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("Connection refused: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		var out executeResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return fmt.Errorf("Server error: decode execute response: %w", err)
		}
		return nil

	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("rejected job: %s", string(respBody))

	case resp.StatusCode >= 500:
		return fmt.Errorf("Server error: agent returned %d: %s", resp.StatusCode, string(respBody))

	default:
		return fmt.Errorf("Failed to start command: agent returned %d: %s", resp.StatusCode, string(respBody))
	}
}

func agentHost(w worker.Worker) string {
	if w.IPAddress != "" {
		return w.IPAddress
	}
	if w.Hostname != "" {
		return w.Hostname
	}
	return "127.0.0.1"
}
