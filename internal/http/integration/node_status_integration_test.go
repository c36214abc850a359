package integration__test

import (
	"fmt"
	"net/http"
	"testing"
)

func TestNodeStatusIntegration_FailedMarksJobFailed(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetTestDB(t, pool)
	defer resetTestDB(t, pool)

	operator := operatorToken(t)
	seedQueueAndSpec(t, router, operator)

	w := doRequest(router, http.MethodPost, "/jobs", operator, map[string]any{
		"name":       "echo-hello",
		"queue_name": "default",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create job got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	var created map[string]any
	mustReadJSON(t, w, &created)
	id := int64(created["id"].(float64))

	agent := agentToken(t)
	exitCode := 1
	w = doRequest(router, http.MethodPost, "/api/node/status", agent, map[string]any{
		"execution_id": fmt.Sprintf("worker-1:%d", id),
		"status":       "failed",
		"exit_code":    exitCode,
		"error":        "command exited non-zero",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("node status report got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}

	path := "/jobs/" + trimFloat(float64(id))
	w = doRequest(router, http.MethodGet, path, operator, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get job got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var j map[string]any
	mustReadJSON(t, w, &j)
	if j["status"] != "failed" {
		t.Fatalf("job status = %v, want failed", j["status"])
	}
	if j["error_message"] != "command exited non-zero" {
		t.Fatalf("error_message = %v, want %q", j["error_message"], "command exited non-zero")
	}
}

func TestNodeStatusIntegration_UnknownStatusRejected(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetTestDB(t, pool)
	defer resetTestDB(t, pool)

	agent := agentToken(t)
	w := doRequest(router, http.MethodPost, "/api/node/status", agent, map[string]any{
		"execution_id": "worker-1:1",
		"status":       "paused",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestNodeStatusIntegration_RequiresAgentRole(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetTestDB(t, pool)
	defer resetTestDB(t, pool)

	operator := operatorToken(t)
	w := doRequest(router, http.MethodPost, "/api/node/status", operator, map[string]any{
		"execution_id": "worker-1:1",
		"status":       "completed",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusForbidden, w.Body.String())
	}
}
