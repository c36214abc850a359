package integration__test

import (
	"net/http"
	"testing"
)

func TestQueuesIntegration_CreateListStateDefault(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetTestDB(t, pool)
	defer resetTestDB(t, pool)

	token := operatorToken(t)

	w := doRequest(router, http.MethodPost, "/queues", token, map[string]any{
		"name":               "batch",
		"priority":           "normal",
		"strategy":           "round_robin",
		"time_limit_seconds": 3600,
		"is_default":         true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create queue got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, "/queues", token, map[string]any{
		"name":     "urgent",
		"priority": "critical",
		"strategy": "least_loaded",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create second queue got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	w = doRequest(router, http.MethodGet, "/queues", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list queues got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	w = doRequest(router, http.MethodPut, "/queues/urgent/default", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("set default got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}

	w = doRequest(router, http.MethodPut, "/queues/batch/state", token, map[string]any{"state": "paused"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("set state got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}

	w = doRequest(router, http.MethodDelete, "/queues/batch", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete queue got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}
}

func TestWorkersIntegration_CreateAssignPauseResumeDelete(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetTestDB(t, pool)
	defer resetTestDB(t, pool)

	token := operatorToken(t)

	w := doRequest(router, http.MethodPost, "/queues", token, map[string]any{
		"name":     "default",
		"priority": "normal",
		"strategy": "round_robin",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create queue got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, "/workers", token, map[string]any{
		"name":        "worker-1",
		"worker_type": "local",
		"max_jobs":    4,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create worker got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	w = doRequest(router, http.MethodGet, "/workers/worker-1", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get worker got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, "/workers/worker-1/queues", token, map[string]any{"queue_name": "default"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("assign queue got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, "/workers/worker-1/pause", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("pause got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, "/workers/worker-1/resume", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("resume got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}

	w = doRequest(router, http.MethodDelete, "/workers/worker-1/queues/default", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("unassign queue got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}

	w = doRequest(router, http.MethodDelete, "/workers/worker-1", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete worker got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}
}

func TestWorkersIntegration_SystemWorkerUndeletable(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetTestDB(t, pool)
	defer resetTestDB(t, pool)

	token := operatorToken(t)

	w := doRequest(router, http.MethodPost, "/workers", token, map[string]any{
		"name":        "System",
		"worker_type": "local",
		"max_jobs":    1,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create System worker got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	w = doRequest(router, http.MethodDelete, "/workers/System", token, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("delete System worker got status %d, want %d, body=%s", w.Code, http.StatusConflict, w.Body.String())
	}
}
