package integration__test

import (
	"net/http"
	"testing"
)

func seedQueueAndSpec(t *testing.T, router http.Handler, token string) {
	t.Helper()

	w := doRequest(router, http.MethodPost, "/queues", token, map[string]any{
		"name":       "default",
		"priority":   "normal",
		"strategy":   "round_robin",
		"is_default": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("seed queue got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, "/specifications", token, map[string]any{
		"name":    "echo-hello",
		"command": "echo hello $NAME",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("seed specification got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
}

func TestJobsIntegration_CreateGetListCancel(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetTestDB(t, pool)
	defer resetTestDB(t, pool)

	token := operatorToken(t)
	seedQueueAndSpec(t, router, token)

	w := doRequest(router, http.MethodPost, "/jobs", token, map[string]any{
		"name":         "echo-hello",
		"queue_name":   "default",
		"runtime_args": map[string]string{"NAME": "world"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create job got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	var created map[string]any
	mustReadJSON(t, w, &created)
	id, ok := created["id"].(float64)
	if !ok || id <= 0 {
		t.Fatalf("create job response missing id: %v", created)
	}

	path := "/jobs/" + trimFloat(id)

	w = doRequest(router, http.MethodGet, path, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get job got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	w = doRequest(router, http.MethodGet, "/jobs", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list jobs got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	w = doRequest(router, http.MethodGet, "/jobs/statistics", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("statistics got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, path+"/cancel", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("cancel got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, path+"/cancel", token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("re-cancel got status %d, want %d, body=%s", w.Code, http.StatusNotFound, w.Body.String())
	}
}

func TestJobsIntegration_CreateRejectsUnstartedQueue(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetTestDB(t, pool)
	defer resetTestDB(t, pool)

	token := operatorToken(t)
	seedQueueAndSpec(t, router, token)

	w := doRequest(router, http.MethodPut, "/queues/default/state", token, map[string]any{"state": "stopped"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("stop queue got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, "/jobs", token, map[string]any{
		"name":       "echo-hello",
		"queue_name": "default",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("create-on-stopped-queue got status %d, want %d, body=%s", w.Code, http.StatusConflict, w.Body.String())
	}
}

func trimFloat(f float64) string {
	n := int64(f)
	if n < 0 {
		return "-" + trimFloat(float64(-n))
	}
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
