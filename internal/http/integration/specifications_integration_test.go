package integration__test

import (
	"net/http"
	"testing"
)

func TestSpecificationsIntegration_CreateGetListUpdateDelete(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetTestDB(t, pool)
	defer resetTestDB(t, pool)

	token := operatorToken(t)

	createBody := map[string]any{
		"name":        "backup-db",
		"description": "nightly database backup",
		"command":     "pg_dump --format=custom $DB_NAME",
	}
	w := doRequest(router, http.MethodPost, "/specifications", token, createBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, "/specifications", token, createBody)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate create got status %d, want %d, body=%s", w.Code, http.StatusConflict, w.Body.String())
	}

	w = doRequest(router, http.MethodGet, "/specifications/backup-db", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	w = doRequest(router, http.MethodGet, "/specifications?active_only=true", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	updateBody := map[string]any{
		"description": "nightly database backup, retained 30 days",
		"command":     "pg_dump --format=custom --compress=9 $DB_NAME",
		"is_active":   true,
	}
	w = doRequest(router, http.MethodPut, "/specifications/backup-db", token, updateBody)
	if w.Code != http.StatusOK {
		t.Fatalf("update got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	w = doRequest(router, http.MethodDelete, "/specifications/backup-db", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}

	w = doRequest(router, http.MethodGet, "/specifications/backup-db", token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get-after-delete got status %d, want %d, body=%s", w.Code, http.StatusNotFound, w.Body.String())
	}
}

func TestSpecificationsIntegration_RequiresOperatorRole(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetTestDB(t, pool)
	defer resetTestDB(t, pool)

	w := doRequest(router, http.MethodGet, "/specifications", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list got status %d, want %d", w.Code, http.StatusUnauthorized)
	}

	w = doRequest(router, http.MethodGet, "/specifications", agentToken(t), nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("agent-token list got status %d, want %d, body=%s", w.Code, http.StatusForbidden, w.Body.String())
	}
}
