// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package api

import (
	"net/http"
	"testing"

	"github.com/caseguard/caseguard/internal/honeytrap"
)

func deployTrap(t *testing.T, env *testEnv, caseID string, trapType honeytrap.TrapType) map[string]interface{} {
	t.Helper()

	w, envelope := doJSON(t, env.router, http.MethodPost, "/api/v1/honeytraps/", map[string]interface{}{
		"case_id":     caseID,
		"type":        trapType,
		"description": "test trap",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("deploy status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	return dataMap(t, envelope)
}

func TestDeployTrap(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	trap := deployTrap(t, env, "case-1", honeytrap.TrapHiddenRoute)

	if trap["id"] == "" || trap["id"] == nil {
		t.Error("deployed trap has no ID")
	}
	if trap["type"] != string(honeytrap.TrapHiddenRoute) {
		t.Errorf("trap type = %v, want hidden_route", trap["type"])
	}
	if path, _ := trap["path"].(string); path == "" {
		t.Error("hidden route trap should carry a generated path")
	}
	if active, _ := trap["active"].(bool); !active {
		t.Error("deployed trap should be active")
	}
}

func TestDeployTrapValidation(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)

	w, envelope := doJSON(t, env.router, http.MethodPost, "/api/v1/honeytraps/", map[string]interface{}{
		"description": "missing required fields",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (body %s)", w.Code, w.Body.String())
	}
	if envelope.Error == nil || envelope.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %+v", envelope.Error)
	}
}

func TestListTrapsByCase(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	deployTrap(t, env, "case-1", honeytrap.TrapHiddenRoute)
	deployTrap(t, env, "case-1", honeytrap.TrapCanaryToken)
	deployTrap(t, env, "case-2", honeytrap.TrapDecoyDocument)

	w, envelope := doJSON(t, env.router, http.MethodGet, "/api/v1/honeytraps/?case_id=case-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if count, _ := dataMap(t, envelope)["count"].(float64); count != 2 {
		t.Errorf("count = %v, want 2", dataMap(t, envelope)["count"])
	}

	w, envelope = doJSON(t, env.router, http.MethodGet, "/api/v1/honeytraps/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unfiltered status = %d, want 200", w.Code)
	}
	if count, _ := dataMap(t, envelope)["count"].(float64); count != 3 {
		t.Errorf("unfiltered count = %v, want 3", dataMap(t, envelope)["count"])
	}
}

func TestTrapLifecycle(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	trap := deployTrap(t, env, "case-1", honeytrap.TrapHiddenRoute)
	id, _ := trap["id"].(string)

	w, envelope := doJSON(t, env.router, http.MethodGet, "/api/v1/honeytraps/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", w.Code)
	}
	if dataMap(t, envelope)["id"] != id {
		t.Errorf("get returned %v, want %s", dataMap(t, envelope)["id"], id)
	}

	w, _ = doJSON(t, env.router, http.MethodPost, "/api/v1/honeytraps/"+id+"/deactivate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	w, envelope = doJSON(t, env.router, http.MethodGet, "/api/v1/honeytraps/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get after deactivate status = %d", w.Code)
	}
	if active, _ := dataMap(t, envelope)["active"].(bool); active {
		t.Error("trap should be inactive after deactivate")
	}

	w, _ = doJSON(t, env.router, http.MethodDelete, "/api/v1/honeytraps/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	w, _ = doJSON(t, env.router, http.MethodGet, "/api/v1/honeytraps/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after remove status = %d, want 404", w.Code)
	}
}

func TestTrapActionNotFound(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)

	w, envelope := doJSON(t, env.router, http.MethodPost, "/api/v1/honeytraps/no-such-trap/deactivate", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %+v", envelope.Error)
	}
}

func TestTrapEffectiveness(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	deployTrap(t, env, "case-1", honeytrap.TrapHiddenRoute)

	w, envelope := doJSON(t, env.router, http.MethodGet, "/api/v1/honeytraps/effectiveness?case_id=case-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	data := dataMap(t, envelope)
	if data["case_id"] != "case-1" {
		t.Errorf("case_id = %v, want case-1", data["case_id"])
	}
	if count, _ := data["trap_count"].(float64); count != 1 {
		t.Errorf("trap_count = %v, want 1", data["trap_count"])
	}
}

func TestTrapEffectivenessRequiresCase(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)

	w, envelope := doJSON(t, env.router, http.MethodGet, "/api/v1/honeytraps/effectiveness", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != "MISSING_PARAMETER" {
		t.Errorf("expected MISSING_PARAMETER, got %+v", envelope.Error)
	}
}
