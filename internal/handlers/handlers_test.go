package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/divingclub/clubattrs/internal/infrastructure/metrics"
	"github.com/divingclub/clubattrs/internal/services/attributes"
	"github.com/divingclub/clubattrs/internal/services/eligibility"
	"github.com/prometheus/client_golang/prometheus"
)

type testServer struct {
	handler    http.Handler
	health     *mockHealthChecker
	conditions *mockConditionRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	expressions, err := attributes.NewExpressionEngine()
	if err != nil {
		t.Fatalf("NewExpressionEngine() error = %v", err)
	}
	validator := attributes.NewValidator(expressions)
	registry := attributes.NewRegistry(&mockDefinitionRepository{}, attributes.WithValidator(validator))

	collector := metrics.NewCollector()
	reg := prometheus.NewRegistry()
	exporter := metrics.NewPrometheusExporterWithRegistry(collector, reg, reg)

	store := attributes.NewStore(newMockValueRepository(), validator, exporter, nil)
	conditions := newMockConditionRepository()
	engine := eligibility.NewEngine(eligibility.DefaultResolvers(nil), store, eligibility.DefaultPolicy(), exporter, nil)
	gate := eligibility.NewGate(engine, conditions, eligibility.WithDecisionRecorder(exporter))
	health := &mockHealthChecker{}

	return &testServer{
		handler: NewRouter(Dependencies{
			Registry:   registry,
			Store:      store,
			Conditions: conditions,
			Gate:       gate,
			Health:     health,
			Collector:  collector,
			Exporter:   exporter,
		}),
		health:     health,
		conditions: conditions,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

const levelDefinitionJSON = `{
	"entityKind": "User",
	"attributeKey": "niveau_plongee",
	"displayName": "Niveau de plongée",
	"valueType": "select",
	"options": ["debutant", "niveau1", "niveau2", "niveau3"]
}`

func TestDefinitions(t *testing.T) {
	s := newTestServer(t)

	t.Run("define", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/definitions", levelDefinitionJSON)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var got definitionResponse
		decodeBody(t, rec, &got)
		if got.ID == 0 || !got.Active || got.ValueType != "select" {
			t.Errorf("response = %+v", got)
		}
	})

	t.Run("duplicate is a conflict", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/definitions", levelDefinitionJSON)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
		}
	})

	t.Run("invalid metadata is a conflict", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/definitions", `{"entityKind":"User","attributeKey":"x","displayName":"X","valueType":"colour"}`)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
		}
	})

	t.Run("unknown JSON field", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/definitions", `{"nope": true}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("list", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/definitions/User", "")
		var got []definitionResponse
		decodeBody(t, rec, &got)
		if len(got) != 1 || got[0].AttributeKey != "niveau_plongee" {
			t.Errorf("list = %+v", got)
		}
	})

	t.Run("update keeps the value type", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/api/definitions/User/niveau_plongee",
			`{"displayName":"Niveau","options":["debutant","niveau1","niveau2","niveau3","niveau4"]}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var got definitionResponse
		decodeBody(t, rec, &got)
		if got.DisplayName != "Niveau" || len(got.Options) != 5 {
			t.Errorf("response = %+v", got)
		}
	})

	t.Run("changing the value type is a conflict", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/api/definitions/User/niveau_plongee", `{"displayName":"Niveau","valueType":"number"}`)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
		}
	})

	t.Run("update missing", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/api/definitions/User/missing", `{"displayName":"Missing"}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("deactivate hides the definition", func(t *testing.T) {
		rec := s.do(t, http.MethodDelete, "/api/definitions/User/niveau_plongee", "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}

		var active, all []definitionResponse
		decodeBody(t, s.do(t, http.MethodGet, "/api/definitions/User", ""), &active)
		decodeBody(t, s.do(t, http.MethodGet, "/api/definitions/User?includeInactive=true", ""), &all)
		if len(active) != 0 || len(all) != 1 {
			t.Errorf("active = %d, all = %d, want 0 and 1", len(active), len(all))
		}
	})

	t.Run("activate restores the definition", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/definitions/User/niveau_plongee/activate", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var got definitionResponse
		decodeBody(t, rec, &got)
		if !got.Active {
			t.Errorf("response = %+v, want active", got)
		}
	})

	t.Run("activate missing", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/definitions/User/nope/activate", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}

func TestValues(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/definitions", levelDefinitionJSON)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"valid option", "/api/values/User/42/niveau_plongee", `{"value":"niveau2"}`, http.StatusOK},
		{"invalid option", "/api/values/User/42/niveau_plongee", `{"value":"niveau9"}`, http.StatusUnprocessableEntity},
		{"undeclared number", "/api/values/User/42/profondeur_max", `{"value":40}`, http.StatusOK},
		{"undeclared bool", "/api/values/User/42/nitrox", `{"value":true}`, http.StatusOK},
		{"bad owner id", "/api/values/User/abc/nitrox", `{"value":true}`, http.StatusBadRequest},
		{"bad JSON", "/api/values/User/42/nitrox", `{"value":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPut, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}

	t.Run("validation failures list the rule", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/api/values/User/42/niveau_plongee", `{"value":"niveau9"}`)
		var got errorResponse
		decodeBody(t, rec, &got)
		if len(got.Fields) != 1 || got.Fields[0].Rule != "options" {
			t.Errorf("fields = %+v", got.Fields)
		}
	})

	t.Run("list decoded values", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/values/User/42", "")
		var got map[string]any
		decodeBody(t, rec, &got)
		if got["niveau_plongee"] != "niveau2" || got["profondeur_max"] != float64(40) || got["nitrox"] != true {
			t.Errorf("values = %v", got)
		}
	})

	t.Run("delete one", func(t *testing.T) {
		if rec := s.do(t, http.MethodDelete, "/api/values/User/42/nitrox", ""); rec.Code != http.StatusNoContent {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("delete all", func(t *testing.T) {
		rec := s.do(t, http.MethodDelete, "/api/values/User/42", "")
		var got map[string]int64
		decodeBody(t, rec, &got)
		if got["deleted"] != 2 {
			t.Errorf("deleted = %d, want 2", got["deleted"])
		}
	})
}

func TestConditions(t *testing.T) {
	s := newTestServer(t)

	t.Run("create", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/actions/7/conditions",
			`{"targetEntityKind":"User","attributeName":"niveau_plongee","operator":"in","operand":"niveau2,niveau3"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var got conditionResponse
		decodeBody(t, rec, &got)
		if got.ID == 0 || got.OwnerActionID != 7 || !got.Active {
			t.Errorf("response = %+v", got)
		}
	})

	t.Run("unknown operator is storable", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/actions/7/conditions",
			`{"targetEntityKind":"User","attributeName":"email","operator":"startsWith","operand":"a","active":false}`)
		if rec.Code != http.StatusCreated {
			t.Errorf("status = %d, body = %s", rec.Code, rec.Body)
		}
	})

	t.Run("missing operand", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/actions/7/conditions",
			`{"targetEntityKind":"User","attributeName":"niveau_plongee","operator":"eq"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("list active only by default", func(t *testing.T) {
		var active, all []conditionResponse
		decodeBody(t, s.do(t, http.MethodGet, "/api/actions/7/conditions", ""), &active)
		decodeBody(t, s.do(t, http.MethodGet, "/api/actions/7/conditions?includeInactive=true", ""), &all)
		if len(active) != 1 || len(all) != 2 {
			t.Errorf("active = %d, all = %d, want 1 and 2", len(active), len(all))
		}
	})

	t.Run("delete missing", func(t *testing.T) {
		if rec := s.do(t, http.MethodDelete, "/api/conditions/99", ""); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}

func TestConditions_TextFormat(t *testing.T) {
	s := newTestServer(t)

	t.Run("create from expression", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/actions/3/conditions",
			`{"expression":"User.age >= 18","errorMessage":"Adults only"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var got conditionResponse
		decodeBody(t, rec, &got)
		if got.Operator != "gte" || got.Operand == nil || *got.Operand != "18" || got.OwnerActionID != 3 {
			t.Errorf("response = %+v", got)
		}
		if got.ErrorMessage == nil || *got.ErrorMessage != "Adults only" {
			t.Errorf("errorMessage = %v", got.ErrorMessage)
		}
	})

	t.Run("bad expression", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/actions/3/conditions", `{"expression":"User.age >="}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("import", func(t *testing.T) {
		body := "// trip requirements\nUser.certificat_medical exists\nUser.niveau_plongee in \"niveau2,niveau3\" : \"Level 2 required\"\n"
		rec := s.do(t, http.MethodPost, "/api/actions/3/conditions/import", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var got []conditionResponse
		decodeBody(t, rec, &got)
		if len(got) != 2 {
			t.Fatalf("imported %d conditions, want 2", len(got))
		}
	})

	t.Run("import is all or nothing", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/actions/4/conditions/import", "User.a exists\nUser.b gte\n")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
		var listed []conditionResponse
		decodeBody(t, s.do(t, http.MethodGet, "/api/actions/4/conditions?includeInactive=true", ""), &listed)
		if len(listed) != 0 {
			t.Errorf("stored %d conditions after a failed import", len(listed))
		}
	})

	t.Run("storage failure stores nothing", func(t *testing.T) {
		s.conditions.batchErr = errors.New("connection reset")
		defer func() { s.conditions.batchErr = nil }()

		rec := s.do(t, http.MethodPost, "/api/actions/5/conditions/import", "User.a exists\nUser.b exists\n")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
		}
		var listed []conditionResponse
		decodeBody(t, s.do(t, http.MethodGet, "/api/actions/5/conditions?includeInactive=true", ""), &listed)
		if len(listed) != 0 {
			t.Errorf("stored %d conditions after a failed import", len(listed))
		}
	})

	t.Run("accented keys", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/actions/6/conditions/import", "User.niveau_plongée eq \"débutant\"\n")
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		text := s.do(t, http.MethodGet, "/api/actions/6/conditions?format=text", "").Body.String()
		if want := "User.niveau_plongée eq \"débutant\"\n"; text != want {
			t.Errorf("export = %q, want %q", text, want)
		}
	})

	t.Run("export as text", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/actions/3/conditions?format=text", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
			t.Errorf("Content-Type = %q", ct)
		}
		text := rec.Body.String()
		for _, want := range []string{
			`User.age gte "18" : "Adults only"`,
			`User.certificat_medical exists`,
			`User.niveau_plongee in "niveau2,niveau3" : "Level 2 required"`,
		} {
			if !strings.Contains(text, want) {
				t.Errorf("export missing %q:\n%s", want, text)
			}
		}
	})
}

func TestEligibility_DivingLevel(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/definitions", levelDefinitionJSON)
	s.do(t, http.MethodPost, "/api/actions/7/conditions",
		`{"targetEntityKind":"User","attributeName":"niveau_plongee","operator":"in","operand":"niveau2,niveau3","errorMessage":"Niveau 2 minimum requis"}`)

	check := func(t *testing.T) eligibility.Decision {
		t.Helper()
		rec := s.do(t, http.MethodPost, "/api/actions/7/eligibility", `{"kind":"User","id":42}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var d eligibility.Decision
		decodeBody(t, rec, &d)
		return d
	}

	s.do(t, http.MethodPut, "/api/values/User/42/niveau_plongee", `{"value":"niveau2"}`)
	if d := check(t); !d.Allowed {
		t.Errorf("niveau2 should be allowed, failures = %v", d.Failures)
	}

	s.do(t, http.MethodPut, "/api/values/User/42/niveau_plongee", `{"value":"debutant"}`)
	d := check(t)
	if d.Allowed {
		t.Fatal("debutant should be denied")
	}
	if len(d.Failures) != 1 || d.Failures[0].Message != "Niveau 2 minimum requis" {
		t.Errorf("failures = %+v", d.Failures)
	}

	t.Run("missing kind", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/actions/7/eligibility", `{"id":42}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("decisions are exported", func(t *testing.T) {
		body := s.do(t, http.MethodGet, "/metrics", "").Body.String()
		for _, want := range []string{
			`clubattrs_gate_decisions_total{allowed="false"} 1`,
			`clubattrs_gate_decisions_total{allowed="true"} 1`,
			`clubattrs_condition_evaluations_total{operator="in",result="true"} 1`,
		} {
			if !strings.Contains(body, want) {
				t.Errorf("metrics missing %q", want)
			}
		}
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	t.Run("healthy", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/healthz", "")
		var got healthResponse
		decodeBody(t, rec, &got)
		if rec.Code != http.StatusOK || got.Status != "ok" {
			t.Errorf("status = %d, body = %+v", rec.Code, got)
		}
	})

	t.Run("database down", func(t *testing.T) {
		s.health.err = errors.New("connection refused")
		rec := s.do(t, http.MethodGet, "/healthz", "")
		var got healthResponse
		decodeBody(t, rec, &got)
		if rec.Code != http.StatusServiceUnavailable || got.Status != "degraded" {
			t.Errorf("status = %d, body = %+v", rec.Code, got)
		}
	})
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)

	t.Run("generated", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/healthz", "")
		if rec.Header().Get(RequestIDHeader) == "" {
			t.Error("missing request id header")
		}
	})

	t.Run("propagated", func(t *testing.T) {
		const id = "0b9a4a5c-6a64-4c1e-9a52-3f6f0f4b8e11"
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(RequestIDHeader, id)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		if got := rec.Header().Get(RequestIDHeader); got != id {
			t.Errorf("request id = %q, want %q", got, id)
		}
	})

	t.Run("invalid replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(RequestIDHeader, "not a uuid")
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		if got := rec.Header().Get(RequestIDHeader); got == "not a uuid" || got == "" {
			t.Errorf("request id = %q", got)
		}
	})
}
