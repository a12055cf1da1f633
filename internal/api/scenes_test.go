package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/scenewatch/scenewatch/internal/auth"
	"github.com/scenewatch/scenewatch/internal/infrastructure/config"
	"github.com/scenewatch/scenewatch/internal/infrastructure/database"
	"github.com/scenewatch/scenewatch/internal/infrastructure/logging"
	"github.com/scenewatch/scenewatch/internal/scene"
	"github.com/scenewatch/scenewatch/internal/store"
)

const testJWTSecret = "test-secret-at-least-32-characters-long"

// ─── Mock Dependencies ───

type mockEngine struct {
	mu          sync.Mutex
	statuses    []scene.SceneStatus
	activated   []string
	deactivated []string
	failWith    error
}

func (e *mockEngine) Statuses() ([]scene.SceneStatus, error) {
	if e.failWith != nil {
		return nil, e.failWith
	}
	return e.statuses, nil
}

func (e *mockEngine) Status(sceneID string) (scene.SceneStatus, error) {
	if e.failWith != nil {
		return scene.SceneStatus{}, e.failWith
	}
	for _, st := range e.statuses {
		if st.ID == sceneID {
			return st, nil
		}
	}
	return scene.SceneStatus{}, scene.ErrSceneNotFound
}

func (e *mockEngine) Activate(sceneID string) error {
	if e.failWith != nil {
		return e.failWith
	}
	if _, err := e.Status(sceneID); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activated = append(e.activated, sceneID)
	return nil
}

func (e *mockEngine) Deactivate(sceneID string) error {
	if e.failWith != nil {
		return e.failWith
	}
	if _, err := e.Status(sceneID); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deactivated = append(e.deactivated, sceneID)
	return nil
}

type mockStore struct {
	store.Repository
	transitions []store.Transition
	lastLimit   int
}

func (m *mockStore) RecentTransitions(_ context.Context, sceneID string, limit int) ([]store.Transition, error) {
	m.lastLimit = limit
	var out []store.Transition
	for _, t := range m.transitions {
		if t.SceneID == sceneID {
			out = append(out, t)
		}
	}
	return out, nil
}

type mockReloader struct {
	count int
	err   error
	calls int
}

func (m *mockReloader) Reload(context.Context) (int, error) {
	m.calls++
	return m.count, m.err
}

type mockSchema struct {
	status database.Status
	err    error
}

func (m *mockSchema) MigrationStatus(context.Context) (database.Status, error) {
	return m.status, m.err
}

// ─── Test Setup ───

func testStatuses() []scene.SceneStatus {
	return []scene.SceneStatus{
		{ID: "evening", Name: "Evening", Slug: "evening", Active: true, Phase: "confirmed"},
		{ID: "night", Name: "Night", Slug: "night", Active: false, Phase: "idle_off"},
	}
}

func testServer(t *testing.T, engine *mockEngine, st store.Repository, reloader Reloader) *Server {
	t.Helper()
	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 8080},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
		},
		Logger:   logging.Default(),
		Engine:   engine,
		Store:    st,
		Reloader: reloader,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func bearerToken(t *testing.T, role auth.Role) string {
	t.Helper()
	token, err := auth.GenerateToken("test-client", role, testJWTSecret, 15)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return "Bearer " + token
}

// doRequest performs a request against the router and returns the recorder.
func doRequest(t *testing.T, srv *Server, method, path, authz string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	return body
}

// ─── Handler Tests ───

func TestHealthNoAuth(t *testing.T) {
	srv := testServer(t, &mockEngine{}, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthReportsMigrations(t *testing.T) {
	srv := testServer(t, &mockEngine{}, nil, nil)
	srv.schema = &mockSchema{status: database.Status{Applied: 1, Version: "20260815_090000"}}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	migrations, ok := body["migrations"].(map[string]any)
	if !ok {
		t.Fatalf("migrations missing from body: %v", body)
	}
	if migrations["applied"] != float64(1) || migrations["version"] != "20260815_090000" {
		t.Errorf("migrations = %v", migrations)
	}
}

func TestHealthDegradedOnPendingMigrations(t *testing.T) {
	srv := testServer(t, &mockEngine{}, nil, nil)
	srv.schema = &mockSchema{status: database.Status{Applied: 1, Pending: 2, Version: "20260815_090000"}}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "")
	body := decodeBody(t, rec)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded with pending migrations", body["status"])
	}
}

func TestHealthDegradedOnSchemaError(t *testing.T) {
	srv := testServer(t, &mockEngine{}, nil, nil)
	srv.schema = &mockSchema{err: fmt.Errorf("database locked")}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded when schema state unavailable", body["status"])
	}
	if _, present := body["migrations"]; present {
		t.Errorf("migrations should be omitted on error, body = %v", body)
	}
}

func TestListScenes(t *testing.T) {
	srv := testServer(t, &mockEngine{statuses: testStatuses()}, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/scenes", bearerToken(t, auth.RoleViewer))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
}

func TestListScenesRequiresAuth(t *testing.T) {
	srv := testServer(t, &mockEngine{statuses: testStatuses()}, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/scenes", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/scenes", "Bearer not-a-token")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for bad token", rec.Code)
	}
}

func TestGetScene(t *testing.T) {
	srv := testServer(t, &mockEngine{statuses: testStatuses()}, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/scenes/evening", bearerToken(t, auth.RoleViewer))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["id"] != "evening" || body["active"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestGetSceneNotFound(t *testing.T) {
	srv := testServer(t, &mockEngine{statuses: testStatuses()}, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/scenes/ghost", bearerToken(t, auth.RoleViewer))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestActivateScene(t *testing.T) {
	engine := &mockEngine{statuses: testStatuses()}
	srv := testServer(t, engine, nil, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/scenes/evening/activate", bearerToken(t, auth.RoleOperator))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.activated) != 1 || engine.activated[0] != "evening" {
		t.Errorf("activated = %v", engine.activated)
	}
}

func TestActivateRequiresOperator(t *testing.T) {
	engine := &mockEngine{statuses: testStatuses()}
	srv := testServer(t, engine, nil, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/scenes/evening/activate", bearerToken(t, auth.RoleViewer))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.activated) != 0 {
		t.Error("viewer token activated a scene")
	}
}

func TestDeactivateScene(t *testing.T) {
	engine := &mockEngine{statuses: testStatuses()}
	srv := testServer(t, engine, nil, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/scenes/night/deactivate", bearerToken(t, auth.RoleOperator))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.deactivated) != 1 || engine.deactivated[0] != "night" {
		t.Errorf("deactivated = %v", engine.deactivated)
	}
}

func TestActivateUnresolvedConflict(t *testing.T) {
	engine := &mockEngine{failWith: fmt.Errorf("wrapped: %w", scene.ErrUnresolvedEntity)}
	srv := testServer(t, engine, nil, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/scenes/evening/activate", bearerToken(t, auth.RoleOperator))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestEngineClosedUnavailable(t *testing.T) {
	engine := &mockEngine{failWith: scene.ErrEngineClosed}
	srv := testServer(t, engine, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/scenes", bearerToken(t, auth.RoleViewer))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestListTransitions(t *testing.T) {
	st := &mockStore{transitions: []store.Transition{
		{ID: 2, SceneID: "evening", Active: false, OccurredAt: time.Now()},
		{ID: 1, SceneID: "evening", Active: true, OccurredAt: time.Now().Add(-time.Minute)},
	}}
	srv := testServer(t, &mockEngine{statuses: testStatuses()}, st, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/scenes/evening/transitions?limit=10", bearerToken(t, auth.RoleViewer))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
	if st.lastLimit != 10 {
		t.Errorf("limit = %d, want 10", st.lastLimit)
	}
}

func TestListTransitionsBadLimit(t *testing.T) {
	st := &mockStore{}
	srv := testServer(t, &mockEngine{statuses: testStatuses()}, st, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/scenes/evening/transitions?limit=nope", bearerToken(t, auth.RoleViewer))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListTransitionsWithoutStore(t *testing.T) {
	srv := testServer(t, &mockEngine{statuses: testStatuses()}, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/scenes/evening/transitions", bearerToken(t, auth.RoleViewer))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestReload(t *testing.T) {
	reloader := &mockReloader{count: 3}
	srv := testServer(t, &mockEngine{statuses: testStatuses()}, nil, reloader)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/reload", bearerToken(t, auth.RoleOperator))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if reloader.calls != 1 {
		t.Errorf("reload calls = %d, want 1", reloader.calls)
	}
	body := decodeBody(t, rec)
	if body["scenes"] != float64(3) {
		t.Errorf("scenes = %v, want 3", body["scenes"])
	}
}

func TestReloadFailure(t *testing.T) {
	reloader := &mockReloader{err: fmt.Errorf("scene file unparseable")}
	srv := testServer(t, &mockEngine{statuses: testStatuses()}, nil, reloader)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/reload", bearerToken(t, auth.RoleOperator))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestReloadRequiresOperator(t *testing.T) {
	reloader := &mockReloader{count: 3}
	srv := testServer(t, &mockEngine{statuses: testStatuses()}, nil, reloader)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/reload", bearerToken(t, auth.RoleViewer))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if reloader.calls != 0 {
		t.Error("viewer token triggered a reload")
	}
}
