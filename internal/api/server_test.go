package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/advisor"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-advisor/internal/learning"
	"github.com/nerrad567/gray-logic-advisor/internal/metrics"
	"github.com/nerrad567/gray-logic-advisor/internal/store"
)

// fakeRunner records Start calls and reports a fixed status.
type fakeRunner struct {
	mu       sync.Mutex
	busy     bool
	triggers []string
	status   advisor.Status
}

func (f *fakeRunner) Status() advisor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeRunner) Start(_ context.Context, trigger string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return false
	}
	f.triggers = append(f.triggers, trigger)
	return true
}

type testEnv struct {
	srv      *Server
	runner   *fakeRunner
	actions  *action.Manager
	learning *learning.Store
}

// testServer creates a Server backed by in-memory stores.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemory()
	mgr := action.NewManager(st, nil)
	ls := learning.New(st, nil)
	runner := &fakeRunner{}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   logging.Discard(),
		Runner:   runner,
		Actions:  mgr,
		Learning: ls,
		Metrics:  metrics.New().Handler(),
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Hub().Run(ctx)

	return &testEnv{srv: srv, runner: runner, actions: mgr, learning: ls}
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

func seedActions(t *testing.T, m *action.Manager) []action.Action {
	t.Helper()
	created := m.Ingest(context.Background(), []action.Action{
		{Category: action.CategoryWater, Type: "check_leak", LearningKey: "water:check_leak", Priority: action.PriorityHigh, RequiresApproval: true},
		{Category: action.CategoryEnergy, Type: "protect_battery", LearningKey: "energy:protect_battery", Priority: action.PriorityHigh},
	})
	if len(created) != 2 {
		t.Fatalf("seeded %d actions, want 2", len(created))
	}
	if !m.Transition(context.Background(), created[1].ID, action.StatusApproved, action.Meta{}) {
		t.Fatal("approve seeded action failed")
	}
	return created
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	mgr := action.NewManager(store.NewMemory(), nil)

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Runner: &fakeRunner{}, Actions: mgr}},
		{"no runner", Deps{Logger: logging.Discard(), Actions: mgr}},
		{"no actions", Deps{Logger: logging.Discard(), Runner: &fakeRunner{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ─── Health & Middleware ───────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t)
	w := env.do(t, http.MethodGet, "/api/v1/health")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestRequestID(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/health")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w = httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := testServer(t)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	env := testServer(t)
	if w := env.do(t, http.MethodGet, "/api/v1/nope"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ─── Status & Run ──────────────────────────────────────────────────

func TestStatus_ReportsLastError(t *testing.T) {
	env := testServer(t)
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	env.runner.status = advisor.Status{Runs: 3, LastError: "advisor: pipeline panicked: boom", LastErrorAt: &at}

	w := env.do(t, http.MethodGet, "/api/v1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var got advisor.Status
	decode(t, w, &got)
	if got.Runs != 3 || got.LastError != "advisor: pipeline panicked: boom" {
		t.Errorf("status = %+v", got)
	}
}

func TestRun_AcceptedAndConflict(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/run")
	if w.Code != http.StatusAccepted {
		t.Errorf("first run = %d, want 202", w.Code)
	}
	if len(env.runner.triggers) != 1 || env.runner.triggers[0] != TriggerAPI {
		t.Errorf("triggers = %v", env.runner.triggers)
	}

	env.runner.busy = true
	w = env.do(t, http.MethodPost, "/api/v1/run")
	if w.Code != http.StatusConflict {
		t.Errorf("overlapping run = %d, want 409", w.Code)
	}
	var e Error
	decode(t, w, &e)
	if e.Code != ErrCodeConflict {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeConflict)
	}
}

func TestRun_GetNotAllowed(t *testing.T) {
	env := testServer(t)
	if w := env.do(t, http.MethodGet, "/api/v1/run"); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

// ─── Actions ───────────────────────────────────────────────────────

func TestListActions(t *testing.T) {
	env := testServer(t)

	var empty struct {
		Actions []action.Action `json:"actions"`
		Count   int             `json:"count"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/v1/actions"), &empty)
	if empty.Actions == nil || empty.Count != 0 {
		t.Errorf("empty list = %+v, want [] and 0", empty)
	}

	seedActions(t, env.actions)

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?status=proposed", 1},
		{"?status=approved", 1},
		{"?status=proposed,approved", 2},
		{"?status=executed", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/actions"+tt.query)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var resp struct {
				Count int `json:"count"`
			}
			decode(t, w, &resp)
			if resp.Count != tt.want {
				t.Errorf("count = %d, want %d", resp.Count, tt.want)
			}
		})
	}
}

func TestListActions_UnknownStatus(t *testing.T) {
	env := testServer(t)
	if w := env.do(t, http.MethodGet, "/api/v1/actions?status=pending"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetAction(t *testing.T) {
	env := testServer(t)
	seeded := seedActions(t, env.actions)

	w := env.do(t, http.MethodGet, "/api/v1/actions/"+seeded[0].ID)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got action.Action
	decode(t, w, &got)
	if got.ID != seeded[0].ID || got.Type != "check_leak" {
		t.Errorf("action = %+v", got)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/actions/act-missing"); w.Code != http.StatusNotFound {
		t.Errorf("missing action = %d, want 404", w.Code)
	}
}

func TestActionHistory_NewestFirst(t *testing.T) {
	env := testServer(t)
	seeded := seedActions(t, env.actions)

	w := env.do(t, http.MethodGet, "/api/v1/actions/history")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		History []action.HistoryEntry `json:"history"`
		Count   int                   `json:"count"`
	}
	decode(t, w, &resp)
	if resp.Count == 0 {
		t.Fatal("expected history entries")
	}
	if resp.History[0].ID != seeded[1].ID || resp.History[0].Status != action.StatusApproved {
		t.Errorf("newest entry = %s/%s, want %s/approved", resp.History[0].ID, resp.History[0].Status, seeded[1].ID)
	}
}

// ─── Learning & Metrics ────────────────────────────────────────────

func TestLearning(t *testing.T) {
	env := testServer(t)
	seeded := seedActions(t, env.actions)
	env.learning.RecordDecision(context.Background(), seeded[0], action.DecisionApproved, map[string]float64{"water_flow": 3})

	w := env.do(t, http.MethodGet, "/api/v1/learning")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Stats    map[string]learning.KeyStats `json:"stats"`
		Feedback int                          `json:"feedback"`
	}
	decode(t, w, &resp)
	if resp.Stats["water:check_leak"].Approved != 1 || resp.Feedback != 1 {
		t.Errorf("learning = %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := testServer(t)
	w := env.do(t, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "advisor_runs_skipped_total") {
		t.Error("expected advisor metrics in exposition")
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func TestWebSocket_ReceivesActionChanges(t *testing.T) {
	env := testServer(t)
	env.actions.AddObserver(env.srv.Hub())

	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?subscribe=" + ChannelActionChanged
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.Hub().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	seeded := env.actions.Ingest(context.Background(), []action.Action{
		{Category: action.CategoryWater, Type: "check_leak", RequiresApproval: true},
	})

	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg struct {
		Type      string       `json:"type"`
		EventType string       `json:"event_type"`
		Payload   action.Event `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != ChannelActionChanged {
		t.Errorf("message = %s/%s", msg.Type, msg.EventType)
	}
	if msg.Payload.Kind != action.EventCreated || msg.Payload.Action.ID != seeded[0].ID {
		t.Errorf("payload = %+v", msg.Payload)
	}
}

func TestWebSocket_PingPong(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Type != WSTypePong || resp.ID != "p1" {
		t.Errorf("response = %+v", resp)
	}
}
