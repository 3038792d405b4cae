package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildtall-systems/storebridge/internal/commands"
	"github.com/buildtall-systems/storebridge/internal/config"
	"github.com/buildtall-systems/storebridge/internal/db"
	"github.com/buildtall-systems/storebridge/internal/delivery"
	"github.com/buildtall-systems/storebridge/internal/host"
	"github.com/buildtall-systems/storebridge/internal/materials"
	"github.com/buildtall-systems/storebridge/internal/queue"
)

const testSecret = "test-secret"

type staticPolicy struct {
	mu sync.Mutex
	p  config.Policy
}

func (s *staticPolicy) Current() config.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p
}

func (s *staticPolicy) set(p config.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *recordingSink) Send(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

type testEnv struct {
	srv    *Server
	host   *host.Runtime
	queue  *queue.Store
	ledger *db.DB
	policy *staticPolicy
	stop   context.CancelFunc
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger, err := db.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, ledger.Migrate())
	t.Cleanup(func() { _ = ledger.Close() })

	catalog := materials.Default()
	store := queue.NewStore(queue.NewFileBackend(filepath.Join(t.TempDir(), "pending.yml")), catalog, logger)
	require.NoError(t, store.Load())

	rt := host.NewRuntime("test-server", ledger, catalog, logger)
	joins := delivery.NewJoinDeliverer(store, rt, rt, rt, rt, 0, logger)
	rt.OnJoin(joins.OnJoin)

	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		_ = rt.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-exited
	})

	policy := &staticPolicy{p: config.Policy{
		Secret:            testSecret,
		Whitelist:         commands.NewWhitelist(nil),
		QueueOfflineItems: true,
	}}

	srv, err := New(Options{
		Version:      "1.2.3",
		Host:         rt,
		Orchestrator: delivery.NewOrchestrator(rt, rt, rt, store, catalog, logger),
		Queue:        store,
		Ledger:       ledger,
		Policy:       policy,
		Logger:       logger,
	})
	require.NoError(t, err)

	return &testEnv{srv: srv, host: rt, queue: store, ledger: ledger, policy: policy, stop: cancel}
}

func (e *testEnv) join(t *testing.T, name string) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	var joinErr error
	require.NoError(t, e.host.Do(context.Background(), func(ctx context.Context) {
		joinErr = e.host.Join(ctx, name, sink)
	}))
	require.NoError(t, joinErr)
	return sink
}

func (e *testEnv) deliver(t *testing.T, body string, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/deliver", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

func ledgerTotal(t *testing.T, e *testEnv) int {
	t.Helper()
	total, _, err := e.ledger.CountDeliveries(context.Background())
	require.NoError(t, err)
	return total
}

const bearer = "Bearer " + testSecret

func TestDeliver_Preflight(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/deliver", nil)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestDeliver_RejectsBeforeProcessing(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		body     string
		auth     string
		wantCode int
		wantErr  string
	}{
		{"wrong method", http.MethodGet, "", bearer, http.StatusMethodNotAllowed, "Method not allowed"},
		{"missing auth", http.MethodPost, `{}`, "", http.StatusForbidden, "Unauthorized"},
		{"wrong secret", http.MethodPost, `{}`, "Bearer nope", http.StatusForbidden, "Unauthorized"},
		{"not bearer", http.MethodPost, `{}`, testSecret, http.StatusForbidden, "Unauthorized"},
		{"malformed json", http.MethodPost, `{"orderId": 1001,`, bearer, http.StatusBadRequest, "Invalid JSON format"},
		{"trailing data", http.MethodPost, `{} {}`, bearer, http.StatusBadRequest, "Invalid JSON format"},
		{"not an object", http.MethodPost, `["give Steve diamond"]`, bearer, http.StatusBadRequest, "Invalid JSON format"},
		{"commands wrong type", http.MethodPost, `{"orderId":1,"minecraftUsername":"Steve","commands":"say hi"}`, bearer, http.StatusBadRequest, "Invalid JSON format"},
		{"fractional order id", http.MethodPost, `{"orderId":1.5,"minecraftUsername":"Steve","commands":["say hi"]}`, bearer, http.StatusBadRequest, "Invalid JSON format"},
		{"missing order id", http.MethodPost, `{"minecraftUsername":"Steve","commands":["say hi"]}`, bearer, http.StatusBadRequest, "Missing required fields: orderId, minecraftUsername, commands"},
		{"null recipient", http.MethodPost, `{"orderId":1,"minecraftUsername":null,"commands":["say hi"]}`, bearer, http.StatusBadRequest, "Missing required fields: orderId, minecraftUsername, commands"},
		{"empty commands", http.MethodPost, `{"orderId":1,"minecraftUsername":"Steve","commands":[]}`, bearer, http.StatusBadRequest, "Missing required fields: orderId, minecraftUsername, commands"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)

			req := httptest.NewRequest(tt.method, "/deliver", strings.NewReader(tt.body))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			e.srv.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantErr, body["error"])
			assert.NotContains(t, body, "executedCommands", "no delivery result for rejected requests")
			assert.Equal(t, 0, ledgerTotal(t, e))
		})
	}
}

func TestDeliver_OnlineRecipient(t *testing.T) {
	e := newTestEnv(t)
	e.join(t, "Steve")

	w := e.deliver(t, `{"orderId":1001,"minecraftUsername":"Steve","commands":["give {player} diamond 3","say Thanks {player}!"]}`, bearer)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res delivery.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "1001", res.OrderID.String())
	assert.True(t, res.OrderID.IsNumeric())
	assert.Equal(t, []string{"give Steve diamond 3 (delivered directly)", "say Thanks Steve!"}, res.ExecutedCommands)
	assert.Empty(t, res.FailedCommands)
	assert.Empty(t, res.QueuedCommands)
	assert.Equal(t, 0, e.queue.TotalItems())

	items, err := e.host.Inventory(context.Background(), "Steve")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Amount)

	deliveries, err := e.ledger.DeliveriesForOrder(context.Background(), "1001")
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.True(t, deliveries[0].Success)
	assert.Len(t, deliveries[0].Executed, 2)
}

func TestDeliver_OfflineRecipientQueued(t *testing.T) {
	e := newTestEnv(t)

	w := e.deliver(t, `{"orderId":1001,"minecraftUsername":"Steve","commands":["give {player} diamond 3"]}`, bearer)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []any{"give Steve diamond 3 (queued for offline recipient)"}, body["queuedCommands"])

	items := e.queue.Items("steve")
	require.Len(t, items, 1)
	assert.Equal(t, "diamond", items[0].Material.ID())
	assert.Equal(t, 3, items[0].Amount)
	assert.Equal(t, "order 1001", items[0].Note)
}

func TestDeliver_PartialFailure(t *testing.T) {
	e := newTestEnv(t)
	e.join(t, "Steve")

	w := e.deliver(t, `{"orderId":"WEB-9","minecraftUsername":"Steve","commands":["give {player} unobtainium 1","say hi"]}`, bearer)

	require.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "WEB-9", body["orderId"])
	assert.NotEmpty(t, body["error"])
	assert.Equal(t, []any{"give Steve unobtainium 1 (unknown material: unobtainium)"}, body["failedCommands"])
	assert.Equal(t, []any{"say hi"}, body["executedCommands"])

	total, failed, err := e.ledger.CountDeliveries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, failed)
}

func TestDeliver_UsesCurrentPolicy(t *testing.T) {
	e := newTestEnv(t)
	e.join(t, "Steve")

	e.policy.set(config.Policy{
		Secret:            "rotated",
		Whitelist:         commands.NewWhitelist([]string{"give"}),
		QueueOfflineItems: true,
	})

	w := e.deliver(t, `{"orderId":1,"minecraftUsername":"Steve","commands":["say hi"]}`, bearer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.deliver(t, `{"orderId":1,"minecraftUsername":"Steve","commands":["say hi"]}`, "Bearer rotated")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, []any{"say hi (not in whitelist)"}, decodeBody(t, w)["failedCommands"])
}

func TestDeliver_HostStopped(t *testing.T) {
	e := newTestEnv(t)
	e.stop()

	require.Eventually(t, func() bool {
		_, err := e.host.Submit(context.Background(), func(context.Context) {})
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	w := e.deliver(t, `{"orderId":1,"minecraftUsername":"Steve","commands":["say hi"]}`, bearer)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 0, ledgerTotal(t, e))
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	e.join(t, "Alex")
	require.NoError(t, e.queue.Add("steve", queue.Item{Material: mustMaterial(t, "diamond"), Amount: 3}))
	require.NoError(t, e.queue.Add("steve", queue.Item{Material: mustMaterial(t, "emerald"), Amount: 1}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{
		"status": "healthy",
		"server": "test-server",
		"onlinePlayers": 1,
		"version": "1.2.3",
		"pendingQueueSize": 2,
		"queuedPlayers": 1
	}`, w.Body.String())
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	e := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestAuthorized(t *testing.T) {
	assert.True(t, authorized("Bearer s", "s"))
	assert.False(t, authorized("Bearer s ", "s"))
	assert.False(t, authorized("bearer s", "s"))
	assert.False(t, authorized("", "s"))
}

func TestRemoteHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/deliver", nil)
	req.RemoteAddr = "203.0.113.7:51000"
	assert.Equal(t, "203.0.113.7", remoteHost(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.2, 10.0.0.1")
	assert.Equal(t, "198.51.100.2", remoteHost(req))
}

func mustMaterial(t *testing.T, name string) materials.Material {
	t.Helper()
	m, ok := materials.Default().Match(name)
	require.True(t, ok)
	return m
}
