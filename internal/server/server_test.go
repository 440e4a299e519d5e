package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"supplyfuse/internal/config"
	"supplyfuse/internal/db"
	"supplyfuse/internal/domain"
	"supplyfuse/internal/engine"
	"supplyfuse/internal/llm"
	"supplyfuse/internal/migrate"
	"supplyfuse/internal/specialist"
)

const testSecret = "test-secret"

type seenCall struct {
	agent   domain.AgentType
	token   string
	session string
}

type callLog struct {
	mu    sync.Mutex
	calls []seenCall
}

func (l *callLog) invoker() specialist.Invoker {
	replies := map[domain.AgentType]string{
		domain.AgentInventory: "- PROD-003 shortage (30 units)",
		domain.AgentLogistics: `{"status":"clear","summary":"All routes have capacity"}`,
	}
	return specialist.InvokerFunc(func(_ context.Context, agent domain.AgentType, _, sessionID, token string) (string, error) {
		l.mu.Lock()
		l.calls = append(l.calls, seenCall{agent: agent, token: token, session: sessionID})
		l.mu.Unlock()
		return replies[agent], nil
	})
}

func newTestEngine(t *testing.T, withLedger bool, calls *callLog) engine.Engine {
	t.Helper()
	cfg := config.Default()
	var e engine.Engine
	if withLedger {
		conn, err := db.Open(db.Config{Workspace: t.TempDir()})
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		if err := migrate.Migrate(conn); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		e = engine.New(conn, cfg)
	} else {
		e = engine.New(nil, cfg)
	}
	e.Now = func() time.Time { return time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC) }
	e.Invoker = calls.invoker()
	e.LLM = llm.Func(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "orchestrator") {
			return `{"plan":["inventory","logistics"],"queryType":"fulfillment"}`, nil
		}
		return "", llm.ErrDisabled
	})
	return e
}

func newTestServer(t *testing.T, e engine.Engine, auth AuthConfig) *httptest.Server {
	t.Helper()
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func bearer(t *testing.T, subject string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, subject, nil, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, body)
	}
	return env.Error.Code
}

type decisionBody struct {
	SessionID string `json:"sessionId"`
	QueryType string `json:"queryType"`
	Actions   []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"actions"`
	Approvals []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"approvals"`
}

func TestQueryAndLedgerLifecycle(t *testing.T) {
	calls := &callLog{}
	srv := newTestServer(t, newTestEngine(t, true, calls), AuthConfig{JWTSecret: testSecret})
	client := srv.Client()
	auth := bearer(t, "alice")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/query", map[string]any{
		"query":     "Can we fulfill all orders today?",
		"sessionId": "s-1",
	}, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("query status %d: %s", res.StatusCode, data)
	}
	var out decisionBody
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if out.SessionID != "s-1" || out.QueryType != "fulfillment" {
		t.Fatalf("unexpected decision: %+v", out)
	}
	if len(calls.calls) != 2 {
		t.Fatalf("expected two specialist calls, got %+v", calls.calls)
	}
	for _, c := range calls.calls {
		if c.token != strings.TrimPrefix(auth["Authorization"], "Bearer ") || c.session != "s-1" {
			t.Fatalf("token or session not forwarded: %+v", c)
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sessions/s-1/actions", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list actions %d: %s", res.StatusCode, data)
	}
	var listed struct {
		Items []domain.ActionRecord `json:"items"`
	}
	_ = json.Unmarshal(data, &listed)
	if len(listed.Items) != len(out.Actions) {
		t.Fatalf("expected %d recorded actions, got %d", len(out.Actions), len(listed.Items))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sessions/s-1/actions/draft_emergency_po", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get action %d: %s", res.StatusCode, data)
	}
	var one domain.ActionRecord
	_ = json.Unmarshal(data, &one)
	if one.ActionID != "draft_emergency_po" || one.Status != domain.ActionReady {
		t.Fatalf("unexpected action: %+v", one)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sessions/s-1/actions/nope", nil, auth)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %d %s", res.StatusCode, data)
	}

	completeURL := srv.URL + "/v0/sessions/s-1/actions/draft_emergency_po/complete"
	res, data = doJSON(t, client, http.MethodPost, completeURL, map[string]any{"comment": "PO sent"}, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete %d: %s", res.StatusCode, data)
	}
	var done domain.ActionRecord
	_ = json.Unmarshal(data, &done)
	if done.Status != domain.ActionCompleted || done.CompletedBy != "alice" || done.Comment != "PO sent" {
		t.Fatalf("unexpected completion: %+v", done)
	}
	res, data = doJSON(t, client, http.MethodPost, completeURL, map[string]any{}, auth)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "conflict" {
		t.Fatalf("expected conflict, got %d %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions/s-1/actions/nope/complete", map[string]any{}, auth)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %d %s", res.StatusCode, data)
	}

	decideURL := srv.URL + "/v0/sessions/s-1/approvals/approve_emergency_replenishment/decide"
	res, data = doJSON(t, client, http.MethodPost, decideURL, map[string]any{"decision": "approve"}, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("decide %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, decideURL, map[string]any{"decision": "reject"}, auth)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict on second decision, got %d %s", res.StatusCode, data)
	}

	// The completed PO now surfaces as already done in a new session.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/query", map[string]any{
		"query":     "Can we fulfill all orders today?",
		"sessionId": "s-2",
	}, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second query %d: %s", res.StatusCode, data)
	}
	var again decisionBody
	_ = json.Unmarshal(data, &again)
	for _, a := range again.Actions {
		if a.ID == "draft_emergency_po" && a.Status != string(domain.ActionAlreadyCompleted) {
			t.Fatalf("expected already_completed, got %s", a.Status)
		}
	}
	for _, a := range again.Approvals {
		if a.ID == "approve_emergency_replenishment" && a.Status != string(domain.ApprovalApproved) {
			t.Fatalf("expected approved, got %s", a.Status)
		}
	}
}

func TestApproverRoleGatesDecisions(t *testing.T) {
	srv := newTestServer(t, newTestEngine(t, true, &callLog{}), AuthConfig{JWTSecret: testSecret, ApproverRole: "approver"})
	client := srv.Client()
	plain := bearer(t, "bob")
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/query", map[string]any{
		"query":     "Can we fulfill all orders today?",
		"sessionId": "s-roles",
	}, plain)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("query status %d: %s", res.StatusCode, data)
	}

	decideURL := srv.URL + "/v0/sessions/s-roles/approvals/approve_emergency_replenishment/decide"
	res, data = doJSON(t, client, http.MethodPost, decideURL, map[string]any{"decision": "approve"}, plain)
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("expected forbidden, got %d %s", res.StatusCode, data)
	}

	token, err := SignToken(testSecret, "carol", []string{"Approver"}, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data = doJSON(t, client, http.MethodPost, decideURL, map[string]any{"decision": "approve"}, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("decide with role %d: %s", res.StatusCode, data)
	}
	var rec domain.ApprovalRecord
	_ = json.Unmarshal(data, &rec)
	if rec.DecidedBy != "carol" {
		t.Fatalf("decided by %q", rec.DecidedBy)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, newTestEngine(t, false, &callLog{}), AuthConfig{JWTSecret: testSecret})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/query", map[string]any{"query": "hi"}, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthorized" {
		t.Fatalf("expected unauthorized, got %d %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/query", map[string]any{"query": "hi"}, map[string]string{"Authorization": "Bearer garbage"})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("expected invalid credentials, got %d %s", res.StatusCode, data)
	}
	other, _ := SignToken("other-secret", "mallory", nil, time.Hour)
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events", nil, map[string]string{"Authorization": "Bearer " + other})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("token signed with another secret accepted: %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health %d: %s", res.StatusCode, data)
	}
}

func TestAnonymousForwardsUnverifiedToken(t *testing.T) {
	calls := &callLog{}
	srv := newTestServer(t, newTestEngine(t, false, calls), AuthConfig{AllowAnonymous: true})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/query", map[string]any{"query": "Can we ship?"}, map[string]string{"Authorization": "Bearer opaque"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("query %d: %s", res.StatusCode, data)
	}
	for _, c := range calls.calls {
		if c.token != "opaque" {
			t.Fatalf("token not forwarded: %+v", c)
		}
	}
}

func TestQueryValidation(t *testing.T) {
	srv := newTestServer(t, newTestEngine(t, false, &callLog{}), AuthConfig{JWTSecret: testSecret})
	auth := bearer(t, "alice")
	for _, q := range []string{"", "   "} {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/query", map[string]any{"query": q}, auth)
		if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "bad_request" {
			t.Fatalf("query %q: expected 400, got %d %s", q, res.StatusCode, data)
		}
	}
}

func TestLedgerRoutesWithoutDatabase(t *testing.T) {
	srv := newTestServer(t, newTestEngine(t, false, &callLog{}), AuthConfig{JWTSecret: testSecret})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/sessions/s-1/actions", nil, bearer(t, "alice"))
	if res.StatusCode != http.StatusServiceUnavailable || errorCode(t, data) != "ledger_unavailable" {
		t.Fatalf("expected ledger_unavailable, got %d %s", res.StatusCode, data)
	}
}

func TestQueryStreamEmitsProgressThenResult(t *testing.T) {
	srv := newTestServer(t, newTestEngine(t, false, &callLog{}), AuthConfig{JWTSecret: testSecret})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/query/stream", map[string]any{"query": "Can we fulfill all orders today?"}, bearer(t, "alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stream %d: %s", res.StatusCode, data)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type %q", ct)
	}
	body := string(data)
	progress := strings.Index(body, "event: progress")
	result := strings.Index(body, "event: result")
	if progress < 0 || result < 0 || result < progress {
		t.Fatalf("expected progress events before the result:\n%s", body)
	}
	if strings.Count(body, "event: result") != 1 {
		t.Fatalf("expected one result event:\n%s", body)
	}
	if !strings.Contains(body, `"type":"agent_start"`) || !strings.Contains(body, `"type":"done"`) {
		t.Fatalf("missing progress types:\n%s", body)
	}
}

func TestEventsPagination(t *testing.T) {
	e := newTestEngine(t, true, &callLog{})
	if _, err := e.Run(context.Background(), engine.Query{Text: "Can we fulfill all orders today?", SessionID: "s-1"}, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	srv := newTestServer(t, e, AuthConfig{JWTSecret: testSecret})
	auth := bearer(t, "alice")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?limit=2", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events %d: %s", res.StatusCode, data)
	}
	var page paginatedEvents
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 2 || page.NextCursor != "2" {
		t.Fatalf("first page: %+v", page)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?after="+page.NextCursor, nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events %d: %s", res.StatusCode, data)
	}
	var rest paginatedEvents
	_ = json.Unmarshal(data, &rest)
	if len(rest.Items) == 0 || rest.NextCursor != "" || rest.Items[0].ID != 3 {
		t.Fatalf("second page: %+v", rest)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?after=abc", nil, auth)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad cursor rejection, got %d", res.StatusCode)
	}
}

func TestWebhookDeliversFilteredEvents(t *testing.T) {
	type delivery struct {
		event, secret string
		body          webhookEvent
	}
	var (
		mu  sync.Mutex
		got []delivery
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		got = append(got, delivery{event: r.Header.Get("X-Sfuse-Event"), secret: r.Header.Get("X-Sfuse-Secret"), body: evt})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	e := newTestEngine(t, true, &callLog{})
	d := newWebhookDispatcher(e, []config.WebhookConfig{{
		URL:    hook.URL,
		Events: []string{domain.EventApprovalRequested, domain.EventActionCompleted},
		Secret: "s3cret",
	}})
	ctx := context.Background()
	d.dispatchAll(ctx)

	if _, err := e.Run(ctx, engine.Query{Text: "Can we fulfill all orders today?", SessionID: "s-1"}, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := e.CompleteAction(ctx, "s-1", "draft_emergency_po", "bob", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %+v", got)
	}
	if got[0].event != domain.EventApprovalRequested || got[1].event != domain.EventActionCompleted {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[1].secret != "s3cret" || got[1].body.SessionID != "s-1" || got[1].body.ActorID != "bob" {
		t.Fatalf("unexpected delivery: %+v", got[1])
	}
}
