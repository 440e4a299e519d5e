package specialist_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"supplyfuse/internal/domain"
	"supplyfuse/internal/specialist"
)

func TestHTTPInvokerForwardsTokenAndSession(t *testing.T) {
	var gotAuth, gotSession, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotSession = r.Header.Get("X-Session-Id")
		var body struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotPrompt = body.Prompt
		_ = json.NewEncoder(w).Encode(map[string]string{"message": `{"status":"clear","summary":"ok"}`})
	}))
	defer srv.Close()

	inv := specialist.HTTPInvoker{Resolver: specialist.StaticResolver{domain.AgentLogistics: srv.URL}}
	out, err := inv.Invoke(context.Background(), domain.AgentLogistics, "route check", "s-1", "tok")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != `{"status":"clear","summary":"ok"}` {
		t.Fatalf("reply: %q", out)
	}
	if gotAuth != "Bearer tok" || gotSession != "s-1" || gotPrompt != "route check" {
		t.Fatalf("request: auth=%q session=%q prompt=%q", gotAuth, gotSession, gotPrompt)
	}
}

func TestHTTPInvokerMissingTokenSkipsNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()
	inv := specialist.HTTPInvoker{Resolver: specialist.StaticResolver{domain.AgentRisk: srv.URL}}
	_, err := inv.Invoke(context.Background(), domain.AgentRisk, "p", "s", "")
	if !errors.Is(err, specialist.ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
	var se domain.SpecialistError
	if !errors.As(err, &se) || se.Agent != domain.AgentRisk {
		t.Fatalf("expected specialist error, got %#v", err)
	}
	if called {
		t.Fatalf("network call made without token")
	}
}

func TestHTTPInvokerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()
	inv := specialist.HTTPInvoker{Resolver: specialist.StaticResolver{domain.AgentDemand: srv.URL}}
	if _, err := inv.Invoke(context.Background(), domain.AgentDemand, "p", "s", "tok"); !errors.Is(err, domain.ErrSpecialistUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, err := inv.Invoke(context.Background(), domain.AgentInventory, "p", "s", "tok"); !errors.Is(err, domain.ErrNoEndpoint) {
		t.Fatalf("expected no endpoint, got %v", err)
	}
}

func TestReplyText(t *testing.T) {
	cases := map[string]string{
		`{"response":"plain"}`:          "plain",
		`{"completion":{"status":"x"}}`: `{"status":"x"}`,
		`{"highlightSummary":"direct"}`: `{"highlightSummary":"direct"}`,
		"just prose":                    "just prose",
	}
	for in, want := range cases {
		if got := specialist.ReplyText([]byte(in)); got != want {
			t.Fatalf("%s: got %q want %q", in, got, want)
		}
	}
}

func TestCachingResolver(t *testing.T) {
	hits := 0
	reg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if !strings.HasSuffix(r.URL.Path, "/agents/inventory") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"endpoint":"http://inventory.local/invoke"}`))
	}))
	defer reg.Close()

	c := specialist.NewCachingResolver(specialist.RegistryResolver{BaseURL: reg.URL}, time.Minute)
	for i := 0; i < 3; i++ {
		u, err := c.Endpoint(context.Background(), domain.AgentInventory)
		if err != nil || u != "http://inventory.local/invoke" {
			t.Fatalf("endpoint: %q %v", u, err)
		}
	}
	if hits != 1 || c.Lookups() != 1 {
		t.Fatalf("expected one registry hit, got %d (lookups %d)", hits, c.Lookups())
	}
	c.Invalidate(domain.AgentInventory)
	if _, err := c.Endpoint(context.Background(), domain.AgentInventory); err != nil {
		t.Fatalf("endpoint after invalidate: %v", err)
	}
	if hits != 2 {
		t.Fatalf("invalidate should force a lookup, hits=%d", hits)
	}
	if _, err := c.Endpoint(context.Background(), domain.AgentRisk); !errors.Is(err, domain.ErrNoEndpoint) {
		t.Fatalf("expected no endpoint, got %v", err)
	}
	if _, err := c.Endpoint(context.Background(), domain.AgentRisk); err == nil || hits != 4 {
		t.Fatalf("failures must not be cached, hits=%d", hits)
	}
}

func TestFixtureInvoker(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "demand.txt"), []byte("Demand is rising"), 0o644); err != nil {
		t.Fatal(err)
	}
	inv := specialist.FixtureInvoker{Dir: dir}
	out, err := inv.Invoke(context.Background(), domain.AgentDemand, "", "", "")
	if err != nil || out != "Demand is rising" {
		t.Fatalf("fixture: %q %v", out, err)
	}
	if _, err := inv.Invoke(context.Background(), domain.AgentRisk, "", "", ""); !errors.Is(err, domain.ErrNoEndpoint) {
		t.Fatalf("missing fixture: %v", err)
	}
}

func TestPromptIncludesGuidanceAndContext(t *testing.T) {
	p := specialist.Prompt(domain.AgentInventory, "Can we ship?", map[string]any{"completedAgents": []string{}})
	for _, want := range []string{"Inventory specialist", "Quantify shortages", `"Can we ship?"`, `{"completedAgents":[]}`, "confidence"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
	if !strings.Contains(specialist.Prompt(domain.AgentRisk, "q", nil), "Context so far: {}") {
		t.Fatalf("nil context should render as {}")
	}
}

func TestChainResolverFallsThrough(t *testing.T) {
	chain := specialist.ChainResolver{
		specialist.StaticResolver{domain.AgentInventory: "http://inv"},
		specialist.StaticResolver{domain.AgentRisk: "http://risk"},
	}
	ctx := context.Background()
	if u, err := chain.Endpoint(ctx, domain.AgentInventory); err != nil || u != "http://inv" {
		t.Fatalf("inventory: %q %v", u, err)
	}
	if u, err := chain.Endpoint(ctx, domain.AgentRisk); err != nil || u != "http://risk" {
		t.Fatalf("risk: %q %v", u, err)
	}
	if _, err := chain.Endpoint(ctx, domain.AgentDemand); !errors.Is(err, domain.ErrNoEndpoint) {
		t.Fatalf("expected ErrNoEndpoint, got %v", err)
	}
	if _, err := (specialist.ChainResolver{}).Endpoint(ctx, domain.AgentDemand); !errors.Is(err, domain.ErrNoEndpoint) {
		t.Fatalf("empty chain: %v", err)
	}
}
