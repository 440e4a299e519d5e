package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"supplyfuse/internal/config"
	"supplyfuse/internal/domain"
	"supplyfuse/internal/engine"
	"supplyfuse/internal/llm"
	"supplyfuse/internal/specialist"
)

func env(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestNewAsker(t *testing.T) {
	ctx := context.Background()
	a, err := NewAsker(ctx, config.LLMConfig{Provider: config.ProviderNone}, env(nil))
	if err != nil {
		t.Fatalf("none: %v", err)
	}
	if _, err := a.Ask(ctx, "hi"); !errors.Is(err, llm.ErrDisabled) {
		t.Fatalf("expected disabled, got %v", err)
	}
	a, err = NewAsker(ctx, config.LLMConfig{Provider: config.ProviderStatic, StaticReply: "fixed"}, env(nil))
	if err != nil {
		t.Fatalf("static: %v", err)
	}
	if got, _ := a.Ask(ctx, "hi"); got != "fixed" {
		t.Fatalf("static reply: %q", got)
	}
	if _, err := NewAsker(ctx, config.LLMConfig{Provider: config.ProviderGemini, APIKeyEnv: "KEY"}, env(nil)); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestNewInvokerPrefersFixtures(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "risk.json"), []byte(`{"overallRiskScore":0.4}`), 0o644); err != nil {
		t.Fatal(err)
	}
	inv := NewInvoker(config.SpecialistsConfig{FixturesDir: dir}, nil)
	if _, ok := inv.(specialist.FixtureInvoker); !ok {
		t.Fatalf("expected fixture invoker, got %T", inv)
	}
	out, err := inv.Invoke(context.Background(), domain.AgentRisk, "", "", "")
	if err != nil || out == "" {
		t.Fatalf("fixture: %q %v", out, err)
	}

	inv = NewInvoker(config.SpecialistsConfig{Endpoints: map[string]string{"risk": "http://risk"}, Timeout: time.Second}, nil)
	if _, ok := inv.(specialist.HTTPInvoker); !ok {
		t.Fatalf("expected http invoker, got %T", inv)
	}
}

func TestOpenWiresLedgerAndFixtures(t *testing.T) {
	workspace := t.TempDir()
	fixtures := filepath.Join(workspace, "fixtures")
	if err := os.MkdirAll(fixtures, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range map[string]string{
		"inventory.txt":  "- PROD-003 shortage (30 units)",
		"logistics.json": `{"status":"clear","summary":"ok"}`,
		"demand.json":    `{"status":"insight","summary":"steady"}`,
		"risk.json":      `{"overallRiskScore":0.2,"summary":"low"}`,
	} {
		if err := os.WriteFile(filepath.Join(fixtures, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfgYAML := "specialists:\n  fixtures_dir: " + fixtures + "\n"
	if err := os.WriteFile(config.Path(workspace), []byte(cfgYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	a, err := Open(ctx, Options{Workspace: workspace})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	out, err := a.Engine.Run(ctx, engine.Query{Text: "Can we fulfill all orders today?", SessionID: "s-1"}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Agents) != 4 {
		t.Fatalf("expected default plan over every agent, got %v", out.Agents)
	}
	recs, err := a.Engine.ListActions(ctx, "s-1")
	if err != nil || len(recs) != len(out.Actions) {
		t.Fatalf("ledger rows: %d %v (want %d)", len(recs), err, len(out.Actions))
	}
}

func TestSpecialistToken(t *testing.T) {
	a := &App{Config: config.Default()}
	got := a.SpecialistToken(env(map[string]string{"SFUSE_SPECIALIST_TOKEN": " tok "}))
	if got != "tok" {
		t.Fatalf("token: %q", got)
	}
}
