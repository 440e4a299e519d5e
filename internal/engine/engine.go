// Package engine runs the query pipeline and owns the action ledger.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"supplyfuse/internal/actions"
	"supplyfuse/internal/config"
	"supplyfuse/internal/domain"
	"supplyfuse/internal/events"
	"supplyfuse/internal/fusion"
	"supplyfuse/internal/llm"
	"supplyfuse/internal/normalize"
	"supplyfuse/internal/planner"
	"supplyfuse/internal/repo"
	"supplyfuse/internal/specialist"
)

// ErrEmptyQuery is returned by Run when the question is blank.
var ErrEmptyQuery = errors.New("query is required")

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Now     func() time.Time
	Logger  *zap.Logger
	Invoker specialist.Invoker
	LLM     llm.Asker
	NewID   func() string
}

// New wires an engine over db, which may be nil when no ledger is kept.
func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Now:    time.Now,
		Logger: zap.NewNop(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) ledgerEnabled() bool {
	return e.DB != nil
}

// Query is one user question.
type Query struct {
	Text      string
	SessionID string
	Token     string
	ActorID   string
	History   any
}

// Observer receives progress notices while a query runs. Calls may arrive
// from several goroutines but are serialized by the engine.
type Observer interface {
	Progress(domain.ProgressEvent)
}

type ObserverFunc func(domain.ProgressEvent)

func (f ObserverFunc) Progress(ev domain.ProgressEvent) { f(ev) }

type progress struct {
	mu  sync.Mutex
	obs Observer
	ts  func() string
}

func (p *progress) emit(ev domain.ProgressEvent) {
	if p.obs == nil {
		return
	}
	ev.Timestamp = p.ts()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.obs.Progress(ev)
}

// Run answers q. Specialist, planner, snapshot, narrative and persistence
// failures degrade the answer but never fail the call; only a blank query
// or a cancelled context returns an error.
func (e Engine) Run(ctx context.Context, q Query, obs Observer) (domain.FusedDecision, error) {
	if strings.TrimSpace(q.Text) == "" {
		return domain.FusedDecision{}, ErrEmptyQuery
	}
	if q.SessionID == "" {
		q.SessionID = e.newID()
	}
	cfg := e.config()
	log := e.log().With(zap.String("session_id", q.SessionID))
	p := &progress{obs: obs, ts: e.timestamp}

	plan := planner.Planner{LLM: e.LLM, Logger: log}.Plan(ctx, q.Text, q.History)
	log.Info("plan ready", zap.String("query_type", plan.QueryType), zap.Any("agents", plan.Agents), zap.Bool("fallback", plan.Fallback))
	p.emit(domain.ProgressEvent{
		Type:      domain.ProgressPlan,
		Agents:    plan.Agents,
		QueryType: plan.QueryType,
		Message:   fmt.Sprintf("Executing %d specialist(s): %s", len(plan.Agents), joinAgents(plan.Agents)),
	})

	records, err := e.invokeAll(ctx, q, plan.Agents, p, log)
	if err != nil {
		return domain.FusedDecision{}, err
	}

	res := fusion.Fuse(records, plan.QueryType, fusion.Weights(cfg.AgentWeights()))
	p.emit(domain.ProgressEvent{
		Type:      domain.ProgressFusion,
		QueryType: plan.QueryType,
		Status:    string(res.Decision.Status),
		Message:   fmt.Sprintf("Fused %d record(s): risk %s, confidence %.2f", len(records), res.Decision.RiskLevel.Label(), res.Decision.Confidence),
	})

	snap := e.snapshot(ctx, log)
	gen := actions.Generator{TokenThreshold: cfg.Fusion.DedupTokenThreshold}.Generate(res.Facts, res.Decision, snap)

	summary := res.Summary
	if cfg.Fusion.Narrative && !res.Facts.NoData() {
		if text, ok := e.composeNarrative(ctx, q.Text, res, log); ok {
			summary = text
		}
	}
	if cfg.Fusion.NotificationDrafts {
		e.draftNotifications(ctx, gen.Actions, log)
	}

	out := domain.FusedDecision{
		Summary:        summary,
		Decision:       res.Decision,
		DecisionStatus: res.Decision.Status,
		RiskLevel:      res.Decision.RiskLevel,
		RiskScore:      res.RiskScore,
		RiskSignals:    nonNil(res.Decision.RiskSignals),
		Confidence:     res.Decision.Confidence,
		Blockers:       nonNil(res.Decision.Blockers),
		Agents:         append([]domain.AgentType{}, plan.Agents...),
		AgentFindings:  res.Findings,
		Actions:        gen.Actions,
		Approvals:      gen.Approvals,
		NextSteps:      fusion.NextSteps(res.Facts, res.Decision, gen.Pending()),
		QueryType:      plan.QueryType,
		SessionID:      q.SessionID,
		Timestamp:      e.timestamp(),
	}
	if out.AgentFindings == nil {
		out.AgentFindings = []domain.AgentFinding{}
	}

	if e.ledgerEnabled() && cfg.Ledger.Persist {
		if err := e.RecordDecision(ctx, out, q.ActorID); err != nil {
			log.Warn("persist decision failed", zap.Error(fmt.Errorf("%w: %v", domain.ErrPersistenceUnavailable, err)))
		}
	}
	p.emit(domain.ProgressEvent{
		Type:      domain.ProgressDone,
		QueryType: plan.QueryType,
		Status:    string(out.DecisionStatus),
		Message:   fmt.Sprintf("%d action(s), %d approval(s) pending", len(out.Actions), gen.Pending()),
	})
	return out, nil
}

// invokeAll calls every planned specialist concurrently. A failed call
// becomes an error record; only cancellation of ctx aborts the query.
func (e Engine) invokeAll(ctx context.Context, q Query, agents []domain.AgentType, p *progress, log *zap.Logger) ([]domain.SpecialistRecord, error) {
	records := make([]domain.SpecialistRecord, len(agents))
	inv := e.Invoker
	if inv == nil {
		inv = specialist.InvokerFunc(func(context.Context, domain.AgentType, string, string, string) (string, error) {
			return "", domain.ErrNoEndpoint
		})
	}
	// Calls run concurrently, so no specialist sees another's findings.
	promptCtx := map[string]any{"completedAgents": []any{}}

	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range agents {
		g.Go(func() error {
			p.emit(domain.ProgressEvent{Type: domain.ProgressAgentStart, Agent: agent, Message: agent.Title() + " specialist analyzing..."})
			raw, err := inv.Invoke(gctx, agent, specialist.Prompt(agent, q.Text, promptCtx), q.SessionID, q.Token)
			var rec domain.SpecialistRecord
			if err != nil {
				log.Warn("specialist failed", zap.String("agent", string(agent)), zap.Error(err))
				rec = domain.ErrorRecord(agent, failureReason(agent, err))
			} else {
				rec = normalize.Normalize(agent, raw)
			}
			records[i] = rec
			p.emit(domain.ProgressEvent{Type: domain.ProgressAgentResult, Agent: agent, Status: rec.Status, Message: rec.HighlightSummary})
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func failureReason(agent domain.AgentType, err error) string {
	var se domain.SpecialistError
	if errors.As(err, &se) {
		err = se.Err
	}
	return fmt.Sprintf("%s specialist unavailable: %v", agent.Title(), err)
}

// snapshot reads the dedup index once per query and degrades to an empty
// snapshot when the ledger cannot be read.
func (e Engine) snapshot(ctx context.Context, log *zap.Logger) actions.Snapshot {
	if !e.ledgerEnabled() {
		return actions.Snapshot{}
	}
	snap, err := e.Snapshot(ctx)
	if err != nil {
		log.Warn("dedup snapshot unavailable; assuming nothing completed", zap.Error(err))
		return actions.Snapshot{}
	}
	return snap
}

// Snapshot returns the most recent completed actions and decided approvals.
func (e Engine) Snapshot(ctx context.Context) (actions.Snapshot, error) {
	limit := e.config().Fusion.SnapshotLimit
	done, err := e.Repo.ListCompletedActions(ctx, limit)
	if err != nil {
		return actions.Snapshot{}, fmt.Errorf("%w: completed actions: %v", domain.ErrPersistenceUnavailable, err)
	}
	decided, err := e.Repo.ListDecidedApprovals(ctx, limit)
	if err != nil {
		return actions.Snapshot{}, fmt.Errorf("%w: decided approvals: %v", domain.ErrPersistenceUnavailable, err)
	}
	return actions.Snapshot{Actions: done, Approvals: decided}, nil
}

func joinAgents(agents []domain.AgentType) string {
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
