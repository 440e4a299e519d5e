package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"supplyfuse/internal/app"
	"supplyfuse/internal/config"
	"supplyfuse/internal/domain"
	"supplyfuse/internal/engine"
	"supplyfuse/internal/logging"
	"supplyfuse/internal/normalize"
	"supplyfuse/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sfuse",
	Short: "Supply chain fusion CLI",
	Long: `sfuse asks inventory, demand, logistics and risk specialists a question and fuses
their answers into one decision with follow-up actions and approvals.
- Specialists: remote agents reached over HTTP (or local fixtures) that answer in free text or JSON.
- Fusion: weighted confidence, risk level and decision status across every answer.
- Ledger: actions and approvals recorded per session in .sfuse/ledger.db; completed or decided
  items are recognized in later sessions so the same work is not proposed twice.
- Events: every ledger change is appended to an event log and can be pushed to webhooks.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SFUSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default <workspace>/fusion.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "log-level", "log-json"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(normalizeCmd())
	rootCmd.AddCommand(actionsCmd())
	rootCmd.AddCommand(approvalsCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
}

func newLogger() (*zap.Logger, error) {
	return logging.New(viper.GetString("log-level"), viper.GetBool("log-json"))
}

func withApp(ctx context.Context, noLedger bool, fn func(context.Context, *app.App) error) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	a, err := app.Open(ctx, app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		Logger:     log,
		NoLedger:   noLedger,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, false, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine)
	})
}

func serveCmd() *cobra.Command {
	var addr, basePath, approverRole string
	var anonymous bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				authCfg := server.AuthConfig{
					JWTSecret:      strings.TrimSpace(viper.GetString("jwt-secret")),
					AllowAnonymous: anonymous,
					ApproverRole:   strings.TrimSpace(approverRole),
					Logger:         a.Logger,
				}
				if authCfg.JWTSecret == "" && !anonymous {
					return fmt.Errorf("SFUSE_JWT_SECRET is required for bearer auth (or pass --allow-anonymous)")
				}
				handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg, Logger: a.Logger})
				if err != nil {
					return err
				}
				server.StartWebhookDispatcher(ctx, a.Engine)
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving fusion API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&anonymous, "allow-anonymous", false, "accept requests without a verified token")
	cmd.Flags().StringVar(&approverRole, "approver-role", "", "role claim required to decide approvals")
	return cmd
}

func askCmd() *cobra.Command {
	var sessionID, token string
	var noLedger bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the specialists a question and print the fused decision",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), noLedger, func(ctx context.Context, a *app.App) error {
				if token == "" {
					token = a.SpecialistToken(os.Getenv)
				}
				q := engine.Query{
					Text:      strings.Join(args, " "),
					SessionID: sessionID,
					Token:     token,
					ActorID:   viper.GetString("actor-id"),
				}
				var obs engine.Observer
				if !viper.GetBool("json") {
					obs = engine.ObserverFunc(func(ev domain.ProgressEvent) {
						fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Type, ev.Message)
					})
				}
				out, err := a.Engine.Run(ctx, q, obs)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				printDecision(out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (generated when empty)")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for specialists (default from specialists.token_env)")
	cmd.Flags().BoolVar(&noLedger, "no-ledger", false, "do not read or write the action ledger")
	return cmd
}

func printDecision(d domain.FusedDecision) {
	fmt.Println(d.Summary)
	fmt.Println()
	fmt.Printf("Session %s  query type %s  status %s  risk %s  confidence %.0f%%\n",
		d.SessionID, d.QueryType, d.DecisionStatus, d.RiskLevel.Label(), d.Confidence*100)
	if len(d.Blockers) > 0 {
		fmt.Println("Blockers:")
		for _, b := range d.Blockers {
			fmt.Println("  -", b)
		}
	}

	if len(d.AgentFindings) > 0 {
		tw := newTable("Findings")
		tw.AppendHeader(table.Row{"Agent", "Status", "Summary"})
		for _, f := range d.AgentFindings {
			tw.AppendRow(table.Row{f.Agent, f.Status, f.Summary})
		}
		tw.Render()
	}
	if len(d.Actions) > 0 {
		tw := newTable("Actions")
		tw.AppendHeader(table.Row{"ID", "Status", "Owner", "Risk", "Description"})
		for _, a := range d.Actions {
			desc := a.Description
			if a.Note != "" {
				desc += " (" + a.Note + ")"
			}
			tw.AppendRow(table.Row{a.ID, a.Status, a.Owner, a.RiskLevel.Label(), desc})
		}
		tw.Render()
	}
	if len(d.Approvals) > 0 {
		tw := newTable("Approvals")
		tw.AppendHeader(table.Row{"ID", "Status", "Requires", "Risk", "Title"})
		for _, a := range d.Approvals {
			tw.AppendRow(table.Row{a.ID, a.Status, a.Requires, a.Risk.Label(), a.Title})
		}
		tw.Render()
	}
	if len(d.NextSteps) > 0 {
		fmt.Println("Next steps:")
		for i, s := range d.NextSteps {
			fmt.Printf("  %d. %s\n", i+1, s)
		}
	}
}

func newTable(title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(title)
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 5, WidthMax: 70}, {Number: 3, WidthMax: 50}})
	tw.Style().Title.Align = text.AlignLeft
	return tw
}

func normalizeCmd() *cobra.Command {
	var agent, file string
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize one raw specialist reply and print the canonical record",
		RunE: func(cmd *cobra.Command, args []string) error {
			at, ok := domain.ParseAgentType(agent)
			if !ok {
				return fmt.Errorf("unknown agent %q (inventory, demand, logistics, risk)", agent)
			}
			var raw []byte
			var err error
			if file == "" || file == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(file)
			}
			if err != nil {
				return err
			}
			return printJSON(normalize.Normalize(at, string(raw)))
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent type")
	cmd.Flags().StringVar(&file, "file", "-", "reply file (- for stdin)")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func actionsCmd() *cobra.Command {
	c := &cobra.Command{Use: "actions", Short: "Inspect and complete recorded actions"}

	var sessionID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List actions of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListActions(ctx, sessionID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Actions " + sessionID)
				tw.AppendHeader(table.Row{"ID", "Status", "Owner", "Completed", "Description"})
				for _, a := range items {
					done := ""
					if a.CompletedAt != "" {
						done = a.CompletedAt + " by " + a.CompletedBy
					}
					tw.AppendRow(table.Row{a.ActionID, a.Status, a.Owner, done, a.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&sessionID, "session", "", "session id")
	_ = list.MarkFlagRequired("session")

	var comment string
	complete := &cobra.Command{
		Use:   "complete <session-id> <action-id>",
		Short: "Mark an action as carried out",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.CompleteAction(ctx, args[0], args[1], viper.GetString("actor-id"), comment)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				fmt.Printf("completed %s at %s by %s\n", rec.ActionID, rec.CompletedAt, rec.CompletedBy)
				return nil
			})
		},
	}
	complete.Flags().StringVar(&comment, "comment", "", "comment")

	c.AddCommand(list, complete)
	return c
}

func approvalsCmd() *cobra.Command {
	c := &cobra.Command{Use: "approvals", Short: "Inspect and decide approval requests"}

	var sessionID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List approvals of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListApprovals(ctx, sessionID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Approvals " + sessionID)
				tw.AppendHeader(table.Row{"ID", "Status", "Requires", "Decided", "Title"})
				for _, a := range items {
					decided := ""
					if a.DecidedAt != "" {
						decided = a.DecidedAt + " by " + a.DecidedBy
					}
					tw.AppendRow(table.Row{a.ApprovalID, a.Status, a.Requires, decided, a.Title})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&sessionID, "session", "", "session id")
	_ = list.MarkFlagRequired("session")

	var comment string
	decide := &cobra.Command{
		Use:   "decide <session-id> <approval-id> <approve|reject>",
		Short: "Approve or reject a pending approval",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision, err := engine.ParseDecision(args[2])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.DecideApproval(ctx, args[0], args[1], decision, viper.GetString("actor-id"), comment)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				fmt.Printf("%s %s at %s by %s\n", rec.ApprovalID, rec.Status, rec.DecidedAt, rec.DecidedBy)
				return nil
			})
		},
	}
	decide.Flags().StringVar(&comment, "comment", "", "comment")

	c.AddCommand(list, decide)
	return c
}

func eventsCmd() *cobra.Command {
	var after int64
	var limit int
	var sessionID string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show ledger events after a cursor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.EventsAfter(ctx, limit, after, sessionID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Events")
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Session", "Entity", "Actor"})
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.SessionID, ev.EntityKind + "/" + ev.EntityID, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "event id cursor")
	cmd.Flags().IntVar(&limit, "limit", 50, "max events")
	cmd.Flags().StringVar(&sessionID, "session", "", "only events of this session")
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Manage fusion.yml",
		Long:  "fusion.yml holds specialist endpoints, the language model provider, fusion weights, ledger and webhook settings.",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default fusion.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if path == "" {
				path = config.Path(viper.GetString("workspace"))
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}

	c.AddCommand(initCmd, show, validate)
	return c
}

func tokenCmd() *cobra.Command {
	var subject string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token with SFUSE_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			tok, err := server.SignToken(viper.GetString("jwt-secret"), subject, roles, ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": tok})
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (default --actor-id)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role claim (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
