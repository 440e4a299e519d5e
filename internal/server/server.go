// Package server exposes the fusion engine and its action ledger over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"supplyfuse/internal/domain"
	"supplyfuse/internal/engine"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"action not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the fusion API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Supply Fusion API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerQuery(group, cfg.Engine)
	registerQueryStream(group, cfg.Engine)
	registerActions(group, cfg.Engine)
	registerApprovals(group, cfg.Engine, cfg.Auth.ApproverRole)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case errors.Is(err, engine.ErrEmptyQuery):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, map[string]any{"field": "query"})
	case engine.IsNotFound(err):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case engine.IsConflict(err):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case errors.Is(err, engine.ErrNoLedger):
		return newAPIError(http.StatusServiceUnavailable, "ledger_unavailable", msg, nil)
	case errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusGatewayTimeout, "timeout", msg, nil)
	case errors.Is(err, context.Canceled):
		return newAPIError(http.StatusServiceUnavailable, "cancelled", msg, nil)
	}
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "must be") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type queryInput struct {
	Body QueryRequest `json:"body"`
}

func queryFromRequest(ctx context.Context, body QueryRequest) engine.Query {
	q := engine.Query{Text: body.Query, SessionID: body.SessionID}
	if len(body.Context) > 0 {
		q.History = body.Context
	}
	if p, ok := principalFromContext(ctx); ok {
		q.Token = p.Token
		q.ActorID = p.ActorID
	}
	return q
}

func registerQuery(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "query",
		Method:      http.MethodPost,
		Path:        "/query",
		Summary:     "Answer a supply chain question",
		Description: "Plans the specialists, calls them concurrently and returns the fused decision with its actions and approvals.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *queryInput) (*struct {
		Body domain.FusedDecision `json:"body"`
	}, error) {
		out, err := e.Run(ctx, queryFromRequest(ctx, input.Body), nil)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FusedDecision `json:"body"`
		}{Body: out}, nil
	})
}

func registerQueryStream(api huma.API, e engine.Engine) {
	sse.Register(api, huma.Operation{
		OperationID: "query-stream",
		Method:      http.MethodPost,
		Path:        "/query/stream",
		Summary:     "Answer a question, streaming progress",
		Description: "Emits progress events while specialists run, then one result event carrying the fused decision.",
	}, map[string]any{
		"progress": domain.ProgressEvent{},
		"result":   domain.FusedDecision{},
		"error":    apiErrorBody{},
	}, func(ctx context.Context, input *queryInput, send sse.Sender) {
		obs := engine.ObserverFunc(func(ev domain.ProgressEvent) {
			_ = send.Data(ev)
		})
		out, err := e.Run(ctx, queryFromRequest(ctx, input.Body), obs)
		if err != nil {
			var apiErr *apiError
			if errors.As(handleError(err), &apiErr) {
				_ = send.Data(apiErr.Body)
			}
			return
		}
		_ = send.Data(out)
	})
}

type sessionPath struct {
	SessionID string `path:"session_id"`
}

func registerActions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-actions",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}/actions",
		Summary:     "List actions recorded for a session",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body actionList `json:"body"`
	}, error) {
		items, err := e.ListActions(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ActionRecord{}
		}
		return &struct {
			Body actionList `json:"body"`
		}{Body: actionList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-action",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}/actions/{action_id}",
		Summary:     "Get one recorded action",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
		ActionID  string `path:"action_id"`
	}) (*struct {
		Body domain.ActionRecord `json:"body"`
	}, error) {
		rec, err := e.GetAction(ctx, input.SessionID, input.ActionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActionRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-action",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/actions/{action_id}/complete",
		Summary:     "Mark an action as carried out",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		SessionID string                `path:"session_id"`
		ActionID  string                `path:"action_id"`
		Body      CompleteActionRequest `json:"body"`
	}) (*struct {
		Body domain.ActionRecord `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.CompleteAction(ctx, input.SessionID, input.ActionID, actorID, input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActionRecord `json:"body"`
		}{Body: rec}, nil
	})
}

func registerApprovals(api huma.API, e engine.Engine, approverRole string) {
	huma.Register(api, huma.Operation{
		OperationID: "list-approvals",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}/approvals",
		Summary:     "List approval requests recorded for a session",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body approvalList `json:"body"`
	}, error) {
		items, err := e.ListApprovals(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ApprovalRecord{}
		}
		return &struct {
			Body approvalList `json:"body"`
		}{Body: approvalList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-approval",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/approvals/{approval_id}/decide",
		Summary:     "Approve or reject a pending approval",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		SessionID  string                `path:"session_id"`
		ApprovalID string                `path:"approval_id"`
		Body       DecideApprovalRequest `json:"body"`
	}) (*struct {
		Body domain.ApprovalRecord `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if authErr := requireRole(ctx, approverRole); authErr != nil {
			return nil, authErr
		}
		decision, err := engine.ParseDecision(input.Body.Decision)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "decision"})
		}
		rec, err := e.DecideApproval(ctx, input.SessionID, input.ApprovalID, decision, actorID, input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ApprovalRecord `json:"body"`
		}{Body: rec}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List ledger events after a cursor",
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		After     string `query:"after"`
		SessionID string `query:"session_id"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursor int64
		if input.After != "" {
			parsed, err := strconv.ParseInt(input.After, 10, 64)
			if err != nil || parsed < 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"after": input.After})
			}
			cursor = parsed
		}
		items, err := e.EventsAfter(ctx, limit+1, cursor, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Supply Fusion API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;. The same token is forwarded to specialist agents.
    </p>
  </body>
</html>`, specURL)
}
