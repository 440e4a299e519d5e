// Package specialist invokes the remote analysis services.
package specialist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"supplyfuse/internal/domain"
)

// ErrMissingToken is returned before any network call when no bearer token
// is available to forward.
var ErrMissingToken = errors.New("missing bearer token for specialist invocation")

const maxResponseBytes = 4 << 20

// Invoker calls one specialist and returns its raw reply. Failures are
// returned as errors, never as sentinel text.
type Invoker interface {
	Invoke(ctx context.Context, agent domain.AgentType, prompt, sessionID, token string) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, agent domain.AgentType, prompt, sessionID, token string) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, agent domain.AgentType, prompt, sessionID, token string) (string, error) {
	return f(ctx, agent, prompt, sessionID, token)
}

// HTTPInvoker posts {"prompt": ...} to the endpoint returned by Resolver.
// No retries are attempted.
type HTTPInvoker struct {
	Resolver Resolver
	Client   *http.Client
	Logger   *zap.Logger
}

type invokeRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"sessionId,omitempty"`
}

func (h HTTPInvoker) Invoke(ctx context.Context, agent domain.AgentType, prompt, sessionID, token string) (string, error) {
	if token == "" {
		return "", domain.SpecialistError{Agent: agent, Err: ErrMissingToken}
	}
	if h.Resolver == nil {
		return "", domain.SpecialistError{Agent: agent, Err: domain.ErrNoEndpoint}
	}
	endpoint, err := h.Resolver.Endpoint(ctx, agent)
	if err != nil {
		return "", domain.SpecialistError{Agent: agent, Err: err}
	}
	body, err := json.Marshal(invokeRequest{Prompt: prompt, SessionID: sessionID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", domain.SpecialistError{Agent: agent, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if sessionID != "" {
		req.Header.Set("X-Session-Id", sessionID)
	}
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		if c, ok := h.Resolver.(*CachingResolver); ok {
			c.Invalidate(agent)
		}
		return "", domain.SpecialistError{Agent: agent, Err: fmt.Errorf("%w: %v", domain.ErrSpecialistUnavailable, err)}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", domain.SpecialistError{Agent: agent, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", domain.SpecialistError{Agent: agent, Err: fmt.Errorf("%w: status %d: %s",
			domain.ErrSpecialistUnavailable, resp.StatusCode, strings.TrimSpace(string(data)))}
	}
	if h.Logger != nil {
		h.Logger.Debug("specialist replied", zap.String("agent", string(agent)), zap.Int("bytes", len(data)))
	}
	return ReplyText(data), nil
}

// ReplyText picks message, response or completion from a JSON envelope and
// returns the body unchanged otherwise.
func ReplyText(body []byte) string {
	var env map[string]any
	if err := json.Unmarshal(body, &env); err == nil {
		for _, key := range []string{"message", "response", "completion"} {
			switch v := env[key].(type) {
			case string:
				if v != "" {
					return v
				}
			case map[string]any:
				if data, err := json.Marshal(v); err == nil {
					return string(data)
				}
			}
		}
	}
	return string(body)
}

// FixtureInvoker replays <Dir>/<agent>.json or <agent>.txt. It serves offline
// runs of the CLI and ignores the token.
type FixtureInvoker struct {
	Dir string
}

func (f FixtureInvoker) Invoke(ctx context.Context, agent domain.AgentType, _, _, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, ext := range []string{".json", ".txt"} {
		data, err := os.ReadFile(filepath.Join(f.Dir, string(agent)+ext))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", domain.SpecialistError{Agent: agent, Err: err}
		}
	}
	return "", domain.SpecialistError{Agent: agent, Err: fmt.Errorf("%w: no fixture in %s", domain.ErrNoEndpoint, f.Dir)}
}
