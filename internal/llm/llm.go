// Package llm holds the text-in/text-out language model contract shared by
// the planner, the narrative step and notification drafts.
package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// Asker sends a single prompt and returns the model's raw text.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// ErrDisabled is returned by Disabled and by providers configured as "none".
var ErrDisabled = errors.New("language model disabled")

// Func adapts a plain function to Asker.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Ask(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Static returns the same reply for every prompt.
type Static string

func (s Static) Ask(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(s), nil
}

// Disabled always fails with ErrDisabled so callers take their fallback path.
type Disabled struct{}

func (Disabled) Ask(context.Context, string) (string, error) { return "", ErrDisabled }

var (
	reasoningBlockRe = regexp.MustCompile(`(?is)<(thinking|analysis|reasoning)>.*?</(thinking|analysis|reasoning)>`)
	danglingTagRe    = regexp.MustCompile(`(?i)</?(thinking|analysis|reasoning|response|answer)>`)
)

// StripReasoning removes <thinking>, <analysis> and <reasoning> blocks with
// their content and unwraps <response>/<answer> tags, keeping what they hold.
func StripReasoning(text string) string {
	out := reasoningBlockRe.ReplaceAllString(text, "")
	out = danglingTagRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// AskClean is Ask followed by StripReasoning.
func AskClean(ctx context.Context, a Asker, prompt string) (string, error) {
	if a == nil {
		return "", ErrDisabled
	}
	text, err := a.Ask(ctx, prompt)
	if err != nil {
		return "", err
	}
	return StripReasoning(text), nil
}
