// Package llmprovider defines the model.Provider contract consumed by C4
// and ships a deterministic test double. Concrete LLM providers are an
// out-of-scope external collaborator per §1: the core never imports a
// concrete transport, only this interface. Grounded on the shape of the
// teacher's LLMClient interface (pkg/agent/llm_client.go) with the
// transport (gRPC/protobuf — unreproducible without running codegen; see
// DESIGN.md) stripped to the spec's single-shot contract.
package llmprovider

import (
	"context"
	"fmt"
	"strings"
)

// Deterministic is a test double that echoes a canned response per prompt
// prefix, or a default response otherwise. It never calls out to a real
// model — useful for exercising C4/C5 without a live provider.
type Deterministic struct {
	Responses map[string]string // keyed by prompt prefix, checked longest-match-first
	Default   string
}

// NewDeterministic builds a Deterministic provider with the given default
// response for any prompt that matches no registered prefix.
func NewDeterministic(def string) *Deterministic {
	return &Deterministic{Responses: map[string]string{}, Default: def}
}

// Complete implements model.Provider. It honors ctx cancellation (returns
// ctx.Err() if already done) but otherwise responds instantly — there is no
// network call to time out.
func (d *Deterministic) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	best, matched := "", false
	for prefix := range d.Responses {
		if strings.HasPrefix(prompt, prefix) && (!matched || len(prefix) > len(best)) {
			best, matched = prefix, true
		}
	}
	if matched {
		return truncate(d.Responses[best], maxTokens), nil
	}
	if d.Default == "" {
		return "", fmt.Errorf("llmprovider: no response configured for prompt and no default set")
	}
	return truncate(d.Default, maxTokens), nil
}

// truncate is a crude token-budget stand-in: one "token" per word. Good
// enough for a test double; a real provider owns its own tokenizer.
func truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[:maxTokens], " ")
}
