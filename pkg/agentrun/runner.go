// Package agentrun implements the Agent Runner (C4): one agent's full
// execution — context assembly, prompt build, LLM call with retry,
// validation, persistence, and event emission. Grounded on the teacher's
// BaseAgent (status transitions, nil-result defense,
// errors.Is(context.DeadlineExceeded) classification) and the LLMClient
// interface shape (pkg/agent/llm_client.go), simplified to the spec's
// single-shot complete(prompt, max_tokens, timeout, cancellation) contract.
package agentrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/revisoria/poe-engine/pkg/contextasm"
	"github.com/revisoria/poe-engine/pkg/model"
	"github.com/revisoria/poe-engine/pkg/regulatory"
	"github.com/revisoria/poe-engine/pkg/validate"
)

const (
	maxRetries      = 2
	retryBaseDelay  = 2 * time.Second
	retryMaxDelay   = 6 * time.Second
	defaultMaxTokens = 2048
)

// Runner executes agents end-to-end. All dependencies are injected — no
// globals, per §9's "constructor-injected core struct" design note.
type Runner struct {
	Schemas     *validate.Registry
	Regulatory  regulatory.Provider
	Provider    model.Provider
	Store       model.Store
	AgentTimeout time.Duration

	// Publish is called once per emitted event; nil is treated as a no-op
	// sink so tests can omit it.
	Publish func(model.Event)

	// sleep is a seam for retry backoff in tests; production leaves it nil
	// and gets time.Sleep.
	sleep func(time.Duration)
}

func (r *Runner) sleepFor(d time.Duration) {
	if r.sleep != nil {
		r.sleep(d)
		return
	}
	time.Sleep(d)
}

// Outcome is what Run returns: the persisted deliberation plus the hash the
// store assigned to its append. Run returns an error when the storage append
// fails, when mandatory context is missing, on timeout, on cancellation, and
// on transient-error exhaustion (the last together with the persisted
// REQUEST_CHANGES/invalid deliberation). A schema violation or unparseable
// response is a successful Outcome with ValidationStatus/Decision reflecting
// the failure and a nil error.
type Outcome struct {
	Deliberation model.Deliberation
	Hash         string
}

func (r *Runner) publish(event model.Event) {
	if r.Publish != nil {
		r.Publish(event)
	}
}

// Run executes cfg's agent for phase against bundle, with prevHash the
// current head of the project's defense file (needed to append the
// resulting deliberation entry).
func (r *Runner) Run(ctx context.Context, cfg model.AgentConfig, phase model.Phase, bundle contextasm.Bundle, prevHash string) (Outcome, error) {
	start := time.Now()

	timeout := r.AgentTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.publish(model.Event{ProjectID: bundle.Project.ProjectID, AgentID: cfg.AgentID, Status: model.EventStatusStarted, Timestamp: start})

	// 1. Context assembly with mandatory validation enabled.
	assembled, err := contextasm.Assemble(cfg, bundle, true)
	if err != nil {
		r.publish(model.Event{ProjectID: bundle.Project.ProjectID, AgentID: cfg.AgentID, Status: model.EventStatusError, Message: err.Error(), Final: true, Timestamp: time.Now()})
		return Outcome{}, err
	}

	// 2. Build the prompt.
	extract, err := r.Regulatory.Extract(runCtx, bundle.Project.Typology)
	if err != nil {
		extract = ""
	}
	prompt := buildPrompt(cfg, phase, extract, assembled)

	// 3. Invoke the LLM provider with retry on transient errors only.
	text, err := r.completeWithRetry(runCtx, prompt)

	elapsed := time.Since(start)

	if err != nil {
		deliberation := model.Deliberation{
			ProjectID:         bundle.Project.ProjectID,
			Phase:             phase,
			AgentID:           cfg.AgentID,
			Decision:          model.DecisionRequestChanges,
			ValidationStatus:  model.ValidationInvalid,
			CreatedAt:         time.Now(),
			LatencyMS:         elapsed.Milliseconds(),
		}
		if errors.Is(err, context.DeadlineExceeded) {
			r.publish(model.Event{ProjectID: bundle.Project.ProjectID, AgentID: cfg.AgentID, Status: model.EventStatusError, Message: "agent timed out", Final: true, Timestamp: time.Now()})
			return Outcome{}, fmt.Errorf("%w: agent %s exceeded %s", model.ErrTimeout, cfg.AgentID, timeout)
		}
		if errors.Is(err, context.Canceled) {
			r.publish(model.Event{ProjectID: bundle.Project.ProjectID, AgentID: cfg.AgentID, Status: model.EventStatusError, Message: "cancelled", Final: true, Timestamp: time.Now()})
			return Outcome{}, fmt.Errorf("%w: agent %s", model.ErrCancelled, cfg.AgentID)
		}
		// Transient exhaustion: still persist the failed attempt per the
		// "never crash the phase" discipline, then report failure upward.
		hash, appendErr := r.appendDeliberation(ctx, bundle.Project.ProjectID, deliberation, prevHash)
		if appendErr != nil {
			return Outcome{}, appendErr
		}
		r.publish(model.Event{ProjectID: bundle.Project.ProjectID, AgentID: cfg.AgentID, Status: model.EventStatusError, Message: err.Error(), Final: true, Timestamp: time.Now()})
		return Outcome{Deliberation: deliberation, Hash: hash}, fmt.Errorf("%w: %v", model.ErrTransient, err)
	}

	// 4. Parse response, validate+correct.
	output, parseErr := parseStructuredOutput(text)
	var validationStatus model.ValidationStatus
	var decision model.Decision
	var corrections []string

	if parseErr != nil {
		validationStatus = model.ValidationInvalid
		decision = model.DecisionRequestChanges
		output = map[string]any{}
	} else {
		result, vErr := r.Schemas.ValidateAndCorrect(cfg.AgentID, output)
		if vErr != nil {
			validationStatus = model.ValidationInvalid
			decision = model.DecisionRequestChanges
		} else if !result.Valid {
			validationStatus = model.ValidationInvalid
			decision = model.DecisionRequestChanges
			output = result.CorrectedOutput
			corrections = result.CorrectionsApplied
		} else {
			output = result.CorrectedOutput
			corrections = result.CorrectionsApplied
			if len(corrections) > 0 {
				validationStatus = model.ValidationCorrected
			} else {
				validationStatus = model.ValidationValid
			}
			decision = decisionFromOutput(output)
			if c, cErr := r.Schemas.Completeness(cfg.AgentID, output); cErr == nil && c.Percent < 50 {
				validationStatus = model.ValidationInvalid
				decision = model.DecisionRequestChanges
			}
		}
	}

	requiresHumanReview, _ := output["requires_human_review"].(bool)

	deliberation := model.Deliberation{
		ProjectID:           bundle.Project.ProjectID,
		Phase:               phase,
		AgentID:             cfg.AgentID,
		Decision:            decision,
		StructuredOutput:    output,
		RequiresHumanReview: requiresHumanReview,
		CreatedAt:           time.Now(),
		ValidationStatus:    validationStatus,
		CorrectionsApplied:  corrections,
		LatencyMS:           elapsed.Milliseconds(),
	}

	// 5/6. Persist (atomic append). On storage failure: abort, state unchanged.
	hash, err := r.appendDeliberation(ctx, bundle.Project.ProjectID, deliberation, prevHash)
	if err != nil {
		r.publish(model.Event{ProjectID: bundle.Project.ProjectID, AgentID: cfg.AgentID, Status: model.EventStatusError, Message: err.Error(), Final: true, Timestamp: time.Now()})
		return Outcome{}, err
	}

	// 7. Emit completion event with agent id, decision, elapsed time.
	r.publish(model.Event{
		ProjectID: bundle.Project.ProjectID,
		AgentID:   cfg.AgentID,
		Status:    model.EventStatusComplete,
		Message:   string(decision),
		Progress:  100,
		Final:     true,
		Timestamp: time.Now(),
		Data:      map[string]any{"elapsed_ms": elapsed.Milliseconds(), "decision": string(decision)},
	})

	return Outcome{Deliberation: deliberation, Hash: hash}, nil
}

func (r *Runner) appendDeliberation(ctx context.Context, projectID string, d model.Deliberation, prevHash string) (string, error) {
	entry := model.Entry{Kind: model.EntryKindDeliberation, Deliberation: &d, PrevHash: prevHash}
	hash, err := r.Store.Append(ctx, projectID, entry, prevHash)
	if err != nil {
		return "", &model.StorageFailureError{ProjectID: projectID, Op: "append_deliberation", Err: err}
	}
	return hash, nil
}

// completeWithRetry calls the provider, retrying up to maxRetries times
// with exponential backoff (2s, 6s) only when the error is transient
// (ErrTransient or a deadline exceeded from an upstream timeout wrapper —
// never on a schema violation, which the provider never produces since it
// only returns raw text).
func (r *Runner) completeWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	delay := retryBaseDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		text, err := r.Provider.Complete(ctx, prompt, defaultMaxTokens)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			return "", err
		}
		if !isTransient(err) {
			return "", err
		}
		if attempt == maxRetries {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		r.sleepFor(delay)
		if delay < retryMaxDelay {
			delay = retryMaxDelay
		}
	}
	return "", lastErr
}

func isTransient(err error) bool {
	return errors.Is(err, model.ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

func buildPrompt(cfg model.AgentConfig, phase model.Phase, regulatoryExtract string, context map[string]any) string {
	serialized, _ := json.Marshal(context)

	var sb strings.Builder
	fmt.Fprintf(&sb, "SYSTEM ROLE: %s\n\n", cfg.AgentID)
	fmt.Fprintf(&sb, "REGULATORY EXTRACT:\n%s\n\n", regulatoryExtract)
	fmt.Fprintf(&sb, "PHASE CHECKLIST: %s (schema %s)\n\n", phase, cfg.OutputSchemaID)
	fmt.Fprintf(&sb, "CONTEXT:\n%s\n\n", serialized)
	sb.WriteString("Respond with a single JSON object conforming to the declared output schema.")
	return sb.String()
}

func parseStructuredOutput(text string) (map[string]any, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("failed to parse structured output: %w", err)
	}
	return out, nil
}

func decisionFromOutput(output map[string]any) model.Decision {
	if d, ok := output["decision"].(string); ok {
		switch model.Decision(d) {
		case model.DecisionApprove, model.DecisionApproveWithConditions, model.DecisionRequestChanges, model.DecisionReject:
			return model.Decision(d)
		}
	}
	return model.DecisionApprove
}
