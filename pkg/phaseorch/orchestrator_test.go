package phaseorch

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revisoria/poe-engine/pkg/agentrun"
	"github.com/revisoria/poe-engine/pkg/contextasm"
	"github.com/revisoria/poe-engine/pkg/model"
	"github.com/revisoria/poe-engine/pkg/validate"
)

// fakeProvider lets each test supply a canned response keyed off whatever
// the test needs to inspect in the prompt (agent id, prior deliberations).
type fakeProvider struct {
	complete func(prompt string) (string, error)
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.complete(prompt)
}

type fakeRegulatory struct{}

func (fakeRegulatory) Extract(ctx context.Context, typology model.Typology) (string, error) {
	return "extract", nil
}

// fakeStore hands out a distinct hash per append, mirroring the chained
// defense file store closely enough for the orchestrator's own bookkeeping
// (it never reads back entries).
type fakeStore struct {
	n int64
}

func (s *fakeStore) Append(ctx context.Context, projectID string, entry model.Entry, prevHash string) (string, error) {
	n := atomic.AddInt64(&s.n, 1)
	return fmt.Sprintf("hash-%d", n), nil
}

func (s *fakeStore) Read(ctx context.Context, projectID string) ([]model.Entry, error) {
	return nil, nil
}

func approveJSON() string { return `{"decision":"APPROVE"}` }

func newTestRunner(provider model.Provider, schemas ...validate.Schema) *agentrun.Runner {
	return &agentrun.Runner{
		Schemas:      validate.NewRegistry(schemas...),
		Regulatory:   fakeRegulatory{},
		Provider:     provider,
		Store:        &fakeStore{},
		AgentTimeout: time.Second,
	}
}

func testBundle() contextasm.Bundle {
	return contextasm.Bundle{Project: model.Project{ProjectID: "proj-1"}}
}

// TestRun_OrderedTierObservesIndependentTierDeliberations confirms the
// scheduling shape at the heart of C5: the ordered tier only runs after the
// independent tier has finished, and sees its results via
// prior_deliberations.
func TestRun_OrderedTierObservesIndependentTierDeliberations(t *testing.T) {
	provider := &fakeProvider{complete: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "SYSTEM ROLE: T1"):
			return `{"decision":"APPROVE"}`, nil
		case strings.Contains(prompt, "SYSTEM ROLE: T2"):
			return `{"decision":"APPROVE_WITH_CONDITIONS"}`, nil
		case strings.Contains(prompt, "SYSTEM ROLE: TO"):
			if strings.Contains(prompt, `"agent_id":"T1"`) && strings.Contains(prompt, `"agent_id":"T2"`) {
				return `{"decision":"APPROVE"}`, nil
			}
			return `{"decision":"REJECT"}`, nil
		default:
			return "", fmt.Errorf("unexpected agent in prompt: %s", prompt)
		}
	}}

	runner := newTestRunner(provider,
		validate.Schema{AgentID: "T1"},
		validate.Schema{AgentID: "T2"},
		validate.Schema{AgentID: "TO"},
	)
	o := &Orchestrator{Runner: runner, PhaseTimeout: 5 * time.Second}

	agents := []model.AgentConfig{
		{AgentID: "T1", CanBlock: true},
		{AgentID: "T2", CanBlock: true},
		{AgentID: "TO", CanBlock: true, Ordered: true, RequiredContextFields: model.ContextFields{Desirable: []string{"prior_deliberations"}}},
	}

	verdict, err := o.Run(context.Background(), model.PhaseF1, agents, testBundle(), "prev-hash")
	require.NoError(t, err)
	require.False(t, verdict.Incomplete)

	to, ok := verdict.DecisionsByAgent["TO"]
	require.True(t, ok, "expected the ordered agent to have run and recorded a deliberation")
	assert.Equal(t, model.DecisionApprove, to.Decision, "ordered agent should have seen both independent-tier deliberations and approved")
	assert.Equal(t, model.DecisionApproveWithConditions, verdict.Aggregate, "aggregate must surface T2's conditional approval as the worst among can_block agents")
}

// TestRun_CancellationMidFanOutMarksIncompleteAndSkipsOrderedTier confirms
// that a context cancelled before (or during) the independent tier's fan-out
// propagates: independent agents return a cancellation error, the ordered
// tier short-circuits without ever calling the provider, and every can_block
// agent without a recorded deliberation marks the verdict Incomplete.
func TestRun_CancellationMidFanOutMarksIncompleteAndSkipsOrderedTier(t *testing.T) {
	var orderedCalled atomic.Bool
	provider := &fakeProvider{complete: func(prompt string) (string, error) {
		if strings.Contains(prompt, "SYSTEM ROLE: TO") {
			orderedCalled.Store(true)
		}
		return approveJSON(), nil
	}}

	runner := newTestRunner(provider,
		validate.Schema{AgentID: "T1"},
		validate.Schema{AgentID: "T2"},
		validate.Schema{AgentID: "TO"},
	)
	o := &Orchestrator{Runner: runner, PhaseTimeout: 5 * time.Second}

	agents := []model.AgentConfig{
		{AgentID: "T1", CanBlock: true},
		{AgentID: "T2", CanBlock: true},
		{AgentID: "TO", CanBlock: true, Ordered: true},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verdict, err := o.Run(ctx, model.PhaseF1, agents, testBundle(), "prev-hash")
	require.NoError(t, err, "Run itself must not return an error on cancellation, only report it in the verdict")

	assert.True(t, verdict.Incomplete, "a cancelled phase must mark the verdict Incomplete")
	assert.Equal(t, model.DecisionReject, verdict.Aggregate, "a missing can_block deliberation must surface as the most severe decision")
	assert.Empty(t, verdict.DecisionsByAgent, "no agent should have produced a deliberation once the phase context was already cancelled")
	assert.False(t, orderedCalled.Load(), "the ordered tier must short-circuit on a cancelled phase context instead of invoking the provider")
}

// TestRun_NonBlockingAgentMalformedResponseDoesNotAffectAggregate confirms
// Incomplete and Aggregate only track can_block agents: a non-blocking
// agent whose response fails to parse still gets a recorded
// REQUEST_CHANGES deliberation (Run returns no error for an unparseable
// response), and that recorded decision must not affect the
// blocking aggregate.
func TestRun_NonBlockingAgentMalformedResponseDoesNotAffectAggregate(t *testing.T) {
	provider := &fakeProvider{complete: func(prompt string) (string, error) {
		if strings.Contains(prompt, "SYSTEM ROLE: ADVISORY") {
			return "not json at all", nil
		}
		return approveJSON(), nil
	}}

	runner := newTestRunner(provider,
		validate.Schema{AgentID: "BLOCKER"},
		validate.Schema{AgentID: "ADVISORY"},
	)
	o := &Orchestrator{Runner: runner, PhaseTimeout: 5 * time.Second}

	agents := []model.AgentConfig{
		{AgentID: "BLOCKER", CanBlock: true},
		{AgentID: "ADVISORY", CanBlock: false},
	}

	verdict, err := o.Run(context.Background(), model.PhaseF1, agents, testBundle(), "prev-hash")
	require.NoError(t, err)

	assert.False(t, verdict.Incomplete)
	assert.Equal(t, model.DecisionApprove, verdict.Aggregate)
	_, advisoryRecorded := verdict.DecisionsByAgent["ADVISORY"]
	assert.True(t, advisoryRecorded, "a malformed response still produces a recorded (REQUEST_CHANGES) deliberation, not a missing one")
	assert.Equal(t, model.DecisionRequestChanges, verdict.DecisionsByAgent["ADVISORY"].Decision)
}

// TestRun_RequiredHumanReviewPropagatesFromAnyDeliberation confirms the
// verdict-level flag is an OR across every agent's own requires_human_review
// output, independent of CanBlock.
func TestRun_RequiredHumanReviewPropagatesFromAnyDeliberation(t *testing.T) {
	provider := &fakeProvider{complete: func(prompt string) (string, error) {
		return `{"decision":"APPROVE","requires_human_review":true}`, nil
	}}
	runner := newTestRunner(provider, validate.Schema{AgentID: "T1"})
	o := &Orchestrator{Runner: runner, PhaseTimeout: 5 * time.Second}

	agents := []model.AgentConfig{{AgentID: "T1", CanBlock: true}}
	verdict, err := o.Run(context.Background(), model.PhaseF1, agents, testBundle(), "prev-hash")
	require.NoError(t, err)
	assert.True(t, verdict.RequiredHumanReview)
}
