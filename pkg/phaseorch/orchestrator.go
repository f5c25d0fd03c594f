// Package phaseorch implements the Phase Orchestrator (C5): for a phase, it
// schedules required agents — independent-tier concurrently, ordered-tier
// serially observing prior deliberations — and aggregates a verdict.
// Grounded on the teacher's SubAgentRunner (pkg/agent/orchestrator/runner.go):
// reservation-style concurrency is replaced by errgroup's bounded fan-out
// (golang.org/x/sync/errgroup, pulled in because this shape is exactly what
// errgroup is for), but the "launch independents, then run ordered agents
// serially over the gathered results" structure is the teacher's own.
package phaseorch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/revisoria/poe-engine/pkg/agentrun"
	"github.com/revisoria/poe-engine/pkg/contextasm"
	"github.com/revisoria/poe-engine/pkg/model"
)

// Verdict is C5's output.
type Verdict struct {
	DecisionsByAgent    map[string]model.Deliberation
	Aggregate           model.Decision
	RequiredHumanReview bool
	Incomplete          bool
	LastHash            string
}

// Orchestrator runs a phase's agents via a Runner.
type Orchestrator struct {
	Runner      *agentrun.Runner
	PhaseTimeout time.Duration // default 3x AgentTimeout per spec
}

// agentResult pairs an agent's outcome with any error from Run, so a
// missing deliberation (errored run) can be distinguished from a present
// one when aggregating.
type agentResult struct {
	agentID      string
	deliberation *model.Deliberation
	hash         string
	err          error
}

// Run executes phase for project, given the agents configured to
// participate (already filtered to this phase) and the shared document
// bundle. prevHash is the defense file's current head.
func (o *Orchestrator) Run(ctx context.Context, phase model.Phase, agents []model.AgentConfig, bundle contextasm.Bundle, prevHash string) (Verdict, error) {
	phaseTimeout := o.PhaseTimeout
	if phaseTimeout <= 0 {
		agentTimeout := o.Runner.AgentTimeout
		if agentTimeout <= 0 {
			agentTimeout = 60 * time.Second
		}
		phaseTimeout = 3 * agentTimeout
	}
	phaseCtx, cancel := context.WithTimeout(ctx, phaseTimeout)
	defer cancel()

	var independent, ordered []model.AgentConfig
	for _, a := range agents {
		if a.Ordered {
			ordered = append(ordered, a)
		} else {
			independent = append(independent, a)
		}
	}

	results := make(map[string]agentResult, len(agents))
	var mu sync.Mutex
	var headHash string = prevHash

	// 1. Independent tier: launched concurrently via errgroup, bounded by
	// phaseCtx so a cancellation signal stops spawning new runs immediately.
	g, gCtx := errgroup.WithContext(phaseCtx)
	// Each independent agent appends to the defense file against the same
	// prevHash snapshot; the store serializes concurrent appends for a
	// project (see pkg/database.DefenseFileStore), so hashes still chain correctly even
	// though the goroutines race to append.
	for _, a := range independent {
		a := a
		g.Go(func() error {
			outcome, err := o.Runner.Run(gCtx, a, phase, bundle, headHashSnapshot(&mu, &headHash))
			mu.Lock()
			if err == nil {
				headHash = outcome.Hash
			}
			results[a.AgentID] = agentResult{agentID: a.AgentID, deliberation: nonNilDeliberation(outcome, err), hash: outcome.Hash, err: err}
			mu.Unlock()
			// Per spec: on any validation-invalid result, still continue —
			// only a genuine context cancellation should stop the group.
			if gCtx.Err() != nil {
				return gCtx.Err()
			}
			return nil
		})
	}
	_ = g.Wait() // errors are per-agent, recorded in results; group error here only signals cancellation

	// 2. Ordered tier: serial, each observing prior deliberations including
	// the independent tier's.
	priorDeliberations := append([]model.Deliberation(nil), bundle.PriorDeliberations...)
	for _, res := range results {
		if res.deliberation != nil {
			priorDeliberations = append(priorDeliberations, *res.deliberation)
		}
	}

	for _, a := range ordered {
		if phaseCtx.Err() != nil {
			results[a.AgentID] = agentResult{agentID: a.AgentID, err: phaseCtx.Err()}
			continue
		}
		orderedBundle := bundle
		orderedBundle.PriorDeliberations = priorDeliberations
		outcome, err := o.Runner.Run(phaseCtx, a, phase, orderedBundle, headHash)
		if err == nil {
			headHash = outcome.Hash
			priorDeliberations = append(priorDeliberations, outcome.Deliberation)
		}
		results[a.AgentID] = agentResult{agentID: a.AgentID, deliberation: nonNilDeliberation(outcome, err), hash: outcome.Hash, err: err}
	}

	return aggregate(agents, results, headHash), nil
}

// headHashSnapshot reads the current head under lock; independent-tier
// agents each start from the head as of their dispatch moment.
func headHashSnapshot(mu *sync.Mutex, head *string) string {
	mu.Lock()
	defer mu.Unlock()
	return *head
}

func nonNilDeliberation(outcome agentrun.Outcome, err error) *model.Deliberation {
	if err != nil && outcome.Deliberation.AgentID == "" {
		return nil
	}
	d := outcome.Deliberation
	return &d
}

// aggregate computes the phase verdict: APPROVE if every can_block agent
// returned APPROVE or APPROVE_WITH_CONDITIONS, otherwise surfaces the most
// severe decision present. A can_block agent with no deliberation (errored
// or cancelled out) marks the phase Incomplete. RequiredHumanReview is set
// when any recorded deliberation, blocking or not, requires human review.
func aggregate(agents []model.AgentConfig, results map[string]agentResult, headHash string) Verdict {
	decisions := make(map[string]model.Deliberation, len(results))
	humanReview := false
	for id, r := range results {
		if r.deliberation != nil {
			decisions[id] = *r.deliberation
			if r.deliberation.RequiresHumanReview {
				humanReview = true
			}
		}
	}

	worst := model.DecisionApprove
	incomplete := false

	for _, a := range agents {
		if !a.CanBlock {
			continue
		}
		d, ok := decisions[a.AgentID]
		if !ok {
			incomplete = true
			if model.DecisionReject.MoreSevere(worst) {
				worst = model.DecisionReject
			}
			continue
		}
		if d.Decision.MoreSevere(worst) {
			worst = d.Decision
		}
	}

	aggregateDecision := model.DecisionApprove
	if worst != model.DecisionApprove && worst != model.DecisionApproveWithConditions {
		aggregateDecision = worst
	} else if worst == model.DecisionApproveWithConditions {
		aggregateDecision = model.DecisionApproveWithConditions
	}

	return Verdict{
		DecisionsByAgent:    decisions,
		Aggregate:           aggregateDecision,
		RequiredHumanReview: humanReview,
		Incomplete:          incomplete,
		LastHash:            headHash,
	}
}
