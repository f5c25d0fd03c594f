// Package lifecycle implements the State Machine (C7): per-project
// transitions through the named states of §4.7, consensus evaluation
// among can_block agents, the iterative-review cap escalating to human
// review, and hard-lock consultation before any F2/F6/F8-gated entry.
// Grounded on pkg/queue/pool.go's lifecycle bookkeeping — a started-once
// guard and a mutex-protected per-key map — adapted here from worker
// goroutines to per-project state plus a coarse top-level lock guarding
// the map itself, mirroring the two-tier locking in pkg/events/manager.go.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/revisoria/poe-engine/pkg/lock"
	"github.com/revisoria/poe-engine/pkg/model"
	"github.com/revisoria/poe-engine/pkg/phaseorch"
)

const defaultReviewIterationCap = 2

// AttemptResult is the outcome of one transition attempt.
type AttemptResult struct {
	From      State
	To        State
	Accepted  bool
	Blockers  []string
	Escalated bool
}

type projectEntry struct {
	mu             sync.Mutex
	current        State
	iterationCount int
}

// Registry holds one entry per project, each serialized by its own
// mutex, behind a coarse lock that only ever guards map access — the
// same shape as the event hub's subscriber map.
type Registry struct {
	mu                 sync.Mutex
	projects           map[string]*projectEntry
	Store              model.Store
	ReviewIterationCap int
}

// NewRegistry builds a Registry. cap<=0 defaults to 2 per §4.7.
func NewRegistry(store model.Store, reviewIterationCap int) *Registry {
	if reviewIterationCap <= 0 {
		reviewIterationCap = defaultReviewIterationCap
	}
	return &Registry{
		projects:           make(map[string]*projectEntry),
		Store:              store,
		ReviewIterationCap: reviewIterationCap,
	}
}

func (r *Registry) entryFor(projectID string) *projectEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.projects[projectID]
	if !ok {
		e = &projectEntry{current: StateIntake}
		r.projects[projectID] = e
	}
	return e
}

// CurrentState returns a project's current state, INTAKE if never seen.
func (r *Registry) CurrentState(projectID string) State {
	e := r.entryFor(projectID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Attempt evaluates and, if accepted, performs one transition for
// projectID. verdict is the phase orchestrator's output for the phase
// the project is currently consolidating or advancing through; it is
// only consulted when the current state is CONSOLIDATION or
// ITERATIVE_REVIEW. lockCtx is forwarded to the lock evaluator whenever
// the candidate state's phase is a hard lock.
func (r *Registry) Attempt(ctx context.Context, project model.Project, agents []model.AgentConfig, verdict phaseorch.Verdict, lockCtx lock.Context, actor, reason string) (AttemptResult, error) {
	e := r.entryFor(project.ProjectID)
	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.current
	if current.Terminal() {
		return AttemptResult{From: current, To: current}, fmt.Errorf("lifecycle: project %s is in terminal state %s", project.ProjectID, current)
	}

	next, err := r.candidate(e, current, agents, verdict)
	if err != nil {
		return AttemptResult{From: current, To: current}, err
	}

	if lockPhase, ok := hardLockPhase(next); ok {
		result := lock.EvaluateLock(project, lockPhase, lockCtx)
		if !result.Released {
			return AttemptResult{From: current, To: current, Blockers: result.Blockers}, nil
		}
	}

	if r.Store != nil {
		entry := model.Entry{
			Kind: model.EntryKindTransition,
			Transition: &model.Transition{
				From:          phaseOf[current],
				To:            phaseOf[next],
				Reason:        reason,
				Actor:         actor,
				Timestamp:     time.Now(),
				ValidPerRules: true,
			},
		}
		if _, err := r.Store.Append(ctx, project.ProjectID, entry, verdict.LastHash); err != nil {
			return AttemptResult{From: current, To: current}, fmt.Errorf("lifecycle: append transition: %w", err)
		}
	}

	e.current = next
	if next == StateApprovedF0 || next == StateRejectedF0 {
		e.iterationCount = 0
	}

	return AttemptResult{From: current, To: next, Accepted: true, Escalated: next == StateHumanEscalated}, nil
}

// candidate resolves the next state for current, without consulting any
// hard lock. CONSOLIDATION and ITERATIVE_REVIEW need the phase verdict;
// every other state has a fixed linear successor.
func (r *Registry) candidate(e *projectEntry, current State, agents []model.AgentConfig, verdict phaseorch.Verdict) (State, error) {
	switch current {
	case StateConsolidation:
		return consensus(agents, verdict), nil
	case StateIterativeReview:
		e.iterationCount++
		if e.iterationCount > r.ReviewIterationCap {
			return StateHumanEscalated, nil
		}
		return StateConsolidation, nil
	default:
		next, ok := linearNext[current]
		if !ok {
			return "", fmt.Errorf("lifecycle: no defined transition from state %s", current)
		}
		return next, nil
	}
}

// consensus implements §4.7's rule literally: unanimous APPROVE among
// can_block agents moves to APPROVED_F0, unanimous REJECT moves to
// REJECTED_F0, anything else — including a mix with
// APPROVE_WITH_CONDITIONS, or a missing deliberation — is not agreement
// and enters ITERATIVE_REVIEW.
func consensus(agents []model.AgentConfig, verdict phaseorch.Verdict) State {
	if verdict.Incomplete {
		return StateIterativeReview
	}

	sawBlocking := false
	allApprove, allReject := true, true
	for _, a := range agents {
		if !a.CanBlock {
			continue
		}
		sawBlocking = true
		d, ok := verdict.DecisionsByAgent[a.AgentID]
		if !ok {
			return StateIterativeReview
		}
		if d.Decision != model.DecisionApprove {
			allApprove = false
		}
		if d.Decision != model.DecisionReject {
			allReject = false
		}
	}
	if !sawBlocking {
		return StateApprovedF0
	}
	switch {
	case allApprove:
		return StateApprovedF0
	case allReject:
		return StateRejectedF0
	default:
		return StateIterativeReview
	}
}

// hardLockPhase reports whether entering state requires a C6 consult,
// and the phase to evaluate it against.
func hardLockPhase(state State) (model.Phase, bool) {
	phase, ok := phaseOf[state]
	if !ok {
		return "", false
	}
	return phase, ok && phase.IsHardLock()
}
