package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revisoria/poe-engine/pkg/lock"
	"github.com/revisoria/poe-engine/pkg/model"
	"github.com/revisoria/poe-engine/pkg/phaseorch"
)

type noopStore struct {
	appends []model.Entry
}

func (s *noopStore) Append(_ context.Context, _ string, entry model.Entry, _ string) (string, error) {
	s.appends = append(s.appends, entry)
	return "hash", nil
}

func (s *noopStore) Read(_ context.Context, _ string) ([]model.Entry, error) {
	return s.appends, nil
}

func blockingAgents() []model.AgentConfig {
	return []model.AgentConfig{
		{AgentID: "A1_SPONSOR", CanBlock: true},
		{AgentID: "A3_FISCAL", CanBlock: true},
		{AgentID: "A7_DEFENSE", CanBlock: false},
	}
}

func advanceTo(t *testing.T, r *Registry, project model.Project, target State) {
	t.Helper()
	for r.CurrentState(project.ProjectID) != target {
		res, err := r.Attempt(context.Background(), project, nil, phaseorch.Verdict{}, lock.Context{}, "system", "setup")
		require.NoError(t, err)
		require.True(t, res.Accepted, "stuck at %s advancing toward %s", res.From, target)
	}
}

func TestAttempt_ConsensusApproveMovesToApprovedF0(t *testing.T) {
	store := &noopStore{}
	r := NewRegistry(store, 2)
	project := model.Project{ProjectID: "proj-1", FasesCompletadas: []model.Phase{model.PhaseF0, model.PhaseF1}}

	advanceTo(t, r, project, StateConsolidation)

	verdict := phaseorch.Verdict{DecisionsByAgent: map[string]model.Deliberation{
		"A1_SPONSOR": {AgentID: "A1_SPONSOR", Decision: model.DecisionApprove},
		"A3_FISCAL":  {AgentID: "A3_FISCAL", Decision: model.DecisionApprove},
	}}
	f2Ctx := lock.Context{Deliberations: []model.Deliberation{
		{AgentID: "A1_SPONSOR", Decision: model.DecisionApprove},
		{AgentID: "A3_FISCAL", Decision: model.DecisionApprove},
		{AgentID: "A5_FINANCE", Decision: model.DecisionApprove, StructuredOutput: map[string]any{"budget_confirmed": true}},
	}}

	res, err := r.Attempt(context.Background(), project, blockingAgents(), verdict, f2Ctx, "system", "consolidation")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, StateApprovedF0, res.To)
	require.Len(t, store.appends, 3) // INTAKE->PARALLEL_VALIDATION->CONSOLIDATION->APPROVED_F0
	last := store.appends[len(store.appends)-1]
	assert.Equal(t, model.EntryKindTransition, last.Kind)
	assert.Equal(t, model.PhaseF2, last.Transition.To)
}

func TestAttempt_MixedDecisionsEntersIterativeReview(t *testing.T) {
	r := NewRegistry(&noopStore{}, 2)
	project := model.Project{ProjectID: "proj-2"}
	advanceTo(t, r, project, StateConsolidation)

	verdict := phaseorch.Verdict{DecisionsByAgent: map[string]model.Deliberation{
		"A1_SPONSOR": {AgentID: "A1_SPONSOR", Decision: model.DecisionApprove},
		"A3_FISCAL":  {AgentID: "A3_FISCAL", Decision: model.DecisionApproveWithConditions},
	}}

	res, err := r.Attempt(context.Background(), project, blockingAgents(), verdict, lock.Context{}, "system", "mixed")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, StateIterativeReview, res.To)
}

func TestAttempt_IterationCapEscalatesToHumanReview(t *testing.T) {
	r := NewRegistry(&noopStore{}, 2)
	project := model.Project{ProjectID: "proj-3"}
	advanceTo(t, r, project, StateConsolidation)

	disagreement := phaseorch.Verdict{DecisionsByAgent: map[string]model.Deliberation{
		"A1_SPONSOR": {AgentID: "A1_SPONSOR", Decision: model.DecisionApprove},
		"A3_FISCAL":  {AgentID: "A3_FISCAL", Decision: model.DecisionRequestChanges},
	}}

	// cycle 1: CONSOLIDATION -> ITERATIVE_REVIEW
	res, err := r.Attempt(context.Background(), project, blockingAgents(), disagreement, lock.Context{}, "system", "cycle")
	require.NoError(t, err)
	require.Equal(t, StateIterativeReview, res.To)

	// cycle 1 loop-back: ITERATIVE_REVIEW -> CONSOLIDATION
	res, err = r.Attempt(context.Background(), project, blockingAgents(), disagreement, lock.Context{}, "system", "loopback")
	require.NoError(t, err)
	require.Equal(t, StateConsolidation, res.To)

	// cycle 2: CONSOLIDATION -> ITERATIVE_REVIEW
	res, err = r.Attempt(context.Background(), project, blockingAgents(), disagreement, lock.Context{}, "system", "cycle2")
	require.NoError(t, err)
	require.Equal(t, StateIterativeReview, res.To)

	// cycle 2 loop-back: ITERATIVE_REVIEW -> CONSOLIDATION
	res, err = r.Attempt(context.Background(), project, blockingAgents(), disagreement, lock.Context{}, "system", "loopback2")
	require.NoError(t, err)
	require.Equal(t, StateConsolidation, res.To)

	// cycle 3: CONSOLIDATION -> ITERATIVE_REVIEW
	res, err = r.Attempt(context.Background(), project, blockingAgents(), disagreement, lock.Context{}, "system", "cycle3")
	require.NoError(t, err)
	require.Equal(t, StateIterativeReview, res.To)

	// cap exceeded: ITERATIVE_REVIEW -> HUMAN_ESCALATED
	res, err = r.Attempt(context.Background(), project, blockingAgents(), disagreement, lock.Context{}, "system", "escalate")
	require.NoError(t, err)
	assert.Equal(t, StateHumanEscalated, res.To)
	assert.True(t, res.Escalated)
	assert.True(t, res.To.Terminal())
}

func TestAttempt_F2LockBlockedWithoutSponsorApprovalRefusesAndStays(t *testing.T) {
	r := NewRegistry(&noopStore{}, 2)
	project := model.Project{
		ProjectID:        "proj-4",
		Typology:         model.TypologyIntragroupManagementFee,
		Amount:           model.CentsFromPesos(8_000_000),
		FasesCompletadas: []model.Phase{model.PhaseF0, model.PhaseF1},
	}
	advanceTo(t, r, project, StateConsolidation)

	verdict := phaseorch.Verdict{DecisionsByAgent: map[string]model.Deliberation{
		"A1_SPONSOR": {AgentID: "A1_SPONSOR", Decision: model.DecisionApprove},
		"A3_FISCAL":  {AgentID: "A3_FISCAL", Decision: model.DecisionApprove},
	}}

	// Consensus says APPROVE, so the machine tries to enter APPROVED_F0,
	// whose phase F2 is a hard lock; the lock context below has no A1
	// approval recorded, so the lock itself must refuse independently of
	// the orchestrator's consensus.
	res, err := r.Attempt(context.Background(), project, blockingAgents(), verdict, lock.Context{}, "system", "advance")
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, StateConsolidation, res.From)
	assert.Equal(t, StateConsolidation, res.To)

	var found bool
	for _, b := range res.Blockers {
		if lock.ActionFor(b) == "Obtener aprobación de A1-Sponsor" {
			found = true
		}
	}
	assert.True(t, found, "expected an A1 sponsor-approval blocker, got %v", res.Blockers)
	assert.Equal(t, StateConsolidation, r.CurrentState(project.ProjectID))
}

// TestAttempt_DrivesProjectThroughEveryPhaseToClosed exercises the full
// macro-state chain named in §4.7, including the F6 and F8 hard locks
// added alongside F2, confirming CLOSED (F9) is reachable and distinct
// from PAYMENT_RELEASE's F8 gate.
func TestAttempt_DrivesProjectThroughEveryPhaseToClosed(t *testing.T) {
	r := NewRegistry(&noopStore{}, 2)
	project := model.Project{
		ProjectID: "proj-e2e",
		Typology:  model.TypologyConsulting,
		Amount:    model.CentsFromPesos(1_000_000),
	}
	agents := blockingAgents()

	advanceTo(t, r, project, StateConsolidation)

	// CONSOLIDATION -> APPROVED_F0, gated by F2.
	project.FasesCompletadas = []model.Phase{model.PhaseF0, model.PhaseF1}
	approveAll := phaseorch.Verdict{DecisionsByAgent: map[string]model.Deliberation{
		"A1_SPONSOR": {AgentID: "A1_SPONSOR", Decision: model.DecisionApprove},
		"A3_FISCAL":  {AgentID: "A3_FISCAL", Decision: model.DecisionApprove},
	}}
	f2Ctx := lock.Context{Deliberations: []model.Deliberation{
		{AgentID: "A1_SPONSOR", Decision: model.DecisionApprove},
		{AgentID: "A3_FISCAL", Decision: model.DecisionApprove},
		{AgentID: "A5_FINANCE", Decision: model.DecisionApprove, StructuredOutput: map[string]any{"budget_confirmed": true}},
	}}
	res, err := r.Attempt(context.Background(), project, agents, approveAll, f2Ctx, "system", "f2-gate")
	require.NoError(t, err)
	require.True(t, res.Accepted, "blockers: %v", res.Blockers)
	require.Equal(t, StateApprovedF0, res.To)

	// APPROVED_F0 -> FORMALIZATION_LEGAL -> EXECUTION -> DELIVERY (linear).
	project.FasesCompletadas = append(project.FasesCompletadas, model.PhaseF2)
	res, err = r.Attempt(context.Background(), project, agents, phaseorch.Verdict{}, lock.Context{}, "system", "f3")
	require.NoError(t, err)
	require.Equal(t, StateFormalizationLegal, res.To)

	project.FasesCompletadas = append(project.FasesCompletadas, model.PhaseF3)
	res, err = r.Attempt(context.Background(), project, agents, phaseorch.Verdict{}, lock.Context{}, "system", "f4")
	require.NoError(t, err)
	require.Equal(t, StateExecution, res.To)

	project.FasesCompletadas = append(project.FasesCompletadas, model.PhaseF4)
	res, err = r.Attempt(context.Background(), project, agents, phaseorch.Verdict{}, lock.Context{}, "system", "f5")
	require.NoError(t, err)
	require.Equal(t, StateDelivery, res.To)

	// DELIVERY -> PAYMENT, gated by F6.
	project.FasesCompletadas = append(project.FasesCompletadas, model.PhaseF5)
	f6Ctx := lock.Context{
		Deliberations: []model.Deliberation{
			{AgentID: "A3_FISCAL", Decision: model.DecisionApprove, StructuredOutput: map[string]any{"critical_approval": true}},
			{AgentID: "A4_LEGAL", Decision: model.DecisionApprove, StructuredOutput: map[string]any{"critical_approval": true}},
		},
		MaterialityCompletenessPercent: 90,
		InvoiceDescription:             "Consulting services rendered for the Q3 payroll outsourcing engagement per SOW-2026-014",
		ContractAmount:                 model.CentsFromPesos(1_000_000),
		InvoiceAmount:                  model.CentsFromPesos(1_010_000),
		ThreeWayMatchTolerance:         0.05,
	}
	res, err = r.Attempt(context.Background(), project, agents, phaseorch.Verdict{}, f6Ctx, "system", "f6-gate")
	require.NoError(t, err)
	require.True(t, res.Accepted, "blockers: %v", res.Blockers)
	require.Equal(t, StatePayment, res.To)

	// PAYMENT -> PAYMENT_PREPARATION (linear, F7).
	project.FasesCompletadas = append(project.FasesCompletadas, model.PhaseF6)
	res, err = r.Attempt(context.Background(), project, agents, phaseorch.Verdict{}, lock.Context{}, "system", "f7")
	require.NoError(t, err)
	require.Equal(t, StatePaymentPreparation, res.To)

	// PAYMENT_PREPARATION -> PAYMENT_RELEASE, gated by F8 ("F6 and F7
	// completed" per spec.md §4.6 and pkg/lock's evaluateF8).
	project.FasesCompletadas = append(project.FasesCompletadas, model.PhaseF7)
	f8Ctx := lock.Context{Deliberations: []model.Deliberation{
		{AgentID: "A5_FINANCE", Decision: model.DecisionApprove},
	}}
	res, err = r.Attempt(context.Background(), project, agents, phaseorch.Verdict{}, f8Ctx, "system", "f8-gate")
	require.NoError(t, err)
	require.True(t, res.Accepted, "blockers: %v", res.Blockers)
	require.Equal(t, StatePaymentRelease, res.To)

	// PAYMENT_RELEASE -> CLOSED: the true terminal phase, F9, distinct
	// from PAYMENT_RELEASE's own F8 lock gate.
	res, err = r.Attempt(context.Background(), project, agents, phaseorch.Verdict{}, lock.Context{}, "system", "close")
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.Equal(t, StateClosed, res.To)
	assert.True(t, res.To.Terminal())
	assert.Equal(t, model.PhaseF9, PhaseFor(res.To))
	assert.Equal(t, model.PhaseF8, PhaseFor(StatePaymentRelease), "F8's lock gate must stay distinct from F9's terminal CLOSED")
}

// TestAttempt_F8LockBlockedWithoutF7CompletionRefusesAndStays confirms the
// bug the above test's F7/F9 wiring fixes: without F7 recorded as
// completed, the F8 gate ("F6 and F7 completed") must refuse release even
// when every other F8 condition holds.
func TestAttempt_F8LockBlockedWithoutF7CompletionRefusesAndStays(t *testing.T) {
	r := NewRegistry(&noopStore{}, 2)
	e := r.entryFor("proj-f8-blocked")
	e.current = StatePaymentPreparation

	project := model.Project{
		ProjectID:        "proj-f8-blocked",
		FasesCompletadas: []model.Phase{model.PhaseF6}, // F7 deliberately absent
	}
	f8Ctx := lock.Context{Deliberations: []model.Deliberation{
		{AgentID: "A5_FINANCE", Decision: model.DecisionApprove},
	}}

	res, err := r.Attempt(context.Background(), project, blockingAgents(), phaseorch.Verdict{}, f8Ctx, "system", "f8-gate")
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, StatePaymentPreparation, res.From)

	var found bool
	for _, b := range res.Blockers {
		if b == "F7 not completed" {
			found = true
		}
	}
	assert.True(t, found, "expected an F7-not-completed blocker, got %v", res.Blockers)
}

func TestAttempt_TerminalStateRefusesFurtherAttempts(t *testing.T) {
	r := NewRegistry(&noopStore{}, 2)
	project := model.Project{ProjectID: "proj-5"}
	advanceTo(t, r, project, StateConsolidation)

	verdict := phaseorch.Verdict{DecisionsByAgent: map[string]model.Deliberation{
		"A1_SPONSOR": {AgentID: "A1_SPONSOR", Decision: model.DecisionReject},
		"A3_FISCAL":  {AgentID: "A3_FISCAL", Decision: model.DecisionReject},
	}}
	res, err := r.Attempt(context.Background(), project, blockingAgents(), verdict, lock.Context{}, "system", "reject")
	require.NoError(t, err)
	require.Equal(t, StateRejectedF0, res.To)

	_, err = r.Attempt(context.Background(), project, blockingAgents(), verdict, lock.Context{}, "system", "again")
	assert.Error(t, err)
}
