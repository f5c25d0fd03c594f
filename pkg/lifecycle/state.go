package lifecycle

import "github.com/revisoria/poe-engine/pkg/model"

// State is one node of the C7 state machine. Distinct from model.Phase
// (the F0..F9 lifecycle marker): State tracks the finer-grained decision
// flow around each phase transition, the way the original system names
// its F0-consolidation sub-states explicitly.
type State string

const (
	StateIntake             State = "INTAKE"
	StateParallelValidation State = "PARALLEL_VALIDATION"
	StateConsolidation      State = "CONSOLIDATION"
	StateApprovedF0         State = "APPROVED_F0"
	StateRejectedF0         State = "REJECTED_F0"
	StateIterativeReview    State = "ITERATIVE_REVIEW"
	StateFormalizationLegal State = "FORMALIZATION_LEGAL"
	StateExecution          State = "EXECUTION"
	StateDelivery           State = "DELIVERY"
	StatePayment            State = "PAYMENT"
	// StatePaymentPreparation is F7 ("payment preparation"): a linear state
	// entered once the F6 invoice-acceptance lock has released, and whose
	// completion (via the transition out of it) is what lets F8's
	// "F6 and F7 completed" predicate ever be satisfiable.
	StatePaymentPreparation State = "PAYMENT_PREPARATION"
	// StatePaymentRelease is F8's hard-lock gate itself ("may-release-payment"),
	// distinct from CLOSED: entering it is what triggers the C6 consult,
	// the same way APPROVED_F0 is F2's own gate state rather than the phase
	// that follows it.
	StatePaymentRelease State = "PAYMENT_RELEASE"
	StateClosed         State = "CLOSED"
	StateHumanEscalated State = "HUMAN_ESCALATED"
)

// linearNext is the unconditional successor of each state that doesn't
// require a consensus decision of its own. States absent from this table
// (CONSOLIDATION, ITERATIVE_REVIEW) have bespoke handling in Registry.Attempt.
var linearNext = map[State]State{
	StateIntake:             StateParallelValidation,
	StateParallelValidation: StateConsolidation,
	StateApprovedF0:         StateFormalizationLegal,
	StateFormalizationLegal: StateExecution,
	StateExecution:          StateDelivery,
	StateDelivery:           StatePayment,
	StatePayment:            StatePaymentPreparation,
	StatePaymentPreparation: StatePaymentRelease,
	StatePaymentRelease:     StateClosed,
}

// phaseOf names the model.Phase a state corresponds to, for recording
// Transition entries and for deciding which states require a C6 lock
// consult before entry ("a transition attempt to a state whose phase is
// a hard lock consults C6"). CLOSED maps to F9, the true terminal phase,
// distinct from PAYMENT_RELEASE's F8 lock gate.
var phaseOf = map[State]model.Phase{
	StateIntake:             model.PhaseF0,
	StateParallelValidation: model.PhaseF1,
	StateConsolidation:      model.PhaseF1,
	StateApprovedF0:         model.PhaseF2,
	StateRejectedF0:         model.PhaseF0,
	StateIterativeReview:    model.PhaseF1,
	StateFormalizationLegal: model.PhaseF3,
	StateExecution:          model.PhaseF4,
	StateDelivery:           model.PhaseF5,
	StatePayment:            model.PhaseF6,
	StatePaymentPreparation: model.PhaseF7,
	StatePaymentRelease:     model.PhaseF8,
	StateClosed:             model.PhaseF9,
	StateHumanEscalated:     model.PhaseF1,
}

// Terminal reports whether s has no further transitions.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateRejectedF0 || s == StateHumanEscalated
}

// PhaseFor returns the canonical model.Phase a state corresponds to, for
// callers outside this package that need to record or report a
// Transition (e.g. pkg/api persisting an accepted advance).
func PhaseFor(s State) model.Phase {
	return phaseOf[s]
}
