package model

// Decision is an agent's verdict on a deliberation.
type Decision string

const (
	DecisionApprove               Decision = "APPROVE"
	DecisionApproveWithConditions Decision = "APPROVE_WITH_CONDITIONS"
	DecisionRequestChanges        Decision = "REQUEST_CHANGES"
	DecisionReject                Decision = "REJECT"
)

// Severity orders decisions from least to most severe, used by the phase
// orchestrator to surface "the most severe" verdict when aggregating.
var severityRank = map[Decision]int{
	DecisionApprove:               0,
	DecisionApproveWithConditions: 1,
	DecisionRequestChanges:        2,
	DecisionReject:                3,
}

// MoreSevere reports whether a is strictly more severe than b.
func (a Decision) MoreSevere(b Decision) bool {
	return severityRank[a] > severityRank[b]
}

// CriticalApproval names a VBC ("visto bueno de cumplimiento") kind issued
// by A3_FISCAL or A4_LEGAL and consulted by the F6 lock predicate.
type CriticalApproval string

const (
	CriticalApprovalFiscal CriticalApproval = "VBC_FISCAL"
	CriticalApprovalLegal  CriticalApproval = "VBC_LEGAL"
)

// ContextFields splits an agent's required context field paths into the two
// obligatoriness tiers the context assembler (C3) enforces.
type ContextFields struct {
	Mandatory []string
	Desirable []string
}

// AgentConfig is static per release; it is loaded and merged by pkg/config,
// never mutated by the core at runtime.
type AgentConfig struct {
	AgentID                string
	ParticipatingPhases    map[Phase]bool
	CanBlock               bool
	IssuesCriticalApproval CriticalApproval // empty when the agent issues none
	OutputSchemaID         string
	RequiredContextFields  ContextFields
	// Ordered is true for agents that must run in the orchestrator's
	// ordered tier (observing all independent-tier deliberations first),
	// e.g. A7_DEFENSE which summarizes the others.
	Ordered bool
}

// ParticipatesIn reports whether the agent is configured to run in phase.
func (a AgentConfig) ParticipatesIn(phase Phase) bool {
	return a.ParticipatingPhases[phase]
}
