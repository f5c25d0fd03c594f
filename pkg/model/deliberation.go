package model

import "time"

// ValidationStatus records the outcome of C2's validate_and_correct pass
// over an agent's structured output.
type ValidationStatus string

const (
	ValidationValid     ValidationStatus = "valid"
	ValidationCorrected ValidationStatus = "corrected"
	ValidationInvalid   ValidationStatus = "invalid"
)

// Deliberation is immutable once persisted; a re-run of the same agent in
// the same phase appends a new record rather than mutating this one.
type Deliberation struct {
	ProjectID            string
	Phase                Phase
	AgentID              string
	Decision             Decision
	StructuredOutput     map[string]any
	RiskContribution     PillarScores
	RequiresHumanReview  bool
	CreatedAt            time.Time
	ValidationStatus     ValidationStatus
	CorrectionsApplied   []string
	LatencyMS            int64 // elapsed wall time of the agent run, C4 step 7
}
