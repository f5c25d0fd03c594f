package config

import (
	"fmt"

	"github.com/revisoria/poe-engine/pkg/model"
)

// validate enforces the invariants the loaded configuration must satisfy
// before the core is constructed from it: every agent has an output
// schema ID, thresholds are positive where they gate a timeout, and every
// agent that issues a critical approval actually participates in the lock
// phase that consults it.
func validate(agents map[string]model.AgentConfig, t ThresholdsYAML) error {
	if t.AgentTimeoutSeconds <= 0 {
		return NewValidationError("thresholds", "", "agent_timeout_seconds", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if t.PhaseTimeoutSeconds <= 0 {
		return NewValidationError("thresholds", "", "phase_timeout_seconds", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if t.ReviewIterationCap <= 0 {
		return NewValidationError("thresholds", "", "review_iteration_cap", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}

	for id, a := range agents {
		if a.OutputSchemaID == "" {
			return NewValidationError("agent", id, "output_schema_id", ErrMissingRequiredField)
		}
		if a.IssuesCriticalApproval == model.CriticalApprovalFiscal && !a.ParticipatesIn(model.PhaseF6) {
			return NewValidationError("agent", id, "participating_phases", fmt.Errorf("%w: issues VBC_FISCAL but does not participate in F6", ErrInvalidReference))
		}
		if a.IssuesCriticalApproval == model.CriticalApprovalLegal && !a.ParticipatesIn(model.PhaseF6) {
			return NewValidationError("agent", id, "participating_phases", fmt.Errorf("%w: issues VBC_LEGAL but does not participate in F6", ErrInvalidReference))
		}
	}

	return nil
}
