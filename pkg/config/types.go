package config

import "github.com/revisoria/poe-engine/pkg/model"

// AgentYAML is the YAML shape of one entry under the top-level "agents" map
// in poe.yaml. Field names match the wire vocabulary of spec.md §3/§4.4
// rather than Go convention, since this struct round-trips through YAML.
type AgentYAML struct {
	ParticipatingPhases    []string `yaml:"participating_phases"`
	CanBlock               bool     `yaml:"can_block"`
	IssuesCriticalApproval string   `yaml:"issues_critical_approval"`
	OutputSchemaID         string   `yaml:"output_schema_id"`
	MandatoryContextFields []string `yaml:"mandatory_context_fields"`
	DesirableContextFields []string `yaml:"desirable_context_fields"`
	Ordered                bool     `yaml:"ordered"`
}

// ThresholdsYAML is the "thresholds" top-level block; field names mirror
// the §6 configuration option names exactly, snake_cased.
type ThresholdsYAML struct {
	AgentTimeoutSeconds          int     `yaml:"agent_timeout_seconds"`
	PhaseTimeoutSeconds          int     `yaml:"phase_timeout_seconds"`
	AmountHumanReviewThreshold   int64   `yaml:"amount_human_review_threshold"` // whole pesos, converted to Cents on load
	RiskScoreHumanReviewThreshold int    `yaml:"risk_score_human_review_threshold"`
	MaterialityMinPercent        int     `yaml:"materiality_min_percent"`
	ThreeWayMatchTolerance       float64 `yaml:"three_way_match_tolerance"`
	ReviewIterationCap           int     `yaml:"review_iteration_cap"`
	StreamKeepaliveSeconds       int     `yaml:"stream_keepalive_seconds"`
	StreamSessionIdleGCSeconds   int     `yaml:"stream_session_idle_gc_seconds"`
}

// Document is the root YAML document of poe.yaml.
type Document struct {
	Agents     map[string]AgentYAML `yaml:"agents"`
	Thresholds ThresholdsYAML       `yaml:"thresholds"`
}

// Thresholds is the resolved, typed form of ThresholdsYAML consumed by the
// rest of the core (amount converted to Cents; timeouts and intervals stay
// whole seconds).
type Thresholds struct {
	AgentTimeoutSeconds           int
	PhaseTimeoutSeconds           int
	AmountHumanReviewThreshold    model.Cents
	RiskScoreHumanReviewThreshold int
	MaterialityMinPercent         int
	ThreeWayMatchTolerance        float64
	ReviewIterationCap            int
	StreamKeepaliveSeconds        int
	StreamSessionIdleGCSeconds    int
}

// Resolve converts the YAML-shaped thresholds into their typed form.
func (t ThresholdsYAML) Resolve() Thresholds {
	return Thresholds{
		AgentTimeoutSeconds:           t.AgentTimeoutSeconds,
		PhaseTimeoutSeconds:           t.PhaseTimeoutSeconds,
		AmountHumanReviewThreshold:    model.CentsFromPesos(t.AmountHumanReviewThreshold),
		RiskScoreHumanReviewThreshold: t.RiskScoreHumanReviewThreshold,
		MaterialityMinPercent:         t.MaterialityMinPercent,
		ThreeWayMatchTolerance:        t.ThreeWayMatchTolerance,
		ReviewIterationCap:            t.ReviewIterationCap,
		StreamKeepaliveSeconds:        t.StreamKeepaliveSeconds,
		StreamSessionIdleGCSeconds:    t.StreamSessionIdleGCSeconds,
	}
}

// Config is the fully resolved configuration the core is constructed with.
type Config struct {
	Agents     map[string]model.AgentConfig
	Thresholds Thresholds
}
