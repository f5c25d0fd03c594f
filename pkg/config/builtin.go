package config

// builtinAgents ships compiled into the binary and is overridden by user
// YAML via Merge (mergo.WithOverride), the same way the teacher merges
// built-in MCP servers/agents with user-supplied ones.
var builtinAgents = map[string]AgentYAML{
	"A1_SPONSOR": {
		ParticipatingPhases:    []string{"F0", "F1", "F2"},
		CanBlock:               true,
		OutputSchemaID:         "sponsor_v1",
		MandatoryContextFields: []string{"project.typology", "project.amount", "project.name"},
		DesirableContextFields: []string{"project.tenant_id"},
	},
	"A2_COMPLIANCE": {
		ParticipatingPhases:    []string{"F0", "F1"},
		CanBlock:               false,
		OutputSchemaID:         "compliance_v1",
		MandatoryContextFields: []string{"project.typology"},
	},
	"A3_FISCAL": {
		ParticipatingPhases:    []string{"F0", "F1", "F2", "F5", "F6"},
		CanBlock:               true,
		IssuesCriticalApproval: "VBC_FISCAL",
		OutputSchemaID:         "fiscal_v1",
		MandatoryContextFields: []string{"supplier.rfc", "supplier.relationship_type", "project.typology"},
		DesirableContextFields: []string{"supplier.efos_flag"},
	},
	"A4_LEGAL": {
		ParticipatingPhases:    []string{"F1", "F3", "F5", "F6"},
		CanBlock:               true,
		IssuesCriticalApproval: "VBC_LEGAL",
		OutputSchemaID:         "legal_v1",
		MandatoryContextFields: []string{"project.typology"},
	},
	"A5_FINANCE": {
		ParticipatingPhases:    []string{"F1", "F2", "F7", "F8"},
		CanBlock:               true,
		OutputSchemaID:         "finance_v1",
		MandatoryContextFields: []string{"project.amount"},
	},
	"A6_OPERATIONS": {
		ParticipatingPhases:    []string{"F3", "F4", "F5"},
		CanBlock:               false,
		OutputSchemaID:         "operations_v1",
		MandatoryContextFields: []string{"project.typology"},
	},
	"A7_DEFENSE": {
		ParticipatingPhases:    []string{"F0", "F1", "F2", "F3", "F4", "F5", "F6", "F7", "F8", "F9"},
		CanBlock:               false,
		OutputSchemaID:         "defense_v1",
		MandatoryContextFields: []string{"project.typology", "project.current_phase"},
		Ordered:                true,
	},
	"A8_PROCUREMENT": {
		ParticipatingPhases:    []string{"F3", "F4"},
		CanBlock:               false,
		OutputSchemaID:         "procurement_v1",
	},
	"A9_TRANSFER_PRICING": {
		ParticipatingPhases:    []string{"F5", "F8"},
		CanBlock:               false,
		OutputSchemaID:         "transfer_pricing_v1",
		MandatoryContextFields: []string{"project.typology"},
	},
	"A10_AUDIT": {
		ParticipatingPhases:    []string{"F6", "F7"},
		CanBlock:               false,
		OutputSchemaID:         "audit_v1",
	},
	"A11_DATA_PRIVACY": {
		ParticipatingPhases:    []string{"F1", "F3"},
		CanBlock:               false,
		OutputSchemaID:         "data_privacy_v1",
	},
	"A12_RISK": {
		ParticipatingPhases:    []string{"F0", "F9"},
		CanBlock:               false,
		OutputSchemaID:         "risk_v1",
	},
}

// builtinThresholds mirrors the §6 configuration defaults exactly.
var builtinThresholds = ThresholdsYAML{
	AgentTimeoutSeconds:           60,
	PhaseTimeoutSeconds:           180,
	AmountHumanReviewThreshold:    5_000_000,
	RiskScoreHumanReviewThreshold: 60,
	MaterialityMinPercent:         80,
	ThreeWayMatchTolerance:        0.05,
	ReviewIterationCap:            2,
	StreamKeepaliveSeconds:        15,
	StreamSessionIdleGCSeconds:    60,
}
