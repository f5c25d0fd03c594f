package validate

// BuiltinSchemas returns the schema table for every agent this engine ships
// a default config for (pkg/config/builtin.go's 12 agent_ids). A3_FISCAL's
// shape matches the spec's own example exactly: conclusion_per_pillar.*.detail
// fields at least 50 characters and a checklist_required_evidence list of at
// least 3 items; agents with no close spec analogue follow the same
// detail+rationale shape with a domain-specific required field.
func BuiltinSchemas() []Schema {
	return []Schema{
		{
			AgentID: "A1_SPONSOR",
			Fields: []FieldSchema{
				{Path: "conclusion_per_pillar.business_reason.detail", Kind: FieldString, Required: true, MinLength: 50},
				{Path: "decision_rationale", Kind: FieldString, Required: true, MinLength: 20},
			},
		},
		{
			AgentID: "A3_FISCAL",
			Fields: []FieldSchema{
				{Path: "conclusion_per_pillar.materiality.detail", Kind: FieldString, Required: true, MinLength: 50},
				{Path: "conclusion_per_pillar.traceability.detail", Kind: FieldString, Required: true, MinLength: 50},
				{Path: "checklist_required_evidence", Kind: FieldList, Required: true, MinItems: 3},
				{Path: "critical_approval", Kind: FieldBool, Required: false},
			},
		},
		{
			AgentID: "A4_LEGAL",
			Fields: []FieldSchema{
				{Path: "conclusion_per_pillar.materiality.detail", Kind: FieldString, Required: true, MinLength: 50},
				{Path: "critical_approval", Kind: FieldBool, Required: false},
			},
		},
		{
			AgentID: "A5_FINANCE",
			Fields: []FieldSchema{
				{Path: "budget_confirmed", Kind: FieldBool, Required: true},
				{Path: "conclusion_per_pillar.economic_benefit.detail", Kind: FieldString, Required: true, MinLength: 50},
			},
		},
		{
			AgentID: "A7_DEFENSE",
			Fields: []FieldSchema{
				{Path: "executive_summary", Kind: FieldString, Required: true, MinLength: 50},
			},
		},
		{
			AgentID: "A2_COMPLIANCE",
			Fields: []FieldSchema{
				{Path: "conclusion_per_pillar.traceability.detail", Kind: FieldString, Required: true, MinLength: 50},
				{Path: "regulatory_references", Kind: FieldList, Required: true, MinItems: 1},
			},
		},
		{
			AgentID: "A6_OPERATIONS",
			Fields: []FieldSchema{
				{Path: "conclusion_per_pillar.materiality.detail", Kind: FieldString, Required: true, MinLength: 50},
				{Path: "execution_evidence_on_file", Kind: FieldBool, Required: true},
			},
		},
		{
			AgentID: "A8_PROCUREMENT",
			Fields: []FieldSchema{
				{Path: "vendor_selection_rationale", Kind: FieldString, Required: true, MinLength: 50},
				{Path: "competing_quotes_on_file", Kind: FieldBool, Required: false},
			},
		},
		{
			AgentID: "A9_TRANSFER_PRICING",
			Fields: []FieldSchema{
				{Path: "conclusion_per_pillar.economic_benefit.detail", Kind: FieldString, Required: true, MinLength: 50},
				{Path: "transfer_pricing_study_on_file", Kind: FieldBool, Required: true},
			},
		},
		{
			AgentID: "A10_AUDIT",
			Fields: []FieldSchema{
				{Path: "checklist_required_evidence", Kind: FieldList, Required: true, MinItems: 3},
				{Path: "decision_rationale", Kind: FieldString, Required: true, MinLength: 20},
			},
		},
		{
			AgentID: "A11_DATA_PRIVACY",
			Fields: []FieldSchema{
				{Path: "personal_data_identified", Kind: FieldBool, Required: true},
				{Path: "decision_rationale", Kind: FieldString, Required: true, MinLength: 20},
			},
		},
		{
			AgentID: "A12_RISK",
			Fields: []FieldSchema{
				{Path: "conclusion_per_pillar.business_reason.detail", Kind: FieldString, Required: true, MinLength: 50},
				{Path: "decision_rationale", Kind: FieldString, Required: true, MinLength: 20},
			},
		},
	}
}
