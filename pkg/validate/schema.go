// Package validate implements the Output Validator (C2): schema-per-agent
// validation, narrow coercion, and completeness scoring over an agent's
// structured output. Grounded on pkg/config/validator.go's field-path error
// accumulation style ([]error with component/field context) and the
// controller discipline of "never crash the phase, return a structured
// invalid result".
package validate

import "github.com/revisoria/poe-engine/pkg/model"

// FieldKind is the declared type of one schema field.
type FieldKind string

const (
	FieldString FieldKind = "string"
	FieldNumber FieldKind = "number"
	FieldBool   FieldKind = "bool"
	FieldList   FieldKind = "list"
	FieldObject FieldKind = "object"
)

// FieldSchema describes one required or optional field path within an
// agent's output.
type FieldSchema struct {
	Path      string // dotted path, e.g. "conclusion_per_pillar.materiality.detail"
	Kind      FieldKind
	Required  bool
	MinLength int // for FieldString: minimum character length; 0 means no minimum
	MinItems  int // for FieldList: minimum element count; 0 means no minimum
	Enum      []string
}

// Schema is the full set of field rules bound to one agent_id.
type Schema struct {
	AgentID string
	Fields  []FieldSchema
}

// Registry maps agent_id to its bound Schema (the §6 output_schema_id
// indirection, collapsed to a direct lookup since this repo owns both the
// agent configs and the schemas they reference).
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry builds a Registry from the given schemas, keyed by AgentID.
func NewRegistry(schemas ...Schema) *Registry {
	r := &Registry{schemas: make(map[string]Schema, len(schemas))}
	for _, s := range schemas {
		r.schemas[s.AgentID] = s
	}
	return r
}

// Result is the outcome of Validate.
type Result struct {
	Valid  bool
	Errors []string
}

// CorrectResult is the outcome of ValidateAndCorrect.
type CorrectResult struct {
	Valid              bool
	Errors             []string
	CorrectedOutput    map[string]any
	CorrectionsApplied []string
}

// Completeness is the outcome of the completeness check; pkg/agentrun
// records a schema-valid deliberation as invalid with REQUEST_CHANGES when
// Percent < 50.
type Completeness struct {
	FieldsFilled int
	FieldsTotal  int
	Percent      float64
}

// Validate performs a pure check of output against the schema bound to
// agentID, with no mutation.
func (r *Registry) Validate(agentID string, output map[string]any) (Result, error) {
	schema, ok := r.schemas[agentID]
	if !ok {
		return Result{}, &model.SchemaViolationError{AgentID: agentID, Errors: []string{"no schema registered for agent"}}
	}

	var errs []string
	for _, f := range schema.Fields {
		val, present := lookupPath(output, f.Path)
		if !present || val == nil {
			if f.Required {
				errs = append(errs, f.Path+": missing required field")
			}
			continue
		}
		if err := checkKind(f, val); err != "" {
			errs = append(errs, f.Path+": "+err)
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}, nil
}

// ValidateAndCorrect applies narrow coercions — numeric string → number,
// "true"/"false" → bool, scalar → single-element list only when the schema
// demands a list — and re-validates. It never fabricates missing mandatory
// scalars or nested objects.
func (r *Registry) ValidateAndCorrect(agentID string, output map[string]any) (CorrectResult, error) {
	schema, ok := r.schemas[agentID]
	if !ok {
		return CorrectResult{}, &model.SchemaViolationError{AgentID: agentID, Errors: []string{"no schema registered for agent"}}
	}

	corrected := deepCopy(output)
	var corrections []string

	for _, f := range schema.Fields {
		val, present := lookupPath(corrected, f.Path)
		if !present || val == nil {
			continue
		}
		newVal, applied := coerce(f, val)
		if applied != "" {
			setPath(corrected, f.Path, newVal)
			corrections = append(corrections, f.Path+": "+applied)
		}
	}

	var errs []string
	for _, f := range schema.Fields {
		val, present := lookupPath(corrected, f.Path)
		if !present || val == nil {
			if f.Required {
				errs = append(errs, f.Path+": missing required field")
			}
			continue
		}
		if err := checkKind(f, val); err != "" {
			errs = append(errs, f.Path+": "+err)
		}
	}

	return CorrectResult{
		Valid:              len(errs) == 0,
		Errors:             errs,
		CorrectedOutput:    corrected,
		CorrectionsApplied: corrections,
	}, nil
}

// Completeness reports how many of the schema's fields are present and
// non-empty in output.
func (r *Registry) Completeness(agentID string, output map[string]any) (Completeness, error) {
	schema, ok := r.schemas[agentID]
	if !ok {
		return Completeness{}, &model.SchemaViolationError{AgentID: agentID, Errors: []string{"no schema registered for agent"}}
	}

	filled := 0
	for _, f := range schema.Fields {
		val, present := lookupPath(output, f.Path)
		if present && !isEmpty(val) {
			filled++
		}
	}

	total := len(schema.Fields)
	pct := 100.0
	if total > 0 {
		pct = 100.0 * float64(filled) / float64(total)
	}

	return Completeness{FieldsFilled: filled, FieldsTotal: total, Percent: pct}, nil
}
