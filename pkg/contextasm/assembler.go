// Package contextasm implements the Context Assembler (C3): it builds a
// per-agent view over project, supplier, documents, and prior
// deliberations, restricted to the union of that agent's mandatory and
// desirable field paths. Grounded on the teacher's stage-context assembly
// (pkg/agent/context/stage_context.go) generalized from "prior stage
// results" to "the full per-agent field projection" this spec needs.
package contextasm

import (
	"sort"
	"time"

	"github.com/revisoria/poe-engine/pkg/model"
)

// Bundle is the raw material the assembler projects fields from.
type Bundle struct {
	Project              model.Project
	Supplier              model.Supplier
	Documents             []model.Document
	PriorDeliberations    []model.Deliberation
	Extras                map[string]any
}

// Meta is the injected "_meta" block: consumers use it only for logging,
// never for logic.
type Meta struct {
	AgentID       string    `json:"agent_id"`
	Timestamp     time.Time `json:"timestamp"`
	IncludedPaths []string  `json:"included_paths"`
}

// Assemble builds the context map for agent cfg over bundle. If
// validateMandatory is true and any mandatory path cannot be resolved, it
// fails with an *model.IncompleteContextError naming every missing path —
// the caller must not proceed to the LLM in that case.
//
// Context is deterministic: identical inputs yield identical maps (key
// order carries no meaning, content equality does).
func Assemble(cfg model.AgentConfig, bundle Bundle, validateMandatory bool) (map[string]any, error) {
	source := flatten(bundle)

	allPaths := make([]string, 0, len(cfg.RequiredContextFields.Mandatory)+len(cfg.RequiredContextFields.Desirable))
	allPaths = append(allPaths, cfg.RequiredContextFields.Mandatory...)
	allPaths = append(allPaths, cfg.RequiredContextFields.Desirable...)

	out := make(map[string]any, len(allPaths)+1)
	var included []string
	var missing []string

	for _, path := range cfg.RequiredContextFields.Mandatory {
		val, ok := source[path]
		if !ok || isEmptyValue(val) {
			missing = append(missing, path)
			continue
		}
		out[path] = val
		included = append(included, path)
	}

	if validateMandatory && len(missing) > 0 {
		sort.Strings(missing)
		return nil, &model.IncompleteContextError{AgentID: cfg.AgentID, MissingPaths: missing}
	}

	for _, path := range cfg.RequiredContextFields.Desirable {
		val, ok := source[path]
		if !ok || isEmptyValue(val) {
			continue
		}
		out[path] = val
		included = append(included, path)
	}

	sort.Strings(included)
	out["_meta"] = Meta{
		AgentID:       cfg.AgentID,
		Timestamp:     now(),
		IncludedPaths: included,
	}

	return out, nil
}

// now is a seam so tests can freeze time; production uses wall-clock.
var now = time.Now

// flatten projects Bundle into a dotted-path map. Only the paths named in
// spec.md §3/§4.3 examples and the agent configs are populated — this is
// not a generic reflection-based flattener, it is the fixed vocabulary the
// core's agents are allowed to request.
func flatten(b Bundle) map[string]any {
	m := map[string]any{
		"project.project_id":            b.Project.ProjectID,
		"project.tenant_id":             b.Project.TenantID,
		"project.name":                  b.Project.Name,
		"project.typology":              string(b.Project.Typology),
		"project.amount":                int64(b.Project.Amount),
		"project.current_phase":         string(b.Project.CurrentPhase),
		"project.risk_score_total":      b.Project.RiskScoreTotal,
		"project.human_review_required": b.Project.HumanReviewRequired,
		"project.human_review_obtained": b.Project.HumanReviewObtained,

		"supplier.rfc":               b.Supplier.RFC,
		"supplier.name":              b.Supplier.Name,
		"supplier.relationship_type": string(b.Supplier.RelationshipType),
		"supplier.efos_flag":         b.Supplier.EFOSFlag,
		"supplier.history_score":     b.Supplier.HistoryScore,

		"documents":           documentSummaries(b.Documents),
		"prior_deliberations": deliberationSummaries(b.PriorDeliberations),
	}
	for k, v := range b.Extras {
		m["extras."+k] = v
	}
	return m
}

func documentSummaries(docs []model.Document) []any {
	out := make([]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, map[string]any{
			"doc_id":   d.DocID,
			"type":     string(d.Type),
			"metadata": d.Metadata,
		})
	}
	return out
}

func deliberationSummaries(ds []model.Deliberation) []any {
	out := make([]any, 0, len(ds))
	for _, d := range ds {
		out = append(out, map[string]any{
			"agent_id": d.AgentID,
			"phase":    string(d.Phase),
			"decision": string(d.Decision),
		})
	}
	return out
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	default:
		return false
	}
}
