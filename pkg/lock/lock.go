// Package lock implements the Lock Evaluator (C6): a pure predicate over
// the three hard-lock phases (F2, F6, F8), plus the stable regex-keyed
// blocker→action mapping (§6) that the state machine surfaces to callers.
// Grounded on the teacher's compiled-regex-table idiom
// (pkg/masking/pattern.go) for the action table, and on
// original_source/backend/routes/fases.py / candados_middleware.py for the
// exact predicate semantics (candados_duros, obtener_acciones_para_bloqueos).
package lock

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/revisoria/poe-engine/pkg/model"
)

// Context carries every signal a lock predicate needs beyond the project
// itself and its accumulated deliberations.
type Context struct {
	Deliberations              []model.Deliberation
	MaterialityCompletenessPercent float64
	InvoiceDescription         string
	ContractAmount             model.Cents
	InvoiceAmount              model.Cents
	ThreeWayMatchTolerance     float64 // e.g. 0.05
	TransferPricingStudyOnFile bool
	UnresolvedCriticalFlag     bool
}

// Result is evaluate_lock's output.
type Result struct {
	Released bool
	Blockers []string
}

// EvaluateLock is a pure function: identical (project, phase, ctx) always
// yields an identical Result, across any number of calls.
func EvaluateLock(project model.Project, phase model.Phase, ctx Context) Result {
	switch phase {
	case model.PhaseF2:
		return evaluateF2(project, ctx)
	case model.PhaseF6:
		return evaluateF6(project, ctx)
	case model.PhaseF8:
		return evaluateF8(project, ctx)
	default:
		return Result{Released: true}
	}
}

func evaluateF2(project model.Project, ctx Context) Result {
	var blockers []string

	if !project.HasCompleted(model.PhaseF0) {
		blockers = append(blockers, "F0 not completed")
	}
	if !project.HasCompleted(model.PhaseF1) {
		blockers = append(blockers, "F1 not completed")
	}
	if !latestApproved(ctx.Deliberations, "A1_SPONSOR") {
		blockers = append(blockers, "A1_SPONSOR has not approved")
	}
	if !latestApproved(ctx.Deliberations, "A3_FISCAL") {
		blockers = append(blockers, "A3_FISCAL has not approved")
	}
	if !latestBudgetConfirmed(ctx.Deliberations) {
		blockers = append(blockers, "A5_FINANCE has not confirmed the budget")
	}
	if ctx.UnresolvedCriticalFlag {
		blockers = append(blockers, "project has an unresolved critical flag")
	}

	return Result{Released: len(blockers) == 0, Blockers: blockers}
}

func evaluateF6(project model.Project, ctx Context) Result {
	var blockers []string

	if !project.HasCompleted(model.PhaseF5) {
		blockers = append(blockers, "F5 not completed")
	}
	if ctx.MaterialityCompletenessPercent < 80 {
		blockers = append(blockers, fmt.Sprintf("materiality matrix completeness %.0f%% is below the required 80%%", ctx.MaterialityCompletenessPercent))
	}
	if !latestCriticalApproval(ctx.Deliberations, "A3_FISCAL", model.CriticalApprovalFiscal) {
		blockers = append(blockers, "A3_FISCAL has not issued VBC_FISCAL critical approval")
	}
	if !latestCriticalApproval(ctx.Deliberations, "A4_LEGAL", model.CriticalApprovalLegal) {
		blockers = append(blockers, "A4_LEGAL has not issued VBC_LEGAL critical approval")
	}
	if isGenericInvoiceDescription(ctx.InvoiceDescription) {
		blockers = append(blockers, "invoice description is generic boilerplate, not specific")
	}
	if !threeWayMatchWithinTolerance(ctx.ContractAmount, ctx.InvoiceAmount, ctx.ThreeWayMatchTolerance) {
		blockers = append(blockers, "3-way match delta exceeds tolerance")
	}

	return Result{Released: len(blockers) == 0, Blockers: blockers}
}

func evaluateF8(project model.Project, ctx Context) Result {
	var blockers []string

	if !project.HasCompleted(model.PhaseF6) {
		blockers = append(blockers, "F6 not completed")
	}
	if !project.HasCompleted(model.PhaseF7) {
		blockers = append(blockers, "F7 not completed")
	}
	if !latestApproved(ctx.Deliberations, "A5_FINANCE") {
		blockers = append(blockers, "A5_FINANCE has not approved")
	}
	if project.HumanReviewRequired && !project.HumanReviewObtained {
		blockers = append(blockers, "required human review has not been obtained")
	}
	if project.Typology == model.TypologyIntragroupManagementFee && !ctx.TransferPricingStudyOnFile {
		blockers = append(blockers, "no valid transfer-pricing study on file")
	}

	return Result{Released: len(blockers) == 0, Blockers: blockers}
}

func latestApproved(deliberations []model.Deliberation, agentID string) bool {
	d, ok := latestByAgent(deliberations, agentID)
	return ok && (d.Decision == model.DecisionApprove || d.Decision == model.DecisionApproveWithConditions)
}

func latestBudgetConfirmed(deliberations []model.Deliberation) bool {
	d, ok := latestByAgent(deliberations, "A5_FINANCE")
	if !ok {
		return false
	}
	confirmed, _ := d.StructuredOutput["budget_confirmed"].(bool)
	return confirmed
}

func latestCriticalApproval(deliberations []model.Deliberation, agentID string, kind model.CriticalApproval) bool {
	d, ok := latestByAgent(deliberations, agentID)
	if !ok {
		return false
	}
	issued, _ := d.StructuredOutput["critical_approval"].(bool)
	_ = kind // the approval kind is determined by the agent's config, not stored per-deliberation
	return issued && (d.Decision == model.DecisionApprove || d.Decision == model.DecisionApproveWithConditions)
}

func latestByAgent(deliberations []model.Deliberation, agentID string) (model.Deliberation, bool) {
	var latest model.Deliberation
	found := false
	for _, d := range deliberations {
		if d.AgentID != agentID {
			continue
		}
		if !found || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
			found = true
		}
	}
	return latest, found
}

var genericBoilerplatePhrases = []string{
	"servicios profesionales",
	"consultoria general",
	"consultoría general",
	"varios servicios",
	"servicios diversos",
}

// isGenericInvoiceDescription reports whether description reads as
// boilerplate: too short, or matching a known generic phrase.
func isGenericInvoiceDescription(description string) bool {
	trimmed := strings.TrimSpace(description)
	if len(trimmed) < 20 {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range genericBoilerplatePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func threeWayMatchWithinTolerance(contract, invoice model.Cents, tolerance float64) bool {
	if contract == 0 {
		return invoice == 0
	}
	delta := math.Abs(float64(invoice-contract)) / float64(contract)
	return delta <= tolerance
}

// actionRule is one row of the stable, user-visible blocker→action table.
// Preserve existing keys and suggested-action strings — external frontends
// depend on them.
type actionRule struct {
	pattern *regexp.Regexp
	action  string
}

var actionTable = []actionRule{
	{regexp.MustCompile(`(?i)F0.*completed`), "Complete phase F0"},
	{regexp.MustCompile(`(?i)F1.*completed`), "Complete phase F1"},
	{regexp.MustCompile(`(?i)F5.*completed`), "Complete phase F5"},
	{regexp.MustCompile(`(?i)F6.*completed`), "Complete phase F6"},
	{regexp.MustCompile(`(?i)F7.*completed`), "Complete phase F7"},
	{regexp.MustCompile(`(?i)A1_SPONSOR`), "Obtener aprobación de A1-Sponsor"},
	{regexp.MustCompile(`(?i)A3_FISCAL`), "Obtener aprobación de A3-Fiscal"},
	{regexp.MustCompile(`(?i)A4_LEGAL`), "Obtener aprobación de A4-Legal"},
	{regexp.MustCompile(`(?i)budget`), "Confirm budget with Finance (A5)"},
	{regexp.MustCompile(`(?i)materiality`), "Complete materiality matrix to 80%"},
	{regexp.MustCompile(`(?i)tp|transfer`), "Attach current transfer-pricing study"},
	{regexp.MustCompile(`(?i)3-way|match`), "Ensure 3-way match delta < 5%"},
	{regexp.MustCompile(`(?i)efos`), "Clear supplier EFOS status"},
	{regexp.MustCompile(`(?i)generic boilerplate`), "Provide a specific invoice description"},
	{regexp.MustCompile(`(?i)human review`), "Obtain required human review sign-off"},
	{regexp.MustCompile(`(?i)critical flag`), "Resolve the project's unresolved critical flag"},
}

// ActionFor returns the suggested next action for a blocker string, by
// matching it against the stable regex table in order. Empty string if no
// rule matches.
func ActionFor(blocker string) string {
	for _, rule := range actionTable {
		if rule.pattern.MatchString(blocker) {
			return rule.action
		}
	}
	return ""
}

// ActionsFor maps every blocker in blockers to its suggested action,
// skipping any blocker with no match.
func ActionsFor(blockers []string) []string {
	actions := make([]string, 0, len(blockers))
	for _, b := range blockers {
		if a := ActionFor(b); a != "" {
			actions = append(actions, a)
		}
	}
	return actions
}
