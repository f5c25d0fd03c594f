// Package scoring computes the 12-criteria weighted risk score (C1) and
// maps the result, plus amount/typology/supplier signals, to a human-review
// classification. Pure functions, no I/O — mirrors the teacher's separation
// of "pure computation with a typed result" in
// pkg/agent/controller/scoring.go, but the result comes from deterministic
// arithmetic rather than parsing LLM text.
package scoring

import (
	"fmt"

	"github.com/revisoria/poe-engine/pkg/model"
)

// BusinessReason holds the three business_reason sub-criteria.
type BusinessReason struct {
	LinkToCoreActivity int // allowed: 0, 3, 5, 10
	EconomicObjective  int // allowed: 0, 5, 10
	AmountCoherence    int // allowed: 0, 3, 5, 10
}

// EconomicBenefit holds the three economic_benefit sub-criteria.
type EconomicBenefit struct {
	BenefitIdentification int // allowed: 0, 5, 10
	ROIModel              int // allowed: 0, 5, 10
	TimeHorizon           int // allowed: 0, 3, 5
}

// Materiality holds the three materiality sub-criteria.
type Materiality struct {
	Formalization     int // allowed: 0, 3, 5
	ExecutionEvidence int // allowed: 0, 5, 10
	DocumentCoherence int // allowed: 0, 5, 10
}

// Traceability holds the three traceability sub-criteria.
type Traceability struct {
	Preservation int // allowed: 0, 5, 10
	Integrity    int // allowed: 0, 5, 10
	Timeline     int // allowed: 0, 3, 4, 5
}

// Evaluation is the input to Evaluate: the four pillar blocks plus the
// project attributes the human-review rule consults.
type Evaluation struct {
	BusinessReason   BusinessReason
	EconomicBenefit  EconomicBenefit
	Materiality      Materiality
	Traceability     Traceability
	Amount           model.Cents
	Typology         model.Typology
	EFOSFlag         bool
	RelationshipType model.RelationshipType
}

// RedFlag is a heuristic annotation that never changes the numeric score
// but is surfaced to human reviewers — supplementing the distillation with
// the original system's RED_FLAGS table (a1_scoring_service.py), expressed
// here as a data table rather than scattered conditionals (§9 design note).
type RedFlag struct {
	Code     string
	Message  string
	Severity string // "MODERATE" or "SEVERE"
}

// Result is the computed score, classification, and red flags.
type Result struct {
	TotalScore          int
	PerPillar           model.PillarScores
	Level               model.RiskLevel
	HumanReviewRequired bool
	HumanReviewClass    model.HumanReviewClass
	RedFlags            []RedFlag
}

var humanReviewTypologies = map[model.Typology]bool{
	model.TypologyIntragroupManagementFee: true,
	model.TypologyRestructuring:           true,
}

// Thresholds are the §6-configurable thresholds this package needs;
// callers inject them rather than this package reading config directly, so
// scoring stays a pure function of its inputs.
type Thresholds struct {
	AmountHumanReviewThreshold    model.Cents
	RiskScoreHumanReviewThreshold int
}

// Evaluate computes the risk score for e, or fails with InvalidEvaluationError
// naming the offending field if any sub-score falls outside its allowed
// discrete set. Never rounds silently.
func Evaluate(e Evaluation, t Thresholds) (Result, error) {
	if err := checkDiscrete("business_reason", "link_to_core_activity", e.BusinessReason.LinkToCoreActivity, 0, 3, 5, 10); err != nil {
		return Result{}, err
	}
	if err := checkDiscrete("business_reason", "economic_objective", e.BusinessReason.EconomicObjective, 0, 5, 10); err != nil {
		return Result{}, err
	}
	if err := checkDiscrete("business_reason", "amount_coherence", e.BusinessReason.AmountCoherence, 0, 3, 5, 10); err != nil {
		return Result{}, err
	}
	if err := checkDiscrete("economic_benefit", "benefit_identification", e.EconomicBenefit.BenefitIdentification, 0, 5, 10); err != nil {
		return Result{}, err
	}
	if err := checkDiscrete("economic_benefit", "roi_model", e.EconomicBenefit.ROIModel, 0, 5, 10); err != nil {
		return Result{}, err
	}
	if err := checkDiscrete("economic_benefit", "time_horizon", e.EconomicBenefit.TimeHorizon, 0, 3, 5); err != nil {
		return Result{}, err
	}
	if err := checkDiscrete("materiality", "formalization", e.Materiality.Formalization, 0, 3, 5); err != nil {
		return Result{}, err
	}
	if err := checkDiscrete("materiality", "execution_evidence", e.Materiality.ExecutionEvidence, 0, 5, 10); err != nil {
		return Result{}, err
	}
	if err := checkDiscrete("materiality", "document_coherence", e.Materiality.DocumentCoherence, 0, 5, 10); err != nil {
		return Result{}, err
	}
	if err := checkDiscrete("traceability", "preservation", e.Traceability.Preservation, 0, 5, 10); err != nil {
		return Result{}, err
	}
	if err := checkDiscrete("traceability", "integrity", e.Traceability.Integrity, 0, 5, 10); err != nil {
		return Result{}, err
	}
	if err := checkDiscrete("traceability", "timeline", e.Traceability.Timeline, 0, 3, 4, 5); err != nil {
		return Result{}, err
	}

	pillars := model.PillarScores{
		BusinessReason:  clamp25(e.BusinessReason.LinkToCoreActivity + e.BusinessReason.EconomicObjective + e.BusinessReason.AmountCoherence),
		EconomicBenefit: clamp25(e.EconomicBenefit.BenefitIdentification + e.EconomicBenefit.ROIModel + e.EconomicBenefit.TimeHorizon),
		Materiality:     clamp25(e.Materiality.Formalization + e.Materiality.ExecutionEvidence + e.Materiality.DocumentCoherence),
		Traceability:    clamp25(e.Traceability.Preservation + e.Traceability.Integrity + e.Traceability.Timeline),
	}

	total := pillars.Total()
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}

	level := classifyLevel(total)

	humanReview := e.Amount > t.AmountHumanReviewThreshold ||
		total >= t.RiskScoreHumanReviewThreshold ||
		humanReviewTypologies[e.Typology] ||
		e.EFOSFlag ||
		e.RelationshipType.IsRelatedParty()

	class := classifyHumanReview(total)

	return Result{
		TotalScore:          total,
		PerPillar:           pillars,
		Level:               level,
		HumanReviewRequired: humanReview,
		HumanReviewClass:    class,
		RedFlags:            detectRedFlags(e, pillars),
	}, nil
}

func classifyLevel(total int) model.RiskLevel {
	switch {
	case total >= 80:
		return model.RiskLevelCritical
	case total >= 60:
		return model.RiskLevelHigh
	case total >= 40:
		return model.RiskLevelMedium
	default:
		return model.RiskLevelLow
	}
}

func classifyHumanReview(total int) model.HumanReviewClass {
	switch {
	case total >= 60:
		return model.HumanReviewMandatory
	case total >= 40:
		return model.HumanReviewDiscretionary
	default:
		return model.HumanReviewAutomated
	}
}

func clamp25(v int) int {
	if v < 0 {
		return 0
	}
	if v > 25 {
		return 25
	}
	return v
}

func checkDiscrete(pillar, field string, value int, allowed ...int) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &model.InvalidEvaluationError{Pillar: pillar, Field: field, Value: value}
}

// detectRedFlags annotates the evaluation with heuristic flags that never
// change the numeric score, grounded on the original system's RED_FLAGS
// table (a1_scoring_service.py) but rebuilt against this spec's field
// vocabulary instead of translated verbatim.
func detectRedFlags(e Evaluation, p model.PillarScores) []RedFlag {
	var flags []RedFlag

	if e.BusinessReason.LinkToCoreActivity == 0 {
		flags = append(flags, RedFlag{
			Code:     "NO_CORE_ACTIVITY_LINK",
			Message:  "No demonstrated link to the entity's core activity",
			Severity: "SEVERE",
		})
	}
	if e.EconomicBenefit.BenefitIdentification == 0 {
		flags = append(flags, RedFlag{
			Code:     "BENEFIT_NOT_IDENTIFIED",
			Message:  "Economic benefit is not identifiable or quantifiable",
			Severity: "SEVERE",
		})
	}
	if e.Materiality.ExecutionEvidence == 0 {
		flags = append(flags, RedFlag{
			Code:     "NO_EXECUTION_EVIDENCE",
			Message:  "No evidence the contracted service was actually executed",
			Severity: "SEVERE",
		})
	}
	if e.Traceability.Preservation == 0 {
		flags = append(flags, RedFlag{
			Code:     "NO_DOCUMENT_PRESERVATION",
			Message:  "Supporting documentation has not been preserved",
			Severity: "MODERATE",
		})
	}
	if e.BusinessReason.AmountCoherence == 0 && p.BusinessReason > 0 {
		flags = append(flags, RedFlag{
			Code:     "AMOUNT_INCOHERENT",
			Message:  "Contracted amount is not coherent with the stated business reason",
			Severity: "MODERATE",
		})
	}
	if e.RelationshipType.IsRelatedParty() && e.Typology != model.TypologyIntragroupManagementFee {
		flags = append(flags, RedFlag{
			Code:     "RELATED_PARTY_NO_TP_STUDY",
			Message:  "Related-party transaction outside the standard intragroup-fee typology",
			Severity: "MODERATE",
		})
	}

	return flags
}

// String implements fmt.Stringer for Result for convenient logging.
func (r Result) String() string {
	return fmt.Sprintf("score=%d level=%s human_review=%t(%s)", r.TotalScore, r.Level, r.HumanReviewRequired, r.HumanReviewClass)
}
