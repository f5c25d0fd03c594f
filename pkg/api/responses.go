package api

import "github.com/revisoria/poe-engine/pkg/model"

// scoringEvaluateResponse is POST /api/v1/scoring/evaluate's body, per
// spec §6's "Risk-score score/pillar HTTP contract" exactly.
type scoringEvaluateResponse struct {
	RiskScoreTotal      int                 `json:"risk_score_total"`
	RiskScorePerPillar  model.PillarScores  `json:"risk_score_per_pillar"`
	Level               model.RiskLevel     `json:"level"`
	HumanReviewRequired bool                `json:"human_review_required"`
	HumanReviewClass    model.HumanReviewClass `json:"human_review_class"`
}

// verifyResponse is POST .../verify's body.
type verifyResponse struct {
	Released bool     `json:"released"`
	Blockers []string `json:"blockers"`
}

// lockBlockedResponse is the HTTP 403 body for a LockBlocked advance
// attempt, field names per spec §7 exactly (Spanish, matching the
// original system's user-facing vocabulary).
type lockBlockedResponse struct {
	Fase                 string   `json:"fase"`
	Bloqueos             []string `json:"bloqueos"`
	AccionesRequeridas   []string `json:"acciones_requeridas"`
}

// advanceResponse is POST .../advance's 200 body.
type advanceResponse struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Accepted bool   `json:"accepted"`
	Escalated bool  `json:"escalated"`
}

// defenseFileEntryResponse is one record in GET .../defense-file.
type defenseFileEntryResponse struct {
	Seq      int64  `json:"seq"`
	Kind     string `json:"kind"`
	Hash     string `json:"hash"`
	PrevHash string `json:"prev_hash"`
	Entry    any    `json:"entry"`
}

// defenseFileResponse is GET .../defense-file's body: the C9 read plus
// the hash-chain verification result, per spec §4.9/§8 law #3.
type defenseFileResponse struct {
	Entries     []defenseFileEntryResponse `json:"entries"`
	ChainValid  bool                        `json:"chain_valid"`
	FinalHash   string                      `json:"final_hash,omitempty"`
	TamperedSeq int64                       `json:"tampered_seq,omitempty"`
}

// errorResponse is the generic JSON error envelope for 400/422/503/504.
type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}
