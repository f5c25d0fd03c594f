package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revisoria/poe-engine/pkg/model"
	"github.com/revisoria/poe-engine/pkg/phaseorch"
	"github.com/revisoria/poe-engine/pkg/scoring"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testContext(method, target string, body *strings.Reader) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	if body != nil {
		c.Request = httptest.NewRequest(method, target, body)
		c.Request.Header.Set("Content-Type", "application/json")
	} else {
		c.Request = httptest.NewRequest(method, target, nil)
	}
	return c, w
}

func TestScoringEvaluateHandler_HighRiskCrossesHumanReviewThreshold(t *testing.T) {
	s := &Server{
		Thresholds: scoring.Thresholds{
			AmountHumanReviewThreshold:    model.Cents(50_000_00),
			RiskScoreHumanReviewThreshold: 60,
		},
	}

	payload := `{
		"business_reason": {"link_to_core_activity": 10, "economic_objective": 10, "amount_coherence": 10},
		"economic_benefit": {"benefit_identification": 10, "roi_model": 10, "time_horizon": 5},
		"materiality": {"formalization": 5, "execution_evidence": 10, "document_coherence": 10},
		"traceability": {"preservation": 10, "integrity": 10, "timeline": 5},
		"amount_cents": 100000000,
		"typology": "OUTSOURCING",
		"efos_flag": false,
		"relationship_type": "THIRD_PARTY"
	}`

	c, w := testContext(http.MethodPost, "/api/v1/scoring/evaluate", strings.NewReader(payload))
	s.scoringEvaluateHandler(c)

	require.Equal(t, http.StatusOK, w.Code)

	var resp scoringEvaluateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 100, resp.RiskScoreTotal)
	assert.Equal(t, model.RiskLevelCritical, resp.Level)
	assert.True(t, resp.HumanReviewRequired)
	assert.Equal(t, model.HumanReviewMandatory, resp.HumanReviewClass)
}

func TestScoringEvaluateHandler_InvalidSubScoreReturns400(t *testing.T) {
	s := &Server{Thresholds: scoring.Thresholds{RiskScoreHumanReviewThreshold: 60}}

	payload := `{"business_reason": {"link_to_core_activity": 7}}`
	c, w := testContext(http.MethodPost, "/api/v1/scoring/evaluate", strings.NewReader(payload))
	s.scoringEvaluateHandler(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestScoringEvaluateHandler_MalformedJSONReturns400(t *testing.T) {
	s := &Server{}
	c, w := testContext(http.MethodPost, "/api/v1/scoring/evaluate", strings.NewReader("{not-json"))
	s.scoringEvaluateHandler(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWriteLockBlocked_WritesSpanishFieldShape(t *testing.T) {
	c, w := testContext(http.MethodPost, "/api/v1/projects/p1/phases/F1/advance", nil)
	writeLockBlocked(c, model.PhaseF1, []string{"MATERIALITY_INCOMPLETE"}, []string{"complete materiality checklist"})

	require.Equal(t, http.StatusForbidden, w.Code)

	var resp lockBlockedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "F1", resp.Fase)
	assert.Equal(t, []string{"MATERIALITY_INCOMPLETE"}, resp.Bloqueos)
	assert.Equal(t, []string{"complete materiality checklist"}, resp.AccionesRequeridas)
}

func TestWriteError_MapsSentinelKindsToStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid evaluation", &model.InvalidEvaluationError{Pillar: "business_reason", Field: "amount_coherence", Value: 7}, http.StatusBadRequest},
		{"incomplete context", &model.IncompleteContextError{MissingPaths: []string{"project.amount"}}, http.StatusBadRequest},
		{"schema violation", &model.SchemaViolationError{Errors: []string{"decision: required"}}, http.StatusUnprocessableEntity},
		{"timeout", model.ErrTimeout, http.StatusGatewayTimeout},
		{"storage failure", model.ErrStorageFailure, http.StatusServiceUnavailable},
		{"cancelled", model.ErrCancelled, http.StatusRequestTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, w := testContext(http.MethodGet, "/api/v1/projects/p1/defense-file", nil)
			writeError(c, tc.err)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestAgentsForPhase_FiltersToParticipatingAgents(t *testing.T) {
	agents := map[string]model.AgentConfig{
		"A1_SCORING": {AgentID: "A1_SCORING", ParticipatingPhases: map[model.Phase]bool{model.PhaseF0: true}},
		"A3_LEGAL":   {AgentID: "A3_LEGAL", ParticipatingPhases: map[model.Phase]bool{model.PhaseF1: true}},
	}

	out := agentsForPhase(agents, model.PhaseF0)
	require.Len(t, out, 1)
	assert.Equal(t, "A1_SCORING", out[0].AgentID)
}

func TestDeliberationValues_FlattensDecisionsMap(t *testing.T) {
	v := phaseorch.Verdict{
		DecisionsByAgent: map[string]model.Deliberation{
			"A1_SCORING": {AgentID: "A1_SCORING", Decision: model.DecisionApprove},
			"A3_LEGAL":   {AgentID: "A3_LEGAL", Decision: model.DecisionReject},
		},
	}

	out := deliberationValues(v)
	assert.Len(t, out, 2)
}

func TestEventDataJSON_EncodesEventFields(t *testing.T) {
	e := model.Event{
		AgentID:   "A1_SCORING",
		Status:    model.EventStatus("RUNNING"),
		Message:   "scoring in progress",
		Progress:  42,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	out := eventDataJSON(e)
	assert.Contains(t, out, `"agent_id":"A1_SCORING"`)
	assert.Contains(t, out, `"progress":42`)
	assert.Contains(t, out, `"2026-01-02T03:04:05`)
}
