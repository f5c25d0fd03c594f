// Package api is the thin HTTP boundary (A7): a gin router exposing only
// what spec.md §6 names as an HTTP contract, plus the transition/lock
// endpoints SPEC_FULL.md §4.16 adds around C6/C7, a defense-file read
// endpoint, and an SSE adapter over C8's event hub.
//
// Grounded on the teacher's gin-era handlers (pkg/api/handlers.go,
// cmd/tarsy/main.go) — gin.Context/gin.H handler signatures, one handler
// method per route, and a single mapServiceError-style error translator
// (errors.go) rather than per-handler status logic.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/revisoria/poe-engine/pkg/contextasm"
	"github.com/revisoria/poe-engine/pkg/database"
	"github.com/revisoria/poe-engine/pkg/eventstream"
	"github.com/revisoria/poe-engine/pkg/lifecycle"
	"github.com/revisoria/poe-engine/pkg/lock"
	"github.com/revisoria/poe-engine/pkg/model"
	"github.com/revisoria/poe-engine/pkg/notify"
	"github.com/revisoria/poe-engine/pkg/phaseorch"
	"github.com/revisoria/poe-engine/pkg/scoring"
)

// Server wires every core component behind the 5 named routes.
type Server struct {
	engine *gin.Engine

	Agents       map[string]model.AgentConfig
	Thresholds   scoring.Thresholds
	Projects     *database.ProjectStore
	DefenseFiles *database.DefenseFileStore
	Orchestrator *phaseorch.Orchestrator
	Lifecycle    *lifecycle.Registry
	Hub          *eventstream.Hub
	Notifier     notify.Notifier
}

// NewServer builds a Server and registers every route.
func NewServer(
	agents map[string]model.AgentConfig,
	thresholds scoring.Thresholds,
	projects *database.ProjectStore,
	defenseFiles *database.DefenseFileStore,
	orchestrator *phaseorch.Orchestrator,
	reg *lifecycle.Registry,
	hub *eventstream.Hub,
	notifier notify.Notifier,
) *Server {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	s := &Server{
		engine:       gin.New(),
		Agents:       agents,
		Thresholds:   thresholds,
		Projects:     projects,
		DefenseFiles: defenseFiles,
		Orchestrator: orchestrator,
		Lifecycle:    reg,
		Hub:          hub,
		Notifier:     notifier,
	}
	s.engine.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

// Handler returns the http.Handler to serve.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	v1 := s.engine.Group("/api/v1")
	v1.POST("/scoring/evaluate", s.scoringEvaluateHandler)
	v1.POST("/projects/:id/phases/:phase/verify", s.verifyHandler)
	v1.POST("/projects/:id/phases/:phase/advance", s.advanceHandler)
	v1.GET("/projects/:id/defense-file", s.defenseFileHandler)
	v1.GET("/projects/:id/stream", s.streamHandler)
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	return (&http.Server{Addr: addr, Handler: s.engine}).ListenAndServe()
}

// scoringEvaluateHandler handles POST /api/v1/scoring/evaluate.
func (s *Server) scoringEvaluateHandler(c *gin.Context) {
	var req scoringEvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	evaluation := scoring.Evaluation{
		BusinessReason: scoring.BusinessReason{
			LinkToCoreActivity: req.BusinessReason.LinkToCoreActivity,
			EconomicObjective:  req.BusinessReason.EconomicObjective,
			AmountCoherence:    req.BusinessReason.AmountCoherence,
		},
		EconomicBenefit: scoring.EconomicBenefit{
			BenefitIdentification: req.EconomicBenefit.BenefitIdentification,
			ROIModel:              req.EconomicBenefit.ROIModel,
			TimeHorizon:           req.EconomicBenefit.TimeHorizon,
		},
		Materiality: scoring.Materiality{
			Formalization:     req.Materiality.Formalization,
			ExecutionEvidence: req.Materiality.ExecutionEvidence,
			DocumentCoherence: req.Materiality.DocumentCoherence,
		},
		Traceability: scoring.Traceability{
			Preservation: req.Traceability.Preservation,
			Integrity:    req.Traceability.Integrity,
			Timeline:     req.Traceability.Timeline,
		},
		Amount:           model.Cents(req.AmountCents),
		Typology:         model.Typology(req.Typology),
		EFOSFlag:         req.EFOSFlag,
		RelationshipType: model.RelationshipType(req.RelationshipType),
	}

	result, err := scoring.Evaluate(evaluation, s.Thresholds)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, scoringEvaluateResponse{
		RiskScoreTotal:      result.TotalScore,
		RiskScorePerPillar:  result.PerPillar,
		Level:               result.Level,
		HumanReviewRequired: result.HumanReviewRequired,
		HumanReviewClass:    result.HumanReviewClass,
	})
}

// verifyHandler handles POST .../verify: a dry-run evaluate_lock call that
// never mutates project state.
func (s *Server) verifyHandler(c *gin.Context) {
	projectID := c.Param("id")
	phase := model.Phase(c.Param("phase"))

	project, err := s.Projects.Get(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	deliberations, err := s.priorDeliberations(c.Request.Context(), projectID)
	if err != nil {
		writeError(c, err)
		return
	}

	lockCtx := lock.Context{
		Deliberations:                  deliberations,
		MaterialityCompletenessPercent: req.MaterialityCompletenessPercent,
		InvoiceDescription:             req.InvoiceDescription,
		ContractAmount:                 model.Cents(req.ContractAmountCents),
		InvoiceAmount:                  model.Cents(req.InvoiceAmountCents),
		ThreeWayMatchTolerance:         req.ThreeWayMatchTolerance,
		TransferPricingStudyOnFile:     req.TransferPricingStudyOnFile,
		UnresolvedCriticalFlag:         req.UnresolvedCriticalFlag,
	}

	result := lock.EvaluateLock(project, phase, lockCtx)
	c.JSON(http.StatusOK, verifyResponse{Released: result.Released, Blockers: result.Blockers})
}

// advanceHandler handles POST .../advance: runs C5 over the phase's
// configured agents (per the spec's own data-flow description — a client
// requesting "advance to phase P" is what triggers C5's fan-out), then
// attempts the C7 transition with the resulting verdict.
func (s *Server) advanceHandler(c *gin.Context) {
	projectID := c.Param("id")
	phase := model.Phase(c.Param("phase"))

	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	project, err := s.Projects.Get(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}

	deliberations, err := s.priorDeliberations(c.Request.Context(), projectID)
	if err != nil {
		writeError(c, err)
		return
	}

	agents := agentsForPhase(s.Agents, phase)
	bundle := contextasm.Bundle{Project: project, PriorDeliberations: deliberations}

	headHash, err := s.currentHead(c.Request.Context(), projectID)
	if err != nil {
		writeError(c, err)
		return
	}

	verdict, err := s.Orchestrator.Run(c.Request.Context(), phase, agents, bundle, headHash)
	if err != nil {
		writeError(c, err)
		return
	}

	lockCtx := lock.Context{Deliberations: append(deliberations, deliberationValues(verdict)...)}

	result, err := s.Lifecycle.Attempt(c.Request.Context(), project, agents, verdict, lockCtx, req.Actor, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	if !result.Accepted {
		writeLockBlocked(c, phase, result.Blockers, lock.ActionsFor(result.Blockers))
		return
	}

	if result.Escalated {
		s.notifyEscalation(c.Request.Context(), project, "review_cap_exceeded")
	}

	if err := s.Projects.AdvancePhase(c.Request.Context(), projectID, lifecycle.PhaseFor(result.From), lifecycle.PhaseFor(result.To)); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, advanceResponse{
		From:      string(result.From),
		To:        string(result.To),
		Accepted:  result.Accepted,
		Escalated: result.Escalated,
	})
}

// defenseFileHandler handles GET .../defense-file: the full read-only
// append log for a project, in append order.
func (s *Server) defenseFileHandler(c *gin.Context) {
	projectID := c.Param("id")
	entries, err := s.DefenseFiles.Read(c.Request.Context(), projectID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]defenseFileEntryResponse, len(entries))
	for i, e := range entries {
		var payload any
		switch e.Kind {
		case model.EntryKindSnapshot:
			payload = e.Snapshot
		case model.EntryKindDeliberation:
			payload = e.Deliberation
		case model.EntryKindTransition:
			payload = e.Transition
		}
		out[i] = defenseFileEntryResponse{Seq: e.Seq, Kind: string(e.Kind), Hash: e.Hash, PrevHash: e.PrevHash, Entry: payload}
	}

	verification := database.VerifyChain(entries)
	c.JSON(http.StatusOK, defenseFileResponse{
		Entries:     out,
		ChainValid:  verification.Valid,
		FinalHash:   verification.FinalHash,
		TamperedSeq: verification.TamperedSeq,
	})
}

// streamHandler handles GET .../stream: an SSE adapter over the C8
// subscriber interface, per spec §6's "an SSE adapter is expected to
// forward `event: <status>` lines".
func (s *Server) streamHandler(c *gin.Context) {
	projectID := c.Param("id")
	sub := s.Hub.Subscribe(projectID)
	defer sub.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Status, eventDataJSON(event))
			c.Writer.Flush()
		}
	}
}

// notifyEscalation fires A5's human-review notifier. Best-effort: a
// notification failure never blocks the transition it accompanies, since
// the defense file already holds the authoritative record.
func (s *Server) notifyEscalation(ctx context.Context, project model.Project, reason string) {
	event := notify.Event{
		ProjectID: project.ProjectID,
		Reason:    reason,
		RiskLevel: project.RiskLevel,
		Amount:    project.Amount,
	}
	if err := s.Notifier.Notify(ctx, event); err != nil {
		slog.Error("api: escalation notify failed", "project_id", project.ProjectID, "error", err)
	}
}

func (s *Server) priorDeliberations(ctx context.Context, projectID string) ([]model.Deliberation, error) {
	entries, err := s.DefenseFiles.Read(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var out []model.Deliberation
	for _, e := range entries {
		if e.Kind == model.EntryKindDeliberation && e.Deliberation != nil {
			out = append(out, *e.Deliberation)
		}
	}
	return out, nil
}

func (s *Server) currentHead(ctx context.Context, projectID string) (string, error) {
	entries, err := s.DefenseFiles.Read(ctx, projectID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[len(entries)-1].Hash, nil
}

func agentsForPhase(agents map[string]model.AgentConfig, phase model.Phase) []model.AgentConfig {
	var out []model.AgentConfig
	for _, a := range agents {
		if a.ParticipatesIn(phase) {
			out = append(out, a)
		}
	}
	return out
}

func deliberationValues(v phaseorch.Verdict) []model.Deliberation {
	out := make([]model.Deliberation, 0, len(v.DecisionsByAgent))
	for _, d := range v.DecisionsByAgent {
		out = append(out, d)
	}
	return out
}

// sseEvent is the JSON payload shape of one SSE `data:` line, per §6's
// event record shape.
type sseEvent struct {
	AgentID   string         `json:"agent_id"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Progress  int            `json:"progress"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

func eventDataJSON(e model.Event) string {
	payload, err := json.Marshal(sseEvent{
		AgentID:   e.AgentID,
		Status:    string(e.Status),
		Message:   e.Message,
		Progress:  e.Progress,
		Timestamp: e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Data:      e.Data,
	})
	if err != nil {
		return "{}"
	}
	return string(payload)
}
