package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/revisoria/poe-engine/pkg/model"
)

// ProjectStore is the hand-written replacement for the ent-generated
// project CRUD the teacher relies on (see DESIGN.md's dropped-dependency
// entry for entgo.io/ent): plain SQL over pgxpool, matching the table
// shape in migrations/0001_init.up.sql.
type ProjectStore struct {
	pool *pgxpool.Pool
}

// NewProjectStore builds a ProjectStore.
func NewProjectStore(pool *pgxpool.Pool) *ProjectStore {
	return &ProjectStore{pool: pool}
}

// Create inserts a new project row.
func (s *ProjectStore) Create(ctx context.Context, p model.Project) error {
	fasesJSON, err := json.Marshal(fasesToStrings(p.FasesCompletadas))
	if err != nil {
		return fmt.Errorf("project store: marshal fases_completadas: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO projects (
			project_id, name, typology, amount_cents, current_phase, fases_completadas,
			risk_level, human_review_class, human_review_required, human_review_obtained,
			created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ProjectID, p.Name, string(p.Typology), int64(p.Amount), string(p.CurrentPhase), fasesJSON,
		string(p.RiskLevel), string(p.HumanReviewClass), p.HumanReviewRequired, p.HumanReviewObtained,
		p.CreatedBy)
	if err != nil {
		return &model.StorageFailureError{ProjectID: p.ProjectID, Op: "create_project", Err: err}
	}
	return nil
}

// Get fetches a project by ID.
func (s *ProjectStore) Get(ctx context.Context, projectID string) (model.Project, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT project_id, name, typology, amount_cents, current_phase, fases_completadas,
		       risk_level, human_review_class, human_review_required, human_review_obtained,
		       created_by, created_at, updated_at
		FROM projects WHERE project_id = $1`, projectID)

	var (
		p                           model.Project
		typology, phase             string
		riskLevel, humanReviewClass string
		fasesJSON                   []byte
	)
	err := row.Scan(&p.ProjectID, &p.Name, &typology, (*int64)(&p.Amount), &phase, &fasesJSON,
		&riskLevel, &humanReviewClass, &p.HumanReviewRequired, &p.HumanReviewObtained,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Project{}, fmt.Errorf("project store: project %q not found", projectID)
	}
	if err != nil {
		return model.Project{}, &model.StorageFailureError{ProjectID: projectID, Op: "get_project", Err: err}
	}

	p.Typology = model.Typology(typology)
	p.CurrentPhase = model.Phase(phase)
	p.RiskLevel = model.RiskLevel(riskLevel)
	p.HumanReviewClass = model.HumanReviewClass(humanReviewClass)

	var fases []string
	if err := json.Unmarshal(fasesJSON, &fases); err != nil {
		return model.Project{}, fmt.Errorf("project store: decode fases_completadas: %w", err)
	}
	for _, f := range fases {
		p.FasesCompletadas = append(p.FasesCompletadas, model.Phase(f))
	}

	return p, nil
}

// AdvancePhase persists a successful C7 transition: updates current_phase,
// appends "from" to fases_completadas (idempotent — a phase already
// present is not duplicated), and bumps updated_at.
func (s *ProjectStore) AdvancePhase(ctx context.Context, projectID string, from, to model.Phase) error {
	project, err := s.Get(ctx, projectID)
	if err != nil {
		return err
	}

	fases := project.FasesCompletadas
	if !project.HasCompleted(from) {
		fases = append(fases, from)
	}
	fasesJSON, err := json.Marshal(fasesToStrings(fases))
	if err != nil {
		return fmt.Errorf("project store: marshal fases_completadas: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE projects SET current_phase = $2, fases_completadas = $3, updated_at = now() WHERE project_id = $1`,
		projectID, string(to), fasesJSON)
	if err != nil {
		return &model.StorageFailureError{ProjectID: projectID, Op: "advance_phase", Err: err}
	}
	return nil
}

// SetHumanReviewObtained marks a project's human-review requirement as
// satisfied, consulted by the F8 lock predicate.
func (s *ProjectStore) SetHumanReviewObtained(ctx context.Context, projectID string, obtained bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE projects SET human_review_obtained = $2, updated_at = now() WHERE project_id = $1`,
		projectID, obtained)
	if err != nil {
		return &model.StorageFailureError{ProjectID: projectID, Op: "set_human_review_obtained", Err: err}
	}
	return nil
}

// UpdateRiskScore persists a fresh C1 scoring result against the project.
func (s *ProjectStore) UpdateRiskScore(ctx context.Context, projectID string, level model.RiskLevel, class model.HumanReviewClass, required bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE projects SET risk_level = $2, human_review_class = $3, human_review_required = $4, updated_at = now() WHERE project_id = $1`,
		projectID, string(level), string(class), required)
	if err != nil {
		return &model.StorageFailureError{ProjectID: projectID, Op: "update_risk_score", Err: err}
	}
	return nil
}

func fasesToStrings(fases []model.Phase) []string {
	out := make([]string, len(fases))
	for i, f := range fases {
		out[i] = string(f)
	}
	return out
}
