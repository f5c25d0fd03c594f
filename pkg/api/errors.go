package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/revisoria/poe-engine/pkg/model"
)

// writeError maps a core error to spec §7's HTTP status contract and
// writes the matching JSON body. Grounded on the teacher's
// mapServiceError (pkg/api/errors.go): a chain of errors.Is/As checks
// against sentinel kinds, falling back to 500 for anything unrecognized.
func writeError(c *gin.Context, err error) {
	var invalidEval *model.InvalidEvaluationError
	if errors.As(err, &invalidEval) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var incomplete *model.IncompleteContextError
	if errors.As(err, &incomplete) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Fields: incomplete.MissingPaths})
		return
	}

	var schemaViolation *model.SchemaViolationError
	if errors.As(err, &schemaViolation) {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Fields: schemaViolation.Errors})
		return
	}

	if errors.Is(err, model.ErrTimeout) {
		c.JSON(http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
		return
	}

	if errors.Is(err, model.ErrStorageFailure) || errors.Is(err, model.ErrTransient) {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	if errors.Is(err, model.ErrCancelled) {
		c.JSON(http.StatusRequestTimeout, errorResponse{Error: err.Error()})
		return
	}

	slog.Error("api: unexpected error", "error", err)
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

// writeLockBlocked writes spec §7's 403 shape for a LockBlocked advance
// attempt: {fase, bloqueos, acciones_requeridas}.
func writeLockBlocked(c *gin.Context, phase model.Phase, blockers []string, requiredActions []string) {
	c.JSON(http.StatusForbidden, lockBlockedResponse{
		Fase:               string(phase),
		Bloqueos:           blockers,
		AccionesRequeridas: requiredActions,
	})
}
