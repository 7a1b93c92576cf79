package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verte-zerg/vstask/internal/experiment"
	"github.com/verte-zerg/vstask/internal/gamelog"
	"github.com/verte-zerg/vstask/internal/generator"
	"github.com/verte-zerg/vstask/internal/model"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest         = "bad_request"
	CodeNoActiveGame       = "no_active_game"
	CodeInvalidConfig      = "invalid_config"
	CodeRoundOutOfRange    = "round_out_of_range"
	CodeUnknownCue         = "unknown_cue"
	CodeAlreadyFinalized   = "already_finalized"
	CodeNoStatistics       = "no_statistics"
	CodeGenerationFailed   = "generation_exhausted"
	CodeStorageUnavailable = "storage_unavailable"
	CodeInternal           = "internal"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func handleServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Code: CodeInternal, Message: "An unexpected internal error occurred"}

	switch {
	case errors.Is(err, experiment.ErrNoActiveGame), errors.Is(err, gamelog.ErrRecordNotFound):
		status = http.StatusBadRequest
		resp = ErrorResponse{Code: CodeNoActiveGame, Message: "No active game session"}
	case errors.Is(err, model.ErrConfiguration):
		status = http.StatusBadRequest
		resp = ErrorResponse{Code: CodeInvalidConfig, Message: err.Error()}
	case errors.Is(err, experiment.ErrRoundOutOfRange):
		status = http.StatusBadRequest
		resp = ErrorResponse{Code: CodeRoundOutOfRange, Message: err.Error()}
	case errors.Is(err, experiment.ErrUnknownCue):
		status = http.StatusBadRequest
		resp = ErrorResponse{Code: CodeUnknownCue, Message: err.Error()}
	case errors.Is(err, gamelog.ErrAlreadyFinalized):
		status = http.StatusConflict
		resp = ErrorResponse{Code: CodeAlreadyFinalized, Message: "Game already finalized"}
	case errors.Is(err, generator.ErrGenerationExhausted):
		resp = ErrorResponse{Code: CodeGenerationFailed, Message: "Could not generate a valid session"}
	case errors.Is(err, gamelog.ErrStorageUnavailable):
		resp = ErrorResponse{Code: CodeStorageUnavailable, Message: "Logging failed"}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: err.Error()})
}
