package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kevin07696/settlement-service/internal/domain"
	pkgerrors "github.com/kevin07696/settlement-service/pkg/errors"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies on every JSON endpoint
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool                   `json:"success"`
	Code    string                 `json:"code,omitempty"`
	Error   string                 `json:"error"`
	Field   string                 `json:"field,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RespondJSON writes v with the given status
func RespondJSON(w http.ResponseWriter, logger *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// RespondError writes a plain error message
func RespondError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	RespondJSON(w, logger, status, ErrorResponse{Error: message})
}

// RespondServiceError maps a service error to a status and body. Internal
// failures are logged and reported without detail.
func RespondServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
		RespondJSON(w, logger, status, ErrorResponse{
			Code:  string(domain.ErrorCodeInternalError),
			Error: "internal server error",
		})
		return
	}

	resp := ErrorResponse{
		Code:  string(domain.GetErrorCode(err)),
		Error: err.Error(),
	}

	var validationErr *pkgerrors.ValidationError
	var domainErr *domain.DomainError
	var transitionErr *domain.StateTransitionError
	switch {
	case errors.As(err, &validationErr):
		resp.Code = string(domain.ErrorCodeValidationFailed)
		resp.Field = validationErr.Field
		resp.Error = validationErr.Message
	case errors.As(err, &transitionErr):
		resp.Error = transitionErr.Reason
		resp.Details = map[string]interface{}{
			"entity_type":    transitionErr.EntityType,
			"entity_id":      transitionErr.EntityID,
			"current_status": transitionErr.CurrentStatus,
			"target_status":  transitionErr.TargetStatus,
			"actor_type":     transitionErr.ActorType,
		}
	case errors.As(err, &domainErr):
		resp.Error = domainErr.Message
		if len(domainErr.Details) > 0 {
			resp.Details = domainErr.Details
		}
	}

	RespondJSON(w, logger, status, resp)
}

// StatusFor maps domain error codes to HTTP statuses
func StatusFor(err error) int {
	var validationErr *pkgerrors.ValidationError
	switch {
	case errors.As(err, &validationErr), domain.IsValidationError(err):
		return http.StatusBadRequest
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	case domain.IsTransitionError(err):
		return http.StatusConflict
	case domain.IsDomainError(err, domain.ErrorCodeTransitionStale),
		domain.IsDomainError(err, domain.ErrorCodeBatchRunInProgress),
		domain.IsDuplicateError(err):
		return http.StatusConflict
	case domain.IsStructuralError(err), domain.IsConfigurationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON reads a bounded JSON body into v, rejecting unknown fields.
// An empty body leaves v untouched when allowEmpty is set.
func DecodeJSON(r *http.Request, v interface{}, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return pkgerrors.NewValidationError("body", "request body is required")
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return pkgerrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}
