package transition

import (
	"net/http"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/handlers/httpx"
	"github.com/kevin07696/settlement-service/internal/services/ports"
	"github.com/kevin07696/settlement-service/pkg/resilience"
	"go.uber.org/zap"
)

// Handler exposes the state guard over HTTP
type Handler struct {
	service  ports.TransitionService
	timeouts *resilience.TimeoutConfig
	logger   *zap.Logger
}

// NewHandler creates a new transition handler
func NewHandler(service ports.TransitionService, timeouts *resilience.TimeoutConfig, logger *zap.Logger) *Handler {
	return &Handler{
		service:  service,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Request is the body accepted by both transition endpoints
type Request struct {
	EntityKind    string `json:"entity_kind"`
	EntityID      string `json:"entity_id"`
	CurrentStatus string `json:"current_status,omitempty"`
	TargetStatus  string `json:"target_status"`
	ActorType     string `json:"actor_type"`
}

func (r *Request) toServiceRequest() *ports.TransitionRequest {
	return &ports.TransitionRequest{
		EntityKind:    domain.EntityKind(r.EntityKind),
		EntityID:      r.EntityID,
		CurrentStatus: r.CurrentStatus,
		TargetStatus:  r.TargetStatus,
		Actor:         domain.ActorType(r.ActorType),
	}
}

// Check handles POST /api/v1/transitions/check.
// A rejected transition is a 200 with allowed=false.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	decision, err := h.service.Check(ctx, req)
	if err != nil {
		httpx.RespondServiceError(w, h.logger, err)
		return
	}
	httpx.RespondJSON(w, h.logger, http.StatusOK, decision)
}

// Apply handles POST /api/v1/transitions
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	decision, err := h.service.Apply(ctx, req)
	if err != nil {
		httpx.RespondServiceError(w, h.logger, err)
		return
	}
	httpx.RespondJSON(w, h.logger, http.StatusOK, decision)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*ports.TransitionRequest, bool) {
	if r.Method != http.MethodPost {
		httpx.RespondError(w, h.logger, http.StatusMethodNotAllowed, "only POST method is allowed")
		return nil, false
	}
	var body Request
	if err := httpx.DecodeJSON(r, &body, false); err != nil {
		httpx.RespondServiceError(w, h.logger, err)
		return nil, false
	}
	return body.toServiceRequest(), true
}
