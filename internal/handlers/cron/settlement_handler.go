package cron

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/kevin07696/settlement-service/internal/handlers/httpx"
	"github.com/kevin07696/settlement-service/internal/services/ports"
	pkgerrors "github.com/kevin07696/settlement-service/pkg/errors"
	"github.com/kevin07696/settlement-service/pkg/resilience"
	"github.com/kevin07696/settlement-service/pkg/shutdown"
	"github.com/kevin07696/settlement-service/pkg/timeutil"
	"go.uber.org/zap"
)

// SettlementHandler handles cron job endpoints for daily settlement runs
type SettlementHandler struct {
	batchService ports.SettlementBatchService
	tracker      *shutdown.InFlightTracker
	timeouts     *resilience.TimeoutConfig
	location     *time.Location
	logger       *zap.Logger
	cronSecret   string // Secret token for authenticating cron requests
}

// NewSettlementHandler creates a new settlement cron handler
func NewSettlementHandler(
	batchService ports.SettlementBatchService,
	tracker *shutdown.InFlightTracker,
	timeouts *resilience.TimeoutConfig,
	location *time.Location,
	logger *zap.Logger,
	cronSecret string,
) *SettlementHandler {
	if location == nil {
		location = time.UTC
	}
	return &SettlementHandler{
		batchService: batchService,
		tracker:      tracker,
		timeouts:     timeouts,
		location:     location,
		logger:       logger,
		cronSecret:   cronSecret,
	}
}

// DailySettlementRequest represents the request body for a daily run
type DailySettlementRequest struct {
	TargetDate *string `json:"target_date"` // Optional: YYYY-MM-DD, defaults to yesterday
	DryRun     bool    `json:"dry_run"`
}

// DailySettlementResponse represents the response from a daily run
type DailySettlementResponse struct {
	Success bool `json:"success"`
	*ports.BatchSettlementResult
	ProcessedAt string `json:"processed_at"`
}

// ProcessDaily handles POST /cron/settlements/daily
func (h *SettlementHandler) ProcessDaily(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var req DailySettlementRequest
	if err := httpx.DecodeJSON(r, &req, true); err != nil {
		httpx.RespondServiceError(w, h.logger, err)
		return
	}

	var targetDate *time.Time
	if req.TargetDate != nil {
		parsed, err := timeutil.ParseDay(*req.TargetDate, h.location)
		if err != nil {
			httpx.RespondServiceError(w, h.logger, pkgerrors.NewValidationError("target_date", "must be YYYY-MM-DD"))
			return
		}
		targetDate = &parsed
	}

	h.run(w, r, func(ctx context.Context) (*ports.BatchSettlementResult, error) {
		switch {
		case req.DryRun && targetDate != nil:
			return h.batchService.DryRunDaily(ctx, *targetDate)
		case req.DryRun:
			return h.batchService.DryRunDaily(ctx, timeutil.Yesterday(timeutil.Now(), h.location))
		case targetDate != nil:
			return h.batchService.RunDailyForAllParties(ctx, *targetDate)
		default:
			return h.batchService.RunDailyForYesterday(ctx)
		}
	})
}

// ProcessYesterday handles POST /cron/settlements/yesterday
func (h *SettlementHandler) ProcessYesterday(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	h.run(w, r, h.batchService.RunDailyForYesterday)
}

// run executes a batch as tracked in-flight work, detached from client disconnects
func (h *SettlementHandler) run(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) (*ports.BatchSettlementResult, error)) {
	h.logger.Info("Settlement cron job triggered",
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	)

	var (
		result *ports.BatchSettlementResult
		err    error
	)
	started := h.tracker.Run(func() {
		ctx, cancel := h.timeouts.CronContext(context.WithoutCancel(r.Context()))
		defer cancel()
		result, err = fn(ctx)
	})
	if !started {
		httpx.RespondError(w, h.logger, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	if err != nil {
		h.logger.Error("Settlement cron job failed", zap.Error(err))
		httpx.RespondServiceError(w, h.logger, err)
		return
	}

	resp := DailySettlementResponse{
		Success:               result.PartiesFailed == 0,
		BatchSettlementResult: result,
		ProcessedAt:           timeutil.Now().Format(time.RFC3339),
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusPartialContent // 206 indicates partial success
	}
	httpx.RespondJSON(w, h.logger, status, resp)
}

// authorize enforces POST and the cron secret, writing the error response when it fails
func (h *SettlementHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		httpx.RespondError(w, h.logger, http.StatusMethodNotAllowed, "only POST method is allowed")
		return false
	}
	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request",
			zap.String("remote_addr", r.RemoteAddr),
		)
		httpx.RespondError(w, h.logger, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}

// authenticateRequest verifies the cron request is authorized
func (h *SettlementHandler) authenticateRequest(r *http.Request) bool {
	if h.secretMatches(r.Header.Get("X-Cron-Secret")) {
		return true
	}

	if h.secretMatches(bearerToken(r.Header.Get("Authorization"))) {
		return true
	}

	// Query parameter (less secure, for development only)
	if h.secretMatches(r.URL.Query().Get("secret")) {
		h.logger.Warn("Using query parameter authentication (insecure)",
			zap.String("remote_addr", r.RemoteAddr),
		)
		return true
	}

	return false
}

func (h *SettlementHandler) secretMatches(candidate string) bool {
	if candidate == "" || h.cronSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(h.cronSecret)) == 1
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

// HealthCheck handles GET /cron/health for monitoring
func (h *SettlementHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.tracker.IsShuttingDown() {
		status = "shutting_down"
	}
	httpx.RespondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"status": status,
		"time":   timeutil.Now().Format(time.RFC3339),
	})
}
