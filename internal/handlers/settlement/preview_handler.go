package settlement

import (
	"net/http"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/handlers/httpx"
	"github.com/kevin07696/settlement-service/internal/services/ports"
	engine "github.com/kevin07696/settlement-service/internal/services/settlement"
	pkgerrors "github.com/kevin07696/settlement-service/pkg/errors"
	"github.com/kevin07696/settlement-service/pkg/resilience"
	"github.com/kevin07696/settlement-service/pkg/timeutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxPreviewParties bounds a single preview request
const maxPreviewParties = 500

// PreviewHandler serves engine dry runs for an explicit period and party list
type PreviewHandler struct {
	batchService ports.SettlementBatchService
	timeouts     *resilience.TimeoutConfig
	location     *time.Location
	logger       *zap.Logger
}

// NewPreviewHandler creates a new preview handler
func NewPreviewHandler(
	batchService ports.SettlementBatchService,
	timeouts *resilience.TimeoutConfig,
	location *time.Location,
	logger *zap.Logger,
) *PreviewHandler {
	if location == nil {
		location = time.UTC
	}
	return &PreviewHandler{
		batchService: batchService,
		timeouts:     timeouts,
		location:     location,
		logger:       logger,
	}
}

// PartyRequest identifies one party to preview
type PartyRequest struct {
	PartyType string `json:"party_type"`
	PartyID   string `json:"party_id"`
}

// PreviewRequest is the body of POST /api/v1/settlements/preview
type PreviewRequest struct {
	PeriodStart   string         `json:"period_start"` // YYYY-MM-DD or RFC3339
	PeriodEnd     string         `json:"period_end"`   // YYYY-MM-DD (inclusive day) or RFC3339
	Parties       []PartyRequest `json:"parties"`
	RuleSetID     string         `json:"rule_set_id,omitempty"`
	CompareWithV1 bool           `json:"compare_with_v1,omitempty"`
}

// SettlementResponse is the wire form of a computed settlement
type SettlementResponse struct {
	ID                    string          `json:"id"`
	PartyType             string          `json:"party_type"`
	PartyID               string          `json:"party_id"`
	PeriodStart           time.Time       `json:"period_start"`
	PeriodEnd             time.Time       `json:"period_end"`
	Currency              string          `json:"currency"`
	EngineVersion         string          `json:"engine_version"`
	TotalGrossAmount      decimal.Decimal `json:"total_gross_amount"`
	TotalCommissionAmount decimal.Decimal `json:"total_commission_amount"`
	TotalTaxAmount        decimal.Decimal `json:"total_tax_amount"`
	PayableAmount         decimal.Decimal `json:"payable_amount"`
	ItemCount             int             `json:"item_count"`
	Status                string          `json:"status"`
	HoldReason            string          `json:"hold_reason,omitempty"`
	PayableAfter          *time.Time      `json:"payable_after,omitempty"`
	RuleSetID             string          `json:"rule_set_id"`
	RuleSetVersion        int             `json:"rule_set_version"`
}

// ItemResponse is the wire form of a settlement line
type ItemResponse struct {
	SettlementID     string          `json:"settlement_id"`
	EventID          string          `json:"event_id"`
	OrderID          string          `json:"order_id"`
	ProductID        string          `json:"product_id,omitempty"`
	RuleID           string          `json:"rule_id"`
	RuleType         string          `json:"rule_type"`
	TierIndex        *int            `json:"tier_index,omitempty"`
	GrossAmount      decimal.Decimal `json:"gross_amount"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	PayableAmount    decimal.Decimal `json:"payable_amount"`
	ReasonCode       string          `json:"reason_code"`
}

// PreviewResponse is the result of a preview
type PreviewResponse struct {
	Success     bool                 `json:"success"`
	Settlements []SettlementResponse `json:"settlements"`
	Items       []ItemResponse       `json:"items"`
	Diagnostics *engine.Diagnostics  `json:"diagnostics"`
}

// Preview handles POST /api/v1/settlements/preview
func (h *PreviewHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.RespondError(w, h.logger, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	var body PreviewRequest
	if err := httpx.DecodeJSON(r, &body, false); err != nil {
		httpx.RespondServiceError(w, h.logger, err)
		return
	}

	req, err := h.toServiceRequest(&body)
	if err != nil {
		httpx.RespondServiceError(w, h.logger, err)
		return
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	result, err := h.batchService.Preview(ctx, req)
	if err != nil {
		httpx.RespondServiceError(w, h.logger, err)
		return
	}

	h.logger.Debug("Settlement preview computed",
		zap.Int("parties", len(req.Parties)),
		zap.Int("settlements", len(result.Settlements)),
	)
	httpx.RespondJSON(w, h.logger, http.StatusOK, toPreviewResponse(result))
}

func (h *PreviewHandler) toServiceRequest(body *PreviewRequest) (*ports.PreviewRequest, error) {
	if body.PeriodStart == "" {
		return nil, pkgerrors.Required("period_start")
	}
	if body.PeriodEnd == "" {
		return nil, pkgerrors.Required("period_end")
	}
	start, err := parseBound(body.PeriodStart, h.location, false)
	if err != nil {
		return nil, pkgerrors.NewValidationError("period_start", "must be YYYY-MM-DD or RFC3339")
	}
	end, err := parseBound(body.PeriodEnd, h.location, true)
	if err != nil {
		return nil, pkgerrors.NewValidationError("period_end", "must be YYYY-MM-DD or RFC3339")
	}
	if end.Before(start) {
		return nil, pkgerrors.NewValidationError("period_end", "must not be before period_start")
	}

	if len(body.Parties) == 0 {
		return nil, pkgerrors.Required("parties")
	}
	if len(body.Parties) > maxPreviewParties {
		return nil, pkgerrors.NewValidationError("parties", "too many parties in one preview")
	}
	parties := make([]models.PartyRef, 0, len(body.Parties))
	for _, p := range body.Parties {
		partyType := models.PartyType(p.PartyType)
		if !partyType.IsValid() {
			return nil, pkgerrors.NewValidationError("parties.party_type", "unknown party type "+p.PartyType)
		}
		if p.PartyID == "" {
			return nil, pkgerrors.Required("parties.party_id")
		}
		parties = append(parties, models.PartyRef{PartyType: partyType, PartyID: p.PartyID})
	}

	return &ports.PreviewRequest{
		PeriodStart:   start,
		PeriodEnd:     end,
		Parties:       parties,
		RuleSetID:     body.RuleSetID,
		CompareWithV1: body.CompareWithV1,
	}, nil
}

// parseBound accepts a calendar day, expanded to its first or last instant, or an RFC3339 timestamp
func parseBound(value string, loc *time.Location, end bool) (time.Time, error) {
	if day, err := timeutil.ParseDay(value, loc); err == nil {
		if end {
			return timeutil.EndOfDay(day, loc), nil
		}
		return day, nil
	}
	return time.Parse(time.RFC3339, value)
}

func toPreviewResponse(result *engine.Result) PreviewResponse {
	resp := PreviewResponse{
		Success:     true,
		Settlements: make([]SettlementResponse, 0, len(result.Settlements)),
		Items:       make([]ItemResponse, 0, len(result.SettlementItems)),
		Diagnostics: result.Diagnostics,
	}
	for _, s := range result.Settlements {
		resp.Settlements = append(resp.Settlements, SettlementResponse{
			ID:                    s.ID,
			PartyType:             string(s.PartyType),
			PartyID:               s.PartyID,
			PeriodStart:           s.PeriodStart,
			PeriodEnd:             s.PeriodEnd,
			Currency:              s.Currency,
			EngineVersion:         s.EngineVersion,
			TotalGrossAmount:      s.TotalGrossAmount,
			TotalCommissionAmount: s.TotalCommissionAmount,
			TotalTaxAmount:        s.TotalTaxAmount,
			PayableAmount:         s.PayableAmount,
			ItemCount:             s.ItemCount,
			Status:                string(s.Status),
			HoldReason:            s.HoldReason,
			PayableAfter:          s.PayableAfter,
			RuleSetID:             s.RuleSetID,
			RuleSetVersion:        s.RuleSetVersion,
		})
	}
	for _, item := range result.SettlementItems {
		resp.Items = append(resp.Items, ItemResponse{
			SettlementID:     item.SettlementID,
			EventID:          item.EventID,
			OrderID:          item.OrderID,
			ProductID:        item.ProductID,
			RuleID:           item.RuleID,
			RuleType:         string(item.RuleType),
			TierIndex:        item.TierIndex,
			GrossAmount:      item.GrossAmount,
			CommissionAmount: item.CommissionAmount,
			TaxAmount:        item.TaxAmount,
			PayableAmount:    item.PayableAmount,
			ReasonCode:       item.ReasonCode,
		})
	}
	return resp
}
