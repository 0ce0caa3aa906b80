package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/services/ports"
	engine "github.com/kevin07696/settlement-service/internal/services/settlement"
	"github.com/kevin07696/settlement-service/internal/testutil/fixtures"
	"github.com/kevin07696/settlement-service/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockBatchService struct {
	mock.Mock
}

func (m *mockBatchService) RunDailyForAllParties(ctx context.Context, targetDate time.Time) (*ports.BatchSettlementResult, error) {
	args := m.Called(ctx, targetDate)
	return nil, args.Error(1)
}

func (m *mockBatchService) RunDailyForYesterday(ctx context.Context) (*ports.BatchSettlementResult, error) {
	args := m.Called(ctx)
	return nil, args.Error(1)
}

func (m *mockBatchService) DryRunDaily(ctx context.Context, targetDate time.Time) (*ports.BatchSettlementResult, error) {
	args := m.Called(ctx, targetDate)
	return nil, args.Error(1)
}

func (m *mockBatchService) Preview(ctx context.Context, req *ports.PreviewRequest) (*engine.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.Result), args.Error(1)
}

func newPreviewHandler(t *testing.T) (*PreviewHandler, *mockBatchService) {
	t.Helper()
	svc := new(mockBatchService)
	return NewPreviewHandler(svc, resilience.TestTimeoutConfig(), time.UTC, zap.NewNop()), svc
}

func postPreview(h *PreviewHandler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Preview(rec, httptest.NewRequest(http.MethodPost, "/api/v1/settlements/preview", strings.NewReader(body)))
	return rec
}

func previewResult() *engine.Result {
	day := fixtures.Date(2024, 3, 14)
	diag := engine.NewDiagnostics()
	diag.RuleHits["rule-seller"] = 2
	return &engine.Result{
		Settlements: []*models.Settlement{{
			ID:                    "stl-1",
			PartyType:             models.PartySeller,
			PartyID:               "S1",
			PeriodStart:           day,
			PeriodEnd:             day.Add(24*time.Hour - time.Millisecond),
			Currency:              "KRW",
			EngineVersion:         models.EngineVersionV2,
			TotalGrossAmount:      fixtures.Dec("20000"),
			TotalCommissionAmount: fixtures.Dec("2000"),
			TotalTaxAmount:        fixtures.Dec("66"),
			PayableAmount:         fixtures.Dec("1934"),
			ItemCount:             2,
			Status:                models.SettlementPending,
		}},
		SettlementItems: []*models.SettlementItem{{
			SettlementID:     "stl-1",
			EventID:          "evt-1",
			RuleID:           "rule-seller",
			RuleType:         models.CommissionPercentage,
			GrossAmount:      fixtures.Dec("10000"),
			CommissionAmount: fixtures.Dec("1000"),
			TaxAmount:        fixtures.Dec("33"),
			PayableAmount:    fixtures.Dec("967"),
			ReasonCode:       "percentage:rule-seller",
		}},
		Diagnostics: diag,
	}
}

func TestPreview_Success(t *testing.T) {
	h, svc := newPreviewHandler(t)
	start := fixtures.Date(2024, 3, 14)
	end := time.Date(2024, 3, 15, 23, 59, 59, int(999*time.Millisecond), time.UTC)

	svc.On("Preview", mock.Anything, mock.MatchedBy(func(req *ports.PreviewRequest) bool {
		return req.PeriodStart.Equal(start) &&
			req.PeriodEnd.Equal(end) &&
			len(req.Parties) == 1 &&
			req.Parties[0] == models.PartyRef{PartyType: models.PartySeller, PartyID: "S1"} &&
			req.RuleSetID == "rs-1" &&
			req.CompareWithV1
	})).Return(previewResult(), nil)

	rec := postPreview(h, `{
		"period_start": "2024-03-14",
		"period_end": "2024-03-15",
		"parties": [{"party_type": "seller", "party_id": "S1"}],
		"rule_set_id": "rs-1",
		"compare_with_v1": true
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Success     bool `json:"success"`
		Settlements []struct {
			PartyID       string `json:"party_id"`
			PayableAmount string `json:"payable_amount"`
			Status        string `json:"status"`
		} `json:"settlements"`
		Items []struct {
			ReasonCode string `json:"reason_code"`
		} `json:"items"`
		Diagnostics struct {
			RuleHits map[string]int `json:"rule_hits"`
		} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Settlements, 1)
	assert.Equal(t, "S1", resp.Settlements[0].PartyID)
	assert.Equal(t, "1934", resp.Settlements[0].PayableAmount)
	assert.Equal(t, "pending", resp.Settlements[0].Status)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "percentage:rule-seller", resp.Items[0].ReasonCode)
	assert.Equal(t, 2, resp.Diagnostics.RuleHits["rule-seller"])
	svc.AssertExpectations(t)
}

func TestPreview_RFC3339Bounds(t *testing.T) {
	h, svc := newPreviewHandler(t)
	start := time.Date(2024, 3, 14, 6, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 14, 18, 0, 0, 0, time.UTC)

	svc.On("Preview", mock.Anything, mock.MatchedBy(func(req *ports.PreviewRequest) bool {
		return req.PeriodStart.Equal(start) && req.PeriodEnd.Equal(end) && req.RuleSetID == ""
	})).Return(previewResult(), nil)

	rec := postPreview(h, `{
		"period_start": "2024-03-14T06:00:00Z",
		"period_end": "2024-03-14T18:00:00Z",
		"parties": [{"party_type": "seller", "party_id": "S1"}]
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestPreview_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{
			name:  "missing period start",
			body:  `{"period_end":"2024-03-14","parties":[{"party_type":"seller","party_id":"S1"}]}`,
			field: "period_start",
		},
		{
			name:  "bad period end",
			body:  `{"period_start":"2024-03-14","period_end":"tomorrow","parties":[{"party_type":"seller","party_id":"S1"}]}`,
			field: "period_end",
		},
		{
			name:  "inverted period",
			body:  `{"period_start":"2024-03-15","period_end":"2024-03-14","parties":[{"party_type":"seller","party_id":"S1"}]}`,
			field: "period_end",
		},
		{
			name:  "no parties",
			body:  `{"period_start":"2024-03-14","period_end":"2024-03-14","parties":[]}`,
			field: "parties",
		},
		{
			name:  "unknown party type",
			body:  `{"period_start":"2024-03-14","period_end":"2024-03-14","parties":[{"party_type":"buyer","party_id":"B1"}]}`,
			field: "parties.party_type",
		},
		{
			name:  "missing party id",
			body:  `{"period_start":"2024-03-14","period_end":"2024-03-14","parties":[{"party_type":"seller"}]}`,
			field: "parties.party_id",
		},
		{
			name:  "empty body",
			body:  ``,
			field: "body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := newPreviewHandler(t)

			rec := postPreview(h, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.field, resp["field"])
			svc.AssertNotCalled(t, "Preview", mock.Anything, mock.Anything)
		})
	}
}

func TestPreview_ServiceErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "rule set not found", err: domain.ErrRuleSetNotFound, wantCode: http.StatusNotFound},
		{name: "structural", err: domain.NewStructuralError("rule set failed validation"), wantCode: http.StatusUnprocessableEntity},
		{name: "database", err: domain.WrapError(domain.ErrorCodeDatabaseError, "failed to load party profiles", assert.AnError), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := newPreviewHandler(t)
			svc.On("Preview", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := postPreview(h, `{"period_start":"2024-03-14","period_end":"2024-03-14","parties":[{"party_type":"seller","party_id":"S1"}]}`)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestPreview_MethodNotAllowed(t *testing.T) {
	h, _ := newPreviewHandler(t)

	rec := httptest.NewRecorder()
	h.Preview(rec, httptest.NewRequest(http.MethodGet, "/api/v1/settlements/preview", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
