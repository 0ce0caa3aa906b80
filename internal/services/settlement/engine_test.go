package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kevin07696/settlement-service/internal/adapters/memory"
	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/services/commission"
	"github.com/kevin07696/settlement-service/internal/testutil/fixtures"
	"github.com/kevin07696/settlement-service/internal/testutil/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	janStart = fixtures.Date(2025, time.January, 1)
	janEnd   = time.Date(2025, time.January, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC)
)

type engineHarness struct {
	store     *memory.Store
	publisher *mocks.MockSettlementPublisher
	engine    *Engine
}

func newHarness(t *testing.T) *engineHarness {
	t.Helper()
	store := memory.NewStore()
	publisher := new(mocks.MockSettlementPublisher)
	publisher.On("PublishSettlementCreated", mock.Anything, mock.Anything).Return(nil).Maybe()

	engine := NewEngine(
		memory.NewTxManager(),
		memory.NewEventRepository(store),
		memory.NewSettlementRepository(store),
		publisher,
		commission.NewResolver(),
		zap.NewNop(),
	)
	return &engineHarness{store: store, publisher: publisher, engine: engine}
}

func sellerRuleSet() *models.CommissionRuleSet {
	return fixtures.RuleSet("rs-2025",
		fixtures.PercentageRule("seller-5", models.PartySeller, "5"),
		fixtures.TieredRule("supplier-tiers", models.PartySupplier,
			fixtures.Tier("0", "100000", "3"),
			fixtures.Tier("100000", "", "2"),
		),
		fixtures.FixedRule("partner-flat", models.PartyPartner, "500"),
	)
}

func TestEngine_DryRunSingleSeller(t *testing.T) {
	h := newHarness(t)
	h.store.AddEvents(fixtures.NewEvent(models.PartySeller, "S1").WithGross("200000").Build())

	result, err := h.engine.Run(context.Background(), Config{
		PeriodStart: janStart,
		PeriodEnd:   janEnd,
		Parties:     []models.PartyContext{fixtures.Party(models.PartySeller, "S1", "KRW")},
		RuleSet:     sellerRuleSet(),
		DryRun:      true,
	})
	require.NoError(t, err)

	require.Len(t, result.Settlements, 1)
	s := result.Settlements[0]
	assert.Equal(t, "10000", s.PayableAmount.String())
	assert.Equal(t, "200000", s.TotalGrossAmount.String())
	assert.Equal(t, models.EngineVersionV2, s.EngineVersion)
	assert.Equal(t, models.SettlementPending, s.Status)
	assert.Equal(t, 1, s.ItemCount)

	require.Len(t, result.SettlementItems, 1)
	require.Len(t, result.Commissions, 1)
	assert.Equal(t, models.CommissionCalculated, result.Commissions[0].Status)

	assert.Equal(t, 1, result.Diagnostics.RuleHits["seller-5"])
	assert.Equal(t, "10000", result.Diagnostics.TotalsByParty["seller:S1"].String())

	// no side effects
	assert.Equal(t, 0, h.store.SettlementCount())
	assert.Equal(t, 0, h.store.CommissionCount())
	h.publisher.AssertNotCalled(t, "PublishSettlementCreated", mock.Anything, mock.Anything)
}

func TestEngine_PersistsAndPublishes(t *testing.T) {
	h := newHarness(t)
	h.store.AddEvents(fixtures.Events(models.PartySeller, "S1", fixtures.Date(2025, time.January, 10), 3, "10000")...)
	h.store.AddEvents(fixtures.Events(models.PartySupplier, "SUP1", fixtures.Date(2025, time.January, 11), 2, "150000")...)

	result, err := h.engine.Run(context.Background(), Config{
		PeriodStart: janStart,
		PeriodEnd:   janEnd,
		Parties: []models.PartyContext{
			fixtures.Party(models.PartySeller, "S1", "KRW"),
			fixtures.Party(models.PartySupplier, "SUP1", "KRW"),
		},
		RuleSet:           sellerRuleSet(),
		PreventDuplicates: true,
		Tag:               "daily-2025-01",
	})
	require.NoError(t, err)

	require.Len(t, result.Settlements, 2)
	assert.Equal(t, 2, h.store.SettlementCount())
	assert.Equal(t, 5, h.store.CommissionCount())
	h.publisher.AssertNumberOfCalls(t, "PublishSettlementCreated", 2)

	for _, c := range result.Commissions {
		assert.Equal(t, models.CommissionSettled, c.Status)
		require.NotNil(t, c.SettlementItemID)
	}
	assert.Equal(t, "daily-2025-01", result.Settlements[0].Tag)
	assert.Equal(t, 2, result.Diagnostics.TiersApplied["supplier-tiers"])
	assert.Equal(t, 3, result.Diagnostics.RuleHits["seller-5"])
}

func TestEngine_SumInvariant(t *testing.T) {
	h := newHarness(t)
	grosses := []string{"333", "1000.01", "99999", "0.07", "12345.67"}
	for i, g := range grosses {
		h.store.AddEvents(fixtures.NewEvent(models.PartySeller, "S1").
			WithCurrency("USD").
			WithGross(g).
			At(fixtures.Date(2025, time.January, i+2)).
			Build())
	}

	party := fixtures.Party(models.PartySeller, "S1", "USD")
	party.TaxRate = fixtures.DecPtr("0.033")

	result, err := h.engine.Run(context.Background(), Config{
		PeriodStart: janStart,
		PeriodEnd:   janEnd,
		Parties:     []models.PartyContext{party},
		RuleSet:     fixtures.RuleSet("rs", fixtures.PercentageRule("r", models.PartySeller, "7.25")),
		DryRun:      true,
	})
	require.NoError(t, err)
	require.Len(t, result.Settlements, 1)
	s := result.Settlements[0]

	payable, commissionSum, tax := decimal.Zero, decimal.Zero, decimal.Zero
	for _, it := range result.SettlementItems {
		payable = payable.Add(it.PayableAmount)
		commissionSum = commissionSum.Add(it.CommissionAmount)
		tax = tax.Add(it.TaxAmount)
		assert.True(t, it.PayableAmount.Equal(it.CommissionAmount.Sub(it.TaxAmount)))
		assert.LessOrEqual(t, -it.TaxAmount.Exponent(), int32(2), "tax must be rounded to cents")
	}
	assert.True(t, payable.Equal(s.PayableAmount), "items %s != settlement %s", payable, s.PayableAmount)
	assert.True(t, commissionSum.Equal(s.TotalCommissionAmount))
	assert.True(t, tax.Equal(s.TotalTaxAmount))
	assert.False(t, s.TotalTaxAmount.IsZero())
}

func TestEngine_HoldAndPayableAfter(t *testing.T) {
	h := newHarness(t)
	h.store.AddEvents(fixtures.NewEvent(models.PartySeller, "S1").WithGross("20000").Build())

	party := fixtures.Party(models.PartySeller, "S1", "KRW")
	party.MinPayoutAmount = fixtures.DecPtr("5000")
	party.HoldPeriodDays = 7

	result, err := h.engine.Run(context.Background(), Config{
		PeriodStart: janStart,
		PeriodEnd:   janEnd,
		Parties:     []models.PartyContext{party},
		RuleSet:     sellerRuleSet(),
		DryRun:      true,
	})
	require.NoError(t, err)
	require.Len(t, result.Settlements, 1)

	s := result.Settlements[0]
	assert.Equal(t, "1000", s.PayableAmount.String())
	assert.Equal(t, models.SettlementHeld, s.Status)
	assert.Equal(t, models.HoldReasonBelowMinPayout, s.HoldReason)
	require.NotNil(t, s.PayableAfter)
	assert.True(t, s.PayableAfter.Equal(janEnd.AddDate(0, 0, 7)))
}

func TestEngine_DuplicatePrevention(t *testing.T) {
	h := newHarness(t)
	h.store.AddEvents(fixtures.NewEvent(models.PartySeller, "S1").WithGross("200000").Build())

	cfg := Config{
		PeriodStart:       janStart,
		PeriodEnd:         janEnd,
		Parties:           []models.PartyContext{fixtures.Party(models.PartySeller, "S1", "KRW")},
		RuleSet:           sellerRuleSet(),
		PreventDuplicates: true,
	}

	first, err := h.engine.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, first.Settlements, 1)

	second, err := h.engine.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, second.Settlements)
	require.Len(t, second.Diagnostics.Duplicates, 1)

	dup := second.Diagnostics.Duplicates[0]
	assert.Equal(t, "seller:S1", dup.PartyKey)
	assert.Equal(t, first.Settlements[0].ID, dup.SettlementID)
	assert.False(t, dup.Conflict)
	assert.True(t, second.Diagnostics.DuplicatesDetected())
	assert.Equal(t, 1, h.store.SettlementCount())
}

func TestEngine_DuplicateCheckIgnoresEngineVersion(t *testing.T) {
	h := newHarness(t)
	h.store.AddEvents(fixtures.NewEvent(models.PartySeller, "S1").WithGross("200000").Build())
	h.store.PutSettlement(&models.Settlement{
		ID: "legacy-1", PartyType: models.PartySeller, PartyID: "S1",
		PeriodStart: janStart, PeriodEnd: janEnd, EngineVersion: models.EngineVersionV1,
		PayableAmount: fixtures.Dec("9000"), Status: models.SettlementPending,
	})

	for _, dryRun := range []bool{true, false} {
		result, err := h.engine.Run(context.Background(), Config{
			PeriodStart:       janStart,
			PeriodEnd:         janEnd,
			Parties:           []models.PartyContext{fixtures.Party(models.PartySeller, "S1", "KRW")},
			RuleSet:           sellerRuleSet(),
			DryRun:            dryRun,
			PreventDuplicates: true,
		})
		require.NoError(t, err)
		require.Len(t, result.Diagnostics.Duplicates, 1, "dryRun=%v", dryRun)
		assert.Equal(t, models.EngineVersionV1, result.Diagnostics.Duplicates[0].EngineVersion)
	}
	assert.Equal(t, 1, h.store.SettlementCount())
}

func TestEngine_StorageConflictIsDuplicate(t *testing.T) {
	h := newHarness(t)
	h.store.AddEvents(fixtures.NewEvent(models.PartySeller, "S1").WithGross("200000").Build())

	cfg := Config{
		PeriodStart: janStart,
		PeriodEnd:   janEnd,
		Parties:     []models.PartyContext{fixtures.Party(models.PartySeller, "S1", "KRW")},
		RuleSet:     sellerRuleSet(),
	}
	_, err := h.engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	// without the explicit check the unique index still refuses a second active row
	second, err := h.engine.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, second.Settlements)
	require.Len(t, second.Diagnostics.Duplicates, 1)
	assert.True(t, second.Diagnostics.Duplicates[0].Conflict)
	assert.Equal(t, 1, h.store.SettlementCount())
}

func TestEngine_ShadowComparison(t *testing.T) {
	h := newHarness(t)
	h.store.AddEvents(fixtures.NewEvent(models.PartySeller, "S1").WithGross("200000").Build())
	h.store.PutSettlement(&models.Settlement{
		ID: "legacy-1", PartyType: models.PartySeller, PartyID: "S1",
		PeriodStart: janStart, PeriodEnd: janEnd, EngineVersion: models.EngineVersionV1,
		PayableAmount: fixtures.Dec("8000"), Status: models.SettlementPending,
	})

	result, err := h.engine.Run(context.Background(), Config{
		PeriodStart:   janStart,
		PeriodEnd:     janEnd,
		Parties:       []models.PartyContext{fixtures.Party(models.PartySeller, "S1", "KRW")},
		RuleSet:       sellerRuleSet(),
		DryRun:        true,
		CompareWithV1: true,
	})
	require.NoError(t, err)

	require.Len(t, result.Diagnostics.V1VsV2Diff, 1)
	diff := result.Diagnostics.V1VsV2Diff[0]
	assert.Equal(t, "8000", diff.V1Amount.String())
	assert.Equal(t, "10000", diff.V2Amount.String())
	assert.Equal(t, "2000", diff.Difference.String())
	assert.Equal(t, "25", diff.DiffPercentage.String())

	// comparison never alters the computed amount
	assert.Equal(t, "10000", result.Settlements[0].PayableAmount.String())
}

func TestEngine_ShadowComparisonOnSettledParty(t *testing.T) {
	h := newHarness(t)
	h.store.AddEvents(fixtures.NewEvent(models.PartySeller, "S1").WithGross("200000").Build())
	h.store.PutSettlement(&models.Settlement{
		ID: "legacy-1", PartyType: models.PartySeller, PartyID: "S1",
		PeriodStart: janStart, PeriodEnd: janEnd, EngineVersion: models.EngineVersionV1,
		PayableAmount: fixtures.Dec("8000"), Status: models.SettlementPending,
	})

	tests := []struct {
		name      string
		compare   bool
		wantDiffs int
	}{
		{name: "shadow run records the diff", compare: true, wantDiffs: 1},
		{name: "plain dry run only skips", compare: false, wantDiffs: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.engine.Run(context.Background(), Config{
				PeriodStart:       janStart,
				PeriodEnd:         janEnd,
				Parties:           []models.PartyContext{fixtures.Party(models.PartySeller, "S1", "KRW")},
				RuleSet:           sellerRuleSet(),
				DryRun:            true,
				PreventDuplicates: true,
				CompareWithV1:     tt.compare,
			})
			require.NoError(t, err)

			// the existing settlement still blocks the party
			assert.Empty(t, result.Settlements)
			require.Len(t, result.Diagnostics.Duplicates, 1)
			assert.Equal(t, "legacy-1", result.Diagnostics.Duplicates[0].SettlementID)

			require.Len(t, result.Diagnostics.V1VsV2Diff, tt.wantDiffs)
			if tt.wantDiffs == 1 {
				diff := result.Diagnostics.V1VsV2Diff[0]
				assert.Equal(t, "8000", diff.V1Amount.String())
				assert.Equal(t, "10000", diff.V2Amount.String())
				assert.Equal(t, "25", diff.DiffPercentage.String())
			}
			assert.Equal(t, 1, h.store.SettlementCount())
		})
	}
}

func TestEngine_PartyConfigFailureDoesNotStopRun(t *testing.T) {
	h := newHarness(t)
	h.store.AddEvents(fixtures.NewEvent(models.PartySeller, "S1").WithGross("1000").Build())
	h.store.AddEvents(fixtures.NewEvent(models.PartyPlatform, "PLAT").WithID("plat-event").WithGross("1000").Build())

	result, err := h.engine.Run(context.Background(), Config{
		PeriodStart: janStart,
		PeriodEnd:   janEnd,
		Parties: []models.PartyContext{
			fixtures.Party(models.PartyPlatform, "PLAT", "KRW"),
			fixtures.Party(models.PartySeller, "S1", "KRW"),
		},
		RuleSet: sellerRuleSet(),
	})
	require.NoError(t, err)

	require.Len(t, result.Settlements, 1)
	assert.Equal(t, "S1", result.Settlements[0].PartyID)

	require.Len(t, result.Diagnostics.PartyFailures, 1)
	failure := result.Diagnostics.PartyFailures[0]
	assert.Equal(t, "platform:PLAT", failure.PartyKey)
	assert.Equal(t, domain.ErrorCodeRuleNotMatched, failure.Code)
	assert.Equal(t, "plat-event", failure.EventID)
	assert.NotContains(t, result.Diagnostics.RuleHits, "")
}

func TestEngine_TierGapAbortsOnlyThatParty(t *testing.T) {
	h := newHarness(t)
	h.store.AddEvents(
		fixtures.NewEvent(models.PartySupplier, "SUP1").WithID("ok").WithGross("50").Build(),
		fixtures.NewEvent(models.PartySupplier, "SUP1").WithID("gap").WithGross("150").At(fixtures.Date(2025, time.January, 20)).Build(),
	)
	ruleSet := fixtures.RuleSet("rs", fixtures.TieredRule("t", models.PartySupplier,
		fixtures.Tier("0", "100", "5"),
		fixtures.Tier("200", "", "10"),
	))

	result, err := h.engine.Run(context.Background(), Config{
		PeriodStart: janStart,
		PeriodEnd:   janEnd,
		Parties:     []models.PartyContext{fixtures.Party(models.PartySupplier, "SUP1", "KRW")},
		RuleSet:     ruleSet,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Settlements)
	require.Len(t, result.Diagnostics.PartyFailures, 1)
	assert.Equal(t, domain.ErrorCodeTierNotFound, result.Diagnostics.PartyFailures[0].Code)
	assert.Equal(t, "gap", result.Diagnostics.PartyFailures[0].EventID)
	// hits of the aborted party are not reported
	assert.Empty(t, result.Diagnostics.RuleHits)
	assert.Equal(t, 0, h.store.SettlementCount())
}

func TestEngine_CurrencyMismatch(t *testing.T) {
	h := newHarness(t)
	h.store.AddEvents(fixtures.NewEvent(models.PartySeller, "S1").WithCurrency("USD").Build())

	result, err := h.engine.Run(context.Background(), Config{
		PeriodStart: janStart,
		PeriodEnd:   janEnd,
		Parties:     []models.PartyContext{fixtures.Party(models.PartySeller, "S1", "KRW")},
		RuleSet:     sellerRuleSet(),
		DryRun:      true,
	})
	require.NoError(t, err)
	require.Len(t, result.Diagnostics.PartyFailures, 1)
	assert.Equal(t, domain.ErrorCodeCurrencyMismatch, result.Diagnostics.PartyFailures[0].Code)
}

func TestEngine_PartyWithoutEvents(t *testing.T) {
	h := newHarness(t)

	result, err := h.engine.Run(context.Background(), Config{
		PeriodStart: janStart,
		PeriodEnd:   janEnd,
		Parties:     []models.PartyContext{fixtures.Party(models.PartySeller, "S1", "KRW")},
		RuleSet:     sellerRuleSet(),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Settlements)
	assert.Empty(t, result.Diagnostics.PartyFailures)
	assert.Equal(t, []string{"seller:S1"}, result.Diagnostics.PartiesEmpty)
}

func TestEngine_StructuralErrors(t *testing.T) {
	h := newHarness(t)
	parties := []models.PartyContext{fixtures.Party(models.PartySeller, "S1", "KRW")}

	overlapping := fixtures.RuleSet("bad", fixtures.TieredRule("t", models.PartySupplier,
		fixtures.Tier("0", "150", "5"),
		fixtures.Tier("100", "", "10"),
	))

	tests := []struct {
		name      string
		cfg       Config
		causeCode domain.ErrorCode
	}{
		{"missing period", Config{PeriodEnd: janEnd, Parties: parties, RuleSet: sellerRuleSet()}, ""},
		{"inverted period", Config{PeriodStart: janEnd, PeriodEnd: janStart, Parties: parties, RuleSet: sellerRuleSet()}, ""},
		{"no parties", Config{PeriodStart: janStart, PeriodEnd: janEnd, RuleSet: sellerRuleSet()}, ""},
		{"nil rule set", Config{PeriodStart: janStart, PeriodEnd: janEnd, Parties: parties}, ""},
		{"empty rule set", Config{PeriodStart: janStart, PeriodEnd: janEnd, Parties: parties, RuleSet: fixtures.RuleSet("empty")}, domain.ErrorCodeRuleSetInvalid},
		{"overlapping tiers", Config{PeriodStart: janStart, PeriodEnd: janEnd, Parties: parties, RuleSet: overlapping}, domain.ErrorCodeTierOverlap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.engine.Run(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, domain.IsStructuralError(err))

			if tt.causeCode != "" {
				var domainErr *domain.DomainError
				require.True(t, errors.As(err, &domainErr))
				assert.Equal(t, tt.causeCode, domain.GetErrorCode(domainErr.Err))
			}
		})
	}
	assert.Equal(t, 0, h.store.SettlementCount())
}

func TestEngine_CancellationBetweenParties(t *testing.T) {
	h := newHarness(t)
	h.store.AddEvents(fixtures.NewEvent(models.PartySeller, "S1").Build())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.engine.Run(ctx, Config{
		PeriodStart: janStart,
		PeriodEnd:   janEnd,
		Parties:     []models.PartyContext{fixtures.Party(models.PartySeller, "S1", "KRW")},
		RuleSet:     sellerRuleSet(),
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Empty(t, result.Settlements)
	assert.Equal(t, 0, h.store.SettlementCount())
}

func TestEngine_PublishFailureKeepsSettlement(t *testing.T) {
	store := memory.NewStore()
	store.AddEvents(fixtures.NewEvent(models.PartySeller, "S1").Build())
	publisher := new(mocks.MockSettlementPublisher)
	publisher.On("PublishSettlementCreated", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	engine := NewEngine(memory.NewTxManager(), memory.NewEventRepository(store), memory.NewSettlementRepository(store),
		publisher, commission.NewResolver(), zap.NewNop())

	result, err := engine.Run(context.Background(), Config{
		PeriodStart: janStart,
		PeriodEnd:   janEnd,
		Parties:     []models.PartyContext{fixtures.Party(models.PartySeller, "S1", "KRW")},
		RuleSet:     sellerRuleSet(),
	})
	require.NoError(t, err)
	assert.Len(t, result.Settlements, 1)
	assert.Equal(t, 1, store.SettlementCount())
	publisher.AssertExpectations(t)
}

func TestEngine_RepositoryFailureRecordedPerParty(t *testing.T) {
	events := new(mocks.MockSettlementEventRepository)
	settlements := new(mocks.MockSettlementRepository)
	db := new(mocks.MockDBPort)

	s1 := models.PartyRef{PartyType: models.PartySeller, PartyID: "S1"}
	s2 := models.PartyRef{PartyType: models.PartySeller, PartyID: "S2"}
	events.On("ListEligibleEvents", mock.Anything, nil, s1, janStart, janEnd).Return(nil, errors.New("connection reset"))
	events.On("ListEligibleEvents", mock.Anything, nil, s2, janStart, janEnd).
		Return([]*models.SettlementEvent{fixtures.NewEvent(models.PartySeller, "S2").Build()}, nil)
	db.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	settlements.On("Create", mock.Anything, nil, mock.AnythingOfType("*models.Settlement"), mock.Anything, mock.Anything).Return(nil)

	engine := NewEngine(db, events, settlements, nil, commission.NewResolver(), zap.NewNop())

	result, err := engine.Run(context.Background(), Config{
		PeriodStart: janStart,
		PeriodEnd:   janEnd,
		Parties: []models.PartyContext{
			fixtures.Party(models.PartySeller, "S1", "KRW"),
			fixtures.Party(models.PartySeller, "S2", "KRW"),
		},
		RuleSet: sellerRuleSet(),
	})
	require.NoError(t, err)
	require.Len(t, result.Settlements, 1)
	require.Len(t, result.Diagnostics.PartyFailures, 1)
	assert.Equal(t, domain.ErrorCodeDatabaseError, result.Diagnostics.PartyFailures[0].Code)

	events.AssertExpectations(t)
	settlements.AssertExpectations(t)
	settlements.AssertNotCalled(t, "FindActive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
