package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/kevin07696/settlement-service/internal/services/commission"
	"github.com/kevin07696/settlement-service/pkg/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config describes one engine run
type Config struct {
	PeriodStart       time.Time
	PeriodEnd         time.Time
	Parties           []models.PartyContext
	RuleSet           *models.CommissionRuleSet
	DryRun            bool
	PreventDuplicates bool
	CompareWithV1     bool
	EngineVersion     string // defaults to v2
	Tag               string
}

// Result is what a run produced. In a dry run nothing in it has been persisted.
type Result struct {
	Settlements     []*models.Settlement
	SettlementItems []*models.SettlementItem
	Commissions     []*models.Commission
	Diagnostics     *Diagnostics
}

// Engine generates party-scoped settlements from settlement events
type Engine struct {
	db          ports.TransactionManager
	events      ports.SettlementEventRepository
	settlements ports.SettlementRepository
	publisher   ports.SettlementPublisher
	resolver    *commission.Resolver
	logger      *zap.Logger
	now         func() time.Time
}

// NewEngine creates a new settlement engine. publisher may be nil.
func NewEngine(
	db ports.TransactionManager,
	events ports.SettlementEventRepository,
	settlements ports.SettlementRepository,
	publisher ports.SettlementPublisher,
	resolver *commission.Resolver,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:          db,
		events:      events,
		settlements: settlements,
		publisher:   publisher,
		resolver:    resolver,
		logger:      logger,
		now:         time.Now,
	}
}

// errDuplicateFound aborts the party transaction when the explicit check finds a settlement
type errDuplicateFound struct {
	existing *models.Settlement
}

func (e *errDuplicateFound) Error() string {
	return fmt.Sprintf("settlement %s already exists", e.existing.ID)
}

// partyOutcome is the computed, not yet committed, result for one party
type partyOutcome struct {
	settlement  *models.Settlement
	items       []*models.SettlementItem
	commissions []*models.Commission
	hits        []commission.Hits
}

// Run settles every party of cfg. Structural problems abort before any persistence and are
// returned as errors; per-party problems are recorded in the diagnostics and the run continues.
// Cancellation is observed between parties; the partial result is returned with ctx.Err().
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	start := time.Now()
	if cfg.EngineVersion == "" {
		cfg.EngineVersion = models.EngineVersionV2
	}

	if err := validateConfig(cfg); err != nil {
		e.logger.Error("Settlement run rejected",
			zap.String("engine_version", cfg.EngineVersion),
			zap.Error(err),
		)
		observability.RecordEngineRun(cfg.EngineVersion, cfg.DryRun, "structural_error", time.Since(start).Seconds())
		return nil, err
	}

	if !cfg.DryRun {
		e.logger.Warn("Settlement run will persist settlements",
			zap.Time("period_start", cfg.PeriodStart),
			zap.Time("period_end", cfg.PeriodEnd),
			zap.Int("parties", len(cfg.Parties)),
			zap.String("engine_version", cfg.EngineVersion),
		)
	}

	result := &Result{
		Settlements:     []*models.Settlement{},
		SettlementItems: []*models.SettlementItem{},
		Commissions:     []*models.Commission{},
		Diagnostics:     NewDiagnostics(),
	}

	for _, party := range cfg.Parties {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("Settlement run cancelled between parties",
				zap.Int("settled", len(result.Settlements)),
				zap.Error(err),
			)
			observability.RecordEngineRun(cfg.EngineVersion, cfg.DryRun, "cancelled", time.Since(start).Seconds())
			return result, err
		}
		e.settleParty(ctx, cfg, party, result)
	}

	observability.RecordRuleHits(result.Diagnostics.RuleHits, result.Diagnostics.TiersApplied)
	observability.RecordEngineRun(cfg.EngineVersion, cfg.DryRun, "success", time.Since(start).Seconds())

	e.logger.Info("Settlement run completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("settlements", len(result.Settlements)),
		zap.Int("items", len(result.SettlementItems)),
		zap.Int("duplicates", len(result.Diagnostics.Duplicates)),
		zap.Int("party_failures", len(result.Diagnostics.PartyFailures)),
		zap.Bool("dry_run", cfg.DryRun),
	)

	return result, nil
}

// validateConfig rejects runs that cannot be evaluated at all
func validateConfig(cfg Config) error {
	if cfg.PeriodStart.IsZero() || cfg.PeriodEnd.IsZero() {
		return domain.NewStructuralError("period start and end are required")
	}
	if cfg.PeriodEnd.Before(cfg.PeriodStart) {
		return domain.NewStructuralError("period end must not precede period start").
			WithDetail("period_start", cfg.PeriodStart).
			WithDetail("period_end", cfg.PeriodEnd)
	}
	if len(cfg.Parties) == 0 {
		return domain.NewStructuralError("at least one party must be specified")
	}
	if cfg.RuleSet == nil {
		return domain.NewStructuralError("rule set is required")
	}
	if err := cfg.RuleSet.Validate(); err != nil {
		code := domain.ErrorCodeRuleSetInvalid
		var rsErr *models.RuleSetError
		if errors.As(err, &rsErr) && rsErr.Overlap {
			code = domain.ErrorCodeTierOverlap
		}
		cause := domain.WrapError(code, "rule set failed validation", err)
		return domain.WrapError(domain.ErrorCodeStructural, "invalid rule set", cause).
			WithDetail("rule_set_id", cfg.RuleSet.ID)
	}
	for _, p := range cfg.Parties {
		if !p.PartyType.IsValid() || p.PartyID == "" {
			return domain.NewStructuralError(fmt.Sprintf("invalid party %q", p.Key()))
		}
	}
	return nil
}

func (e *Engine) settleParty(ctx context.Context, cfg Config, party models.PartyContext, result *Result) {
	partyKey := party.Key()
	diag := result.Diagnostics
	logger := e.logger.With(zap.String("party_key", partyKey))

	// A dry run cannot reach the storage guard, so it only does the read-side check.
	// A shadow run still prices a duplicate party so the v1 comparison is recorded.
	var existing *models.Settlement
	if cfg.DryRun && cfg.PreventDuplicates {
		found, err := e.settlements.FindActive(ctx, nil, party.Ref(), cfg.PeriodStart, cfg.PeriodEnd)
		if err != nil {
			e.recordFailure(diag, logger, partyKey, domain.ErrorCodeDatabaseError, err, "")
			return
		}
		if found != nil {
			if !cfg.CompareWithV1 {
				e.recordDuplicate(diag, logger, cfg, partyKey, found.ID, found.EngineVersion, false)
				return
			}
			existing = found
		}
	}
	skipAsDuplicate := func() {
		e.recordDuplicate(diag, logger, cfg, partyKey, existing.ID, existing.EngineVersion, false)
	}

	events, err := e.events.ListEligibleEvents(ctx, nil, party.Ref(), cfg.PeriodStart, cfg.PeriodEnd)
	if err != nil {
		e.recordFailure(diag, logger, partyKey, domain.ErrorCodeDatabaseError, err, "")
		return
	}
	if len(events) == 0 {
		if existing != nil {
			skipAsDuplicate()
			return
		}
		logger.Debug("No settlement events for party in period")
		diag.AddEmpty(partyKey)
		return
	}

	outcome, err := e.compute(cfg, party, events)
	if err != nil {
		if existing != nil {
			logger.Warn("Shadow pricing failed for already settled party", zap.Error(err))
			skipAsDuplicate()
			return
		}
		var eventID string
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) {
			if id, ok := domainErr.Details["event_id"].(string); ok {
				eventID = id
			}
		}
		e.recordFailure(diag, logger, partyKey, domain.GetErrorCode(err), err, eventID)
		return
	}

	if cfg.CompareWithV1 {
		e.compareWithV1(ctx, cfg, party, outcome.settlement.PayableAmount, diag, logger)
	}
	if existing != nil {
		skipAsDuplicate()
		return
	}

	if !cfg.DryRun {
		if err := e.persist(ctx, cfg, party, outcome); err != nil {
			var dup *errDuplicateFound
			switch {
			case errors.As(err, &dup):
				e.recordDuplicate(diag, logger, cfg, partyKey, dup.existing.ID, dup.existing.EngineVersion, false)
			case domain.IsDomainError(err, domain.ErrorCodeSettlementConflict):
				e.recordDuplicate(diag, logger, cfg, partyKey, "", cfg.EngineVersion, true)
			default:
				e.recordFailure(diag, logger, partyKey, domain.ErrorCodeDatabaseError, err, "")
			}
			return
		}
		observability.RecordSettlementCreated(
			string(outcome.settlement.PartyType),
			string(outcome.settlement.Status),
			outcome.settlement.Currency,
			outcome.settlement.PayableAmount.InexactFloat64(),
		)
		e.publish(ctx, outcome.settlement, logger)
	}

	result.Settlements = append(result.Settlements, outcome.settlement)
	result.SettlementItems = append(result.SettlementItems, outcome.items...)
	result.Commissions = append(result.Commissions, outcome.commissions...)
	diag.AddHits(outcome.hits)
	diag.AddTotal(partyKey, outcome.settlement.PayableAmount)
}

// compute prices all events of a party and aggregates them. Any resolution error aborts the party.
func (e *Engine) compute(cfg Config, party models.PartyContext, events []*models.SettlementEvent) (*partyOutcome, error) {
	currency := party.Currency
	if currency == "" {
		currency = events[0].Currency
	}
	if currency == "" {
		return nil, domain.NewConfigurationError(domain.ErrorCodePartyConfigMissing, "party has no settlement currency").
			WithDetail("party_key", party.Key())
	}

	now := e.now()
	taxRate := party.EffectiveTaxRate()

	s := &models.Settlement{
		ID:                    uuid.New().String(),
		PartyType:             party.PartyType,
		PartyID:               party.PartyID,
		PeriodStart:           cfg.PeriodStart,
		PeriodEnd:             cfg.PeriodEnd,
		Currency:              currency,
		EngineVersion:         cfg.EngineVersion,
		TotalGrossAmount:      decimal.Zero,
		TotalCommissionAmount: decimal.Zero,
		TotalTaxAmount:        decimal.Zero,
		PayableAmount:         decimal.Zero,
		Status:                models.SettlementPending,
		Tag:                   cfg.Tag,
		RuleSetID:             cfg.RuleSet.ID,
		RuleSetVersion:        cfg.RuleSet.Version,
		CreatedAt:             now,
	}

	out := &partyOutcome{
		settlement:  s,
		items:       make([]*models.SettlementItem, 0, len(events)),
		commissions: make([]*models.Commission, 0, len(events)),
		hits:        make([]commission.Hits, 0, len(events)),
	}

	for _, event := range events {
		if event.Currency != "" && event.Currency != currency {
			return nil, domain.NewConfigurationError(domain.ErrorCodeCurrencyMismatch,
				fmt.Sprintf("event currency %s differs from settlement currency %s", event.Currency, currency)).
				WithDetail("party_key", party.Key()).
				WithDetail("event_id", event.ID)
		}

		res, err := e.resolver.Resolve(party, event, cfg.RuleSet)
		if err != nil {
			return nil, err
		}

		tax := models.RoundAmount(res.Amount.Mul(taxRate), currency)
		payable := res.Amount.Sub(tax)

		item := &models.SettlementItem{
			ID:               uuid.New().String(),
			SettlementID:     s.ID,
			CommissionID:     uuid.New().String(),
			EventID:          event.ID,
			OrderID:          event.OrderID,
			OrderItemID:      event.OrderItemID,
			ProductID:        event.ProductID,
			Quantity:         event.Quantity,
			PartyType:        party.PartyType,
			PartyID:          party.PartyID,
			RuleID:           res.Rule.ID,
			RuleName:         res.Rule.Name,
			RuleType:         res.Rule.Type,
			TierIndex:        res.TierIndex,
			GrossAmount:      event.GrossAmount,
			CommissionAmount: res.Amount,
			TaxAmount:        tax,
			PayableAmount:    payable,
			Currency:         currency,
			ReasonCode:       reasonCode(res),
			CreatedAt:        now,
		}

		itemID := item.ID
		commissionStatus := models.CommissionSettled
		if cfg.DryRun {
			commissionStatus = models.CommissionCalculated
		}
		c := &models.Commission{
			ID:               item.CommissionID,
			EventID:          event.ID,
			OrderID:          event.OrderID,
			PartyType:        party.PartyType,
			PartyID:          party.PartyID,
			RuleID:           res.Rule.ID,
			RuleType:         res.Rule.Type,
			BaseAmount:       event.GrossAmount,
			AppliedRate:      res.Rate,
			Amount:           res.Amount,
			Currency:         currency,
			SettlementItemID: &itemID,
			Status:           commissionStatus,
			CalculatedAt:     now,
		}

		s.TotalGrossAmount = s.TotalGrossAmount.Add(event.GrossAmount)
		s.TotalCommissionAmount = s.TotalCommissionAmount.Add(res.Amount)
		s.TotalTaxAmount = s.TotalTaxAmount.Add(tax)
		s.PayableAmount = s.PayableAmount.Add(payable)

		out.items = append(out.items, item)
		out.commissions = append(out.commissions, c)
		out.hits = append(out.hits, res.Hits)
	}
	s.ItemCount = len(out.items)

	if party.MinPayoutAmount != nil && s.PayableAmount.LessThan(*party.MinPayoutAmount) {
		s.Status = models.SettlementHeld
		s.HoldReason = models.HoldReasonBelowMinPayout
	}
	if party.HoldPeriodDays > 0 {
		after := cfg.PeriodEnd.AddDate(0, 0, party.HoldPeriodDays)
		s.PayableAfter = &after
	}

	return out, nil
}

func reasonCode(res *commission.Resolution) string {
	if res.TierIndex != nil {
		return fmt.Sprintf("%s:%s:tier_%d", res.Rule.Type, res.Rule.ID, *res.TierIndex)
	}
	return fmt.Sprintf("%s:%s", res.Rule.Type, res.Rule.ID)
}

// persist writes the party's rows in one transaction, re-checking for duplicates inside it
func (e *Engine) persist(ctx context.Context, cfg Config, party models.PartyContext, out *partyOutcome) error {
	return e.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if cfg.PreventDuplicates {
			existing, err := e.settlements.FindActive(ctx, tx, party.Ref(), cfg.PeriodStart, cfg.PeriodEnd)
			if err != nil {
				return fmt.Errorf("check existing settlement: %w", err)
			}
			if existing != nil {
				return &errDuplicateFound{existing: existing}
			}
		}

		return e.settlements.Create(ctx, tx, out.settlement, out.items, out.commissions)
	})
}

func (e *Engine) compareWithV1(ctx context.Context, cfg Config, party models.PartyContext, v2Amount decimal.Decimal, diag *Diagnostics, logger *zap.Logger) {
	v1, err := e.settlements.FindByEngineVersion(ctx, nil, party.Ref(), cfg.PeriodStart, cfg.PeriodEnd, models.EngineVersionV1)
	if err != nil {
		logger.Warn("Failed to load v1 settlement for comparison", zap.Error(err))
		return
	}
	if v1 == nil {
		logger.Debug("No v1 settlement to compare against")
		return
	}
	diag.AddComparison(party.Key(), v1.PayableAmount, v2Amount)
}

// publish notifies downstream consumers. Failures never undo a committed settlement.
func (e *Engine) publish(ctx context.Context, s *models.Settlement, logger *zap.Logger) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishSettlementCreated(ctx, s); err != nil {
		logger.Error("Failed to publish settlement.created",
			zap.String("settlement_id", s.ID),
			zap.Error(err),
		)
	}
}

func (e *Engine) recordDuplicate(diag *Diagnostics, logger *zap.Logger, cfg Config, partyKey, settlementID, engineVersion string, conflict bool) {
	logger.Info("Settlement already exists for party and period, skipping",
		zap.String("existing_settlement_id", settlementID),
		zap.String("existing_engine_version", engineVersion),
		zap.Bool("conflict", conflict),
	)
	diag.AddDuplicate(DuplicateRecord{
		PartyKey:      partyKey,
		SettlementID:  settlementID,
		PeriodStart:   cfg.PeriodStart,
		PeriodEnd:     cfg.PeriodEnd,
		EngineVersion: engineVersion,
		Conflict:      conflict,
	})
	observability.RecordDuplicate(conflict)
}

func (e *Engine) recordFailure(diag *Diagnostics, logger *zap.Logger, partyKey string, code domain.ErrorCode, err error, eventID string) {
	if code == "" {
		code = domain.ErrorCodeInternalError
	}
	logger.Error("Party settlement aborted",
		zap.String("code", string(code)),
		zap.String("event_id", eventID),
		zap.Error(err),
	)
	diag.AddFailure(PartyFailure{
		PartyKey: partyKey,
		Code:     code,
		Message:  err.Error(),
		EventID:  eventID,
	})
	observability.RecordPartyFailure(string(code))
}
