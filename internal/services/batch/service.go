package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	serviceports "github.com/kevin07696/settlement-service/internal/services/ports"
	"github.com/kevin07696/settlement-service/internal/services/settlement"
	"github.com/kevin07696/settlement-service/internal/services/stateguard"
	"github.com/kevin07696/settlement-service/pkg/observability"
	"github.com/kevin07696/settlement-service/pkg/timeutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Runner executes a settlement engine run
type Runner interface {
	Run(ctx context.Context, cfg settlement.Config) (*settlement.Result, error)
}

// Config holds the batch defaults applied to every daily run
type Config struct {
	Location          *time.Location
	EngineVersion     string
	PreventDuplicates bool
	CompareWithV1     bool
	LockTTL           time.Duration

	// Applied when a party has no stored profile value
	DefaultCurrency  string
	DefaultTaxRate   *decimal.Decimal
	DefaultMinPayout *decimal.Decimal
	DefaultHoldDays  int
}

// Service implements ports.SettlementBatchService
type Service struct {
	db       ports.TransactionManager
	engine   Runner
	events   ports.SettlementEventRepository
	ruleSets ports.RuleSetRepository
	profiles ports.PartyProfileRepository
	batches  ports.SettlementBatchRepository
	locker   ports.RunLocker
	guard    *stateguard.Guard
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new settlement batch service
func NewService(
	db ports.TransactionManager,
	engine Runner,
	events ports.SettlementEventRepository,
	ruleSets ports.RuleSetRepository,
	profiles ports.PartyProfileRepository,
	batches ports.SettlementBatchRepository,
	locker ports.RunLocker,
	guard *stateguard.Guard,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &Service{
		db:       db,
		engine:   engine,
		events:   events,
		ruleSets: ruleSets,
		profiles: profiles,
		batches:  batches,
		locker:   locker,
		guard:    guard,
		cfg:      cfg,
		logger:   logger,
		now:      timeutil.Now,
	}
}

var _ serviceports.SettlementBatchService = (*Service)(nil)

// RunDailyForAllParties settles every party with activity on targetDate
func (s *Service) RunDailyForAllParties(ctx context.Context, targetDate time.Time) (*serviceports.BatchSettlementResult, error) {
	return s.runDaily(ctx, targetDate, false)
}

// RunDailyForYesterday settles the previous calendar day
func (s *Service) RunDailyForYesterday(ctx context.Context) (*serviceports.BatchSettlementResult, error) {
	return s.runDaily(ctx, timeutil.Yesterday(s.now(), s.cfg.Location), false)
}

// DryRunDaily computes the daily run without persisting, publishing or locking
func (s *Service) DryRunDaily(ctx context.Context, targetDate time.Time) (*serviceports.BatchSettlementResult, error) {
	return s.runDaily(ctx, targetDate, true)
}

func (s *Service) runDaily(ctx context.Context, targetDate time.Time, dryRun bool) (result *serviceports.BatchSettlementResult, err error) {
	startTime := s.now()
	dayStart, dayEnd := timeutil.DayBounds(targetDate, s.cfg.Location)
	day := dayStart.Format(timeutil.DateLayout)
	logger := s.logger.With(zap.String("target_date", day), zap.Bool("dry_run", dryRun))

	result = &serviceports.BatchSettlementResult{
		TargetDate: day,
		DryRun:     dryRun,
		StartTime:  startTime,
	}
	defer func() {
		result.EndTime = s.now()
		result.DurationMs = result.EndTime.Sub(startTime).Milliseconds()
		status := "success"
		switch {
		case err != nil:
			status = "error"
		case result.PartiesFailed > 0:
			status = "partial"
		}
		observability.RecordBatch(status, result.EndTime.Sub(startTime).Seconds())
	}()

	if !dryRun {
		release, err := s.acquire(ctx, day)
		if err != nil {
			return result, err
		}
		defer func() {
			if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
				logger.Warn("Failed to release settlement run lock", zap.Error(relErr))
			}
		}()
	}

	refs, err := s.events.ListActiveParties(ctx, nil, dayStart, dayEnd)
	if err != nil {
		return result, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to list active parties", err).
			WithDetail("target_date", day)
	}
	if len(refs) == 0 {
		logger.Info("No settlement activity for target date")
		return result, nil
	}

	parties, err := s.partyContexts(ctx, refs)
	if err != nil {
		return result, err
	}

	ruleSet, err := s.ruleSets.GetActive(ctx, nil, dayStart)
	if err != nil {
		return result, fmt.Errorf("resolve active rule set for %s: %w", day, err)
	}

	logger.Info("Starting daily settlement run",
		zap.Int("parties", len(parties)),
		zap.String("rule_set_id", ruleSet.ID),
		zap.Int("rule_set_version", ruleSet.Version),
	)

	run, err := s.engine.Run(ctx, settlement.Config{
		PeriodStart:       dayStart,
		PeriodEnd:         dayEnd,
		Parties:           parties,
		RuleSet:           ruleSet,
		DryRun:            dryRun,
		PreventDuplicates: s.cfg.PreventDuplicates,
		CompareWithV1:     s.cfg.CompareWithV1,
		EngineVersion:     s.cfg.EngineVersion,
		Tag:               "daily-" + day,
	})
	if run != nil {
		result.TotalSettlementsProcessed = len(run.Settlements)
		result.PartiesProcessed = len(parties)
		result.DuplicatesDetected = len(run.Diagnostics.Duplicates)
		result.PartiesFailed = len(run.Diagnostics.PartyFailures)
		result.Diagnostics = run.Diagnostics
	}
	if err != nil {
		// Structural failures abort before persistence, so no batch record is touched
		logger.Error("Daily settlement run failed", zap.Error(err))
		return result, err
	}

	if !dryRun {
		batch, err := s.recordBatch(ctx, dayStart, dayEnd, run.Settlements)
		if err != nil {
			// Settlements are committed; the batch record can be repaired by an operator
			logger.Error("Failed to record settlement batch", zap.Error(err))
		} else if batch != nil {
			result.BatchID = batch.ID
		}
	}

	logger.Info("Daily settlement run completed",
		zap.Int("settlements", result.TotalSettlementsProcessed),
		zap.Int("parties", result.PartiesProcessed),
		zap.Int("duplicates", result.DuplicatesDetected),
		zap.Int("failed", result.PartiesFailed),
	)

	return result, nil
}

// Preview runs the engine in dry-run mode for an explicit period and party list
func (s *Service) Preview(ctx context.Context, req *serviceports.PreviewRequest) (*settlement.Result, error) {
	parties, err := s.partyContexts(ctx, req.Parties)
	if err != nil {
		return nil, err
	}

	var ruleSet *models.CommissionRuleSet
	if req.RuleSetID != "" {
		ruleSet, err = s.ruleSets.GetByID(ctx, nil, req.RuleSetID)
	} else {
		ruleSet, err = s.ruleSets.GetActive(ctx, nil, req.PeriodStart)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve rule set: %w", err)
	}

	return s.engine.Run(ctx, settlement.Config{
		PeriodStart:       req.PeriodStart,
		PeriodEnd:         req.PeriodEnd,
		Parties:           parties,
		RuleSet:           ruleSet,
		DryRun:            true,
		PreventDuplicates: s.cfg.PreventDuplicates,
		CompareWithV1:     req.CompareWithV1,
		EngineVersion:     s.cfg.EngineVersion,
		Tag:               "preview",
	})
}

func (s *Service) acquire(ctx context.Context, day string) (ports.ReleaseFunc, error) {
	key := "settlement:daily:" + day
	release, acquired, err := s.locker.TryAcquire(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock %s: %w", key, err)
	}
	if !acquired {
		return nil, domain.NewDomainError(domain.ErrorCodeBatchRunInProgress, "a settlement batch run is already in progress for this date").
			WithDetail("target_date", day)
	}
	return release, nil
}

// partyContexts merges stored profiles with the configured defaults
func (s *Service) partyContexts(ctx context.Context, refs []models.PartyRef) ([]models.PartyContext, error) {
	profiles, err := s.profiles.GetProfiles(ctx, nil, refs)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to load party profiles", err)
	}

	parties := make([]models.PartyContext, 0, len(refs))
	for _, ref := range refs {
		pc := models.PartyContext{
			PartyType:       ref.PartyType,
			PartyID:         ref.PartyID,
			Currency:        s.cfg.DefaultCurrency,
			TaxRate:         s.cfg.DefaultTaxRate,
			MinPayoutAmount: s.cfg.DefaultMinPayout,
			HoldPeriodDays:  s.cfg.DefaultHoldDays,
		}
		if p, ok := profiles[ref.Key()]; ok && p != nil {
			if p.Currency != "" {
				pc.Currency = p.Currency
			}
			if p.TaxRate != nil {
				pc.TaxRate = p.TaxRate
			}
			if p.MinPayoutAmount != nil {
				pc.MinPayoutAmount = p.MinPayoutAmount
			}
			if p.HoldPeriodDays != nil {
				pc.HoldPeriodDays = *p.HoldPeriodDays
			}
			pc.CustomConfig = p.CustomConfig
		}
		parties = append(parties, pc)
	}
	return parties, nil
}

// recordBatch files the run's settlements under a batch for the period. Only an open
// batch takes new settlements; once the period's batch has moved on, late settlements
// get a batch record of their own so historical totals never change.
// Returns the latest batch for the period, or nil when there is none and nothing was created.
func (s *Service) recordBatch(ctx context.Context, start, end time.Time, created []*models.Settlement) (*models.SettlementBatch, error) {
	latest, err := s.batches.GetByPeriod(ctx, nil, start, end)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to load settlement batch", err)
	}

	if latest != nil && latest.Status != models.BatchOpen && len(created) == 0 {
		return latest, nil
	}
	if latest == nil && len(created) == 0 {
		return nil, nil
	}

	batch := latest
	isNew := false
	if batch == nil || batch.Status != models.BatchOpen {
		now := s.now()
		batch = &models.SettlementBatch{
			ID:           uuid.New().String(),
			PeriodStart:  start,
			PeriodEnd:    end,
			Status:       models.BatchOpen,
			TotalPayable: decimal.Zero,
			UpdatedBy:    string(domain.ActorSystem),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		isNew = true
		if latest != nil {
			s.logger.Info("Period batch is no longer open, filing late settlements in a new batch",
				zap.String("previous_batch_id", latest.ID),
				zap.String("previous_status", string(latest.Status)),
				zap.Int("settlements", len(created)),
			)
		}
	}

	for _, st := range created {
		batch.SettlementsCount++
		batch.TotalPayable = batch.TotalPayable.Add(st.PayableAmount)
	}
	batch.UpdatedAt = s.now()

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if isNew {
			if err := s.batches.Create(ctx, tx, batch); err != nil {
				return fmt.Errorf("create settlement batch: %w", err)
			}
		} else if len(created) > 0 {
			if err := s.batches.UpdateTotals(ctx, tx, batch); err != nil {
				return fmt.Errorf("update batch totals: %w", err)
			}
		}
		return s.closeBatch(ctx, tx, batch)
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// closeBatch moves an open batch to closed through the state guard
func (s *Service) closeBatch(ctx context.Context, tx pgx.Tx, batch *models.SettlementBatch) error {
	kind := domain.EntityKindSettlementBatch
	if err := s.guard.Check(kind, batch.ID, string(batch.Status), string(models.BatchClosed), domain.ActorSystem); err != nil {
		observability.RecordTransitionDecision(string(kind), "rejected")
		return err
	}
	if err := s.batches.UpdateStatus(ctx, tx, batch.ID, models.BatchOpen, models.BatchClosed, string(domain.ActorSystem)); err != nil {
		return err
	}
	observability.RecordTransitionDecision(string(kind), "applied")
	batch.Status = models.BatchClosed
	return nil
}
