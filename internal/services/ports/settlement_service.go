package ports

import (
	"context"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/services/settlement"
)

// BatchSettlementResult summarizes one daily settlement run
type BatchSettlementResult struct {
	TargetDate                string                  `json:"target_date"`
	DryRun                    bool                    `json:"dry_run"`
	TotalSettlementsProcessed int                     `json:"total_settlements_processed"`
	PartiesProcessed          int                     `json:"parties_processed"`
	DuplicatesDetected        int                     `json:"duplicates_detected"`
	PartiesFailed             int                     `json:"parties_failed"`
	BatchID                   string                  `json:"batch_id,omitempty"`
	StartTime                 time.Time               `json:"start_time"`
	EndTime                   time.Time               `json:"end_time"`
	DurationMs                int64                   `json:"duration_ms"`
	Diagnostics               *settlement.Diagnostics `json:"diagnostics,omitempty"`
}

// PreviewRequest asks for a dry run over an explicit period and party list
type PreviewRequest struct {
	PeriodStart   time.Time
	PeriodEnd     time.Time
	Parties       []models.PartyRef
	RuleSetID     string // empty selects the rule set active at PeriodStart
	CompareWithV1 bool
}

// SettlementBatchService defines the port for scheduled settlement runs
type SettlementBatchService interface {
	// RunDailyForAllParties settles every party with activity on targetDate
	RunDailyForAllParties(ctx context.Context, targetDate time.Time) (*BatchSettlementResult, error)

	// RunDailyForYesterday settles the previous calendar day in the settlement time zone
	RunDailyForYesterday(ctx context.Context) (*BatchSettlementResult, error)

	// DryRunDaily computes the daily run for targetDate without persisting anything
	DryRunDaily(ctx context.Context, targetDate time.Time) (*BatchSettlementResult, error)

	// Preview runs the engine in dry-run mode for an explicit period
	Preview(ctx context.Context, req *PreviewRequest) (*settlement.Result, error)
}

// TransitionRequest asks to move an entity to a new status
type TransitionRequest struct {
	EntityKind    domain.EntityKind
	EntityID      string
	CurrentStatus string // optional optimistic check
	TargetStatus  string
	Actor         domain.ActorType
}

// TransitionDecision is the outcome of a transition check
type TransitionDecision struct {
	Allowed        bool             `json:"allowed"`
	EntityKind     string           `json:"entity_kind"`
	EntityID       string           `json:"entity_id"`
	CurrentStatus  string           `json:"current_status"`
	TargetStatus   string           `json:"target_status"`
	Actor          string           `json:"actor_type"`
	Code           domain.ErrorCode `json:"code,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	AllowedTargets []string         `json:"allowed_targets,omitempty"`
}

// TransitionService defines the port for guarded status changes
type TransitionService interface {
	// Check evaluates a transition without changing anything
	Check(ctx context.Context, req *TransitionRequest) (*TransitionDecision, error)

	// Apply validates and persists a transition
	Apply(ctx context.Context, req *TransitionRequest) (*TransitionDecision, error)
}
