package transition

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	serviceports "github.com/kevin07696/settlement-service/internal/services/ports"
	"github.com/kevin07696/settlement-service/internal/services/stateguard"
	"github.com/kevin07696/settlement-service/pkg/observability"
	"go.uber.org/zap"
)

// Service implements ports.TransitionService on top of the state guard
type Service struct {
	db      ports.TransactionManager
	relays  ports.OrderRelayRepository
	batches ports.SettlementBatchRepository
	guard   *stateguard.Guard
	logger  *zap.Logger
}

// NewService creates a new transition service
func NewService(
	db ports.TransactionManager,
	relays ports.OrderRelayRepository,
	batches ports.SettlementBatchRepository,
	guard *stateguard.Guard,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:      db,
		relays:  relays,
		batches: batches,
		guard:   guard,
		logger:  logger,
	}
}

var _ serviceports.TransitionService = (*Service)(nil)

// Check evaluates the transition against the entity's stored status.
// A rejected transition is reported in the decision, not as an error.
func (s *Service) Check(ctx context.Context, req *serviceports.TransitionRequest) (*serviceports.TransitionDecision, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	current, err := s.currentStatus(ctx, nil, req.EntityKind, req.EntityID)
	if err != nil {
		return nil, err
	}
	if err := checkExpected(req, current); err != nil {
		return nil, err
	}

	decision := s.decide(req, current)
	outcome := "allowed"
	if !decision.Allowed {
		outcome = "rejected"
	}
	observability.RecordTransitionDecision(string(req.EntityKind), outcome)
	return decision, nil
}

// Apply validates the transition and persists it with a compare-and-set on the current status
func (s *Service) Apply(ctx context.Context, req *serviceports.TransitionRequest) (*serviceports.TransitionDecision, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var decision *serviceports.TransitionDecision
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := s.currentStatus(ctx, tx, req.EntityKind, req.EntityID)
		if err != nil {
			return err
		}
		if err := checkExpected(req, current); err != nil {
			return err
		}

		if err := s.guard.Check(req.EntityKind, req.EntityID, current, req.TargetStatus, req.Actor); err != nil {
			return err
		}

		if err := s.persist(ctx, tx, req, current); err != nil {
			return err
		}
		decision = s.decide(req, current)
		return nil
	})
	if err != nil {
		if domain.IsTransitionError(err) {
			observability.RecordTransitionDecision(string(req.EntityKind), "rejected")
			s.logger.Warn("Transition rejected",
				zap.String("entity_kind", string(req.EntityKind)),
				zap.String("entity_id", req.EntityID),
				zap.String("target_status", req.TargetStatus),
				zap.String("actor_type", string(req.Actor)),
				zap.Error(err),
			)
		}
		return nil, err
	}

	observability.RecordTransitionDecision(string(req.EntityKind), "applied")
	s.logger.Info("Transition applied",
		zap.String("entity_kind", string(req.EntityKind)),
		zap.String("entity_id", req.EntityID),
		zap.String("from", decision.CurrentStatus),
		zap.String("to", decision.TargetStatus),
		zap.String("actor_type", string(req.Actor)),
	)
	return decision, nil
}

func (s *Service) decide(req *serviceports.TransitionRequest, current string) *serviceports.TransitionDecision {
	decision := &serviceports.TransitionDecision{
		Allowed:        true,
		EntityKind:     string(req.EntityKind),
		EntityID:       req.EntityID,
		CurrentStatus:  current,
		TargetStatus:   req.TargetStatus,
		Actor:          string(req.Actor),
		AllowedTargets: s.guard.AllowedTargets(req.EntityKind, current),
	}

	err := s.guard.Check(req.EntityKind, req.EntityID, current, req.TargetStatus, req.Actor)
	var transitionErr *domain.StateTransitionError
	if errors.As(err, &transitionErr) {
		decision.Allowed = false
		decision.Code = transitionErr.Code()
		decision.Reason = transitionErr.Reason
	}
	return decision
}

func (s *Service) currentStatus(ctx context.Context, db ports.DBTX, kind domain.EntityKind, id string) (string, error) {
	switch kind {
	case domain.EntityKindOrderRelay:
		relay, err := s.relays.GetByID(ctx, db, id)
		if err != nil {
			return "", fmt.Errorf("load order relay: %w", err)
		}
		return string(relay.Status), nil
	case domain.EntityKindSettlementBatch:
		batch, err := s.batches.GetByID(ctx, db, id)
		if err != nil {
			return "", fmt.Errorf("load settlement batch: %w", err)
		}
		return string(batch.Status), nil
	}
	return "", domain.NewDomainError(domain.ErrorCodeValidationFailed, fmt.Sprintf("unknown entity kind %q", kind))
}

func (s *Service) persist(ctx context.Context, tx ports.DBTX, req *serviceports.TransitionRequest, current string) error {
	switch req.EntityKind {
	case domain.EntityKindOrderRelay:
		return s.relays.UpdateStatus(ctx, tx, req.EntityID,
			models.OrderRelayStatus(current), models.OrderRelayStatus(req.TargetStatus), string(req.Actor))
	case domain.EntityKindSettlementBatch:
		return s.batches.UpdateStatus(ctx, tx, req.EntityID,
			models.SettlementBatchStatus(current), models.SettlementBatchStatus(req.TargetStatus), string(req.Actor))
	}
	return domain.NewDomainError(domain.ErrorCodeValidationFailed, fmt.Sprintf("unknown entity kind %q", req.EntityKind))
}

func validateRequest(req *serviceports.TransitionRequest) error {
	switch {
	case req == nil:
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, "transition request is required")
	case !req.EntityKind.IsValid():
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, fmt.Sprintf("unknown entity kind %q", req.EntityKind)).
			WithDetail("field", "entity_kind")
	case req.EntityID == "":
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "entity_id is required").
			WithDetail("field", "entity_id")
	case req.TargetStatus == "":
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "target_status is required").
			WithDetail("field", "target_status")
	case !req.Actor.IsValid():
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, fmt.Sprintf("unknown actor type %q", req.Actor)).
			WithDetail("field", "actor_type")
	}
	return nil
}

// checkExpected rejects requests built from a status the entity no longer has
func checkExpected(req *serviceports.TransitionRequest, current string) error {
	if req.CurrentStatus == "" || req.CurrentStatus == current {
		return nil
	}
	return domain.NewDomainError(domain.ErrorCodeTransitionStale, "entity status changed since it was read").
		WithDetail("entity_id", req.EntityID).
		WithDetail("expected_status", req.CurrentStatus).
		WithDetail("actual_status", current)
}
