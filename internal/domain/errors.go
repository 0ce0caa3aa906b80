package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Configuration Errors (reported per party, never fatal to a run)
	ErrorCodeRuleSetInvalid     ErrorCode = "RULESET_INVALID"
	ErrorCodeTierOverlap        ErrorCode = "TIER_OVERLAP"
	ErrorCodeTierNotFound       ErrorCode = "TIER_NOT_FOUND"
	ErrorCodeRuleNotMatched     ErrorCode = "RULE_NOT_MATCHED"
	ErrorCodePartyConfigMissing ErrorCode = "PARTY_CONFIG_MISSING"
	ErrorCodeCurrencyMismatch   ErrorCode = "CURRENCY_MISMATCH"

	// Transition Errors (TRANSITION_*)
	ErrorCodeTransitionNotAllowed   ErrorCode = "TRANSITION_NOT_ALLOWED"
	ErrorCodeTransitionNotPermitted ErrorCode = "TRANSITION_NOT_PERMITTED"
	ErrorCodeTransitionStale        ErrorCode = "TRANSITION_STALE_STATUS"

	// Duplicate Errors (SETTLEMENT_*)
	ErrorCodeSettlementDuplicate ErrorCode = "SETTLEMENT_DUPLICATE"
	ErrorCodeSettlementConflict  ErrorCode = "SETTLEMENT_CONFLICT"

	// Structural Errors (fatal to the whole run)
	ErrorCodeStructural ErrorCode = "SETTLEMENT_STRUCTURAL"

	// Operational Errors
	ErrorCodeBatchRunInProgress ErrorCode = "BATCH_RUN_IN_PROGRESS"
	ErrorCodeRuleSetNotFound    ErrorCode = "RULESET_NOT_FOUND"
	ErrorCodeEntityNotFound     ErrorCode = "ENTITY_NOT_FOUND"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	var transitionErr *StateTransitionError
	if errors.As(err, &transitionErr) {
		return transitionErr.Code()
	}
	return ""
}

// IsConfigurationError checks if an error is a rule/party configuration problem.
// Configuration errors abort a single party's settlement, never the whole run.
func IsConfigurationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeRuleSetInvalid ||
		code == ErrorCodeTierOverlap ||
		code == ErrorCodeTierNotFound ||
		code == ErrorCodeRuleNotMatched ||
		code == ErrorCodePartyConfigMissing ||
		code == ErrorCodeCurrencyMismatch
}

// IsDuplicateError checks if an error reports an already existing settlement
func IsDuplicateError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeSettlementDuplicate ||
		code == ErrorCodeSettlementConflict
}

// IsStructuralError checks if an error must abort an entire engine run
func IsStructuralError(err error) bool {
	return GetErrorCode(err) == ErrorCodeStructural
}

// IsTransitionError checks if an error is a rejected state change
func IsTransitionError(err error) bool {
	var transitionErr *StateTransitionError
	return errors.As(err, &transitionErr)
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeEntityNotFound ||
		code == ErrorCodeRuleSetNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationMissingField
}

// StateTransitionError is raised when a status change is absent from the whitelist
// or present but not permitted for the requesting actor.
type StateTransitionError struct {
	EntityType    string
	EntityID      string
	CurrentStatus string
	TargetStatus  string
	ActorType     string
	Reason        string
	permission    bool
}

// NewTransitionNotAllowed reports a (current, target) pair missing from the transition table
func NewTransitionNotAllowed(entityType, entityID, current, target string) *StateTransitionError {
	return &StateTransitionError{
		EntityType:    entityType,
		EntityID:      entityID,
		CurrentStatus: current,
		TargetStatus:  target,
		Reason:        "transition not allowed",
	}
}

// NewTransitionNotPermitted reports an allowed transition the actor may not trigger
func NewTransitionNotPermitted(entityType, entityID, current, target, actor string) *StateTransitionError {
	return &StateTransitionError{
		EntityType:    entityType,
		EntityID:      entityID,
		CurrentStatus: current,
		TargetStatus:  target,
		ActorType:     actor,
		Reason:        "actor not permitted to trigger transition",
		permission:    true,
	}
}

// Error implements the error interface
func (e *StateTransitionError) Error() string {
	msg := fmt.Sprintf("%s: %s %s cannot move from %q to %q: %s",
		e.Code(), e.EntityType, e.EntityID, e.CurrentStatus, e.TargetStatus, e.Reason)
	if e.ActorType != "" {
		msg += fmt.Sprintf(" (actor %s)", e.ActorType)
	}
	return msg
}

// Code returns the machine-readable code for the rejection
func (e *StateTransitionError) Code() ErrorCode {
	if e.permission {
		return ErrorCodeTransitionNotPermitted
	}
	return ErrorCodeTransitionNotAllowed
}

// IsPermissionDenied is true when the pair is whitelisted but the actor is not
func (e *StateTransitionError) IsPermissionDenied() bool {
	return e.permission
}

// Structured error instances
var (
	ErrRuleSetInvalid  = NewDomainError(ErrorCodeRuleSetInvalid, "commission rule set is invalid")
	ErrRuleSetNotFound = NewDomainError(ErrorCodeRuleSetNotFound, "no active commission rule set")
	ErrEntityNotFound  = NewDomainError(ErrorCodeEntityNotFound, "entity not found")

	ErrBatchRunInProgress = NewDomainError(ErrorCodeBatchRunInProgress, "a settlement batch run is already in progress for this date")
	ErrSettlementConflict = NewDomainError(ErrorCodeSettlementConflict, "settlement already exists for party and period")
	ErrStaleStatus        = NewDomainError(ErrorCodeTransitionStale, "entity status changed since it was read")

	ErrValidationFailed       = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationMissingField = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)

// NewStructuralError builds a run-aborting error
func NewStructuralError(message string) *DomainError {
	return NewDomainError(ErrorCodeStructural, message)
}

// NewConfigurationError builds a per-party configuration error
func NewConfigurationError(code ErrorCode, message string) *DomainError {
	return NewDomainError(code, message)
}
