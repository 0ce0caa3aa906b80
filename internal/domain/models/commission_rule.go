package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CommissionType selects how a rule computes its amount
type CommissionType string

const (
	CommissionPercentage CommissionType = "percentage"
	CommissionFixed      CommissionType = "fixed"
	CommissionTiered     CommissionType = "tiered"
)

// RuleFilter narrows the events a rule applies to. Empty fields match everything.
type RuleFilter struct {
	PartyType   PartyType `json:"partyType,omitempty"`
	ProductIDs  []string  `json:"productIds,omitempty"`
	CategoryIDs []string  `json:"categoryIds,omitempty"`
	ChannelIDs  []string  `json:"channelIds,omitempty"`
}

// CommissionTier is one bracket of a tiered rule, covering [MinAmount, MaxAmount)
type CommissionTier struct {
	MinAmount      decimal.Decimal  `json:"minAmount"`
	MaxAmount      *decimal.Decimal `json:"maxAmount,omitempty"`
	PercentageRate decimal.Decimal  `json:"percentageRate"`
}

// Contains reports whether amount falls inside the tier (lower bound inclusive)
func (t CommissionTier) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(t.MinAmount) {
		return false
	}
	return t.MaxAmount == nil || amount.LessThan(*t.MaxAmount)
}

// CommissionRule is a single entry of a rule set
type CommissionRule struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Priority       int              `json:"priority,omitempty"`
	AppliesTo      RuleFilter       `json:"appliesTo"`
	Type           CommissionType   `json:"type"`
	PercentageRate *decimal.Decimal `json:"percentageRate,omitempty"`
	FixedAmount    *decimal.Decimal `json:"fixedAmount,omitempty"`
	Tiers          []CommissionTier `json:"tiers,omitempty"`
}

// SortedTiers returns the tiers in ascending MinAmount order
func (r *CommissionRule) SortedTiers() []CommissionTier {
	tiers := make([]CommissionTier, len(r.Tiers))
	copy(tiers, r.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].MinAmount.LessThan(tiers[j].MinAmount)
	})
	return tiers
}

// CommissionRuleSet is a named, versioned, time-bounded collection of rules
type CommissionRuleSet struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Version   int              `json:"version"`
	ValidFrom time.Time        `json:"validFrom"`
	ValidTo   *time.Time       `json:"validTo,omitempty"`
	Rules     []CommissionRule `json:"rules"`
}

// IsActiveAt reports whether the set's validity window covers t
func (s *CommissionRuleSet) IsActiveAt(t time.Time) bool {
	if t.Before(s.ValidFrom) {
		return false
	}
	return s.ValidTo == nil || t.Before(*s.ValidTo)
}

// OrderedRules returns rules in evaluation order: ascending Priority, ties in declaration order
func (s *CommissionRuleSet) OrderedRules() []CommissionRule {
	rules := make([]CommissionRule, len(s.Rules))
	copy(rules, s.Rules)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
	return rules
}

// RuleSetError describes why a rule set failed validation
type RuleSetError struct {
	RuleSetID string
	RuleID    string
	Reason    string
	Overlap   bool
}

func (e *RuleSetError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("rule set %s: %s", e.RuleSetID, e.Reason)
	}
	return fmt.Sprintf("rule set %s, rule %s: %s", e.RuleSetID, e.RuleID, e.Reason)
}

// Validate checks the set before any evaluation. Tier overlaps, unreachable rules and
// ambiguous same-priority rules are authoring errors and are rejected here.
func (s *CommissionRuleSet) Validate() error {
	if len(s.Rules) == 0 {
		return &RuleSetError{RuleSetID: s.ID, Reason: "rule set must contain at least one rule"}
	}

	seen := make(map[string]bool, len(s.Rules))
	for i := range s.Rules {
		rule := &s.Rules[i]
		if rule.ID == "" {
			return &RuleSetError{RuleSetID: s.ID, Reason: fmt.Sprintf("rule at index %d has no id", i)}
		}
		if seen[rule.ID] {
			return &RuleSetError{RuleSetID: s.ID, RuleID: rule.ID, Reason: "duplicate rule id"}
		}
		seen[rule.ID] = true

		if rule.AppliesTo.PartyType != "" && !rule.AppliesTo.PartyType.IsValid() {
			return &RuleSetError{RuleSetID: s.ID, RuleID: rule.ID, Reason: fmt.Sprintf("unknown party type %q", rule.AppliesTo.PartyType)}
		}
		if err := validateRuleParams(s.ID, rule); err != nil {
			return err
		}
	}

	ordered := s.OrderedRules()
	for j := 1; j < len(ordered); j++ {
		later := ordered[j]
		for i := 0; i < j; i++ {
			earlier := ordered[i]
			if earlier.AppliesTo.covers(later.AppliesTo) {
				return &RuleSetError{
					RuleSetID: s.ID,
					RuleID:    later.ID,
					Reason:    fmt.Sprintf("rule is unreachable, shadowed by rule %s", earlier.ID),
				}
			}
			if earlier.Priority != 0 && earlier.Priority == later.Priority && earlier.AppliesTo.overlaps(later.AppliesTo) {
				return &RuleSetError{
					RuleSetID: s.ID,
					RuleID:    later.ID,
					Reason:    fmt.Sprintf("ambiguous precedence with rule %s (same priority %d, overlapping filters)", earlier.ID, later.Priority),
				}
			}
		}
	}

	return nil
}

func validateRuleParams(setID string, rule *CommissionRule) error {
	switch rule.Type {
	case CommissionPercentage:
		if rule.PercentageRate == nil {
			return &RuleSetError{RuleSetID: setID, RuleID: rule.ID, Reason: "percentage rule requires percentageRate"}
		}
		if rule.PercentageRate.IsNegative() {
			return &RuleSetError{RuleSetID: setID, RuleID: rule.ID, Reason: "percentageRate must not be negative"}
		}
	case CommissionFixed:
		if rule.FixedAmount == nil {
			return &RuleSetError{RuleSetID: setID, RuleID: rule.ID, Reason: "fixed rule requires fixedAmount"}
		}
		if rule.FixedAmount.IsNegative() {
			return &RuleSetError{RuleSetID: setID, RuleID: rule.ID, Reason: "fixedAmount must not be negative"}
		}
	case CommissionTiered:
		return validateTiers(setID, rule)
	default:
		return &RuleSetError{RuleSetID: setID, RuleID: rule.ID, Reason: fmt.Sprintf("unknown rule type %q", rule.Type)}
	}
	return nil
}

func validateTiers(setID string, rule *CommissionRule) error {
	if len(rule.Tiers) == 0 {
		return &RuleSetError{RuleSetID: setID, RuleID: rule.ID, Reason: "tiered rule requires at least one tier"}
	}

	tiers := rule.SortedTiers()
	for i, tier := range tiers {
		if tier.MinAmount.IsNegative() {
			return &RuleSetError{RuleSetID: setID, RuleID: rule.ID, Reason: fmt.Sprintf("tier %d has negative minAmount", i)}
		}
		if tier.PercentageRate.IsNegative() {
			return &RuleSetError{RuleSetID: setID, RuleID: rule.ID, Reason: fmt.Sprintf("tier %d has negative percentageRate", i)}
		}
		if tier.MaxAmount != nil && !tier.MaxAmount.GreaterThan(tier.MinAmount) {
			return &RuleSetError{RuleSetID: setID, RuleID: rule.ID, Reason: fmt.Sprintf("tier %d maxAmount must exceed minAmount", i)}
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if prev.MaxAmount == nil {
			return &RuleSetError{RuleSetID: setID, RuleID: rule.ID, Reason: fmt.Sprintf("open-ended tier %d overlaps tier %d", i-1, i), Overlap: true}
		}
		if tier.MinAmount.LessThan(*prev.MaxAmount) {
			return &RuleSetError{RuleSetID: setID, RuleID: rule.ID, Reason: fmt.Sprintf("tier %d overlaps tier %d", i-1, i), Overlap: true}
		}
	}
	return nil
}

// covers reports whether every event matched by other is also matched by f
func (f RuleFilter) covers(other RuleFilter) bool {
	if f.PartyType != "" && f.PartyType != other.PartyType {
		return false
	}
	return subsetOf(other.ProductIDs, f.ProductIDs) &&
		subsetOf(other.CategoryIDs, f.CategoryIDs) &&
		subsetOf(other.ChannelIDs, f.ChannelIDs)
}

// overlaps reports whether some event could match both filters
func (f RuleFilter) overlaps(other RuleFilter) bool {
	if f.PartyType != "" && other.PartyType != "" && f.PartyType != other.PartyType {
		return false
	}
	return intersects(f.ProductIDs, other.ProductIDs) &&
		intersects(f.CategoryIDs, other.CategoryIDs) &&
		intersects(f.ChannelIDs, other.ChannelIDs)
}

// subsetOf treats an empty list as "any value"
func subsetOf(inner, outer []string) bool {
	if len(outer) == 0 {
		return true
	}
	if len(inner) == 0 {
		return false
	}
	set := toSet(outer)
	for _, v := range inner {
		if !set[v] {
			return false
		}
	}
	return true
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	set := toSet(a)
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// Matches reports whether the filter accepts the party and event
func (f RuleFilter) Matches(partyType PartyType, event *SettlementEvent) bool {
	if f.PartyType != "" && f.PartyType != partyType {
		return false
	}
	return contains(f.ProductIDs, event.ProductID) &&
		contains(f.CategoryIDs, event.CategoryID) &&
		contains(f.ChannelIDs, event.ChannelID)
}

func contains(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
