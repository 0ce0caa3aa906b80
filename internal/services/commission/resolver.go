package commission

import (
	"fmt"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// Hits are the diagnostic counter increments produced by one resolution.
// The caller owns the counters; the resolver never mutates shared state.
type Hits struct {
	RuleID       string
	TieredRuleID string // set only when a tier was applied
}

// Resolution is the outcome of pricing one event
type Resolution struct {
	Rule      *models.CommissionRule
	Amount    decimal.Decimal  // rounded to the currency's minor unit
	Rate      *decimal.Decimal // nil for fixed rules
	TierIndex *int             // index into the rule's tiers sorted by MinAmount
	Currency  string
	Hits      Hits
}

// Resolver selects the applicable rule for an event and computes the commission amount
type Resolver struct{}

// NewResolver creates a new commission rule resolver
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve prices one event for one party. Rules are tried in evaluation order and the
// first match wins. Returns a configuration error when no rule matches or when a tiered
// rule has no tier covering the gross amount.
func (r *Resolver) Resolve(party models.PartyContext, event *models.SettlementEvent, ruleSet *models.CommissionRuleSet) (*Resolution, error) {
	if ruleSet == nil {
		return nil, domain.NewConfigurationError(domain.ErrorCodeRuleSetInvalid, "no rule set supplied")
	}
	if event == nil {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "event is required")
	}

	rule := SelectRule(party.PartyType, event, ruleSet)
	if rule == nil {
		return nil, domain.NewConfigurationError(domain.ErrorCodeRuleNotMatched,
			fmt.Sprintf("no commission rule in %s matches event %s", ruleSet.ID, event.ID)).
			WithDetail("party_key", party.Key()).
			WithDetail("event_id", event.ID).
			WithDetail("rule_set_id", ruleSet.ID)
	}

	currency := event.Currency
	if currency == "" {
		currency = party.Currency
	}

	res := &Resolution{
		Rule:     rule,
		Currency: currency,
		Hits:     Hits{RuleID: rule.ID},
	}

	switch rule.Type {
	case models.CommissionPercentage:
		if rule.PercentageRate == nil {
			return nil, missingParam(rule, "percentageRate")
		}
		rate := *rule.PercentageRate
		res.Rate = &rate
		res.Amount = models.RoundAmount(models.ApplyPercentage(event.GrossAmount, rate), currency)

	case models.CommissionFixed:
		if rule.FixedAmount == nil {
			return nil, missingParam(rule, "fixedAmount")
		}
		res.Amount = models.RoundAmount(*rule.FixedAmount, currency)

	case models.CommissionTiered:
		idx, tier, ok := findTier(rule, event.GrossAmount)
		if !ok {
			return nil, domain.NewConfigurationError(domain.ErrorCodeTierNotFound,
				fmt.Sprintf("no tier of rule %s covers amount %s", rule.ID, event.GrossAmount.String())).
				WithDetail("party_key", party.Key()).
				WithDetail("event_id", event.ID).
				WithDetail("rule_id", rule.ID)
		}
		rate := tier.PercentageRate
		res.Rate = &rate
		res.TierIndex = &idx
		res.Amount = models.RoundAmount(models.ApplyPercentage(event.GrossAmount, rate), currency)
		res.Hits.TieredRuleID = rule.ID

	default:
		return nil, domain.NewConfigurationError(domain.ErrorCodeRuleSetInvalid,
			fmt.Sprintf("rule %s has unknown type %q", rule.ID, rule.Type))
	}

	return res, nil
}

// SelectRule returns the first rule in evaluation order whose filter accepts the event, or nil
func SelectRule(partyType models.PartyType, event *models.SettlementEvent, ruleSet *models.CommissionRuleSet) *models.CommissionRule {
	for _, rule := range ruleSet.OrderedRules() {
		if rule.AppliesTo.Matches(partyType, event) {
			matched := rule
			return &matched
		}
	}
	return nil
}

// findTier locates the tier whose [min, max) range contains amount
func findTier(rule *models.CommissionRule, amount decimal.Decimal) (int, models.CommissionTier, bool) {
	for i, tier := range rule.SortedTiers() {
		if tier.Contains(amount) {
			return i, tier, true
		}
	}
	return -1, models.CommissionTier{}, false
}

func missingParam(rule *models.CommissionRule, field string) *domain.DomainError {
	return domain.NewConfigurationError(domain.ErrorCodeRuleSetInvalid,
		fmt.Sprintf("%s rule %s has no %s", rule.Type, rule.ID, field)).
		WithDetail("rule_id", rule.ID)
}
