package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func pctRule(id string, filter RuleFilter, rate string) CommissionRule {
	return CommissionRule{ID: id, AppliesTo: filter, Type: CommissionPercentage, PercentageRate: decPtr(rate)}
}

func TestCommissionTier_Contains(t *testing.T) {
	bounded := CommissionTier{MinAmount: dec("100"), MaxAmount: decPtr("200")}
	open := CommissionTier{MinAmount: dec("200")}

	assert.False(t, bounded.Contains(dec("99.99")))
	assert.True(t, bounded.Contains(dec("100")))
	assert.True(t, bounded.Contains(dec("199.99")))
	assert.False(t, bounded.Contains(dec("200")))
	assert.True(t, open.Contains(dec("200")))
	assert.True(t, open.Contains(dec("1000000000")))
}

func TestCommissionRuleSet_IsActiveAt(t *testing.T) {
	from := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	rs := &CommissionRuleSet{ValidFrom: from, ValidTo: &to}

	assert.False(t, rs.IsActiveAt(from.Add(-time.Second)))
	assert.True(t, rs.IsActiveAt(from))
	assert.True(t, rs.IsActiveAt(to.Add(-time.Second)))
	assert.False(t, rs.IsActiveAt(to))

	rs.ValidTo = nil
	assert.True(t, rs.IsActiveAt(to.AddDate(10, 0, 0)))
}

func TestCommissionRuleSet_OrderedRules(t *testing.T) {
	rs := &CommissionRuleSet{Rules: []CommissionRule{
		{ID: "c", Priority: 20},
		{ID: "a", Priority: 10},
		{ID: "d"},
		{ID: "b", Priority: 10},
	}}

	ids := make([]string, 0, 4)
	for _, r := range rs.OrderedRules() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
	assert.Equal(t, "c", rs.Rules[0].ID, "ordering must not reorder the set itself")
}

func TestRuleFilter_Matches(t *testing.T) {
	event := &SettlementEvent{ProductID: "p1", CategoryID: "cat1", ChannelID: "web"}

	tests := []struct {
		name   string
		filter RuleFilter
		party  PartyType
		want   bool
	}{
		{"empty filter", RuleFilter{}, PartySeller, true},
		{"party type match", RuleFilter{PartyType: PartySeller}, PartySeller, true},
		{"party type mismatch", RuleFilter{PartyType: PartySupplier}, PartySeller, false},
		{"product listed", RuleFilter{ProductIDs: []string{"p0", "p1"}}, PartySeller, true},
		{"product not listed", RuleFilter{ProductIDs: []string{"p2"}}, PartySeller, false},
		{"category and channel", RuleFilter{CategoryIDs: []string{"cat1"}, ChannelIDs: []string{"web"}}, PartySeller, true},
		{"channel mismatch", RuleFilter{CategoryIDs: []string{"cat1"}, ChannelIDs: []string{"app"}}, PartySeller, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.party, event))
		})
	}
}

func TestCommissionRuleSet_Validate(t *testing.T) {
	tiered := func(tiers ...CommissionTier) CommissionRule {
		return CommissionRule{ID: "tiered", Type: CommissionTiered, Tiers: tiers}
	}

	tests := []struct {
		name        string
		rules       []CommissionRule
		wantErr     bool
		wantOverlap bool
	}{
		{
			name:  "valid mixed set",
			rules: []CommissionRule{pctRule("s", RuleFilter{PartyType: PartySeller}, "5"), {ID: "p", Type: CommissionFixed, AppliesTo: RuleFilter{PartyType: PartyPartner}, FixedAmount: decPtr("500")}},
		},
		{name: "empty", rules: nil, wantErr: true},
		{name: "missing id", rules: []CommissionRule{pctRule("", RuleFilter{}, "5")}, wantErr: true},
		{name: "duplicate id", rules: []CommissionRule{pctRule("a", RuleFilter{PartyType: PartySeller}, "5"), pctRule("a", RuleFilter{PartyType: PartySupplier}, "5")}, wantErr: true},
		{name: "missing rate", rules: []CommissionRule{{ID: "a", Type: CommissionPercentage}}, wantErr: true},
		{name: "negative fixed", rules: []CommissionRule{{ID: "a", Type: CommissionFixed, FixedAmount: decPtr("-1")}}, wantErr: true},
		{name: "unknown type", rules: []CommissionRule{{ID: "a", Type: "bonus"}}, wantErr: true},
		{name: "unknown party type", rules: []CommissionRule{pctRule("a", RuleFilter{PartyType: "vendor"}, "5")}, wantErr: true},
		{
			name: "contiguous tiers",
			rules: []CommissionRule{tiered(
				CommissionTier{MinAmount: dec("0"), MaxAmount: decPtr("100"), PercentageRate: dec("3")},
				CommissionTier{MinAmount: dec("100"), PercentageRate: dec("2")},
			)},
		},
		{
			name: "tier gap is allowed",
			rules: []CommissionRule{tiered(
				CommissionTier{MinAmount: dec("0"), MaxAmount: decPtr("100"), PercentageRate: dec("3")},
				CommissionTier{MinAmount: dec("200"), PercentageRate: dec("2")},
			)},
		},
		{
			name: "overlapping tiers",
			rules: []CommissionRule{tiered(
				CommissionTier{MinAmount: dec("0"), MaxAmount: decPtr("150"), PercentageRate: dec("3")},
				CommissionTier{MinAmount: dec("100"), PercentageRate: dec("2")},
			)},
			wantErr:     true,
			wantOverlap: true,
		},
		{
			name: "open tier followed by another",
			rules: []CommissionRule{tiered(
				CommissionTier{MinAmount: dec("0"), PercentageRate: dec("3")},
				CommissionTier{MinAmount: dec("100"), PercentageRate: dec("2")},
			)},
			wantErr:     true,
			wantOverlap: true,
		},
		{name: "tiered without tiers", rules: []CommissionRule{tiered()}, wantErr: true},
		{
			name: "shadowed rule",
			rules: []CommissionRule{
				pctRule("catch-all", RuleFilter{PartyType: PartySeller}, "5"),
				pctRule("specific", RuleFilter{PartyType: PartySeller, ProductIDs: []string{"p1"}}, "3"),
			},
			wantErr: true,
		},
		{
			name: "specific before catch-all",
			rules: []CommissionRule{
				pctRule("specific", RuleFilter{PartyType: PartySeller, ProductIDs: []string{"p1"}}, "3"),
				pctRule("catch-all", RuleFilter{PartyType: PartySeller}, "5"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := &CommissionRuleSet{ID: "rs", Rules: tt.rules}
			err := rs.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var rsErr *RuleSetError
			require.True(t, errors.As(err, &rsErr))
			assert.Equal(t, "rs", rsErr.RuleSetID)
			assert.Equal(t, tt.wantOverlap, rsErr.Overlap)
		})
	}
}
