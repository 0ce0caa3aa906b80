package settlement

import (
	"time"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/services/commission"
	"github.com/shopspring/decimal"
)

// DuplicateRecord reports a party skipped because a settlement already exists
type DuplicateRecord struct {
	PartyKey      string    `json:"party_key"`
	SettlementID  string    `json:"settlement_id,omitempty"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	EngineVersion string    `json:"engine_version,omitempty"`
	Conflict      bool      `json:"conflict"` // caught by the storage unique index instead of the explicit check
}

// PartyFailure reports a party aborted by a configuration or storage error
type PartyFailure struct {
	PartyKey string           `json:"party_key"`
	Code     domain.ErrorCode `json:"code"`
	Message  string           `json:"message"`
	EventID  string           `json:"event_id,omitempty"`
}

// V1Comparison is the shadow-run difference for one party
type V1Comparison struct {
	PartyKey       string          `json:"party_key"`
	V1Amount       decimal.Decimal `json:"v1_amount"`
	V2Amount       decimal.Decimal `json:"v2_amount"`
	Difference     decimal.Decimal `json:"difference"`
	DiffPercentage decimal.Decimal `json:"diff_percentage"`
}

// Diagnostics accumulates per-run observations. It is owned by a single run.
type Diagnostics struct {
	RuleHits      map[string]int             `json:"rule_hits"`
	TiersApplied  map[string]int             `json:"tiers_applied"`
	TotalsByParty map[string]decimal.Decimal `json:"totals_by_party"`
	Duplicates    []DuplicateRecord          `json:"duplicates"`
	PartyFailures []PartyFailure             `json:"party_failures"`
	V1VsV2Diff    []V1Comparison             `json:"v1_vs_v2_diff,omitempty"`
	PartiesEmpty  []string                   `json:"parties_without_events,omitempty"`
}

// NewDiagnostics creates an empty collector
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{
		RuleHits:      make(map[string]int),
		TiersApplied:  make(map[string]int),
		TotalsByParty: make(map[string]decimal.Decimal),
		Duplicates:    []DuplicateRecord{},
		PartyFailures: []PartyFailure{},
	}
}

// DuplicatesDetected reports whether any party was skipped as a duplicate
func (d *Diagnostics) DuplicatesDetected() bool {
	return len(d.Duplicates) > 0
}

// AddHits merges counter increments from committed resolutions
func (d *Diagnostics) AddHits(hits []commission.Hits) {
	for _, h := range hits {
		d.RuleHits[h.RuleID]++
		if h.TieredRuleID != "" {
			d.TiersApplied[h.TieredRuleID]++
		}
	}
}

// AddTotal adds a settled payable amount to a party's total
func (d *Diagnostics) AddTotal(partyKey string, amount decimal.Decimal) {
	d.TotalsByParty[partyKey] = d.TotalsByParty[partyKey].Add(amount)
}

// AddDuplicate records a skipped party
func (d *Diagnostics) AddDuplicate(rec DuplicateRecord) {
	d.Duplicates = append(d.Duplicates, rec)
}

// AddFailure records an aborted party
func (d *Diagnostics) AddFailure(f PartyFailure) {
	d.PartyFailures = append(d.PartyFailures, f)
}

// AddEmpty records a party that had no events in the period
func (d *Diagnostics) AddEmpty(partyKey string) {
	d.PartiesEmpty = append(d.PartiesEmpty, partyKey)
}

// AddComparison records a v1-vs-v2 difference for a party
func (d *Diagnostics) AddComparison(partyKey string, v1, v2 decimal.Decimal) {
	d.V1VsV2Diff = append(d.V1VsV2Diff, Compare(partyKey, v1, v2))
}

// Compare computes the shadow-run difference. A zero v1 amount yields 0% when v2 is also
// zero and 100% otherwise.
func Compare(partyKey string, v1, v2 decimal.Decimal) V1Comparison {
	diff := v2.Sub(v1)
	var pct decimal.Decimal
	switch {
	case !v1.IsZero():
		pct = diff.Div(v1).Mul(decimal.NewFromInt(100)).Round(2)
	case v2.IsZero():
		pct = decimal.Zero
	default:
		pct = decimal.NewFromInt(100)
	}
	return V1Comparison{
		PartyKey:       partyKey,
		V1Amount:       v1,
		V2Amount:       v2,
		Difference:     diff,
		DiffPercentage: pct,
	}
}
