package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
)

const ruleSetColumns = `id, name, version, valid_from, valid_to, rules`

// RuleSetRepository implements ports.RuleSetRepository. Rules are stored as JSONB
// and validated when loaded.
type RuleSetRepository struct {
	pool *pgxpool.Pool
}

// NewRuleSetRepository creates a new rule set repository
func NewRuleSetRepository(db ports.DBPort) *RuleSetRepository {
	return &RuleSetRepository{pool: db.GetDB()}
}

var _ ports.RuleSetRepository = (*RuleSetRepository)(nil)

// GetActive returns the highest version rule set valid at the given time
func (r *RuleSetRepository) GetActive(ctx context.Context, db ports.DBTX, at time.Time) (*models.CommissionRuleSet, error) {
	row := querier(r.pool, db).QueryRow(ctx, `
		SELECT `+ruleSetColumns+`
		FROM commission_rule_sets
		WHERE valid_from <= $1 AND (valid_to IS NULL OR valid_to > $1)
		ORDER BY version DESC
		LIMIT 1`,
		at,
	)

	rs, err := scanRuleSet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewDomainError(domain.ErrorCodeRuleSetNotFound, fmt.Sprintf("no commission rule set active at %s", at.Format(time.RFC3339)))
	}
	if err != nil {
		return nil, fmt.Errorf("get active rule set: %w", err)
	}
	return rs, nil
}

// GetByID retrieves a rule set by its ID
func (r *RuleSetRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.CommissionRuleSet, error) {
	row := querier(r.pool, db).QueryRow(ctx, `SELECT `+ruleSetColumns+` FROM commission_rule_sets WHERE id = $1`, id)

	rs, err := scanRuleSet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewDomainError(domain.ErrorCodeEntityNotFound, fmt.Sprintf("rule set %s not found", id)).
			WithDetail("entity_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule set by id: %w", err)
	}
	return rs, nil
}

func scanRuleSet(row pgx.Row) (*models.CommissionRuleSet, error) {
	var (
		rs    models.CommissionRuleSet
		rules []byte
	)
	if err := row.Scan(&rs.ID, &rs.Name, &rs.Version, &rs.ValidFrom, &rs.ValidTo, &rules); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(rules, &rs.Rules); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeRuleSetInvalid, "rule set rules are not valid JSON", err).
			WithDetail("rule_set_id", rs.ID)
	}
	if err := rs.Validate(); err != nil {
		code := domain.ErrorCodeRuleSetInvalid
		var rsErr *models.RuleSetError
		if errors.As(err, &rsErr) && rsErr.Overlap {
			code = domain.ErrorCodeTierOverlap
		}
		return nil, domain.WrapError(code, "stored rule set failed validation", err).
			WithDetail("rule_set_id", rs.ID)
	}
	return &rs, nil
}

// PartyProfileRepository implements ports.PartyProfileRepository
type PartyProfileRepository struct {
	pool *pgxpool.Pool
}

// NewPartyProfileRepository creates a new party profile repository
func NewPartyProfileRepository(db ports.DBPort) *PartyProfileRepository {
	return &PartyProfileRepository{pool: db.GetDB()}
}

var _ ports.PartyProfileRepository = (*PartyProfileRepository)(nil)

// GetProfiles returns the stored profiles of the given parties keyed by party key
func (r *PartyProfileRepository) GetProfiles(ctx context.Context, db ports.DBTX, parties []models.PartyRef) (map[string]*models.PartyProfile, error) {
	profiles := make(map[string]*models.PartyProfile, len(parties))
	if len(parties) == 0 {
		return profiles, nil
	}

	types := make([]string, len(parties))
	ids := make([]string, len(parties))
	for i, p := range parties {
		types[i] = string(p.PartyType)
		ids[i] = p.PartyID
	}

	rows, err := querier(r.pool, db).Query(ctx, `
		SELECT p.party_type, p.party_id, p.currency, p.tax_rate, p.min_payout_amount, p.hold_period_days, p.custom_config
		FROM party_profiles p
		JOIN unnest($1::text[], $2::text[]) AS wanted(party_type, party_id)
		  ON p.party_type = wanted.party_type AND p.party_id = wanted.party_id`,
		types, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("get party profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p                  models.PartyProfile
			partyType          string
			currency           pgtype.Text
			taxRate, minPayout pgtype.Numeric
			holdDays           pgtype.Int4
			customConfig       []byte
		)
		if err := rows.Scan(&partyType, &p.PartyID, &currency, &taxRate, &minPayout, &holdDays, &customConfig); err != nil {
			return nil, fmt.Errorf("scan party profile: %w", err)
		}

		p.PartyType = models.PartyType(partyType)
		p.Currency = currency.String
		p.HoldPeriodDays = intFromPg(holdDays)
		if p.TaxRate, err = pgNumericToDecimalPtr(taxRate); err != nil {
			return nil, fmt.Errorf("convert tax rate: %w", err)
		}
		if p.MinPayoutAmount, err = pgNumericToDecimalPtr(minPayout); err != nil {
			return nil, fmt.Errorf("convert min payout: %w", err)
		}
		if len(customConfig) > 0 {
			if err := json.Unmarshal(customConfig, &p.CustomConfig); err != nil {
				return nil, fmt.Errorf("unmarshal custom config: %w", err)
			}
		}
		profiles[models.PartyKey(p.PartyType, p.PartyID)] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate party profiles: %w", err)
	}
	return profiles, nil
}
