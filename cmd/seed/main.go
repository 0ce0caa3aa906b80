package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/settlement-service/internal/adapters/secrets"
	"github.com/kevin07696/settlement-service/internal/config"
	"github.com/kevin07696/settlement-service/internal/seed"
	"github.com/kevin07696/settlement-service/pkg/timeutil"
	"go.uber.org/zap"
)

func main() {
	date := flag.String("date", "", "day to create events on (YYYY-MM-DD, default yesterday)")
	flag.Parse()

	os.Setenv("STORAGE", config.StoragePostgres)
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx := context.Background()
	if err := secrets.ResolveStartupSecrets(ctx, cfg, zap.NewNop()); err != nil {
		log.Fatalf("failed to resolve secrets: %v", err)
	}

	loc := cfg.Settlement.Location()
	day := timeutil.Yesterday(timeutil.Now(), loc)
	if *date != "" {
		if day, err = timeutil.ParseDay(*date, loc); err != nil {
			log.Fatalf("invalid -date: %v", err)
		}
	}

	pool, err := pgxpool.New(ctx, cfg.Database.ConnectionString())
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer pool.Close()

	ds := seed.Demo(day, loc)
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return write(ctx, tx, ds)
	})
	if err != nil {
		log.Fatal("Failed to seed demo data:", err)
	}

	fmt.Println("========================================")
	fmt.Println("Demo settlement data seeded")
	fmt.Println("========================================")
	fmt.Printf("Day:       %s (%s)\n", day.Format(timeutil.DateLayout), loc)
	fmt.Printf("Rule set:  %s v%d (%d rules)\n", ds.RuleSet.ID, ds.RuleSet.Version, len(ds.RuleSet.Rules))
	fmt.Printf("Profiles:  %d\n", len(ds.Profiles))
	fmt.Printf("Events:    %d\n", len(ds.Events))
	fmt.Printf("Relays:    %d\n", len(ds.Relays))
	fmt.Println()
	fmt.Println("Run it:")
	fmt.Printf("  curl -X POST -H 'X-Cron-Secret: $CRON_SECRET' -d '{\"target_date\":\"%s\"}' localhost:%d/cron/settlements/daily\n",
		day.Format(timeutil.DateLayout), cfg.Server.HTTPPort)
}

func write(ctx context.Context, tx pgx.Tx, ds *seed.Dataset) error {
	rules, err := json.Marshal(ds.RuleSet.Rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO commission_rule_sets (id, name, version, valid_from, valid_to, rules)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			rules = EXCLUDED.rules`,
		ds.RuleSet.ID, ds.RuleSet.Name, ds.RuleSet.Version, ds.RuleSet.ValidFrom, ds.RuleSet.ValidTo, rules,
	)
	if err != nil {
		return fmt.Errorf("insert rule set: %w", err)
	}

	for _, p := range ds.Profiles {
		var currency *string
		if p.Currency != "" {
			currency = &p.Currency
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO party_profiles (party_type, party_id, currency, tax_rate, min_payout_amount, hold_period_days)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (party_type, party_id) DO UPDATE SET
				currency = EXCLUDED.currency,
				tax_rate = EXCLUDED.tax_rate,
				min_payout_amount = EXCLUDED.min_payout_amount,
				hold_period_days = EXCLUDED.hold_period_days,
				updated_at = NOW()`,
			string(p.PartyType), p.PartyID, currency, p.TaxRate, p.MinPayoutAmount, p.HoldPeriodDays,
		)
		if err != nil {
			return fmt.Errorf("insert profile %s:%s: %w", p.PartyType, p.PartyID, err)
		}
	}

	for _, e := range ds.Events {
		_, err := tx.Exec(ctx, `
			INSERT INTO settlement_events (
				id, order_id, order_item_id, party_type, party_id,
				product_id, category_id, channel_id, gross_amount, quantity, currency, occurred_at
			) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO NOTHING`,
			e.ID, e.OrderID, e.OrderItemID, string(e.PartyType), e.PartyID,
			e.ProductID, e.CategoryID, e.ChannelID, e.GrossAmount, e.Quantity, e.Currency, e.OccurredAt,
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	for _, r := range ds.Relays {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_relays (id, order_id, seller_id, supplier_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			r.ID, r.OrderID, r.SellerID, r.SupplierID, string(r.Status), r.CreatedAt.UTC(), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert relay %s: %w", r.ID, err)
		}
	}
	return nil
}
