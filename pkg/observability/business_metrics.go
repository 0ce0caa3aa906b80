package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine run metrics
	settlementRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_engine_runs_total",
		Help: "Total settlement engine runs",
	}, []string{
		"engine_version", // v1, v2
		"dry_run",        // true, false
		"status",         // success, structural_error, cancelled
	})

	settlementRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "settlement_engine_run_duration_seconds",
		Help: "Time to run the settlement engine over all parties",
		// Buckets: 10ms to 10min
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 600},
	}, []string{
		"engine_version",
		"dry_run",
	})

	settlementsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_created_total",
		Help: "Settlements persisted by the engine",
	}, []string{
		"party_type",
		"status", // pending, held
	})

	settlementPayableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_payable_amount_total",
		Help: "Sum of payable amounts of persisted settlements, in major currency units",
	}, []string{
		"party_type",
		"currency",
	})

	// Rule diagnostics
	commissionRuleHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commission_rule_hits_total",
		Help: "Events priced by each commission rule",
	}, []string{
		"rule_id",
	})

	commissionTierHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commission_tier_hits_total",
		Help: "Events priced by a tier of a tiered commission rule",
	}, []string{
		"rule_id",
	})

	settlementDuplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_duplicates_total",
		Help: "Parties skipped because a settlement already exists",
	}, []string{
		"source", // check, unique_violation
	})

	settlementPartyFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_party_failures_total",
		Help: "Parties aborted during a run, by error code",
	}, []string{
		"code",
	})

	// Batch metrics
	settlementBatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_batch_duration_seconds",
		Help:    "Duration of a daily settlement batch",
		Buckets: []float64{0.1, 1, 5, 15, 60, 300, 600, 1800},
	}, []string{
		"status", // success, failed, skipped
	})

	// State machine metrics
	stateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "state_transition_decisions_total",
		Help: "State guard decisions by entity kind and outcome",
	}, []string{
		"entity_kind", // OrderRelay, SettlementBatch
		"outcome",     // allowed, not_allowed, not_permitted, stale
	})

	// Event publishing
	settlementEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_events_published_total",
		Help: "settlement.created events written to the broker",
	}, []string{
		"status", // success, failed, circuit_open
	})

	publisherCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "publisher_circuit_state",
		Help: "Broker circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{
		"topic",
	})
)

// RecordEngineRun records the outcome and duration of one engine run
func RecordEngineRun(engineVersion string, dryRun bool, status string, duration float64) {
	settlementRunsTotal.WithLabelValues(engineVersion, boolLabel(dryRun), status).Inc()
	settlementRunDuration.WithLabelValues(engineVersion, boolLabel(dryRun)).Observe(duration)
}

// RecordSettlementCreated records a persisted settlement and its payable amount
func RecordSettlementCreated(partyType, status, currency string, payable float64) {
	settlementsCreatedTotal.WithLabelValues(partyType, status).Inc()
	settlementPayableTotal.WithLabelValues(partyType, currency).Add(payable)
}

// RecordRuleHits adds per-rule hit counts collected during a run
func RecordRuleHits(ruleHits, tierHits map[string]int) {
	for ruleID, n := range ruleHits {
		commissionRuleHitsTotal.WithLabelValues(ruleID).Add(float64(n))
	}
	for ruleID, n := range tierHits {
		commissionTierHitsTotal.WithLabelValues(ruleID).Add(float64(n))
	}
}

// RecordDuplicate records a skipped duplicate settlement
func RecordDuplicate(conflict bool) {
	source := "check"
	if conflict {
		source = "unique_violation"
	}
	settlementDuplicatesTotal.WithLabelValues(source).Inc()
}

// RecordPartyFailure records a party aborted by a configuration or storage error
func RecordPartyFailure(code string) {
	settlementPartyFailuresTotal.WithLabelValues(code).Inc()
}

// RecordBatch records a daily batch run
func RecordBatch(status string, duration float64) {
	settlementBatchDuration.WithLabelValues(status).Observe(duration)
}

// RecordTransitionDecision records a state guard decision
func RecordTransitionDecision(entityKind, outcome string) {
	stateTransitionsTotal.WithLabelValues(entityKind, outcome).Inc()
}

// RecordEventPublished records a settlement event publish attempt
func RecordEventPublished(success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	settlementEventsPublished.WithLabelValues(status).Inc()
}

// RecordEventSkipped records an event dropped because the broker circuit is open
func RecordEventSkipped() {
	settlementEventsPublished.WithLabelValues("circuit_open").Inc()
}

// RecordCircuitState records the broker circuit breaker state
func RecordCircuitState(topic string, state int) {
	publisherCircuitState.WithLabelValues(topic).Set(float64(state))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
