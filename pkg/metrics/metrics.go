// Package metrics exposes Prometheus counters/gauges for the billing
// engine's lifecycle events, the same role pkg/consensus/prometheus.go
// plays for neo-go's dBFT service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	contractsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tfchain",
			Subsystem: "billing",
			Name:      "contracts_created_total",
			Help:      "Number of contracts created, by type.",
		},
		[]string{"type"},
	)

	contractsBilled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tfchain",
			Subsystem: "billing",
			Name:      "contracts_billed_total",
			Help:      "Number of successful billing cycles run.",
		},
	)

	contractsDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tfchain",
			Subsystem: "billing",
			Name:      "contracts_deleted_total",
			Help:      "Number of contracts finalized, by cause.",
		},
		[]string{"cause"},
	)

	graceEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tfchain",
			Subsystem: "billing",
			Name:      "grace_period_entries_total",
			Help:      "Number of times a contract entered GracePeriod.",
		},
	)

	graceExits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tfchain",
			Subsystem: "billing",
			Name:      "grace_period_exits_total",
			Help:      "Number of times a contract recovered from GracePeriod to Created.",
		},
	)

	ipsReserved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tfchain",
			Subsystem: "ipreservation",
			Name:      "ips_reserved_total",
			Help:      "Number of public IPs reserved.",
		},
	)

	ipsFreed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tfchain",
			Subsystem: "ipreservation",
			Name:      "ips_freed_total",
			Help:      "Number of public IPs freed.",
		},
	)

	tokensBurned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tfchain",
			Subsystem: "rewards",
			Name:      "tokens_burned_total",
			Help:      "Cumulative native token units burned during reward distribution.",
		},
	)

	dispatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tfchain",
			Subsystem: "scheduler",
			Name:      "dispatch_failed_total",
			Help:      "Number of off-chain billing dispatches that failed authorization or signing.",
		},
	)

	billingSlotSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tfchain",
			Subsystem: "scheduler",
			Name:      "last_slot_size",
			Help:      "Number of contracts processed in the most recently dispatched billing slot.",
		},
	)
)

// Register adds all of this package's collectors to reg. Call once at
// startup (cmd/tfchaind), mirroring neo-go's initializeConsensusResetMetric.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		contractsCreated,
		contractsBilled,
		contractsDeleted,
		graceEntries,
		graceExits,
		ipsReserved,
		ipsFreed,
		tokensBurned,
		dispatchFailures,
		billingSlotSize,
	)
}

// ContractCreated increments the per-type creation counter.
func ContractCreated(contractType string) {
	contractsCreated.WithLabelValues(contractType).Inc()
}

// ContractBilled increments the successful-cycle counter.
func ContractBilled() {
	contractsBilled.Inc()
}

// ContractDeleted increments the per-cause deletion counter.
func ContractDeleted(cause string) {
	contractsDeleted.WithLabelValues(cause).Inc()
}

// GracePeriodEntered increments the grace-entry counter.
func GracePeriodEntered() {
	graceEntries.Inc()
}

// GracePeriodExited increments the grace-recovery counter.
func GracePeriodExited() {
	graceExits.Inc()
}

// IPsReserved adds n to the reserved-IP counter.
func IPsReserved(n int) {
	ipsReserved.Add(float64(n))
}

// IPsFreed adds n to the freed-IP counter.
func IPsFreed(n int) {
	ipsFreed.Add(float64(n))
}

// TokensBurned adds amount to the cumulative burn counter.
func TokensBurned(amount uint64) {
	tokensBurned.Add(float64(amount))
}

// DispatchFailed increments the scheduler dispatch-failure counter.
func DispatchFailed() {
	dispatchFailures.Inc()
}

// SetLastSlotSize records the size of the most recently dispatched slot.
func SetLastSlotSize(n int) {
	billingSlotSize.Set(float64(n))
}
