package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// VaultMetrics bundles collectors for the staking engine. All methods are safe
// on a nil receiver so the engine can run without telemetry in tests.
type VaultMetrics struct {
	stakes          prometheus.Counter
	unstakes        prometheus.Counter
	claims          prometheus.Counter
	rewardsPaid     prometheus.Counter
	guardRejections *prometheus.CounterVec
	itemsInCustody  prometheus.Gauge
	breakerOpen     prometheus.Gauge
	paused          prometheus.Gauge
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			stakes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_stakes_total",
				Help: "Count of accepted stake operations.",
			}),
			unstakes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_unstakes_total",
				Help: "Count of accepted unstake operations.",
			}),
			claims: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_claims_total",
				Help: "Count of successful reward claims.",
			}),
			rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_rewards_paid_total",
				Help: "Total reward units minted to stakers.",
			}),
			guardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_guard_rejections_total",
				Help: "Count of operations rejected by a safety guard, by guard.",
			}, []string{"guard"}),
			itemsInCustody: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_items_in_custody",
				Help: "Number of items currently held by the custodian.",
			}),
			breakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_breaker_open",
				Help: "Whether the circuit breaker has tripped (1) or not (0).",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_paused",
				Help: "Whether the vault is administratively paused (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.stakes,
			vaultRegistry.unstakes,
			vaultRegistry.claims,
			vaultRegistry.rewardsPaid,
			vaultRegistry.guardRejections,
			vaultRegistry.itemsInCustody,
			vaultRegistry.breakerOpen,
			vaultRegistry.paused,
		)
	})
	return vaultRegistry
}

func (m *VaultMetrics) RecordStake() {
	if m == nil {
		return
	}
	m.stakes.Inc()
	m.itemsInCustody.Inc()
}

func (m *VaultMetrics) RecordUnstake() {
	if m == nil {
		return
	}
	m.unstakes.Inc()
	m.itemsInCustody.Dec()
}

func (m *VaultMetrics) RecordClaim(amount uint64) {
	if m == nil {
		return
	}
	m.claims.Inc()
	m.rewardsPaid.Add(float64(amount))
}

func (m *VaultMetrics) RecordRejection(guard string) {
	if m == nil {
		return
	}
	if guard == "" {
		guard = "unknown"
	}
	m.guardRejections.WithLabelValues(guard).Inc()
}

func (m *VaultMetrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.breakerOpen.Set(1)
		return
	}
	m.breakerOpen.Set(0)
}

func (m *VaultMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}
