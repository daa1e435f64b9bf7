package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics содержит метрики цикла сверки статусов оплаты.
type ReconcileMetrics struct {
	// Счётчики исходов сверки
	syncApplied    prometheus.Counter
	syncDuplicate  prometheus.Counter
	syncSkipped    prometheus.Counter
	pushReceived   *prometheus.CounterVec
	gatewayErrors  prometheus.Counter
	effectsApplied prometheus.Counter
	activeQueries  prometheus.Counter

	// Гистограмма времени сверки
	reconcileDuration prometheus.Histogram
}

// NewReconcileMetrics создаёт метрики в default-реестре Prometheus.
func NewReconcileMetrics() *ReconcileMetrics {
	return newReconcileMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newReconcileMetricsWithRegisterer(registerer prometheus.Registerer) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ReconcileMetrics{
		syncApplied: registerCounter(registerer, prometheus.CounterOpts{
			Name: "psp_reconcile_sync_applied_total",
			Help: "Total number of payment status transitions applied by reconciliation",
		}),
		syncDuplicate: registerCounter(registerer, prometheus.CounterOpts{
			Name: "psp_reconcile_sync_duplicate_total",
			Help: "Total number of reconciliations where the provider reported no applicable update",
		}),
		syncSkipped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "psp_reconcile_sync_skipped_total",
			Help: "Total number of transitions rejected by the payment lifecycle graph",
		}),
		pushReceived: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "psp_reconcile_push_total",
			Help: "Total number of inbound gateway notifications grouped by outcome",
		}, []string{"outcome"}),
		gatewayErrors: registerCounter(registerer, prometheus.CounterOpts{
			Name: "psp_gateway_errors_total",
			Help: "Total number of opaque gateway failures surfaced by providers",
		}),
		effectsApplied: registerCounter(registerer, prometheus.CounterOpts{
			Name: "psp_order_effects_total",
			Help: "Total number of order side-effect hook invocations",
		}),
		activeQueries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "psp_payment_queries_total",
			Help: "Total number of active gateway status queries",
		}),
		reconcileDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "psp_reconcile_duration_seconds",
			Help:    "Duration of reconciliation calls in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSyncApplied увеличивает счётчик применённых переходов.
func (m *ReconcileMetrics) RecordSyncApplied() {
	m.syncApplied.Inc()
}

// RecordSyncDuplicate увеличивает счётчик дубликатов/нерелевантных сверок.
func (m *ReconcileMetrics) RecordSyncDuplicate() {
	m.syncDuplicate.Inc()
}

// RecordSyncSkipped увеличивает счётчик переходов, отклонённых графом.
func (m *ReconcileMetrics) RecordSyncSkipped() {
	m.syncSkipped.Inc()
}

// RecordPush увеличивает счётчик входящих уведомлений с исходом обработки.
func (m *ReconcileMetrics) RecordPush(outcome string) {
	m.pushReceived.WithLabelValues(outcome).Inc()
}

// RecordGatewayError увеличивает счётчик ошибок шлюза.
func (m *ReconcileMetrics) RecordGatewayError() {
	m.gatewayErrors.Inc()
}

// RecordEffectsApplied увеличивает счётчик вызовов хука эффектов.
func (m *ReconcileMetrics) RecordEffectsApplied() {
	m.effectsApplied.Inc()
}

// RecordActiveQuery увеличивает счётчик активных опросов шлюза.
func (m *ReconcileMetrics) RecordActiveQuery() {
	m.activeQueries.Inc()
}

// RecordReconcileDuration записывает время выполнения сверки.
func (m *ReconcileMetrics) RecordReconcileDuration(duration time.Duration) {
	m.reconcileDuration.Observe(duration.Seconds())
}
