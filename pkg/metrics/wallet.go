package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WalletMetrics records ledger activity counters and latencies.
type WalletMetrics struct {
	transactions     *prometheus.CounterVec
	rejections       *prometheus.CounterVec
	transferDuration *prometheus.HistogramVec
}

// NewWalletMetrics registers the wallet metrics on the provided registerer.
func NewWalletMetrics(reg prometheus.Registerer) *WalletMetrics {
	if reg == nil {
		return &WalletMetrics{}
	}
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_transactions_total",
		Help: "Recorded ledger transactions by type and currency.",
	}, []string{"type", "currency"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_rejections_total",
		Help: "Rejected ledger operations by reason.",
	}, []string{"reason"})
	transferDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_transfer_duration_seconds",
		Help:    "Duration of wallet-to-wallet transfers in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"currency"})
	reg.MustRegister(transactions, rejections, transferDuration)
	return &WalletMetrics{
		transactions:     transactions,
		rejections:       rejections,
		transferDuration: transferDuration,
	}
}

// IncTransaction counts a committed ledger transaction.
func (w *WalletMetrics) IncTransaction(txType, currency string) {
	if w == nil || w.transactions == nil {
		return
	}
	w.transactions.WithLabelValues(normalizeLabel(txType), normalizeLabel(currency)).Inc()
}

// IncRejection counts a rejected operation (insufficient funds, idempotency reuse, validation).
func (w *WalletMetrics) IncRejection(reason string) {
	if w == nil || w.rejections == nil {
		return
	}
	w.rejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveTransfer records the duration of a transfer in the given currency.
func (w *WalletMetrics) ObserveTransfer(currency string, duration time.Duration) {
	if w == nil || w.transferDuration == nil {
		return
	}
	w.transferDuration.WithLabelValues(normalizeLabel(currency)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
