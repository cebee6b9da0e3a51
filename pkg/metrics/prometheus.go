package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry         *prometheus.Registry
	transfersTotal   *prometheus.CounterVec
	transferDuration prometheus.Histogram
	failureLogErrors prometheus.Counter
	eventsPublished  *prometheus.CounterVec
	accountBalance   *prometheus.GaugeVec
	ledgerTotal      prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	logger           *slog.Logger
	server           *http.Server
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	collector := &MetricsCollector{
		registry: registry,
		transfersTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Total number of transfer attempts by outcome",
		}, []string{"status"}),
		transferDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "transfer_duration_seconds",
			Help:    "Time taken to execute a transfer",
			Buckets: prometheus.DefBuckets,
		}),
		failureLogErrors: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "failure_log_errors_total",
			Help: "Failed attempts to persist a FAILED transaction log",
		}),
		eventsPublished: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_events_total",
			Help: "Transfer events handed to the publisher by result",
		}, []string{"result"}),
		accountBalance: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "account_balance",
			Help: "Current account balance",
		}, []string{"account_id"}),
		ledgerTotal: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "ledger_total_balance",
			Help: "Sum of all account balances",
		}),
		httpRequests: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		}, []string{"method", "route", "code"}),
		logger: logger,
	}

	return collector
}

// ObserveTransfer counts one finished transfer attempt.
func (m *MetricsCollector) ObserveTransfer(status string, duration time.Duration) {
	m.transfersTotal.WithLabelValues(status).Inc()
	m.transferDuration.Observe(duration.Seconds())
}

func (m *MetricsCollector) IncFailureLogErrors() {
	m.failureLogErrors.Inc()
}

func (m *MetricsCollector) ObserveEvent(result string) {
	m.eventsPublished.WithLabelValues(result).Inc()
}

func (m *MetricsCollector) ObserveHTTPRequest(method, route string, code int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

// ResetAccountBalances drops every per-account balance series.
func (m *MetricsCollector) ResetAccountBalances() {
	m.accountBalance.Reset()
}

func (m *MetricsCollector) UpdateAccountBalance(accountID string, balance float64) {
	m.accountBalance.WithLabelValues(accountID).Set(balance)
}

func (m *MetricsCollector) UpdateLedgerTotal(total float64) {
	m.ledgerTotal.Set(total)
}

func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.server = server

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m.server != nil {
		if err := m.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	m.logger.Info("Metrics collector shutdown complete")
	return nil
}
