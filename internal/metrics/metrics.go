package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var operationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "studydrive_storage_operations_total",
		Help: "Storage core operations by type and outcome.",
	},
	[]string{"operation", "outcome"},
)

var quotaExceededTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "studydrive_quota_exceeded_total",
		Help: "Reservations rejected because the per-user quota was full.",
	},
)

// ObserveOperation учитывает результат операции оркестратора.
func ObserveOperation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveQuotaExceeded учитывает отказ по квоте.
func ObserveQuotaExceeded() {
	quotaExceededTotal.Inc()
}

// Handler возвращает обработчик эндпоинта /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
