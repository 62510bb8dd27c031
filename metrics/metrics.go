// Package metrics provides Prometheus instrumentation for attestation
// operations, labelled by operation, platform and outcome.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all attestation metrics
	Namespace = "appattest"

	// Label names
	LabelOperation = "operation"
	LabelPlatform  = "platform"
	LabelStatus    = "status"
	LabelErrorKind = "error_kind"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpIsSupported       = "is_supported"
	OpPrepare           = "prepare"
	OpCreateAttestation = "create_attestation"
	OpCreateAssertion   = "create_assertion"
	OpStoreKeyID        = "store_key_id"
	OpGetStoredKeyID    = "get_stored_key_id"
	OpClearStoredKeyID  = "clear_stored_key_id"
)

var (
	// OperationsTotal counts unified operations by outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of attestation operations by type, platform, and status",
		},
		[]string{LabelOperation, LabelPlatform, LabelStatus},
	)

	// OperationDuration tracks how long a call waited on the native layer.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of attestation operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelOperation, LabelPlatform},
	)

	// ErrorsTotal counts failed operations by error kind.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of attestation errors by operation, platform, and error kind",
		},
		[]string{LabelOperation, LabelPlatform, LabelErrorKind},
	)
)

// RecordOperation records the outcome and duration of one operation.
// errorKind is ignored when success is true.
func RecordOperation(operation, platform string, start time.Time, success bool, errorKind string) {
	OperationDuration.WithLabelValues(operation, platform).Observe(time.Since(start).Seconds())

	if success {
		OperationsTotal.WithLabelValues(operation, platform, StatusSuccess).Inc()
		return
	}
	OperationsTotal.WithLabelValues(operation, platform, StatusError).Inc()
	ErrorsTotal.WithLabelValues(operation, platform, errorKind).Inc()
}
