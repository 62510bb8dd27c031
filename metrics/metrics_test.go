package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordOperation_Success(t *testing.T) {
	OperationsTotal.Reset()
	OperationDuration.Reset()
	ErrorsTotal.Reset()

	RecordOperation(OpPrepare, "ios", time.Now(), true, "")

	assert.Equal(t, float64(1), testutil.ToFloat64(OperationsTotal.WithLabelValues(OpPrepare, "ios", StatusSuccess)))
	assert.Equal(t, 1, testutil.CollectAndCount(OperationDuration))
	assert.Equal(t, 0, testutil.CollectAndCount(ErrorsTotal))
}

func TestRecordOperation_Error(t *testing.T) {
	OperationsTotal.Reset()
	OperationDuration.Reset()
	ErrorsTotal.Reset()

	RecordOperation(OpCreateAttestation, "web", time.Now(), false, "attestation_unavailable")
	RecordOperation(OpCreateAttestation, "web", time.Now(), false, "attestation_unavailable")

	assert.Equal(t, float64(2), testutil.ToFloat64(OperationsTotal.WithLabelValues(OpCreateAttestation, "web", StatusError)))
	assert.Equal(t, float64(2), testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpCreateAttestation, "web", "attestation_unavailable")))
}
