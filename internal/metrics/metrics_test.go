package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("transfer", "", time.Millisecond)
	m.ObserveOperation("transfer", "insufficient_balance", time.Millisecond)
	m.ObserveOperation("transfer", "", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("transfer", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("transfer", "insufficient_balance")))
}

func TestSettlementsAndProposals(t *testing.T) {
	m := New()
	m.ObserveSettlement("refunded")
	m.SetProposals(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("refunded")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.proposals))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("vote", "", time.Second)
	m.ObserveSettlement("used")
	m.SetProposals(1)
}
