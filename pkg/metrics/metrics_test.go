package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestInstancesAreIndependent(t *testing.T) {
	a := New("clinic_desk")
	b := New("clinic_desk")

	a.QueueTransitions.WithLabelValues("cancel", "ok").Inc()
	a.QueueTransitions.WithLabelValues("cancel", "ok").Inc()

	assert.Equal(t, 2.0, counterValue(t, a.QueueTransitions.WithLabelValues("cancel", "ok")))
	assert.Equal(t, 0.0, counterValue(t, b.QueueTransitions.WithLabelValues("cancel", "ok")))
}

func TestRegistryGathersDomainMetrics(t *testing.T) {
	m := New("clinic_desk")
	m.Registrations.WithLabelValues("new_patient").Inc()

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "clinic_desk_registrations_total")
}
