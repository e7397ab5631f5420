package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCounters(t *testing.T) {
	r := New()
	require.NotNil(t, r.Registerer)

	r.RequestsTotal.WithLabelValues("posts", "2xx").Inc()
	r.NoBackendTotal.WithLabelValues("UnknownDestination").Inc()

	families, err := r.Registerer.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
