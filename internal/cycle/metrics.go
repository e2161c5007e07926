package cycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "provisioning_cycles_total",
		Help: "Number of provisioning cycles run.",
	})

	contactOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "provisioning_contact_outcomes_total",
		Help: "Per-contact provisioning outcomes, differentiated by result.",
	}, []string{"outcome"})
)
