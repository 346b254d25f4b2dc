package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "license_manager"

var (
	ActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "activations_total",
		Help:      "Machine activation attempts by outcome.",
	}, []string{"outcome"})

	DeactivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deactivations_total",
		Help:      "Machine deactivation attempts by outcome.",
	}, []string{"outcome"})

	LicensesByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "licenses",
		Help:      "Licenses by derived status as of the last refresh.",
	}, []string{"status"})

	StatusRefreshTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_refresh_updates_total",
		Help:      "Stored statuses rewritten by the refresh task.",
	})

	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_requests_total",
		Help:      "License cache lookups by result.",
	}, []string{"result"})
)
