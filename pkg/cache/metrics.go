package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// categoryFetches tracks fetch outcomes per category
	categoryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discogs_category_fetches_total",
			Help: "Total number of category fetch outcomes recorded in the cache",
		},
		[]string{"account", "category", "result"}, // "success", "failure"
	)

	// consecutiveFailures tracks the current failure streak per category
	consecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "discogs_category_consecutive_failures",
			Help: "Consecutive failed fetches per category",
		},
		[]string{"account", "category"},
	)

	// MirrorErrors tracks Redis mirror operation errors
	MirrorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discogs_mirror_errors_total",
			Help: "Total number of Redis mirror operation errors",
		},
		[]string{"operation"}, // "publish", "get", "list"
	)
)
