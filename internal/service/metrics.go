package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotefiles_uploads_total",
		Help: "Finished upload tasks by kind (single, batch) and status.",
	}, []string{"kind", "status"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotefiles_upload_bytes_total",
		Help: "Bytes of file content accepted by the File Service.",
	})

	activeUploads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quotefiles_active_uploads",
		Help: "Upload tasks currently transferring.",
	})

	shareGrantsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotefiles_share_grants_created_total",
		Help: "Share grants created, by kind.",
	}, []string{"kind"})

	shareRevocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotefiles_share_revocations_total",
		Help: "Revocation attempts by outcome.",
	}, []string{"status"})

	catalogCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotefiles_catalog_cache_hits_total",
		Help: "Catalog lookups served by a live catalog.",
	})

	catalogCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotefiles_catalog_cache_misses_total",
		Help: "Catalog lookups that created a new catalog.",
	})
)

func uploadKind(batch bool) string {
	if batch {
		return "batch"
	}
	return "single"
}
