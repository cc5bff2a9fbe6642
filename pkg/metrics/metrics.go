// Package metrics registers the Prometheus counters tracked by the API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExpensesCreated counts expenses created, labelled by split type.
	ExpensesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dots_expenses_created_total",
		Help: "Number of expenses created, by split type.",
	}, []string{"split_type"})

	// ExpensesUpdated counts expense updates that reached the store.
	ExpensesUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dots_expenses_updated_total",
		Help: "Number of expense updates persisted.",
	})

	// SyncBatches counts offline sync submissions, labelled by outcome:
	// "processed" for first-time batches, "replayed" for idempotent retries.
	SyncBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dots_sync_batches_total",
		Help: "Number of offline sync batches handled, by outcome.",
	}, []string{"outcome"})

	// NotificationFailures counts best-effort notification dispatches that
	// were dropped after the parent operation committed.
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dots_notification_failures_total",
		Help: "Number of notification dispatch failures (non-fatal).",
	})
)
