// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry every collector below is registered on.
var Registry = prometheus.NewRegistry()

var (
	// Notifications counts dispatch outcomes by notification name and status.
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification dispatch outcomes",
		},
		[]string{"name", "status"},
	)

	// SalesforceRequests counts CRM calls by operation and result.
	SalesforceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesforce_requests_total",
			Help: "Salesforce API calls",
		},
		[]string{"op", "result"},
	)

	// SalesforceLatency tracks CRM call latency.
	SalesforceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salesforce_request_duration_seconds",
			Help:    "Salesforce API call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// OutboxRecords counts relayed outbox records by result.
	OutboxRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_records_total",
			Help: "Outbox records relayed",
		},
		[]string{"result"},
	)

	// InboundMerges counts inbound CRM merges by record type and result.
	InboundMerges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_merges_total",
			Help: "Inbound CRM record merges",
		},
		[]string{"record_type", "result"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		Notifications,
		SalesforceRequests,
		SalesforceLatency,
		OutboxRecords,
		InboundMerges,
	)
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
