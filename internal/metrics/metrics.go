// internal/metrics/metrics.go
package metrics

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    EmailsSent = promauto.NewCounter(prometheus.CounterOpts{
        Name: "quillsend_emails_sent_total",
        Help: "Emails confirmed delivered to the provider.",
    })
    EmailsFailed = promauto.NewCounter(prometheus.CounterOpts{
        Name: "quillsend_emails_failed_total",
        Help: "Per-recipient delivery failures.",
    })
    CampaignsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "quillsend_campaigns_executed_total",
        Help: "Campaign executions by terminal status.",
    }, []string{"status"})
    QuotaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "quillsend_quota_rejections_total",
        Help: "Sends rejected by a quota limit.",
    }, []string{"limit"})
    SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
        Name:    "quillsend_sweep_duration_seconds",
        Help:    "Duration of one due-campaign sweep.",
        Buckets: prometheus.DefBuckets,
    })
)
