package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 邮箱指标
	MailboxesCreated prometheus.Counter
	MailboxesDeleted prometheus.Counter

	// 邮件指标
	EmailsReceived prometheus.Counter
	EmailsDeleted  prometheus.Counter

	// SMTP 指标
	SMTPRejections *prometheus.CounterVec

	// WebSocket 指标
	WSConnections   prometheus.Gauge
	WSSubscriptions prometheus.Gauge
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flashmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flashmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		MailboxesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flashmail_mailboxes_created_total",
			Help: "Total number of mailboxes created",
		}),

		MailboxesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flashmail_mailboxes_deleted_total",
			Help: "Total number of mailboxes deleted",
		}),

		EmailsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flashmail_emails_received_total",
			Help: "Total number of emails accepted over SMTP",
		}),

		EmailsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flashmail_emails_deleted_total",
			Help: "Total number of emails deleted",
		}),

		SMTPRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flashmail_smtp_rejections_total",
				Help: "Total number of rejected SMTP deliveries by reason",
			},
			[]string{"reason"},
		),

		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flashmail_ws_connections",
			Help: "Current number of open WebSocket connections",
		}),

		WSSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flashmail_ws_subscriptions",
			Help: "Current number of active mailbox subscriptions",
		}),
	}
}

// HTTPHandler 返回 Prometheus 指标端点处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
