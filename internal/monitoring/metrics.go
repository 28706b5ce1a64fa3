package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 服务级指标集合。
type Metrics struct {
	// AddressesCreated 已创建地址计数
	AddressesCreated prometheus.Counter
	// AddressesDeleted 已删除地址计数
	AddressesDeleted prometheus.Counter
	// PremiumUpgrades 高级版升级计数
	PremiumUpgrades prometheus.Counter

	// InboundMail 入站邮件处理结果计数，outcome 取值
	// accepted / dropped_unknown / dropped_expired / dropped_domain / dropped_parse
	InboundMail *prometheus.CounterVec
	// InboundSize 入站邮件字节数分布
	InboundSize prometheus.Histogram

	// HTTPRequests HTTP 请求计数
	HTTPRequests *prometheus.CounterVec
	// HTTPDuration HTTP 请求耗时分布
	HTTPDuration *prometheus.HistogramVec

	// OutboundMail 出站邮件发送结果计数，outcome 取值 sent / failed
	OutboundMail *prometheus.CounterVec
}

// NewMetrics 注册并返回全部指标。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AddressesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "flashmail_addresses_created_total",
			Help: "累计创建的临时邮箱地址数",
		}),
		AddressesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "flashmail_addresses_deleted_total",
			Help: "累计删除的临时邮箱地址数",
		}),
		PremiumUpgrades: factory.NewCounter(prometheus.CounterOpts{
			Name: "flashmail_premium_upgrades_total",
			Help: "累计高级版升级次数",
		}),
		InboundMail: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flashmail_inbound_mail_total",
			Help: "入站邮件处理结果计数",
		}, []string{"outcome"}),
		InboundSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flashmail_inbound_mail_bytes",
			Help:    "入站邮件大小分布",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flashmail_http_requests_total",
			Help: "HTTP 请求计数",
		}, []string{"method", "path", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flashmail_http_request_duration_seconds",
			Help:    "HTTP 请求耗时分布",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		OutboundMail: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flashmail_outbound_mail_total",
			Help: "出站邮件发送结果计数",
		}, []string{"outcome"}),
	}
}

// NewTestMetrics 供测试使用的独立注册表指标。
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
