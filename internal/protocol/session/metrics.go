package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
)

const metricsNamespace = "moqt"

// Metrics 会话层指标
//
// 所有方法对 nil 接收者安全。
type Metrics struct {
	messages   *prometheus.CounterVec
	admissions *prometheus.CounterVec
	objects    prometheus.Counter
	sessions   prometheus.Gauge
}

// NewMetrics 创建并注册指标
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Dispatched messages by type and result severity.",
		}, []string{"type", "result"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "admissions_total",
			Help:      "Subscription admission decisions.",
		}, []string{"result"}),
		objects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "objects_queued_total",
			Help:      "Object payloads appended to inbound queues.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Sessions currently being served.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.messages, m.admissions, m.objects, m.sessions} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeMessage(t wire.MessageType, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = SeverityOf(err).String()
	}
	// 未知类型共用一个标签，避免对端制造任意多的序列
	label := "unknown"
	if t.Known() {
		label = t.String()
	}
	m.messages.WithLabelValues(label, result).Inc()
}

func (m *Metrics) observeAdmission(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.admissions.WithLabelValues("accepted").Inc()
		return
	}
	m.admissions.WithLabelValues("rejected").Inc()
}

func (m *Metrics) objectQueued() {
	if m == nil {
		return
	}
	m.objects.Inc()
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) sessionEnded() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}
