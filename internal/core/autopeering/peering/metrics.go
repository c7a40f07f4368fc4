package peering

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/packet"
)

// 消息处理结果标签
const (
	outcomeAccepted    = "accepted"
	outcomeRejected    = "rejected"
	outcomeInvalid     = "invalid"
	outcomeDecodeError = "decode_error"
	outcomeHandled     = "handled"
	outcomeUnknown     = "unknown"
)

// Metrics 自动对等指标
type Metrics struct {
	messages      *prometheus.CounterVec
	neighbors     *prometheus.GaugeVec
	drops         prometheus.Counter
	saltRotations prometheus.Counter
}

// NewMetrics 创建指标，reg 为 nil 时不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autopeering",
			Name:      "messages_total",
			Help:      "Peering messages received by type and outcome.",
		}, []string{"type", "outcome"}),
		neighbors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "autopeering",
			Name:      "neighbors",
			Help:      "Current neighbor count by direction.",
		}, []string{"direction"}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autopeering",
			Name:      "drops_sent_total",
			Help:      "Drop requests sent to neighbors.",
		}),
		saltRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autopeering",
			Name:      "salt_rotations_total",
			Help:      "Completed salt rotations.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.neighbors, m.drops, m.saltRotations)
	}
	return m
}

func (m *Metrics) observeMessage(t packet.MessageType, outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(t.String(), outcome).Inc()
}

func (m *Metrics) setNeighbors(in, out int) {
	if m == nil {
		return
	}
	m.neighbors.WithLabelValues(Inbound.String()).Set(float64(in))
	m.neighbors.WithLabelValues(Outbound.String()).Set(float64(out))
}

func (m *Metrics) incDrops() {
	if m == nil {
		return
	}
	m.drops.Inc()
}

func (m *Metrics) incSaltRotations() {
	if m == nil {
		return
	}
	m.saltRotations.Inc()
}
