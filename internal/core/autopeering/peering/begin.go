package peering

import (
	"fmt"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/message"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/packet"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/request"
	"github.com/dep2p/go-autopeering/pkg/types"
)

// Outcome 出站对等请求结果
type Outcome int

const (
	// NoAnswer 响应超时
	NoAnswer Outcome = iota

	// Accepted 对方接受且已成为出站邻居
	Accepted

	// Denied 对方拒绝，或本地未能接纳
	Denied
)

// String 返回结果名称
func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Denied:
		return "denied"
	default:
		return "no_answer"
	}
}

// BeginPeering 向节点发起对等请求并等待响应
//
// 等待只由响应超时结束。超时后移除本次请求的待响应条目，迟到的响应不再被处理；
// 若条目已被更新的请求覆盖则保留。响应为接受但本地未能接纳（例如对方已是入站邻居）
// 时返回 Denied。只有致命错误或节点缺少 peering 服务时返回 error。
func (m *Manager) BeginPeering(p types.Peer) (Outcome, error) {
	addr, err := p.ServiceAddr(types.ServicePeering)
	if err != nil {
		return NoAnswer, fmt.Errorf("%w: %s", ErrNoPeeringService, p.ID.ShortString())
	}

	respCh := request.NewResponseChan()
	_, raw := m.requests.CreatePeeringRequest(p, respCh, m.local)
	key := request.Key{PeerID: p.ID, MsgType: packet.PeeringRequest}
	hash := packet.MessageHash(packet.PeeringRequest, raw)

	timer := m.clk.Timer(m.cfg.ResponseTimeout)
	defer timer.Stop()

	if err := m.send(addr, packet.PeeringRequest, raw); err != nil {
		m.requests.RemoveIfMatch(key, hash)
		return NoAnswer, err
	}

	select {
	case b := <-respCh:
		res, err := message.UnmarshalPeeringResponse(b)
		if err != nil || !res.Status || !m.outbound.Contains(p.ID) {
			return Denied, nil
		}
		return Accepted, nil

	case <-timer.C:
		m.requests.RemoveIfMatch(key, hash)
		logger.Debug("对等请求超时", "peer", p.ID.ShortString())
		return NoAnswer, nil
	}
}
