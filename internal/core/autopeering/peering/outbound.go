package peering

import (
	"errors"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// nextCandidate 选出公开 Salt 距离最近、出站集合会优先接纳的候选节点
//
// 候选必须已验证、符合过滤器且尚不是邻居。
func (m *Manager) nextCandidate() (Neighbor, bool) {
	localID := m.local.PeerID()
	publicSalt := m.local.PublicSalt().Bytes()

	var (
		best  Neighbor
		found bool
	)
	for _, p := range m.registry.VerifiedPeers() {
		if m.IsNeighbor(p.ID) || !m.filter.IsValidNeighbor(p) {
			continue
		}
		d := Distance(localID, p.ID, publicSalt)
		if !found || d < best.Distance {
			best = Neighbor{Peer: p, Distance: d}
			found = true
		}
	}
	if !found || !m.outbound.IsPreferred(best) {
		return Neighbor{}, false
	}
	return best, true
}

// UpdateOutbound 执行一轮出站邻居选择
//
// 被拒绝或无应答的候选加入过滤器，后续轮次不再选择。
func (m *Manager) UpdateOutbound() error {
	candidate, ok := m.nextCandidate()
	if !ok {
		return nil
	}

	outcome, err := m.BeginPeering(candidate.Peer)
	if err != nil {
		if errors.Is(err, ErrFatal) {
			return err
		}
		logger.Debug("出站对等请求失败", "peer", candidate.Peer.ID.ShortString(), "err", err)
		m.filter.Add(candidate.Peer.ID)
		return nil
	}

	if outcome != Accepted {
		m.filter.Add(candidate.Peer.ID)
	}
	logger.Debug("出站对等请求完成",
		"peer", candidate.Peer.ID.ShortString(),
		"distance", candidate.Distance,
		"outcome", outcome.String())
	return nil
}

// OutboundCandidate 返回当前的出站候选（用于诊断）
func (m *Manager) OutboundCandidate() (types.Peer, bool) {
	n, ok := m.nextCandidate()
	return n.Peer, ok
}
