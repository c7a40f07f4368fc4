package peering

import (
	"fmt"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/event"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/salt"
)

// UpdateSalt 轮换私有与公开 Salt
//
// 启用断开策略时通知全部邻居断开，并清空两个邻居集合与过滤器；
// 否则按新 Salt 重新计算距离并排序，不淘汰。最后发布 SaltUpdated。
func (m *Manager) UpdateSalt() error {
	privateSalt, err := salt.New(m.clk, m.cfg.SaltLifetime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
	publicSalt, err := salt.New(m.clk, m.cfg.SaltLifetime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}

	m.local.SetSalts(privateSalt, publicSalt)

	localID := m.local.PeerID()
	if m.cfg.DropNeighborsOnSaltUpdate {
		dropped := append(m.inbound.Clear(), m.outbound.Clear()...)
		m.filter.Clear()
		for _, n := range dropped {
			if err := m.dropNeighbor(n.Peer); err != nil {
				return err
			}
		}
		logger.Debug("Salt 轮换：已断开全部邻居", "count", len(dropped))
	} else {
		m.inbound.UpdateDistances(localID, privateSalt.Bytes())
		m.outbound.UpdateDistances(localID, publicSalt.Bytes())
	}

	m.metrics.incSaltRotations()
	m.metrics.setNeighbors(m.inbound.Len(), m.outbound.Len())

	logger.Info("Salt 已轮换",
		"publicExpiration", publicSalt.Expiration(),
		"privateExpiration", privateSalt.Expiration(),
		"dropNeighbors", m.cfg.DropNeighborsOnSaltUpdate)

	return m.publish(event.NewSaltUpdated(publicSalt.Expiration(), privateSalt.Expiration()))
}
