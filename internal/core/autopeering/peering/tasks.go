package peering

import (
	"context"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/task"
)

// Tasks 创建引擎的周期任务：Salt 轮换、出站选择、过期请求清理
//
// 任务的计时从创建时开始。
func (m *Manager) Tasks() []*task.Periodic {
	return []*task.Periodic{
		task.NewPeriodic(m.clk, "salt-update", m.cfg.SaltUpdateInterval, func(context.Context) error {
			return m.UpdateSalt()
		}),
		task.NewPeriodic(m.clk, "outbound-update", m.cfg.OutboundUpdateInterval, func(context.Context) error {
			return m.UpdateOutbound()
		}),
		task.NewPeriodic(m.clk, "request-sweep", m.cfg.RequestSweepInterval, func(context.Context) error {
			m.requests.Sweep()
			return nil
		}),
	}
}
