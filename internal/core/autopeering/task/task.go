// Package task 实现基于可注入时钟的周期任务
//
// Salt 轮换、出站邻居选择、过期请求清理都以周期任务运行，
// 测试中通过 clock.Mock 推进时间来驱动。
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-autopeering/pkg/lib/log"
)

var logger = log.Logger("autopeering/task")

// Func 周期执行的函数，返回错误时任务终止
type Func func(ctx context.Context) error

// Periodic 周期任务
type Periodic struct {
	name     string
	interval time.Duration
	ticker   *clock.Ticker
	fn       Func
}

// NewPeriodic 创建周期任务
//
// Ticker 在创建时即开始计时，首次执行发生在一个 interval 之后。
func NewPeriodic(clk clock.Clock, name string, interval time.Duration, fn Func) *Periodic {
	return &Periodic{
		name:     name,
		interval: interval,
		ticker:   clk.Ticker(interval),
		fn:       fn,
	}
}

// Name 返回任务名称
func (p *Periodic) Name() string {
	return p.name
}

// Run 运行任务直到 ctx 取消或 fn 返回错误
func (p *Periodic) Run(ctx context.Context) error {
	defer p.ticker.Stop()

	logger.Debug("周期任务已启动", "task", p.name, "interval", p.interval)

	for {
		// 优先响应关闭
		select {
		case <-ctx.Done():
			logger.Debug("周期任务已停止", "task", p.name)
			return nil
		default:
		}

		select {
		case <-ctx.Done():
			logger.Debug("周期任务已停止", "task", p.name)
			return nil
		case <-p.ticker.C:
			if err := p.fn(ctx); err != nil {
				// 关闭过程中通道先于任务关闭
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("周期任务失败", "task", p.name, "err", err)
				return fmt.Errorf("task %s: %w", p.name, err)
			}
		}
	}
}
