package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-autopeering/pkg/lib/log"
)

var logger = log.Logger("autopeering/event")

// ============================================================================
// Bus 实现
// ============================================================================

// Bus 事件分发器
//
// 从 Channel 读取事件并分发给所有订阅者。
// 订阅者缓冲区满时丢弃事件，慢消费者不会阻塞协议引擎。
type Bus struct {
	mu    sync.RWMutex
	sinks []*Subscription

	dropCount atomic.Int64
}

// NewBus 创建事件分发器
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe 订阅事件
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &Subscription{
		bus: b,
		out: make(chan Event, buffer),
	}

	b.mu.Lock()
	b.sinks = append(b.sinks, sub)
	b.mu.Unlock()

	return sub
}

// Run 持续分发事件，直到 ctx 取消
//
// 退出时关闭源通道，使后续 Publish 返回 ErrClosed。
func (b *Bus) Run(ctx context.Context, src *Channel) error {
	defer src.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-src.Out():
			b.emit(ev)
		}
	}
}

// Dropped 返回因缓冲区满而丢弃的事件数
func (b *Bus) Dropped() int64 {
	return b.dropCount.Load()
}

// emit 发射事件到所有订阅者
func (b *Bus) emit(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.sinks {
		select {
		case sub.out <- ev:
		default:
			dropped := b.dropCount.Add(1)

			// 每丢弃 100 个事件警告一次，避免日志泛滥
			if dropped%100 == 1 {
				logger.Warn("慢消费者检测",
					"dropped", dropped,
					"kind", ev.Kind.String(),
					"reason", "subscriber buffer full")
			}
		}
	}
}

// removeSub 移除订阅
func (b *Bus) removeSub(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.sinks {
		if s == sub {
			b.sinks = append(b.sinks[:i], b.sinks[i+1:]...)
			break
		}
	}
}

// ============================================================================
// Subscription 实现
// ============================================================================

// Subscription 订阅
type Subscription struct {
	bus       *Bus
	out       chan Event
	closeOnce sync.Once
}

// Out 返回事件通道
func (s *Subscription) Out() <-chan Event {
	return s.out
}

// Close 取消订阅，可多次调用
//
// 先从分发器移除，再关闭通道；emit 持有读锁，因此不会向已关闭通道发送。
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.removeSub(s)
		close(s.out)
	})
}
