package event

import (
	"errors"
	"sync"
)

// ErrClosed 事件通道已关闭（消费方已退出）
var ErrClosed = errors.New("event: channel closed")

// Channel 事件发布通道
//
// 发布方调用 Publish，消费方从 Out 读取。消费方退出时调用 Close，
// 此后 Publish 返回 ErrClosed，由发布方按致命错误处理。
// 数据通道本身从不关闭，避免向已关闭通道发送导致 panic。
type Channel struct {
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewChannel 创建事件通道
func NewChannel(buffer int) *Channel {
	if buffer < 0 {
		buffer = 0
	}
	return &Channel{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
}

// Publish 发布事件
//
// 缓冲区满时阻塞，直到消费方读取或关闭通道。
func (c *Channel) Publish(ev Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.ch <- ev:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Out 返回事件读取端
func (c *Channel) Out() <-chan Event {
	return c.ch
}

// Done 通道关闭信号
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close 关闭通道，可多次调用
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
