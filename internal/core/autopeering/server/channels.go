// Package server 实现自动对等的数据包通道与 UDP 服务端
//
// 协议引擎只通过 Socket 收发数据包：Rx 读取入站数据包，Tx 发送出站数据包。
// UDP 服务端负责帧编解码与速率限制，测试中可直接使用 Channels 代替网络。
package server

import (
	"context"
	"errors"
	"sync"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/packet"
)

// ErrClosed 数据包通道已关闭（服务端已退出）
var ErrClosed = errors.New("server: channels closed")

// Tx 出站数据包发送端
type Tx struct {
	ch   chan<- packet.OutgoingPacket
	done <-chan struct{}
}

// Send 发送数据包
//
// 服务端退出后返回 ErrClosed，调用方按致命错误处理。
func (tx Tx) Send(p packet.OutgoingPacket) error {
	select {
	case <-tx.done:
		return ErrClosed
	default:
	}

	select {
	case tx.ch <- p:
		return nil
	case <-tx.done:
		return ErrClosed
	}
}

// Socket 协议引擎持有的通道两端
type Socket struct {
	Rx <-chan packet.IncomingPacket
	Tx Tx
}

// Channels 服务端与协议引擎之间的数据包通道
type Channels struct {
	in        chan packet.IncomingPacket
	out       chan packet.OutgoingPacket
	done      chan struct{}
	closeOnce sync.Once
}

// NewChannels 创建数据包通道
func NewChannels(buffer int) *Channels {
	if buffer < 0 {
		buffer = 0
	}
	return &Channels{
		in:   make(chan packet.IncomingPacket, buffer),
		out:  make(chan packet.OutgoingPacket, buffer),
		done: make(chan struct{}),
	}
}

// Socket 返回协议引擎使用的通道两端
func (c *Channels) Socket() Socket {
	return Socket{
		Rx: c.in,
		Tx: c.Tx(),
	}
}

// Tx 返回出站发送端
func (c *Channels) Tx() Tx {
	return Tx{ch: c.out, done: c.done}
}

// Deliver 投递入站数据包
func (c *Channels) Deliver(ctx context.Context, p packet.IncomingPacket) error {
	select {
	case c.in <- p:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outgoing 返回出站数据包读取端
func (c *Channels) Outgoing() <-chan packet.OutgoingPacket {
	return c.out
}

// Done 通道关闭信号
func (c *Channels) Done() <-chan struct{} {
	return c.done
}

// Close 关闭通道，可多次调用
func (c *Channels) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
