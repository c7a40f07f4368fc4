package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/packet"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("autopeering/server")

// UDPConfig UDP 服务端配置
type UDPConfig struct {
	// BindAddr 监听地址
	BindAddr string

	// PacketRate 每个来源每秒允许的数据包数，0 表示不限速
	PacketRate float64

	// PacketBurst 每个来源的突发数据包数
	PacketBurst int

	// MaxSources 限速跟踪的来源数量上限
	MaxSources int
}

// UDPServer 自动对等 UDP 服务端
//
// 读取帧并投递给协议引擎，从出站通道取数据包加上帧头后发送。
// 帧中的发送方 ID 不做认证。
type UDPServer struct {
	conn    *net.UDPConn
	localID types.PeerID
	chans   *Channels
	limiter *sourceLimiter
	clk     clock.Clock

	received    atomic.Int64
	rateLimited atomic.Int64
	malformed   atomic.Int64
}

// ListenUDP 监听 UDP 地址并创建服务端
func ListenUDP(cfg UDPConfig, localID types.PeerID, chans *Channels, clk clock.Clock) (*UDPServer, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", cfg.BindAddr, err)
	}

	limiter, err := newSourceLimiter(cfg.PacketRate, cfg.PacketBurst, cfg.MaxSources)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}

	if clk == nil {
		clk = clock.New()
	}

	return &UDPServer{
		conn:    conn,
		localID: localID,
		chans:   chans,
		limiter: limiter,
		clk:     clk,
	}, nil
}

// LocalAddr 返回实际监听地址
func (s *UDPServer) LocalAddr() netip.AddrPort {
	ap := s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Stats 返回已接收、被限速、格式错误的数据包数
func (s *UDPServer) Stats() (received, rateLimited, malformed int64) {
	return s.received.Load(), s.rateLimited.Load(), s.malformed.Load()
}

// Close 关闭套接字，用于未运行即释放的场景
func (s *UDPServer) Close() error {
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Run 运行读写循环，直到 ctx 取消
//
// 退出时关闭套接字与数据包通道，协议引擎随后的发送返回 ErrClosed。
func (s *UDPServer) Run(ctx context.Context) error {
	defer s.chans.Close()

	logger.Info("UDP 服务端已启动", "addr", s.LocalAddr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return s.conn.Close()
	})
	g.Go(func() error {
		return s.readLoop(gctx)
	})
	g.Go(func() error {
		return s.writeLoop(gctx)
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	logger.Info("UDP 服务端已停止")
	return err
}

func (s *UDPServer) readLoop(ctx context.Context) error {
	buf := make([]byte, packet.MaxFrameSize+1)

	for {
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read udp: %w", err)
		}
		s.received.Add(1)

		if !s.limiter.allow(from.Addr(), s.clk.Now()) {
			if c := s.rateLimited.Add(1); c%100 == 1 {
				logger.Warn("来源数据包超过速率限制", "from", from.String(), "limited", c)
			}
			continue
		}

		msgType, sender, payload, err := packet.DecodeFrame(buf[:n])
		if err != nil {
			s.malformed.Add(1)
			logger.Debug("丢弃无效帧", "from", from.String(), "err", err)
			continue
		}
		if !msgType.IsPeering() {
			logger.Debug("忽略非对等消息", "from", from.String(), "type", msgType.String())
			continue
		}

		pkt := packet.IncomingPacket{
			MsgType:  msgType,
			MsgBytes: payload,
			PeerAddr: netip.AddrPortFrom(from.Addr().Unmap(), from.Port()),
			PeerID:   sender,
		}
		if err := s.chans.Deliver(ctx, pkt); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (s *UDPServer) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-s.chans.Outgoing():
			frame, err := packet.EncodeFrame(p.MsgType, s.localID, p.MsgBytes)
			if err != nil {
				logger.Warn("出站消息过大", "type", p.MsgType.String(), "size", len(p.MsgBytes))
				continue
			}
			if _, err := s.conn.WriteToUDPAddrPort(frame, p.PeerAddr); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Debug("发送数据包失败", "to", p.PeerAddr.String(), "err", err)
			}
		}
	}
}
