package autopeering

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/mr-tron/base58"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-autopeering/config"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/event"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/local"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/peer"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/peering"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/server"
	"github.com/dep2p/go-autopeering/pkg/types"
)

// 通道缓冲
const (
	packetBuffer = 64
	eventBuffer  = 64
)

// ============================================================================
// Fx 模块
// ============================================================================

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("autopeering",
		fx.Provide(
			provideClock,
			provideLocal,
			provideActivePeers,
			provideChannels,
			provideServer,
			provideManager,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

type clockInput struct {
	fx.In

	Clock clock.Clock `optional:"true"`
}

type clockResult struct {
	fx.Out

	Clock clock.Clock `name:"autopeering_clock"`
}

// provideClock 未注入时钟时使用系统时钟
func provideClock(in clockInput) clockResult {
	if in.Clock != nil {
		return clockResult{Clock: in.Clock}
	}
	return clockResult{Clock: clock.New()}
}

type localParams struct {
	fx.In

	Config     *config.Config
	Clock      clock.Clock        `name:"autopeering_clock"`
	PrivateKey ed25519.PrivateKey `optional:"true"`
}

func provideLocal(p localParams) (*local.Local, error) {
	ip, port, err := splitBindAddr(p.Config.Autopeering.BindAddr)
	if err != nil {
		return nil, err
	}
	services := map[string]types.ServiceEndpoint{
		types.ServicePeering: {Network: "udp", Port: port},
	}
	lifetime := p.Config.Autopeering.SaltLifetime.Duration()

	if p.PrivateKey != nil {
		return local.FromPrivateKey(p.Clock, p.PrivateKey, lifetime, ip, services)
	}
	return local.New(p.Clock, lifetime, ip, services)
}

func provideActivePeers(cfg *config.Config) (*peer.ActivePeersList, error) {
	list, err := peer.NewActivePeersList(cfg.Autopeering.MaxActivePeers)
	if err != nil {
		return nil, err
	}

	known, err := KnownPeers(cfg.KnownPeers)
	if err != nil {
		return nil, err
	}
	for _, p := range known {
		list.Put(p, true)
	}
	if len(known) > 0 {
		logger.Info("已加载已知节点", "count", len(known))
	}
	return list, nil
}

// channelsResult 引擎内部通道
type channelsResult struct {
	fx.Out

	Packets *server.Channels
	Events  *event.Channel
	Bus     *event.Bus
}

func provideChannels() channelsResult {
	return channelsResult{
		Packets: server.NewChannels(packetBuffer),
		Events:  event.NewChannel(eventBuffer),
		Bus:     event.NewBus(),
	}
}

type serverParams struct {
	fx.In

	Config  *config.Config
	Clock   clock.Clock `name:"autopeering_clock"`
	Local   *local.Local
	Packets *server.Channels
}

func provideServer(p serverParams) (*server.UDPServer, error) {
	return server.ListenUDP(server.UDPConfig{
		BindAddr:    p.Config.Autopeering.BindAddr,
		PacketRate:  p.Config.Autopeering.PacketRate,
		PacketBurst: p.Config.Autopeering.PacketBurst,
	}, p.Local.PeerID(), p.Packets, p.Clock)
}

type managerParams struct {
	fx.In

	Config     *config.Config
	Clock      clock.Clock `name:"autopeering_clock"`
	Local      *local.Local
	Peers      *peer.ActivePeersList
	Packets    *server.Channels
	Events     *event.Channel
	Registerer prometheus.Registerer     `optional:"true"`
	Validator  peering.NeighborValidator `optional:"true"`
}

func provideManager(p managerParams) (*peering.Manager, error) {
	validator := p.Validator
	if validator == nil {
		v, err := peering.NewAddrValidator(p.Local.PeerID(), p.Config.Autopeering.AllowedCIDRs, p.Config.Autopeering.BlockedCIDRs)
		if err != nil {
			return nil, err
		}
		validator = v
	}

	return peering.NewManager(
		peering.FromAutopeeringConfig(p.Config.Autopeering),
		p.Local,
		p.Peers,
		p.Packets.Socket(),
		p.Events,
		peering.WithClock(p.Clock),
		peering.WithValidator(validator),
		peering.WithMetrics(peering.NewMetrics(p.Registerer)),
	), nil
}

type engineParams struct {
	fx.In

	Manager *peering.Manager
	Server  *server.UDPServer
	Events  *event.Channel
	Bus     *event.Bus
}

func provideEngine(p engineParams) *Engine {
	return NewEngine(p.Manager, p.Server, p.Events, p.Bus)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In

	LC     fx.Lifecycle
	Engine *Engine
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return input.Engine.Start()
		},
		OnStop: func(ctx context.Context) error {
			return input.Engine.Stop(ctx)
		},
	})
}

// ============================================================================
// 辅助函数
// ============================================================================

// KnownPeers 解析已知节点配置
func KnownPeers(known []config.KnownPeer) ([]types.Peer, error) {
	peers := make([]types.Peer, 0, len(known))
	for i, kp := range known {
		key, err := base58.Decode(kp.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("known peer %d: decode public key: %w", i, err)
		}
		if len(key) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("known peer %d: invalid public key length %d", i, len(key))
		}
		addr, err := netip.ParseAddrPort(kp.Addr)
		if err != nil {
			return nil, fmt.Errorf("known peer %d: parse address: %w", i, err)
		}
		peers = append(peers, types.NewPeer(ed25519.PublicKey(key), addr.Addr().Unmap(), map[string]types.ServiceEndpoint{
			types.ServicePeering: {Network: "udp", Port: addr.Port()},
		}))
	}
	return peers, nil
}

// splitBindAddr 拆分监听地址为 IP 与端口
func splitBindAddr(bindAddr string) (netip.Addr, uint16, error) {
	host, portStr, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return netip.Addr{}, 0, fmt.Errorf("invalid bind address %q: %w", bindAddr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return netip.Addr{}, 0, fmt.Errorf("invalid bind port %q: %w", portStr, err)
	}
	ip := netip.IPv4Unspecified()
	if host != "" {
		if ip, err = netip.ParseAddr(host); err != nil {
			return netip.Addr{}, 0, fmt.Errorf("invalid bind host %q: %w", host, err)
		}
	}
	return ip, uint16(port), nil
}
