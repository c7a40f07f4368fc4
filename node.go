package autopeering

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-autopeering/config"
	apcore "github.com/dep2p/go-autopeering/internal/core/autopeering"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/peer"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/server"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("autopeering/node")

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 空闲状态（已创建，未启动）
	StateIdle NodeState = iota

	// StateRunning 运行中
	StateRunning

	// StateStopped 已停止（不可重新启动）
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// initializeTimeout 初始化超时（Fx App Start）
const initializeTimeout = 30 * time.Second

// Node 自动对等节点
//
// Node 是门面，聚合 UDP 服务端、协议引擎、周期任务与事件分发。
// 创建时即绑定监听地址，Start 之后开始收发对等消息。
type Node struct {
	config *config.Config
	app    *fx.App

	// 由 Fx 注入
	engine *apcore.Engine
	peers  *peer.ActivePeersList
	server *server.UDPServer

	mu    sync.Mutex
	state NodeState
}

// New 创建节点
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	node := &Node{config: o.toConfig()}
	app, err := buildFxApp(node.config, o, node)
	if err != nil {
		return nil, err
	}
	node.app = app

	ap := node.config.Autopeering
	logger.Info("节点已创建",
		"local", node.LocalID().ShortString(),
		"addr", node.ListenAddr().String(),
		"saltLifetime", ap.SaltLifetime.String(),
		"requestValidity", ap.RequestValidity.String(),
		"responseTimeout", ap.ResponseTimeout.String())
	return node, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期管理
// ════════════════════════════════════════════════════════════════════════════

// Start 启动节点
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrNodeClosed
	}

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	if err := n.app.Start(initCtx); err != nil {
		logger.Error("节点启动失败", "err", err)
		n.state = StateStopped
		return multierr.Append(fmt.Errorf("start failed: %w", err), n.server.Close())
	}
	n.state = StateRunning

	logger.Info("节点已启动", "local", n.LocalID().ShortString())
	return nil
}

// Stop 停止节点，返回导致节点提前停止的致命错误（若有）
//
// 未启动的节点直接释放监听套接字。Stop 可重复调用。
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateStopped:
		return nil
	case StateIdle:
		n.state = StateStopped
		return n.server.Close()
	}

	n.state = StateStopped
	err := n.app.Stop(ctx)
	if err != nil {
		logger.Warn("节点停止时出错", "err", err)
	} else {
		logger.Info("节点已停止")
	}
	return err
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Done 节点所有任务退出后关闭（含致命错误导致的提前退出）
func (n *Node) Done() <-chan struct{} {
	return n.engine.Done()
}

// Err 返回导致节点停止的错误
func (n *Node) Err() error {
	return n.engine.Err()
}

// ════════════════════════════════════════════════════════════════════════════
//                              身份与地址
// ════════════════════════════════════════════════════════════════════════════

// LocalID 返回本地节点 ID
func (n *Node) LocalID() types.PeerID {
	return n.engine.Manager().Local().PeerID()
}

// ListenAddr 返回实际监听地址
func (n *Node) ListenAddr() netip.AddrPort {
	return n.server.LocalAddr()
}

// LocalPeer 返回本地节点记录，peering 服务端口为实际监听端口
func (n *Node) LocalPeer() types.Peer {
	p := n.engine.Manager().Local().Peer()
	addr := n.ListenAddr()
	ip := p.IP
	if !ip.IsValid() || ip.IsUnspecified() {
		ip = addr.Addr()
	}
	services := make(map[string]types.ServiceEndpoint, len(p.Services))
	for name, ep := range p.Services {
		services[name] = ep
	}
	services[types.ServicePeering] = types.ServiceEndpoint{Network: "udp", Port: addr.Port()}
	return types.NewPeer(p.PublicKey, ip, services)
}

// ════════════════════════════════════════════════════════════════════════════
//                              节点与邻居
// ════════════════════════════════════════════════════════════════════════════

// AddPeer 将节点加入活跃节点列表，verified 表示身份已验证
//
// 只有已验证的节点会被选为出站候选或接受为入站邻居。
func (n *Node) AddPeer(p types.Peer, verified bool) {
	n.peers.Put(p, verified)
}

// RemovePeer 从活跃节点列表移除节点，不影响已建立的邻居关系
func (n *Node) RemovePeer(id types.PeerID) bool {
	return n.peers.Remove(id)
}

// ActivePeers 返回活跃节点列表中的全部节点
func (n *Node) ActivePeers() []types.Peer {
	entries := n.peers.Peers()
	peers := make([]types.Peer, 0, len(entries))
	for _, e := range entries {
		peers = append(peers, e.Peer)
	}
	return peers
}

// InboundNeighbors 返回当前入站邻居
func (n *Node) InboundNeighbors() []types.Peer {
	return n.engine.Manager().Inbound().Peers()
}

// OutboundNeighbors 返回当前出站邻居
func (n *Node) OutboundNeighbors() []types.Peer {
	return n.engine.Manager().Outbound().Peers()
}

// IsNeighbor 检查节点是否为入站或出站邻居
func (n *Node) IsNeighbor(id types.PeerID) bool {
	return n.engine.Manager().IsNeighbor(id)
}

// ════════════════════════════════════════════════════════════════════════════
//                              事件
// ════════════════════════════════════════════════════════════════════════════

// Events 订阅自动对等事件
//
// 订阅方消费过慢时事件被丢弃，不会阻塞协议引擎。使用完毕后调用 Close。
func (n *Node) Events(buffer int) *Subscription {
	return n.engine.Bus().Subscribe(buffer)
}
