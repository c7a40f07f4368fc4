// Package peering 实现自动对等协议引擎
//
// Manager 从 Socket 读取数据包，校验后驱动入站/出站邻居集合的状态变化，
// 回复对方并发布事件。所有入站数据包由单一循环顺序处理；
// Salt 轮换、出站选择与请求清理作为独立的周期任务运行。
//
// 事件通道或出站数据包通道无法投递时返回包装 ErrFatal 的错误，
// 由上层监督者终止整个引擎。
package peering

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/event"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/local"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/message"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/packet"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/peer"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/request"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/server"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("autopeering/peering")

// Registry 活跃节点列表的只读视图
type Registry interface {
	Find(id types.PeerID) (peer.ActivePeer, bool)
	IsVerified(id types.PeerID) bool
	VerifiedPeers() []types.Peer
}

// Option 引擎选项
type Option func(*Manager)

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) {
		m.clk = clk
	}
}

// WithValidator 设置邻居资格判定
func WithValidator(v NeighborValidator) Option {
	return func(m *Manager) {
		m.validator = v
	}
}

// WithMetrics 设置指标
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// Manager 自动对等协议引擎
type Manager struct {
	cfg       Config
	clk       clock.Clock
	local     *local.Local
	registry  Registry
	validator NeighborValidator
	metrics   *Metrics

	socket server.Socket
	events *event.Channel

	requests *request.Manager
	inbound  *Neighborhood
	outbound *Neighborhood
	filter   *Filter
}

// NewManager 创建协议引擎
func NewManager(cfg Config, l *local.Local, registry Registry, socket server.Socket, events *event.Channel, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		clk:      clock.New(),
		local:    l,
		registry: registry,
		socket:   socket,
		events:   events,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.requests = request.NewManager(m.clk, cfg.RequestValidity)
	m.inbound = NewNeighborhood(Inbound, cfg.InboundCapacity)
	m.outbound = NewNeighborhood(Outbound, cfg.OutboundCapacity)
	m.filter = NewFilter(m.validator)
	return m
}

// Local 返回本地身份
func (m *Manager) Local() *local.Local {
	return m.local
}

// Inbound 返回入站邻居集合
func (m *Manager) Inbound() *Neighborhood {
	return m.inbound
}

// Outbound 返回出站邻居集合
func (m *Manager) Outbound() *Neighborhood {
	return m.outbound
}

// IsNeighbor 检查节点是否为任一方向的邻居
func (m *Manager) IsNeighbor(id types.PeerID) bool {
	return m.inbound.Contains(id) || m.outbound.Contains(id)
}

// ============================================================================
//                              主循环
// ============================================================================

// Run 处理入站数据包，直到 ctx 取消或发生致命错误
func (m *Manager) Run(ctx context.Context) error {
	logger.Info("自动对等引擎已启动",
		"local", m.local.PeerID().ShortString(),
		"inbound", m.cfg.InboundCapacity,
		"outbound", m.cfg.OutboundCapacity)

	for {
		// 优先响应关闭
		select {
		case <-ctx.Done():
			logger.Info("自动对等引擎已停止")
			return nil
		default:
		}

		select {
		case <-ctx.Done():
			logger.Info("自动对等引擎已停止")
			return nil
		case pkt, ok := <-m.socket.Rx:
			if !ok {
				// 服务端退出时关闭通道
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: packet channel closed", ErrFatal)
			}
			if err := m.HandlePacket(pkt); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("自动对等引擎异常退出", "err", err)
				return err
			}
		}
	}
}

// HandlePacket 处理一个入站数据包
//
// 仅在致命错误时返回 error；校验与解码失败只记录 Debug 日志。
func (m *Manager) HandlePacket(pkt packet.IncomingPacket) error {
	defer m.metrics.setNeighbors(m.inbound.Len(), m.outbound.Len())

	switch pkt.MsgType {
	case packet.PeeringRequest:
		req, err := message.UnmarshalPeeringRequest(pkt.MsgBytes)
		if err != nil {
			m.rejectMessage(pkt, outcomeDecodeError, err)
			return nil
		}
		from, err := m.validatePeeringRequest(pkt, req)
		if err != nil {
			m.rejectMessage(pkt, outcomeInvalid, err)
			return nil
		}
		return m.handlePeeringRequest(pkt, from)

	case packet.PeeringResponse:
		res, err := message.UnmarshalPeeringResponse(pkt.MsgBytes)
		if err != nil {
			m.rejectMessage(pkt, outcomeDecodeError, err)
			return nil
		}
		pending, err := m.validatePeeringResponse(pkt, res)
		if err != nil {
			m.rejectMessage(pkt, outcomeInvalid, err)
			return nil
		}
		return m.handlePeeringResponse(pkt, pending, res)

	case packet.DropRequest:
		req, err := message.UnmarshalDropPeeringRequest(pkt.MsgBytes)
		if err != nil {
			m.rejectMessage(pkt, outcomeDecodeError, err)
			return nil
		}
		if err := m.validateDropRequest(req); err != nil {
			m.rejectMessage(pkt, outcomeInvalid, err)
			return nil
		}
		return m.handleDropRequest(pkt)

	default:
		m.metrics.observeMessage(pkt.MsgType, outcomeUnknown)
		logger.Debug("忽略未知消息类型", "type", pkt.MsgType.String(), "from", pkt.PeerAddr)
		return nil
	}
}

func (m *Manager) rejectMessage(pkt packet.IncomingPacket, outcome string, err error) {
	m.metrics.observeMessage(pkt.MsgType, outcome)
	logger.Debug("丢弃无效消息",
		"type", pkt.MsgType.String(),
		"peer", pkt.PeerID.ShortString(),
		"addr", pkt.PeerAddr,
		"err", err)
}

// ============================================================================
//                              消息校验
// ============================================================================

// validatePeeringRequest 请求未过期、发送方已验证、Salt 未过期
func (m *Manager) validatePeeringRequest(pkt packet.IncomingPacket, req message.PeeringRequest) (types.Peer, error) {
	if m.requests.IsExpired(req.Timestamp) {
		return types.Peer{}, ErrRequestExpired
	}
	entry, ok := m.registry.Find(pkt.PeerID)
	if !ok || !entry.Verified {
		return types.Peer{}, ErrPeerNotVerified
	}
	if req.Salt.IsExpired(m.clk) {
		return types.Peer{}, ErrSaltExpired
	}
	return entry.Peer, nil
}

// validatePeeringResponse 存在对应的待响应请求且哈希一致，校验通过即消费该请求
func (m *Manager) validatePeeringResponse(pkt packet.IncomingPacket, res message.PeeringResponse) (request.Pending, error) {
	key := request.Key{PeerID: pkt.PeerID, MsgType: packet.PeeringRequest}
	return m.requests.RemoveRequest(key, res.RequestHash)
}

// validateDropRequest 请求未过期
func (m *Manager) validateDropRequest(req message.DropPeeringRequest) error {
	if m.requests.IsExpired(req.Timestamp) {
		return ErrRequestExpired
	}
	return nil
}

// ============================================================================
//                              消息处理
// ============================================================================

// handlePeeringRequest 处理已校验的对等请求，总是回复
func (m *Manager) handlePeeringRequest(pkt packet.IncomingPacket, from types.Peer) error {
	status, err := m.acceptPeeringRequest(from)
	if err != nil {
		return err
	}

	if status {
		m.metrics.observeMessage(pkt.MsgType, outcomeAccepted)
	} else {
		m.metrics.observeMessage(pkt.MsgType, outcomeRejected)
	}

	res := message.PeeringResponse{
		RequestHash: packet.MessageHash(packet.PeeringRequest, pkt.MsgBytes),
		Status:      status,
	}
	return m.send(pkt.PeerAddr, packet.PeeringResponse, res.Marshal())
}

// acceptPeeringRequest 决定是否接受入站请求
func (m *Manager) acceptPeeringRequest(from types.Peer) (bool, error) {
	// 已是邻居：幂等接受
	if m.IsNeighbor(from.ID) {
		return true, nil
	}

	if !m.filter.IsValidNeighbor(from) {
		logger.Debug("拒绝对等请求：不符合邻居条件", "peer", from.ID.ShortString())
		return false, nil
	}

	candidate := Neighbor{
		Peer:     from,
		Distance: Distance(m.local.PeerID(), from.ID, m.local.PrivateSalt().Bytes()),
	}
	if !m.inbound.IsPreferred(candidate) {
		logger.Debug("拒绝对等请求：距离不占优", "peer", from.ID.ShortString(), "distance", candidate.Distance)
		return false, nil
	}

	removed, evicted, ok := m.inbound.Admit(candidate)
	if !ok {
		return false, nil
	}
	if evicted {
		if err := m.dropNeighbor(removed.Peer); err != nil {
			return false, err
		}
	}

	m.filter.Add(from.ID)
	if err := m.publish(event.NewIncomingPeering(from, candidate.Distance)); err != nil {
		return false, err
	}

	logger.Debug("入站邻居已建立", "peer", from.ID.ShortString(), "distance", candidate.Distance)
	return true, nil
}

// handlePeeringResponse 处理已关联的对等响应
func (m *Manager) handlePeeringResponse(pkt packet.IncomingPacket, pending request.Pending, res message.PeeringResponse) error {
	to := pending.Peer

	if res.Status {
		if err := m.admitOutbound(to); err != nil {
			return err
		}
		m.metrics.observeMessage(pkt.MsgType, outcomeAccepted)
	} else {
		m.metrics.observeMessage(pkt.MsgType, outcomeRejected)
	}

	if pending.ResponseCh != nil {
		select {
		case pending.ResponseCh <- pkt.MsgBytes:
		default:
			logger.Debug("响应等待方已离开", "peer", to.ID.ShortString())
		}
	}
	return nil
}

// admitOutbound 对方接受后加入出站集合
//
// 对方已是入站邻居时，覆盖为拒绝：移除入站关系并通知对方断开。
func (m *Manager) admitOutbound(to types.Peer) error {
	distance := Distance(m.local.PeerID(), to.ID, m.local.PublicSalt().Bytes())

	if m.inbound.Contains(to.ID) {
		m.inbound.RemoveNeighbor(to.ID)
		if err := m.publish(event.NewOutgoingPeering(to, distance, false)); err != nil {
			return err
		}
		logger.Debug("出站对等被覆盖：对方已是入站邻居", "peer", to.ID.ShortString())
		return m.sendDrop(to)
	}

	removed, evicted, ok := m.outbound.Admit(Neighbor{Peer: to, Distance: distance})
	if !ok {
		logger.Debug("出站邻居接纳失败", "peer", to.ID.ShortString(), "distance", distance)
		return nil
	}
	if evicted {
		if err := m.dropNeighbor(removed.Peer); err != nil {
			return err
		}
	}

	m.filter.Add(to.ID)
	if err := m.publish(event.NewOutgoingPeering(to, distance, true)); err != nil {
		return err
	}

	logger.Debug("出站邻居已建立", "peer", to.ID.ShortString(), "distance", distance)
	return nil
}

// handleDropRequest 处理已校验的断开请求
func (m *Manager) handleDropRequest(pkt packet.IncomingPacket) error {
	id := pkt.PeerID

	_, removedIn := m.inbound.RemoveNeighbor(id)
	_, removedOut := m.outbound.RemoveNeighbor(id)
	if removedOut {
		m.filter.Add(id)
	}

	m.metrics.observeMessage(pkt.MsgType, outcomeHandled)
	if !removedIn && !removedOut {
		return nil
	}

	logger.Debug("邻居请求断开", "peer", id.ShortString())
	if err := m.sendDropTo(pkt.PeerAddr); err != nil {
		return err
	}
	return m.publish(event.NewPeeringDropped(id))
}

// ============================================================================
//                              发送
// ============================================================================

// dropNeighbor 通知被淘汰的邻居并发布断开事件
func (m *Manager) dropNeighbor(p types.Peer) error {
	if err := m.sendDrop(p); err != nil {
		return err
	}
	return m.publish(event.NewPeeringDropped(p.ID))
}

// sendDrop 向节点的 peering 服务地址发送断开请求
//
// 节点没有 peering 服务地址时只记录日志。
func (m *Manager) sendDrop(p types.Peer) error {
	addr, err := p.ServiceAddr(types.ServicePeering)
	if err != nil {
		logger.Debug("无法发送断开请求", "peer", p.ID.ShortString(), "err", err)
		return nil
	}
	return m.sendDropTo(addr)
}

func (m *Manager) sendDropTo(addr netip.AddrPort) error {
	req := message.DropPeeringRequest{Timestamp: m.clk.Now().Unix()}
	if err := m.send(addr, packet.DropRequest, req.Marshal()); err != nil {
		return err
	}
	m.metrics.incDrops()
	return nil
}

// send 投递出站数据包，失败为致命错误
func (m *Manager) send(addr netip.AddrPort, t packet.MessageType, b []byte) error {
	err := m.socket.Tx.Send(packet.OutgoingPacket{
		MsgType:  t,
		MsgBytes: b,
		PeerAddr: addr,
	})
	if err != nil {
		return fmt.Errorf("%w: send %s to %s: %v", ErrFatal, t, addr, err)
	}
	return nil
}

// publish 发布事件，失败为致命错误
func (m *Manager) publish(ev event.Event) error {
	if err := m.events.Publish(ev); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrFatal, ev.Kind, err)
	}
	return nil
}

// IsFatal 检查错误是否为致命错误
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
