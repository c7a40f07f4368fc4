// Package event 定义自动对等事件及其发布通道
//
// 事件一次写入、发后即忘，由外部协作方消费（选择驱动、指标、gossip 层）。
package event

import (
	"fmt"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// Kind 事件类型
type Kind int

const (
	// IncomingPeering 入站邻居建立
	IncomingPeering Kind = iota + 1

	// OutgoingPeering 出站对等结果
	OutgoingPeering

	// PeeringDropped 邻居关系解除
	PeeringDropped

	// SaltUpdated Salt 已轮换
	SaltUpdated
)

// String 返回事件类型名称
func (k Kind) String() string {
	switch k {
	case IncomingPeering:
		return "incoming_peering"
	case OutgoingPeering:
		return "outgoing_peering"
	case PeeringDropped:
		return "peering_dropped"
	case SaltUpdated:
		return "salt_updated"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event 自动对等事件
//
// 各字段按 Kind 使用：
//   - IncomingPeering / OutgoingPeering: Peer, Distance, Status
//   - PeeringDropped: PeerID
//   - SaltUpdated: PublicSaltExpiration, PrivateSaltExpiration
type Event struct {
	Kind Kind

	// Peer 对等节点
	Peer types.Peer

	// PeerID 被断开的节点
	PeerID types.PeerID

	// Distance 接纳时的 Salt 距离
	Distance uint32

	// Status 对等是否成立（出站响应被覆盖为拒绝时为 false）
	Status bool

	// PublicSaltExpiration 新公开 Salt 过期时间（unix 秒）
	PublicSaltExpiration int64

	// PrivateSaltExpiration 新私有 Salt 过期时间（unix 秒）
	PrivateSaltExpiration int64
}

// NewIncomingPeering 创建入站对等事件
func NewIncomingPeering(p types.Peer, distance uint32) Event {
	return Event{Kind: IncomingPeering, Peer: p, PeerID: p.ID, Distance: distance, Status: true}
}

// NewOutgoingPeering 创建出站对等事件
func NewOutgoingPeering(p types.Peer, distance uint32, status bool) Event {
	return Event{Kind: OutgoingPeering, Peer: p, PeerID: p.ID, Distance: distance, Status: status}
}

// NewPeeringDropped 创建断开事件
func NewPeeringDropped(id types.PeerID) Event {
	return Event{Kind: PeeringDropped, PeerID: id}
}

// NewSaltUpdated 创建 Salt 轮换事件
func NewSaltUpdated(publicExpiration, privateExpiration int64) Event {
	return Event{
		Kind:                  SaltUpdated,
		PublicSaltExpiration:  publicExpiration,
		PrivateSaltExpiration: privateExpiration,
	}
}
