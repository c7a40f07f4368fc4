package autopeering

import (
	"github.com/dep2p/go-autopeering/internal/core/autopeering/event"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/peering"
	"github.com/dep2p/go-autopeering/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              事件
// ════════════════════════════════════════════════════════════════════════════

// Event 自动对等事件
type Event = event.Event

// EventKind 事件类型
type EventKind = event.Kind

// Subscription 事件订阅
type Subscription = event.Subscription

// 事件类型
const (
	IncomingPeering = event.IncomingPeering
	OutgoingPeering = event.OutgoingPeering
	PeeringDropped  = event.PeeringDropped
	SaltUpdated     = event.SaltUpdated
)

// ════════════════════════════════════════════════════════════════════════════
//                              邻居校验
// ════════════════════════════════════════════════════════════════════════════

// NeighborValidator 判断节点是否可成为邻居
type NeighborValidator = peering.NeighborValidator

// ValidatorFunc 函数形式的 NeighborValidator
type ValidatorFunc = peering.ValidatorFunc

// Peer 远端节点
type Peer = types.Peer

// PeerID 节点标识
type PeerID = types.PeerID
