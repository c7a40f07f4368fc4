// Package peer 实现活跃节点列表（Peer Registry）
//
// 活跃节点列表由发现子系统维护：发现新节点时 Upsert，完成验证握手后 MarkVerified。
// 自动对等引擎只读取该列表。列表有容量上限，超出时淘汰最久未出现的节点。
package peer

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("autopeering/peer")

// ErrInvalidCapacity 无效的列表容量
var ErrInvalidCapacity = errors.New("peer: capacity must be positive")

// ActivePeer 活跃节点条目：节点记录 + 验证标记
type ActivePeer struct {
	Peer     types.Peer
	Verified bool
}

// ActivePeersList 活跃节点列表
//
// 按最近出现顺序排列的有界集合，线程安全。
// 读-改-写操作（Upsert、MarkVerified、Put）与 Remove 由 mu 串行化。
type ActivePeersList struct {
	mu    sync.Mutex
	cache *lru.Cache[types.PeerID, ActivePeer]
}

// NewActivePeersList 创建活跃节点列表
func NewActivePeersList(capacity int) (*ActivePeersList, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	cache, err := lru.NewWithEvict[types.PeerID, ActivePeer](capacity, func(id types.PeerID, _ ActivePeer) {
		logger.Debug("活跃节点被淘汰", "peer", id.ShortString())
	})
	if err != nil {
		return nil, fmt.Errorf("peer: create cache: %w", err)
	}
	return &ActivePeersList{cache: cache}, nil
}

// Upsert 插入或刷新节点，保留已有的验证标记
func (l *ActivePeersList) Upsert(p types.Peer) {
	l.Put(p, false)
}

// Put 插入或刷新节点，verified 为 true 时同时标记已验证
//
// verified 为 false 时保留已有的验证标记。
func (l *ActivePeersList) Put(p types.Peer, verified bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := ActivePeer{Peer: p, Verified: verified}
	if old, ok := l.cache.Peek(p.ID); ok && old.Verified {
		entry.Verified = true
	}
	l.cache.Add(p.ID, entry)
}

// MarkVerified 标记节点已验证
//
// 节点必须已在列表中，否则返回 false。
func (l *ActivePeersList) MarkVerified(id types.PeerID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.cache.Peek(id)
	if !ok {
		return false
	}
	entry.Verified = true
	l.cache.Add(id, entry)
	return true
}

// Find 查找节点
func (l *ActivePeersList) Find(id types.PeerID) (ActivePeer, bool) {
	return l.cache.Peek(id)
}

// IsVerified 检查节点是否已验证
func (l *ActivePeersList) IsVerified(id types.PeerID) bool {
	entry, ok := l.cache.Peek(id)
	return ok && entry.Verified
}

// Remove 移除节点
func (l *ActivePeersList) Remove(id types.PeerID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache.Remove(id)
}

// Len 返回节点数量
func (l *ActivePeersList) Len() int {
	return l.cache.Len()
}

// Peers 返回所有节点快照，最近出现的在前
func (l *ActivePeersList) Peers() []ActivePeer {
	entries := l.cache.Values()
	out := make([]ActivePeer, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	return out
}

// VerifiedPeers 返回所有已验证节点快照
func (l *ActivePeersList) VerifiedPeers() []types.Peer {
	var out []types.Peer
	for _, entry := range l.Peers() {
		if entry.Verified {
			out = append(out, entry.Peer)
		}
	}
	return out
}
