// Package request 实现对等请求的关联管理
//
// 每个 (节点, 消息类型) 最多保留一个待响应请求，新的请求覆盖旧的。
// 响应通过回显的请求哈希与待响应请求关联；等待方在超时后移除自己的条目，
// 迟到的响应不再被匹配。
package request

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/local"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/message"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/packet"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("autopeering/request")

var (
	// ErrNoCorrespondingRequest 没有对应的待响应请求（未发送或已超时）
	ErrNoCorrespondingRequest = errors.New("request: no corresponding request or timeout")

	// ErrIncorrectHash 响应回显的哈希与待响应请求不符
	ErrIncorrectHash = errors.New("request: incorrect request hash")
)

// Key 待响应请求的键
type Key struct {
	PeerID  types.PeerID
	MsgType packet.MessageType
}

// Pending 待响应请求
type Pending struct {
	// Peer 请求目标
	Peer types.Peer

	// Hash 请求消息哈希
	Hash packet.Hash

	// IssuedAt 发出时间
	IssuedAt time.Time

	// ResponseCh 等待方的响应通道，可为 nil
	ResponseCh chan<- []byte
}

// NewResponseChan 创建响应通道
//
// 缓冲为 1，转发响应时不会阻塞协议循环。
func NewResponseChan() chan []byte {
	return make(chan []byte, 1)
}

// Manager 请求管理器
type Manager struct {
	clk      clock.Clock
	validity time.Duration

	mu      sync.RWMutex
	pending map[Key]Pending
}

// NewManager 创建请求管理器
func NewManager(clk clock.Clock, validity time.Duration) *Manager {
	return &Manager{
		clk:      clk,
		validity: validity,
		pending:  make(map[Key]Pending),
	}
}

// CreatePeeringRequest 创建对等请求并登记为待响应
//
// 请求携带本地当前公开 Salt。同一节点已有待响应请求时覆盖旧条目，
// 旧请求的等待方将以超时结束。
func (m *Manager) CreatePeeringRequest(p types.Peer, respCh chan<- []byte, l *local.Local) (message.PeeringRequest, []byte) {
	now := m.clk.Now()
	req := message.PeeringRequest{
		Timestamp: now.Unix(),
		Salt:      l.PublicSalt(),
	}
	raw := req.Marshal()

	key := Key{PeerID: p.ID, MsgType: packet.PeeringRequest}
	entry := Pending{
		Peer:       p,
		Hash:       packet.MessageHash(packet.PeeringRequest, raw),
		IssuedAt:   now,
		ResponseCh: respCh,
	}

	m.mu.Lock()
	if _, exists := m.pending[key]; exists {
		logger.Warn("覆盖未完成的对等请求", "peer", p.ID.ShortString())
	}
	m.pending[key] = entry
	m.mu.Unlock()

	return req, raw
}

// RemoveRequest 关联并弹出待响应请求
//
// 响应到达与等待方超时都经由这里移除条目。
// 条目不存在返回 ErrNoCorrespondingRequest；哈希不符返回 ErrIncorrectHash，
// 条目保留，等待方仍按超时结束。
func (m *Manager) RemoveRequest(key Key, hash packet.Hash) (Pending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.pending[key]
	if !ok {
		return Pending{}, ErrNoCorrespondingRequest
	}
	if entry.Hash != hash {
		return Pending{}, ErrIncorrectHash
	}
	delete(m.pending, key)
	return entry, nil
}

// RemoveIfMatch 仅当条目仍是指定哈希的请求时移除
//
// 等待方超时后调用；若期间已被新请求覆盖，新条目保留。
func (m *Manager) RemoveIfMatch(key Key, hash packet.Hash) bool {
	_, err := m.RemoveRequest(key, hash)
	return err == nil
}

// Sweep 清理超过有效期的请求，返回清理数量
//
// 有等待方的请求通常已由等待方在响应超时后移除。
func (m *Manager) Sweep() int {
	now := m.clk.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.pending {
		if now.Sub(entry.IssuedAt) >= m.validity {
			delete(m.pending, key)
			removed++
		}
	}
	if removed > 0 {
		logger.Debug("清理过期请求", "count", removed)
	}
	return removed
}

// Len 返回待响应请求数量
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}

// IsExpired 检查请求时间戳是否过期
//
// 距今达到 validity，或超前当前时间超过 validity，均视为过期。
func (m *Manager) IsExpired(ts int64) bool {
	return IsExpired(m.clk.Now(), ts, m.validity)
}

// IsExpired 检查时间戳（unix 秒）相对 now 是否过期
//
// 以整秒比较，任意 int64 时间戳都不会溢出。
func IsExpired(now time.Time, ts int64, validity time.Duration) bool {
	n := now.Unix()
	v := int64(validity / time.Second)
	return ts <= n-v || ts > n+v
}
