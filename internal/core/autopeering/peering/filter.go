package peering

import (
	"sync"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// NeighborValidator 邻居资格判定
//
// 由宿主提供，决定一个节点是否可以成为邻居。
type NeighborValidator interface {
	IsEligible(p types.Peer) bool
}

// ValidatorFunc 函数形式的 NeighborValidator
type ValidatorFunc func(p types.Peer) bool

// IsEligible 实现 NeighborValidator
func (f ValidatorFunc) IsEligible(p types.Peer) bool {
	return f(p)
}

// Filter 邻居过滤器：排除集合 + 资格判定
//
// 排除集合在邻居建立或出站断开时增长，仅在丢弃式 Salt 轮换时清空。
type Filter struct {
	validator NeighborValidator

	mu       sync.RWMutex
	excluded map[types.PeerID]struct{}
}

// NewFilter 创建过滤器，validator 为 nil 时所有节点均有资格
func NewFilter(validator NeighborValidator) *Filter {
	return &Filter{
		validator: validator,
		excluded:  make(map[types.PeerID]struct{}),
	}
}

// IsValidNeighbor 节点有资格且不在排除集合中
func (f *Filter) IsValidNeighbor(p types.Peer) bool {
	if f.validator != nil && !f.validator.IsEligible(p) {
		return false
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	_, excluded := f.excluded[p.ID]
	return !excluded
}

// Add 加入排除集合
func (f *Filter) Add(ids ...types.PeerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.excluded[id] = struct{}{}
	}
}

// Contains 检查是否已排除
func (f *Filter) Contains(id types.PeerID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.excluded[id]
	return ok
}

// Len 返回排除集合大小
func (f *Filter) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.excluded)
}

// Clear 清空排除集合
func (f *Filter) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.excluded = make(map[types.PeerID]struct{})
}
