package peering

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// ============================================================================
//                              Direction
// ============================================================================

// Direction 邻居方向
type Direction int

const (
	// Inbound 入站邻居（由对方发起）
	Inbound Direction = iota + 1

	// Outbound 出站邻居（由本地发起）
	Outbound
)

// String 返回方向名称
func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// Neighbor 邻居：节点 + 距离
type Neighbor struct {
	Peer     types.Peer
	Distance uint32
}

// ============================================================================
//                              Neighborhood
// ============================================================================

// Neighborhood 固定容量、按距离升序排列的邻居集合
//
// 距离相同的邻居保持插入顺序，淘汰时移除最后一个（距离最大、最晚插入）。
type Neighborhood struct {
	direction Direction
	capacity  int

	mu        sync.RWMutex
	neighbors []Neighbor
}

// NewNeighborhood 创建邻居集合
func NewNeighborhood(direction Direction, capacity int) *Neighborhood {
	return &Neighborhood{
		direction: direction,
		capacity:  capacity,
		neighbors: make([]Neighbor, 0, capacity),
	}
}

// Direction 返回方向
func (nh *Neighborhood) Direction() Direction {
	return nh.direction
}

// Capacity 返回容量
func (nh *Neighborhood) Capacity() int {
	return nh.capacity
}

// IsPreferred 候选是否优于当前集合
//
// 未满时总是优先；已满时距离必须严格小于当前最大距离。
func (nh *Neighborhood) IsPreferred(candidate Neighbor) bool {
	nh.mu.RLock()
	defer nh.mu.RUnlock()
	return nh.isPreferred(candidate)
}

func (nh *Neighborhood) isPreferred(candidate Neighbor) bool {
	if len(nh.neighbors) < nh.capacity {
		return true
	}
	if len(nh.neighbors) == 0 {
		return false
	}
	return candidate.Distance < nh.neighbors[len(nh.neighbors)-1].Distance
}

// Admit 在一次加锁内完成“满则淘汰最远者 + 插入”
//
// 候选已存在或不再优先时返回 ok=false，集合不变。
// 发生淘汰时返回被淘汰的邻居与 evicted=true。
func (nh *Neighborhood) Admit(candidate Neighbor) (removed Neighbor, evicted bool, ok bool) {
	nh.mu.Lock()
	defer nh.mu.Unlock()

	if nh.indexOf(candidate.Peer.ID) >= 0 || !nh.isPreferred(candidate) {
		return Neighbor{}, false, false
	}

	if len(nh.neighbors) >= nh.capacity {
		removed = nh.neighbors[len(nh.neighbors)-1]
		nh.neighbors = nh.neighbors[:len(nh.neighbors)-1]
		evicted = true
	}
	nh.insert(candidate)
	return removed, evicted, true
}

// InsertNeighbor 插入邻居，集合已满或已包含时返回 false
func (nh *Neighborhood) InsertNeighbor(n Neighbor) bool {
	nh.mu.Lock()
	defer nh.mu.Unlock()

	if len(nh.neighbors) >= nh.capacity || nh.indexOf(n.Peer.ID) >= 0 {
		return false
	}
	nh.insert(n)
	return true
}

// insert 按距离有序插入，相同距离排在已有成员之后
func (nh *Neighborhood) insert(n Neighbor) {
	i := sort.Search(len(nh.neighbors), func(i int) bool {
		return nh.neighbors[i].Distance > n.Distance
	})
	nh.neighbors = append(nh.neighbors, Neighbor{})
	copy(nh.neighbors[i+1:], nh.neighbors[i:])
	nh.neighbors[i] = n
}

// RemoveFurthestIfFull 集合已满时移除距离最大的邻居
func (nh *Neighborhood) RemoveFurthestIfFull() (Neighbor, bool) {
	nh.mu.Lock()
	defer nh.mu.Unlock()

	if len(nh.neighbors) == 0 || len(nh.neighbors) < nh.capacity {
		return Neighbor{}, false
	}
	last := nh.neighbors[len(nh.neighbors)-1]
	nh.neighbors = nh.neighbors[:len(nh.neighbors)-1]
	return last, true
}

// RemoveNeighbor 移除邻居
func (nh *Neighborhood) RemoveNeighbor(id types.PeerID) (Neighbor, bool) {
	nh.mu.Lock()
	defer nh.mu.Unlock()

	i := nh.indexOf(id)
	if i < 0 {
		return Neighbor{}, false
	}
	n := nh.neighbors[i]
	nh.neighbors = append(nh.neighbors[:i], nh.neighbors[i+1:]...)
	return n, true
}

// Contains 检查是否为邻居
func (nh *Neighborhood) Contains(id types.PeerID) bool {
	nh.mu.RLock()
	defer nh.mu.RUnlock()
	return nh.indexOf(id) >= 0
}

func (nh *Neighborhood) indexOf(id types.PeerID) int {
	for i, n := range nh.neighbors {
		if n.Peer.ID == id {
			return i
		}
	}
	return -1
}

// Len 返回邻居数量
func (nh *Neighborhood) Len() int {
	nh.mu.RLock()
	defer nh.mu.RUnlock()
	return len(nh.neighbors)
}

// Clear 清空集合，返回被移除的邻居
func (nh *Neighborhood) Clear() []Neighbor {
	nh.mu.Lock()
	defer nh.mu.Unlock()

	removed := nh.neighbors
	nh.neighbors = make([]Neighbor, 0, nh.capacity)
	return removed
}

// Peers 返回邻居节点快照（按距离升序）
func (nh *Neighborhood) Peers() []types.Peer {
	nh.mu.RLock()
	defer nh.mu.RUnlock()

	out := make([]types.Peer, len(nh.neighbors))
	for i, n := range nh.neighbors {
		out[i] = n.Peer
	}
	return out
}

// Neighbors 返回邻居快照（按距离升序）
func (nh *Neighborhood) Neighbors() []Neighbor {
	nh.mu.RLock()
	defer nh.mu.RUnlock()
	return append([]Neighbor(nil), nh.neighbors...)
}

// UpdateDistances 使用新 Salt 重新计算距离并重新排序，不淘汰
func (nh *Neighborhood) UpdateDistances(localID types.PeerID, salt []byte) {
	nh.mu.Lock()
	defer nh.mu.Unlock()

	for i := range nh.neighbors {
		nh.neighbors[i].Distance = Distance(localID, nh.neighbors[i].Peer.ID, salt)
	}
	sort.SliceStable(nh.neighbors, func(i, j int) bool {
		return nh.neighbors[i].Distance < nh.neighbors[j].Distance
	})
}

// String 返回集合描述
func (nh *Neighborhood) String() string {
	return fmt.Sprintf("%s %d/%d", nh.direction, nh.Len(), nh.capacity)
}
