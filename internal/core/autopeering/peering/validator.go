package peering

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// AddrValidator 默认的邻居资格判定
//
// 拒绝本地节点、不提供 peering 服务的节点，以及地址被阻止或不在允许列表中的节点。
type AddrValidator struct {
	localID types.PeerID

	mu      sync.RWMutex
	allowed []netip.Prefix
	blocked []netip.Prefix
}

// NewAddrValidator 创建地址资格判定
func NewAddrValidator(localID types.PeerID, allowed, blocked []string) (*AddrValidator, error) {
	v := &AddrValidator{localID: localID}
	for _, cidr := range allowed {
		if err := v.AllowCIDR(cidr); err != nil {
			return nil, err
		}
	}
	for _, cidr := range blocked {
		if err := v.BlockCIDR(cidr); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// AllowCIDR 加入允许列表
func (v *AddrValidator) AllowCIDR(cidr string) error {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("parse allowed CIDR %q: %w", cidr, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowed = append(v.allowed, prefix.Masked())
	return nil
}

// BlockCIDR 加入阻止列表
func (v *AddrValidator) BlockCIDR(cidr string) error {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("parse blocked CIDR %q: %w", cidr, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.blocked = append(v.blocked, prefix.Masked())
	return nil
}

// IsEligible 实现 NeighborValidator
func (v *AddrValidator) IsEligible(p types.Peer) bool {
	if p.ID == v.localID || !p.HasService(types.ServicePeering) {
		return false
	}
	return v.AllowIP(p.IP)
}

// AllowIP 检查 IP 是否允许
func (v *AddrValidator) AllowIP(ip netip.Addr) bool {
	if !ip.IsValid() {
		return false
	}
	ip = ip.Unmap()

	v.mu.RLock()
	defer v.mu.RUnlock()

	// 阻止列表优先
	for _, prefix := range v.blocked {
		if prefix.Contains(ip) {
			return false
		}
	}

	if len(v.allowed) == 0 {
		return true
	}
	for _, prefix := range v.allowed {
		if prefix.Contains(ip) {
			return true
		}
	}
	return false
}

// Reset 清空允许与阻止列表
func (v *AddrValidator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowed = nil
	v.blocked = nil
}
