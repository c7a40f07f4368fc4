package types

import (
	"crypto/ed25519"
	"fmt"
	"net"
	"net/netip"
)

// ServicePeering autopeering 服务名称
const ServicePeering = "peering"

// ServiceGossip gossip 服务名称
const ServiceGossip = "gossip"

// ============================================================================
//                              Peer - 节点记录
// ============================================================================

// ServiceEndpoint 服务端点
type ServiceEndpoint struct {
	// Network 传输协议（"udp" 或 "tcp"）
	Network string `json:"network"`

	// Port 服务端口
	Port uint16 `json:"port"`
}

// Peer 不可变的节点身份与地址记录
//
// 由 Peer Registry 持有，其他组件只读取。
type Peer struct {
	// ID 节点标识
	ID PeerID

	// PublicKey 节点公钥
	PublicKey ed25519.PublicKey

	// IP 节点 IP 地址
	IP netip.Addr

	// Services 服务名称 -> 端点
	Services map[string]ServiceEndpoint
}

// NewPeer 创建节点记录，ID 由公钥派生
func NewPeer(pub ed25519.PublicKey, ip netip.Addr, services map[string]ServiceEndpoint) Peer {
	svc := make(map[string]ServiceEndpoint, len(services))
	for name, ep := range services {
		svc[name] = ep
	}
	return Peer{
		ID:        PeerIDFromPublicKey(pub),
		PublicKey: pub,
		IP:        ip,
		Services:  svc,
	}
}

// HasService 检查是否提供指定服务
func (p Peer) HasService(name string) bool {
	_, ok := p.Services[name]
	return ok
}

// ServiceAddr 返回指定服务的网络地址
func (p Peer) ServiceAddr(name string) (netip.AddrPort, error) {
	ep, ok := p.Services[name]
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return netip.AddrPortFrom(p.IP, ep.Port), nil
}

// UDPAddr 返回 peering 服务的 UDP 地址
func (p Peer) UDPAddr() (*net.UDPAddr, error) {
	ap, err := p.ServiceAddr(ServicePeering)
	if err != nil {
		return nil, err
	}
	return net.UDPAddrFromAddrPort(ap), nil
}

// String 返回节点的简短描述
func (p Peer) String() string {
	return fmt.Sprintf("%s@%s", p.ID.ShortString(), p.IP)
}
