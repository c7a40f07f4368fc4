// Package local 实现本地节点身份
//
// Local 持有本地节点的 ed25519 密钥、PeerID 以及当前的私有/公开 Salt。
// 私有 Salt 决定入站接受距离，公开 Salt 决定出站请求距离。
// Salt 由轮换任务整体替换，其他组件读取一致的快照。
package local

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/salt"
	"github.com/dep2p/go-autopeering/pkg/types"
)

// Local 本地节点身份
type Local struct {
	peer types.Peer

	// 两个 Salt 同时轮换，读方总是看到同一轮的一对
	saltMu      sync.RWMutex
	privateSalt salt.Salt
	publicSalt  salt.Salt
}

// New 生成新的密钥对并创建本地身份
func New(clk clock.Clock, saltLifetime time.Duration, ip netip.Addr, services map[string]types.ServiceEndpoint) (*Local, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("local: generate key: %w", err)
	}
	return FromPrivateKey(clk, priv, saltLifetime, ip, services)
}

// FromPrivateKey 使用已有私钥创建本地身份
func FromPrivateKey(clk clock.Clock, priv ed25519.PrivateKey, saltLifetime time.Duration, ip netip.Addr, services map[string]types.ServiceEndpoint) (*Local, error) {
	privateSalt, err := salt.New(clk, saltLifetime)
	if err != nil {
		return nil, err
	}
	publicSalt, err := salt.New(clk, saltLifetime)
	if err != nil {
		return nil, err
	}

	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("local: unexpected public key type %T", priv.Public())
	}

	return &Local{
		peer:        types.NewPeer(pub, ip, services),
		privateSalt: privateSalt,
		publicSalt:  publicSalt,
	}, nil
}

// PeerID 返回本地节点 ID
func (l *Local) PeerID() types.PeerID {
	return l.peer.ID
}

// Peer 返回本地节点记录
func (l *Local) Peer() types.Peer {
	return l.peer
}

// PublicKey 返回本地公钥
func (l *Local) PublicKey() ed25519.PublicKey {
	return l.peer.PublicKey
}

// PrivateSalt 返回当前私有 Salt 快照
func (l *Local) PrivateSalt() salt.Salt {
	l.saltMu.RLock()
	defer l.saltMu.RUnlock()
	return l.privateSalt
}

// PublicSalt 返回当前公开 Salt 快照
func (l *Local) PublicSalt() salt.Salt {
	l.saltMu.RLock()
	defer l.saltMu.RUnlock()
	return l.publicSalt
}

// SetSalts 同时替换私有与公开 Salt
func (l *Local) SetSalts(private, public salt.Salt) {
	l.saltMu.Lock()
	l.privateSalt = private
	l.publicSalt = public
	l.saltMu.Unlock()
}
