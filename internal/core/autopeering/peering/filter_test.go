package peering

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-autopeering/pkg/types"
)

func peerWithIP(id byte, ip string, withService bool) types.Peer {
	p := types.Peer{
		ID:       types.PeerID{id},
		IP:       netip.MustParseAddr(ip),
		Services: map[string]types.ServiceEndpoint{},
	}
	if withService {
		p.Services[types.ServicePeering] = types.ServiceEndpoint{Network: "udp", Port: 14626}
	}
	return p
}

// TestFilter 测试排除集合与资格判定
func TestFilter(t *testing.T) {
	deny := types.PeerID{9}
	f := NewFilter(ValidatorFunc(func(p types.Peer) bool { return p.ID != deny }))

	ok := peerWithIP(1, "10.0.0.1", true)
	assert.True(t, f.IsValidNeighbor(ok))
	assert.False(t, f.IsValidNeighbor(types.Peer{ID: deny}))

	f.Add(ok.ID)
	assert.False(t, f.IsValidNeighbor(ok))
	assert.True(t, f.Contains(ok.ID))
	assert.Equal(t, 1, f.Len())

	f.Clear()
	assert.True(t, f.IsValidNeighbor(ok))
	assert.Equal(t, 0, f.Len())
}

// TestFilter_NilValidator 测试无资格判定时全部允许
func TestFilter_NilValidator(t *testing.T) {
	f := NewFilter(nil)
	assert.True(t, f.IsValidNeighbor(types.Peer{ID: types.PeerID{1}}))
}

// TestAddrValidator 测试地址资格判定
func TestAddrValidator(t *testing.T) {
	localID := types.PeerID{42}

	v, err := NewAddrValidator(localID, nil, []string{"192.168.0.0/16"})
	require.NoError(t, err)

	assert.True(t, v.IsEligible(peerWithIP(1, "10.0.0.1", true)))
	assert.False(t, v.IsEligible(peerWithIP(2, "192.168.1.1", true)), "阻止列表")
	assert.False(t, v.IsEligible(peerWithIP(3, "10.0.0.1", false)), "缺少 peering 服务")
	assert.False(t, v.IsEligible(peerWithIP(42, "10.0.0.1", true)), "本地节点")
	assert.False(t, v.AllowIP(netip.Addr{}), "无效地址")

	require.NoError(t, v.AllowCIDR("10.0.0.0/8"))
	assert.True(t, v.AllowIP(netip.MustParseAddr("10.1.2.3")))
	assert.True(t, v.AllowIP(netip.MustParseAddr("::ffff:10.1.2.3")), "IPv4 映射地址")
	assert.False(t, v.AllowIP(netip.MustParseAddr("172.16.0.1")), "不在允许列表")

	v.Reset()
	assert.True(t, v.AllowIP(netip.MustParseAddr("172.16.0.1")))

	_, err = NewAddrValidator(localID, []string{"not-a-cidr"}, nil)
	assert.Error(t, err)
}
