package peer

import (
	"crypto/ed25519"
	"crypto/rand"
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-autopeering/pkg/types"
)

func newTestPeer(t *testing.T) types.Peer {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return types.NewPeer(pub, netip.MustParseAddr("10.1.1.1"), map[string]types.ServiceEndpoint{
		types.ServicePeering: {Network: "udp", Port: 14626},
	})
}

// TestActivePeersList_Basic 测试基本操作
func TestActivePeersList_Basic(t *testing.T) {
	list, err := NewActivePeersList(10)
	require.NoError(t, err)

	p := newTestPeer(t)
	assert.False(t, list.IsVerified(p.ID))
	assert.False(t, list.MarkVerified(p.ID), "未知节点无法标记")

	list.Upsert(p)
	assert.Equal(t, 1, list.Len())
	assert.False(t, list.IsVerified(p.ID))

	require.True(t, list.MarkVerified(p.ID))
	assert.True(t, list.IsVerified(p.ID))

	entry, ok := list.Find(p.ID)
	require.True(t, ok)
	assert.Equal(t, p.ID, entry.Peer.ID)
	assert.True(t, entry.Verified)

	// 刷新不丢失验证标记
	list.Upsert(p)
	assert.True(t, list.IsVerified(p.ID))

	assert.True(t, list.Remove(p.ID))
	assert.False(t, list.IsVerified(p.ID))
	_, ok = list.Find(p.ID)
	assert.False(t, ok)
}

// TestActivePeersList_Bounded 测试容量上限
func TestActivePeersList_Bounded(t *testing.T) {
	list, err := NewActivePeersList(2)
	require.NoError(t, err)

	a, b, c := newTestPeer(t), newTestPeer(t), newTestPeer(t)
	list.Upsert(a)
	list.Upsert(b)
	list.Upsert(c)

	assert.Equal(t, 2, list.Len())
	_, ok := list.Find(a.ID)
	assert.False(t, ok, "最久未出现的节点被淘汰")

	peers := list.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, c.ID, peers[0].Peer.ID, "最近出现的在前")
}

// TestActivePeersList_VerifiedPeers 测试已验证节点快照
func TestActivePeersList_VerifiedPeers(t *testing.T) {
	list, err := NewActivePeersList(10)
	require.NoError(t, err)

	a, b := newTestPeer(t), newTestPeer(t)
	list.Upsert(a)
	list.Upsert(b)
	list.MarkVerified(b.ID)

	verified := list.VerifiedPeers()
	require.Len(t, verified, 1)
	assert.Equal(t, b.ID, verified[0].ID)

	_, err = NewActivePeersList(0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

// TestActivePeersList_Put 测试插入时标记验证，刷新不清除验证标记
func TestActivePeersList_Put(t *testing.T) {
	list, err := NewActivePeersList(10)
	require.NoError(t, err)

	p := newTestPeer(t)
	list.Put(p, true)
	assert.True(t, list.IsVerified(p.ID))

	list.Put(p, false)
	assert.True(t, list.IsVerified(p.ID), "刷新保留验证标记")

	list.Upsert(p)
	assert.True(t, list.IsVerified(p.ID))
}

// TestActivePeersList_ConcurrentVerify 测试并发刷新不丢失验证标记
func TestActivePeersList_ConcurrentVerify(t *testing.T) {
	list, err := NewActivePeersList(10)
	require.NoError(t, err)

	for round := 0; round < 200; round++ {
		p := newTestPeer(t)
		list.Upsert(p)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			list.Put(p, false)
		}()
		go func() {
			defer wg.Done()
			list.Put(p, true)
		}()
		go func() {
			defer wg.Done()
			list.Upsert(p)
		}()
		wg.Wait()

		require.True(t, list.IsVerified(p.ID), "round %d", round)
	}
}

// TestActivePeersList_ConcurrentRemove 测试移除后不会被验证操作恢复
func TestActivePeersList_ConcurrentRemove(t *testing.T) {
	list, err := NewActivePeersList(10)
	require.NoError(t, err)

	for round := 0; round < 200; round++ {
		p := newTestPeer(t)
		list.Upsert(p)

		var wg sync.WaitGroup
		var marked bool
		wg.Add(2)
		go func() {
			defer wg.Done()
			marked = list.MarkVerified(p.ID)
		}()
		go func() {
			defer wg.Done()
			list.Remove(p.ID)
		}()
		wg.Wait()

		_, ok := list.Find(p.ID)
		require.False(t, ok, "round %d marked=%v", round, marked)
	}
}
