package autopeering

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-autopeering/config"
	"github.com/dep2p/go-autopeering/pkg/types"
)

func newLoopbackNode(t *testing.T, opts ...Option) *Node {
	t.Helper()

	opts = append([]Option{WithBindAddr("127.0.0.1:0")}, opts...)
	node, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = node.Stop(ctx)
	})
	return node
}

func containsPeer(peers []types.Peer, id types.PeerID) bool {
	for _, p := range peers {
		if p.ID == id {
			return true
		}
	}
	return false
}

// TestNode_Peering 两个回环节点之间建立邻居关系
func TestNode_Peering(t *testing.T) {
	// B 不主动发起，避免双方同时请求
	b := newLoopbackNode(t, WithOutboundUpdateInterval(time.Hour))
	a := newLoopbackNode(t, WithOutboundUpdateInterval(20*time.Millisecond))

	a.AddPeer(b.LocalPeer(), true)
	b.AddPeer(a.LocalPeer(), true)

	subA := a.Events(16)
	defer subA.Close()
	subB := b.Events(16)
	defer subB.Close()

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))
	require.NoError(t, a.Start(ctx))

	require.Eventually(t, func() bool {
		return containsPeer(a.OutboundNeighbors(), b.LocalID()) &&
			containsPeer(b.InboundNeighbors(), a.LocalID())
	}, 5*time.Second, 20*time.Millisecond)

	assert.True(t, a.IsNeighbor(b.LocalID()))
	assert.True(t, b.IsNeighbor(a.LocalID()))
	assert.Empty(t, a.InboundNeighbors())
	assert.Empty(t, b.OutboundNeighbors())

	select {
	case ev := <-subB.Out():
		assert.Equal(t, IncomingPeering, ev.Kind)
		assert.Equal(t, a.LocalID(), ev.PeerID)
	case <-time.After(5 * time.Second):
		t.Fatal("未收到入站事件")
	}

	select {
	case ev := <-subA.Out():
		assert.Equal(t, OutgoingPeering, ev.Kind)
		assert.Equal(t, b.LocalID(), ev.PeerID)
		assert.True(t, ev.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("未收到出站事件")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx))
	require.NoError(t, b.Stop(stopCtx))

	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("节点未退出")
	}
	assert.NoError(t, a.Err())
}

// TestNode_Lifecycle 测试生命周期状态转换
func TestNode_Lifecycle(t *testing.T) {
	node := newLoopbackNode(t)
	ctx := context.Background()

	assert.Equal(t, StateIdle, node.State())
	require.NoError(t, node.Start(ctx))
	assert.Equal(t, StateRunning, node.State())
	assert.ErrorIs(t, node.Start(ctx), ErrAlreadyStarted)

	require.NoError(t, node.Stop(ctx))
	assert.Equal(t, StateStopped, node.State())
	assert.NoError(t, node.Stop(ctx))
	assert.ErrorIs(t, node.Start(ctx), ErrNodeClosed)
}

// TestNode_StopWithoutStart 未启动的节点释放监听端口
func TestNode_StopWithoutStart(t *testing.T) {
	node := newLoopbackNode(t)
	addr := node.ListenAddr()
	require.NoError(t, node.Stop(context.Background()))

	// 端口已释放，可以重新绑定
	again, err := New(WithBindAddr(addr.String()))
	require.NoError(t, err)
	require.NoError(t, again.Stop(context.Background()))
}

// TestNode_Identity 测试私钥注入与本地节点记录
func TestNode_Identity(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	node := newLoopbackNode(t, WithPrivateKey(priv))
	assert.Equal(t, types.PeerIDFromPublicKey(pub), node.LocalID())

	lp := node.LocalPeer()
	assert.Equal(t, node.LocalID(), lp.ID)
	addr, err := lp.ServiceAddr(types.ServicePeering)
	require.NoError(t, err)
	assert.Equal(t, node.ListenAddr(), addr)
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), addr.Addr())
}

// TestNode_KnownPeers 已知节点写入活跃节点列表
func TestNode_KnownPeers(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	node := newLoopbackNode(t, WithKnownPeers(config.KnownPeer{
		PublicKey: base58.Encode(pub),
		Addr:      "127.0.0.1:14700",
	}))

	id := types.PeerIDFromPublicKey(pub)
	assert.True(t, containsPeer(node.ActivePeers(), id))

	assert.True(t, node.RemovePeer(id))
	assert.False(t, containsPeer(node.ActivePeers(), id))
}

// TestNode_ConcurrentAddPeer 并发加入同一节点时验证标记不丢失
func TestNode_ConcurrentAddPeer(t *testing.T) {
	node := newLoopbackNode(t)

	for i := 0; i < 100; i++ {
		pub, _, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		p := types.NewPeer(pub, netip.MustParseAddr("127.0.0.1"), map[string]types.ServiceEndpoint{
			types.ServicePeering: {Network: "udp", Port: 14700},
		})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			node.AddPeer(p, false)
		}()
		go func() {
			defer wg.Done()
			node.AddPeer(p, true)
		}()
		wg.Wait()

		require.True(t, node.peers.IsVerified(p.ID), "peer %d", i)
	}
}

// TestNode_Registerer 指标注册到外部注册器
func TestNode_Registerer(t *testing.T) {
	reg := prometheus.NewRegistry()
	newLoopbackNode(t, WithRegisterer(reg))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

// TestNode_NeighborValidator 自定义校验器拒绝所有候选
func TestNode_NeighborValidator(t *testing.T) {
	b := newLoopbackNode(t, WithOutboundUpdateInterval(time.Hour))
	a := newLoopbackNode(t,
		WithOutboundUpdateInterval(20*time.Millisecond),
		WithNeighborValidator(ValidatorFunc(func(Peer) bool { return false })),
	)
	a.AddPeer(b.LocalPeer(), true)
	b.AddPeer(a.LocalPeer(), true)

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))
	require.NoError(t, a.Start(ctx))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, a.OutboundNeighbors())
	assert.Empty(t, b.InboundNeighbors())
}

// TestNew_InvalidOptions 测试无效选项
func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"空监听地址", WithBindAddr("")},
		{"私钥长度错误", WithPrivateKey(make([]byte, 7))},
		{"容量无效", WithNeighborCapacity(0, 4)},
		{"出站间隔无效", WithOutboundUpdateInterval(0)},
		{"空配置", WithConfig(nil)},
		{"配置文件不存在", WithConfigFile("/nonexistent/autopeering.json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			assert.Error(t, err)
		})
	}
}

// TestNew_InvalidConfig 配置校验失败时不创建节点
func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Autopeering.BindAddr = "127.0.0.1:0"
	cfg.Autopeering.InboundCapacity = 0

	_, err := New(WithConfig(cfg))
	assert.Error(t, err)

	cfg = config.NewConfig()
	cfg.KnownPeers = []config.KnownPeer{{PublicKey: "invalid", Addr: "127.0.0.1:1"}}
	_, err = New(WithConfig(cfg), WithBindAddr("127.0.0.1:0"))
	assert.Error(t, err)
}

// TestOptions_ToConfig 覆盖项不修改基础配置
func TestOptions_ToConfig(t *testing.T) {
	base := config.NewConfig()
	o := newOptions()
	for _, opt := range []Option{
		WithConfig(base),
		WithBindAddr("127.0.0.1:9000"),
		WithNeighborCapacity(2, 3),
		WithDropNeighborsOnSaltUpdate(true),
		WithOutboundUpdateInterval(5 * time.Second),
	} {
		require.NoError(t, opt(o))
	}

	cfg := o.toConfig()
	assert.Equal(t, "127.0.0.1:9000", cfg.Autopeering.BindAddr)
	assert.Equal(t, 2, cfg.Autopeering.InboundCapacity)
	assert.Equal(t, 3, cfg.Autopeering.OutboundCapacity)
	assert.True(t, cfg.Autopeering.DropNeighborsOnSaltUpdate)
	assert.Equal(t, 5*time.Second, cfg.Autopeering.OutboundUpdateInterval.Duration())

	assert.Equal(t, config.DefaultAutopeeringConfig().BindAddr, base.Autopeering.BindAddr)
	assert.False(t, base.Autopeering.DropNeighborsOnSaltUpdate)
}

// TestNodeState_String 测试状态名称
func TestNodeState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", NodeState(42).String())
}
