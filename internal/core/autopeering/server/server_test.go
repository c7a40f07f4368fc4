package server

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/packet"
	"github.com/dep2p/go-autopeering/pkg/types"
)

// TestChannels 测试数据包通道
func TestChannels(t *testing.T) {
	c := NewChannels(1)
	sock := c.Socket()

	require.NoError(t, sock.Tx.Send(packet.OutgoingPacket{MsgType: packet.DropRequest}))
	out := <-c.Outgoing()
	assert.Equal(t, packet.DropRequest, out.MsgType)

	ctx := context.Background()
	require.NoError(t, c.Deliver(ctx, packet.IncomingPacket{MsgType: packet.PeeringRequest}))
	in := <-sock.Rx
	assert.Equal(t, packet.PeeringRequest, in.MsgType)

	c.Close()
	c.Close()
	assert.ErrorIs(t, sock.Tx.Send(packet.OutgoingPacket{}), ErrClosed)
	assert.ErrorIs(t, c.Deliver(ctx, packet.IncomingPacket{}), ErrClosed)
}

// TestSourceLimiter 测试按来源限速
func TestSourceLimiter(t *testing.T) {
	l, err := newSourceLimiter(1, 2, 16)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")

	assert.True(t, l.allow(a, now))
	assert.True(t, l.allow(a, now))
	assert.False(t, l.allow(a, now), "突发用尽")
	assert.True(t, l.allow(b, now), "来源独立计数")
	assert.False(t, l.allow(netip.MustParseAddr("::ffff:10.0.0.1"), now), "IPv4 映射地址视为同一来源")

	assert.True(t, l.allow(a, now.Add(time.Second)), "令牌恢复")

	disabled, err := newSourceLimiter(0, 0, 0)
	require.NoError(t, err)
	assert.Nil(t, disabled)
	assert.True(t, disabled.allow(a, now))
}

func startServer(t *testing.T, ctx context.Context, id types.PeerID, cfg UDPConfig) (*UDPServer, *Channels, <-chan error) {
	t.Helper()
	chans := NewChannels(16)
	cfg.BindAddr = "127.0.0.1:0"
	srv, err := ListenUDP(cfg, id, chans, clock.New())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	return srv, chans, done
}

// TestUDPServer_Exchange 测试回环收发
func TestUDPServer_Exchange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idA := types.PeerID{0xA}
	idB := types.PeerID{0xB}
	_, chansA, doneA := startServer(t, ctx, idA, UDPConfig{})
	srvB, chansB, doneB := startServer(t, ctx, idB, UDPConfig{})

	require.NoError(t, chansA.Tx().Send(packet.OutgoingPacket{
		MsgType:  packet.PeeringRequest,
		MsgBytes: []byte("hello"),
		PeerAddr: srvB.LocalAddr(),
	}))

	select {
	case pkt := <-chansB.Socket().Rx:
		assert.Equal(t, packet.PeeringRequest, pkt.MsgType)
		assert.Equal(t, []byte("hello"), pkt.MsgBytes)
		assert.Equal(t, idA, pkt.PeerID)
		assert.True(t, pkt.PeerAddr.Addr().IsLoopback())
	case <-time.After(2 * time.Second):
		t.Fatal("未收到数据包")
	}

	cancel()
	for _, done := range []<-chan error{doneA, doneB} {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("服务端未退出")
		}
	}

	assert.ErrorIs(t, chansA.Tx().Send(packet.OutgoingPacket{}), ErrClosed, "退出后通道关闭")
}

// TestUDPServer_Filtering 测试无效帧、非对等消息与限速
func TestUDPServer_Filtering(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, chans, _ := startServer(t, ctx, types.PeerID{1}, UDPConfig{PacketRate: 0.001, PacketBurst: 2})

	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(srv.LocalAddr()))
	require.NoError(t, err)
	defer conn.Close()

	ping, err := packet.EncodeFrame(packet.Ping, types.PeerID{2}, nil)
	require.NoError(t, err)
	drop, err := packet.EncodeFrame(packet.DropRequest, types.PeerID{2}, []byte{8, 1})
	require.NoError(t, err)

	_, err = conn.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	_, err = conn.Write(ping)
	require.NoError(t, err)
	_, err = conn.Write(drop)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		received, limited, malformed := srv.Stats()
		return received == 3 && limited == 1 && malformed == 1
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case pkt := <-chans.Socket().Rx:
		t.Fatalf("不应投递数据包: %v", pkt.MsgType)
	case <-time.After(50 * time.Millisecond):
	}
}
