package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// TestChannel_Publish 测试发布与关闭
func TestChannel_Publish(t *testing.T) {
	ch := NewChannel(1)

	require.NoError(t, ch.Publish(NewPeeringDropped(types.PeerID{1})))
	ev := <-ch.Out()
	assert.Equal(t, PeeringDropped, ev.Kind)
	assert.Equal(t, types.PeerID{1}, ev.PeerID)

	ch.Close()
	ch.Close()
	assert.ErrorIs(t, ch.Publish(NewSaltUpdated(1, 2)), ErrClosed)
}

// TestChannel_PublishUnblocksOnClose 测试阻塞发布在关闭时返回
func TestChannel_PublishUnblocksOnClose(t *testing.T) {
	ch := NewChannel(0)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ch.Publish(NewSaltUpdated(1, 2))
	}()

	time.Sleep(20 * time.Millisecond)
	ch.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Publish 未在关闭后返回")
	}
}

// TestBus_FanOut 测试分发
func TestBus_FanOut(t *testing.T) {
	src := NewChannel(8)
	bus := NewBus()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = bus.Run(ctx, src)
		close(done)
	}()

	require.NoError(t, src.Publish(NewIncomingPeering(types.Peer{ID: types.PeerID{7}}, 42)))

	for _, sub := range []*Subscription{a, b} {
		select {
		case ev := <-sub.Out():
			assert.Equal(t, IncomingPeering, ev.Kind)
			assert.Equal(t, uint32(42), ev.Distance)
			assert.True(t, ev.Status)
		case <-time.After(time.Second):
			t.Fatal("订阅者未收到事件")
		}
	}

	b.Close()
	cancel()
	<-done

	assert.ErrorIs(t, src.Publish(NewSaltUpdated(1, 1)), ErrClosed, "分发器退出后源通道关闭")
}

// TestBus_SlowConsumer 测试慢消费者丢弃
func TestBus_SlowConsumer(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)

	bus.emit(NewPeeringDropped(types.PeerID{1}))
	bus.emit(NewPeeringDropped(types.PeerID{2}))

	assert.Equal(t, int64(1), bus.Dropped())
	ev := <-sub.Out()
	assert.Equal(t, types.PeerID{1}, ev.PeerID)
	sub.Close()
}

// TestKind_String 测试事件类型名称
func TestKind_String(t *testing.T) {
	assert.Equal(t, "salt_updated", SaltUpdated.String())
	assert.Equal(t, "unknown(0)", Kind(0).String())
}
