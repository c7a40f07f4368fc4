package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPeriodic_Run 测试按周期执行
func TestPeriodic_Run(t *testing.T) {
	clk := clock.NewMock()
	var count atomic.Int32

	p := NewPeriodic(clk, "counter", time.Second, func(context.Context) error {
		count.Add(1)
		return nil
	})
	assert.Equal(t, "counter", p.Name())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	clk.Add(time.Second)
	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 5*time.Millisecond)

	clk.Add(time.Second)
	require.Eventually(t, func() bool { return count.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("任务未在取消后退出")
	}
}

// TestPeriodic_Error 测试错误终止任务
func TestPeriodic_Error(t *testing.T) {
	clk := clock.NewMock()
	boom := errors.New("boom")

	p := NewPeriodic(clk, "failing", time.Minute, func(context.Context) error {
		return boom
	})

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	clk.Add(time.Minute)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "failing")
	case <-time.After(time.Second):
		t.Fatal("任务未因错误退出")
	}
}
