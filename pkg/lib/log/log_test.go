package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLazyLogger_FollowsDefault 测试 LazyLogger 跟随默认 logger 切换
func TestLazyLogger_FollowsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { SetDefault(prev) })

	logger := Logger("autopeering/test")

	var buf bytes.Buffer
	SetOutputWithLevel(&buf, LevelInfo)

	logger.Debug("不可见")
	logger.Info("对等请求已接受", "peer", "abc")

	out := buf.String()
	assert.NotContains(t, out, "不可见")
	assert.Contains(t, out, "对等请求已接受")
	assert.Contains(t, out, "component=autopeering/test")
	assert.Contains(t, out, "peer=abc")

	buf.Reset()
	logger.With("direction", "inbound").Warn("邻居已淘汰")
	assert.Contains(t, buf.String(), "direction=inbound")
}
