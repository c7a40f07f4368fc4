package message

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/packet"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/salt"
)

// TestPeeringRequest_RoundTrip 测试请求编解码
func TestPeeringRequest_RoundTrip(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))

	s, err := salt.New(clk, time.Hour)
	require.NoError(t, err)

	req := PeeringRequest{Timestamp: clk.Now().Unix(), Salt: s}
	got, err := UnmarshalPeeringRequest(req.Marshal())
	require.NoError(t, err)

	assert.Equal(t, req.Timestamp, got.Timestamp)
	assert.Equal(t, s.Bytes(), got.Salt.Bytes())
	assert.Equal(t, s.Expiration(), got.Salt.Expiration())
}

// TestPeeringRequest_Invalid 测试无效请求
func TestPeeringRequest_Invalid(t *testing.T) {
	t.Run("缺少 Salt", func(t *testing.T) {
		b := DropPeeringRequest{Timestamp: 5}.Marshal()
		_, err := UnmarshalPeeringRequest(b)
		assert.ErrorIs(t, err, ErrMissingSalt)
	})

	t.Run("截断", func(t *testing.T) {
		s, err := salt.FromParts([]byte{1, 2, 3}, 10)
		require.NoError(t, err)
		b := PeeringRequest{Timestamp: 5, Salt: s}.Marshal()
		_, err = UnmarshalPeeringRequest(b[:len(b)-2])
		assert.Error(t, err)
	})

	t.Run("垃圾数据", func(t *testing.T) {
		_, err := UnmarshalPeeringRequest([]byte{0xff, 0xff, 0xff})
		assert.Error(t, err)
	})
}

// TestPeeringResponse_RoundTrip 测试响应编解码
func TestPeeringResponse_RoundTrip(t *testing.T) {
	hash := packet.MessageHash(packet.PeeringRequest, []byte("request"))

	for _, status := range []bool{true, false} {
		res := PeeringResponse{RequestHash: hash, Status: status}
		got, err := UnmarshalPeeringResponse(res.Marshal())
		require.NoError(t, err)
		assert.Equal(t, res, got)
	}
}

// TestPeeringResponse_InvalidHash 测试哈希长度错误
func TestPeeringResponse_InvalidHash(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, fieldReqHash, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte{1, 2, 3})

	_, err := UnmarshalPeeringResponse(b)
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = UnmarshalPeeringResponse(nil)
	assert.ErrorIs(t, err, ErrInvalidHash)
}

// TestDropPeeringRequest 测试断开请求编解码与未知字段跳过
func TestDropPeeringRequest(t *testing.T) {
	b := DropPeeringRequest{Timestamp: 1_700_000_000}.Marshal()
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future field"))

	got, err := UnmarshalDropPeeringRequest(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), got.Timestamp)

	empty, err := UnmarshalDropPeeringRequest(nil)
	require.NoError(t, err)
	assert.Zero(t, empty.Timestamp)
}
