// Package message 实现自动对等协议消息的编解码
//
// 消息采用 protobuf wire 格式（proto3 语义，零值字段省略）：
//
//	message Salt            { bytes bytes = 1; fixed64 exp_time = 2; }
//	message PeeringRequest  { int64 timestamp = 1; Salt salt = 2; }
//	message PeeringResponse { bytes req_hash = 1; bool status = 2; }
//	message PeeringDrop     { int64 timestamp = 1; }
package message

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/packet"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/salt"
)

var (
	// ErrMissingSalt 请求缺少 Salt
	ErrMissingSalt = errors.New("message: missing salt")

	// ErrInvalidHash 响应中的请求哈希长度无效
	ErrInvalidHash = errors.New("message: invalid request hash")
)

// 字段编号
const (
	fieldSaltBytes  protowire.Number = 1
	fieldSaltExp    protowire.Number = 2
	fieldTimestamp  protowire.Number = 1
	fieldReqSalt    protowire.Number = 2
	fieldReqHash    protowire.Number = 1
	fieldRespStatus protowire.Number = 2
)

// ============================================================================
//                              PeeringRequest
// ============================================================================

// PeeringRequest 对等请求
type PeeringRequest struct {
	// Timestamp 请求时间（unix 秒）
	Timestamp int64

	// Salt 请求方的公开 Salt
	Salt salt.Salt
}

// Marshal 编码
func (r PeeringRequest) Marshal() []byte {
	var b []byte
	if r.Timestamp != 0 {
		b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Timestamp))
	}
	b = protowire.AppendTag(b, fieldReqSalt, protowire.BytesType)
	b = protowire.AppendBytes(b, marshalSalt(r.Salt))
	return b
}

// UnmarshalPeeringRequest 解码对等请求
func UnmarshalPeeringRequest(b []byte) (PeeringRequest, error) {
	var req PeeringRequest
	var saltSeen bool

	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			req.Timestamp = int64(v)
			return n, nil
		case num == fieldReqSalt && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			s, err := unmarshalSalt(v)
			if err != nil {
				return 0, err
			}
			req.Salt = s
			saltSeen = true
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return PeeringRequest{}, fmt.Errorf("decode peering request: %w", err)
	}
	if !saltSeen {
		return PeeringRequest{}, fmt.Errorf("decode peering request: %w", ErrMissingSalt)
	}
	return req, nil
}

// ============================================================================
//                              PeeringResponse
// ============================================================================

// PeeringResponse 对等响应
type PeeringResponse struct {
	// RequestHash 对应请求的消息哈希
	RequestHash packet.Hash

	// Status 是否接受对等
	Status bool
}

// Marshal 编码
func (r PeeringResponse) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldReqHash, protowire.BytesType)
	b = protowire.AppendBytes(b, r.RequestHash[:])
	if r.Status {
		b = protowire.AppendTag(b, fieldRespStatus, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b
}

// UnmarshalPeeringResponse 解码对等响应
func UnmarshalPeeringResponse(b []byte) (PeeringResponse, error) {
	var res PeeringResponse
	var hashSeen bool

	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldReqHash && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if len(v) != packet.HashSize {
				return 0, ErrInvalidHash
			}
			copy(res.RequestHash[:], v)
			hashSeen = true
			return n, nil
		case num == fieldRespStatus && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			res.Status = protowire.DecodeBool(v)
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return PeeringResponse{}, fmt.Errorf("decode peering response: %w", err)
	}
	if !hashSeen {
		return PeeringResponse{}, fmt.Errorf("decode peering response: %w", ErrInvalidHash)
	}
	return res, nil
}

// ============================================================================
//                              DropPeeringRequest
// ============================================================================

// DropPeeringRequest 断开请求
type DropPeeringRequest struct {
	// Timestamp 请求时间（unix 秒）
	Timestamp int64
}

// Marshal 编码
func (r DropPeeringRequest) Marshal() []byte {
	var b []byte
	if r.Timestamp != 0 {
		b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Timestamp))
	}
	return b
}

// UnmarshalDropPeeringRequest 解码断开请求
func UnmarshalDropPeeringRequest(b []byte) (DropPeeringRequest, error) {
	var req DropPeeringRequest

	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldTimestamp && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			req.Timestamp = int64(v)
			return n, nil
		}
		return skipField(num, typ, b)
	})
	if err != nil {
		return DropPeeringRequest{}, fmt.Errorf("decode drop request: %w", err)
	}
	return req, nil
}

// ============================================================================
//                              内部工具
// ============================================================================

func marshalSalt(s salt.Salt) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSaltBytes, protowire.BytesType)
	b = protowire.AppendBytes(b, s.Bytes())
	if s.Expiration() != 0 {
		b = protowire.AppendTag(b, fieldSaltExp, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, uint64(s.Expiration()))
	}
	return b
}

func unmarshalSalt(b []byte) (salt.Salt, error) {
	var raw []byte
	var exp int64

	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldSaltBytes && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			raw = v
			return n, nil
		case num == fieldSaltExp && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			exp = int64(v)
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return salt.Salt{}, err
	}
	if len(raw) == 0 {
		return salt.Salt{}, ErrMissingSalt
	}
	return salt.FromParts(raw, exp)
}

// walkFields 遍历消息字段，fn 返回消费的字节数
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
