// Package packet 定义自动对等协议的数据包与帧格式
//
// 网络对核心而言是不透明的数据包通道：每个数据包由消息类型、消息字节、
// 对端地址与对端 ID 组成。帧格式：
//
//	[type u8][sender PeerID 32B][payload]
package packet

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/minio/sha256-simd"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// ============================================================================
//                              消息类型
// ============================================================================

// MessageType 消息类型
type MessageType uint8

// 消息类型定义
//
// 验证（发现）协议的类型由外部子系统处理，自动对等引擎只识别 Peering* 与 DropRequest。
const (
	Ping              MessageType = 10
	Pong              MessageType = 11
	DiscoveryRequest  MessageType = 12
	DiscoveryResponse MessageType = 13
	PeeringRequest    MessageType = 20
	PeeringResponse   MessageType = 21
	DropRequest       MessageType = 22
)

// String 返回消息类型名称
func (t MessageType) String() string {
	switch t {
	case Ping:
		return "ping"
	case Pong:
		return "pong"
	case DiscoveryRequest:
		return "discovery_request"
	case DiscoveryResponse:
		return "discovery_response"
	case PeeringRequest:
		return "peering_request"
	case PeeringResponse:
		return "peering_response"
	case DropRequest:
		return "drop_request"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// IsPeering 是否为自动对等协议消息
func (t MessageType) IsPeering() bool {
	return t == PeeringRequest || t == PeeringResponse || t == DropRequest
}

// ============================================================================
//                              数据包
// ============================================================================

// IncomingPacket 收到的数据包
type IncomingPacket struct {
	MsgType  MessageType
	MsgBytes []byte
	PeerAddr netip.AddrPort
	PeerID   types.PeerID
}

// OutgoingPacket 待发送的数据包
type OutgoingPacket struct {
	MsgType  MessageType
	MsgBytes []byte
	PeerAddr netip.AddrPort
}

// ============================================================================
//                              消息哈希
// ============================================================================

// HashSize 消息哈希长度
const HashSize = sha256.Size

// Hash 消息哈希
type Hash [HashSize]byte

// MessageHash 计算消息哈希：SHA-256(type ‖ bytes)
//
// 对等响应回显请求的哈希，请求方据此关联响应。
func MessageHash(t MessageType, msgBytes []byte) Hash {
	h := sha256.New()
	h.Write([]byte{byte(t)})
	h.Write(msgBytes)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ============================================================================
//                              帧编解码
// ============================================================================

// HeaderSize 帧头长度
const HeaderSize = 1 + types.PeerIDLength

// MaxFrameSize 最大帧长度
const MaxFrameSize = 1280

var (
	// ErrFrameTooShort 帧长度不足
	ErrFrameTooShort = errors.New("packet: frame too short")

	// ErrFrameTooLarge 帧超过最大长度
	ErrFrameTooLarge = errors.New("packet: frame too large")
)

// EncodeFrame 编码帧
func EncodeFrame(t MessageType, sender types.PeerID, payload []byte) ([]byte, error) {
	if HeaderSize+len(payload) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = append(buf, byte(t))
	buf = append(buf, sender[:]...)
	buf = append(buf, payload...)
	return buf, nil
}

// DecodeFrame 解码帧
func DecodeFrame(frame []byte) (MessageType, types.PeerID, []byte, error) {
	if len(frame) < HeaderSize {
		return 0, types.EmptyPeerID, nil, ErrFrameTooShort
	}
	if len(frame) > MaxFrameSize {
		return 0, types.EmptyPeerID, nil, ErrFrameTooLarge
	}
	var sender types.PeerID
	copy(sender[:], frame[1:HeaderSize])
	payload := append([]byte(nil), frame[HeaderSize:]...)
	return MessageType(frame[0]), sender, payload, nil
}
