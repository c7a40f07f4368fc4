package peering

import (
	"errors"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/request"
)

// 消息校验错误：记录 Debug 日志后丢弃消息，不回复
var (
	// ErrRequestExpired 请求时间戳过期
	ErrRequestExpired = errors.New("peering: request expired")

	// ErrSaltExpired 请求携带的 Salt 已过期
	ErrSaltExpired = errors.New("peering: salt expired")

	// ErrPeerNotVerified 发送方未验证
	ErrPeerNotVerified = errors.New("peering: peer not verified")

	// ErrIncorrectRequestHash 响应回显的哈希不符
	ErrIncorrectRequestHash = request.ErrIncorrectHash

	// ErrNoCorrespondingRequestOrTimeout 没有对应请求或已超时
	ErrNoCorrespondingRequestOrTimeout = request.ErrNoCorrespondingRequest
)

var (
	// ErrFatal 致命错误：事件或出站数据包无法投递，拥有该任务的循环必须退出
	ErrFatal = errors.New("peering: fatal")

	// ErrNoPeeringService 节点未提供 peering 服务
	ErrNoPeeringService = errors.New("peering: peer has no peering service")
)
