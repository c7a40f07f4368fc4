package peering

import (
	"time"

	"github.com/dep2p/go-autopeering/config"
)

// Config 协议引擎配置
type Config struct {
	// InboundCapacity 入站邻居容量
	InboundCapacity int

	// OutboundCapacity 出站邻居容量
	OutboundCapacity int

	// RequestValidity 请求有效期
	RequestValidity time.Duration

	// ResponseTimeout 响应超时
	ResponseTimeout time.Duration

	// SaltLifetime Salt 生命周期
	SaltLifetime time.Duration

	// SaltUpdateInterval Salt 轮换间隔
	SaltUpdateInterval time.Duration

	// DropNeighborsOnSaltUpdate 轮换时断开全部邻居
	DropNeighborsOnSaltUpdate bool

	// OutboundUpdateInterval 出站选择间隔
	OutboundUpdateInterval time.Duration

	// RequestSweepInterval 过期请求清理间隔
	RequestSweepInterval time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return FromAutopeeringConfig(config.DefaultAutopeeringConfig())
}

// FromAutopeeringConfig 从统一配置转换
func FromAutopeeringConfig(c config.AutopeeringConfig) Config {
	return Config{
		InboundCapacity:           c.InboundCapacity,
		OutboundCapacity:          c.OutboundCapacity,
		RequestValidity:           c.RequestValidity.Duration(),
		ResponseTimeout:           c.ResponseTimeout.Duration(),
		SaltLifetime:              c.SaltLifetime.Duration(),
		SaltUpdateInterval:        c.SaltUpdateInterval(),
		DropNeighborsOnSaltUpdate: c.DropNeighborsOnSaltUpdate,
		OutboundUpdateInterval:    c.OutboundUpdateInterval.Duration(),
		RequestSweepInterval:      c.RequestSweepInterval.Duration(),
	}
}
