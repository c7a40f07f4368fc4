package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"
)

// AutopeeringConfig 自动对等配置
//
// 控制邻居选择协议：
//   - 入站/出站邻居容量
//   - 请求有效期与响应超时
//   - Salt 生命周期与轮换策略
//   - 出站选择与过期请求清理周期
//   - UDP 服务端速率限制与地址过滤
type AutopeeringConfig struct {
	// BindAddr UDP 监听地址
	BindAddr string `json:"bind_addr"`

	// InboundCapacity 入站邻居容量
	InboundCapacity int `json:"inbound_capacity"`

	// OutboundCapacity 出站邻居容量
	OutboundCapacity int `json:"outbound_capacity"`

	// RequestValidity 请求有效期，超过后请求视为过期
	RequestValidity Duration `json:"request_validity"`

	// ResponseTimeout 等待响应的最长时间
	ResponseTimeout Duration `json:"response_timeout"`

	// SaltLifetime Salt 生命周期
	SaltLifetime Duration `json:"salt_lifetime"`

	// SaltUpdateMargin 轮换提前量，轮换间隔 = SaltLifetime - SaltUpdateMargin
	SaltUpdateMargin Duration `json:"salt_update_margin"`

	// DropNeighborsOnSaltUpdate 轮换 Salt 时是否断开全部邻居
	DropNeighborsOnSaltUpdate bool `json:"drop_neighbors_on_salt_update"`

	// OutboundUpdateInterval 出站邻居选择间隔
	OutboundUpdateInterval Duration `json:"outbound_update_interval"`

	// RequestSweepInterval 过期请求清理间隔
	RequestSweepInterval Duration `json:"request_sweep_interval"`

	// MaxActivePeers 活跃节点列表最大长度
	MaxActivePeers int `json:"max_active_peers"`

	// PacketRate 每个来源地址每秒允许的数据包数（0 表示不限制）
	PacketRate float64 `json:"packet_rate"`

	// PacketBurst 每个来源地址的突发数据包数
	PacketBurst int `json:"packet_burst"`

	// BlockedCIDRs 禁止成为邻居的地址段
	BlockedCIDRs []string `json:"blocked_cidrs,omitempty"`

	// AllowedCIDRs 允许成为邻居的地址段（为空表示全部允许）
	AllowedCIDRs []string `json:"allowed_cidrs,omitempty"`
}

// DefaultAutopeeringConfig 返回默认自动对等配置
func DefaultAutopeeringConfig() AutopeeringConfig {
	return AutopeeringConfig{
		BindAddr:                  "0.0.0.0:14626",
		InboundCapacity:           4,
		OutboundCapacity:          4,
		RequestValidity:           Duration(20 * time.Second),
		ResponseTimeout:           Duration(time.Second),
		SaltLifetime:              Duration(2 * time.Hour),
		SaltUpdateMargin:          Duration(time.Second),
		DropNeighborsOnSaltUpdate: false,
		OutboundUpdateInterval:    Duration(time.Second),
		RequestSweepInterval:      Duration(time.Second),
		MaxActivePeers:            1000,
		PacketRate:                50,
		PacketBurst:               100,
	}
}

// SaltUpdateInterval 返回 Salt 轮换间隔
//
// 轮换在 Salt 过期之前发生，避免出现已过期 Salt 的空窗期。
func (c AutopeeringConfig) SaltUpdateInterval() time.Duration {
	return c.SaltLifetime.Duration() - c.SaltUpdateMargin.Duration()
}

// Validate 验证配置
func (c *AutopeeringConfig) Validate() error {
	var err error

	if c.BindAddr != "" {
		if _, _, e := net.SplitHostPort(c.BindAddr); e != nil {
			err = multierr.Append(err, fmt.Errorf("invalid bind address %q: %w", c.BindAddr, e))
		}
	}
	if c.InboundCapacity <= 0 {
		err = multierr.Append(err, errors.New("inbound capacity must be positive"))
	}
	if c.OutboundCapacity <= 0 {
		err = multierr.Append(err, errors.New("outbound capacity must be positive"))
	}
	if c.RequestValidity <= 0 {
		err = multierr.Append(err, errors.New("request validity must be positive"))
	}
	if c.ResponseTimeout <= 0 {
		err = multierr.Append(err, errors.New("response timeout must be positive"))
	}
	if c.SaltLifetime <= 0 {
		err = multierr.Append(err, errors.New("salt lifetime must be positive"))
	}
	if c.SaltUpdateMargin < 0 {
		err = multierr.Append(err, errors.New("salt update margin must be non-negative"))
	}
	if c.SaltUpdateInterval() <= 0 {
		err = multierr.Append(err, errors.New("salt update margin must be less than salt lifetime"))
	}
	if c.OutboundUpdateInterval <= 0 {
		err = multierr.Append(err, errors.New("outbound update interval must be positive"))
	}
	if c.RequestSweepInterval <= 0 {
		err = multierr.Append(err, errors.New("request sweep interval must be positive"))
	}
	if c.MaxActivePeers <= 0 {
		err = multierr.Append(err, errors.New("max active peers must be positive"))
	}
	if c.PacketRate < 0 {
		err = multierr.Append(err, errors.New("packet rate must be non-negative"))
	}
	if c.PacketRate > 0 && c.PacketBurst <= 0 {
		err = multierr.Append(err, errors.New("packet burst must be positive when rate limiting"))
	}
	for _, cidr := range c.BlockedCIDRs {
		if _, _, e := net.ParseCIDR(cidr); e != nil {
			err = multierr.Append(err, fmt.Errorf("invalid blocked CIDR %q: %w", cidr, e))
		}
	}
	for _, cidr := range c.AllowedCIDRs {
		if _, _, e := net.ParseCIDR(cidr); e != nil {
			err = multierr.Append(err, fmt.Errorf("invalid allowed CIDR %q: %w", cidr, e))
		}
	}

	return err
}
