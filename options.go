package autopeering

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-autopeering/config"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 基础配置，未设置时使用 config.NewConfig()
	config *config.Config

	// 覆盖项
	bindAddr       string
	knownPeers     []config.KnownPeer
	inbound        int
	outbound       int
	dropOnUpdate   *bool
	outboundUpdate time.Duration

	// 注入组件
	privateKey ed25519.PrivateKey
	clock      clock.Clock
	registerer prometheus.Registerer
	validator  NeighborValidator

	// 用户自定义 Fx 选项
	fxOptions []fx.Option
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{}
}

// toConfig 合并基础配置与覆盖项
func (o *options) toConfig() *config.Config {
	var cfg *config.Config
	if o.config != nil {
		cfg = config.CloneConfig(o.config)
	} else {
		cfg = config.NewConfig()
	}

	if o.bindAddr != "" {
		cfg.Autopeering.BindAddr = o.bindAddr
	}
	if len(o.knownPeers) > 0 {
		cfg.KnownPeers = append(cfg.KnownPeers, o.knownPeers...)
	}
	if o.inbound > 0 {
		cfg.Autopeering.InboundCapacity = o.inbound
	}
	if o.outbound > 0 {
		cfg.Autopeering.OutboundCapacity = o.outbound
	}
	if o.dropOnUpdate != nil {
		cfg.Autopeering.DropNeighborsOnSaltUpdate = *o.dropOnUpdate
	}
	if o.outboundUpdate > 0 {
		cfg.Autopeering.OutboundUpdateInterval = config.Duration(o.outboundUpdate)
	}
	return cfg
}

// ============================================================================
//                              配置选项
// ============================================================================

// WithConfig 使用完整配置作为基础，其余选项在其上覆盖
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config cannot be nil")
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
		o.config = cfg
		return nil
	}
}

// WithBindAddr 设置 UDP 监听地址，例如 "0.0.0.0:14626"
func WithBindAddr(addr string) Option {
	return func(o *options) error {
		if addr == "" {
			return errors.New("bind address cannot be empty")
		}
		o.bindAddr = addr
		return nil
	}
}

// WithKnownPeers 追加已知节点，启动时标记为已验证
func WithKnownPeers(peers ...config.KnownPeer) Option {
	return func(o *options) error {
		o.knownPeers = append(o.knownPeers, peers...)
		return nil
	}
}

// WithNeighborCapacity 设置入站与出站邻居容量
func WithNeighborCapacity(inbound, outbound int) Option {
	return func(o *options) error {
		if inbound <= 0 || outbound <= 0 {
			return fmt.Errorf("invalid neighbor capacity: inbound=%d outbound=%d", inbound, outbound)
		}
		o.inbound = inbound
		o.outbound = outbound
		return nil
	}
}

// WithDropNeighborsOnSaltUpdate 设置 Salt 轮换时是否断开全部邻居
func WithDropNeighborsOnSaltUpdate(drop bool) Option {
	return func(o *options) error {
		o.dropOnUpdate = &drop
		return nil
	}
}

// WithOutboundUpdateInterval 设置出站邻居选择间隔
func WithOutboundUpdateInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("invalid outbound update interval: %v", d)
		}
		o.outboundUpdate = d
		return nil
	}
}

// ============================================================================
//                              组件注入
// ============================================================================

// WithPrivateKey 使用指定的 ed25519 私钥作为节点身份
func WithPrivateKey(priv ed25519.PrivateKey) Option {
	return func(o *options) error {
		if len(priv) != ed25519.PrivateKeySize {
			return fmt.Errorf("invalid private key length %d", len(priv))
		}
		o.privateKey = priv
		return nil
	}
}

// WithClock 注入时钟（测试中使用 clock.Mock）
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithRegisterer 注册 Prometheus 指标
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithNeighborValidator 替换默认的地址校验器
func WithNeighborValidator(v NeighborValidator) Option {
	return func(o *options) error {
		o.validator = v
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
