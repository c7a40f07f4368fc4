// Package config 提供统一的配置管理
//
// 本包采用与组件一一对应的配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义，提供 DefaultXxxConfig() 与 Validate()
//   - 支持从 JSON 加载和保存配置
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Autopeering.InboundCapacity = 8
//	cfg.Autopeering.DropNeighborsOnSaltUpdate = true
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
package config

// KnownPeer 已知节点配置
//
// 启动时直接写入活跃节点列表的节点，标记为已验证。
// 适用于私有网络、测试网络等由运维方预先确认身份的场景。
type KnownPeer struct {
	// PublicKey 节点 ed25519 公钥（Base58）
	PublicKey string `json:"public_key"`

	// Addr peering 服务地址，例如 "10.0.0.2:14626"
	Addr string `json:"addr"`
}

// Config autopeering 节点的完整配置结构
type Config struct {
	// Autopeering 自动对等配置
	Autopeering AutopeeringConfig `json:"autopeering"`

	// KnownPeers 已知节点列表
	KnownPeers []KnownPeer `json:"known_peers,omitempty"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Autopeering: DefaultAutopeeringConfig(),
	}
}

// Validate 验证配置的有效性
//
// 返回的错误可能聚合了多个子错误，可使用 multierr.Errors 展开。
func (c *Config) Validate() error {
	return c.Autopeering.Validate()
}
