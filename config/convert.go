package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// FromJSON 从 JSON 数据创建配置
//
// 未出现在 JSON 中的字段保留默认值。
//
// 示例 JSON:
//
//	{
//	  "autopeering": {"inbound_capacity": 8, "salt_lifetime": "30m"},
//	  "known_peers": [{"public_key": "...", "addr": "10.0.0.2:14626"}]
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// ToJSON 将配置序列化为 JSON
func (c *Config) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// LoadFile 从文件加载并验证配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// CloneConfig 克隆配置
//
// 切片字段会被深拷贝，修改副本不影响原始配置。
func CloneConfig(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}

	cloned := *cfg
	cloned.Autopeering.BlockedCIDRs = append([]string(nil), cfg.Autopeering.BlockedCIDRs...)
	cloned.Autopeering.AllowedCIDRs = append([]string(nil), cfg.Autopeering.AllowedCIDRs...)
	cloned.KnownPeers = append([]KnownPeer(nil), cfg.KnownPeers...)
	return &cloned
}
