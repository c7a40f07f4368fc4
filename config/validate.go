package config

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"go.uber.org/multierr"
)

// ValidateAll 验证整个配置的有效性
//
// 在 Config.Validate() 之外还会检查已知节点列表。
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	err := c.Validate()
	for i, kp := range c.KnownPeers {
		if e := validateKnownPeer(kp); e != nil {
			err = multierr.Append(err, fmt.Errorf("known peer %d: %w", i, e))
		}
	}
	return err
}

// MustValidate 验证配置，失败时 panic
//
// 仅用于测试和示例代码。
func MustValidate(c *Config) {
	if err := ValidateAll(c); err != nil {
		panic(fmt.Sprintf("invalid config: %v", err))
	}
}

func validateKnownPeer(kp KnownPeer) error {
	key, err := base58.Decode(kp.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("invalid public key length %d", len(key))
	}
	if kp.Addr == "" {
		return errors.New("empty address")
	}
	return nil
}
