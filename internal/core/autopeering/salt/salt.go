// Package salt 实现带过期时间的随机 Salt
//
// Salt 是距离度量的轮换秘密输入，创建后不可变。
package salt

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// Size Salt 字节长度
const Size = 20

// ErrInvalidSalt 无效的 Salt
var ErrInvalidSalt = errors.New("salt: invalid salt")

// Salt 随机值 + 过期时间（unix 秒）
type Salt struct {
	bytes      []byte
	expiration int64
}

// New 创建新的随机 Salt，过期时间为 now + lifetime
func New(clk clock.Clock, lifetime time.Duration) (Salt, error) {
	b := make([]byte, Size)
	if _, err := rand.Read(b); err != nil {
		return Salt{}, fmt.Errorf("salt: read random bytes: %w", err)
	}
	return Salt{
		bytes:      b,
		expiration: clk.Now().Add(lifetime).Unix(),
	}, nil
}

// FromParts 从字节和过期时间构造 Salt（用于解码远端 Salt）
func FromParts(b []byte, expiration int64) (Salt, error) {
	if len(b) == 0 {
		return Salt{}, ErrInvalidSalt
	}
	return Salt{
		bytes:      append([]byte(nil), b...),
		expiration: expiration,
	}, nil
}

// Bytes 返回 Salt 字节的副本
func (s Salt) Bytes() []byte {
	return append([]byte(nil), s.bytes...)
}

// Expiration 返回过期时间（unix 秒）
func (s Salt) Expiration() int64 {
	return s.expiration
}

// IsZero 检查 Salt 是否未初始化
func (s Salt) IsZero() bool {
	return len(s.bytes) == 0
}

// IsExpired 检查 Salt 是否已过期
func (s Salt) IsExpired(clk clock.Clock) bool {
	return IsExpired(clk, s.expiration)
}

// IsExpired 检查过期时间是否已过（now > expiration）
func IsExpired(clk clock.Clock, expiration int64) bool {
	return clk.Now().Unix() > expiration
}
