package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// errNegativeDuration 时长配置为负
var errNegativeDuration = errors.New("duration must not be negative")

// Duration 自动对等配置中的时长
//
// JSON 中可写作 "20s"、"2h" 这样的字符串，也可写作整数秒，
// 与协议时间戳的秒级精度一致：
//
//	{"request_validity": 20, "salt_lifetime": "2h"}
//
// 输出时总是写成字符串。
type Duration time.Duration

// UnmarshalJSON 解析字符串或整数秒，拒绝负值
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v time.Duration

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err = time.ParseDuration(s); err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
	} else {
		var secs int64
		if err := json.Unmarshal(data, &secs); err != nil {
			return fmt.Errorf("duration must be a string (e.g. \"20s\") or whole seconds, got %s", data)
		}
		if secs < 0 {
			return fmt.Errorf("%w: %d seconds", errNegativeDuration, secs)
		}
		if secs > int64(time.Duration(1<<63-1)/time.Second) {
			return fmt.Errorf("duration %d seconds out of range", secs)
		}
		v = time.Duration(secs) * time.Second
	}

	if v < 0 {
		return fmt.Errorf("%w: %s", errNegativeDuration, v)
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON 输出字符串形式
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Duration 返回 time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String 用于日志与配置输出
func (d Duration) String() string {
	return time.Duration(d).String()
}
