package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Duration 是支持 JSON 字符串解析的 time.Duration 包装类型
//
// JSON 中可以写 "30s"、"1h30m" 这样的字符串，也可以写纳秒数。
// 同时实现 pflag.Value，可以直接绑定到命令行参数。
type Duration time.Duration

var _ pflag.Value = (*Duration)(nil)

// UnmarshalJSON 实现 json.Unmarshaler 接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.Set(s)
	}

	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*d = Duration(n)
		return nil
	}

	return fmt.Errorf("duration must be a string (e.g., \"30s\") or number (nanoseconds)")
}

// MarshalJSON 实现 json.Marshaler 接口
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Set 实现 pflag.Value
func (d *Duration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration string %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Type 实现 pflag.Value
func (d *Duration) Type() string {
	return "duration"
}

// Duration 返回底层的 time.Duration 值
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String 返回字符串表示
func (d Duration) String() string {
	return time.Duration(d).String()
}
