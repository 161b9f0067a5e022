package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Version MoQT 协议版本号
type Version uint64

const (
	// VersionDraft04 draft-ietf-moq-transport-04
	VersionDraft04 Version = 0xff000004
	// VersionDraft05 draft-ietf-moq-transport-05
	VersionDraft05 Version = 0xff000005

	// DefaultVersion 默认协商版本
	DefaultVersion = VersionDraft04
)

// String 返回版本的十六进制表示
func (v Version) String() string {
	return fmt.Sprintf("0x%x", uint64(v))
}

// MarshalText 实现 encoding.TextMarshaler
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := ParseVersion(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVersion 解析版本号
//
// 接受 "draft-NN"、十六进制 "0x..." 或十进制。
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, ok := strings.CutPrefix(s, "draft-"); ok {
		d, err := strconv.ParseUint(n, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		return Version(0xff000000 | d), nil
	}

	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	return Version(n), nil
}
