package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-moqt/pkg/types"
)

// 字段编号
const (
	fieldClientVersions   protowire.Number = 1
	fieldClientParameters protowire.Number = 2

	fieldServerVersion    protowire.Number = 1
	fieldServerParameters protowire.Number = 2

	fieldParamPath protowire.Number = 1
	fieldParamRole protowire.Number = 2

	fieldLocationGroup  protowire.Number = 1
	fieldLocationObject protowire.Number = 2

	fieldSubscribeID        protowire.Number = 1
	fieldSubscribeAlias     protowire.Number = 2
	fieldSubscribeNamespace protowire.Number = 3
	fieldSubscribeName      protowire.Number = 4
	fieldSubscribeFilter    protowire.Number = 5
	fieldSubscribeStart     protowire.Number = 6
	fieldSubscribeEnd       protowire.Number = 7

	fieldOkID      protowire.Number = 1
	fieldOkExpires protowire.Number = 2

	fieldErrID     protowire.Number = 1
	fieldErrCode   protowire.Number = 2
	fieldErrReason protowire.Number = 3

	fieldObjectSubscribeID protowire.Number = 1
	fieldObjectAlias       protowire.Number = 2
	fieldObjectGroup       protowire.Number = 3
	fieldObjectID          protowire.Number = 4
	fieldObjectPriority    protowire.Number = 5
	fieldObjectPayload     protowire.Number = 6
)

// ============================================================================
//                              编码辅助
// ============================================================================

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendLocation(b []byte, num protowire.Number, l Location) []byte {
	var inner []byte
	inner = appendVarintField(inner, fieldLocationGroup, l.Group)
	inner = appendVarintField(inner, fieldLocationObject, l.Object)
	return appendBytesField(b, num, inner)
}

// ============================================================================
//                              解码辅助
// ============================================================================

// fieldFunc 处理一个字段，返回消费的字节数；返回 0 表示未知字段
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// consumeFields 遍历消息体中的所有字段，未知字段被跳过
func consumeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed("tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return malformed("field %d: %v", num, protowire.ParseError(m))
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(num protowire.Number, typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, malformed("field %d: want varint, got wire type %d", num, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, malformed("field %d: %v", num, protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeBytes(num protowire.Number, typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, malformed("field %d: want bytes, got wire type %d", num, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, malformed("field %d: %v", num, protowire.ParseError(n))
	}
	return v, n, nil
}

func decodeLocation(b []byte) (*Location, error) {
	l := &Location{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldLocationGroup:
			v, n, err := consumeVarint(num, typ, b)
			l.Group = v
			return n, err
		case fieldLocationObject:
			v, n, err := consumeVarint(num, typ, b)
			l.Object = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ============================================================================
//                              ClientSetup
// ============================================================================

func (m *ClientSetup) appendBody(b []byte) []byte {
	for _, v := range m.SupportedVersions {
		b = appendVarintField(b, fieldClientVersions, uint64(v))
	}
	for _, p := range m.Parameters {
		var inner []byte
		inner = appendStringField(inner, fieldParamPath, p.Path)
		inner = appendVarintField(inner, fieldParamRole, uint64(p.Role))
		b = appendBytesField(b, fieldClientParameters, inner)
	}
	return b
}

func (m *ClientSetup) decodeBody(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldClientVersions:
			// 兼容 packed 编码
			if typ == protowire.BytesType {
				packed, n, err := consumeBytes(num, typ, b)
				if err != nil {
					return 0, err
				}
				for len(packed) > 0 {
					v, k := protowire.ConsumeVarint(packed)
					if k < 0 {
						return 0, malformed("packed versions: %v", protowire.ParseError(k))
					}
					m.SupportedVersions = append(m.SupportedVersions, types.Version(v))
					packed = packed[k:]
				}
				return n, nil
			}
			v, n, err := consumeVarint(num, typ, b)
			if err != nil {
				return 0, err
			}
			m.SupportedVersions = append(m.SupportedVersions, types.Version(v))
			return n, nil

		case fieldClientParameters:
			raw, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			var p ClientSetupParameters
			err = consumeFields(raw, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch num {
				case fieldParamPath:
					v, n, err := consumeBytes(num, typ, b)
					p.Path = string(v)
					return n, err
				case fieldParamRole:
					v, n, err := consumeVarint(num, typ, b)
					p.Role = types.Role(v)
					return n, err
				}
				return 0, nil
			})
			if err != nil {
				return 0, err
			}
			m.Parameters = append(m.Parameters, p)
			return n, nil
		}
		return 0, nil
	})
}

// ============================================================================
//                              ServerSetup
// ============================================================================

func (m *ServerSetup) appendBody(b []byte) []byte {
	if m.SelectedVersion != 0 {
		b = appendVarintField(b, fieldServerVersion, uint64(m.SelectedVersion))
	}
	for _, p := range m.Parameters {
		var inner []byte
		inner = appendVarintField(inner, fieldParamRole, uint64(p.Role))
		b = appendBytesField(b, fieldServerParameters, inner)
	}
	return b
}

func (m *ServerSetup) decodeBody(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldServerVersion:
			v, n, err := consumeVarint(num, typ, b)
			m.SelectedVersion = types.Version(v)
			return n, err

		case fieldServerParameters:
			raw, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			var p ServerSetupParameters
			err = consumeFields(raw, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				if num == fieldParamRole {
					v, n, err := consumeVarint(num, typ, b)
					p.Role = types.Role(v)
					return n, err
				}
				return 0, nil
			})
			if err != nil {
				return 0, err
			}
			m.Parameters = append(m.Parameters, p)
			return n, nil
		}
		return 0, nil
	})
}

// ============================================================================
//                              Subscribe
// ============================================================================

func (m *Subscribe) appendBody(b []byte) []byte {
	b = appendVarintField(b, fieldSubscribeID, m.SubscribeID)
	b = appendVarintField(b, fieldSubscribeAlias, m.TrackAlias)
	b = appendStringField(b, fieldSubscribeNamespace, m.TrackNamespace)
	b = appendStringField(b, fieldSubscribeName, m.TrackName)
	b = appendVarintField(b, fieldSubscribeFilter, uint64(m.Filter))
	if m.Start != nil {
		b = appendLocation(b, fieldSubscribeStart, *m.Start)
	}
	if m.End != nil {
		b = appendLocation(b, fieldSubscribeEnd, *m.End)
	}
	return b
}

func (m *Subscribe) decodeBody(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldSubscribeID:
			v, n, err := consumeVarint(num, typ, b)
			m.SubscribeID = v
			return n, err
		case fieldSubscribeAlias:
			v, n, err := consumeVarint(num, typ, b)
			m.TrackAlias = v
			return n, err
		case fieldSubscribeNamespace:
			v, n, err := consumeBytes(num, typ, b)
			m.TrackNamespace = string(v)
			return n, err
		case fieldSubscribeName:
			v, n, err := consumeBytes(num, typ, b)
			m.TrackName = string(v)
			return n, err
		case fieldSubscribeFilter:
			v, n, err := consumeVarint(num, typ, b)
			m.Filter = types.FilterType(v)
			return n, err
		case fieldSubscribeStart, fieldSubscribeEnd:
			raw, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			loc, err := decodeLocation(raw)
			if err != nil {
				return 0, err
			}
			if num == fieldSubscribeStart {
				m.Start = loc
			} else {
				m.End = loc
			}
			return n, nil
		}
		return 0, nil
	})
}

// ============================================================================
//                              SubscribeOk / SubscribeError
// ============================================================================

func (m *SubscribeOk) appendBody(b []byte) []byte {
	b = appendVarintField(b, fieldOkID, m.SubscribeID)
	return appendVarintField(b, fieldOkExpires, m.Expires)
}

func (m *SubscribeOk) decodeBody(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldOkID:
			v, n, err := consumeVarint(num, typ, b)
			m.SubscribeID = v
			return n, err
		case fieldOkExpires:
			v, n, err := consumeVarint(num, typ, b)
			m.Expires = v
			return n, err
		}
		return 0, nil
	})
}

func (m *SubscribeError) appendBody(b []byte) []byte {
	b = appendVarintField(b, fieldErrID, m.SubscribeID)
	b = appendVarintField(b, fieldErrCode, m.Code)
	return appendStringField(b, fieldErrReason, m.Reason)
}

func (m *SubscribeError) decodeBody(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldErrID:
			v, n, err := consumeVarint(num, typ, b)
			m.SubscribeID = v
			return n, err
		case fieldErrCode:
			v, n, err := consumeVarint(num, typ, b)
			m.Code = v
			return n, err
		case fieldErrReason:
			v, n, err := consumeBytes(num, typ, b)
			m.Reason = string(v)
			return n, err
		}
		return 0, nil
	})
}

// ============================================================================
//                              ObjectStream
// ============================================================================

func (m *ObjectStream) appendBody(b []byte) []byte {
	b = appendVarintField(b, fieldObjectSubscribeID, m.SubscribeID)
	b = appendVarintField(b, fieldObjectAlias, m.TrackAlias)
	b = appendVarintField(b, fieldObjectGroup, m.GroupID)
	b = appendVarintField(b, fieldObjectID, m.ObjectID)
	b = appendVarintField(b, fieldObjectPriority, uint64(m.PublisherPriority))
	return appendBytesField(b, fieldObjectPayload, m.Payload)
}

func (m *ObjectStream) decodeBody(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldObjectSubscribeID:
			v, n, err := consumeVarint(num, typ, b)
			m.SubscribeID = v
			return n, err
		case fieldObjectAlias:
			v, n, err := consumeVarint(num, typ, b)
			m.TrackAlias = v
			return n, err
		case fieldObjectGroup:
			v, n, err := consumeVarint(num, typ, b)
			m.GroupID = v
			return n, err
		case fieldObjectID:
			v, n, err := consumeVarint(num, typ, b)
			m.ObjectID = v
			return n, err
		case fieldObjectPriority:
			v, n, err := consumeVarint(num, typ, b)
			if err == nil && v > 0xff {
				return 0, malformed("publisher priority %d out of range", v)
			}
			m.PublisherPriority = uint8(v)
			return n, err
		case fieldObjectPayload:
			v, n, err := consumeBytes(num, typ, b)
			m.Payload = v
			return n, err
		}
		return 0, nil
	})
}
