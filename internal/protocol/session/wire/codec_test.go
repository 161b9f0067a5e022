package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/quic-go/quic-go/quicvarint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-moqt/pkg/types"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	b, err := Marshal(m)
	require.NoError(t, err)

	got, err := ReadMessage(bytes.NewReader(b), DefaultLimits())
	require.NoError(t, err)
	require.Equal(t, m.Type(), got.Type())
	return got
}

func TestClientSetup_PreservesPositionalCorrelation(t *testing.T) {
	in := &ClientSetup{
		SupportedVersions: []types.Version{1, 2, 3},
		Parameters: []ClientSetupParameters{
			{Path: "/a", Role: types.RoleSubscriber},
			{Path: "/b", Role: types.RolePublisher},
			{Path: "/c", Role: types.RoleSubscriber},
		},
	}

	got := roundTrip(t, in).(*ClientSetup)
	assert.Equal(t, in, got)

	k := got.IndexOf(2)
	require.Equal(t, 1, k)
	p, err := got.Offer(k)
	require.NoError(t, err)
	assert.Equal(t, "/b", p.Path)
	assert.Equal(t, types.RolePublisher, p.Role)
}

func TestClientSetup_Offer(t *testing.T) {
	m := &ClientSetup{
		SupportedVersions: []types.Version{7, 8},
		Parameters:        []ClientSetupParameters{{Path: "/x"}},
	}

	assert.Equal(t, -1, m.IndexOf(9))
	assert.Equal(t, 0, m.IndexOf(7))

	_, err := m.Offer(1)
	assert.True(t, errors.Is(err, ErrParameterIndex))
	_, err = m.Offer(-1)
	assert.True(t, errors.Is(err, ErrParameterIndex))
}

func TestClientSetup_PackedVersions(t *testing.T) {
	var packed []byte
	packed = protowire.AppendVarint(packed, 5)
	packed = protowire.AppendVarint(packed, 6)

	var body []byte
	body = protowire.AppendTag(body, fieldClientVersions, protowire.BytesType)
	body = protowire.AppendBytes(body, packed)

	m, err := Decode(Frame{Type: TypeClientSetup, Body: body})
	require.NoError(t, err)
	assert.Equal(t, []types.Version{5, 6}, m.(*ClientSetup).SupportedVersions)
}

func TestServerSetup_RoundTrip(t *testing.T) {
	in := &ServerSetup{
		SelectedVersion: types.VersionDraft04,
		Parameters:      []ServerSetupParameters{{Role: types.RolePublisher}},
	}
	assert.Equal(t, in, roundTrip(t, in))

	// 未携带版本
	bare := &ServerSetup{Parameters: []ServerSetupParameters{{Role: types.RolePubSub}}}
	assert.Equal(t, bare, roundTrip(t, bare))
}

func TestSubscribe_RoundTrip(t *testing.T) {
	in := &Subscribe{
		SubscribeID:    9,
		TrackAlias:     3,
		TrackNamespace: "live",
		TrackName:      "video",
		Filter:         types.FilterAbsoluteRange,
		Start:          &Location{Group: 1, Object: 0},
		End:            &Location{Group: 4, Object: 2},
	}
	assert.Equal(t, in, roundTrip(t, in))

	latest := &Subscribe{SubscribeID: 1, TrackNamespace: "ns", TrackName: "n", Filter: types.FilterLatestGroup}
	got := roundTrip(t, latest).(*Subscribe)
	assert.Nil(t, got.Start)
	assert.Nil(t, got.End)
}

func TestSubscribeReplies_RoundTrip(t *testing.T) {
	ok := &SubscribeOk{SubscribeID: 4, Expires: 3000}
	assert.Equal(t, ok, roundTrip(t, ok))

	serr := &SubscribeError{SubscribeID: 4, Code: 2, Reason: "no such track"}
	assert.Equal(t, serr, roundTrip(t, serr))
}

func TestObjectStream_RoundTrip(t *testing.T) {
	in := &ObjectStream{
		SubscribeID:       7,
		TrackAlias:        1,
		GroupID:           10,
		ObjectID:          3,
		PublisherPriority: 128,
		Payload:           []byte{0x01, 0x02},
	}
	assert.Equal(t, in, roundTrip(t, in))
}

func TestDecode_SkipsUnknownFields(t *testing.T) {
	var body []byte
	body = appendVarintField(body, fieldOkID, 11)
	body = appendStringField(body, 99, "future")
	body = appendVarintField(body, fieldOkExpires, 5)

	m, err := Decode(Frame{Type: TypeSubscribeOk, Body: body})
	require.NoError(t, err)
	assert.Equal(t, &SubscribeOk{SubscribeID: 11, Expires: 5}, m)
}

func TestDecode_Errors(t *testing.T) {
	t.Run("未知类型", func(t *testing.T) {
		_, err := Decode(Frame{Type: 0x7f})
		assert.True(t, errors.Is(err, ErrUnknownType))
	})

	t.Run("截断的字段", func(t *testing.T) {
		body := appendStringField(nil, fieldSubscribeNamespace, "namespace")
		_, err := Decode(Frame{Type: TypeSubscribe, Body: body[:len(body)-2]})
		assert.True(t, errors.Is(err, ErrMalformed))
	})

	t.Run("字段类型不匹配", func(t *testing.T) {
		body := appendStringField(nil, fieldObjectGroup, "x")
		_, err := Decode(Frame{Type: TypeObjectStream, Body: body})
		assert.True(t, errors.Is(err, ErrMalformed))
	})

	t.Run("优先级越界", func(t *testing.T) {
		body := appendVarintField(nil, fieldObjectPriority, 300)
		_, err := Decode(Frame{Type: TypeObjectStream, Body: body})
		assert.True(t, errors.Is(err, ErrMalformed))
	})
}

func TestReadFrame(t *testing.T) {
	t.Run("流结束于帧边界", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader(nil), DefaultLimits())
		assert.Equal(t, io.EOF, err)
	})

	t.Run("帧中途结束", func(t *testing.T) {
		b, err := Marshal(&SubscribeOk{SubscribeID: 1, Expires: 2})
		require.NoError(t, err)
		_, err = ReadFrame(bytes.NewReader(b[:len(b)-1]), DefaultLimits())
		assert.Equal(t, io.ErrUnexpectedEOF, err)
	})

	t.Run("超过大小限制", func(t *testing.T) {
		var b []byte
		b = quicvarint.Append(b, uint64(TypeObjectStream))
		b = quicvarint.Append(b, 4096)
		_, err := ReadFrame(bytes.NewReader(b), Limits{MaxMessageSize: 1024})
		assert.True(t, errors.Is(err, ErrMessageTooLarge))
	})

	t.Run("连续读取多个帧", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteMessage(&buf, &SubscribeOk{SubscribeID: 1}))
		require.NoError(t, WriteMessage(&buf, &SubscribeOk{SubscribeID: 2}))

		r := bytes.NewReader(buf.Bytes())
		for _, want := range []uint64{1, 2} {
			m, err := ReadMessage(r, DefaultLimits())
			require.NoError(t, err)
			assert.Equal(t, want, m.(*SubscribeOk).SubscribeID)
		}
		_, err := ReadMessage(r, DefaultLimits())
		assert.Equal(t, io.EOF, err)
	})
}

func TestMarshal_Nil(t *testing.T) {
	_, err := Marshal(nil)
	assert.Error(t, err)
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "CLIENT_SETUP", TypeClientSetup.String())
	assert.Equal(t, "UNKNOWN(0x7f)", MessageType(0x7f).String())
}

func TestLocation_Less(t *testing.T) {
	assert.True(t, Location{1, 5}.Less(Location{2, 0}))
	assert.True(t, Location{1, 1}.Less(Location{1, 2}))
	assert.False(t, Location{2, 0}.Less(Location{2, 0}))
}
