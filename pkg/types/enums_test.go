package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole(t *testing.T) {
	tests := []struct {
		role         Role
		str          string
		valid        bool
		canSubscribe bool
		canPublish   bool
	}{
		{RoleUnknown, "unknown", false, false, false},
		{RolePublisher, "publisher", true, false, true},
		{RoleSubscriber, "subscriber", true, true, false},
		{RolePubSub, "pubsub", true, true, true},
		{Role(9), "unknown", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.str, tt.role.String())
			assert.Equal(t, tt.valid, tt.role.Valid())
			assert.Equal(t, tt.canSubscribe, tt.role.CanSubscribe())
			assert.Equal(t, tt.canPublish, tt.role.CanPublish())
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("sub")
	require.NoError(t, err)
	assert.Equal(t, RoleSubscriber, r)

	r, err = ParseRole("both")
	require.NoError(t, err)
	assert.Equal(t, RolePubSub, r)

	_, err = ParseRole("observer")
	assert.True(t, errors.Is(err, ErrInvalidRole))
}

func TestFilterType_String(t *testing.T) {
	assert.Equal(t, "absolute-range", FilterAbsoluteRange.String())
	assert.Equal(t, "unknown", FilterType(42).String())
}

func TestVersion_String(t *testing.T) {
	assert.Equal(t, "0xff000004", VersionDraft04.String())
}

func TestParseFilterType(t *testing.T) {
	f, err := ParseFilterType("latest-object")
	require.NoError(t, err)
	assert.Equal(t, FilterLatestObject, f)

	_, err = ParseFilterType("unknown")
	assert.True(t, errors.Is(err, ErrInvalidFilter))
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want Version
		ok   bool
	}{
		{"draft-04", VersionDraft04, true},
		{"DRAFT-05", VersionDraft05, true},
		{"0xff000004", VersionDraft04, true},
		{"7", Version(7), true},
		{"0", 0, false},
		{"draft-x", 0, false},
		{"latest", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseVersion(tt.in)
			if !tt.ok {
				assert.True(t, errors.Is(err, ErrInvalidVersion))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestVersion_JSON(t *testing.T) {
	in := []Version{VersionDraft04, VersionDraft05}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `["0xff000004","0xff000005"]`, string(b))

	var out []Version
	require.NoError(t, json.Unmarshal([]byte(`["draft-04","0xff000005"]`), &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`["nope"]`), &out))
}
