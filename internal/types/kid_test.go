package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKID(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		seq    int64
		want   string
		ok     bool
	}{
		{"first sequence value", TypePrefix, 1, "0020000000001", true},
		{"zero", UserPrefix, 0, "0040000000000", true},
		{"base36 carry", TypePrefix, 36, "0020000000010", true},
		{"large value", TypePrefix, 36*36 + 35, "00200000001" + "0z", true},
		{"bad prefix length", "00", 1, "", false},
		{"negative sequence", TypePrefix, -1, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewKID(tt.prefix, tt.seq)
			if !tt.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, KID(tt.want), got)
			assert.Len(t, got.String(), KIDLength)
		})
	}
}

func TestParseKID(t *testing.T) {
	id, err := ParseKID("0020000000001")
	require.NoError(t, err)
	assert.Equal(t, TypePrefix, id.Prefix())

	_, err = ParseKID("002000")
	assert.Error(t, err, "short identifier must be rejected")

	_, err = ParseKID("002000000000!")
	assert.Error(t, err, "invalid characters must be rejected")
}

func TestKIDIsNil(t *testing.T) {
	assert.True(t, NilKID.IsNil())

	id, err := NewKID(ProfilePrefix, 7)
	require.NoError(t, err)
	assert.False(t, id.IsNil())
}
