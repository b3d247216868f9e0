package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandBytes(t *testing.T) {
	b1, err := RandBytes(32)
	require.NoError(t, err)
	require.Len(t, b1, 32)

	b2, err := RandBytes(32)
	require.NoError(t, err)
	assert.NotEqual(t, b1, b2)
}

func TestMakeRandHexString(t *testing.T) {
	s, err := MakeRandHexString(16)
	require.NoError(t, err)
	assert.Len(t, s, 32)
	assert.Regexp(t, "^[0-9a-f]+$", s)
}

func TestWipeByteArray(t *testing.T) {
	b := []byte{1, 2, 3}
	WipeByteArray(b)
	assert.Equal(t, []byte{0, 0, 0}, b)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}
