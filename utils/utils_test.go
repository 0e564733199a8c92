package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCeilDiv(t *testing.T) {
	require.Equal(t, 1, CeilDiv(1, 1152))
	require.Equal(t, 1, CeilDiv(1152, 1152))
	require.Equal(t, 2, CeilDiv(1153, 1152))
	require.Equal(t, 27, CeilDiv(27*1152, 1152))
	require.Equal(t, 28, CeilDiv(27*1152+1, 1152))
}

func TestSetRandStringBytes(t *testing.T) {
	data := make([]byte, 64)
	SetRandStringBytes(data)
	for _, c := range data {
		require.NotZero(t, c)
	}
}
