package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateJWTSecret(t *testing.T) {
	first, err := GenerateJWTSecret()
	require.NoError(t, err)
	second, err := GenerateJWTSecret()
	require.NoError(t, err)

	assert.Len(t, first, 64)
	assert.NotEqual(t, first, second)
}
