package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifySecret(t *testing.T) {
	hash, err := HashSecret("admin-token-1")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.True(t, VerifySecret(hash, "admin-token-1"))
	assert.False(t, VerifySecret(hash, "wrong-token"))
	assert.False(t, VerifySecret("not-a-hash", "admin-token-1"))
}
