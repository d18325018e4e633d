package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/crypto/bcrypt"
)

func Test_BcryptHasher(t *testing.T) {
	t.Parallel()

	hasher := BcryptHasher{Cost: bcrypt.MinCost}

	t.Run("hash and compare ok", func(t *testing.T) {
		hash, err := hasher.Hash("StrongEnoughPassword")

		require.NoError(t, err)
		require.NotEmpty(t, hash)
		require.NotContains(t, hash, "StrongEnoughPassword", "hash should not contain the password")
		require.NoError(t, hasher.Compare(hash, "StrongEnoughPassword"))
	})

	t.Run("compare wrong password fails", func(t *testing.T) {
		hash, err := hasher.Hash("StrongEnoughPassword")
		require.NoError(t, err)

		require.Error(t, hasher.Compare(hash, "WrongPassword"))
	})

	t.Run("same password different hashes", func(t *testing.T) {
		hash1, err := hasher.Hash("StrongEnoughPassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("StrongEnoughPassword")
		require.NoError(t, err)

		assert.NotEqual(t, hash1, hash2, "bcrypt salts should differ between hashes")
	})

	t.Run("long passwords not truncated", func(t *testing.T) {
		// bcrypt alone ignores everything after 72 bytes, the sha256
		// pre-hash has to keep long passwords distinguishable
		long := strings.Repeat("a", 72)
		hash, err := hasher.Hash(long + "suffix-one")
		require.NoError(t, err)

		require.NoError(t, hasher.Compare(hash, long+"suffix-one"))
		require.Error(t, hasher.Compare(hash, long+"suffix-two"))
	})

	t.Run("zero cost uses library default", func(t *testing.T) {
		h := BcryptHasher{}
		require.Equal(t, bcrypt.DefaultCost, h.cost())
	})
}
