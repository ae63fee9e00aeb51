package hashutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/spec-harvester/pkg/hashutil"
)

func TestHashBytes(t *testing.T) {
	data := []byte("razer viper v3")

	sha, err := hashutil.HashBytes(data, hashutil.HashAlgoSHA256)
	require.NoError(t, err)
	assert.Len(t, sha, 64)

	blake, err := hashutil.HashBytes(data, hashutil.HashAlgoBLAKE3)
	require.NoError(t, err)
	assert.Len(t, blake, 64)
	assert.NotEqual(t, sha, blake)

	again, err := hashutil.HashBytes(data, hashutil.HashAlgoBLAKE3)
	require.NoError(t, err)
	assert.Equal(t, blake, again, "hashing is deterministic")

	_, err = hashutil.HashBytes(data, "md5")
	assert.Error(t, err)
}

func TestShortHash(t *testing.T) {
	hash := hashutil.ShortHash("products/p1||razer viper specs", 16)
	assert.Len(t, hash, 16)
	assert.Equal(t, hash, hashutil.ShortHash("products/p1||razer viper specs", 16))
	assert.NotEqual(t, hash, hashutil.ShortHash("products/p2||razer viper specs", 16))

	full := hashutil.ShortHash("x", 1000)
	assert.Len(t, full, 64, "length is capped at the digest size")
}
