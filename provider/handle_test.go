package provider

import (
	"sync/atomic"
	"temporal-sa/crypto-provider/cryptoerr"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_DuplicateAndRelease(t *testing.T) {
	var closed atomic.Int32
	h := newHandle(AlgorithmSHA256, "primary", FlagNone, &fakeHasher{algorithm: AlgorithmSHA256, closed: &closed})

	dup, err := h.Duplicate()
	require.NoError(t, err)
	assert.Equal(t, "primary/SHA256", dup.String())

	require.NoError(t, h.Close())
	assert.True(t, h.IsClosed())
	assert.False(t, dup.IsClosed())
	assert.Equal(t, int32(0), closed.Load())

	// idempotent
	require.NoError(t, h.Close())
	assert.Equal(t, int32(0), closed.Load())

	require.NoError(t, dup.Close())
	assert.Equal(t, int32(1), closed.Load())
}

func TestHandle_UseAfterClose(t *testing.T) {
	var closed atomic.Int32
	h := newHandle(AlgorithmSHA256, "primary", FlagNone, &fakeHasher{algorithm: AlgorithmSHA256, closed: &closed})
	require.NoError(t, h.Close())

	_, err := h.Engine()
	assert.ErrorIs(t, err, cryptoerr.ErrInvalidState)

	_, err = h.Duplicate()
	assert.ErrorIs(t, err, cryptoerr.ErrInvalidState)

	_, err = As[Hasher](h)
	assert.ErrorIs(t, err, cryptoerr.ErrInvalidState)
}

func TestAs_MissingCapability(t *testing.T) {
	var closed atomic.Int32
	h := newHandle(AlgorithmSHA256, "primary", FlagNone, &fakeHasher{algorithm: AlgorithmSHA256, closed: &closed})
	defer h.Close()

	_, err := As[BlockCipher](h)
	assert.ErrorIs(t, err, cryptoerr.ErrPlatformUnsupported)

	_, err = As[Hasher](nil)
	assert.ErrorIs(t, err, cryptoerr.ErrArgumentNull)
}

func TestKeySizes(t *testing.T) {
	aes := []KeySizes{{MinSize: 128, MaxSize: 256, SkipSize: 64}}
	assert.True(t, ValidKeySize(128, aes))
	assert.True(t, ValidKeySize(192, aes))
	assert.True(t, ValidKeySize(256, aes))
	assert.False(t, ValidKeySize(160, aes))
	assert.False(t, ValidKeySize(512, aes))

	fixed := KeySizes{MinSize: 64, MaxSize: 64}
	assert.True(t, fixed.Contains(64))
	assert.False(t, fixed.Contains(56))
}

func TestChainingModeString(t *testing.T) {
	assert.Equal(t, "CBC", ChainingCBC.String())
	assert.Equal(t, "CFB", ChainingCFB.String())
	assert.Equal(t, "ChainingMode(42)", ChainingMode(42).String())
}
