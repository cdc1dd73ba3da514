package engine

import (
	"encoding/hex"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/engine/gm"
	"temporal-sa/crypto-provider/engine/legacy"
	"temporal-sa/crypto-provider/engine/primitive"
	"temporal-sa/crypto-provider/provider"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *provider.Manager {
	t.Helper()
	registry, err := NewDefaultRegistry()
	require.NoError(t, err)
	manager, err := provider.NewManager(registry, provider.ManagerOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func digest(t *testing.T, manager *provider.Manager, algorithm, implementation string, data []byte) string {
	t.Helper()
	h, err := manager.Acquire(algorithm, implementation, provider.FlagNone)
	require.NoError(t, err)
	defer h.Close()

	hasher, err := provider.As[provider.Hasher](h)
	require.NoError(t, err)
	state, err := hasher.NewHash()
	require.NoError(t, err)
	state.Write(data)
	return hex.EncodeToString(state.Sum(nil))
}

func TestDefaultRegistry_Routing(t *testing.T) {
	manager := newManager(t)

	tests := []struct {
		algorithm      string
		implementation string
	}{
		{provider.AlgorithmSHA256, primitive.ProviderName},
		{provider.AlgorithmAES, primitive.ProviderName},
		{provider.AlgorithmRSA, primitive.ProviderName},
		{provider.AlgorithmECDHP521, primitive.ProviderName},
		{provider.AlgorithmMD5, legacy.ProviderName},
		{provider.AlgorithmDES, legacy.ProviderName},
		{provider.AlgorithmSM3, gm.ProviderName},
		{provider.AlgorithmSM4, gm.ProviderName},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			h, err := manager.Acquire(tt.algorithm, "", provider.FlagNone)
			require.NoError(t, err)
			defer h.Close()
			assert.Equal(t, tt.implementation, h.Implementation())
		})
	}

	assert.Equal(t, []string{primitive.ProviderName, legacy.ProviderName, gm.ProviderName}, manager.Registry().Providers())
}

func TestKnownDigests(t *testing.T) {
	manager := newManager(t)

	tests := []struct {
		name           string
		algorithm      string
		implementation string
		input          string
		expected       string
	}{
		{"sha256 empty primitive", provider.AlgorithmSHA256, primitive.ProviderName, "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"sha256 empty legacy", provider.AlgorithmSHA256, legacy.ProviderName, "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"md5 abc", provider.AlgorithmMD5, "", "abc", "900150983cd24fb0d6963f7d28e17f72"},
		{"sha1 abc", provider.AlgorithmSHA1, "", "abc", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"sha3-256 empty", provider.AlgorithmSHA3_256, "", "", "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"},
		{"sm3 abc", provider.AlgorithmSM3, "", "abc", "66c7f0f462eeedd9d1f2d46bdc10e4e24167c4875cf2f7a2297da02b8f4ba8e0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, digest(t, manager, tt.algorithm, tt.implementation, []byte(tt.input)))
		})
	}
}

func TestSM4KnownAnswer(t *testing.T) {
	manager := newManager(t)

	h, err := manager.Acquire(provider.AlgorithmSM4, "", provider.FlagNone)
	require.NoError(t, err)
	defer h.Close()

	engine, err := provider.As[provider.BlockCipher](h)
	require.NoError(t, err)

	keyBytes, _ := hex.DecodeString("0123456789abcdeffedcba9876543210")
	key, err := engine.ImportKey(keyBytes)
	require.NoError(t, err)
	defer key.Close()
	require.NoError(t, key.SetChaining(provider.ChainingECB, 0))

	buf := append([]byte(nil), keyBytes...)
	require.NoError(t, key.Encrypt(buf, true))
	assert.Equal(t, "681edf34d206965e86b3e94f536e4246", hex.EncodeToString(buf))
}

func TestChainingSupportDiffers(t *testing.T) {
	manager := newManager(t)

	for _, tt := range []struct {
		implementation string
		ofb            bool
		cfbFull        bool
	}{
		{primitive.ProviderName, false, true},
		{legacy.ProviderName, true, false},
	} {
		t.Run(tt.implementation, func(t *testing.T) {
			h, err := manager.Acquire(provider.AlgorithmAES, tt.implementation, provider.FlagNone)
			require.NoError(t, err)
			defer h.Close()

			engine, err := provider.As[provider.BlockCipher](h)
			require.NoError(t, err)
			assert.Equal(t, tt.ofb, engine.SupportsChaining(provider.ChainingOFB, 16))
			assert.Equal(t, tt.cfbFull, engine.SupportsChaining(provider.ChainingCFB, 16))
			assert.True(t, engine.SupportsChaining(provider.ChainingCFB, 1))
		})
	}
}

func TestOpenErrors(t *testing.T) {
	manager := newManager(t)

	_, err := manager.Acquire(provider.AlgorithmAES, "", provider.FlagHMAC)
	assert.ErrorIs(t, err, cryptoerr.ErrProviderError)

	_, err = manager.Acquire(provider.AlgorithmRSA, legacy.ProviderName, provider.FlagNone)
	assert.ErrorIs(t, err, cryptoerr.ErrPlatformUnsupported)

	_, err = legacy.Open("RC4", provider.FlagNone)
	assert.ErrorIs(t, err, cryptoerr.ErrPlatformUnsupported)
	_, err = gm.Open("SM2", provider.FlagNone)
	assert.ErrorIs(t, err, cryptoerr.ErrPlatformUnsupported)
	_, err = primitive.Open("DSA", provider.FlagNone)
	assert.ErrorIs(t, err, cryptoerr.ErrPlatformUnsupported)
}

func TestCapabilities(t *testing.T) {
	manager := newManager(t)

	rsaHandle, err := manager.Acquire(provider.AlgorithmRSA, "", provider.FlagNone)
	require.NoError(t, err)
	defer rsaHandle.Close()
	_, err = provider.As[provider.SignatureEngine](rsaHandle)
	assert.NoError(t, err)
	_, err = provider.As[provider.AsymmetricCipher](rsaHandle)
	assert.NoError(t, err)

	ecdhHandle, err := manager.Acquire(provider.AlgorithmECDHP256, "", provider.FlagNone)
	require.NoError(t, err)
	defer ecdhHandle.Close()
	_, err = provider.As[provider.AgreementEngine](ecdhHandle)
	assert.NoError(t, err)
	_, err = provider.As[provider.SignatureEngine](ecdhHandle)
	assert.ErrorIs(t, err, cryptoerr.ErrPlatformUnsupported)

	macHandle, err := manager.Acquire(provider.AlgorithmSHA256, "", provider.FlagHMAC)
	require.NoError(t, err)
	defer macHandle.Close()
	_, err = provider.As[provider.MACHasher](macHandle)
	assert.NoError(t, err)
}
