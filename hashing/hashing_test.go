package hashing

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/engine"
	"temporal-sa/crypto-provider/provider"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *provider.Manager {
	t.Helper()
	registry, err := engine.NewDefaultRegistry()
	require.NoError(t, err)
	manager, err := provider.NewManager(registry, provider.ManagerOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestSHA256Empty(t *testing.T) {
	manager := newManager(t)

	ctx, err := New(manager, provider.AlgorithmSHA256, "")
	require.NoError(t, err)
	defer ctx.Close()

	assert.Equal(t, StateReady, ctx.State())
	sum, err := ctx.Final()
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hex.EncodeToString(sum))
	assert.Equal(t, StateFinalized, ctx.State())
}

func TestIncrementalEqualsOneShot(t *testing.T) {
	manager := newManager(t)
	data := []byte(strings.Repeat("incremental hashing must match one shot ", 50))

	for _, algorithm := range []string{
		provider.AlgorithmMD5,
		provider.AlgorithmSHA1,
		provider.AlgorithmSHA256,
		provider.AlgorithmSHA384,
		provider.AlgorithmSHA512,
		provider.AlgorithmSHA3_256,
		provider.AlgorithmSM3,
	} {
		t.Run(algorithm, func(t *testing.T) {
			ctx, err := New(manager, algorithm, "")
			require.NoError(t, err)
			defer ctx.Close()

			oneShot, err := ctx.HashData(data)
			require.NoError(t, err)
			assert.Len(t, oneShot, ctx.DigestSize())

			require.NoError(t, ctx.Initialize())
			for _, split := range []struct{ off, n int }{{0, 7}, {7, 0}, {7, 1000}, {1007, len(data) - 1007}} {
				require.NoError(t, ctx.Update(data, split.off, split.n))
			}
			incremental, err := ctx.Final()
			require.NoError(t, err)

			assert.Equal(t, oneShot, incremental)
		})
	}
}

func TestStateMachine(t *testing.T) {
	manager := newManager(t)

	ctx, err := New(manager, provider.AlgorithmSHA256, "")
	require.NoError(t, err)
	defer ctx.Close()

	require.NoError(t, ctx.Update([]byte("abc"), 0, 3))
	assert.Equal(t, StateAccumulating, ctx.State())

	_, err = ctx.Final()
	require.NoError(t, err)

	err = ctx.Update([]byte("more"), 0, 4)
	assert.ErrorIs(t, err, cryptoerr.ErrInvalidState)

	_, err = ctx.Final()
	assert.ErrorIs(t, err, cryptoerr.ErrInvalidState)

	require.NoError(t, ctx.Initialize())
	assert.Equal(t, StateReady, ctx.State())
	require.NoError(t, ctx.Update([]byte("abc"), 0, 3))
}

func TestUpdateBounds(t *testing.T) {
	manager := newManager(t)

	ctx, err := New(manager, provider.AlgorithmSHA1, "")
	require.NoError(t, err)
	defer ctx.Close()

	buf := make([]byte, 8)
	tests := []struct {
		name     string
		buf      []byte
		offset   int
		length   int
		expected error
	}{
		{"negative offset", buf, -1, 2, cryptoerr.ErrArgumentRange},
		{"negative length", buf, 0, -2, cryptoerr.ErrArgumentRange},
		{"offset past end", buf, 9, 0, cryptoerr.ErrArgumentRange},
		{"length past end", buf, 4, 5, cryptoerr.ErrArgumentRange},
		{"nil buffer", nil, 0, 1, cryptoerr.ErrArgumentNull},
		{"exact fit", buf, 4, 4, nil},
		{"empty at end", buf, 8, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ctx.Update(tt.buf, tt.offset, tt.length)
			if tt.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestFinalReturnsFreshBuffer(t *testing.T) {
	manager := newManager(t)

	ctx, err := New(manager, provider.AlgorithmSHA256, "")
	require.NoError(t, err)
	defer ctx.Close()

	first, err := ctx.HashData([]byte("x"))
	require.NoError(t, err)
	copyOfFirst := append([]byte(nil), first...)

	second, err := ctx.HashData([]byte("y"))
	require.NoError(t, err)

	assert.Equal(t, copyOfFirst, first)
	assert.NotEqual(t, first, second)
}

type chunkRecorder struct {
	r     io.Reader
	sizes []int
}

func (c *chunkRecorder) Read(p []byte) (int, error) {
	c.sizes = append(c.sizes, len(p))
	return c.r.Read(p)
}

func TestHashStream(t *testing.T) {
	manager := newManager(t)
	data := bytes.Repeat([]byte{0xAB}, 3*StreamChunkSize+17)

	ctx, err := New(manager, provider.AlgorithmSHA512, "")
	require.NoError(t, err)
	defer ctx.Close()

	expected, err := ctx.HashData(data)
	require.NoError(t, err)

	reader := &chunkRecorder{r: bytes.NewReader(data)}
	streamed, err := ctx.HashStream(reader)
	require.NoError(t, err)
	assert.Equal(t, expected, streamed)
	for _, size := range reader.sizes {
		assert.Equal(t, StreamChunkSize, size)
	}

	_, err = ctx.HashStream(nil)
	assert.ErrorIs(t, err, cryptoerr.ErrArgumentNull)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestHashStreamReadError(t *testing.T) {
	manager := newManager(t)

	ctx, err := New(manager, provider.AlgorithmSHA256, "")
	require.NoError(t, err)
	defer ctx.Close()

	_, err = ctx.HashStream(failingReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestHMAC(t *testing.T) {
	manager := newManager(t)

	key := []byte("key")
	ctx, err := NewHMAC(manager, provider.AlgorithmSHA256, "", key)
	require.NoError(t, err)
	defer ctx.Close()

	key[0] = 'x' // the context holds its own copy

	_, err = io.WriteString(ctx, "The quick brown fox jumps over the lazy dog")
	require.NoError(t, err)
	mac, err := ctx.Final()
	require.NoError(t, err)
	assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", hex.EncodeToString(mac))
}

func TestNewErrors(t *testing.T) {
	manager := newManager(t)

	_, err := New(manager, "WHIRLPOOL", "")
	assert.ErrorIs(t, err, cryptoerr.ErrUnsupportedAlgorithm)

	_, err = New(manager, provider.AlgorithmAES, "")
	assert.ErrorIs(t, err, cryptoerr.ErrPlatformUnsupported)
}

func TestCloseReleasesHandle(t *testing.T) {
	manager := newManager(t)

	h, err := manager.Acquire(provider.AlgorithmSHA256, "", provider.FlagNone)
	require.NoError(t, err)
	defer h.Close()

	ctx, err := NewFromHandle(h)
	require.NoError(t, err)
	require.NoError(t, ctx.Close())

	assert.False(t, h.IsClosed())
	assert.ErrorIs(t, ctx.Initialize(), cryptoerr.ErrInvalidState)
	assert.ErrorIs(t, ctx.Update([]byte("a"), 0, 1), cryptoerr.ErrInvalidState)
}
