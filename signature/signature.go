// Package signature signs, verifies and (for RSA) encrypts with asymmetric
// keys held in key.Key objects. Data is digested through the hashing package
// before it reaches the key's engine.
package signature

import (
	"context"
	"crypto"
	"io"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/hashing"
	"temporal-sa/crypto-provider/key"
	"temporal-sa/crypto-provider/provider"
)

const DefaultHashAlgorithm = provider.AlgorithmSHA256

var hashByName = map[string]crypto.Hash{
	provider.AlgorithmMD5:      crypto.MD5,
	provider.AlgorithmSHA1:     crypto.SHA1,
	provider.AlgorithmSHA256:   crypto.SHA256,
	provider.AlgorithmSHA384:   crypto.SHA384,
	provider.AlgorithmSHA512:   crypto.SHA512,
	provider.AlgorithmSHA3_256: crypto.SHA3_256,
	provider.AlgorithmSHA3_384: crypto.SHA3_384,
	provider.AlgorithmSHA3_512: crypto.SHA3_512,
}

// HashFor returns the crypto.Hash identifier for a provider hash algorithm.
func HashFor(algorithm string) (crypto.Hash, error) {
	h, ok := hashByName[algorithm]
	if !ok {
		return 0, cryptoerr.New(cryptoerr.KindUnsupportedAlgorithm, "signature.HashFor",
			"%s has no signature hash identifier", algorithm)
	}
	return h, nil
}

// keyHolder owns a lazily created key and regenerates it when the
// configured size changes. An adopted key is never regenerated behind the
// caller's back.
type keyHolder struct {
	storage   *key.StorageProvider
	acquirer  hashing.Acquirer
	key       *key.Key
	adopted   bool
	keySize   int
	algorithm func(bits int) (string, error)
}

func (h *keyHolder) setKeySize(bits int) error {
	if _, err := h.algorithm(bits); err != nil {
		return err
	}
	if bits != h.keySize && h.key != nil {
		h.key.Close()
		h.key = nil
		h.adopted = false
	}
	h.keySize = bits
	return nil
}

func (h *keyHolder) current() (*key.Key, error) {
	if h.key != nil {
		state := h.key.State()
		if state == key.StateReady {
			return h.key, nil
		}
		if h.adopted {
			return nil, cryptoerr.New(cryptoerr.KindInvalidState, "signature.Key", "supplied key is %s", state)
		}
	}
	algorithm, err := h.algorithm(h.keySize)
	if err != nil {
		return nil, err
	}
	k, err := h.storage.Create(context.Background(), algorithm, "", &key.CreationParameters{
		ExportPolicy: key.AllowExport | key.AllowPlaintextExport,
		KeySize:      h.keySize,
	})
	if err != nil {
		return nil, err
	}
	h.key = k
	return k, nil
}

func (h *keyHolder) adopt(k *key.Key) error {
	size, err := k.KeySize()
	if err != nil {
		return err
	}
	h.key = k
	h.adopted = true
	h.keySize = size
	return nil
}

func (h *keyHolder) close() error {
	if h.key == nil {
		return nil
	}
	err := h.key.Close()
	h.key = nil
	h.adopted = false
	return err
}

func (h *keyHolder) digest(algorithm string, data []byte) ([]byte, error) {
	if data == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, "signature.SignData", "nil data")
	}
	ctx, err := hashing.New(h.acquirer, algorithm, "")
	if err != nil {
		return nil, err
	}
	defer ctx.Close()
	return ctx.HashData(data)
}

func (h *keyHolder) digestStream(algorithm string, r io.Reader) ([]byte, error) {
	ctx, err := hashing.New(h.acquirer, algorithm, "")
	if err != nil {
		return nil, err
	}
	defer ctx.Close()
	return ctx.HashStream(r)
}

// adoptXML replaces the held key with the EC public key in document, which
// must belong to group.
func (h *keyHolder) adoptXML(op, document, group string) error {
	k, err := h.storage.ImportXML(context.Background(), document, nil)
	if err != nil {
		return err
	}
	if err := checkGroup(op, k, group); err != nil {
		k.Close()
		return err
	}
	h.close()
	if err := h.adopt(k); err != nil {
		k.Close()
		return err
	}
	return nil
}

func checkGroup(op string, k *key.Key, want string) error {
	if k == nil {
		return cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil key")
	}
	group, err := k.AlgorithmGroup()
	if err != nil {
		return err
	}
	if group != want {
		return cryptoerr.New(cryptoerr.KindArgumentRange, op, "key group %s is not %s", group, want)
	}
	return nil
}
