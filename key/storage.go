package key

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/binary"
	"fmt"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/internal/zeroize"
	"temporal-sa/crypto-provider/keyblob"
	"temporal-sa/crypto-provider/keystore"
	"temporal-sa/crypto-provider/provider"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultRSAKeySize = 2048

type (
	Acquirer interface {
		Acquire(algorithm, implementation string, flags provider.OpenFlags) (*provider.Handle, error)
	}

	StorageOptions struct {
		// Implementation pins keys to one provider; empty uses the default.
		Implementation string
		Logger         *zap.Logger
	}

	// StorageProvider creates, opens and imports keys. Named keys are
	// persisted in the key store; ephemeral keys live only in their Key.
	StorageProvider struct {
		acquirer       Acquirer
		store          keystore.KeyStore
		implementation string
		logger         *zap.Logger
	}
)

func NewStorageProvider(acquirer Acquirer, store keystore.KeyStore, options StorageOptions) *StorageProvider {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageProvider{
		acquirer:       acquirer,
		store:          store,
		implementation: options.Implementation,
		logger:         logger,
	}
}

// Create generates a new key. An empty name creates an ephemeral key that is
// never persisted. Export policy, usage and custom properties are applied
// before a named key is written.
func (s *StorageProvider) Create(ctx context.Context, algorithm, name string, params *CreationParameters) (*Key, error) {
	const op = "key.Create"
	if algorithm == "" {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, op, "algorithm is empty")
	}
	if params == nil {
		params = &CreationParameters{}
	}
	if err := s.checkName(ctx, op, name, params.Overwrite); err != nil {
		return nil, err
	}
	properties, err := customProperties(op, params.Properties)
	if err != nil {
		return nil, err
	}

	handle, err := s.acquirer.Acquire(algorithm, s.implementation, provider.FlagNone)
	if err != nil {
		return nil, err
	}

	k := &Key{
		storage:    s,
		handle:     handle,
		algorithm:  algorithm,
		name:       name,
		policy:     params.ExportPolicy,
		usage:      usageOrAll(params.KeyUsage),
		properties: properties,
	}
	if err := s.generate(k, params.KeySize); err != nil {
		handle.Close()
		return nil, err
	}

	if err := s.finalize(ctx, k); err != nil {
		k.Close()
		return nil, err
	}

	s.logger.Info("key created",
		zap.String("algorithm", algorithm),
		zap.String("name", name),
		zap.String("implementation", handle.Implementation()))
	return k, nil
}

// Open loads a named key. Unknown names fail with KeyNotFound.
func (s *StorageProvider) Open(ctx context.Context, name string) (*Key, error) {
	const op = "key.Open"
	if name == "" {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, op, "key name is empty")
	}

	record, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer zeroize.Bytes(record.Data)

	format, err := keyblob.ParseFormat(record.Format)
	if err != nil {
		return nil, err
	}
	decoded, err := keyblob.Decode(format, record.Data)
	if err != nil {
		return nil, err
	}
	if decoded.Symmetric != nil {
		defer zeroize.Bytes(decoded.Symmetric)
	}

	handle, err := s.acquirer.Acquire(record.Algorithm, s.implementation, provider.FlagNone)
	if err != nil {
		return nil, err
	}

	k := &Key{
		storage:   s,
		handle:    handle,
		algorithm: record.Algorithm,
		name:      record.Name,
	}
	k.loadProperties(record.Properties)
	if err := s.bind(op, k, decoded); err != nil {
		handle.Close()
		return nil, err
	}

	s.logger.Debug("key opened", zap.String("name", name), zap.String("algorithm", record.Algorithm))
	return k, nil
}

// Exists reports whether a named key is stored. Not-found and bad-keyset
// results are a plain false.
func (s *StorageProvider) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.store.Get(ctx, name)
	if cryptoerr.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Import loads key material from a blob. Callers decide whether to allow
// formats for which format.RequiresElevatedTrust() is true.
func (s *StorageProvider) Import(ctx context.Context, blob []byte, format keyblob.Format, params *ImportParameters) (*Key, error) {
	const op = "key.Import"
	if params == nil {
		params = &ImportParameters{}
	}

	decoded, err := keyblob.Decode(format, blob)
	if err != nil {
		return nil, err
	}
	if decoded.Symmetric != nil {
		defer zeroize.Bytes(decoded.Symmetric)
	}

	algorithm := params.Algorithm
	if algorithm == "" {
		algorithm = decoded.Algorithm
	}
	if algorithm == "" {
		if pub, ok := decoded.Public.(*ecdsa.PublicKey); ok {
			if algorithm, err = keyblob.AlgorithmForCurve(pub.Curve, false); err != nil {
				return nil, err
			}
		}
	}
	if algorithm == "" {
		return nil, cryptoerr.New(cryptoerr.KindMissingParameters, op, "%s blobs need an algorithm", format)
	}

	if err := s.checkName(ctx, op, params.Name, params.Overwrite); err != nil {
		return nil, err
	}
	properties, err := customProperties(op, params.Properties)
	if err != nil {
		return nil, err
	}

	handle, err := s.acquirer.Acquire(algorithm, s.implementation, provider.FlagNone)
	if err != nil {
		return nil, err
	}

	k := &Key{
		storage:    s,
		handle:     handle,
		algorithm:  algorithm,
		name:       params.Name,
		policy:     params.ExportPolicy,
		usage:      usageOrAll(params.KeyUsage),
		properties: properties,
	}
	if err := s.bind(op, k, decoded); err != nil {
		handle.Close()
		return nil, err
	}

	if err := s.finalize(ctx, k); err != nil {
		k.Close()
		return nil, err
	}

	s.logger.Info("key imported",
		zap.String("algorithm", algorithm),
		zap.String("format", string(format)),
		zap.String("name", params.Name))
	return k, nil
}

// ImportXML loads an EC public key from an RFC 4050 document. The algorithm
// comes from the document's root element and curve.
func (s *StorageProvider) ImportXML(ctx context.Context, document string, params *ImportParameters) (*Key, error) {
	algorithm, pub, err := keyblob.DecodeXML(document)
	if err != nil {
		return nil, err
	}
	blob, err := keyblob.EncodeECPublic(algorithm, pub)
	if err != nil {
		return nil, err
	}

	var p ImportParameters
	if params != nil {
		p = *params
	}
	p.Algorithm = algorithm
	return s.Import(ctx, blob, keyblob.FormatECPublic, &p)
}

// List returns the names of all stored keys.
func (s *StorageProvider) List(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

func (s *StorageProvider) checkName(ctx context.Context, op, name string, overwrite bool) error {
	if name == "" || overwrite {
		return nil
	}
	exists, err := s.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return cryptoerr.Native(op, cryptoerr.NteExists, fmt.Errorf("key %q already exists", name))
	}
	return nil
}

func (s *StorageProvider) generate(k *Key, bits int) error {
	const op = "key.Create"
	engine, err := k.handle.Engine()
	if err != nil {
		return err
	}

	switch e := engine.(type) {
	case provider.BlockCipher:
		if bits == 0 {
			sizes := e.LegalKeySizes()
			bits = sizes[len(sizes)-1].MaxSize
		}
		k.symmetric, err = e.GenerateKey(bits)
		return err
	case provider.KeyGenerator:
		if bits == 0 {
			bits = defaultKeySize(e.LegalKeySizes())
		}
		priv, err := e.GenerateKeyPair(bits)
		if err != nil {
			return err
		}
		k.private = priv
		k.public = publicOf(priv)
		return nil
	}
	return cryptoerr.New(cryptoerr.KindUnsupportedAlgorithm, op, "%s does not generate keys", k.algorithm)
}

// bind attaches decoded material to k, checking it fits the key's engine.
func (s *StorageProvider) bind(op string, k *Key, decoded *keyblob.Decoded) error {
	engine, err := k.handle.Engine()
	if err != nil {
		return err
	}

	if decoded.Symmetric != nil {
		cipher, ok := engine.(provider.BlockCipher)
		if !ok {
			return cryptoerr.New(cryptoerr.KindUnsupportedAlgorithm, op, "%s is not a symmetric algorithm", k.algorithm)
		}
		k.symmetric, err = cipher.ImportKey(decoded.Symmetric)
		return err
	}

	switch pub := decoded.Public.(type) {
	case *ecdsa.PublicKey:
		curveEngine, ok := engine.(provider.CurveEngine)
		if !ok {
			return cryptoerr.New(cryptoerr.KindUnsupportedAlgorithm, op, "%s cannot hold an EC key", k.algorithm)
		}
		if curveEngine.Curve().Params().Name != pub.Curve.Params().Name {
			return cryptoerr.New(cryptoerr.KindCurveMismatch, op, "key is on %s, %s expects %s",
				pub.Curve.Params().Name, k.algorithm, curveEngine.Curve().Params().Name)
		}
	case *rsa.PublicKey:
		if k.algorithm != provider.AlgorithmRSA {
			return cryptoerr.New(cryptoerr.KindUnsupportedAlgorithm, op, "%s cannot hold an RSA key", k.algorithm)
		}
	default:
		return cryptoerr.New(cryptoerr.KindInvalidKeyBlobFormat, op, "blob holds no key")
	}

	k.private = decoded.Private
	k.public = decoded.Public
	return nil
}

// finalize marks ephemeral keys or writes named ones to the store.
func (s *StorageProvider) finalize(ctx context.Context, k *Key) error {
	if k.name == "" {
		if k.properties == nil {
			k.properties = make(map[string][]byte)
		}
		k.properties[KeyEphemeralMarker] = []byte{1}
		return nil
	}
	k.uniqueName = uuid.NewString()
	return s.persist(ctx, k)
}

func (s *StorageProvider) persist(ctx context.Context, k *Key) error {
	format, material := storageFormat(k)
	var (
		data []byte
		err  error
	)
	if k.symmetric != nil {
		raw, exportErr := k.symmetric.Export()
		if exportErr != nil {
			return exportErr
		}
		data, err = keyblob.Encode(format, k.algorithm, raw)
		zeroize.Bytes(raw)
	} else {
		data, err = keyblob.Encode(format, k.algorithm, material)
	}
	if err != nil {
		return err
	}
	defer zeroize.Bytes(data)

	properties := make(map[string][]byte, len(k.properties)+3)
	for name, value := range k.properties {
		properties[name] = value
	}
	properties[PropertyExportPolicy] = uint32Bytes(uint32(k.policy))
	properties[PropertyKeyUsage] = uint32Bytes(uint32(k.usage))
	properties[PropertyUniqueName] = []byte(k.uniqueName)

	return s.store.Put(ctx, &keystore.Record{
		Name:       k.name,
		Algorithm:  k.algorithm,
		Format:     string(format),
		Data:       data,
		Properties: properties,
		CreatedAt:  time.Now().UTC(),
	})
}

func (s *StorageProvider) remove(k *Key) error {
	if err := s.store.Delete(context.Background(), k.name); err != nil {
		return err
	}
	s.logger.Info("key deleted", zap.String("name", k.name), zap.String("algorithm", k.algorithm))
	return nil
}

func (k *Key) loadProperties(stored map[string][]byte) {
	k.properties = make(map[string][]byte, len(stored))
	for name, value := range stored {
		switch name {
		case PropertyExportPolicy:
			if len(value) == 4 {
				k.policy = ExportPolicy(binary.LittleEndian.Uint32(value))
			}
		case PropertyKeyUsage:
			if len(value) == 4 {
				k.usage = Usage(binary.LittleEndian.Uint32(value))
			}
		case PropertyUniqueName:
			k.uniqueName = string(value)
		default:
			k.properties[name] = value
		}
	}
}

func storageFormat(k *Key) (keyblob.Format, interface{}) {
	if k.symmetric != nil {
		return keyblob.FormatSymmetric, nil
	}
	switch priv := k.private.(type) {
	case *rsa.PrivateKey:
		return keyblob.FormatRSAFullPrivate, priv
	case *ecdsa.PrivateKey:
		return keyblob.FormatECPrivate, priv
	}
	return keyblob.FormatPublic, k.public
}

func customProperties(op string, in map[string][]byte) (map[string][]byte, error) {
	out := make(map[string][]byte, len(in))
	for name, value := range in {
		switch name {
		case PropertyAlgorithmName, PropertyAlgorithmGroup, PropertyLength, PropertyExportPolicy,
			PropertyKeyUsage, PropertyName, PropertyUniqueName, KeyEphemeralMarker:
			return nil, cryptoerr.New(cryptoerr.KindArgumentRange, op, "property %q is reserved", name)
		}
		out[name] = append([]byte(nil), value...)
	}
	return out, nil
}

func usageOrAll(usage Usage) Usage {
	if usage == 0 {
		return UsageAll
	}
	return usage
}

func defaultKeySize(sizes []provider.KeySizes) int {
	if provider.ValidKeySize(DefaultRSAKeySize, sizes) {
		return DefaultRSAKeySize
	}
	return sizes[0].MinSize
}

func publicOf(priv crypto.PrivateKey) crypto.PublicKey {
	if signer, ok := priv.(crypto.Signer); ok {
		return signer.Public()
	}
	return nil
}
