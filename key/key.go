// Package key manages named and ephemeral key objects living in a provider:
// creation, opening, import, export under an export policy, deletion and
// property queries. Named keys are persisted through a keystore.KeyStore.
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
	"temporal-sa/crypto-provider/provider"

	"go.uber.org/zap"
)

// ExportPolicy controls which blob formats a key may be exported in.
type ExportPolicy uint32

const (
	AllowExport             ExportPolicy = 0x1
	AllowPlaintextExport    ExportPolicy = 0x2
	AllowArchiving          ExportPolicy = 0x4
	AllowPlaintextArchiving ExportPolicy = 0x8
)

// Usage lists the operations a key may be used for.
type Usage uint32

const (
	UsageDecryption   Usage = 0x1
	UsageSigning      Usage = 0x2
	UsageKeyAgreement Usage = 0x4
	UsageAll          Usage = 0x00ffffff
)

// Standard property names. They are computed from the key and cannot be set,
// apart from the export policy and usage which SetProperty accepts.
const (
	PropertyAlgorithmName  = "Algorithm Name"
	PropertyAlgorithmGroup = "Algorithm Group"
	PropertyLength         = "Length"
	PropertyExportPolicy   = "Export Policy"
	PropertyKeyUsage       = "Key Usage"
	PropertyName           = "Name"
	PropertyUniqueName     = "Unique Name"

	// KeyEphemeralMarker is set on every key created without a name.
	KeyEphemeralMarker = "IsEphemeral"
)

// Algorithm groups reported by AlgorithmGroup.
const (
	GroupRSA       = "RSA"
	GroupECDSA     = "ECDSA"
	GroupECDH      = "ECDH"
	GroupSymmetric = "SYMMETRIC"
)

type State int

const (
	StateReady State = iota
	StateDisposed
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	case StateDeleted:
		return "deleted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type (
	CreationParameters struct {
		ExportPolicy ExportPolicy
		// KeyUsage defaults to UsageAll.
		KeyUsage Usage
		// KeySize in bits; zero picks the algorithm default.
		KeySize int
		// Properties are custom properties stored with the key.
		Properties map[string][]byte
		// Overwrite replaces an existing key of the same name.
		Overwrite bool
	}

	ImportParameters struct {
		// Name persists the imported key; empty imports an ephemeral key.
		Name string
		// Algorithm is required for symmetric blobs and overrides the
		// algorithm recorded in EC and PKCS8 blobs.
		Algorithm    string
		ExportPolicy ExportPolicy
		KeyUsage     Usage
		Properties   map[string][]byte
		Overwrite    bool
	}

	// Key is a key object owned by one caller at a time. Close releases the
	// provider handle and zeroes symmetric material.
	Key struct {
		storage    *StorageProvider
		handle     *provider.Handle
		algorithm  string
		name       string
		uniqueName string
		symmetric  provider.SymmetricKey
		private    crypto.PrivateKey
		public     crypto.PublicKey
		policy     ExportPolicy
		usage      Usage
		properties map[string][]byte
		state      State
	}
)

func (k *Key) check(op string) error {
	if k == nil {
		return cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil key")
	}
	if k.state != StateReady {
		return cryptoerr.New(cryptoerr.KindInvalidState, op, "key is %s", k.state)
	}
	return nil
}

func (k *Key) State() State {
	return k.state
}

func (k *Key) Algorithm() (string, error) {
	if err := k.check("key.Algorithm"); err != nil {
		return "", err
	}
	return k.algorithm, nil
}

func (k *Key) AlgorithmGroup() (string, error) {
	if err := k.check("key.AlgorithmGroup"); err != nil {
		return "", err
	}
	return groupOf(k.algorithm, k.symmetric != nil), nil
}

// KeySize returns the key length in bits.
func (k *Key) KeySize() (int, error) {
	if err := k.check("key.KeySize"); err != nil {
		return 0, err
	}
	if k.symmetric != nil {
		return k.symmetric.KeySize(), nil
	}
	switch pub := k.public.(type) {
	case *rsa.PublicKey:
		return pub.N.BitLen(), nil
	case *ecdsa.PublicKey:
		return pub.Curve.Params().BitSize, nil
	}
	return 0, cryptoerr.New(cryptoerr.KindInvalidState, "key.KeySize", "key has no material")
}

// IsEphemeral reports whether the key was created without a name.
func (k *Key) IsEphemeral() (bool, error) {
	if err := k.check("key.IsEphemeral"); err != nil {
		return false, err
	}
	return k.isEphemeral(), nil
}

func (k *Key) isEphemeral() bool {
	marker, ok := k.properties[KeyEphemeralMarker]
	return ok && len(marker) == 1 && marker[0] == 1
}

func (k *Key) ExportPolicy() (ExportPolicy, error) {
	if err := k.check("key.ExportPolicy"); err != nil {
		return 0, err
	}
	return k.policy, nil
}

func (k *Key) KeyUsage() (Usage, error) {
	if err := k.check("key.KeyUsage"); err != nil {
		return 0, err
	}
	return k.usage, nil
}

func (k *Key) KeyName() (string, error) {
	if err := k.check("key.KeyName"); err != nil {
		return "", err
	}
	if k.isEphemeral() {
		return "", cryptoerr.New(cryptoerr.KindInvalidState, "key.KeyName", "ephemeral keys have no name")
	}
	return k.name, nil
}

func (k *Key) UniqueName() (string, error) {
	if err := k.check("key.UniqueName"); err != nil {
		return "", err
	}
	if k.isEphemeral() {
		return "", cryptoerr.New(cryptoerr.KindInvalidState, "key.UniqueName", "ephemeral keys have no name")
	}
	return k.uniqueName, nil
}

// HasPrivateKey is false for keys imported from public blobs.
func (k *Key) HasPrivateKey() bool {
	return k.state == StateReady && (k.private != nil || k.symmetric != nil)
}

// Property reads a standard or custom property.
func (k *Key) Property(name string) ([]byte, error) {
	const op = "key.Property"
	if err := k.check(op); err != nil {
		return nil, err
	}

	switch name {
	case PropertyAlgorithmName:
		return []byte(k.algorithm), nil
	case PropertyAlgorithmGroup:
		return []byte(groupOf(k.algorithm, k.symmetric != nil)), nil
	case PropertyLength:
		bits, err := k.KeySize()
		if err != nil {
			return nil, err
		}
		return uint32Bytes(uint32(bits)), nil
	case PropertyExportPolicy:
		return uint32Bytes(uint32(k.policy)), nil
	case PropertyKeyUsage:
		return uint32Bytes(uint32(k.usage)), nil
	case PropertyName:
		name, err := k.KeyName()
		return []byte(name), err
	case PropertyUniqueName:
		name, err := k.UniqueName()
		return []byte(name), err
	}

	value, ok := k.properties[name]
	if !ok {
		return nil, cryptoerr.Native(op, cryptoerr.NteNotFound, fmt.Errorf("property %q is not set", name))
	}
	return append([]byte(nil), value...), nil
}

// SetProperty sets a custom property, or the export policy or usage. The
// change is persisted for named keys.
func (k *Key) SetProperty(name string, value []byte) error {
	const op = "key.SetProperty"
	if err := k.check(op); err != nil {
		return err
	}

	switch name {
	case PropertyExportPolicy, PropertyKeyUsage:
		if len(value) != 4 {
			return cryptoerr.New(cryptoerr.KindArgumentRange, op, "%s is a 4-byte value", name)
		}
		if name == PropertyExportPolicy {
			k.policy = ExportPolicy(binary.LittleEndian.Uint32(value))
		} else {
			k.usage = Usage(binary.LittleEndian.Uint32(value))
		}
	case PropertyAlgorithmName, PropertyAlgorithmGroup, PropertyLength, PropertyName, PropertyUniqueName, KeyEphemeralMarker:
		return cryptoerr.New(cryptoerr.KindArgumentRange, op, "property %q is read-only", name)
	default:
		if k.properties == nil {
			k.properties = make(map[string][]byte)
		}
		k.properties[name] = append([]byte(nil), value...)
	}

	if k.isEphemeral() {
		return nil
	}
	return k.storage.persist(context.Background(), k)
}

// Export serializes the key. Public formats are always allowed; plaintext
// private formats need AllowPlaintextExport; PKCS8 and opaque blobs need
// AllowExport or AllowPlaintextExport.
func (k *Key) Export(format keyblob.Format) ([]byte, error) {
	const op = "key.Export"
	if err := k.check(op); err != nil {
		return nil, err
	}
	if err := k.exportAllowed(format); err != nil {
		return nil, err
	}

	if k.symmetric != nil {
		if format != keyblob.FormatSymmetric {
			return nil, cryptoerr.New(cryptoerr.KindInvalidKeyBlobFormat, op, "symmetric keys export as %s only", keyblob.FormatSymmetric)
		}
		raw, err := k.symmetric.Export()
		if err != nil {
			return nil, err
		}
		defer zeroize.Bytes(raw)
		return keyblob.Encode(format, k.algorithm, raw)
	}

	material := interface{}(k.private)
	if format.IsPublic() || k.private == nil {
		material = k.public
	}
	return keyblob.Encode(format, k.algorithm, material)
}

// ExportXML renders the public half of an EC key as an RFC 4050 document.
// Public material is always exportable.
func (k *Key) ExportXML() (string, error) {
	const op = "key.ExportXML"
	if err := k.check(op); err != nil {
		return "", err
	}
	pub, ok := k.public.(*ecdsa.PublicKey)
	if !ok {
		return "", cryptoerr.New(cryptoerr.KindUnsupportedAlgorithm, op, "%s has no XML key value", k.algorithm)
	}
	return keyblob.EncodeXML(k.algorithm, pub)
}

func (k *Key) exportAllowed(format keyblob.Format) error {
	if format.IsPublic() {
		return nil
	}
	switch format {
	case keyblob.FormatPKCS8, keyblob.FormatOpaque:
		if k.policy&(AllowExport|AllowPlaintextExport) != 0 {
			return nil
		}
	default:
		if k.policy&AllowPlaintextExport != 0 {
			return nil
		}
	}
	return cryptoerr.New(cryptoerr.KindExportDenied, "key.Export", "export policy does not allow %s", format)
}

// Handle returns a duplicate of the provider handle the key belongs to.
// The caller closes it.
func (k *Key) Handle() (*provider.Handle, error) {
	if err := k.check("key.Handle"); err != nil {
		return nil, err
	}
	return k.handle.Duplicate()
}

// SymmetricKey returns a duplicate of the native symmetric key.
func (k *Key) SymmetricKey() (provider.SymmetricKey, error) {
	const op = "key.SymmetricKey"
	if err := k.check(op); err != nil {
		return nil, err
	}
	if k.symmetric == nil {
		return nil, cryptoerr.New(cryptoerr.KindInvalidState, op, "%s is not a symmetric key", k.algorithm)
	}
	return k.symmetric.Duplicate()
}

func (k *Key) PublicKey() (crypto.PublicKey, error) {
	const op = "key.PublicKey"
	if err := k.check(op); err != nil {
		return nil, err
	}
	if k.public == nil {
		return nil, cryptoerr.New(cryptoerr.KindInvalidState, op, "%s is not an asymmetric key", k.algorithm)
	}
	return k.public, nil
}

// SignHash signs a digest with the key's engine.
func (k *Key) SignHash(digest []byte, opts provider.SignOptions) ([]byte, error) {
	const op = "key.SignHash"
	if err := k.requirePrivate(op, UsageSigning); err != nil {
		return nil, err
	}
	engine, err := provider.As[provider.SignatureEngine](k.handle)
	if err != nil {
		return nil, err
	}
	return engine.SignHash(k.private, digest, opts)
}

func (k *Key) VerifyHash(digest, signature []byte, opts provider.SignOptions) (bool, error) {
	if err := k.check("key.VerifyHash"); err != nil {
		return false, err
	}
	engine, err := provider.As[provider.SignatureEngine](k.handle)
	if err != nil {
		return false, err
	}
	return engine.VerifyHash(k.public, digest, signature, opts)
}

// SecretAgreement computes the raw ECDH secret between this key's private
// half and other's public half.
func (k *Key) SecretAgreement(other *Key) ([]byte, error) {
	const op = "key.SecretAgreement"
	if err := k.requirePrivate(op, UsageKeyAgreement); err != nil {
		return nil, err
	}
	if err := other.check(op); err != nil {
		return nil, err
	}
	if group := groupOf(other.algorithm, other.symmetric != nil); group != GroupECDH {
		return nil, cryptoerr.New(cryptoerr.KindArgumentRange, op, "peer key group %s is not %s", group, GroupECDH)
	}

	engine, err := provider.As[provider.AgreementEngine](k.handle)
	if err != nil {
		return nil, err
	}
	priv, ok := k.private.(*ecdsa.PrivateKey)
	if !ok {
		return nil, cryptoerr.New(cryptoerr.KindUnsupportedAlgorithm, op, "%s cannot agree secrets", k.algorithm)
	}
	pub, ok := other.public.(*ecdsa.PublicKey)
	if !ok || pub.Curve.Params().Name != priv.Curve.Params().Name {
		return nil, cryptoerr.New(cryptoerr.KindCurveMismatch, op, "keys are not on the same curve")
	}
	return engine.SecretAgreement(priv, pub)
}

func (k *Key) Encrypt(data []byte, opts provider.EncryptOptions) ([]byte, error) {
	const op = "key.Encrypt"
	if err := k.check(op); err != nil {
		return nil, err
	}
	engine, err := provider.As[provider.AsymmetricCipher](k.handle)
	if err != nil {
		return nil, err
	}
	pub, ok := k.public.(*rsa.PublicKey)
	if !ok {
		return nil, cryptoerr.New(cryptoerr.KindUnsupportedAlgorithm, op, "%s cannot encrypt", k.algorithm)
	}
	return engine.Encrypt(pub, data, opts)
}

func (k *Key) Decrypt(data []byte, opts provider.EncryptOptions) ([]byte, error) {
	const op = "key.Decrypt"
	if err := k.requirePrivate(op, UsageDecryption); err != nil {
		return nil, err
	}
	engine, err := provider.As[provider.AsymmetricCipher](k.handle)
	if err != nil {
		return nil, err
	}
	priv, ok := k.private.(*rsa.PrivateKey)
	if !ok {
		return nil, cryptoerr.New(cryptoerr.KindUnsupportedAlgorithm, op, "%s cannot decrypt", k.algorithm)
	}
	return engine.Decrypt(priv, data, opts)
}

func (k *Key) requirePrivate(op string, usage Usage) error {
	if err := k.check(op); err != nil {
		return err
	}
	if k.private == nil {
		return cryptoerr.New(cryptoerr.KindInvalidState, op, "key has no private material")
	}
	if k.usage&usage == 0 {
		return cryptoerr.Native(op, cryptoerr.NteBadKeyState, fmt.Errorf("key usage does not allow this operation"))
	}
	return nil
}

// Delete removes a named key from storage and disposes the object.
// Deleting an ephemeral key only disposes it.
func (k *Key) Delete() error {
	const op = "key.Delete"
	if err := k.check(op); err != nil {
		return err
	}
	if !k.isEphemeral() {
		if err := k.storage.remove(k); err != nil {
			return err
		}
	}
	k.release()
	k.state = StateDeleted
	return nil
}

// Close releases the key. Closing twice is a no-op.
func (k *Key) Close() error {
	if k == nil || k.state != StateReady {
		return nil
	}
	err := k.release()
	k.state = StateDisposed
	return err
}

func (k *Key) release() error {
	var err error
	if k.symmetric != nil {
		err = k.symmetric.Close()
		k.symmetric = nil
	}
	k.private = nil
	k.public = nil
	if k.handle != nil {
		if closeErr := k.handle.Close(); err == nil {
			err = closeErr
		}
	}
	if k.storage != nil {
		k.storage.logger.Debug("key released",
			zap.String("algorithm", k.algorithm),
			zap.Bool("ephemeral", k.isEphemeral()))
	}
	return err
}

func groupOf(algorithm string, symmetric bool) string {
	if symmetric {
		return GroupSymmetric
	}
	switch algorithm {
	case provider.AlgorithmRSA:
		return GroupRSA
	case provider.AlgorithmECDHP256, provider.AlgorithmECDHP384, provider.AlgorithmECDHP521:
		return GroupECDH
	case provider.AlgorithmECDSAP256, provider.AlgorithmECDSAP384, provider.AlgorithmECDSAP521:
		return GroupECDSA
	}
	return algorithm
}

func uint32Bytes(v uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, v)
	return out
}
