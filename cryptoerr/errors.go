package cryptoerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure independently of the engine that produced it.
type Kind int

const (
	KindUnknown Kind = iota
	KindPlatformUnsupported
	KindArgumentNull
	KindArgumentRange
	KindInvalidState
	KindCryptographicFailure
	KindInvalidPadding
	KindKeyNotFound
	KindExportDenied
	KindCurveMismatch
	KindMissingParameters
	KindUnsupportedPaddingMode
	KindInvalidKeyBlobFormat
	KindUnsupportedAlgorithm
	KindMissingIV
	KindPartialBlock
	KindUnknownCurve
	KindProviderError
)

var kindNames = map[Kind]string{
	KindUnknown:                "unknown",
	KindPlatformUnsupported:    "platform unsupported",
	KindArgumentNull:           "argument null",
	KindArgumentRange:          "argument out of range",
	KindInvalidState:           "invalid state",
	KindCryptographicFailure:   "cryptographic failure",
	KindInvalidPadding:         "invalid padding",
	KindKeyNotFound:            "key not found",
	KindExportDenied:           "export denied",
	KindCurveMismatch:          "curve mismatch",
	KindMissingParameters:      "missing parameters",
	KindUnsupportedPaddingMode: "unsupported padding mode",
	KindInvalidKeyBlobFormat:   "invalid key blob format",
	KindUnsupportedAlgorithm:   "unsupported algorithm",
	KindMissingIV:              "missing iv",
	KindPartialBlock:           "partial block",
	KindUnknownCurve:           "unknown curve",
	KindProviderError:          "provider error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Native status codes reported by engines. They travel unchanged inside
// CryptographicFailure errors.
const (
	StatusSuccess           uint32 = 0x00000000
	StatusInvalidParameter  uint32 = 0xC000000D
	StatusNotSupported      uint32 = 0xC00000BB
	StatusBufferTooSmall    uint32 = 0xC0000023
	StatusInvalidBufferSize uint32 = 0xC0000206
	StatusNotFound          uint32 = 0xC0000225
	StatusInvalidSignature  uint32 = 0xC000A000
	NteBadData              uint32 = 0x80090005
	NteBadKeyset            uint32 = 0x80090016
	NteExists               uint32 = 0x8009000F
	NteNotFound             uint32 = 0x80090011
	NteBadKeyState          uint32 = 0x8009000B
)

// Error is the single error type returned across package boundaries.
type Error struct {
	Kind Kind
	// Op names the failing operation, e.g. "hashing.Update".
	Op string
	// Code is the native status code, zero when the failure did not come from an engine.
	Code uint32
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg = msg + ": " + e.Msg
	}
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (status 0x%08X)", msg, e.Code)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match against any *Error of the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Code == 0 && t.Kind == e.Kind
}

var (
	ErrPlatformUnsupported    = &Error{Kind: KindPlatformUnsupported}
	ErrArgumentNull           = &Error{Kind: KindArgumentNull}
	ErrArgumentRange          = &Error{Kind: KindArgumentRange}
	ErrInvalidState           = &Error{Kind: KindInvalidState}
	ErrCryptographicFailure   = &Error{Kind: KindCryptographicFailure}
	ErrInvalidPadding         = &Error{Kind: KindInvalidPadding}
	ErrKeyNotFound            = &Error{Kind: KindKeyNotFound}
	ErrExportDenied           = &Error{Kind: KindExportDenied}
	ErrCurveMismatch          = &Error{Kind: KindCurveMismatch}
	ErrMissingParameters      = &Error{Kind: KindMissingParameters}
	ErrUnsupportedPaddingMode = &Error{Kind: KindUnsupportedPaddingMode}
	ErrInvalidKeyBlobFormat   = &Error{Kind: KindInvalidKeyBlobFormat}
	ErrUnsupportedAlgorithm   = &Error{Kind: KindUnsupportedAlgorithm}
	ErrMissingIV              = &Error{Kind: KindMissingIV}
	ErrPartialBlock           = &Error{Kind: KindPartialBlock}
	ErrUnknownCurve           = &Error{Kind: KindUnknownCurve}
	ErrProviderError          = &Error{Kind: KindProviderError}
)

// New builds an error of the given kind with a formatted message.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Native reports an engine failure carrying its native status code.
func Native(op string, code uint32, err error) *Error {
	return &Error{Kind: KindCryptographicFailure, Op: op, Code: code, Err: err}
}

// KindOf extracts the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf extracts the native status code carried by err, if any.
func CodeOf(err error) (uint32, bool) {
	var e *Error
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code, true
	}
	return 0, false
}

// IsNotFound reports whether err means "the named thing does not exist", either
// as a KeyNotFound error or as a native not-found/bad-keyset status.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrKeyNotFound) {
		return true
	}
	code, ok := CodeOf(err)
	if !ok {
		return false
	}
	switch code {
	case StatusNotFound, NteNotFound, NteBadKeyset:
		return true
	}
	return false
}
