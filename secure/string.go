// Package secure provides a byte buffer for secrets that is wiped on release.
package secure

import (
	"crypto/subtle"
	"log/slog"
	"runtime"
)

// placeholder is what String renders instead of its contents.
const placeholder = "Secure[...]"

// String holds a secret byte buffer. The contents are never exposed through
// String, GoString or any serialization path; callers that need the raw bytes
// use Bytes and must not retain the slice past the lifetime of the String.
//
// Destroy overwrites the full capacity of the buffer with zero bytes. A
// finalizer does the same as a fallback for values that are garbage collected
// without an explicit Destroy.
type String struct {
	buf []byte
}

// New copies b into a fresh zeroizing buffer.
func New(b []byte) *String {
	s := &String{buf: append(make([]byte, 0, len(b)), b...)}
	runtime.SetFinalizer(s, (*String).Destroy)
	return s
}

// NewFromString copies the string contents into a fresh zeroizing buffer.
func NewFromString(v string) *String {
	return New([]byte(v))
}

// Bytes returns a borrowed view of the secret. The slice aliases the internal
// buffer and becomes invalid after Destroy.
func (s *String) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.buf
}

// Len reports the secret length without exposing the contents.
func (s *String) Len() int {
	if s == nil {
		return 0
	}
	return len(s.buf)
}

// Clone duplicates the secret into a new zeroizing buffer.
func (s *String) Clone() *String {
	if s == nil {
		return nil
	}
	return New(s.buf)
}

// ConstantTimeEq compares two secrets without leaking the position of the
// first differing byte. Two nil values compare equal.
func (s *String) ConstantTimeEq(other *String) bool {
	return subtle.ConstantTimeCompare(s.Bytes(), other.Bytes()) == 1
}

// ConstantTimeEqBytes compares the secret against a plain byte slice.
func (s *String) ConstantTimeEqBytes(other []byte) bool {
	return subtle.ConstantTimeCompare(s.Bytes(), other) == 1
}

// Destroy wipes the full capacity of the underlying buffer and detaches it.
// The String is unusable afterwards; Bytes returns nil.
func (s *String) Destroy() {
	if s == nil || s.buf == nil {
		return
	}
	full := s.buf[:cap(s.buf)]
	for i := range full {
		full[i] = 0
	}
	s.buf = nil
	runtime.SetFinalizer(s, nil)
}

// String implements fmt.Stringer with a fixed placeholder.
func (s *String) String() string { return placeholder }

// GoString keeps %#v output free of the secret.
func (s *String) GoString() string { return placeholder }

// MarshalText refuses to serialize the secret; it always renders the
// placeholder so accidental JSON encoding cannot leak the contents.
func (s *String) MarshalText() ([]byte, error) { return []byte(placeholder), nil }

// LogValue keeps slog output free of the secret.
func (s *String) LogValue() slog.Value { return slog.StringValue(placeholder) }
