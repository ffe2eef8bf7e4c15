// Package privacy derives the identifiers that replace contributor
// identities anywhere a result leaves the machine. None of it is a
// security primitive; collisions between identities are acceptable.
package privacy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"strings"
	"unicode/utf16"
)

const (
	prefixRunes = 3
	hashDigits  = 6
	emailMask   = "***"
)

// Anonymizer maps identities to short deterministic display IDs
type Anonymizer struct {
	key []byte
}

// Option configures an Anonymizer
type Option func(*Anonymizer)

// WithKey switches the hash to HMAC-SHA256 under secret. An empty secret
// keeps the unkeyed hash.
func WithKey(secret string) Option {
	return func(a *Anonymizer) {
		if secret != "" {
			a.key = []byte(secret)
		}
	}
}

// NewAnonymizer creates an anonymizer
func NewAnonymizer(opts ...Option) *Anonymizer {
	a := &Anonymizer{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Keyed reports whether IDs are derived with a secret
func (a *Anonymizer) Keyed() bool {
	return len(a.key) > 0
}

// ID returns the first three characters of identity followed by up to six
// base36 digits of its hash.
func (a *Anonymizer) ID(identity string) string {
	var sum uint64
	if a.Keyed() {
		sum = keyedHash(a.key, identity)
	} else {
		sum = rollingHash(identity)
	}

	digits := strconv.FormatUint(sum, 36)
	if len(digits) > hashDigits {
		digits = digits[:hashDigits]
	}
	return prefix(identity) + digits
}

// AnonymizedID is the unkeyed form of Anonymizer.ID
func AnonymizedID(identity string) string {
	return NewAnonymizer().ID(identity)
}

// MaskEmail keeps at most three characters of the local part:
// jason@example.com becomes jas***@example.com. Input without an @ is
// fully masked.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return emailMask
	}
	return prefix(local) + emailMask + "@" + domain
}

func prefix(s string) string {
	n := 0
	for i := range s {
		if n == prefixRunes {
			return s[:i]
		}
		n++
	}
	return s
}

// rollingHash is h = h*31 + c over UTF-16 code units with int32
// wrap-around, returned as an absolute value.
func rollingHash(s string) uint64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return uint64(v)
}

func keyedHash(key []byte, s string) uint64 {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(s))
	return uint64(binary.BigEndian.Uint32(mac.Sum(nil)[:4]))
}
