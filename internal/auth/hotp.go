package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenDigits is the standard TOTP code length
	TokenDigits = 6
	// TokenPeriod is the time-step width in seconds, aligned to the Unix epoch
	TokenPeriod = 30
)

// Base32 codec for TOTP secrets: RFC 4648 alphabet, no padding, the form
// authenticator apps expect in otpauth:// URIs.
var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeSecret renders raw key material as an unpadded base32 string.
func EncodeSecret(raw []byte) string {
	return secretEncoding.EncodeToString(raw)
}

// DecodeSecret normalizes a base32 secret (case, whitespace, stray padding)
// and decodes it to raw bytes.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimSpace(secret))
	s = strings.TrimRight(s, "=")
	raw, err := secretEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base32 secret: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty secret")
	}
	return raw, nil
}

// hotp derives an RFC 4226 one-time password from a key and counter:
// HMAC-SHA1 over the 8-byte big-endian counter, dynamic truncation to a
// 31-bit integer, reduced modulo 10^digits and zero-padded.
func hotp(key []byte, counter uint64, digits int) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(buf)
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := uint32(sum[offset]&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, code%mod)
}

// timeCounter maps a wall-clock instant to its 30-second step number.
func timeCounter(t time.Time) int64 {
	return t.Unix() / TokenPeriod
}

// CodeAt computes the 6-digit token for the time-step containing t.
// Used for out-of-band code generation in tests and tooling.
func CodeAt(secret string, t time.Time) (string, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotp(key, uint64(timeCounter(t)), TokenDigits), nil
}

// SecondsUntilNextWindow returns how long the current token remains valid.
// Purely informational, for UI countdowns.
func SecondsUntilNextWindow() int {
	return TokenPeriod - int(time.Now().Unix()%TokenPeriod)
}
