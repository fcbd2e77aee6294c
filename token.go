package rollcall

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// DefaultTokenBytes is the amount of randomness in each token (128 bits).
const DefaultTokenBytes = 16

// TokenIssuer generates opaque, fixed-length rotation tokens.
// Tokens carry no structure; they are hex-encoded bytes read from a
// cryptographically strong source.
type TokenIssuer struct {
	source io.Reader
	size   int
	now    func() time.Time
}

// NewTokenIssuer creates an issuer producing tokens of size random bytes
// (2*size hex characters). A size of zero or less selects DefaultTokenBytes.
func NewTokenIssuer(size int, now func() time.Time) *TokenIssuer {
	if size <= 0 {
		size = DefaultTokenBytes
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{source: rand.Reader, size: size, now: now}
}

// Issue returns a new token and the instant it was generated.
// A failing randomness source is reported as ErrTokenSource; there is no
// weaker fallback.
func (t *TokenIssuer) Issue() (string, time.Time, error) {
	buf := make([]byte, t.size)
	if _, err := io.ReadFull(t.source, buf); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrTokenSource, err)
	}
	return hex.EncodeToString(buf), t.now(), nil
}
