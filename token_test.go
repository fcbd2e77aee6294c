package rollcall

import (
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy pool closed") }

func TestTokenIssuer_Issue(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer(0, func() time.Time { return fixed })

	token, at, err := issuer.Issue()
	require.NoError(t, err)
	require.Equal(t, fixed, at)
	require.Len(t, token, 2*DefaultTokenBytes)

	_, err = hex.DecodeString(token)
	require.NoError(t, err)
}

func TestTokenIssuer_CustomSize(t *testing.T) {
	issuer := NewTokenIssuer(24, nil)

	token, _, err := issuer.Issue()
	require.NoError(t, err)
	require.Len(t, token, 48)
}

func TestTokenIssuer_Unique(t *testing.T) {
	issuer := NewTokenIssuer(0, nil)
	seen := make(map[string]struct{}, 10000)

	for i := 0; i < 10000; i++ {
		token, _, err := issuer.Issue()
		require.NoError(t, err)
		_, dup := seen[token]
		require.False(t, dup, "duplicate token %s", token)
		seen[token] = struct{}{}
	}
}

func TestTokenIssuer_SourceFailure(t *testing.T) {
	issuer := NewTokenIssuer(0, nil)
	issuer.source = failingReader{}

	token, _, err := issuer.Issue()
	require.ErrorIs(t, err, ErrTokenSource)
	require.Empty(t, token)
	require.Equal(t, ClassInfrastructure, Classify(err))
}
