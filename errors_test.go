package rollcall

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{nil, ClassUnknown},
		{ErrInvalidWindow, ClassClient},
		{ErrInvalidToken, ClassClient},
		{ErrOutsideWindow, ClassClient},
		{ErrNotEnrolled, ClassClient},
		{ErrLocationRequired, ClassClient},
		{ErrOutOfRange, ClassClient},
		{ErrAlreadyMarked, ClassClient},
		{fmt.Errorf("wrapped: %w", ErrAlreadyMarked), ClassClient},
		{ErrSessionNotFound, ClassLookup},
		{ErrSessionEnded, ClassLookup},
		{ErrSessionActive, ClassLookup},
		{ErrTokenSource, ClassInfrastructure},
		{fmt.Errorf("%w: %w", ErrTimeout, context.DeadlineExceeded), ClassInfrastructure},
		{errors.New("disk on fire"), ClassInfrastructure},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, Classify(tt.err), "Classify(%v)", tt.err)
	}
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(fmt.Errorf("%w: %w", ErrTimeout, context.DeadlineExceeded)))
	require.False(t, IsRetryable(ErrAlreadyMarked))
	require.False(t, IsRetryable(ErrTokenSource))
	require.False(t, IsRetryable(nil))
}

func TestErrorClassString(t *testing.T) {
	require.Equal(t, "client", ClassClient.String())
	require.Equal(t, "lookup", ClassLookup.String())
	require.Equal(t, "infrastructure", ClassInfrastructure.String())
	require.Equal(t, "unknown", ClassUnknown.String())
}
