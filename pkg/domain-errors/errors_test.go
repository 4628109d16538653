package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("nil error stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeRemoteWrite, "write anomaly"))
	})

	t.Run("cause remains reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeRemoteWrite, "write anomaly")

		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.True(t, HasCode(err, CodeRemoteWrite))
		assert.Equal(t, "write anomaly", MessageOf(err))
	})
}

func TestHasCode(t *testing.T) {
	inner := New(CodeRemoteRead, "list anomalies")
	outer := Wrap(fmt.Errorf("refetch: %w", inner), CodeDetectionScan, "scan aborted")

	assert.True(t, HasCode(outer, CodeDetectionScan))
	assert.True(t, HasCode(outer, CodeRemoteRead))
	assert.False(t, HasCode(outer, CodeValidation))
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	assert.Equal(t, CodeDetectionScan, CodeOf(outer))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
