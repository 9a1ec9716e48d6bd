package errx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesChain(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := Wrap(base, CodeDependencyUnavailable, "classifier unreachable")

	require.Error(t, err)
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, CodeDependencyUnavailable, CodeOf(err))
	assert.Contains(t, err.Error(), "classifier unreachable")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeNotFound, "x"))
}

func TestCodeOfThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(CodeValidation, "missing area"))
	assert.Equal(t, CodeValidation, CodeOf(err))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}
