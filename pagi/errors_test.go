package pagi_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagi-dev/pagi/pagi"
)

func TestErrorWrapsKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := pagi.NewError(pagi.KindBadRequest, cause)

	require.Error(t, err)
	assert.Equal(t, "BAD_REQUEST: boom", err.Error())
	assert.True(t, errors.Is(err, cause) || errors.Unwrap(err) == cause)
	assert.True(t, pagi.Is(err, pagi.KindBadRequest))
	assert.False(t, pagi.Is(err, pagi.KindTimeout))
}

func TestIsFalseForPlainError(t *testing.T) {
	assert.False(t, pagi.Is(errors.New("plain"), pagi.KindIOError))
}
