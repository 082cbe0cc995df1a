package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagi-dev/pagi/pagi"
)

func TestDecodeBodyFraming(t *testing.T) {
	t.Run("content-length", func(t *testing.T) {
		f, cl, expect, err := decodeBodyFraming([]pagi.Header{{Name: "content-length", Value: []byte("42")}})
		require.NoError(t, err)
		assert.Equal(t, framingFixed, f)
		assert.Equal(t, int64(42), cl)
		assert.False(t, expect)
	})

	t.Run("zero content-length means no body", func(t *testing.T) {
		f, _, _, err := decodeBodyFraming([]pagi.Header{{Name: "content-length", Value: []byte("0")}})
		require.NoError(t, err)
		assert.Equal(t, framingNone, f)
	})

	t.Run("chunked", func(t *testing.T) {
		f, _, _, err := decodeBodyFraming([]pagi.Header{{Name: "transfer-encoding", Value: []byte("chunked")}})
		require.NoError(t, err)
		assert.Equal(t, framingChunked, f)
	})

	t.Run("chunked and content-length together is rejected", func(t *testing.T) {
		_, _, _, err := decodeBodyFraming([]pagi.Header{
			{Name: "transfer-encoding", Value: []byte("chunked")},
			{Name: "content-length", Value: []byte("10")},
		})
		require.Error(t, err)
		assert.True(t, pagi.Is(err, pagi.KindBadRequest))
	})

	t.Run("expect 100-continue", func(t *testing.T) {
		_, _, expect, err := decodeBodyFraming([]pagi.Header{
			{Name: "content-length", Value: []byte("5")},
			{Name: "expect", Value: []byte("100-continue")},
		})
		require.NoError(t, err)
		assert.True(t, expect)
	})

	t.Run("invalid content-length", func(t *testing.T) {
		_, _, _, err := decodeBodyFraming([]pagi.Header{{Name: "content-length", Value: []byte("nope")}})
		require.Error(t, err)
		assert.True(t, pagi.Is(err, pagi.KindBadRequest))
	})

	t.Run("no body headers", func(t *testing.T) {
		f, cl, _, err := decodeBodyFraming(nil)
		require.NoError(t, err)
		assert.Equal(t, framingNone, f)
		assert.Equal(t, int64(0), cl)
	})
}
