package accesslog

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagi-dev/pagi/internal/conn"
)

func TestWriterFlushesOnSize(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, 2, 0)
	defer w.Close()

	w.Log(conn.AccessRecord{Method: "GET", Path: "/a", Status: 200})
	assert.Empty(t, buf.String())
	w.Log(conn.AccessRecord{Method: "GET", Path: "/b", Status: 200})
	assert.Contains(t, buf.String(), "/a")
	assert.Contains(t, buf.String(), "/b")
}

func TestWriterFlushesOnClose(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, 100, 0)
	w.Log(conn.AccessRecord{Method: "GET", Path: "/only", Status: 204})
	require.NoError(t, w.Close())
	assert.Contains(t, buf.String(), "/only")
}

func TestWriterFlushesOnTimer(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, 100, 20*time.Millisecond)
	defer w.Close()
	w.Log(conn.AccessRecord{Method: "GET", Path: "/timed", Status: 200})

	require.Eventually(t, func() bool {
		return bytes.Contains(buf.Bytes(), []byte("/timed"))
	}, time.Second, 5*time.Millisecond)
}
