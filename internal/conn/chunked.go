package conn

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"

	"github.com/pagi-dev/pagi/pagi"
)

// chunkedReader pulls one HTTP/1.1 chunked-transfer-coding chunk at a time
// from br. Trailer headers on a zero-size final chunk are captured and
// returned so the caller can append them to scope.Headers.
type chunkedReader struct {
	br        *bufio.Reader
	done      bool
	trailers  []pagi.Header
}

func newChunkedReader(br *bufio.Reader) *chunkedReader {
	return &chunkedReader{br: br}
}

// Next returns the next chunk's payload and whether more chunks follow.
// On the terminal (size-0) chunk it reads and stores any trailer headers.
func (c *chunkedReader) Next(maxHeaderSize, maxHeaderCount int) (payload []byte, more bool, err error) {
	if c.done {
		return nil, false, fmt.Errorf("chunked reader already finished")
	}
	sizeLine, rerr := readLimitedLine(c.br, 64, pagi.KindBadRequest)
	if rerr != nil {
		return nil, false, rerr
	}
	// chunk-size may carry ";ext" extensions we don't support; ignore them.
	if i := bytes.IndexByte(sizeLine, ';'); i >= 0 {
		sizeLine = sizeLine[:i]
	}
	size, perr := strconv.ParseInt(string(bytes.TrimSpace(sizeLine)), 16, 64)
	if perr != nil || size < 0 {
		return nil, false, pagi.NewError(pagi.KindBadRequest, fmt.Errorf("invalid chunk size %q", sizeLine))
	}

	if size == 0 {
		trailers, terr := readHeaders(c.br, maxHeaderSize, maxHeaderCount)
		if terr != nil {
			return nil, false, terr
		}
		c.trailers = trailers
		c.done = true
		return nil, false, nil
	}

	buf := make([]byte, size)
	if _, err := readFull(c.br, buf); err != nil {
		return nil, false, classifyNetErr(err, pagi.KindConnectionClosed)
	}
	// consume the trailing CRLF after the chunk payload.
	if _, err := readLimitedLine(c.br, 2, pagi.KindBadRequest); err != nil {
		return nil, false, err
	}
	return buf, true, nil
}

func (c *chunkedReader) Trailers() []pagi.Header { return c.trailers }

func readFull(br *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := br.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// writeChunk writes one chunked-transfer-coding chunk: "<hex-size>\r\n<payload>\r\n".
func writeChunk(bw *bufio.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(bw, "%x\r\n", len(payload)); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := bw.Write(payload); err != nil {
			return err
		}
	}
	_, err := bw.WriteString("\r\n")
	return err
}

// writeFinalChunk writes the "0\r\n...\r\n" terminator, optionally with
// trailer headers. A declared-but-empty trailer set still gets an explicit
// zero-length trailer section for wire-format consistency.
func writeFinalChunk(bw *bufio.Writer, trailers []pagi.Header) error {
	if _, err := bw.WriteString("0\r\n"); err != nil {
		return err
	}
	for _, h := range trailers {
		if _, err := fmt.Fprintf(bw, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return err
		}
	}
	_, err := bw.WriteString("\r\n")
	return err
}
