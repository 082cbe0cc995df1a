package conn

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"

	"github.com/pagi-dev/pagi/internal/codec"
	"github.com/pagi-dev/pagi/pagi"
)

// requestLine is the parsed first line of an HTTP/1.1 request.
type requestLine struct {
	Method      string
	Target      []byte
	HTTPVersion string
}

// readRequestLine reads and parses "METHOD SP target SP HTTP/x.y CRLF" from
// br. A peer that closed before sending anything comes back wrapped as
// KindConnectionClosed — callers treat that as a clean connection end, not
// an error worth a response.
func readRequestLine(br *bufio.Reader, maxSize int) (requestLine, error) {
	line, err := readLimitedLine(br, maxSize, pagi.KindHeaderTooLarge)
	if err != nil {
		return requestLine{}, err
	}
	if len(line) == 0 {
		return requestLine{}, pagi.NewError(pagi.KindBadRequest, fmt.Errorf("empty request line"))
	}

	parts := bytes.SplitN(line, []byte(" "), 3)
	if len(parts) != 3 {
		return requestLine{}, pagi.NewError(pagi.KindBadRequest, fmt.Errorf("malformed request line %q", line))
	}
	version := string(parts[2])
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return requestLine{}, pagi.NewError(pagi.KindBadRequest, fmt.Errorf("unsupported version %q", version))
	}
	return requestLine{Method: string(parts[0]), Target: parts[1], HTTPVersion: version}, nil
}

// readHeaders reads header lines until a blank line, enforcing both a total
// byte budget (-> 431 HEADER_TOO_LARGE) and an entry-count cap (-> 400
// BAD_REQUEST).
func readHeaders(br *bufio.Reader, maxHeaderSize, maxHeaderCount int) ([]pagi.Header, error) {
	headers := make([]pagi.Header, 0, 16)
	total := 0
	for {
		line, err := readLimitedLine(br, maxHeaderSize-total, pagi.KindHeaderTooLarge)
		if err != nil {
			return nil, err
		}
		total += len(line) + 2
		if total > maxHeaderSize {
			return nil, pagi.NewError(pagi.KindHeaderTooLarge, fmt.Errorf("header block exceeds %d bytes", maxHeaderSize))
		}
		if len(line) == 0 {
			break
		}
		if len(headers) >= maxHeaderCount {
			return nil, pagi.NewError(pagi.KindBadRequest, fmt.Errorf("header count exceeds %d", maxHeaderCount))
		}
		idx := bytes.IndexByte(line, ':')
		if idx <= 0 {
			return nil, pagi.NewError(pagi.KindBadRequest, fmt.Errorf("malformed header line %q", line))
		}
		name := codec.NormalizeHeaderName(line[:idx])
		value := codec.TrimHeaderValue(line[idx+1:])
		headers = append(headers, pagi.Header{Name: name, Value: append([]byte(nil), value...)})
	}
	return headers, nil
}

// readLimitedLine reads one CRLF- or LF-terminated line, giving up with
// overflowKind once the line exceeds limit+2 bytes; the bytes read up to
// that point (at most one reader buffer's worth) stay consumed (the caller
// picks HEADER_TOO_LARGE for request-line/header reads, BAD_REQUEST for
// fixed-size chunked-framing lines that aren't part of the header budget).
func readLimitedLine(br *bufio.Reader, limit int, overflowKind pagi.Kind) ([]byte, error) {
	if limit < 0 {
		limit = 0
	}
	var buf []byte
	for {
		chunk, err := br.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > limit+2 {
			return nil, pagi.NewError(overflowKind, fmt.Errorf("line exceeds %d bytes", limit))
		}
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return nil, classifyNetErr(err, pagi.KindConnectionClosed)
	}
	buf = bytes.TrimSuffix(buf, []byte("\n"))
	buf = bytes.TrimSuffix(buf, []byte("\r"))
	return buf, nil
}

// classifyNetErr distinguishes a deadline-exceeded I/O error from other
// faults: a timed-out read or write becomes TIMEOUT (surfaced as 408 and
// the connection closed), everything else keeps the caller's fallback kind.
func classifyNetErr(err error, fallback pagi.Kind) *pagi.Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pagi.NewError(pagi.KindTimeout, err)
	}
	return pagi.NewError(fallback, err)
}
