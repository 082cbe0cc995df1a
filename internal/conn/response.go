package conn

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/pagi-dev/pagi/pagi"
)

// responseEncoding is decided lazily: the writer defers flushing the status
// line and headers until it either learns the app supplied its own
// content-length, or sees the first body event and can tell whether the
// body is single-shot (trivially known length) or will stream across
// multiple events.
type responseEncoding int

const (
	encodingUndecided responseEncoding = iota
	encodingFixed
	encodingChunked
)

// httpResponseWriter implements pagi.Sender for an HTTP conversation.
type httpResponseWriter struct {
	bw          *bufio.Writer
	netConn     net.Conn
	httpVersion string
	headSuppress bool
	limits      Limits
	touch       func()

	startSent       bool
	pendingStatus   int
	pendingHeaders  []pagi.Header
	expectsTrailers bool

	encoding       responseEncoding
	headersFlushed bool

	bodyComplete    bool
	trailersWritten bool

	// closeAfter is set when the writer determines the connection cannot
	// stay alive for pipelining (no content-length on an HTTP/1.0 response).
	closeAfter bool
}

func newHTTPResponseWriter(bw *bufio.Writer, netConn net.Conn, httpVersion string, headSuppress bool, limits Limits, touch func()) *httpResponseWriter {
	return &httpResponseWriter{bw: bw, netConn: netConn, httpVersion: httpVersion, headSuppress: headSuppress, limits: limits, touch: touch}
}

func (w *httpResponseWriter) Send(ctx context.Context, ev pagi.Event) error {
	if w.touch != nil {
		w.touch()
	}
	switch e := ev.(type) {
	case pagi.HTTPResponseStartEvent:
		return w.start(e)
	case pagi.HTTPResponseBodyEvent:
		return w.body(e)
	case pagi.HTTPResponseTrailersEvent:
		return w.trailers(e)
	default:
		return pagi.NewError(pagi.KindInvalidState, fmt.Errorf("unexpected event %T on http scope", ev))
	}
}

func (w *httpResponseWriter) start(e pagi.HTTPResponseStartEvent) error {
	if w.startSent {
		return pagi.NewError(pagi.KindInvalidState, fmt.Errorf("response.start sent more than once"))
	}
	w.startSent = true
	w.pendingStatus = e.Status
	w.pendingHeaders = e.Headers
	w.expectsTrailers = e.Trailers

	if cl, ok := pagi.Headers(e.Headers, "content-length"); ok {
		w.encoding = encodingFixed
		return w.flushHeaders(string(cl))
	}
	return nil // defer: wait for first body event, or trailers-only empty body
}

// flushHeaders writes the status line and header block. contentLength, when
// non-empty, is injected as a Content-Length header; when encoding is
// chunked, a Transfer-Encoding header is injected instead.
func (w *httpResponseWriter) flushHeaders(contentLength string) error {
	if w.headersFlushed {
		return nil
	}
	w.headersFlushed = true

	statusText := httpStatusText(w.pendingStatus)
	if _, err := fmt.Fprintf(w.bw, "%s %d %s\r\n", w.httpVersion, w.pendingStatus, statusText); err != nil {
		return classifyNetErr(err, pagi.KindIOError)
	}
	wroteCL, wroteTE := false, false
	for _, h := range w.pendingHeaders {
		if _, err := fmt.Fprintf(w.bw, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return classifyNetErr(err, pagi.KindIOError)
		}
		if h.Name == "content-length" {
			wroteCL = true
		}
		if h.Name == "transfer-encoding" {
			wroteTE = true
		}
	}
	if w.encoding == encodingChunked && !wroteTE {
		if _, err := w.bw.WriteString("transfer-encoding: chunked\r\n"); err != nil {
			return classifyNetErr(err, pagi.KindIOError)
		}
	} else if w.encoding == encodingFixed && contentLength != "" && !wroteCL {
		if _, err := fmt.Fprintf(w.bw, "content-length: %s\r\n", contentLength); err != nil {
			return classifyNetErr(err, pagi.KindIOError)
		}
	}
	if w.encoding == encodingFixed && contentLength == "" && !wroteCL {
		w.closeAfter = true
		if _, err := w.bw.WriteString("connection: close\r\n"); err != nil {
			return classifyNetErr(err, pagi.KindIOError)
		}
	}
	_, err := w.bw.WriteString("\r\n")
	if err != nil {
		return classifyNetErr(err, pagi.KindIOError)
	}
	return nil
}

func (w *httpResponseWriter) body(e pagi.HTTPResponseBodyEvent) error {
	if !w.startSent {
		return pagi.NewError(pagi.KindInvalidState, fmt.Errorf("response.body before response.start"))
	}
	if w.bodyComplete {
		return pagi.NewError(pagi.KindInvalidState, fmt.Errorf("response.body after terminal body event"))
	}
	sources := 0
	if e.Body != nil {
		sources++
	}
	if e.File != "" {
		sources++
	}
	if e.FH != nil {
		sources++
	}
	if sources != 1 {
		return pagi.NewError(pagi.KindInvalidState, fmt.Errorf("exactly one of body/file/fh must be set, got %d", sources))
	}

	if w.encoding == encodingUndecided {
		w.decideEncoding(e)
	}
	if !w.headersFlushed {
		if err := w.flushHeaders(w.trivialContentLength(e)); err != nil {
			return err
		}
	}

	switch {
	case e.Body != nil:
		if err := w.writePayload(e.Body); err != nil {
			return err
		}
	default:
		if err := w.streamFile(e); err != nil {
			return err
		}
	}

	if !e.More {
		w.bodyComplete = true
		if w.encoding == encodingChunked && !w.expectsTrailers {
			if err := writeFinalChunk(w.bw, nil); err != nil {
				return classifyNetErr(err, pagi.KindIOError)
			}
		}
		if err := w.bw.Flush(); err != nil {
			return classifyNetErr(err, pagi.KindIOError)
		}
	}
	return nil
}

// decideEncoding picks fixed vs chunked on the first body event when the app
// omitted Content-Length: fixed when that event is terminal (its length is
// trivially known), chunked when more events follow on HTTP/1.1, and
// connection-close-delimited fixed otherwise.
func (w *httpResponseWriter) decideEncoding(first pagi.HTTPResponseBodyEvent) {
	if !first.More {
		w.encoding = encodingFixed
		return
	}
	if w.httpVersion == "HTTP/1.1" {
		w.encoding = encodingChunked
		return
	}
	w.encoding = encodingFixed
}

// trivialContentLength returns the Content-Length value to inject when it
// can be trivially known: a single-shot body event (More=false) with an
// explicit byte count.
func (w *httpResponseWriter) trivialContentLength(e pagi.HTTPResponseBodyEvent) string {
	if e.More {
		return ""
	}
	if e.Body != nil {
		return fmt.Sprintf("%d", len(e.Body))
	}
	if e.Length >= 0 {
		return fmt.Sprintf("%d", e.Length)
	}
	return ""
}

func (w *httpResponseWriter) writePayload(b []byte) error {
	if w.headSuppress {
		return nil
	}
	if w.encoding == encodingChunked {
		if err := writeChunk(w.bw, b); err != nil {
			return classifyNetErr(err, pagi.KindIOError)
		}
		return nil
	}
	if _, err := w.bw.Write(b); err != nil {
		return classifyNetErr(err, pagi.KindIOError)
	}
	return nil
}

// streamFile serves a file/fh response body: seek to Offset, read in
// 65536-byte chunks until Length bytes are written (or EOF), never reading
// the next chunk before the previous one is accepted by the transport
// (bounded memory regardless of file size).
func (w *httpResponseWriter) streamFile(e pagi.HTTPResponseBodyEvent) error {
	if w.headSuppress {
		return nil
	}

	var f *os.File
	if e.FH != nil {
		f = e.FH
	} else {
		opened, err := os.Open(e.File)
		if err != nil {
			return w.openFailure(err)
		}
		defer opened.Close()
		f = opened
	}

	if _, err := f.Seek(e.Offset, io.SeekStart); err != nil {
		return w.openFailure(err)
	}

	remaining := e.Length
	unbounded := remaining < 0
	buf := make([]byte, bodyReadChunkSize)
	for unbounded || remaining > 0 {
		readSize := int64(bodyReadChunkSize)
		if !unbounded && remaining < readSize {
			readSize = remaining
		}
		n, err := f.Read(buf[:readSize])
		if n > 0 {
			if werr := w.writePayload(buf[:n]); werr != nil {
				return werr
			}
			if !unbounded {
				remaining -= int64(n)
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return classifyNetErr(err, pagi.KindIOError)
		}
		if n == 0 {
			break
		}
	}
	return nil
}

// openFailure distinguishes a pre-response-start open failure (emit 500)
// from a post-start one (close the connection with no further writes).
func (w *httpResponseWriter) openFailure(err error) error {
	if !w.headersFlushed {
		w.pendingStatus = 500
		w.pendingHeaders = nil
		w.encoding = encodingFixed
		_ = w.flushHeaders("0")
		_ = w.bw.Flush()
		w.bodyComplete = true
	}
	return pagi.NewError(pagi.KindIOError, err)
}

func (w *httpResponseWriter) trailers(e pagi.HTTPResponseTrailersEvent) error {
	if !w.expectsTrailers {
		return pagi.NewError(pagi.KindInvalidState, fmt.Errorf("response.trailers without trailers=true on response.start"))
	}
	if !w.bodyComplete {
		return pagi.NewError(pagi.KindInvalidState, fmt.Errorf("response.trailers before terminal body event"))
	}
	if err := writeFinalChunk(w.bw, e.Headers); err != nil {
		return classifyNetErr(err, pagi.KindIOError)
	}
	w.trailersWritten = true
	if err := w.bw.Flush(); err != nil {
		return classifyNetErr(err, pagi.KindIOError)
	}
	return nil
}

// Finalize is called by the connection loop once the application returns,
// to cover cases where it never sent a final body event (treated as an
// empty terminal body) and to report whether the connection should close.
func (w *httpResponseWriter) Finalize() error {
	if !w.startSent {
		return nil
	}
	if !w.headersFlushed {
		w.encoding = encodingFixed
		if err := w.flushHeaders("0"); err != nil {
			return err
		}
	}
	if !w.bodyComplete {
		if w.encoding == encodingChunked {
			if err := writeFinalChunk(w.bw, nil); err != nil {
				return classifyNetErr(err, pagi.KindIOError)
			}
		}
		w.bodyComplete = true
	}
	if w.expectsTrailers && !w.trailersWritten {
		if err := writeFinalChunk(w.bw, nil); err != nil {
			return classifyNetErr(err, pagi.KindIOError)
		}
	}
	return w.bw.Flush()
}

// ShouldClose reports whether the connection must close after this
// response rather than continue pipelining.
func (w *httpResponseWriter) ShouldClose() bool { return w.closeAfter }

func httpStatusText(code int) string {
	if t, ok := statusText[code]; ok {
		return t
	}
	return "Status"
}

var statusText = map[int]string{
	100: "Continue", 101: "Switching Protocols",
	200: "OK", 201: "Created", 204: "No Content", 206: "Partial Content",
	301: "Moved Permanently", 302: "Found", 304: "Not Modified",
	400: "Bad Request", 401: "Unauthorized", 403: "Forbidden", 404: "Not Found",
	408: "Request Timeout", 413: "Payload Too Large", 431: "Request Header Fields Too Large",
	500: "Internal Server Error", 501: "Not Implemented", 503: "Service Unavailable",
}

// writeMinimalErrorResponse writes a minimal status-line+body error
// response ("status line + Status Text\n") and reports whether it
// succeeded.
func writeMinimalErrorResponse(bw *bufio.Writer, version string, status int) error {
	text := httpStatusText(status)
	body := []byte(text + "\n")
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %d %s\r\n", version, status, text)
	fmt.Fprintf(&buf, "content-length: %d\r\n", len(body))
	buf.WriteString("content-type: text/plain; charset=utf-8\r\n")
	buf.WriteString("connection: close\r\n\r\n")
	buf.Write(body)
	_, err := bw.Write(buf.Bytes())
	if err != nil {
		return err
	}
	return bw.Flush()
}
