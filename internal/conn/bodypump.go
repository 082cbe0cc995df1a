package conn

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/pagi-dev/pagi/pagi"
)

const bodyReadChunkSize = 65536

type bodyFraming int

const (
	framingNone bodyFraming = iota
	framingFixed
	framingChunked
)

// bodyPump implements the receive half of an HTTP conversation: it lazily
// pulls request-body bytes off the wire, one http.request event per call,
// honoring fixed/chunked framing, max_body_size, 100-continue, and trailer
// capture.
type bodyPump struct {
	br     *bufio.Reader
	conn   net.Conn
	limits Limits

	framing bodyFraming
	fixedRemaining int64
	chunked        *chunkedReader

	bytesSeen int64
	eof       bool

	expectContinue bool
	continueSent   bool

	touch func()
}

func newBodyPump(br *bufio.Reader, netConn net.Conn, limits Limits, framing bodyFraming, contentLength int64, expectContinue bool, touch func()) *bodyPump {
	p := &bodyPump{
		br: br, conn: netConn, limits: limits,
		framing: framing, fixedRemaining: contentLength,
		expectContinue: expectContinue, touch: touch,
	}
	if framing == framingChunked {
		p.chunked = newChunkedReader(br)
	}
	if framing == framingNone {
		p.eof = true
	}
	return p
}

// Next returns the next receive event for an HTTP conversation body.
func (p *bodyPump) Next() (pagi.Event, error) {
	if p.eof {
		return pagi.HTTPDisconnectEvent{}, nil
	}
	if p.touch != nil {
		p.touch()
	}
	if p.expectContinue && !p.continueSent {
		if _, err := p.conn.Write([]byte("HTTP/1.1 100 Continue\r\n\r\n")); err != nil {
			p.eof = true
			return nil, classifyNetErr(err, pagi.KindIOError)
		}
		p.continueSent = true
	}

	switch p.framing {
	case framingFixed:
		return p.nextFixed()
	case framingChunked:
		return p.nextChunked()
	default:
		p.eof = true
		return pagi.HTTPRequestEvent{More: false}, nil
	}
}

func (p *bodyPump) nextFixed() (pagi.Event, error) {
	if p.fixedRemaining == 0 {
		p.eof = true
		return pagi.HTTPRequestEvent{More: false}, nil
	}
	readSize := int64(bodyReadChunkSize)
	if p.fixedRemaining < readSize {
		readSize = p.fixedRemaining
	}
	buf := make([]byte, readSize)
	n, err := io.ReadFull(p.br, buf)
	if err != nil {
		p.eof = true
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return pagi.HTTPDisconnectEvent{}, nil
		}
		return nil, classifyNetErr(err, pagi.KindIOError)
	}
	p.fixedRemaining -= int64(n)
	p.bytesSeen += int64(n)
	if p.bytesSeen > p.limits.MaxBodySize {
		p.eof = true
		return nil, pagi.NewError(pagi.KindRequestTooLarge, fmt.Errorf("body exceeds max_body_size=%d", p.limits.MaxBodySize))
	}
	more := p.fixedRemaining > 0
	if !more {
		p.eof = true
	}
	return pagi.HTTPRequestEvent{Body: buf[:n], More: more}, nil
}

func (p *bodyPump) nextChunked() (pagi.Event, error) {
	payload, more, err := p.chunked.Next(p.limits.MaxHeaderSize, p.limits.MaxHeaderCount)
	if err != nil {
		p.eof = true
		if pagi.Is(err, pagi.KindConnectionClosed) {
			return pagi.HTTPDisconnectEvent{}, nil
		}
		return nil, err
	}
	p.bytesSeen += int64(len(payload))
	if p.bytesSeen > p.limits.MaxBodySize {
		p.eof = true
		return nil, pagi.NewError(pagi.KindRequestTooLarge, fmt.Errorf("body exceeds max_body_size=%d", p.limits.MaxBodySize))
	}
	if !more {
		p.eof = true
	}
	return pagi.HTTPRequestEvent{Body: payload, More: more}, nil
}

// Drain discards any unread body so the connection can move on to the next
// pipelined request, bounded by max_body_size.
func (p *bodyPump) Drain() error {
	for !p.eof {
		if _, err := p.Next(); err != nil {
			return err
		}
	}
	return nil
}

// Done reports whether the body has been fully consumed (or none existed).
func (p *bodyPump) Done() bool { return p.eof }

// Trailers returns any trailer headers captured from a chunked request body.
func (p *bodyPump) Trailers() []pagi.Header {
	if p.chunked == nil {
		return nil
	}
	return p.chunked.Trailers()
}
