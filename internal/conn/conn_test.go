package conn

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagi-dev/pagi/pagi"
)

// echoApp reads the full request body and reflects it back with a fixed
// Content-Length, exercising the lazy trivially-known-length path.
func echoApp(ctx context.Context, scope *pagi.Scope, receive pagi.Receiver, send pagi.Sender) error {
	var body []byte
	for {
		ev, err := receive.Receive(ctx)
		if err != nil {
			return err
		}
		switch e := ev.(type) {
		case pagi.HTTPRequestEvent:
			body = append(body, e.Body...)
			if !e.More {
				goto done
			}
		case pagi.HTTPDisconnectEvent:
			goto done
		}
	}
done:
	if err := send.Send(ctx, pagi.HTTPResponseStartEvent{
		Status:  200,
		Headers: []pagi.Header{{Name: "content-type", Value: []byte("text/plain")}},
	}); err != nil {
		return err
	}
	return send.Send(ctx, pagi.HTTPResponseBodyEvent{Body: body, More: false})
}

func TestConnectionServesSingleRequest(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	c := New(serverConn, Options{
		Application: echoApp,
		Limits: Limits{
			Timeout: time.Second, MaxHeaderSize: 8192, MaxHeaderCount: 50,
			MaxBodySize: 1 << 20, MaxWSFrameSize: 1 << 20, MaxReceiveQueue: 1 << 20,
		},
		Scheme: pagi.SchemeHTTP,
	})

	done := make(chan struct{})
	go func() {
		c.Serve(context.Background())
		close(done)
	}()

	req := "POST /echo HTTP/1.1\r\nHost: x\r\ncontent-length: 5\r\n\r\nhello"
	_, err := clientConn.Write([]byte(req))
	require.NoError(t, err)

	br := bufio.NewReader(clientConn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, statusLine, "200")

	var headerLines []string
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
		headerLines = append(headerLines, line)
	}
	require.NotEmpty(t, headerLines)

	body := make([]byte, 5)
	_, err = io.ReadFull(br, body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))

	clientConn.Close()
	<-done
}

func TestConnectionRejectsOversizedHeaderBlockWith431(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	c := New(serverConn, Options{
		Application: echoApp,
		Limits: Limits{
			Timeout: time.Second, MaxHeaderSize: 64, MaxHeaderCount: 50,
			MaxBodySize: 1 << 20, MaxWSFrameSize: 1 << 20, MaxReceiveQueue: 1 << 20,
		},
		Scheme: pagi.SchemeHTTP,
	})

	done := make(chan struct{})
	go func() {
		c.Serve(context.Background())
		close(done)
	}()

	req := "GET / HTTP/1.1\r\nHost: x\r\nX-Pad: " + string(make([]byte, 256)) + "\r\n\r\n"
	_, err := clientConn.Write([]byte(req))
	require.NoError(t, err)

	br := bufio.NewReader(clientConn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, statusLine, "431")

	clientConn.Close()
	<-done
}

func TestConnectionRejectsOversizedBodyWith413(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	c := New(serverConn, Options{
		Application: echoApp,
		Limits: Limits{
			Timeout: time.Second, MaxHeaderSize: 8192, MaxHeaderCount: 50,
			MaxBodySize: 4, MaxWSFrameSize: 1 << 20, MaxReceiveQueue: 1 << 20,
		},
		Scheme: pagi.SchemeHTTP,
	})

	done := make(chan struct{})
	go func() {
		c.Serve(context.Background())
		close(done)
	}()

	req := "POST /echo HTTP/1.1\r\nHost: x\r\ncontent-length: 5\r\n\r\nhello"
	_, err := clientConn.Write([]byte(req))
	require.NoError(t, err)

	br := bufio.NewReader(clientConn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, statusLine, "413")

	clientConn.Close()
	<-done
}

func TestConnectionIdleTimeoutReturns408(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	c := New(serverConn, Options{
		Application: echoApp,
		Limits: Limits{
			Timeout: 20 * time.Millisecond, MaxHeaderSize: 8192, MaxHeaderCount: 50,
			MaxBodySize: 1 << 20, MaxWSFrameSize: 1 << 20, MaxReceiveQueue: 1 << 20,
		},
		Scheme: pagi.SchemeHTTP,
	})

	done := make(chan struct{})
	go func() {
		c.Serve(context.Background())
		close(done)
	}()

	br := bufio.NewReader(clientConn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, statusLine, "408")

	clientConn.Close()
	<-done
}
