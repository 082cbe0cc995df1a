// Command pagi-healthcheck probes a running pagi-server's plain HTTP
// listener, for use as a container HEALTHCHECK.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

func main() {
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.Int("port", 8000, "server port")
	path := flag.String("path", "/", "path to request")
	timeout := flag.Duration("timeout", 2*time.Second, "request timeout")
	flag.Parse()

	client := http.Client{Timeout: *timeout}

	url := fmt.Sprintf("http://%s/%s", net.JoinHostPort(*host, strconv.Itoa(*port)), trimLeadingSlash(*path))
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		fmt.Fprintf(os.Stderr, "healthcheck failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	os.Exit(0)
}

func trimLeadingSlash(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p[1:]
	}
	return p
}
