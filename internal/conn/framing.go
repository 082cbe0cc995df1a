package conn

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pagi-dev/pagi/pagi"
)

// decodeBodyFraming inspects Content-Length / Transfer-Encoding / Expect
// headers and decides how the request body is framed: Transfer-Encoding:
// chunked, else Content-Length, else no body. A request carrying both
// chunked Transfer-Encoding and Content-Length is rejected as malformed.
func decodeBodyFraming(headers []pagi.Header) (framing bodyFraming, contentLength int64, expectContinue bool, err error) {
	te, hasTE := pagi.Headers(headers, "transfer-encoding")
	cl, hasCL := pagi.Headers(headers, "content-length")

	chunked := hasTE && containsToken(te, "chunked")
	if chunked && hasCL {
		return 0, 0, false, pagi.NewError(pagi.KindBadRequest, fmt.Errorf("request carries both content-length and chunked transfer-encoding"))
	}

	if expect, ok := pagi.Headers(headers, "expect"); ok {
		expectContinue = bytesEqualFold(bytes.TrimSpace(expect), "100-continue")
	}

	if chunked {
		return framingChunked, 0, expectContinue, nil
	}
	if hasCL {
		n, perr := strconv.ParseInt(string(bytes.TrimSpace(cl)), 10, 64)
		if perr != nil || n < 0 {
			return 0, 0, false, pagi.NewError(pagi.KindBadRequest, fmt.Errorf("invalid content-length %q", cl))
		}
		if n == 0 {
			return framingNone, 0, false, nil
		}
		return framingFixed, n, expectContinue, nil
	}
	return framingNone, 0, false, nil
}
