// Package codec builds the per-conversation pagi.Scope from wire-level
// request data and frames the handful of fields that need on-wire exactness
// (raw_path, query_string) versus decoded convenience (path).
package codec

import (
	"bytes"
	"strings"

	"github.com/pagi-dev/pagi/pagi"
)

// NormalizeHeaderName lowercases an ASCII header name. Header values are
// never touched beyond whitespace trimming, which callers do at parse time.
func NormalizeHeaderName(name []byte) string {
	return strings.ToLower(string(name))
}

// TrimHeaderValue trims leading/trailing OWS (space/tab) per RFC 7230 §3.2.
func TrimHeaderValue(v []byte) []byte {
	return bytes.Trim(v, " \t")
}

// SplitPathQuery splits a request-target into raw path bytes and the query
// string (without the leading '?'), exactly as they appeared on the wire.
func SplitPathQuery(target []byte) (rawPath, query []byte) {
	if i := bytes.IndexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, nil
}

// HTTPScopeInput carries everything the codec needs to build an http,
// websocket, or sse scope; the connection state machine fills this in from
// the parsed request line and header block.
type HTTPScopeInput struct {
	Type         pagi.Type
	Method       string
	Target       []byte
	HTTPVersion  string
	Headers      []pagi.Header
	Scheme       pagi.Scheme
	Client       pagi.Addr
	Server       pagi.Addr
	Subprotocols []string
}

// BuildScope constructs a Scope from in, percent-decoding the path.
// Returns a *pagi.Error wrapping KindBadRequest on malformed percent-escapes.
func BuildScope(in HTTPScopeInput) (*pagi.Scope, error) {
	rawPath, query := SplitPathQuery(in.Target)
	path, err := DecodePath(rawPath)
	if err != nil {
		return nil, pagi.NewError(pagi.KindBadRequest, err)
	}

	headers := in.Headers
	if headers == nil {
		headers = []pagi.Header{}
	}

	return &pagi.Scope{
		Type:         in.Type,
		Method:       in.Method,
		Path:         path,
		RawPath:      append([]byte(nil), rawPath...),
		QueryString:  nilIfEmpty(query),
		Scheme:       in.Scheme,
		HTTPVersion:  in.HTTPVersion,
		Headers:      headers,
		Client:       in.Client,
		Server:       in.Server,
		Subprotocols: in.Subprotocols,
	}, nil
}

// BuildLifespanScope constructs the once-per-process lifespan scope.
func BuildLifespanScope() *pagi.Scope {
	return &pagi.Scope{Type: pagi.TypeLifespan, Headers: []pagi.Header{}}
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
