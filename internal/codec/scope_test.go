package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagi-dev/pagi/internal/codec"
	"github.com/pagi-dev/pagi/pagi"
)

func TestDecodePath(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "/foo/bar", "/foo/bar", false},
		{"space", "/foo%20bar", "/foo bar", false},
		{"unicode", "/caf%C3%A9", "/café", false},
		{"truncated", "/foo%2", "", true},
		{"invalid-hex", "/foo%gg", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := codec.DecodePath([]byte(tc.in))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSplitPathQuery(t *testing.T) {
	rawPath, query := codec.SplitPathQuery([]byte("/a/b?x=1&y=2"))
	assert.Equal(t, "/a/b", string(rawPath))
	assert.Equal(t, "x=1&y=2", string(query))

	rawPath, query = codec.SplitPathQuery([]byte("/a/b"))
	assert.Equal(t, "/a/b", string(rawPath))
	assert.Nil(t, query)
}

func TestBuildScopeLowercasesNothingItself(t *testing.T) {
	// header normalization happens at parse time; BuildScope trusts callers
	// to have already lowercased names, but must not mutate values.
	headers := []pagi.Header{{Name: "content-type", Value: []byte("text/plain")}}
	scope, err := codec.BuildScope(codec.HTTPScopeInput{
		Type:        pagi.TypeHTTP,
		Method:      "GET",
		Target:      []byte("/hello%20world?q=1"),
		HTTPVersion: "HTTP/1.1",
		Headers:     headers,
		Scheme:      pagi.SchemeHTTP,
	})
	require.NoError(t, err)
	assert.Equal(t, "/hello world", scope.Path)
	assert.Equal(t, "/hello%20world", string(scope.RawPath))
	assert.Equal(t, "q=1", string(scope.QueryString))
	assert.Equal(t, headers, scope.Headers)
	assert.NotNil(t, scope.Headers)
}

func TestBuildScopeRejectsBadPercentEscape(t *testing.T) {
	_, err := codec.BuildScope(codec.HTTPScopeInput{
		Type:   pagi.TypeHTTP,
		Method: "GET",
		Target: []byte("/bad%zz"),
	})
	require.Error(t, err)
	assert.True(t, pagi.Is(err, pagi.KindBadRequest))
}

func TestBuildScopeNeverNilHeaders(t *testing.T) {
	scope, err := codec.BuildScope(codec.HTTPScopeInput{Type: pagi.TypeHTTP, Method: "GET", Target: []byte("/")})
	require.NoError(t, err)
	assert.NotNil(t, scope.Headers)
	assert.Empty(t, scope.Headers)
}

func TestBuildLifespanScope(t *testing.T) {
	scope := codec.BuildLifespanScope()
	assert.Equal(t, pagi.TypeLifespan, scope.Type)
	assert.NotNil(t, scope.Headers)
}
