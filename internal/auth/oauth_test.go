package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner() *signer {
	s := newSigner(OAuthConfig{ClientKey: "ck", ClientSecret: "cs"}, clockwork.NewFakeClockAt(time.Unix(1700000000, 0)))
	s.nonce = func() string { return "abc" }
	return s
}

func TestSignatureBase(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		params map[string]string
		want   string
	}{
		{
			name:   "request token",
			method: "post",
			url:    "https://www.zotero.org/oauth/request",
			params: map[string]string{
				"oauth_callback":         "http://127.0.0.1:23119/callback",
				"oauth_consumer_key":     "ck",
				"oauth_nonce":            "abc",
				"oauth_signature_method": "HMAC-SHA1",
				"oauth_timestamp":        "1700000000",
				"oauth_version":          "1.0",
			},
			want: "POST&https%3A%2F%2Fwww.zotero.org%2Foauth%2Frequest&" +
				"oauth_callback%3Dhttp%253A%252F%252F127.0.0.1%253A23119%252Fcallback" +
				"%26oauth_consumer_key%3Dck%26oauth_nonce%3Dabc%26oauth_signature_method%3DHMAC-SHA1" +
				"%26oauth_timestamp%3D1700000000%26oauth_version%3D1.0",
		},
		{
			name:   "default port and query merged",
			method: "GET",
			url:    "http://Example.COM:80/path?z=1",
			params: map[string]string{"a": "2"},
			want:   "GET&http%3A%2F%2Fexample.com%2Fpath&a%3D2%26z%3D1",
		},
		{
			name:   "non-default port kept",
			method: "GET",
			url:    "https://example.com:8443/",
			params: map[string]string{"a": "b c"},
			want:   "GET&https%3A%2F%2Fexample.com%3A8443%2F&a%3Db%2520c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := signatureBase(tt.method, tt.url, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizedParamsSortsByKeyThenValue(t *testing.T) {
	assert.Equal(t, "a=1&a0=2", normalizedParams(map[string]string{"a0": "2", "a": "1"}))
	assert.Equal(t, "b=%21&c=%2A", normalizedParams(map[string]string{"c": "*", "b": "!"}))
}

func TestSignComputesHMACSHA1(t *testing.T) {
	s := newTestSigner()

	signed, err := s.sign("POST", "https://www.zotero.org/oauth/access", map[string]string{"oauth_token": "rt", "oauth_verifier": "v"}, "ts")
	require.NoError(t, err)

	assert.Equal(t, "ck", signed["oauth_consumer_key"])
	assert.Equal(t, "abc", signed["oauth_nonce"])
	assert.Equal(t, "HMAC-SHA1", signed["oauth_signature_method"])
	assert.Equal(t, "1700000000", signed["oauth_timestamp"])
	assert.Equal(t, "1.0", signed["oauth_version"])
	assert.Equal(t, "rt", signed["oauth_token"])

	unsigned := make(map[string]string)
	for k, v := range signed {
		if k != "oauth_signature" {
			unsigned[k] = v
		}
	}
	base, err := signatureBase("POST", "https://www.zotero.org/oauth/access", unsigned)
	require.NoError(t, err)

	mac := hmac.New(sha1.New, []byte("cs&ts"))
	mac.Write([]byte(base))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), signed["oauth_signature"])
}

func TestHeaderFormat(t *testing.T) {
	s := newTestSigner()

	header, err := s.header("POST", "https://www.zotero.org/oauth/request", nil, "")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(header, "OAuth "))
	parts := strings.Split(strings.TrimPrefix(header, "OAuth "), ", ")
	require.Len(t, parts, 6)
	assert.Equal(t, `oauth_consumer_key="ck"`, parts[0])
	assert.Equal(t, `oauth_nonce="abc"`, parts[1])
	assert.True(t, strings.HasPrefix(parts[2], `oauth_signature="`))
	assert.Equal(t, `oauth_version="1.0"`, parts[5])
}

func TestSignedURL(t *testing.T) {
	s := newTestSigner()

	signed, err := s.signedURL("GET", "https://www.zotero.org/oauth/authorize", map[string]string{"oauth_token": "rt"}, "rts")
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "www.zotero.org", u.Host)
	assert.Equal(t, "/oauth/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "rt", q.Get("oauth_token"))
	assert.Equal(t, "ck", q.Get("oauth_consumer_key"))
	assert.NotEmpty(t, q.Get("oauth_signature"))
}

func TestHeaderEscapesReservedCharacters(t *testing.T) {
	s := newTestSigner()

	header, err := s.header("POST", "https://www.zotero.org/oauth/request", map[string]string{"oauth_callback": "http://127.0.0.1:23180/callback?x=(1)"}, "")
	require.NoError(t, err)
	assert.Contains(t, header, `oauth_callback="http%3A%2F%2F127.0.0.1%3A23180%2Fcallback%3Fx%3D%281%29"`)
}
