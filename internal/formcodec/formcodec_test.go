package formcodec

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string]string
	}{
		{
			name: "oauth request token response",
			body: "oauth_token=abc&oauth_token_secret=def&oauth_callback_confirmed=true",
			want: map[string]string{"oauth_token": "abc", "oauth_token_secret": "def", "oauth_callback_confirmed": "true"},
		},
		{
			name: "plus decodes to space in values only",
			body: "user+name=Jane+Doe",
			want: map[string]string{"user+name": "Jane Doe"},
		},
		{
			name: "percent sequences in both halves",
			body: "a%26b=c%3Dd%20e",
			want: map[string]string{"a&b": "c=d e"},
		},
		{
			name: "split at first equals sign",
			body: "k=v=w",
			want: map[string]string{"k": "v=w"},
		},
		{
			name: "pair without equals lands on empty key",
			body: "orphan&x=1",
			want: map[string]string{"": "orphan", "x": "1"},
		},
		{
			name: "malformed escape kept verbatim",
			body: "bad=%zz",
			want: map[string]string{"bad": "%zz"},
		},
		{
			name: "empty body",
			body: "",
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.body))
		})
	}
}

func TestEncodePreservesOrder(t *testing.T) {
	fields := Fields{}.
		Add("md5", "d41d8cd98f00b204e9800998ecf8427e").
		Add("filename", "my paper (v2).pdf").
		Add("filesize", 1024).
		Add("mtime", int64(1700000000000)).
		Add("contentType", "application/pdf")

	got := Encode(fields)

	assert.Equal(t,
		"md5=d41d8cd98f00b204e9800998ecf8427e&filename=my%20paper%20(v2).pdf&filesize=1024&mtime=1700000000000&contentType=application%2Fpdf",
		got)
}

func TestEncodeEmpty(t *testing.T) {
	assert.Equal(t, "", Encode(nil))
}

func TestEscaping(t *testing.T) {
	assert.Equal(t, "a%20b!*'()~", PercentEncode("a b!*'()~"))
	assert.Equal(t, "%C3%A9", PercentEncode("é"))
}

func TestRoundTripPrintableASCII(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	randomString := func() string {
		b := make([]byte, rng.IntN(12))
		for i := range b {
			b[i] = byte(0x20 + rng.IntN(0x7f-0x20))
		}
		return string(b)
	}

	for range 500 {
		m := make(map[string]string)
		var fields Fields
		for range rng.IntN(6) {
			k, v := randomString(), randomString()
			if _, dup := m[k]; dup {
				continue
			}
			m[k] = v
			fields = fields.Add(k, v)
		}

		got := Decode(Encode(fields))
		require.Equal(t, m, got, "encoded: %q", Encode(fields))
	}
}
