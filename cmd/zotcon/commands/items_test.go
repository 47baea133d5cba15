package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAttachment(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		data        []byte
		wantMime    string
		wantCharset string
	}{
		{
			name:     "pdf",
			path:     "/papers/paper.pdf",
			data:     []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"),
			wantMime: "application/pdf",
		},
		{
			name:        "text",
			path:        "notes.txt",
			data:        []byte("The quick brown fox jumps over the lazy dog"),
			wantMime:    "text/plain",
			wantCharset: "utf-8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAttachment("ABCD2345", tt.path, tt.data)
			assert.Equal(t, "ABCD2345", a.Key)
			assert.Equal(t, tt.wantMime, a.MimeType)
			assert.Equal(t, tt.wantCharset, a.Charset)
			assert.Equal(t, tt.data, a.Data)
		})
	}

	a := newAttachment("K", "dir/fox.txt", []byte("The quick brown fox jumps over the lazy dog"))
	assert.Equal(t, "fox.txt", a.Filename)
	assert.Equal(t, "9e107d9d372bb6826bd81d3542a419d6", a.MD5)
}
