// Package formcodec encodes and decodes application/x-www-form-urlencoded
// payloads the way the Zotero OAuth and file endpoints exchange them.
package formcodec

import (
	"fmt"
	"net/url"
	"strings"
)

// Field is a single key/value pair. Value is formatted with fmt.Sprint, so
// strings and integers are both accepted.
type Field struct {
	Key   string
	Value any
}

// Fields is an ordered set of form fields. Order is preserved on encoding.
type Fields []Field

// Add appends a field and returns the extended set.
func (f Fields) Add(key string, value any) Fields {
	return append(f, Field{Key: key, Value: value})
}

// Encode joins key=value pairs with '&' in insertion order. Keys and values
// are percent-encoded with the encodeURIComponent character set.
func Encode(fields Fields) string {
	pairs := make([]string, 0, len(fields))
	for _, field := range fields {
		pairs = append(pairs, PercentEncode(field.Key)+"="+PercentEncode(fmt.Sprint(field.Value)))
	}
	return strings.Join(pairs, "&")
}

// Decode parses a form-encoded body. Each pair is split at its first '=';
// '+' in values decodes to a space. A pair without '=' is stored under the
// empty key. Percent sequences that fail to decode are kept verbatim.
func Decode(body string) map[string]string {
	decoded := make(map[string]string)
	if body == "" {
		return decoded
	}

	for _, pair := range strings.Split(body, "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			key, value = "", pair
		}
		decoded[unescape(key)] = unescape(strings.ReplaceAll(value, "+", "%20"))
	}
	return decoded
}

func unescape(s string) string {
	out, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return out
}

// PercentEncode escapes everything outside A-Z a-z 0-9 and - _ . ! ~ * ' ( ).
func PercentEncode(s string) string {
	return escape(s, isComponentSafe)
}

const upperHex = "0123456789ABCDEF"

func escape(s string, safe func(byte) bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if safe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&15])
	}
	return b.String()
}

func isComponentSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
