package auth

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/dghubble/oauth1"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// OAuthConfig holds the OAuth 1.0a client registration and endpoints.
type OAuthConfig struct {
	ClientKey    string
	ClientSecret string
	RequestURL   string
	AuthorizeURL string
	AccessURL    string
	// CallbackURL is sent as oauth_callback when requesting a token. Empty means
	// the provider's registered default.
	CallbackURL string
}

// signer produces HMAC-SHA1 signed OAuth 1.0a parameters.
type signer struct {
	consumerKey string
	hmac        *oauth1.HMACSigner
	clock       clockwork.Clock
	nonce       func() string
}

func newSigner(cfg OAuthConfig, clock clockwork.Clock) *signer {
	return &signer{
		consumerKey: cfg.ClientKey,
		hmac:        &oauth1.HMACSigner{ConsumerSecret: cfg.ClientSecret},
		clock:       clock,
		nonce: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// sign returns the protocol parameters merged with params, including oauth_signature.
func (s *signer) sign(method, rawURL string, params map[string]string, tokenSecret string) (map[string]string, error) {
	signed := map[string]string{
		"oauth_consumer_key":     s.consumerKey,
		"oauth_nonce":            s.nonce(),
		"oauth_signature_method": s.hmac.Name(),
		"oauth_timestamp":        strconv.FormatInt(s.clock.Now().Unix(), 10),
		"oauth_version":          "1.0",
	}
	maps.Copy(signed, params)

	base, err := signatureBase(method, rawURL, signed)
	if err != nil {
		return nil, err
	}
	signature, err := s.hmac.Sign(tokenSecret, base)
	if err != nil {
		return nil, fmt.Errorf("signing request: %w", err)
	}
	signed["oauth_signature"] = signature
	return signed, nil
}

// header returns an Authorization header value for a signed request.
func (s *signer) header(method, rawURL string, params map[string]string, tokenSecret string) (string, error) {
	signed, err := s.sign(method, rawURL, params, tokenSecret)
	if err != nil {
		return "", err
	}

	keys := slices.Sorted(maps.Keys(signed))
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, oauth1.PercentEncode(key)+`="`+oauth1.PercentEncode(signed[key])+`"`)
	}
	return "OAuth " + strings.Join(parts, ", "), nil
}

// signedURL returns rawURL with the signed parameters as its query string.
func (s *signer) signedURL(method, rawURL string, params map[string]string, tokenSecret string) (string, error) {
	signed, err := s.sign(method, rawURL, params, tokenSecret)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	for key, value := range u.Query() {
		if _, ok := signed[key]; !ok && len(value) > 0 {
			signed[key] = value[0]
		}
	}
	u.RawQuery = normalizedParams(signed)
	return u.String(), nil
}

// signatureBase builds the RFC 5849 section 3.4.1 signature base string.
// Query parameters already present on rawURL are part of the signed set.
func signatureBase(method, rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", rawURL, err)
	}

	all := maps.Clone(params)
	for key, values := range u.Query() {
		if _, ok := all[key]; !ok && len(values) > 0 {
			all[key] = values[0]
		}
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (scheme == "http" && strings.HasSuffix(host, ":80")) || (scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	baseURL := scheme + "://" + host + u.EscapedPath()

	return strings.ToUpper(method) + "&" +
		oauth1.PercentEncode(baseURL) + "&" +
		oauth1.PercentEncode(normalizedParams(all)), nil
}

// normalizedParams encodes params sorted by encoded key, then encoded value.
func normalizedParams(params map[string]string) string {
	type pair struct{ key, value string }
	pairs := make([]pair, 0, len(params))
	for key, value := range params {
		pairs = append(pairs, pair{oauth1.PercentEncode(key), oauth1.PercentEncode(value)})
	}
	slices.SortFunc(pairs, func(a, b pair) int {
		if c := strings.Compare(a.key, b.key); c != 0 {
			return c
		}
		return strings.Compare(a.value, b.value)
	})

	encoded := make([]string, 0, len(pairs))
	for _, p := range pairs {
		encoded = append(encoded, p.key+"="+p.value)
	}
	return strings.Join(encoded, "&")
}
