package auth

// Persisted credential keys.
const (
	KeyToken       = "auth-token"
	KeyTokenSecret = "auth-token_secret"
	KeyUserID      = "auth-userID"
	KeyUsername    = "auth-username"
)

// CredentialKeys lists every persisted credential key.
var CredentialKeys = []string{KeyToken, KeyTokenSecret, KeyUserID, KeyUsername}

// Zotero API authentication headers.
const (
	HeaderAPIKey     = "Zotero-API-Key"
	HeaderAPIVersion = "Zotero-API-Version"
	APIVersion       = "3"
)

// Credentials is the persisted credential set. TokenSecret is the API key sent
// on every authenticated request.
type Credentials struct {
	Token       string
	TokenSecret string
	UserID      string
	Username    string
}

// UserInfo identifies the authorized account.
type UserInfo struct {
	Username string
	UserID   string
}

func (c Credentials) values() map[string]string {
	return map[string]string{
		KeyToken:       c.Token,
		KeyTokenSecret: c.TokenSecret,
		KeyUserID:      c.UserID,
		KeyUsername:    c.Username,
	}
}

// APIHeaders returns the headers authenticating a request with apiKey.
func APIHeaders(apiKey string) map[string]string {
	return map[string]string{
		HeaderAPIKey:     apiKey,
		HeaderAPIVersion: APIVersion,
	}
}
