package cox

import (
	"os"
	"strings"
)

// DefaultEmailDomain is appended to the username by the sign-in form.
const DefaultEmailDomain = "@cox.net"

// Environment variables honored when credentials are not passed explicitly.
const (
	EnvUsername = "COX_STATUS_USERNAME"
	EnvPassword = "COX_STATUS_PASSWORD"
)

// Credentials hold the cox.com sign-in identity.
type Credentials struct {
	Username    string
	Password    string
	EmailDomain string
}

type CredentialSource string

const (
	CredentialSourceExplicit CredentialSource = "explicit"
	CredentialSourceEnv      CredentialSource = "env"
	CredentialSourceNone     CredentialSource = "none"
)

// ResolveCredentials resolves the account credentials.
//
// Precedence per field:
//  1. provided (if non-empty)
//  2. COX_STATUS_USERNAME / COX_STATUS_PASSWORD env vars
//
// It never prints credentials. The returned source describes where the
// password came from.
func ResolveCredentials(username, password string) (Credentials, CredentialSource) {
	creds := Credentials{
		Username: strings.TrimSpace(username),
		Password: password,
	}
	source := CredentialSourceExplicit

	if creds.Username == "" {
		creds.Username = strings.TrimSpace(os.Getenv(EnvUsername))
	}
	if creds.Password == "" {
		creds.Password = os.Getenv(EnvPassword)
		source = CredentialSourceEnv
	}
	if creds.Username == "" || creds.Password == "" {
		source = CredentialSourceNone
	}
	return creds, source
}
