// Package auth handles sign-in through Google OAuth and browser sessions.
//
// Identity is fully delegated: Google issues the access token used for
// mailbox access, and this package only tracks token freshness and the
// signed session cookie that ties a browser to a user record.
package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
)

var (
	// ErrUnauthenticated means no session cookie or an invalid one.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrTokenExpired means the stored Google access token has expired;
	// policy is redirect to login, never a silent retry.
	ErrTokenExpired = errors.New("access token expired")
)

// Scopes requested at sign-in: read the mailbox for bill scanning, send
// breakdown emails, and identify the user.
func Scopes() []string {
	return []string{
		gmail.GmailReadonlyScope,
		gmail.GmailSendScope,
		oauth2api.UserinfoEmailScope,
		oauth2api.UserinfoProfileScope,
	}
}

// OAuthConfig builds the OAuth config from inline client JSON or a client
// file, mirroring how credentials are supplied to the worker.
func OAuthConfig(clientJSON, clientFile, redirectURL string) (*oauth2.Config, error) {
	var b []byte
	var err error
	switch {
	case clientJSON != "":
		b = []byte(clientJSON)
	case clientFile != "":
		b, err = os.ReadFile(clientFile)
		if err != nil {
			return nil, fmt.Errorf("read client file: %w", err)
		}
	default:
		return nil, errors.New("missing OAuth client credentials")
	}

	cfg, err := google.ConfigFromJSON(b, Scopes()...)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	cfg.RedirectURL = redirectURL
	return cfg, nil
}

// TokenFresh reports whether an access token expiring at expiry is still
// usable at now. An expiry at or before now is expired.
func TokenFresh(expiry, now time.Time) bool {
	return expiry.After(now)
}

// CheckToken converts a stale expiry into ErrTokenExpired.
func CheckToken(expiry, now time.Time) error {
	if !TokenFresh(expiry, now) {
		return ErrTokenExpired
	}
	return nil
}
