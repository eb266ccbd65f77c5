package common

import "golang.org/x/oauth2"

// AuthClient defines the ability to refresh an OAuth2 token.
// The concrete implementation lives next to the API client and speaks the
// backend's form-encoded token endpoint.
type AuthClient interface {
	// RefreshToken attempts to refresh using the given refresh token string.
	// Returns a new *oauth2.Token on success, or an error if refresh fails.
	RefreshToken(refreshToken string) (*oauth2.Token, error)
}
