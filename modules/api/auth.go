package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/tiendafix/storeapi/common"
	"github.com/tiendafix/storeapi/common/model"
)

// tokenEndpoint is the backend's form-encoded token exchange. It is the
// one call in the SDK that is not JSON on the wire.
const tokenEndpoint = "auth/token"

// Authenticator speaks the backend's token endpoint and implements
// common.AuthClient for refreshes.
type Authenticator struct {
	baseURL    string
	httpClient common.HttpClient
	log        *logrus.Logger
}

// NewAuthenticator creates an Authenticator for baseURL.
func NewAuthenticator(baseURL string, httpClient common.HttpClient, log *logrus.Logger) *Authenticator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Authenticator{baseURL: baseURL, httpClient: httpClient, log: log}
}

// Login exchanges credentials for a bearer token.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)
	return a.exchange(ctx, form)
}

// RefreshToken attempts to refresh using the given refresh token string.
func (a *Authenticator) RefreshToken(refreshToken string) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return a.exchange(context.Background(), form)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func (a *Authenticator) exchange(ctx context.Context, form url.Values) (*oauth2.Token, error) {
	endpoint, err := url.JoinPath(a.baseURL, tokenEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, common.NewTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, common.ErrorFromResponse(resp.StatusCode, data)
	}

	var tr tokenResponse
	if err := model.JSONUnmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("malformed token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	token := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
	}
	if tr.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	a.log.WithField("expires_in", tr.ExpiresIn).Debug("token exchange completed")
	return token, nil
}

var _ common.AuthClient = (*Authenticator)(nil)
