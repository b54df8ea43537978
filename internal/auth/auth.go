// Package auth implements the OAuth password-grant exchange the cloud
// channel uses to obtain a websocket URL and access token before it can
// open a session, grounded on the device's original Auth0 client.
package auth

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/marco-svitol/dunebugger-remote/internal/config"
)

// UserInfo is the subset of the identity provider's userinfo response the
// cloud channel needs to join a session.
type UserInfo struct {
	WSSURL   string `json:"wss_url"`
	Subject  string `json:"sub"`
	Name     string `json:"name"`
	Picture  string `json:"picture"`
	Email    string `json:"email"`
}

// Client exchanges device credentials for an access token and the
// websocket URL to connect to, over HTTPS.
type Client struct {
	cfg        config.AuthConfig
	httpClient *http.Client
}

// NewClient builds an auth Client with a hardened transport matching the
// rest of the supervisor's outbound HTTP clients: TLS 1.2+, bounded
// timeouts, connection reuse.
func NewClient(cfg config.AuthConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        5,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Scope        string `json:"scope"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// FetchToken performs the password-grant token exchange against
// cfg.AuthURL and returns the access token to present on later requests.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	body := tokenRequest{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		GrantType:    "password",
		Username:     c.cfg.Username,
		Password:     c.cfg.Password,
		Scope:        "openid profile email",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("auth: encoding token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL+"/oauth/token", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("auth: building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth: token request returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("auth: decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("auth: token response missing access_token")
	}
	return tr.AccessToken, nil
}

// FetchUserInfo uses an access token obtained from FetchToken to look up
// the websocket URL the cloud channel should connect to.
func (c *Client) FetchUserInfo(ctx context.Context, accessToken string) (UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AuthURL+"/userinfo", nil)
	if err != nil {
		return UserInfo{}, fmt.Errorf("auth: building userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UserInfo{}, fmt.Errorf("auth: userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, fmt.Errorf("auth: userinfo request returned status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return UserInfo{}, fmt.Errorf("auth: decoding userinfo response: %w", err)
	}
	return info, nil
}

// Authenticate performs the full token-then-userinfo exchange, the
// sequence the cloud channel runs on every (re)join attempt.
func (c *Client) Authenticate(ctx context.Context) (UserInfo, error) {
	token, err := c.FetchToken(ctx)
	if err != nil {
		return UserInfo{}, err
	}
	return c.FetchUserInfo(ctx, token)
}
