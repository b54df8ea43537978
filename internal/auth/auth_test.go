package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marco-svitol/dunebugger-remote/internal/config"
)

func TestAuthenticate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			var req tokenRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "password", req.GrantType)
			assert.Equal(t, "device-user", req.Username)
			json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-123"})
		case "/userinfo":
			assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(UserInfo{WSSURL: "wss://example.test/hub", Subject: "device-42"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cli := NewClient(config.AuthConfig{
		AuthURL:  srv.URL,
		Username: "device-user",
		Password: "secret",
	})

	info, err := cli.Authenticate(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "wss://example.test/hub", info.WSSURL)
	assert.Equal(t, "device-42", info.Subject)
}

func TestFetchTokenMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenResponse{})
	}))
	defer srv.Close()

	cli := NewClient(config.AuthConfig{AuthURL: srv.URL})
	_, err := cli.FetchToken(t.Context())
	assert.Error(t, err)
}

func TestFetchUserInfoNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cli := NewClient(config.AuthConfig{AuthURL: srv.URL})
	_, err := cli.FetchUserInfo(t.Context(), "bad-token")
	assert.Error(t, err)
}
