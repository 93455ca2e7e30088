package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/index.php/apps/oauth2/api/v1/token" {
			http.NotFound(w, r)
			return
		}
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access-1", "refresh_token": "refresh-1",
				"token_type": "Bearer", "expires_in": 3600,
			})
		case "refresh_token":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access-2", "refresh_token": "refresh-2",
				"token_type": "Bearer", "expires_in": 3600,
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthenticator_AuthCodeURL(t *testing.T) {
	a := NewAuthenticator("https://cloud.example.com/", "client", "secret", filepath.Join(t.TempDir(), "token.json"))

	raw, state, err := a.AuthCodeURL()
	require.NoError(t, err)
	assert.NotEmpty(t, state)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/index.php/apps/oauth2/authorize", u.Path)
	assert.Equal(t, "client", u.Query().Get("client_id"))
	assert.Equal(t, state, u.Query().Get("state"))
}

func TestAuthenticator_ExchangeAndRefresh(t *testing.T) {
	srv := tokenServer(t)
	path := filepath.Join(t.TempDir(), "token.json")
	a := NewAuthenticator(srv.URL, "client", "secret", path)
	ctx := context.Background()

	_, err := a.TokenSource(ctx)
	assert.True(t, errors.Is(err, ErrNoToken))

	tok, err := a.Exchange(ctx, " code \n")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// force a refresh by expiring the stored token
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored Token
	require.NoError(t, json.Unmarshal(data, &stored))
	stored.Expiry = stored.Expiry.AddDate(-1, 0, 0)
	data, err = json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	src, err := a.TokenSource(ctx)
	require.NoError(t, err)
	fresh, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-2", fresh.AccessToken)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "refresh-2"))
}
