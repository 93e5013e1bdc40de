package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestProvider(t *testing.T, userinfo string) *GoogleProvider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(userinfo))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewGoogleProvider("client", "secret", "http://localhost/callback")
	p.config.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	p.userInfoURL = srv.URL + "/userinfo"
	return p
}

func TestGoogleProvider_Exchange(t *testing.T) {
	p := newTestProvider(t, `{"sub":"123","email":"ana@gmail.com","email_verified":true,"name":"Ana","picture":"https://img/ana.png"}`)

	user, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "ana@gmail.com", user.Email)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, "https://img/ana.png", user.Picture)
}

func TestGoogleProvider_UnverifiedEmail(t *testing.T) {
	p := newTestProvider(t, `{"sub":"123","email":"ana@gmail.com","email_verified":false}`)

	_, err := p.Exchange(context.Background(), "code")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestGoogleProvider_AuthURL(t *testing.T) {
	p := NewGoogleProvider("client", "secret", "http://localhost/callback")
	state, err := NewState()
	require.NoError(t, err)

	u, err := url.Parse(p.AuthURL(state))
	require.NoError(t, err)
	assert.Equal(t, state, u.Query().Get("state"))
	assert.Equal(t, "client", u.Query().Get("client_id"))
	assert.Contains(t, u.Query().Get("scope"), "email")
}
