package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
)

// newTokenServer fakes a provider's token endpoint and, for LinkedIn, its
// userinfo endpoint.
func newTokenServer(t *testing.T, userinfo any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     "signed.id.token",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(userinfo)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testEndpoint(srv *httptest.Server) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func TestGoogleProvider_Exchange(t *testing.T) {
	srv := newTokenServer(t, nil)

	p := NewGoogleProvider("client-id", "client-secret", "http://localhost/auth/google/callback")
	p.config.Endpoint = testEndpoint(srv)
	p.validate = func(ctx context.Context, token, audience string) (*idtoken.Payload, error) {
		assert.Equal(t, "signed.id.token", token)
		assert.Equal(t, "client-id", audience)
		return &idtoken.Payload{
			Subject: "1098",
			Claims: map[string]any{
				"email":          "ann@example.com",
				"name":           "Ann",
				"email_verified": true,
			},
		}, nil
	}

	profile, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, &ExternalProfile{
		Provider:      "google",
		Subject:       "1098",
		Name:          "Ann",
		Email:         "ann@example.com",
		EmailVerified: true,
	}, profile)
	assert.Equal(t, "google:1098", profile.ExternalID())
}

func TestGoogleProvider_Exchange_Failures(t *testing.T) {
	srv := newTokenServer(t, nil)

	p := NewGoogleProvider("client-id", "client-secret", "")
	p.config.Endpoint = testEndpoint(srv)

	t.Run("bad code", func(t *testing.T) {
		_, err := p.Exchange(context.Background(), "bad-code")
		assert.Error(t, err)
	})

	t.Run("invalid id token", func(t *testing.T) {
		p.validate = func(context.Context, string, string) (*idtoken.Payload, error) {
			return nil, errors.New("idtoken: audience mismatch")
		}
		_, err := p.Exchange(context.Background(), "good-code")
		assert.Error(t, err)
	})

	t.Run("no email claim", func(t *testing.T) {
		p.validate = func(context.Context, string, string) (*idtoken.Payload, error) {
			return &idtoken.Payload{Subject: "1", Claims: map[string]any{}}, nil
		}
		_, err := p.Exchange(context.Background(), "good-code")
		assert.Error(t, err)
	})
}

func TestLinkedInProvider_Exchange(t *testing.T) {
	srv := newTokenServer(t, map[string]any{
		"sub":            "li-42",
		"name":           "Bob",
		"email":          "bob@example.com",
		"email_verified": true,
	})

	p := NewLinkedInProvider("client-id", "client-secret", "")
	p.config.Endpoint = testEndpoint(srv)
	p.userInfoURL = srv.URL + "/userinfo"

	profile, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "linkedin", profile.Provider)
	assert.Equal(t, "li-42", profile.Subject)
	assert.Equal(t, "bob@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Empty(t, profile.ProfileURL)
}

func TestLinkedInProvider_MissingSubject(t *testing.T) {
	srv := newTokenServer(t, map[string]any{"email": "bob@example.com"})

	p := NewLinkedInProvider("client-id", "client-secret", "")
	p.config.Endpoint = testEndpoint(srv)
	p.userInfoURL = srv.URL + "/userinfo"

	_, err := p.Exchange(context.Background(), "good-code")
	assert.Error(t, err)
}

func TestAuthURL_CarriesStateAndScopes(t *testing.T) {
	providers := []Provider{
		NewGoogleProvider("gid", "gsecret", "http://localhost/auth/google/callback"),
		NewLinkedInProvider("lid", "lsecret", "http://localhost/auth/linkedin/callback"),
	}

	for _, p := range providers {
		t.Run(p.Name(), func(t *testing.T) {
			u, err := url.Parse(p.AuthURL("state-xyz"))
			require.NoError(t, err)
			q := u.Query()
			assert.Equal(t, "state-xyz", q.Get("state"))
			assert.Equal(t, "openid profile email", q.Get("scope"))
			assert.Equal(t, "code", q.Get("response_type"))
		})
	}
}
