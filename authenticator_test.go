package redditcore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesprial/redditcore/internal"
	pkgerrs "github.com/jamesprial/redditcore/pkg/errors"
)

func TestNewTrustedAuthenticator_RejectsEmptyClientID(t *testing.T) {
	requestor := internal.NewRequestor(nil)
	_, err := NewTrustedAuthenticator(requestor, "", "secret", "test-agent/1.0")
	require.Error(t, err)
	var cfgErr *pkgerrs.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewTrustedAuthenticator_RejectsBadUserAgent(t *testing.T) {
	requestor := internal.NewRequestor(nil)
	_, err := NewTrustedAuthenticator(requestor, "client", "secret", "x")
	require.Error(t, err)
	var cfgErr *pkgerrs.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestFetchClientCredentialsToken_RejectsUntrusted(t *testing.T) {
	requestor := internal.NewRequestor(nil)
	authenticator, err := NewUntrustedAuthenticator(requestor, "client", "https://example.com/cb", "test-agent/1.0")
	require.NoError(t, err)

	_, err = authenticator.FetchClientCredentialsToken(context.Background())
	require.Error(t, err)
	var invErr *pkgerrs.InvalidInvocation
	assert.ErrorAs(t, err, &invErr)
}

func TestFetchClientCredentialsToken_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/access_token", r.URL.Path)
		assert.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"abc123","token_type":"bearer","expires_in":3600,"scope":"*"}`))
	}))
	defer server.Close()

	requestor := internal.NewRequestor(nil)
	authenticator, err := NewTrustedAuthenticator(requestor, "client", "secret", "test-agent/1.0", WithRedditURL(server.URL))
	require.NoError(t, err)

	tok, err := authenticator.FetchClientCredentialsToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok.AccessToken)
}

func TestFetchClientCredentialsToken_OAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer server.Close()

	requestor := internal.NewRequestor(nil)
	authenticator, err := NewTrustedAuthenticator(requestor, "client", "secret", "test-agent/1.0", WithRedditURL(server.URL))
	require.NoError(t, err)

	_, err = authenticator.FetchClientCredentialsToken(context.Background())
	require.Error(t, err)
	var oauthErr *pkgerrs.OAuthException
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, "invalid_client", oauthErr.GrantError)
}

func TestAuthorizationURL_RejectsTrusted(t *testing.T) {
	requestor := internal.NewRequestor(nil)
	authenticator, err := NewTrustedAuthenticator(requestor, "client", "secret", "test-agent/1.0")
	require.NoError(t, err)

	_, err = authenticator.AuthorizationURL([]string{"read"}, "state", "permanent", false)
	require.Error(t, err)
	var invErr *pkgerrs.InvalidInvocation
	assert.ErrorAs(t, err, &invErr)
}

func TestAuthorizationURL_RejectsImplicitPermanent(t *testing.T) {
	requestor := internal.NewRequestor(nil)
	authenticator, err := NewUntrustedAuthenticator(requestor, "client", "https://example.com/cb", "test-agent/1.0")
	require.NoError(t, err)

	_, err = authenticator.AuthorizationURL([]string{"read"}, "state", "permanent", true)
	require.Error(t, err)
}

func TestAuthorizationURL_BuildsExpectedQuery(t *testing.T) {
	requestor := internal.NewRequestor(nil)
	authenticator, err := NewUntrustedAuthenticator(requestor, "client", "https://example.com/cb", "test-agent/1.0")
	require.NoError(t, err)

	authURL, err := authenticator.AuthorizationURL([]string{"read", "identity"}, "xyz", "temporary", false)
	require.NoError(t, err)
	assert.Contains(t, authURL, "response_type=code")
	assert.Contains(t, authURL, "state=xyz")
	assert.Contains(t, authURL, "duration=temporary")
}

func TestPostToken_SurfacesOAuthException(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	requestor := internal.NewRequestor(nil)
	authenticator, err := NewTrustedAuthenticator(requestor, "client", "secret", "test-agent/1.0", WithRedditURL(server.URL))
	require.NoError(t, err)

	form := url.Values{"grant_type": {"password"}}
	_, err = authenticator.postToken(context.Background(), form)
	require.Error(t, err)
	var oauthErr *pkgerrs.OAuthException
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, "invalid_grant", oauthErr.GrantError)
}

func TestRevokeToken_SucceedsOnNoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/revoke_token", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	requestor := internal.NewRequestor(nil)
	authenticator, err := NewTrustedAuthenticator(requestor, "client", "secret", "test-agent/1.0", WithRedditURL(server.URL))
	require.NoError(t, err)

	err = authenticator.RevokeToken(context.Background(), "tok", "access_token")
	assert.NoError(t, err)
}
