package redditcore

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesprial/redditcore/internal"
	pkgerrs "github.com/jamesprial/redditcore/pkg/errors"
)

func newTestSessionAgainst(t *testing.T, mux *http.ServeMux) (*Session, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	requestor := internal.NewRequestor(nil)
	authenticator, err := NewTrustedAuthenticator(requestor, "client", "secret", "test-agent/1.0", WithRedditURL(server.URL))
	require.NoError(t, err)
	authorizer := NewReadOnlyAuthorizer(authenticator)

	session := NewSession(authorizer, requestor,
		WithUserAgent("test-agent/1.0"),
		WithOAuthURL(server.URL),
		WithSessionRedditURL(server.URL),
	)
	return session, server
}

func tokenHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600,"scope":"*"}`))
}

func TestSession_Request_DecodesJSONBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", tokenHandler)
	mux.HandleFunc("/api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"someone"}`))
	})

	session, _ := newTestSessionAgainst(t, mux)
	result, err := session.Request(t.Context(), http.MethodGet, "api/v1/me", RequestParams{})
	require.NoError(t, err)
	decoded, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "someone", decoded["name"])
}

func TestSession_Request_RetriesTransientServerErrorThenSucceeds(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", tokenHandler)
	mux.HandleFunc("/api/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	session, _ := newTestSessionAgainst(t, mux)
	result, err := session.Request(t.Context(), http.MethodGet, "api/v1/thing", RequestParams{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	decoded := result.(map[string]any)
	assert.Equal(t, true, decoded["ok"])
}

func TestSession_Request_ExhaustsRetryBudgetAsServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", tokenHandler)
	mux.HandleFunc("/api/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	session, _ := newTestSessionAgainst(t, mux)
	_, err := session.Request(t.Context(), http.MethodGet, "api/v1/thing", RequestParams{})
	require.Error(t, err)
	var serverErr *pkgerrs.ServerError
	assert.ErrorAs(t, err, &serverErr)
}

func TestSession_Request_ReauthorizesOnceOn401(t *testing.T) {
	var tokenCalls, apiCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		tokenHandler(w, r)
	})
	mux.HandleFunc("/api/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&apiCalls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	session, _ := newTestSessionAgainst(t, mux)
	_, err := session.Request(t.Context(), http.MethodGet, "api/v1/thing", RequestParams{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&apiCalls))
}

func TestSession_Request_SecondConsecutive401IsInvalidToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", tokenHandler)
	mux.HandleFunc("/api/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	session, _ := newTestSessionAgainst(t, mux)
	_, err := session.Request(t.Context(), http.MethodGet, "api/v1/thing", RequestParams{})
	require.Error(t, err)
	var invalidTok *pkgerrs.InvalidToken
	assert.ErrorAs(t, err, &invalidTok)
}

func TestSession_Request_ClassifiesNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", tokenHandler)
	mux.HandleFunc("/api/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	session, _ := newTestSessionAgainst(t, mux)
	_, err := session.Request(t.Context(), http.MethodGet, "api/v1/thing", RequestParams{})
	require.Error(t, err)
	var notFound *pkgerrs.NotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestSession_Request_UpdatesRateLimiterFromHeaders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", tokenHandler)
	mux.HandleFunc("/api/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-remaining", "42")
		w.Header().Set("x-ratelimit-used", "1")
		w.Header().Set("x-ratelimit-reset", "500")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	session, _ := newTestSessionAgainst(t, mux)
	_, err := session.Request(t.Context(), http.MethodGet, "api/v1/thing", RequestParams{})
	require.NoError(t, err)

	remaining, ok := session.rateLimiter.Remaining()
	require.True(t, ok)
	assert.Equal(t, float64(42), remaining)
}

func TestSession_Request_InjectsAPITypeJSONWithoutMutatingCaller(t *testing.T) {
	var gotBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", tokenHandler)
	mux.HandleFunc("/api/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	session, _ := newTestSessionAgainst(t, mux)
	callerBody := map[string]any{"text": "hello"}
	_, err := session.Request(t.Context(), http.MethodPost, "api/v1/thing", RequestParams{JSON: callerBody})
	require.NoError(t, err)

	assert.Equal(t, "json", gotBody["api_type"])
	assert.Equal(t, "hello", gotBody["text"])
	assert.NotContains(t, callerBody, "api_type", "buildBody must not mutate the caller's map")
}

func TestSession_Request_LogsRequestLifecycleWhenLoggerSet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", tokenHandler)
	mux.HandleFunc("/api/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	session, _ := newTestSessionAgainst(t, mux)
	var buf bytes.Buffer
	session.logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := session.Request(t.Context(), http.MethodGet, "api/v1/thing", RequestParams{})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "request completed")
}

func TestSession_Request_ForbiddenInsufficientScope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", tokenHandler)
	mux.HandleFunc("/api/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("www-authenticate", `Bearer realm="reddit", error="insufficient_scope"`)
		w.WriteHeader(http.StatusForbidden)
	})

	session, _ := newTestSessionAgainst(t, mux)
	_, err := session.Request(t.Context(), http.MethodGet, "api/v1/thing", RequestParams{})
	require.Error(t, err)
	var scopeErr *pkgerrs.InsufficientScope
	assert.ErrorAs(t, err, &scopeErr)
}
