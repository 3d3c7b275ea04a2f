// Package redditcore is an authenticated HTTP session core for Reddit's
// OAuth2 API: it manages the token lifecycle for five grant flows, paces
// requests against Reddit's adaptive rate-limit headers, and retries
// transient failures with backoff. It does not know anything about posts,
// comments, or subreddits - callers build their own request paths and
// decode the returned JSON however they like.
//
// # Quick Start
//
// The simplest configuration is read-only access with a confidential
// (trusted) app:
//
//	requestor := internal.NewRequestor(nil)
//	authenticator, err := redditcore.NewTrustedAuthenticator(requestor, clientID, clientSecret, userAgent)
//	if err != nil {
//		log.Fatal(err)
//	}
//	authorizer := redditcore.NewReadOnlyAuthorizer(authenticator)
//	session := redditcore.NewSession(authorizer, requestor, redditcore.WithUserAgent(userAgent))
//
//	me, err := session.Request(ctx, http.MethodGet, "api/v1/me", redditcore.RequestParams{})
//
// # Grant Flows
//
// Five constructors build an Authorizer for Reddit's five grant flows:
//
//   - NewReadOnlyAuthorizer - client_credentials (trusted apps) or the
//     installed_client grant with a generated device_id (untrusted apps).
//     No user context; good for public, read-only data.
//   - NewScriptAuthorizer - the password grant, acting as a specific
//     account. Accepts an optional two-factor callback for accounts with
//     TOTP enabled.
//   - NewDeviceIDAuthorizer - the installed_client grant with a caller-
//     supplied device_id, for apps that persist one per installation.
//   - NewAuthorizationCodeAuthorizer - the authorization-code grant,
//     completing a browser consent flow (Authenticator.AuthorizationURL
//     builds the URL that starts it).
//   - NewImplicitAuthorizer - wraps a token a browser-side implicit grant
//     already produced. It never refreshes: Reddit's implicit grant issues
//     no refresh_token.
//
// # Authentication Lifecycle
//
// An Authorizer starts Unauthorized and becomes Authorized on its first
// successful Refresh (or immediately, for NewImplicitAuthorizer). Session
// calls Authorizer.EnsureValid before every request, which refreshes
// automatically when the current token is missing or within 10 seconds of
// expiring. A single 401 triggers one implicit re-authorization attempt; a
// second consecutive 401 surfaces as *pkgerrs.InvalidToken.
//
// # Rate Limiting
//
// Session paces requests using the x-ratelimit-remaining/-used/-reset
// headers Reddit attaches to every OAuth response: once the remaining
// budget for the current window is exhausted, Session.Request blocks until
// the header-reported reset before sending the next request. A fresh
// session with no prior response headers never delays its first request.
//
// # Error Handling
//
// Failures surface as one of three families in pkg/errors:
//
//	result, err := session.Request(ctx, http.MethodGet, "api/v1/me", redditcore.RequestParams{})
//	if err != nil {
//		switch e := err.(type) {
//		case *pkgerrs.RequestException:
//			// transport-level failure (connection reset, timeout, ...)
//		case *pkgerrs.OAuthException:
//			// token endpoint rejected the grant
//		case *pkgerrs.InvalidToken:
//			// access token repudiated after one re-auth attempt
//		case *pkgerrs.ResponseException:
//			// any other non-2xx status; check e.StatusCode
//		}
//	}
//
// # Logging
//
// Callers that want request/response tracing should wrap the *http.Client
// passed to internal.NewRequestor with their own slog-instrumented
// http.RoundTripper; the core itself stays silent so library consumers
// control their own log volume and format.
//
// # Configuration
//
// LoadConfigFromEnv builds a Config from environment variables (prefix
// optional); LoadDotEnv loads a .env file into the process environment
// first, for local development. Neither is required - a Config can always
// be built as a struct literal.
package redditcore
