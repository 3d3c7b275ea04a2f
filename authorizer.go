package redditcore

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	pkgerrs "github.com/jamesprial/redditcore/pkg/errors"
)

// usesClientCredentialsExchange reports whether this refresh should go
// through golang.org/x/oauth2/clientcredentials instead of postToken: only
// the trusted ReadOnly authorizer's primary grant has an oauth2 package
// equivalent, and only while it isn't already holding a refresh_token.
func (a *Authorizer) usesClientCredentialsExchange() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.kind == grantReadOnly && a.authenticator.trusted && a.refreshToken == ""
}

// expirationMargin is subtracted from a token's server-reported expires_in
// when computing expiration: treat a token as expired 10 seconds before it
// actually is, so a request that starts just under the wire doesn't race the
// real expiry.
const expirationMargin = 10 * time.Second

type grantKind int

const (
	grantReadOnly grantKind = iota
	grantScript
	grantDeviceID
	grantImplicit
	grantAuthCode
)

type authState int

const (
	stateUnauthorized authState = iota
	stateAuthorized
	stateExpired
)

// Authorizer holds the current token state for one grant flow and knows how
// to refresh it. One Authorizer is normally shared by every Session that
// authenticates the same way; concurrent refreshes are collapsed into one
// in-flight request via singleflight.
type Authorizer struct {
	mu            sync.Mutex
	authenticator *Authenticator
	kind          grantKind

	accessToken  string
	refreshToken string
	scopes       map[string]struct{}
	expiration   time.Time

	deviceID          string
	username, password string
	twoFactorCallback func() string
	code              string
	redirectURI       string

	preRefreshCallback  func(*Authorizer)
	postRefreshCallback func(*Authorizer)

	sf singleflight.Group
}

// AuthorizerOption customizes an Authorizer at construction time.
type AuthorizerOption func(*Authorizer)

// WithRefreshToken seeds the authorizer with a previously obtained refresh
// token, skipping the initial grant exchange (client_credentials, password,
// or authorization_code) on the first Refresh.
func WithRefreshToken(token string) AuthorizerOption {
	return func(a *Authorizer) { a.refreshToken = token }
}

// WithPreRefreshCallback sets a hook invoked immediately before each token
// exchange.
func WithPreRefreshCallback(fn func(*Authorizer)) AuthorizerOption {
	return func(a *Authorizer) { a.preRefreshCallback = fn }
}

// WithPostRefreshCallback sets a hook invoked immediately after each
// successful token exchange.
func WithPostRefreshCallback(fn func(*Authorizer)) AuthorizerOption {
	return func(a *Authorizer) { a.postRefreshCallback = fn }
}

// NewReadOnlyAuthorizer builds an Authorizer for the client_credentials grant
// (trusted authenticators) or the installed_client grant (untrusted
// authenticators, which generates a random device_id unless WithRefreshToken
// is used instead).
func NewReadOnlyAuthorizer(authenticator *Authenticator, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{authenticator: authenticator, kind: grantReadOnly}
	if !authenticator.trusted {
		a.deviceID = uuid.NewString()
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewScriptAuthorizer builds an Authorizer for the password grant. Reddit
// accounts with two-factor authentication enabled expect the TOTP code
// appended to the password as "password:code"; twoFactorCallback supplies
// the current code on each refresh and may be nil.
func NewScriptAuthorizer(authenticator *Authenticator, username, password string, twoFactorCallback func() string, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		authenticator:     authenticator,
		kind:              grantScript,
		username:          username,
		password:          password,
		twoFactorCallback: twoFactorCallback,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewDeviceIDAuthorizer builds an Authorizer for the installed_client grant
// with an explicit device_id. An empty deviceID generates a random one.
func NewDeviceIDAuthorizer(authenticator *Authenticator, deviceID string, opts ...AuthorizerOption) *Authorizer {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	a := &Authorizer{authenticator: authenticator, kind: grantDeviceID, deviceID: deviceID}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewImplicitAuthorizer wraps an access token obtained by a browser-side
// implicit grant the caller already completed. It starts Authorized and can
// never refresh: Reddit's implicit grant issues no refresh_token.
func NewImplicitAuthorizer(authenticator *Authenticator, accessToken string, expiresIn int, scope string) *Authorizer {
	return &Authorizer{
		authenticator: authenticator,
		kind:          grantImplicit,
		accessToken:   accessToken,
		scopes:        splitScopes(scope),
		expiration:    time.Now().Add(time.Duration(expiresIn)*time.Second - expirationMargin),
	}
}

// NewAuthorizationCodeAuthorizer builds an Authorizer for the
// authorization-code grant. code is the one-time code a completed browser
// consent flow handed back; it is consumed on the first Refresh and replaced
// by the refresh_token the exchange returns (if any).
func NewAuthorizationCodeAuthorizer(authenticator *Authenticator, code, redirectURI string, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{authenticator: authenticator, kind: grantAuthCode, code: code, redirectURI: redirectURI}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func splitScopes(scope string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings.Fields(scope) {
		set[s] = struct{}{}
	}
	return set
}

// Scopes returns the scopes granted by the most recent token exchange.
func (a *Authorizer) Scopes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	scopes := make([]string, 0, len(a.scopes))
	for s := range a.scopes {
		scopes = append(scopes, s)
	}
	return scopes
}

// AccessToken returns the current access token, which may be empty or
// expired; callers that need a valid token should go through EnsureValid.
func (a *Authorizer) AccessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accessToken
}

func (a *Authorizer) state() authState {
	if a.accessToken == "" {
		return stateUnauthorized
	}
	if time.Now().Before(a.expiration) {
		return stateAuthorized
	}
	return stateExpired
}

// IsValid reports whether the authorizer currently holds an access token
// that has not expired.
func (a *Authorizer) IsValid() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state() == stateAuthorized
}

// CanRefresh reports whether a call to Refresh could plausibly succeed: an
// implicit authorizer never can, and an authorization-code authorizer can't
// once its one-time code is consumed without a refresh_token to fall back on.
func (a *Authorizer) CanRefresh() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.kind {
	case grantImplicit:
		return false
	case grantAuthCode:
		return a.code != "" || a.refreshToken != ""
	default:
		return true
	}
}

func (a *Authorizer) clearAccessToken() {
	a.mu.Lock()
	a.accessToken = ""
	a.expiration = time.Time{}
	a.mu.Unlock()
}

// buildGrantParams chooses the form body for the next token exchange. A
// ReadOnly or Script authorizer that already holds a refresh_token (unusual,
// but Reddit permits it) prefers refreshing over repeating its primary
// grant.
func (a *Authorizer) buildGrantParams() (url.Values, error) {
	form := url.Values{}
	switch a.kind {
	case grantReadOnly:
		if a.refreshToken != "" {
			form.Set("grant_type", "refresh_token")
			form.Set("refresh_token", a.refreshToken)
			return form, nil
		}
		if a.authenticator.trusted {
			form.Set("grant_type", "client_credentials")
		} else {
			form.Set("grant_type", installedClientGrant)
			form.Set("device_id", a.deviceID)
		}
	case grantScript:
		if a.refreshToken != "" {
			form.Set("grant_type", "refresh_token")
			form.Set("refresh_token", a.refreshToken)
			return form, nil
		}
		password := a.password
		if a.twoFactorCallback != nil {
			if otp := a.twoFactorCallback(); otp != "" {
				password = password + ":" + otp
			}
		}
		form.Set("grant_type", "password")
		form.Set("username", a.username)
		form.Set("password", password)
	case grantDeviceID:
		form.Set("grant_type", installedClientGrant)
		form.Set("device_id", a.deviceID)
	case grantImplicit:
		return nil, &pkgerrs.InvalidInvocation{Message: "cannot refresh an implicit authorizer"}
	case grantAuthCode:
		if a.code != "" {
			form.Set("grant_type", "authorization_code")
			form.Set("code", a.code)
			form.Set("redirect_uri", a.redirectURI)
		} else if a.refreshToken != "" {
			form.Set("grant_type", "refresh_token")
			form.Set("refresh_token", a.refreshToken)
		} else {
			return nil, &pkgerrs.InvalidInvocation{Message: "refresh token not provided"}
		}
	}
	return form, nil
}

// Refresh exchanges the authorizer's grant (or refresh_token) for a new
// access token. Concurrent calls from multiple goroutines sharing this
// Authorizer collapse into a single token-endpoint request; all callers
// observe its result.
func (a *Authorizer) Refresh(ctx context.Context) error {
	_, err, _ := a.sf.Do("refresh", func() (any, error) {
		return nil, a.refreshOnce(ctx)
	})
	return err
}

func (a *Authorizer) refreshOnce(ctx context.Context) error {
	if a.preRefreshCallback != nil {
		a.preRefreshCallback(a)
	}

	if a.usesClientCredentialsExchange() {
		tok, err := a.authenticator.FetchClientCredentialsToken(ctx)
		if err != nil {
			return err
		}
		a.mu.Lock()
		a.accessToken = tok.AccessToken
		if tok.RefreshToken != "" {
			a.refreshToken = tok.RefreshToken
		}
		if scope, ok := tok.Extra("scope").(string); ok {
			a.scopes = splitScopes(scope)
		}
		a.expiration = tok.Expiry.Add(-expirationMargin)
		a.mu.Unlock()

		if a.postRefreshCallback != nil {
			a.postRefreshCallback(a)
		}
		return nil
	}

	a.mu.Lock()
	form, err := a.buildGrantParams()
	a.mu.Unlock()
	if err != nil {
		return err
	}

	tr, err := a.authenticator.postToken(ctx, form)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.accessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		a.refreshToken = tr.RefreshToken
	}
	a.code = ""
	a.scopes = splitScopes(tr.Scope)
	a.expiration = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - expirationMargin)
	a.mu.Unlock()

	if a.postRefreshCallback != nil {
		a.postRefreshCallback(a)
	}
	return nil
}

// Revoke invalidates the authorizer's current token at Reddit and clears its
// local state. If a refresh_token is held it is revoked in preference to the
// access token, which invalidates every access token issued from it.
// Revoking an already-Unauthorized authorizer is InvalidInvocation, not a
// no-op: it almost always indicates a logic error at the call site.
func (a *Authorizer) Revoke(ctx context.Context) error {
	a.mu.Lock()
	accessToken := a.accessToken
	refreshToken := a.refreshToken
	a.mu.Unlock()

	if accessToken == "" && refreshToken == "" {
		return &pkgerrs.InvalidInvocation{Message: "no token available to revoke"}
	}

	token, tokenType := accessToken, "access_token"
	if refreshToken != "" {
		token, tokenType = refreshToken, "refresh_token"
	}
	if err := a.authenticator.RevokeToken(ctx, token, tokenType); err != nil {
		return err
	}

	a.mu.Lock()
	a.accessToken = ""
	a.refreshToken = ""
	a.scopes = nil
	a.expiration = time.Time{}
	a.mu.Unlock()
	return nil
}

// EnsureValid refreshes the authorizer if its token is missing or expired
// and a refresh is plausible, then returns the current access token. It
// returns *pkgerrs.InvalidInvocation if no valid token can be produced.
func (a *Authorizer) EnsureValid(ctx context.Context) (string, error) {
	if !a.IsValid() && a.CanRefresh() {
		if err := a.Refresh(ctx); err != nil {
			return "", err
		}
	}
	if !a.IsValid() {
		return "", &pkgerrs.InvalidInvocation{Message: "no valid access token and authorizer cannot refresh"}
	}
	return a.AccessToken(), nil
}
