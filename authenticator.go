package redditcore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jamesprial/redditcore/internal"
	pkgerrs "github.com/jamesprial/redditcore/pkg/errors"
)

const (
	defaultRedditURL     = "https://www.reddit.com/"
	installedClientGrant = "https://oauth.reddit.com/grants/installed_client"
)

// tokenResponse is the decoded body of a successful token-endpoint call.
// Reddit's error bodies share the endpoint but not this shape; callers
// check for an "error" field with gjson before unmarshaling into this.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
}

// Authenticator holds the client credentials used to exchange grants for
// tokens at Reddit's www.reddit.com endpoints. A TrustedAuthenticator
// authenticates with a client secret (script/web apps that can keep one); an
// UntrustedAuthenticator authenticates with only a client_id (installed apps,
// which cannot keep a secret and instead Basic-auth with an empty password).
type Authenticator struct {
	requestor    *internal.Requestor
	clientID     string
	clientSecret string
	redirectURI  string
	userAgent    string
	trusted      bool
	baseURL      *url.URL
	validator    *internal.Validator
}

// AuthenticatorOption customizes an Authenticator at construction time.
type AuthenticatorOption func(*Authenticator)

// WithRedditURL overrides the base URL used for token, authorize, and revoke
// requests (default "https://www.reddit.com/"). Tests point this at an
// httptest.Server.
func WithRedditURL(redditURL string) AuthenticatorOption {
	return func(a *Authenticator) {
		if redditURL == "" {
			return
		}
		if parsed, err := url.Parse(redditURL); err == nil {
			a.baseURL = ensureTrailingSlash(parsed)
		}
	}
}

func ensureTrailingSlash(u *url.URL) *url.URL {
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u
}

func newAuthenticator(requestor *internal.Requestor, clientID, userAgent string, trusted bool) (*Authenticator, error) {
	v := internal.NewValidator()
	if err := v.ValidateUserAgent(userAgent); err != nil {
		return nil, err
	}
	if clientID == "" {
		return nil, &pkgerrs.ConfigError{Field: "client_id", Message: "client_id cannot be empty"}
	}
	base, _ := url.Parse(defaultRedditURL)
	return &Authenticator{
		requestor: requestor,
		clientID:  clientID,
		userAgent: userAgent,
		trusted:   trusted,
		baseURL:   base,
		validator: v,
	}, nil
}

// NewTrustedAuthenticator builds an Authenticator for apps that hold a
// client secret (script and confidential web apps).
func NewTrustedAuthenticator(requestor *internal.Requestor, clientID, clientSecret, userAgent string, opts ...AuthenticatorOption) (*Authenticator, error) {
	a, err := newAuthenticator(requestor, clientID, userAgent, true)
	if err != nil {
		return nil, err
	}
	a.clientSecret = clientSecret
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// NewUntrustedAuthenticator builds an Authenticator for apps that cannot
// keep a secret (installed apps, browser-based apps). redirectURI is only
// required for the authorization-code and implicit flows.
func NewUntrustedAuthenticator(requestor *internal.Requestor, clientID, redirectURI, userAgent string, opts ...AuthenticatorOption) (*Authenticator, error) {
	a, err := newAuthenticator(requestor, clientID, userAgent, false)
	if err != nil {
		return nil, err
	}
	a.redirectURI = redirectURI
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Authenticator) applyCommonHeaders(req *http.Request) {
	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
}

// postToken exchanges form (a grant_type and its parameters) for a token at
// the token endpoint. A body carrying an "error" field surfaces as
// *pkgerrs.OAuthException; any other non-200 status surfaces as
// *pkgerrs.ResponseException.
func (a *Authenticator) postToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	tokenURL := a.baseURL.ResolveReference(&url.URL{Path: "api/v1/access_token"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &pkgerrs.RequestException{Original: err}
	}
	a.applyCommonHeaders(req)

	resp, err := a.requestor.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := internal.ReadAndClose(resp)
	if err != nil {
		return nil, err
	}

	if errField := gjson.GetBytes(body, "error"); errField.Exists() {
		var description *string
		if d := gjson.GetBytes(body, "error_description"); d.Exists() && d.String() != "" && d.String() != "None" {
			s := d.String()
			description = &s
		}
		return nil, &pkgerrs.OAuthException{
			GrantError:  errField.String(),
			Description: description,
			Scope:       gjson.GetBytes(body, "scope").String(),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &pkgerrs.ResponseException{StatusError: pkgerrs.StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
			Header:     resp.Header,
		}}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &pkgerrs.RequestException{Original: err}
	}
	return &tr, nil
}

// userAgentTransport injects the configured User-Agent into every request a
// wrapped client sends. Reddit rejects requests without one, including at
// the token endpoint, but golang.org/x/oauth2 has no hook for extra headers
// on its own - only for the *http.Client it's given.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// clientCredentialsConfig builds the golang.org/x/oauth2/clientcredentials
// config for the trusted client_credentials grant. Reddit's other four
// grants (password, installed_client, authorization_code, implicit) have no
// equivalent in the oauth2 package and go through postToken instead.
func (a *Authenticator) clientCredentialsConfig() *clientcredentials.Config {
	tokenURL := a.baseURL.ResolveReference(&url.URL{Path: "api/v1/access_token"})
	return &clientcredentials.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		TokenURL:     tokenURL.String(),
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
}

// FetchClientCredentialsToken exchanges the trusted client_credentials grant
// via golang.org/x/oauth2 rather than the hand-rolled postToken path.
func (a *Authenticator) FetchClientCredentialsToken(ctx context.Context) (*oauth2.Token, error) {
	if !a.trusted {
		return nil, &pkgerrs.InvalidInvocation{Message: "client_credentials grant requires a trusted authenticator"}
	}
	httpClient := &http.Client{Transport: &userAgentTransport{
		base:      a.requestor.HTTPClient().Transport,
		userAgent: a.userAgent,
	}}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	tok, err := a.clientCredentialsConfig().Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			oauthErr := &pkgerrs.OAuthException{GrantError: retrieveErr.ErrorCode}
			if retrieveErr.Response != nil {
				oauthErr.Scope = retrieveErr.Response.Header.Get("x-oauth-scopes")
			}
			return nil, oauthErr
		}
		return nil, &pkgerrs.RequestException{Original: err}
	}
	return tok, nil
}

// AuthorizationURL builds the browser-facing URL that starts the
// authorization-code or implicit grant. Only an UntrustedAuthenticator can
// call this: Trusted (script/client-credentials) apps never send a user
// through a consent screen.
func (a *Authenticator) AuthorizationURL(scopes []string, state, duration string, implicit bool) (string, error) {
	if a.trusted {
		return "", &pkgerrs.InvalidInvocation{Message: "authorization_url is only available to untrusted authenticators"}
	}
	if err := a.validator.ValidateScopes(scopes); err != nil {
		return "", err
	}
	if err := a.validator.ValidateDuration(duration); err != nil {
		return "", err
	}

	responseType := "code"
	if implicit {
		if duration == "permanent" {
			return "", &pkgerrs.InvalidInvocation{Message: "implicit grants cannot request a permanent duration"}
		}
		responseType = "token"
		duration = ""
	}

	authorizeURL := a.baseURL.ResolveReference(&url.URL{Path: "api/v1/authorize"})
	q := url.Values{}
	q.Set("client_id", a.clientID)
	q.Set("response_type", responseType)
	q.Set("state", state)
	q.Set("redirect_uri", a.redirectURI)
	if duration != "" {
		q.Set("duration", duration)
	}
	q.Set("scope", strings.Join(scopes, " "))
	authorizeURL.RawQuery = q.Encode()
	return authorizeURL.String(), nil
}

// RevokeToken invalidates token at Reddit. tokenType is "access_token" or
// "refresh_token"; Reddit uses it as a hint, not a requirement.
func (a *Authenticator) RevokeToken(ctx context.Context, token, tokenType string) error {
	form := url.Values{}
	form.Set("token", token)
	if tokenType != "" {
		form.Set("token_type_hint", tokenType)
	}

	revokeURL := a.baseURL.ResolveReference(&url.URL{Path: "api/v1/revoke_token"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return &pkgerrs.RequestException{Original: err}
	}
	a.applyCommonHeaders(req)

	resp, err := a.requestor.Do(req)
	if err != nil {
		return err
	}
	body, err := internal.ReadAndClose(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return &pkgerrs.ResponseException{StatusError: pkgerrs.StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
			Header:     resp.Header,
		}}
	}
	return nil
}
