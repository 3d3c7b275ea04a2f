package redditcore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/jamesprial/redditcore/internal"
	pkgerrs "github.com/jamesprial/redditcore/pkg/errors"
)

const (
	defaultOAuthURL = "https://oauth.reddit.com/"
	maxRetryAttempts = 3
)

// tokenEndpointPaths are the www.reddit.com (not oauth.reddit.com) paths a
// Session routes requests to when asked to hit them directly, rather than
// through the dedicated Authenticator methods.
var tokenEndpointPaths = map[string]bool{
	"api/v1/access_token": true,
	"api/v1/authorize":    true,
	"api/v1/revoke_token": true,
}

// RequestParams carries the optional body/query data for a Session.Request
// call. At most one of Data or JSON should be set; Data is form-encoded,
// JSON is encoded as a JSON body with "api_type": "json" injected into a
// copy of the map (Reddit requires this on every JSON-bodied POST; the
// caller's map is left untouched).
type RequestParams struct {
	Data    map[string]string
	JSON    map[string]any
	Params  map[string]string
	Timeout time.Duration
}

// Session drives the authenticated request pipeline: it stamps every
// request with a valid access token (refreshing the Authorizer if needed),
// paces requests against the adaptive RateLimiter, retries transient
// failures with backoff, and classifies the response into the pkg/errors
// taxonomy or a decoded JSON body.
type Session struct {
	authorizer  *Authorizer
	requestor   *internal.Requestor
	rateLimiter *RateLimiter
	oauthURL    *url.URL
	redditURL   *url.URL
	userAgent   string
	timeout     time.Duration
	logger      *slog.Logger
}

// SessionOption customizes a Session at construction time.
type SessionOption func(*Session)

// WithOAuthURL overrides the base URL used for OAuth API requests (default
// "https://oauth.reddit.com/").
func WithOAuthURL(oauthURL string) SessionOption {
	return func(s *Session) {
		if parsed, err := url.Parse(oauthURL); err == nil {
			s.oauthURL = ensureTrailingSlash(parsed)
		}
	}
}

// WithSessionRedditURL overrides the base URL used when a request path
// targets one of the token/authorize/revoke endpoints directly.
func WithSessionRedditURL(redditURL string) SessionOption {
	return func(s *Session) {
		if parsed, err := url.Parse(redditURL); err == nil {
			s.redditURL = ensureTrailingSlash(parsed)
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(userAgent string) SessionOption {
	return func(s *Session) { s.userAgent = userAgent }
}

// WithTimeout bounds each individual HTTP attempt (not the whole retry
// loop). Zero means no per-attempt timeout beyond ctx's own deadline.
func WithTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) { s.timeout = timeout }
}

// WithRateLimiter overrides the default 600-second-window rate limiter, for
// tests that want to observe pacing decisions directly.
func WithRateLimiter(limiter *RateLimiter) SessionOption {
	return func(s *Session) { s.rateLimiter = limiter }
}

// WithLogger attaches a logger for debug-level request/response tracing. A
// nil logger (the default) disables tracing entirely.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// NewSession builds a Session that authenticates through authorizer and
// sends requests through requestor.
func NewSession(authorizer *Authorizer, requestor *internal.Requestor, opts ...SessionOption) *Session {
	oauthURL, _ := url.Parse(defaultOAuthURL)
	redditURL, _ := url.Parse(defaultRedditURL)
	s := &Session{
		authorizer:  authorizer,
		requestor:   requestor,
		rateLimiter: NewRateLimiter(0),
		oauthURL:    oauthURL,
		redditURL:   redditURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) resolveURL(path string) *url.URL {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		parsed, err := url.Parse(path)
		if err == nil {
			return parsed
		}
	}
	trimmed := strings.TrimPrefix(path, "/")
	base := s.oauthURL
	if tokenEndpointPaths[trimmed] {
		base = s.redditURL
	}
	return base.ResolveReference(&url.URL{Path: trimmed})
}

func (s *Session) buildBody(params RequestParams) (content string, contentType string, err error) {
	switch {
	case params.JSON != nil:
		body := make(map[string]any, len(params.JSON)+1)
		for k, v := range params.JSON {
			body[k] = v
		}
		body["api_type"] = "json"
		encoded, err := json.Marshal(body)
		if err != nil {
			return "", "", &pkgerrs.RequestException{Original: err}
		}
		return string(encoded), "application/json", nil
	case params.Data != nil:
		form := url.Values{}
		for k, v := range params.Data {
			form.Set(k, v)
		}
		return form.Encode(), "application/x-www-form-urlencoded", nil
	default:
		return "", "", nil
	}
}

// Request issues one logical API call, retrying transient failures and
// refreshing the authorizer as needed, and returns the decoded JSON body (or
// nil for an empty/204 response).
func (s *Session) Request(ctx context.Context, method, path string, params RequestParams) (any, error) {
	target := s.resolveURL(path)
	query := target.Query()
	for k, v := range params.Params {
		query.Set(k, v)
	}
	query.Set("raw_json", "1")
	target.RawQuery = query.Encode()

	bodyContent, contentType, err := s.buildBody(params)
	if err != nil {
		return nil, err
	}

	policy := backoff.NewExponentialBackOff()
	budget := maxRetryAttempts
	triedReauth := false

	for {
		result, retry, err := s.attempt(ctx, method, target, bodyContent, contentType, &budget, &triedReauth, policy)
		if retry {
			continue
		}
		return result, err
	}
}

// attempt runs one HTTP round trip and reports whether the caller should
// retry (a transient transport error, a retryable status, or a one-shot
// re-authorization after a 401 - each already slept its backoff before
// returning retry=true).
func (s *Session) attempt(ctx context.Context, method string, target *url.URL, bodyContent, contentType string, budget *int, triedReauth *bool, policy backoff.BackOff) (result any, retry bool, err error) {
	reqCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	accessToken, err := s.authorizer.EnsureValid(reqCtx)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target.String(), strings.NewReader(bodyContent))
	if err != nil {
		return nil, false, &pkgerrs.RequestException{Original: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", s.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if err := s.rateLimiter.Delay(ctx); err != nil {
		return nil, false, err
	}

	start := time.Now()
	resp, doErr := s.requestor.Do(req)
	if doErr != nil {
		if s.logger != nil {
			s.logger.Debug("request failed", "method", method, "url", target.String(), "elapsed", time.Since(start), "error", doErr)
		}
		if ctx.Err() != nil {
			return nil, false, doErr
		}
		var reqErr *pkgerrs.RequestException
		if errors.As(doErr, &reqErr) && *budget > 0 {
			*budget--
			if sleepErr := sleepBackoff(ctx, policy); sleepErr != nil {
				return nil, false, sleepErr
			}
			return nil, true, nil
		}
		return nil, false, doErr
	}
	if s.logger != nil {
		s.logger.Debug("request completed", "method", method, "url", target.String(), "status", resp.StatusCode, "elapsed", time.Since(start))
	}

	s.rateLimiter.Update(resp.Header)
	respBody, err := internal.ReadAndClose(resp)
	if err != nil {
		return nil, false, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		s.authorizer.clearAccessToken()
		if !*triedReauth && s.authorizer.CanRefresh() {
			*triedReauth = true
			return nil, true, nil
		}
		return nil, false, &pkgerrs.InvalidToken{StatusError: newStatusError(resp, respBody)}

	case isRetryableStatus(resp.StatusCode):
		if *budget > 0 {
			*budget--
			if sleepErr := sleepBackoff(ctx, policy); sleepErr != nil {
				return nil, false, sleepErr
			}
			return nil, true, nil
		}
		return nil, false, &pkgerrs.ServerError{StatusError: newStatusError(resp, respBody)}

	default:
		result, err := dispatchStatus(resp, respBody)
		return result, false, err
	}
}

func newStatusError(resp *http.Response, body []byte) pkgerrs.StatusError {
	return pkgerrs.StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
		Header:     resp.Header,
	}
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		520, 522:
		return true
	default:
		return false
	}
}

func sleepBackoff(ctx context.Context, policy backoff.BackOff) error {
	d := policy.NextBackOff()
	if d == backoff.Stop {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// dispatchStatus classifies a non-retried, non-401 response into the
// pkg/errors status taxonomy, or decodes and returns its JSON body on
// success.
func dispatchStatus(resp *http.Response, body []byte) (any, error) {
	statusErr := newStatusError(resp, body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		if len(body) == 0 {
			return nil, nil
		}
		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, &pkgerrs.RequestException{Original: err}
		}
		return decoded, nil
	case http.StatusNoContent:
		return nil, nil
	case http.StatusMovedPermanently, http.StatusFound:
		return nil, &pkgerrs.Redirect{StatusError: statusErr, Location: resp.Header.Get("location")}
	case http.StatusBadRequest:
		return nil, &pkgerrs.BadRequest{StatusError: statusErr}
	case http.StatusForbidden:
		return nil, classifyForbidden(resp, statusErr)
	case http.StatusNotFound:
		return nil, &pkgerrs.NotFound{StatusError: statusErr}
	case http.StatusConflict:
		return nil, &pkgerrs.Conflict{StatusError: statusErr}
	case http.StatusRequestEntityTooLarge:
		return nil, &pkgerrs.RequestEntityTooLarge{StatusError: statusErr}
	case http.StatusRequestURITooLong:
		return nil, &pkgerrs.URITooLarge{StatusError: statusErr}
	case http.StatusUnsupportedMediaType:
		return nil, &pkgerrs.SpecialError{StatusError: statusErr, Explanation: extractExplanation(body)}
	case http.StatusTooManyRequests:
		return nil, &pkgerrs.TooManyRequests{StatusError: statusErr}
	case 451:
		return nil, &pkgerrs.UnavailableForLegalReasons{StatusError: statusErr}
	default:
		return nil, &pkgerrs.ResponseException{StatusError: statusErr}
	}
}

func classifyForbidden(resp *http.Response, statusErr pkgerrs.StatusError) error {
	switch internal.ClassifyWWWAuthenticate(resp.Header.Get("www-authenticate")) {
	case "insufficient_scope":
		return &pkgerrs.InsufficientScope{StatusError: statusErr}
	case "invalid_token":
		return &pkgerrs.InvalidToken{StatusError: statusErr}
	default:
		return &pkgerrs.Forbidden{StatusError: statusErr}
	}
}

// extractExplanation pulls whichever of "explanation", "reason", or
// "message" Reddit's 415 body happens to carry; the three keys appear across
// different API endpoints for the same condition.
func extractExplanation(body []byte) string {
	for _, key := range []string{"explanation", "reason", "message"} {
		if v := gjson.GetBytes(body, key); v.Exists() {
			return v.String()
		}
	}
	return ""
}
