package errors

import "fmt"

// InvalidInvocation indicates the caller used the API in a way that can
// never succeed given the current state: refreshing an Implicit authorizer,
// revoking an already-Unauthorized authorizer, and similar misuse.
type InvalidInvocation struct {
	Message string
}

func (e *InvalidInvocation) Error() string {
	return fmt.Sprintf("invalid invocation: %s", e.Message)
}

// InvalidToken indicates the server repudiated our access token: a 401
// after a refresh was already attempted, or a 403 whose www-authenticate
// header names "invalid_token".
type InvalidToken struct {
	StatusError
}

func (e *InvalidToken) Error() string {
	return fmt.Sprintf("invalid_token (status %d)", e.StatusCode)
}

// OAuthException reports an error returned in the body of a token-endpoint
// response, e.g. {"error":"invalid_grant"}. Description is nil when the
// server omitted error_description or sent the literal string "None" (the
// legacy API's way of saying "no description"; surfacing it verbatim would
// render as the confusing "(None)").
type OAuthException struct {
	GrantError  string
	Description *string
	Scope       string
}

func (e *OAuthException) Error() string {
	if e.Description != nil && *e.Description != "" {
		return fmt.Sprintf("%s: %s", e.GrantError, *e.Description)
	}
	return e.GrantError
}

// RequestException wraps a low-level transport failure (connection reset,
// read timeout, chunked-encoding error, or any other error the injected
// transport returned instead of a response). Original is reachable through
// errors.Unwrap so callers can test.(*net.OpError) etc. the same way
// prawcore inspects exception.original_exception.
type RequestException struct {
	Original error
}

func (e *RequestException) Error() string {
	return fmt.Sprintf("error with request: %v", e.Original)
}

func (e *RequestException) Unwrap() error {
	return e.Original
}
