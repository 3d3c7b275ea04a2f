package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusError_Error(t *testing.T) {
	withBody := &StatusError{StatusCode: 500, Body: "boom"}
	assert.Contains(t, withBody.Error(), "500")
	assert.Contains(t, withBody.Error(), "boom")

	withoutBody := &StatusError{StatusCode: 404}
	assert.Contains(t, withoutBody.Error(), "404")
}

func TestRedirect_Error(t *testing.T) {
	r := &Redirect{StatusError: StatusError{StatusCode: http.StatusFound}, Location: "https://example.com/dest"}
	assert.Contains(t, r.Error(), "https://example.com/dest")
	assert.Contains(t, r.Error(), "302")
}

func TestSpecialError_Error(t *testing.T) {
	withExplanation := &SpecialError{StatusError: StatusError{StatusCode: 415}, Explanation: "unsupported format"}
	assert.Contains(t, withExplanation.Error(), "unsupported format")

	withoutExplanation := &SpecialError{StatusError: StatusError{StatusCode: 415}}
	assert.Contains(t, withoutExplanation.Error(), "415")
}

func TestStatusFamilyTypesEmbedStatusError(t *testing.T) {
	var err error = &NotFound{StatusError: StatusError{StatusCode: 404}}
	assert.Contains(t, err.Error(), "404")
}

func TestInvalidInvocation_Error(t *testing.T) {
	err := &InvalidInvocation{Message: "cannot refresh an implicit authorizer"}
	assert.Contains(t, err.Error(), "cannot refresh an implicit authorizer")
}

func TestInvalidToken_Error(t *testing.T) {
	err := &InvalidToken{StatusError: StatusError{StatusCode: 401}}
	assert.Contains(t, err.Error(), "401")
}

func TestOAuthException_Error(t *testing.T) {
	noDescription := &OAuthException{GrantError: "invalid_grant"}
	assert.Equal(t, "invalid_grant", noDescription.Error())

	description := "the grant has expired"
	withDescription := &OAuthException{GrantError: "invalid_grant", Description: &description}
	assert.Equal(t, "invalid_grant: the grant has expired", withDescription.Error())
}

func TestRequestException_UnwrapsOriginal(t *testing.T) {
	original := errors.New("connection reset by peer")
	wrapped := &RequestException{Original: original}

	assert.ErrorIs(t, wrapped, original)
	assert.Equal(t, original, wrapped.Unwrap())
}
