package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyWWWAuthenticate(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{"no equals sign", "Bearer", ""},
		{"insufficient scope", `Bearer realm="reddit", error="insufficient_scope"`, "insufficient_scope"},
		{"invalid token", `Bearer realm="reddit", error="invalid_token"`, "invalid_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyWWWAuthenticate(tt.header))
		})
	}
}
