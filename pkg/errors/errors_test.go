package errors

import (
	"strings"
	"testing"
)

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      ConfigError
		contains []string
	}{
		{
			name: "with field and message",
			err: ConfigError{
				Field:   "username",
				Message: "cannot be empty",
			},
			contains: []string{"config error", "username", "cannot be empty"},
		},
		{
			name: "only message",
			err: ConfigError{
				Message: "invalid configuration",
			},
			contains: []string{"config error", "invalid configuration"},
		},
		{
			name:     "empty error",
			err:      ConfigError{},
			contains: []string{"config error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(result, want) {
					t.Errorf("ConfigError.Error() = %q, want to contain %q", result, want)
				}
			}
		})
	}
}
