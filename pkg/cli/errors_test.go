package cli

import (
	"errors"
	"fmt"
	"testing"

	"deepstore-hq/deepstore/pkg/config"
	"deepstore-hq/deepstore/pkg/lock"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		err  *ConfigError
		want string
	}{
		{NewConfigError("remote.host", "required when remote.user is set"), "config error in remote.host: required when remote.user is set"},
		{NewConfigError("", "file not found"), "config error: file not found"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestCommandError(t *testing.T) {
	underlying := errors.New("database dump failed")
	err := NewCommandError("store", underlying)

	if got, want := err.Error(), "command store failed: database dump failed"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, underlying) {
		t.Error("CommandError does not unwrap")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"generic", errors.New("boom"), ExitFailure},
		{"locked", NewCommandError("store", fmt.Errorf("%w: %s", lock.ErrLocked, "/tmp/x")), ExitLocked},
		{"config error", NewConfigError("output", "bad"), ExitConfig},
		{"validation error", fmt.Errorf("load: %w", config.ValidationError{Errors: []config.FieldError{{Field: "a", Message: "b"}}}), ExitConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
