package faults

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, ExitOK},
		{"input defect", errors.Wrap(ErrInputDefect, "listing.txt"), ExitInputDefect},
		{"indeterminate", errors.Wrapf(ErrIndeterminate, "timeout after %s", "2m"), ExitIndeterminate},
		{"self-check", fmt.Errorf("add: %w", ErrSelfCheckFailed), ExitFailed},
		{"mismatch", errors.WithMessage(ErrTraceMismatch, "add"), ExitFailed},
		{"other", errors.New("bad flag"), ExitUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExitCode(tt.err))
		})
	}
}
