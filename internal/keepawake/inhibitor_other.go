//go:build !darwin && !linux && !windows

package keepawake

import (
	"context"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

// NewDefaultAdapter returns an adapter that always reports an unsupported
// environment, leaving the manager DEGRADED.
func NewDefaultAdapter() Adapter {
	return unsupportedAdapter{}
}

type unsupportedAdapter struct{}

func (unsupportedAdapter) Acquire(ctx context.Context) (Handle, error) {
	return nil, hostErrors.New(hostErrors.CodeKeepAwakeUnsupportedEnvironment, "keep-awake is unsupported on this platform")
}
