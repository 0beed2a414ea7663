package capability

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/helmd/internal/intent"
)

var (
	// ErrNoModule is returned when the router has no module for a type.
	ErrNoModule = errors.New("no module")

	// ErrLocked matches any *LockError.
	ErrLocked = errors.New("capability locked")

	// ErrUnsupportedIntent is returned when a module receives an intent type
	// it does not handle.
	ErrUnsupportedIntent = errors.New("unsupported intent")

	// ErrTrustDeltaOutOfRange is returned for a trust signal whose delta
	// magnitude exceeds intent.MaxTrustDelta.
	ErrTrustDeltaOutOfRange = errors.New("trust delta out of range")
)

// LockError reports a module refusing to execute because its domain is
// locked by configuration.
type LockError struct {
	Domain string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("%s system is locked", e.Domain)
}

func (e *LockError) Is(target error) bool {
	return target == ErrLocked
}

func unsupported(module string, in intent.Intent) error {
	return fmt.Errorf("%w: %s cannot execute %s", ErrUnsupportedIntent, module, in.Kind())
}
