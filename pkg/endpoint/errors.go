package endpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when a user touches an execution or service
	// they do not own and they are not an administrator.
	ErrForbidden = errors.New("you are not authorized to access this resource")

	// ErrQuotaExceeded is returned when a guest already has their maximum
	// number of active executions.
	ErrQuotaExceeded = errors.New("quota exceeded: too many active executions")

	// ErrNotRunning is returned when terminating an execution that is not
	// active.
	ErrNotRunning = errors.New("execution is not running")
)

// NameInvalidError is returned when an execution name violates the naming
// rules: 4 to 128 characters from [a-zA-Z0-9-].
type NameInvalidError struct {
	Name string
}

func (e *NameInvalidError) Error() string {
	return fmt.Sprintf("execution name %q is invalid: 4 to 128 characters, letters, numbers and hyphens only", e.Name)
}
