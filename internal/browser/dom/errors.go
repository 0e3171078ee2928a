// File: internal/browser/dom/errors.go
package dom

import (
	"errors"
	"fmt"
)

// ErrElementNotFound reports that no candidate selector matched a visible
// element within the discovery window. Callers distinguish it from transport
// failures with errors.Is.
var ErrElementNotFound = errors.New("element not found")

// ErrFillVerification reports that a field still held the wrong value after
// every fill attempt was exhausted.
var ErrFillVerification = errors.New("field value verification failed")

// DialogError carries the message text of a validation dialog raised by the
// bank page itself, e.g. an input the site refused.
type DialogError struct {
	Message string
}

func (e *DialogError) Error() string {
	return fmt.Sprintf("bank validation dialog: %s", e.Message)
}
