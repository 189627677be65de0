package extraction

import "fmt"

// Error indicates the model output could not be turned into a valid
// structured record, even after the repair pass.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("extraction failed: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
