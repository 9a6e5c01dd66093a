package messagestore

import "errors"

var (
	// ErrMessageNotFound is returned when a referenced message id does
	// not exist in the store.
	ErrMessageNotFound = errors.New("message not found")

	// ErrStatusRegression is returned when a caller tries to move a
	// message status backward.
	ErrStatusRegression = errors.New("message status cannot move backward")

	// ErrNotSender is returned when someone other than the original
	// sender tries to edit or delete a message.
	ErrNotSender = errors.New("only the sender can modify a message")
)

// ValidationError marks malformed or missing input. It is reported to
// the originating connection and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func newValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
