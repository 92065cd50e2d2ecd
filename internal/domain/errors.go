package domain

import "errors"

var (
	// ErrTargetNotFound is returned when a podcast or comment id does not resolve.
	ErrTargetNotFound = errors.New("activity target not found")
	// ErrPageOutOfRange is returned when the requested day index is past the last distinct day.
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrInvalidActivity rejects intents missing a user or carrying malformed identifiers.
	ErrInvalidActivity = errors.New("invalid activity")
	// ErrUnknownActivityType rejects activity kinds outside the enumeration.
	ErrUnknownActivityType = errors.New("unknown activity type")
	// ErrStorageFailure matches every *StorageError via errors.Is.
	ErrStorageFailure = errors.New("activity storage failure")
)

// StorageError wraps a failure reported by the activity store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "activity store " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets callers test for ErrStorageFailure without knowing the operation.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure
}

func storageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
