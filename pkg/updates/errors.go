package updates

import "errors"

// Sentinel errors for observer registration.
var (
	ErrInvalidObserver           = errors.New("invalid observer")
	ErrObserverNotFound          = errors.New("observer not found")
	ErrObserverAlreadyRegistered = errors.New("observer already registered")
)
