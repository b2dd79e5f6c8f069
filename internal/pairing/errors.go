package pairing

import "errors"

var (
	// ErrPairingTimeout means neither an open connection nor a code arrived in time.
	ErrPairingTimeout = errors.New("pairing timeout")
	// ErrPairingInProgress rejects a second pairing attempt for the same number.
	ErrPairingInProgress = errors.New("pairing already in progress for this number")
	// ErrSessionClosed means the session was torn down before it resolved.
	ErrSessionClosed = errors.New("pairing session closed")
	// ErrInvalidPhone rejects numbers too short to pair.
	ErrInvalidPhone = errors.New("invalid phone number")
)

// PairingRequestError wraps a failed pairing-code request.
type PairingRequestError struct {
	Err error
}

func (e *PairingRequestError) Error() string {
	return e.Err.Error()
}

func (e *PairingRequestError) Unwrap() error { return e.Err }

func newPairingRequestError(err error) error {
	if err == nil {
		return &PairingRequestError{Err: errors.New("empty pairing code")}
	}
	return &PairingRequestError{Err: err}
}
