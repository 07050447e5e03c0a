package capture

import "errors"

// ErrTimeout is returned by Handle.Recv when readTimeout elapses with
// no frame available. It is the cooperative cancellation point the
// capture pipeline (C8) polls on to check for a stop request.
var ErrTimeout = errors.New("capture: recv timeout")

// IsTimeout reports whether err is the Recv timeout sentinel.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
