package rot2prog

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout reports that the read deadline expired before a complete
	// response arrived. Transports return it bare; exchanges wrap it with
	// the operation and byte count.
	ErrTimeout = errors.New("response timed out")
	// ErrPulseUnknown is returned when a position command is attempted
	// before the controller has reported a usable pulse resolution.
	ErrPulseUnknown = errors.New("pulse resolution unknown")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
)

// RangeError reports a requested angle outside the mount's travel.
type RangeError struct {
	Axis     string
	Value    float64
	Min, Max float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %g out of range [%g, %g]", e.Axis, e.Value, e.Min, e.Max)
}

// ConsistencyError reports a response whose azimuth and elevation pulse
// bytes disagree. The frame is discarded rather than guessed at.
type ConsistencyError struct {
	PH, PV byte
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("inconsistent pulse bytes: azimuth %d, elevation %d", e.PH, e.PV)
}

// FramingError reports a frame of the wrong length.
type FramingError struct {
	Len int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("bad frame length %d", e.Len)
}

// TransportError wraps a failure of the underlying serial or network
// connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
