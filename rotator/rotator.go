package rotator

// Status is a single position report from a rotator controller.
type Status struct {
	// AzPos and ElPos are in decimal degrees.
	AzPos float64
	ElPos float64
	// Pulse is the controller's resolution in pulses per degree.
	Pulse int
}

type StatusCallback func(status Status)

// Rotator is a positioner that reports its pointing and accepts absolute
// azimuth/elevation targets.
type Rotator interface {
	Status() (Status, error)
	Stop() (Status, error)
	SetPosition(az, el float64) error
	Close() error
}

// Offsetter is implemented by rotators with adjustable mounting offsets.
type Offsetter interface {
	SetAzimuthOffset(offset float64) error
	SetElevationOffset(offset float64) error
}
