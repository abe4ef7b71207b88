package rot2prog

import (
	"io"
	"sync"

	"github.com/w1xm/rot2prog_interface/rotator"
)

// Offset wraps a session with mounting offsets, translating between true
// bearings and the frame the mount was installed in. Offsets are added to
// reported positions and subtracted from requested ones. No wrapping is
// applied; a corrected target outside the mount's travel is rejected like
// any other out-of-range request.
type Offset struct {
	*Rotator
	mu sync.Mutex
	// last accepted true position; positioned is cleared by Stop
	az, el     float64
	positioned bool

	offsetAz, offsetEl float64
}

// ConnectOffset is Connect with mounting offsets applied to every request
// and report.
func ConnectOffset(path string, config Config, offsetAz, offsetEl float64) (*Offset, error) {
	o := newOffset(&config, offsetAz, offsetEl)
	r, err := Connect(path, config)
	if err != nil {
		return nil, err
	}
	o.Rotator = r
	return o, nil
}

// OpenOffset is Open with mounting offsets applied to every request and
// report.
func OpenOffset(conn io.ReadWriteCloser, config Config, offsetAz, offsetEl float64) (*Offset, error) {
	o := newOffset(&config, offsetAz, offsetEl)
	r, err := Open(conn, config)
	if err != nil {
		return nil, err
	}
	o.Rotator = r
	return o, nil
}

// newOffset rewires config's callback through the offset shift before the
// session's first exchange can fire it.
func newOffset(config *Config, offsetAz, offsetEl float64) *Offset {
	o := &Offset{offsetAz: offsetAz, offsetEl: offsetEl}
	if cb := config.StatusCallback; cb != nil {
		config.StatusCallback = func(status rotator.Status) {
			cb(o.shift(status))
		}
	}
	return o
}

func (o *Offset) shift(status rotator.Status) rotator.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	status.AzPos += o.offsetAz
	status.ElPos += o.offsetEl
	return status
}

// Status reports the corrected position.
func (o *Offset) Status() (rotator.Status, error) {
	status, err := o.Rotator.Status()
	if err != nil {
		return status, err
	}
	return o.shift(status), nil
}

// Stop halts the mount and reports the corrected position it stopped at.
// A stop leaves position mode: offset changes no longer re-drive the
// mount until a new position is requested.
func (o *Offset) Stop() (rotator.Status, error) {
	status, err := o.Rotator.Stop()
	if err != nil {
		return status, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.positioned = false
	status.AzPos += o.offsetAz
	status.ElPos += o.offsetEl
	return status, nil
}

// SetPosition drives the mount so it points at the given true position.
// A request the session rejects does not update the remembered position.
func (o *Offset) SetPosition(az, el float64) error {
	o.mu.Lock()
	offAz, offEl := o.offsetAz, o.offsetEl
	o.mu.Unlock()
	if err := o.Rotator.SetPosition(az-offAz, el-offEl); err != nil {
		return err
	}
	o.mu.Lock()
	o.az, o.el = az, el
	o.positioned = true
	o.mu.Unlock()
	return nil
}

// SetAzimuthOffset replaces the azimuth offset. If a position has been
// requested the mount is re-driven so it keeps pointing at the same true
// target.
func (o *Offset) SetAzimuthOffset(offset float64) error {
	o.mu.Lock()
	o.offsetAz = offset
	resend := o.positioned
	az, el := o.az-o.offsetAz, o.el-o.offsetEl
	o.mu.Unlock()
	if !resend {
		return nil
	}
	return o.Rotator.SetPosition(az, el)
}

// SetElevationOffset replaces the elevation offset, re-driving the mount
// like SetAzimuthOffset.
func (o *Offset) SetElevationOffset(offset float64) error {
	o.mu.Lock()
	o.offsetEl = offset
	resend := o.positioned
	az, el := o.az-o.offsetAz, o.el-o.offsetEl
	o.mu.Unlock()
	if !resend {
		return nil
	}
	return o.Rotator.SetPosition(az, el)
}
