package rot2prog

import (
	"fmt"
	"math"

	"github.com/w1xm/rot2prog_interface/rotator"
)

// The SPID protocol exchanges fixed-length binary frames: 13-byte commands
// and 12-byte responses. Digit bytes carry the values 0 through 9, not
// their ASCII codes.
const (
	CommandLen  = 13
	ResponseLen = 12

	frameStart = 0x57 // 'W'
	frameEnd   = 0x20 // ' '
)

// Command selectors (byte 11 of a command frame).
const (
	CmdStatus byte = 0x1f
	CmdStop   byte = 0x0f
	CmdSet    byte = 0x2f
)

// Travel limits of the rot2proG mount, in degrees.
const (
	MinAz = -180.0
	MaxAz = 360.0
	MinEl = 0.0
	MaxEl = 180.0
)

// Command is a single request frame.
type Command [CommandLen]byte

// StatusCommand returns the frame that asks the controller for its
// position. The controller answers with a position report.
func StatusCommand() Command {
	return command(CmdStatus)
}

// StopCommand returns the frame that halts motion on both axes. The
// controller answers with the position it stopped at.
func StopCommand() Command {
	return command(CmdStop)
}

func command(selector byte) Command {
	var c Command
	c[0] = frameStart
	c[11] = selector
	c[12] = frameEnd
	return c
}

// SetCommand returns the frame that drives the mount to the given azimuth
// and elevation. Targets are encoded as pulse counts from -360 degrees at
// the resolution the controller last reported, so the wire value is always
// positive. The controller does not acknowledge it.
func SetCommand(az, el float64, pulse int) (Command, error) {
	if err := validateTarget(az, el); err != nil {
		return Command{}, err
	}
	if pulse <= 0 {
		return Command{}, ErrPulseUnknown
	}
	c := command(CmdSet)
	putDigits(c[1:5], degreesToPulses(az, pulse))
	c[5] = byte(pulse)
	putDigits(c[6:10], degreesToPulses(el, pulse))
	c[10] = byte(pulse)
	return c, nil
}

func validateTarget(az, el float64) error {
	// The comparisons are phrased so NaN fails them too.
	if !(az >= MinAz && az <= MaxAz) {
		return &RangeError{Axis: "azimuth", Value: az, Min: MinAz, Max: MaxAz}
	}
	if !(el >= MinEl && el <= MaxEl) {
		return &RangeError{Axis: "elevation", Value: el, Min: MinEl, Max: MaxEl}
	}
	return nil
}

// degreesToPulses converts a target angle to the controller's pulse count,
// truncating below the pulse resolution.
func degreesToPulses(deg float64, pulse int) int {
	return int(float64(pulse) * (deg + 360))
}

// PulsesToDegrees converts a pulse count from a command frame back to
// degrees. It is the inverse of the encoding in SetCommand.
func PulsesToDegrees(raw, pulse int) float64 {
	return float64(raw)/float64(pulse) - 360
}

// putDigits stores the low four decimal digits of the pulse count, most
// significant first. Counts beyond 9999 lose their upper digits, the same
// four-digit window the controller's own display has.
func putDigits(dst []byte, raw int) {
	dst[0] = byte(raw / 1000 % 10)
	dst[1] = byte(raw / 100 % 10)
	dst[2] = byte(raw / 10 % 10)
	dst[3] = byte(raw % 10)
}

// Request is a decoded command frame, as the controller sees it.
type Request struct {
	Type             byte
	AzRaw, ElRaw     int
	AzPulse, ElPulse int
}

// DecodeCommand parses a 13-byte command frame. The framing markers are
// not checked.
func DecodeCommand(b []byte) (Request, error) {
	if len(b) != CommandLen {
		return Request{}, &FramingError{Len: len(b)}
	}
	switch b[11] {
	case CmdStatus, CmdStop, CmdSet:
	default:
		return Request{}, fmt.Errorf("unknown command selector %#02x", b[11])
	}
	return Request{
		Type:    b[11],
		AzRaw:   digits(b[1:5]),
		AzPulse: int(b[5]),
		ElRaw:   digits(b[6:10]),
		ElPulse: int(b[10]),
	}, nil
}

func digits(b []byte) int {
	return int(b[0])*1000 + int(b[1])*100 + int(b[2])*10 + int(b[3])
}

// DecodeResponse parses a 12-byte position report. Each axis arrives as
// hundreds/tens/units/tenths digit bytes offset by 360 degrees. The only
// checks are the frame length and that the two pulse bytes agree; the
// framing markers are not validated.
func DecodeResponse(b []byte) (rotator.Status, error) {
	if len(b) != ResponseLen {
		return rotator.Status{}, &FramingError{Len: len(b)}
	}
	if b[5] != b[10] {
		return rotator.Status{}, &ConsistencyError{PH: b[5], PV: b[10]}
	}
	return rotator.Status{
		AzPos: decodeAngle(b[1:5]),
		ElPos: decodeAngle(b[6:10]),
		Pulse: int(b[5]),
	}, nil
}

func decodeAngle(b []byte) float64 {
	return float64(b[0])*100 + float64(b[1])*10 + float64(b[2]) + float64(b[3])/10 - 360
}

// EncodeResponse renders the position report a controller at the given
// position would send. The two pulse bytes are taken verbatim so callers
// can build inconsistent frames.
func EncodeResponse(az, el float64, ph, pv byte) [ResponseLen]byte {
	var r [ResponseLen]byte
	r[0] = frameStart
	putAngle(r[1:5], az)
	r[5] = ph
	putAngle(r[6:10], el)
	r[10] = pv
	r[11] = frameEnd
	return r
}

// putAngle renders v+360 as hundreds/tens/units/tenths digits, rounded to
// the controller's tenth-degree resolution.
func putAngle(dst []byte, v float64) {
	putDigits(dst, int(math.Round((v+360)*10)))
}
