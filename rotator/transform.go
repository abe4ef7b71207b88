package rotator

import (
	"math"
	"time"
)

// equhor converts between azimuth/altitude and hour-angle/declination.
// Phi is the observer's latitude
// Arguments are in radians
// Algorithm from https://metacpan.org/dist/Astro-Montenbruck/source/lib/Astro/Montenbruck/CoCo.pm
func equhor_rad(x, y, phi float64) (float64, float64) {
	sx, sy, sphi := math.Sin(x), math.Sin(y), math.Sin(phi)
	cx, cy, cphi := math.Cos(x), math.Cos(y), math.Cos(phi)

	sq := (sy * sphi) + (cy * cphi * cx)
	q := math.Asin(sq)

	cp := (sy - (sphi * sq)) / (cphi * math.Cos(q))
	// Rounding can push cp just past ±1 at culmination.
	if cp > 1 {
		cp = 1
	} else if cp < -1 {
		cp = -1
	}
	p := math.Acos(cp)
	if sx > 0 {
		p = 2*math.Pi - p
	}
	return p, q
}

func deg2rad(x float64) float64 {
	return x * math.Pi / 180
}

func rad2deg(x float64) float64 {
	return x * 180 / math.Pi
}

func equhor_deg(x, y, phi float64) (float64, float64) {
	x, y, phi = deg2rad(x), deg2rad(y), deg2rad(phi)
	p, q := equhor_rad(x, y, phi)
	return rad2deg(p), rad2deg(q)
}

var j2000 = time.Date(2000, time.January, 1, 12, 0, 0, 0, time.UTC)

// GMST returns the Greenwich mean sidereal time at t, in degrees.
// The linear IAU 1982 expression drifts well under the tenth of a degree
// the mounts this package drives can resolve.
func GMST(t time.Time) float64 {
	d := t.UTC().Sub(j2000).Hours() / 24
	gmst := math.Mod(280.46061837+360.98564736629*d, 360)
	if gmst < 0 {
		gmst += 360
	}
	return gmst
}

// Horizontal converts an equatorial target to the azimuth and elevation
// seen from the given site at time t. Right ascension, declination,
// latitude and longitude (east positive) are all in degrees. Azimuth is
// measured from north through east.
func Horizontal(t time.Time, ra, dec, latitude, longitude float64) (az, el float64) {
	lst := math.Mod(GMST(t)+longitude+360, 360)
	ha := math.Mod(lst-ra+720, 360)
	return equhor_deg(ha, dec, latitude)
}
