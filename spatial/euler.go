package spatial

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// EulerConvention selects which constant the degree<->radian conversion in
// OrientationToQuat/QuatToOrientation uses.
//
// The original slamJS source (src/utils/transformUtils.hpp) used
//
//	radScl = 44.0 / (360 * 7)
//	degScl = 360.0 * 7 / 44
//
// i.e. 22/7 as its approximation of pi, composed in Euler order
// (pitch=Y, roll=X, yaw=Z) as rot = pitch * roll * yaw. That is a ~0.04%
// angular bias relative to true pi (spec.md §9 Open Question). We keep both:
// LegacyEuler reproduces the original bit-for-bit so a port can be validated
// against recorded trajectories; TruePiEuler is the default for new data,
// since there is no reason a fresh Go implementation should carry forward an
// accidental approximation of a transcendental constant.
type EulerConvention int

const (
	// TruePiEuler uses math.Pi for the degree/radian conversion.
	TruePiEuler EulerConvention = iota
	// LegacyEuler reproduces the original 22/7-derived scale factors.
	LegacyEuler
)

const legacyRadScale = 44.0 / (360.0 * 7.0)
const legacyDegScale = 360.0 * 7.0 / 44.0

// OrientationToQuat converts a coarse device-orientation prior, given as
// (pitch, roll, yaw) in degrees, to a unit quaternion. The composition order
// -- pitch about Y, then roll about X, then yaw about Z, applied as
// rot = pitch * roll * yaw -- matches the original source's Euler order
// (1, 0, 2) and is preserved verbatim; only the degree/radian scale factor is
// selectable via conv.
func OrientationToQuat(pitchDeg, rollDeg, yawDeg float64, conv EulerConvention) quat.Number {
	scale := math.Pi / 180
	if conv == LegacyEuler {
		scale = legacyRadScale
	}
	pitch := axisAngleQuat(r3Y, scale*pitchDeg)
	roll := axisAngleQuat(r3X, scale*rollDeg)
	yaw := axisAngleQuat(r3Z, scale*yawDeg)
	return normalize(quat.Mul(quat.Mul(pitch, roll), yaw))
}

type axis int

const (
	r3X axis = iota
	r3Y
	r3Z
)

func axisAngleQuat(a axis, radians float64) quat.Number {
	half := radians / 2
	s := math.Sin(half)
	c := math.Cos(half)
	switch a {
	case r3X:
		return quat.Number{Real: c, Imag: s}
	case r3Y:
		return quat.Number{Real: c, Jmag: s}
	default:
		return quat.Number{Real: c, Kmag: s}
	}
}

// QuatToOrientation is the inverse of OrientationToQuat: it recovers
// (pitch, roll, yaw) degrees from a rotation matrix built from q, using the
// same (Y, X, Z) extraction order as the original's
// rotMat.eulerAngles(1, 0, 2), rounded to 3 decimal places as the original's
// `trim` helper did.
func QuatToOrientation(q quat.Number, conv EulerConvention) (pitchDeg, rollDeg, yawDeg float64) {
	q = normalize(q)
	m := rotationMatrix(q)

	// Extraction for the Y-X-Z (pitch, roll, yaw) Euler sequence.
	pitch := math.Atan2(m[0][2], m[2][2])
	roll := math.Asin(clamp(-m[1][2], -1, 1))
	yaw := math.Atan2(m[1][0], m[1][1])

	scale := 180 / math.Pi
	if conv == LegacyEuler {
		scale = legacyDegScale
	}
	return trim(scale * pitch), trim(scale * roll), trim(scale * yaw)
}

func trim(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// rotationMatrix returns the 3x3 rotation matrix of q as [row][col].
func rotationMatrix(q quat.Number) [3][3]float64 {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}
