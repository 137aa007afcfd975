// Package spatial provides the pose and rotation algebra shared by every
// monoslam component: a translation in r3.Vector plus a unit quaternion
// rotation, built on gonum's quat package the way the teacher's kinematics
// stack builds angle-axis/quaternion conversions on top of gonum/num/quat
// (see kinematics/kinmath in the retrieval pack).
package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform: a translation and a unit-quaternion rotation.
// It is a value type -- copying a Pose never aliases mutable state.
type Pose struct {
	Trans r3.Vector
	Rot   quat.Number
}

// Identity is the zero-translation, zero-rotation pose.
func Identity() Pose {
	return Pose{Trans: r3.Vector{}, Rot: quat.Number{Real: 1}}
}

// NewPose builds a pose from a translation and rotation, normalizing the
// rotation so downstream conjugate/inverse operations are exact.
func NewPose(trans r3.Vector, rot quat.Number) Pose {
	return Pose{Trans: trans, Rot: normalize(rot)}
}

func normalize(q quat.Number) quat.Number {
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// IsFinite reports whether every component of the pose is finite, the
// precondition invariant F-1 of spec.md §3 requires after every mutation.
func (p Pose) IsFinite() bool {
	vals := []float64{p.Trans.X, p.Trans.Y, p.Trans.Z, p.Rot.Real, p.Rot.Imag, p.Rot.Jmag, p.Rot.Kmag}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// RotateVector applies the pose's rotation to v, i.e. q * v * q^-1 treating v
// as a pure quaternion.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	qv := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// WorldToCamera maps a world point into the camera frame of pose p:
// Xc = q^-1 . (X - t), per spec.md §4.1.
func (p Pose) WorldToCamera(world r3.Vector) r3.Vector {
	shifted := world.Sub(p.Trans)
	return RotateVector(quat.Conj(p.Rot), shifted)
}

// CameraToWorld is the inverse of WorldToCamera: t + q . Xc.
func (p Pose) CameraToWorld(cam r3.Vector) r3.Vector {
	return p.Trans.Add(RotateVector(p.Rot, cam))
}

// RotationDiff returns the rotation difference Δq = q^-1 . q′ from p to other,
// used by the matcher's rotation-compensated geometric gate (spec.md §4.1).
func (p Pose) RotationDiff(other Pose) quat.Number {
	return quat.Mul(quat.Conj(p.Rot), other.Rot)
}

// Distance is the Euclidean distance between two pose translations.
func (p Pose) Distance(other Pose) float64 {
	return p.Trans.Sub(other.Trans).Norm()
}

// AngularDiffDegrees returns the angle, in degrees, of the rotation that
// carries p's orientation to other's -- TransformUtils::deg_diff in the
// original source.
func AngularDiffDegrees(a, b quat.Number) float64 {
	diff := quat.Mul(quat.Conj(normalize(a)), normalize(b))
	diff = normalize(diff)
	// angle-of-rotation from a unit quaternion's real part.
	theta := 2 * math.Acos(clamp(diff.Real, -1, 1))
	if theta > math.Pi {
		theta = 2*math.Pi - theta
	}
	return theta * 180 / math.Pi
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
