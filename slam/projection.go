package slam

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/monoslam/spatial"
)

// Intrinsics is the pinhole camera model used by the projection kernel
// (spec.md §4.1): focal length f and principal point (cx, cy).
type Intrinsics struct {
	F      float64
	CX, CY float64
}

// ErrBehindCamera signals that a point's camera-frame z is non-positive, so
// it cannot be projected to a pixel. It is local to the caller (the
// validator flags the edge INVALID, GetError skips the term) and never
// propagates past that.
var ErrBehindCamera = newSentinelError("point is behind the camera")

// Project maps a pose and a world point to a pixel coordinate. If the point's
// camera-frame z is <= 0 it reports ErrBehindCamera and the returned pixel is
// the zero value.
func (in Intrinsics) Project(pose spatial.Pose, world r3.Vector) (px, py float64, err error) {
	cam := pose.WorldToCamera(world)
	if cam.Z <= 0 {
		return 0, 0, ErrBehindCamera
	}
	return in.F*cam.X/cam.Z + in.CX, in.F*cam.Y/cam.Z + in.CY, nil
}

// ProjectNormalized is Project without the intrinsics scale/offset, i.e. the
// normalized-image-plane coordinate (x̂, ŷ). Nothing in the pipeline calls
// it; the validator projects to pixels with Project.
func (in Intrinsics) ProjectNormalized(pose spatial.Pose, world r3.Vector) (x, y float64, err error) {
	cam := pose.WorldToCamera(world)
	if cam.Z <= 0 {
		return 0, 0, ErrBehindCamera
	}
	return cam.X / cam.Z, cam.Y / cam.Z, nil
}

// Unproject recovers a world point from a pose, a normalized image
// coordinate, and a depth d along the camera's optical axis:
// t + q . (x̂d, ŷd, d).
func (in Intrinsics) Unproject(pose spatial.Pose, nx, ny, depth float64) r3.Vector {
	camPoint := r3.Vector{X: nx * depth, Y: ny * depth, Z: depth}
	return pose.CameraToWorld(camPoint)
}

// RotatedProjection implements the matcher's rotational reprojection gate
// (spec.md §4.1): given the rotation difference Δq = q^-1 . q′ from the
// current frame to a reference frame, re-expresses a normalized image
// coordinate as though it were seen after that rotation, at a nominal depth
// of 100 units (matching TransformUtils::get_rotated_projection). Neither
// the focal length nor the principal point is applied, so the result stays
// on the same normalized scale as the reference point validGap compares it
// against; at zero rotation this is the identity.
func (in Intrinsics) RotatedProjection(deltaQ quat.Number, nx, ny float64) (px, py float64) {
	rotated := spatial.RotateVector(deltaQ, r3.Vector{X: nx * 100, Y: ny * 100, Z: 100})
	if rotated.Z == 0 {
		return 0, 0
	}
	return rotated.X / rotated.Z, rotated.Y / rotated.Z
}
