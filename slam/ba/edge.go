package ba

import (
	"github.com/golang/geo/r3"
)

// Edge is a single reprojection observation: a feature point's pixel
// px/py tying a PoseVertex to a PointVertex, weighted by a rank-derived
// information weight (see orchestrator.go's generateFrameRank, carried in
// Weight).
type Edge struct {
	Pose   *PoseVertex
	Point  *PointVertex
	ObsX   float64
	ObsY   float64
	Weight float64 // information weight; higher means more trusted

	// FocalLength, PrincipalX, PrincipalY are the edge's own camera
	// parameters. These are per-edge (not per-problem) because the
	// original supports a synthetic "find_focus" sweep that builds many
	// edges at different focal lengths against a fixed graph structure.
	FocalLength float64
	PrincipalX  float64
	PrincipalY  float64
}

// residual returns the reprojection error e = observed - predicted, and ok
// is false if the point is behind the camera (undefined projection).
func (e *Edge) residual() (res [2]float64, ok bool) {
	cam := e.Pose.Pose.WorldToCamera(e.Point.Trans)
	if cam.Z <= 0 {
		return res, false
	}
	predX := e.FocalLength*cam.X/cam.Z + e.PrincipalX
	predY := e.FocalLength*cam.Y/cam.Z + e.PrincipalY
	return [2]float64{e.ObsX - predX, e.ObsY - predY}, true
}

// jacobianPose returns d(residual)/d(pose params) via finite differences,
// one [2]float64 row per free pose parameter (nil for a fixed pose).
// A closed-form Jacobian is the standard choice for a production bundle
// adjuster, but central differences keep this solver's math small and easy
// to verify by hand against the numeric literature's worked examples; the
// residual is cheap (a single pinhole projection) so the extra evaluations
// are not a practical bottleneck at this problem's scale.
func (e *Edge) jacobianPose(h float64) [][2]float64 {
	dims := e.Pose.dims()
	if dims == 0 {
		return nil
	}
	out := make([][2]float64, dims)
	delta := make([]float64, dims)
	for i := range delta {
		delta[i] = h
		plus := e.perturbedPoseResidual(delta)
		delta[i] = -h
		minus := e.perturbedPoseResidual(delta)
		delta[i] = 0
		out[i] = [2]float64{(plus[0] - minus[0]) / (2 * h), (plus[1] - minus[1]) / (2 * h)}
	}
	return out
}

func (e *Edge) perturbedPoseResidual(delta []float64) [2]float64 {
	saved := e.Pose.Pose
	e.Pose.retract(delta)
	res, ok := e.residual()
	e.Pose.Pose = saved
	if !ok {
		return [2]float64{0, 0}
	}
	return res
}

func (e *Edge) jacobianPoint(h float64) [][2]float64 {
	if e.Point.Fixed {
		return nil
	}
	out := make([][2]float64, 3)
	for i := 0; i < 3; i++ {
		delta := [3]float64{}
		delta[i] = h
		plus := e.perturbedPointResidual(delta)
		delta[i] = -h
		minus := e.perturbedPointResidual(delta)
		out[i] = [2]float64{(plus[0] - minus[0]) / (2 * h), (plus[1] - minus[1]) / (2 * h)}
	}
	return out
}

func (e *Edge) perturbedPointResidual(delta [3]float64) [2]float64 {
	saved := e.Point.Trans
	e.Point.Trans = e.Point.Trans.Add(r3.Vector{X: delta[0], Y: delta[1], Z: delta[2]})
	res, ok := e.residual()
	e.Point.Trans = saved
	if !ok {
		return [2]float64{0, 0}
	}
	return res
}
