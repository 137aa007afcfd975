package ba

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/monoslam/spatial"
)

func testEdge() (*Edge, *PoseVertex, *PointVertex) {
	pose := &PoseVertex{Pose: spatial.Identity(), DOF: ThreeDOF}
	point := &PointVertex{Trans: r3.Vector{X: 0, Y: 0, Z: 5}}
	e := &Edge{
		Pose: pose, Point: point,
		ObsX: 320, ObsY: 240,
		Weight: 1, FocalLength: 400, PrincipalX: 320, PrincipalY: 240,
	}
	return e, pose, point
}

func TestResidualIsZeroForExactObservation(t *testing.T) {
	e, _, _ := testEdge()
	res, ok := e.residual()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, math.Abs(res[0]), test.ShouldBeLessThan, 1e-9)
	test.That(t, math.Abs(res[1]), test.ShouldBeLessThan, 1e-9)
}

func TestResidualFailsBehindCamera(t *testing.T) {
	e, _, point := testEdge()
	point.Trans.Z = -1
	_, ok := e.residual()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestJacobianPointMatchesPinholeDerivative(t *testing.T) {
	e, _, _ := testEdge()
	e.ObsX, e.ObsY = 300, 300 // move off the exact match so the residual is nonzero but still well-posed
	j := e.jacobianPoint(1e-6)
	test.That(t, len(j), test.ShouldEqual, 3)
	// d(residual_x)/d(world_x) = -FocalLength/camZ = -400/5 = -80.
	test.That(t, math.Abs(j[0][0]-(-80)), test.ShouldBeLessThan, 1e-2)
	// d(residual_y)/d(world_y) = -FocalLength/camZ = -80.
	test.That(t, math.Abs(j[1][1]-(-80)), test.ShouldBeLessThan, 1e-2)
}

func TestJacobianPointEmptyWhenFixed(t *testing.T) {
	e, _, point := testEdge()
	point.Fixed = true
	j := e.jacobianPoint(1e-6)
	test.That(t, j, test.ShouldBeNil)
}

func TestJacobianPoseEmptyWhenFixed(t *testing.T) {
	e, pose, _ := testEdge()
	pose.Fixed = true
	j := e.jacobianPose(1e-6)
	test.That(t, j, test.ShouldBeNil)
}

func TestJacobianPoseMatchesPinholeDerivative(t *testing.T) {
	e, _, _ := testEdge()
	e.ObsX, e.ObsY = 300, 300
	j := e.jacobianPose(1e-6)
	test.That(t, len(j), test.ShouldEqual, 3)
	// Pose translation moves the camera, shifting world-in-camera by -delta,
	// so d(residual_x)/d(pose_trans_x) = +FocalLength/camZ = 80 (opposite
	// sign from the point jacobian since translating the camera is
	// equivalent to translating the point the other way).
	test.That(t, math.Abs(j[0][0]-80), test.ShouldBeLessThan, 1e-2)
}
