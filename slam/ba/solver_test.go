package ba

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/monoslam/spatial"
)

func TestOptimizeRejectsProblemWithNoEdges(t *testing.T) {
	p := NewProblem()
	_, err := p.Optimize(10, false)
	test.That(t, err, test.ShouldEqual, ErrIllPosed)
}

// TestOptimizeRefinesFreePointAgainstFixedPoses exercises the all-poses-fixed
// path: two cameras with known poses observe one landmark whose initial
// position estimate is off, and Optimize should pull it toward the true
// triangulated position purely by adjusting the point (buildReducedSystem's
// Schur complement with zero free pose parameters).
func TestOptimizeRefinesFreePointAgainstFixedPoses(t *testing.T) {
	const focal, cx, cy = 400.0, 320.0, 240.0
	posA := &PoseVertex{ID: 1, Pose: spatial.Identity(), Fixed: true, DOF: ThreeDOF}
	posB := &PoseVertex{ID: 2, Pose: spatial.Pose{Trans: r3.Vector{X: 2}, Rot: spatial.Identity().Rot}, Fixed: true, DOF: ThreeDOF}

	truePoint := r3.Vector{X: 0.3, Y: 0.1, Z: 5}
	obsA := project(focal, cx, cy, posA.Pose, truePoint)
	obsB := project(focal, cx, cy, posB.Pose, truePoint)

	point := &PointVertex{ID: 1, Trans: r3.Vector{X: 0, Y: 0, Z: 4.5}}

	p := NewProblem()
	p.AddPose(posA)
	p.AddPose(posB)
	p.AddPoint(point)
	p.AddEdge(&Edge{Pose: posA, Point: point, ObsX: obsA[0], ObsY: obsA[1], Weight: 1, FocalLength: focal, PrincipalX: cx, PrincipalY: cy})
	p.AddEdge(&Edge{Pose: posB, Point: point, ObsX: obsB[0], ObsY: obsB[1], Weight: 1, FocalLength: focal, PrincipalX: cx, PrincipalY: cy})

	initialCost := p.chiSquare()
	result, err := p.Optimize(50, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.FinalCost, test.ShouldBeLessThan, initialCost)

	dist := point.Trans.Sub(truePoint).Norm()
	test.That(t, dist, test.ShouldBeLessThan, 0.2)
}

func project(focal, cx, cy float64, pose spatial.Pose, world r3.Vector) [2]float64 {
	cam := pose.WorldToCamera(world)
	return [2]float64{focal*cam.X/cam.Z + cx, focal*cam.Y/cam.Z + cy}
}

func TestOptimizeMovesFreePoseTowardTrueTranslation(t *testing.T) {
	const focal, cx, cy = 400.0, 320.0, 240.0
	fixedLandmark := &PointVertex{ID: 1, Trans: r3.Vector{X: 0, Y: 0, Z: 5}, Fixed: true}
	truePose := spatial.Pose{Trans: r3.Vector{X: 1, Y: 0, Z: 0}, Rot: spatial.Identity().Rot}
	obs := project(focal, cx, cy, truePose, fixedLandmark.Trans)

	pose := &PoseVertex{ID: 1, Pose: spatial.Pose{Trans: r3.Vector{X: 0.7}, Rot: spatial.Identity().Rot}, DOF: ThreeDOF}

	p := NewProblem()
	p.AddPose(pose)
	p.AddPoint(fixedLandmark)
	p.AddEdge(&Edge{Pose: pose, Point: fixedLandmark, ObsX: obs[0], ObsY: obs[1], Weight: 1, FocalLength: focal, PrincipalX: cx, PrincipalY: cy})

	initialCost := p.chiSquare()
	result, err := p.Optimize(50, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.FinalCost, test.ShouldBeLessThanOrEqualTo, initialCost)
}

func TestOptimizeStructureOnlyRestoresPoseFixedFlag(t *testing.T) {
	const focal, cx, cy = 400.0, 320.0, 240.0
	pose := &PoseVertex{ID: 1, Pose: spatial.Identity(), DOF: ThreeDOF}
	point := &PointVertex{ID: 1, Trans: r3.Vector{X: 0, Y: 0, Z: 5}}

	p := NewProblem()
	p.AddPose(pose)
	p.AddPoint(point)
	p.AddEdge(&Edge{Pose: pose, Point: point, ObsX: 320, ObsY: 240, Weight: 1, FocalLength: focal, PrincipalX: cx, PrincipalY: cy})

	_, err := p.Optimize(5, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Fixed, test.ShouldBeFalse)
}

func TestRepairIllPosednessFreesMostConnectedPose(t *testing.T) {
	pose1 := &PoseVertex{ID: 1, Pose: spatial.Identity(), Fixed: true, DOF: ThreeDOF}
	pose2 := &PoseVertex{ID: 2, Pose: spatial.Identity(), Fixed: true, DOF: ThreeDOF}
	point := &PointVertex{ID: 1, Trans: r3.Vector{X: 0, Y: 0, Z: 5}, Fixed: true}

	p := NewProblem()
	p.AddPose(pose1)
	p.AddPose(pose2)
	p.AddPoint(point)
	p.AddEdge(&Edge{Pose: pose1, Point: point, ObsX: 320, ObsY: 240, Weight: 1, FocalLength: 400, PrincipalX: 320, PrincipalY: 240})
	p.AddEdge(&Edge{Pose: pose2, Point: point, ObsX: 320, ObsY: 240, Weight: 1, FocalLength: 400, PrincipalX: 320, PrincipalY: 240})
	p.AddEdge(&Edge{Pose: pose2, Point: point, ObsX: 322, ObsY: 242, Weight: 1, FocalLength: 400, PrincipalX: 320, PrincipalY: 240})

	freedID := p.repairIllPosedness()
	test.That(t, freedID, test.ShouldEqual, pose2.ID)
	test.That(t, pose2.Fixed, test.ShouldBeFalse)
	test.That(t, pose1.Fixed, test.ShouldBeTrue)
}

func TestRepairIllPosednessNoOpWhenSomethingAlreadyFree(t *testing.T) {
	pose1 := &PoseVertex{ID: 1, Pose: spatial.Identity(), Fixed: false, DOF: ThreeDOF}
	point := &PointVertex{ID: 1, Fixed: true}
	p := NewProblem()
	p.AddPose(pose1)
	p.AddPoint(point)
	test.That(t, p.repairIllPosedness(), test.ShouldEqual, 0)
}

func TestHuberWeightUnaffectedByLargeDelta(t *testing.T) {
	test.That(t, math.Abs(HuberKernel{Delta: 100}.Weight(4)-1.0) < 1e-9, test.ShouldBeTrue)
}
