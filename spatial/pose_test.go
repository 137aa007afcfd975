package spatial

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestIdentityRoundTrip(t *testing.T) {
	id := Identity()
	test.That(t, id.IsFinite(), test.ShouldBeTrue)
	world := r3.Vector{X: 1, Y: 2, Z: 3}
	test.That(t, id.WorldToCamera(world), test.ShouldResemble, world)
	test.That(t, id.CameraToWorld(world), test.ShouldResemble, world)
}

func TestWorldToCameraRoundTrip(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: -2, Z: 0.5}, OrientationToQuat(10, 5, -15, TruePiEuler))
	world := r3.Vector{X: 3, Y: 4, Z: 6}
	cam := p.WorldToCamera(world)
	back := p.CameraToWorld(cam)
	test.That(t, math.Abs(back.X-world.X), test.ShouldBeLessThan, 1e-9)
	test.That(t, math.Abs(back.Y-world.Y), test.ShouldBeLessThan, 1e-9)
	test.That(t, math.Abs(back.Z-world.Z), test.ShouldBeLessThan, 1e-9)
}

func TestRotationDiffIdentity(t *testing.T) {
	p := NewPose(r3.Vector{}, OrientationToQuat(3, 7, 11, TruePiEuler))
	diff := p.RotationDiff(p)
	test.That(t, math.Abs(diff.Real-1), test.ShouldBeLessThan, 1e-9)
}

func TestAngularDiffDegrees(t *testing.T) {
	a := quat.Number{Real: 1}
	b := OrientationToQuat(0, 0, 10, TruePiEuler)
	diff := AngularDiffDegrees(a, b)
	test.That(t, math.Abs(diff-10), test.ShouldBeLessThan, 0.01)
}

func TestIsFiniteRejectsNaN(t *testing.T) {
	p := Pose{Trans: r3.Vector{X: math.NaN()}, Rot: quat.Number{Real: 1}}
	test.That(t, p.IsFinite(), test.ShouldBeFalse)
}
