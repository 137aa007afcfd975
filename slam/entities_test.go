package slam

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestHammingDistanceZeroForIdenticalDescriptors(t *testing.T) {
	var d Descriptor
	for i := range d {
		d[i] = byte(i)
	}
	test.That(t, d.HammingDistance(d), test.ShouldEqual, 0)
}

func TestHammingDistanceCountsDifferingBits(t *testing.T) {
	var a, b Descriptor
	a[0] = 0x0F // 0000 1111
	b[0] = 0xF0 // 1111 0000
	test.That(t, a.HammingDistance(b), test.ShouldEqual, 8)
}

func TestHasLandmarkReflectsTheSentinel(t *testing.T) {
	fp := &FeaturePoint{}
	test.That(t, fp.HasLandmark(), test.ShouldBeFalse)
	fp.Landmark = 42
	test.That(t, fp.HasLandmark(), test.ShouldBeTrue)
}

func TestNormalizedPointLiftsToAUnitDepthRay(t *testing.T) {
	fp := &FeaturePoint{NX: 0.1, NY: -0.2}
	test.That(t, fp.NormalizedPoint(), test.ShouldResemble, r3.Vector{X: 0.1, Y: -0.2, Z: 1})
}

func TestFeaturePointSliceIsSortedByID(t *testing.T) {
	f := &Frame{FeaturePoints: map[int]*FeaturePoint{
		3: {ID: 3}, 1: {ID: 1}, 2: {ID: 2},
	}}
	out := f.FeaturePointSlice()
	test.That(t, len(out), test.ShouldEqual, 3)
	test.That(t, out[0].ID, test.ShouldEqual, 1)
	test.That(t, out[1].ID, test.ShouldEqual, 2)
	test.That(t, out[2].ID, test.ShouldEqual, 3)
}

func TestFrameIDsReturnsDistinctContributingFrames(t *testing.T) {
	l := &Landmark{FeaturePoints: map[int]*FeaturePoint{
		1: {ID: 1, FrameID: 10},
		2: {ID: 2, FrameID: 10},
		3: {ID: 3, FrameID: 20},
	}}
	frames := l.FrameIDs()
	test.That(t, len(frames), test.ShouldEqual, 2)
	_, hasTen := frames[10]
	_, hasTwenty := frames[20]
	test.That(t, hasTen, test.ShouldBeTrue)
	test.That(t, hasTwenty, test.ShouldBeTrue)
}
