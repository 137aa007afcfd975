package slam

import (
	"math/rand"
	"testing"

	"go.viam.com/test"

	"go.viam.com/monoslam/logging"
	"go.viam.com/monoslam/slamconfig"
	"go.viam.com/monoslam/spatial"
)

func testMatcherSetup(t *testing.T) (*GraphStore, *Matcher, slamconfig.Config) {
	cfg := slamconfig.Default()
	cfg.MatchHierarchy = false
	intrinsics := Intrinsics{F: 400, CX: 320, CY: 240}
	gs := NewGraphStore(intrinsics, 10, logging.NewTestLogger(t))
	m := NewMatcher(cfg, intrinsics, gs, logging.NewTestLogger(t))
	return gs, m, cfg
}

func TestSetDistancesTracksTwoSmallest(t *testing.T) {
	d1, d2 := -1.0, -1.0
	setDistances(5, &d1, &d2)
	test.That(t, d1, test.ShouldEqual, 5.0)
	setDistances(2, &d1, &d2)
	test.That(t, d1, test.ShouldEqual, 2.0)
	test.That(t, d2, test.ShouldEqual, 5.0)
	setDistances(10, &d1, &d2)
	test.That(t, d1, test.ShouldEqual, 2.0)
	test.That(t, d2, test.ShouldEqual, 5.0)
}

func TestValidDistanceRejectsAmbiguousRatio(t *testing.T) {
	_, m, _ := testMatcherSetup(t)
	test.That(t, m.validDistance(10, 20), test.ShouldBeTrue)
	test.That(t, m.validDistance(18, 20), test.ShouldBeFalse)
	test.That(t, m.validDistance(70, -1), test.ShouldBeFalse)
}

func TestMatchFPsRejectsLowAverageGap(t *testing.T) {
	gs, m, cfg := testMatcherSetup(t)
	prevFrame := gs.AddFrame(spatial.Identity(), [3]float64{}, 0)
	currFrame := gs.AddFrame(spatial.Identity(), [3]float64{}, 1)

	prevFp := gs.AddFeaturePoint(prevFrame, 320, 240, Descriptor{0x01})
	gs.AddFeaturePoint(currFrame, 320, 240, Descriptor{0x01})

	rng := rand.New(rand.NewSource(1))
	descriptorFrames := map[int]*Frame{prevFrame.ID: prevFrame, currFrame.ID: currFrame}
	out := m.MatchFPs(currFrame, []*FeaturePoint{prevFp}, descriptorFrames, 10, cfg.MinAvgGap, rng)
	test.That(t, out, test.ShouldBeNil)
}

func TestMatchFPsAcceptsSufficientGap(t *testing.T) {
	gs, m, cfg := testMatcherSetup(t)
	prevFrame := gs.AddFrame(spatial.Identity(), [3]float64{}, 0)
	currFrame := gs.AddFrame(spatial.Identity(), [3]float64{}, 1)

	prevFp := gs.AddFeaturePoint(prevFrame, 320, 240, Descriptor{0x01})
	// 1200px of pixel gap is far outside what a real capture would show, but
	// the gate compares normalized-coordinate deltas against MinAvgGap (2 by
	// default), so a realistic few-pixel gap wouldn't clear it in this test.
	gs.AddFeaturePoint(currFrame, 1520, 240, Descriptor{0x01})

	rng := rand.New(rand.NewSource(1))
	descriptorFrames := map[int]*Frame{prevFrame.ID: prevFrame, currFrame.ID: currFrame}
	out := m.MatchFPs(currFrame, []*FeaturePoint{prevFp}, descriptorFrames, 10, cfg.MinAvgGap, rng)
	test.That(t, len(out), test.ShouldEqual, 1)
}

func TestMatchFPsEmptyReferenceReturnsNil(t *testing.T) {
	gs, m, cfg := testMatcherSetup(t)
	currFrame := gs.AddFrame(spatial.Identity(), [3]float64{}, 0)
	rng := rand.New(rand.NewSource(1))
	out := m.MatchFPs(currFrame, nil, map[int]*Frame{}, 10, cfg.MinAvgGap, rng)
	test.That(t, out, test.ShouldBeNil)
}
