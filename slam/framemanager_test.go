package slam

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/monoslam/logging"
	"go.viam.com/monoslam/slamconfig"
	"go.viam.com/monoslam/spatial"
)

func testFrameManagerSetup(t *testing.T, cfg slamconfig.Config) (*GraphStore, *FrameManager) {
	intrinsics := Intrinsics{F: 400, CX: 320, CY: 240}
	gs := NewGraphStore(intrinsics, 10, logging.NewTestLogger(t))
	fm := NewFrameManager(gs, cfg, spatial.TruePiEuler, logging.NewTestLogger(t))
	return gs, fm
}

func TestCreateFrameSeedsFromCurrentTranslation(t *testing.T) {
	cfg := slamconfig.Default()
	_, fm := testFrameManagerSetup(t, cfg)

	f0 := fm.CreateFrame(0, 640, 480, [3]float64{}, 0)
	f0.Pose.Trans.X = 5
	f0.Valid = true

	f1 := fm.CreateFrame(1, 640, 480, [3]float64{}, 1)
	test.That(t, f1.Pose.Trans.X, test.ShouldEqual, 5.0)
}

func TestCreateFrameResetsToOriginAfterThreeInvalidFrames(t *testing.T) {
	cfg := slamconfig.Default()
	_, fm := testFrameManagerSetup(t, cfg)

	f0 := fm.CreateFrame(0, 640, 480, [3]float64{}, 0)
	f0.Pose.Trans.X = 5
	f0.Valid = false
	f1 := fm.CreateFrame(1, 640, 480, [3]float64{}, 1)
	f1.Valid = false
	f2 := fm.CreateFrame(2, 640, 480, [3]float64{}, 2)
	f2.Valid = false

	f3 := fm.CreateFrame(3, 640, 480, [3]float64{}, 3)
	test.That(t, f3.Pose.Trans, test.ShouldResemble, r3.Vector{})
}

func TestCreateFrameRecordsImageDimensionsOnlyOnce(t *testing.T) {
	cfg := slamconfig.Default()
	_, fm := testFrameManagerSetup(t, cfg)

	fm.CreateFrame(0, 640, 480, [3]float64{}, 0)
	test.That(t, fm.ImgWidth, test.ShouldEqual, 640.0)
	test.That(t, fm.ImgHeight, test.ShouldEqual, 480.0)

	fm.CreateFrame(1, 1280, 720, [3]float64{}, 1)
	test.That(t, fm.ImgWidth, test.ShouldEqual, 640.0)
	test.That(t, fm.ImgHeight, test.ShouldEqual, 480.0)
}

func TestMaintainSlidingWindowEvictsOnlyWhenOverCapacity(t *testing.T) {
	cfg := slamconfig.Default()
	cfg.MaxFrames = 2
	_, fm := testFrameManagerSetup(t, cfg)

	fm.CreateFrame(0, 640, 480, [3]float64{}, 0)
	fm.CreateFrame(1, 640, 480, [3]float64{}, 1)
	test.That(t, fm.MaintainSlidingWindow(), test.ShouldBeNil)
	test.That(t, len(fm.FrameList()), test.ShouldEqual, 2)

	fm.CreateFrame(2, 640, 480, [3]float64{}, 2)
	evicted := fm.MaintainSlidingWindow()
	test.That(t, evicted, test.ShouldNotBeNil)
	test.That(t, evicted.ID, test.ShouldEqual, 0)
	test.That(t, len(fm.FrameList()), test.ShouldEqual, 2)
}

func TestRemoveAFrameUnlinksNonKeyframeFromLandmarks(t *testing.T) {
	cfg := slamconfig.Default()
	gs, fm := testFrameManagerSetup(t, cfg)

	f0 := fm.CreateFrame(0, 640, 480, [3]float64{}, 0)
	f1 := fm.CreateFrame(1, 640, 480, [3]float64{}, 1)

	fp0 := gs.AddFeaturePoint(f0, 320, 240, Descriptor{0x01})
	fp1 := gs.AddFeaturePoint(f1, 330, 240, Descriptor{0x01})
	l, err := gs.CreateLandmark(fp0, 0)
	test.That(t, err, test.ShouldBeNil)
	gs.Link(l, fp1, 0)

	removed := fm.RemoveAFrame()
	test.That(t, removed.ID, test.ShouldEqual, 0)
	_, stillThere := gs.Frame(0)
	test.That(t, stillThere, test.ShouldBeFalse)
	_, landmarkRemains := gs.Landmark(l.ID)
	test.That(t, landmarkRemains, test.ShouldBeFalse)
}

func TestRemoveAFrameKeepsKeyframeInStore(t *testing.T) {
	cfg := slamconfig.Default()
	_, fm := testFrameManagerSetup(t, cfg)

	f0 := fm.CreateFrame(0, 640, 480, [3]float64{}, 0)
	fm.AddKeyframe(f0)
	fm.CreateFrame(1, 640, 480, [3]float64{}, 1)

	removed := fm.RemoveAFrame()
	test.That(t, removed.ID, test.ShouldEqual, 0)
	_, stillThere := fm.gs.Frame(0)
	test.That(t, stillThere, test.ShouldBeTrue)
}

func TestAddKeyframeFirstIsLevelZero(t *testing.T) {
	cfg := slamconfig.Default()
	_, fm := testFrameManagerSetup(t, cfg)
	f0 := fm.CreateFrame(0, 640, 480, [3]float64{}, 0)
	fm.AddKeyframe(f0)
	test.That(t, f0.Level, test.ShouldEqual, 0)
	test.That(t, f0.IsKeyFrame, test.ShouldBeTrue)
}

func TestAddKeyframePromotesToNextLevelOnSharedLandmarks(t *testing.T) {
	cfg := slamconfig.Default()
	gs, fm := testFrameManagerSetup(t, cfg)

	f0 := fm.CreateFrame(0, 640, 480, [3]float64{}, 0)
	fm.AddKeyframe(f0)
	f1 := fm.CreateFrame(1, 640, 480, [3]float64{}, 1)

	for i := 0; i < 4; i++ {
		fp0 := gs.AddFeaturePoint(f0, float64(300+i), 240, Descriptor{byte(i)})
		fp1 := gs.AddFeaturePoint(f1, float64(300+i), 240, Descriptor{byte(i)})
		l, err := gs.CreateLandmark(fp0, 0)
		test.That(t, err, test.ShouldBeNil)
		gs.Link(l, fp1, 0)
	}

	fm.AddKeyframe(f1)
	test.That(t, f1.Level, test.ShouldEqual, 1)
}

func TestCheckCurrentOrKeyframe(t *testing.T) {
	cfg := slamconfig.Default()
	_, fm := testFrameManagerSetup(t, cfg)
	f0 := fm.CreateFrame(0, 640, 480, [3]float64{}, 0)
	f1 := fm.CreateFrame(1, 640, 480, [3]float64{}, 1)
	fm.AddKeyframe(f0)

	test.That(t, fm.CheckCurrentOrKeyframe(f0), test.ShouldBeTrue)
	test.That(t, fm.CheckCurrentOrKeyframe(f1), test.ShouldBeTrue)

	f2 := fm.CreateFrame(2, 640, 480, [3]float64{}, 2)
	test.That(t, fm.CheckCurrentOrKeyframe(f1), test.ShouldBeFalse)
	test.That(t, fm.CheckCurrentOrKeyframe(f2), test.ShouldBeTrue)
}

func TestSetOriginFrameReanchorsTranslations(t *testing.T) {
	cfg := slamconfig.Default()
	_, fm := testFrameManagerSetup(t, cfg)
	f0 := fm.CreateFrame(0, 640, 480, [3]float64{}, 0)
	f0.Pose.Trans.X = 3
	f1 := fm.CreateFrame(1, 640, 480, [3]float64{}, 1)
	f1.Pose.Trans.X = 8

	origin := fm.SetOriginFrame(f0)
	test.That(t, origin.X, test.ShouldEqual, 3.0)
	test.That(t, f0.Pose.Trans.X, test.ShouldEqual, 0.0)
	test.That(t, f1.Pose.Trans.X, test.ShouldEqual, 5.0)
}

func TestSetCurrTransSmoothedAbsorbsSmallMoves(t *testing.T) {
	cfg := slamconfig.Default()
	cfg.SmootheningTolerance = 1.0
	_, fm := testFrameManagerSetup(t, cfg)
	f0 := fm.CreateFrame(0, 640, 480, [3]float64{}, 0)
	f0.Valid = true
	f0.LandmarkDistThreshold = 10
	fm.SetCurrTransSmoothed(f0)
	before := fm.CurrTransSmoothed()

	f1 := fm.CreateFrame(1, 640, 480, [3]float64{}, 1)
	f1.Valid = true
	f1.Pose.Trans.X = 0.01
	f1.LandmarkDistThreshold = 10
	fm.SetCurrTransSmoothed(f1)
	test.That(t, fm.CurrTransSmoothed(), test.ShouldResemble, before)
}

func TestSetCurrTransSmoothedAveragesLargeMoves(t *testing.T) {
	cfg := slamconfig.Default()
	cfg.SmootheningTolerance = 0.01
	_, fm := testFrameManagerSetup(t, cfg)
	f0 := fm.CreateFrame(0, 640, 480, [3]float64{}, 0)
	f0.Valid = true
	f0.LandmarkDistThreshold = 1
	fm.SetCurrTransSmoothed(f0)

	f1 := fm.CreateFrame(1, 640, 480, [3]float64{}, 1)
	f1.Valid = true
	f1.Pose.Trans.X = 10
	f1.LandmarkDistThreshold = 1
	fm.SetCurrTransSmoothed(f1)
	test.That(t, fm.CurrTransSmoothed().X, test.ShouldEqual, 5.0)
}
