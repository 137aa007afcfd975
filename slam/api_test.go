package slam

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/monoslam/logging"
	"go.viam.com/monoslam/slamconfig"
)

func testSlamSetup(t *testing.T) *Slam {
	cfg := slamconfig.Default()
	return NewSlam(cfg, rand.New(rand.NewSource(1)), logging.NewTestLogger(t))
}

func TestNewSlamStartsUninitializedWithNoTrajectory(t *testing.T) {
	s := testSlamSetup(t)
	test.That(t, s.IsInitialized(), test.ShouldBeFalse)
	test.That(t, s.CurrFrameTrans(), test.ShouldResemble, r3.Vector{})
	test.That(t, s.CurrTransSmoothed(), test.ShouldResemble, r3.Vector{})
	test.That(t, s.KeyframeCount(), test.ShouldEqual, 0)
}

func TestKeyframePoseUnknownIDReturnsFalse(t *testing.T) {
	s := testSlamSetup(t)
	_, ok := s.KeyframePose(999)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestGraphStoreExposesTheUnderlyingStore(t *testing.T) {
	s := testSlamSetup(t)
	gs := s.GraphStore()
	test.That(t, gs, test.ShouldNotBeNil)
	test.That(t, len(gs.Frames()), test.ShouldEqual, 0)
	test.That(t, len(gs.Landmarks()), test.ShouldEqual, 0)
}

func TestNewSlamDerivesIntrinsicsFromConfig(t *testing.T) {
	cfg := slamconfig.Default()
	s := NewSlam(cfg, rand.New(rand.NewSource(1)), logging.NewTestLogger(t))
	test.That(t, s.intrinsics.F, test.ShouldEqual, float64(cfg.FX))
	test.That(t, s.intrinsics.CX, test.ShouldEqual, float64(cfg.CX))
	test.That(t, s.intrinsics.CY, test.ShouldEqual, float64(cfg.CY))
}
