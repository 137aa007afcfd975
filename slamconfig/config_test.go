package slamconfig

import (
	"testing"

	"go.viam.com/test"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
}

func TestFromMapOverlaysOntoDefault(t *testing.T) {
	cfg, err := FromMap(map[string]interface{}{
		"fx":     float64(500),
		"fy":     500,
		"ratio":  0.9,
		"cholmod": true,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.FX, test.ShouldEqual, 500)
	test.That(t, cfg.FY, test.ShouldEqual, 500)
	test.That(t, cfg.Ratio, test.ShouldEqual, 0.9)
	test.That(t, cfg.Cholmod, test.ShouldBeTrue)
	// Untouched fields keep their Default() value.
	test.That(t, cfg.CX, test.ShouldEqual, 320)
	test.That(t, cfg.MaxFrames, test.ShouldEqual, 12)
}

func TestFromMapRejectsUnknownKey(t *testing.T) {
	_, err := FromMap(map[string]interface{}{"notAField": 1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromMapRejectsWrongType(t *testing.T) {
	_, err := FromMap(map[string]interface{}{"fx": "not a number"})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestValidateRejectsBadBaOption(t *testing.T) {
	cfg := Default()
	cfg.BaOption = 4
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)
}

func TestValidateRejectsNonPositiveTreeShape(t *testing.T) {
	cfg := Default()
	cfg.LeafSize = 0
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)
}

func TestValidateRejectsNonPositiveFocalLength(t *testing.T) {
	cfg := Default()
	cfg.FX = 0
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)
}

func TestValidateRejectsNonPositiveNumKeyFrameMatches(t *testing.T) {
	cfg := Default()
	cfg.NumKeyFrameMatches = 0
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)
}
