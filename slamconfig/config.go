// Package slamconfig holds the tunable parameters threaded through every
// slam component, mirroring the original's ConfigReader-backed SlamConfig:
// one flat struct, read once at startup, passed by reference everywhere.
package slamconfig

import "github.com/pkg/errors"

// Config collects every tunable the SLAM pipeline reads. Fields are grouped
// the way slamConfig.hpp grouped them (BA / keypoint / matcher / pose); the
// grouping is comment-only, there is no nesting, matching the flat style the
// original reader produced.
type Config struct {
	// Camera intrinsics and BA scope.
	CX, CY      int
	FX, FY      int
	MaxDepth    int
	PathStart   int
	PathEnd     int

	// Match-tree shape (C3).
	MatchHierarchy bool
	LeafSize       int
	BranchSize     int
	TreeSize       int

	// Keypoint requirements.
	ReqdKpsInit int
	ReqdKps     int

	// Matcher gates (C4).
	MaxGap             int
	MinGap             int
	MinAvgGapInit      float64
	MinAvgGap          float64
	DistanceThreshold  float64
	Ratio              float64
	ImgWidthRatio      float64
	DebugEstimateValidation bool

	// Pose estimation / bundle adjustment (C7/C8).
	BaOption              int // 3 or 6; validated, see SPEC_FULL.md
	MaxFrames             int
	MapInitializationFrames int
	NumKeyFrameMatches    int
	MaxDistRatio          float64
	MaxAngle              float64
	CopyRotation          bool
	Scale                 float64
	FindFocus             bool
	NormalizeKP           bool
	DebugFrameID          int
	DisableRotationInput  bool
	NewKeyframesBA        bool
	SmootheningTolerance  float64
	Cholmod               bool
}

// Default returns the parameter set the original shipped as its baseline
// experiment configuration, before any per-deployment overrides.
func Default() Config {
	return Config{
		CX: 320, CY: 240, FX: 466, FY: 466, MaxDepth: 10, PathStart: 0, PathEnd: 0,
		MatchHierarchy: true, LeafSize: 5, BranchSize: 5, TreeSize: 3,
		ReqdKpsInit: 150, ReqdKps: 60,
		MaxGap: 60, MinGap: 0, MinAvgGapInit: 4, MinAvgGap: 2,
		DistanceThreshold: 60, Ratio: 0.8, ImgWidthRatio: 1,
		BaOption: 3, MaxFrames: 12, MapInitializationFrames: 5,
		NumKeyFrameMatches: 4, MaxDistRatio: 1.5, MaxAngle: 30,
		CopyRotation: false, Scale: 1, FindFocus: false, NormalizeKP: false,
		DisableRotationInput: false, NewKeyframesBA: true, SmootheningTolerance: 1.5,
		Cholmod: false,
	}
}

// FromMap builds a Config by overlaying keys onto Default, the Go analogue
// of ConfigReader reading named keys out of an ini-style file. Unknown keys
// are rejected rather than silently ignored, since a typo'd key silently
// keeping its default is exactly the kind of bug this function exists to
// catch early.
func FromMap(values map[string]interface{}) (Config, error) {
	cfg := Default()
	for key, val := range values {
		if err := cfg.setField(key, val); err != nil {
			return Config{}, errors.Wrapf(err, "config key %q", key)
		}
	}
	return cfg, cfg.Validate()
}

func (c *Config) setField(key string, val interface{}) error {
	switch key {
	case "cx":
		return assignInt(&c.CX, val)
	case "cy":
		return assignInt(&c.CY, val)
	case "fx":
		return assignInt(&c.FX, val)
	case "fy":
		return assignInt(&c.FY, val)
	case "maxDepth":
		return assignInt(&c.MaxDepth, val)
	case "pathStart":
		return assignInt(&c.PathStart, val)
	case "pathEnd":
		return assignInt(&c.PathEnd, val)
	case "matchHierarchy":
		return assignBool(&c.MatchHierarchy, val)
	case "leafSize":
		return assignInt(&c.LeafSize, val)
	case "branchSize":
		return assignInt(&c.BranchSize, val)
	case "treeSize":
		return assignInt(&c.TreeSize, val)
	case "reqdKpsInit":
		return assignInt(&c.ReqdKpsInit, val)
	case "reqdKps":
		return assignInt(&c.ReqdKps, val)
	case "maxGap":
		return assignInt(&c.MaxGap, val)
	case "minGap":
		return assignInt(&c.MinGap, val)
	case "minAvgGapInit":
		return assignFloat(&c.MinAvgGapInit, val)
	case "minAvgGap":
		return assignFloat(&c.MinAvgGap, val)
	case "distanceThreshold":
		return assignFloat(&c.DistanceThreshold, val)
	case "ratio":
		return assignFloat(&c.Ratio, val)
	case "imgWidthRatio":
		return assignFloat(&c.ImgWidthRatio, val)
	case "debugEstimateValidation":
		return assignBool(&c.DebugEstimateValidation, val)
	case "baOption":
		return assignInt(&c.BaOption, val)
	case "maxFrames":
		return assignInt(&c.MaxFrames, val)
	case "mapInitializationFrames":
		return assignInt(&c.MapInitializationFrames, val)
	case "numKeyFrameMatches":
		return assignInt(&c.NumKeyFrameMatches, val)
	case "maxDistRatio":
		return assignFloat(&c.MaxDistRatio, val)
	case "maxAngle":
		return assignFloat(&c.MaxAngle, val)
	case "copyRotation":
		return assignBool(&c.CopyRotation, val)
	case "scale":
		return assignFloat(&c.Scale, val)
	case "findFocus":
		return assignBool(&c.FindFocus, val)
	case "normalizeKP":
		return assignBool(&c.NormalizeKP, val)
	case "debugFrameId":
		return assignInt(&c.DebugFrameID, val)
	case "disableRotationInput":
		return assignBool(&c.DisableRotationInput, val)
	case "newKeyframesBA":
		return assignBool(&c.NewKeyframesBA, val)
	case "smootheningTolerance":
		return assignFloat(&c.SmootheningTolerance, val)
	case "cholmod":
		return assignBool(&c.Cholmod, val)
	default:
		return errors.New("unknown config key")
	}
}

func assignInt(dst *int, val interface{}) error {
	switch v := val.(type) {
	case int:
		*dst = v
	case float64:
		*dst = int(v)
	default:
		return errors.Errorf("expected int, got %T", val)
	}
	return nil
}

func assignFloat(dst *float64, val interface{}) error {
	switch v := val.(type) {
	case float64:
		*dst = v
	case int:
		*dst = float64(v)
	default:
		return errors.Errorf("expected float64, got %T", val)
	}
	return nil
}

func assignBool(dst *bool, val interface{}) error {
	v, ok := val.(bool)
	if !ok {
		return errors.Errorf("expected bool, got %T", val)
	}
	*dst = v
	return nil
}

// Validate rejects configurations that would make downstream components
// panic on a precondition rather than fail explicitly at startup.
func (c Config) Validate() error {
	if c.BaOption != 3 && c.BaOption != 6 {
		return errors.Errorf("baOption must be 3 or 6, got %d", c.BaOption)
	}
	if c.LeafSize <= 0 || c.BranchSize <= 0 || c.TreeSize <= 0 {
		return errors.New("leafSize, branchSize and treeSize must be positive")
	}
	if c.FX <= 0 || c.FY <= 0 {
		return errors.New("fx and fy must be positive")
	}
	if c.NumKeyFrameMatches <= 0 {
		return errors.New("numKeyFrameMatches must be positive")
	}
	return nil
}
