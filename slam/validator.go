package slam

import (
	"github.com/golang/geo/r3"

	"go.viam.com/monoslam/logging"
	"go.viam.com/monoslam/spatial"
)

// Classification is the three-state (plus "unset" during propagation)
// verdict the validator assigns to every frame and landmark under
// evaluation (spec.md §4.6, grounded on ba/estimateValidator.hpp).
type Classification int

const (
	Unset Classification = iota
	Valid
	Fixed
	Invalid
)

// FPAssessment records why a single feature-point/landmark pairing was
// judged valid or invalid, kept for diagnostics the way FpValidResult did in
// the original.
type FPAssessment struct {
	Result     Classification
	TooClose   bool
	TooFar     bool
	Behind     bool
	OutOfRange bool
	PredX, PredY float64
}

// ValidatorOutput is the full result of one validation pass: per-entity
// classifications plus the two summary ratios that gate acceptance.
type ValidatorOutput struct {
	LandmarkTrans map[int]r3.Vector
	FramePose     map[int]spatial.Pose

	LandmarkResult map[int]Classification // landmark ID -> classification
	FrameResult    map[int]Classification // frame ID -> classification
	FPResult       map[int]map[int]*FPAssessment // fp ID -> landmark ID -> assessment

	AvgInlierRatio float64
	ValidFrameRatio float64
	Valid           bool
}

// Validator evaluates the quality of a bundle-adjustment estimate by
// propagating trust outward from fixed frames/landmarks through
// successive rank tiers (spec.md §4.6).
type Validator struct {
	gs         *GraphStore
	intrinsics Intrinsics
	normalizeKP bool
	logger     logging.Logger
}

// NewValidator builds a validator bound to a graph store.
func NewValidator(gs *GraphStore, intrinsics Intrinsics, normalizeKP bool, logger logging.Logger) *Validator {
	return &Validator{gs: gs, intrinsics: intrinsics, normalizeKP: normalizeKP, logger: logger.Sublogger("validator")}
}

func framePose(framePoseMap map[int]spatial.Pose, f *Frame) spatial.Pose {
	if p, ok := framePoseMap[f.ID]; ok {
		return p
	}
	return f.Pose
}

// validateFPInlier classifies one (feature point, landmark) observation
// pair: distance-ratio eligibility (not too close, not too far relative to
// the baseline between reference frames), then behind-camera, then
// within-projection-range.
func (v *Validator) validateFPInlier(
	fp *FeaturePoint,
	transKP r3.Vector,
	inlierRange float64,
	frameSet map[int]*Frame,
	isFrameFixed, isLandmarkFixed bool,
	framePoseMap map[int]spatial.Pose,
) *FPAssessment {
	out := &FPAssessment{}
	if isFrameFixed && isLandmarkFixed {
		out.Result = Fixed
		return out
	}

	frame, ok := v.gs.frames[fp.FrameID]
	if !ok {
		panicInvariant("feature point references an evicted frame during validation")
	}
	pose := framePose(framePoseMap, frame)

	distance := pose.Trans.Sub(transKP).Norm()
	minDistanceForCheck := distance / 3
	maxDistanceForCheck := distance / 99
	isTooClose, isTooFar := true, true
	for _, other := range frameSet {
		otherPose := framePose(framePoseMap, other)
		poseDistance := otherPose.Trans.Sub(pose.Trans).Norm()
		if isTooClose && minDistanceForCheck > poseDistance {
			isTooClose = false
		}
		if isTooFar && maxDistanceForCheck < poseDistance {
			isTooFar = false
		}
		if !isTooFar && !isTooClose {
			break
		}
	}
	if isTooClose {
		out.Result, out.TooClose = Invalid, true
		return out
	}
	if isTooFar {
		out.Result, out.TooFar = Invalid, true
		return out
	}

	camZ := pose.WorldToCamera(transKP).Z
	if camZ <= 0 {
		out.Result, out.Behind = Invalid, true
		return out
	}

	px, py, err := v.intrinsics.Project(pose, transKP)
	if err != nil {
		out.Result, out.Behind = Invalid, true
		return out
	}
	out.PredX, out.PredY = px, py
	gap := r3.Vector{X: fp.Px - px, Y: fp.Py - py}.Norm()
	if gap >= inlierRange {
		out.Result, out.OutOfRange = Invalid, true
		return out
	}

	out.Result = Valid
	return out
}

// Validate runs the rank-tiered propagation (spec.md §4.6): fixed
// frames/landmarks seed the computation; at each rank tier, any UNSET frame
// whose inlier ratio among already-classified landmarks clears
// goodLandmarkRatio becomes VALID (and promotes its landmarks), otherwise
// INVALID. Landmarks still UNSET after the last rank become INVALID;
// frames the rank tiers never reach keep UNSET.
func (v *Validator) Validate(
	landmarks []*Landmark,
	frameSet map[int]*Frame,
	fixedLandmarks map[int]bool,
	fixedFrames map[int]bool,
	frameRank map[int]int,
	maxRank int,
	inlierRange, goodLandmarkRatio, goodFrameRatio, goodAvgInlierRatio float64,
	landmarkTransMap map[int]r3.Vector,
	framePoseMap map[int]spatial.Pose,
) *ValidatorOutput {
	out := &ValidatorOutput{
		LandmarkTrans:  landmarkTransMap,
		FramePose:      framePoseMap,
		LandmarkResult: make(map[int]Classification),
		FrameResult:    make(map[int]Classification),
		FPResult:       make(map[int]map[int]*FPAssessment),
	}

	frameFPLandmarks := make(map[int][][2]int) // frameID -> list of [fpID, landmarkID]
	for _, l := range landmarks {
		if fixedLandmarks[l.ID] {
			out.LandmarkResult[l.ID] = Fixed
		} else {
			out.LandmarkResult[l.ID] = Unset
		}
		for _, fp := range l.FeaturePoints {
			if _, ok := frameSet[fp.FrameID]; !ok {
				continue
			}
			if out.FPResult[fp.ID] == nil {
				out.FPResult[fp.ID] = make(map[int]*FPAssessment)
			}
			out.FPResult[fp.ID][l.ID] = &FPAssessment{Result: Unset}
			frameFPLandmarks[fp.FrameID] = append(frameFPLandmarks[fp.FrameID], [2]int{fp.ID, l.ID})
		}
	}
	for frameID := range frameFPLandmarks {
		if fixedFrames[frameID] {
			out.FrameResult[frameID] = Fixed
		} else {
			out.FrameResult[frameID] = Unset
		}
	}

	transOf := func(landmarkID int) r3.Vector {
		if t, ok := landmarkTransMap[landmarkID]; ok {
			return t
		}
		l, _ := v.gs.landmarks[landmarkID]
		if l == nil {
			return r3.Vector{}
		}
		return l.Trans
	}

	var totalFrameInlierRatios float64

	for frameID, pairs := range frameFPLandmarks {
		for _, pair := range pairs {
			fpID, landmarkID := pair[0], pair[1]
			fp, ok := v.gs.featurePts[fpID]
			if !ok {
				continue
			}
			isFrameFixed := fixedFrames[frameID]
			isLandmarkFixed := fixedLandmarks[landmarkID]
			assessment := v.validateFPInlier(fp, transOf(landmarkID), inlierRange, frameSet, isFrameFixed, isLandmarkFixed, framePoseMap)
			out.FPResult[fpID][landmarkID] = assessment

			if isFrameFixed && (out.LandmarkResult[landmarkID] == Unset || out.LandmarkResult[landmarkID] == Invalid) {
				if assessment.Result == Valid {
					out.LandmarkResult[landmarkID] = Valid
				}
			}
		}
	}

	for frameID, cls := range out.FrameResult {
		if cls != Fixed {
			continue
		}
		inlier, outlier := 0, 0
		for _, pair := range frameFPLandmarks[frameID] {
			fpID, landmarkID := pair[0], pair[1]
			if out.LandmarkResult[landmarkID] == Fixed {
				continue
			}
			switch out.FPResult[fpID][landmarkID].Result {
			case Valid:
				inlier++
			case Invalid:
				outlier++
			}
		}
		if inlier+outlier > 0 {
			totalFrameInlierRatios += float64(inlier) / float64(inlier+outlier)
		}
	}

	for rank := 0; rank < maxRank; rank++ {
		var newlyValid []int
		for frameID, r := range frameRank {
			if r != rank || out.FrameResult[frameID] != Unset {
				continue
			}
			inlier, outlier := 0, 0
			for _, pair := range frameFPLandmarks[frameID] {
				fpID, landmarkID := pair[0], pair[1]
				lc := out.LandmarkResult[landmarkID]
				if lc != Valid && lc != Fixed {
					continue
				}
				switch out.FPResult[fpID][landmarkID].Result {
				case Valid:
					inlier++
				case Invalid:
					outlier++
				}
			}
			ratio := 0.0
			if inlier+outlier > 0 {
				ratio = float64(inlier) / float64(inlier+outlier)
			}
			if ratio >= goodLandmarkRatio {
				totalFrameInlierRatios += ratio
				out.FrameResult[frameID] = Valid
				newlyValid = append(newlyValid, frameID)
			} else {
				out.FrameResult[frameID] = Invalid
			}
		}
		for _, frameID := range newlyValid {
			for _, pair := range frameFPLandmarks[frameID] {
				fpID, landmarkID := pair[0], pair[1]
				res := out.FPResult[fpID][landmarkID].Result
				if res == Valid || res == Fixed {
					out.LandmarkResult[landmarkID] = Valid
				}
			}
		}
	}

	for landmarkID, cls := range out.LandmarkResult {
		if cls == Unset {
			out.LandmarkResult[landmarkID] = Invalid
		}
	}

	validOrFixedFrames := 0
	fixedFrameCount := 0
	totalFrames := len(out.FrameResult)
	for _, cls := range out.FrameResult {
		if cls == Fixed {
			fixedFrameCount++
		}
		if cls == Valid || cls == Fixed {
			validOrFixedFrames++
		}
	}
	if validOrFixedFrames > 0 {
		out.AvgInlierRatio = totalFrameInlierRatios / float64(validOrFixedFrames)
	}
	if totalFrames == fixedFrameCount {
		out.ValidFrameRatio = 1
	} else {
		validFrames := 0
		for _, cls := range out.FrameResult {
			if cls == Valid {
				validFrames++
			}
		}
		out.ValidFrameRatio = float64(validFrames) / float64(totalFrames-fixedFrameCount)
	}

	out.Valid = out.ValidFrameRatio >= goodFrameRatio && out.AvgInlierRatio >= goodAvgInlierRatio
	v.logger.Debugf("validated %d landmarks over %d frames: validFrameRatio=%.2f avgInlierRatio=%.2f valid=%v",
		len(landmarks), len(frameSet), out.ValidFrameRatio, out.AvgInlierRatio, out.Valid)
	return out
}
