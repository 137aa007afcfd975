package slam

import (
	"github.com/golang/geo/r3"

	"go.viam.com/monoslam/logging"
	"go.viam.com/monoslam/slam/ba"
	"go.viam.com/monoslam/slamconfig"
	"go.viam.com/monoslam/spatial"
)

// Estimate is the outcome of one orchestrator pass: the bundle-adjustment
// problem's scope (which landmarks/frames/fixed sets were used), the rank
// tiers used to phase validation, and the validator's verdict (spec.md
// §4.7, grounded on managers/baHelper.hpp's BaHelperOutput).
type Estimate struct {
	Landmarks      []*Landmark
	FrameSet       map[int]*Frame
	FixedLandmarks map[int]bool
	FixedFrames    map[int]bool
	FrameRank      map[int]int
	MaxRank        int
	Validator      *ValidatorOutput
}

// Orchestrator drives one bundle-adjustment/validate/commit cycle over the
// graph store: populate a ba.Problem from a landmark/frame scope, optimize
// it, validate the result, and -- once a caller is satisfied -- commit
// accepted estimates back into the store (spec.md C7).
type Orchestrator struct {
	gs         *GraphStore
	cfg        slamconfig.Config
	intrinsics Intrinsics
	validator  *Validator
	logger     logging.Logger
}

// NewOrchestrator builds an orchestrator bound to a graph store and config.
func NewOrchestrator(gs *GraphStore, cfg slamconfig.Config, intrinsics Intrinsics, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		gs:         gs,
		cfg:        cfg,
		intrinsics: intrinsics,
		validator:  NewValidator(gs, intrinsics, cfg.NormalizeKP, logger),
		logger:     logger.Sublogger("orchestrator"),
	}
}

// generateFrameRank assigns each frame in frameSet a rank: fixed frames are
// rank 0 along with any landmark they cover; every subsequent tier promotes
// frames that share at least `threshold` already-covered landmarks, until
// no new frame can be promoted (spec.md §4.7, baHelper.hpp's
// generate_frame_rank). This is what lets the validator process frames in
// dependency order instead of all at once.
func (o *Orchestrator) generateFrameRank(landmarks []*Landmark, frameSet map[int]*Frame, fixedLandmarks, fixedFrames map[int]bool, threshold int) (map[int]int, int) {
	frameLandmarks := make(map[int]map[int]bool)
	for _, l := range landmarks {
		for _, fp := range l.FeaturePoints {
			if _, ok := frameSet[fp.FrameID]; !ok {
				continue
			}
			if frameLandmarks[fp.FrameID] == nil {
				frameLandmarks[fp.FrameID] = make(map[int]bool)
			}
			frameLandmarks[fp.FrameID][l.ID] = true
		}
	}

	rank := make(map[int]int)
	covered := make(map[int]bool)
	for frameID := range fixedFrames {
		if _, ok := frameSet[frameID]; !ok {
			continue
		}
		rank[frameID] = 0
		for lID := range frameLandmarks[frameID] {
			covered[lID] = true
		}
	}
	for _, l := range landmarks {
		if fixedLandmarks[l.ID] {
			covered[l.ID] = true
		}
	}

	currentRank := 0
	for {
		currentRank++
		var newFrames []int
		for frameID := range frameSet {
			if _, done := rank[frameID]; done {
				continue
			}
			count := 0
			for lID := range frameLandmarks[frameID] {
				if covered[lID] {
					count++
					if count >= threshold {
						break
					}
				}
			}
			if count >= threshold {
				rank[frameID] = currentRank
				newFrames = append(newFrames, frameID)
			}
		}
		if len(newFrames) == 0 {
			break
		}
		for _, frameID := range newFrames {
			for lID := range frameLandmarks[frameID] {
				covered[lID] = true
			}
		}
	}
	return rank, currentRank
}

// buildProblem populates a ba.Problem the way configure_ba_graph did:
// unfixed landmarks/frames in scope are added as free vertices, fixed ones
// as fixed vertices (added only if they connect to at least one free
// entity), and every surviving feature-point/landmark pair becomes an edge
// weighted by (maxRank-frameRank[frame])*100 + 1 -- later-rank frames get
// progressively less trusted influence on the solve.
func (o *Orchestrator) buildProblem(landmarks []*Landmark, frameSet map[int]*Frame, fixedLandmarks, fixedFrames map[int]bool, frameRank map[int]int, maxRank int, landmarkTransMap map[int]r3.Vector, framePoseMap map[int]spatial.Pose) *ba.Problem {
	problem := ba.NewProblem()
	poseVertices := make(map[int]*ba.PoseVertex)
	pointVertices := make(map[int]*ba.PointVertex)

	for _, l := range landmarks {
		fixed := fixedLandmarks[l.ID]
		var connectedFrames []int
		for _, fp := range l.FeaturePoints {
			if _, ok := frameSet[fp.FrameID]; ok {
				connectedFrames = append(connectedFrames, fp.FrameID)
			}
		}
		if fixed {
			hasFree := false
			for _, fID := range connectedFrames {
				if !fixedFrames[fID] {
					hasFree = true
					break
				}
			}
			if !hasFree {
				continue
			}
		}
		if _, ok := pointVertices[l.ID]; !ok {
			pos := l.Trans
			if p, ok := landmarkTransMap[l.ID]; ok {
				pos = p
			}
			pv := &ba.PointVertex{ID: l.ID, Trans: pos, Fixed: fixed}
			problem.AddPoint(pv)
			pointVertices[l.ID] = pv
		}
		for _, fID := range connectedFrames {
			if fixed && fixedFrames[fID] {
				continue
			}
			if _, ok := poseVertices[fID]; !ok {
				frame := frameSet[fID]
				pose := frame.Pose
				if p, ok := framePoseMap[fID]; ok {
					pose = p
				}
				pv := &ba.PoseVertex{ID: fID, Pose: pose, Fixed: fixedFrames[fID], DOF: ba.ThreeDOF}
				problem.AddPose(pv)
				poseVertices[fID] = pv
			}
		}
	}

	for _, l := range landmarks {
		pointVertex, ok := pointVertices[l.ID]
		if !ok {
			continue
		}
		for _, fp := range l.FeaturePoints {
			poseVertex, ok := poseVertices[fp.FrameID]
			if !ok {
				continue
			}
			weight := float64((maxRank-frameRank[fp.FrameID])*100 + 1)
			problem.AddEdge(&ba.Edge{
				Pose:        poseVertex,
				Point:       pointVertex,
				ObsX:        fp.Px,
				ObsY:        fp.Py,
				Weight:      weight,
				FocalLength: o.intrinsics.F,
				PrincipalX:  o.intrinsics.CX,
				PrincipalY:  o.intrinsics.CY,
			})
		}
	}
	return problem
}

// Estimate runs one full bundle-adjustment/validate cycle (spec.md §4.7):
// build the graph, optimize, extract estimates (falling back to the
// caller-supplied priors for any vertex the solver never touched), and
// validate against the given thresholds.
func (o *Orchestrator) Estimate(
	landmarks []*Landmark,
	frameSetArg map[int]*Frame,
	fixedLandmarks, fixedFrames map[int]bool,
	iterations int,
	inlierRange, goodLandmarkRatio, goodFrameRatio, goodAvgInlierRatio float64,
	validate bool,
	landmarkTransMap map[int]r3.Vector,
	framePoseMap map[int]spatial.Pose,
) (*Estimate, error) {
	if fixedLandmarks == nil {
		fixedLandmarks = map[int]bool{}
	}
	if fixedFrames == nil {
		fixedFrames = map[int]bool{}
	}

	frameSet := make(map[int]*Frame)
	for _, l := range landmarks {
		for _, fp := range l.FeaturePoints {
			if f, ok := frameSetArg[fp.FrameID]; ok {
				frameSet[f.ID] = f
			}
		}
	}

	threshold := 10
	if len(landmarks) < threshold {
		threshold = len(landmarks)
	}
	frameRank, maxRank := o.generateFrameRank(landmarks, frameSet, fixedLandmarks, fixedFrames, threshold)

	problem := o.buildProblem(landmarks, frameSet, fixedLandmarks, fixedFrames, frameRank, maxRank, landmarkTransMap, framePoseMap)
	if _, err := problem.Optimize(iterations, false); err != nil {
		return nil, err
	}

	newLandmarkTrans := make(map[int]r3.Vector, len(landmarkTransMap))
	for k, v := range landmarkTransMap {
		newLandmarkTrans[k] = v
	}
	for _, v := range problem.Points {
		newLandmarkTrans[v.ID] = v.Trans
	}
	newFramePose := make(map[int]spatial.Pose, len(framePoseMap))
	for k, v := range framePoseMap {
		newFramePose[k] = v
	}
	for _, v := range problem.Poses {
		newFramePose[v.ID] = v.Pose
	}

	vo := o.validator.Validate(landmarks, frameSet, fixedLandmarks, fixedFrames, frameRank, maxRank,
		inlierRange, goodLandmarkRatio, goodFrameRatio, goodAvgInlierRatio, newLandmarkTrans, newFramePose)
	if !validate {
		vo.Valid = true
	}
	o.logger.Debugf("estimate over %d landmarks/%d frames: valid=%v validFrameRatio=%.2f avgInlierRatio=%.2f",
		len(landmarks), len(frameSet), vo.Valid, vo.ValidFrameRatio, vo.AvgInlierRatio)

	return &Estimate{
		Landmarks:      landmarks,
		FrameSet:       frameSet,
		FixedLandmarks: fixedLandmarks,
		FixedFrames:    fixedFrames,
		FrameRank:      frameRank,
		MaxRank:        maxRank,
		Validator:      vo,
	}, nil
}

// GetBest returns whichever of a, b has the stronger validator verdict:
// higher ValidFrameRatio wins, ties broken by AvgInlierRatio, ties broken
// by count of VALID landmarks, and a tie after all of that keeps a
// (baHelper.hpp's get_best).
func GetBest(a, b *Estimate) *Estimate {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Validator.ValidFrameRatio != b.Validator.ValidFrameRatio {
		if a.Validator.ValidFrameRatio < b.Validator.ValidFrameRatio {
			return b
		}
		return a
	}
	if a.Validator.AvgInlierRatio != b.Validator.AvgInlierRatio {
		if a.Validator.AvgInlierRatio < b.Validator.AvgInlierRatio {
			return b
		}
		return a
	}
	aValid, bValid := countClassification(a.Validator.LandmarkResult, Valid), countClassification(b.Validator.LandmarkResult, Valid)
	if aValid != bValid {
		if aValid < bValid {
			return b
		}
		return a
	}
	return a
}

func countClassification(m map[int]Classification, want Classification) int {
	n := 0
	for _, c := range m {
		if c == want {
			n++
		}
	}
	return n
}

// CopyEstimates commits an accepted estimate back into the graph store:
// VALID landmarks get their optimized position (scaled) and are marked
// Valid; if deleteBadFPs is set, a VALID landmark's feature points in the
// estimate's frame set whose own assessment is neither VALID nor FIXED are
// detached (points outside the frame set or without an assessment are
// kept); VALID frames get
// their optimized translation (and rotation, if CopyRotation is enabled).
func (o *Orchestrator) CopyEstimates(est *Estimate, deleteBadFPs bool, scale float64) {
	vo := est.Validator
	for landmarkID, trans := range vo.LandmarkTrans {
		l, ok := o.gs.landmarks[landmarkID]
		if !ok {
			continue
		}
		if !containsLandmark(est.Landmarks, landmarkID) {
			continue
		}
		result := vo.LandmarkResult[landmarkID]
		if deleteBadFPs && result == Valid {
			var toDelete []*FeaturePoint
			for _, fp := range l.FeaturePoints {
				if _, inScope := est.FrameSet[fp.FrameID]; !inScope {
					continue
				}
				assessments, ok := vo.FPResult[fp.ID]
				if !ok {
					continue
				}
				assessment, ok := assessments[landmarkID]
				if !ok {
					continue
				}
				if assessment.Result == Fixed {
					continue
				}
				if assessment.Result != Valid {
					toDelete = append(toDelete, fp)
				}
			}
			for _, fp := range toDelete {
				o.gs.Unlink(l, fp)
			}
		}
		if result == Valid {
			l.Trans = trans.Mul(scale)
			l.Valid = true
		}
	}
	for frameID, pose := range vo.FramePose {
		frame, ok := o.gs.frames[frameID]
		if !ok {
			continue
		}
		if _, inScope := est.FrameSet[frameID]; !inScope {
			continue
		}
		if vo.FrameResult[frameID] != Valid {
			continue
		}
		frame.Pose.Trans = pose.Trans.Mul(scale)
		if o.cfg.CopyRotation {
			frame.Pose.Rot = pose.Rot
		}
	}
}

func containsLandmark(ls []*Landmark, id int) bool {
	for _, l := range ls {
		if l.ID == id {
			return true
		}
	}
	return false
}

// ReplaceLandmark rewrites est's validator output so every reference to
// orig instead points at replacement, used after the graph store merges
// two landmarks mid-pipeline (baHelper.hpp's static replace_landmark).
func ReplaceLandmark(est *Estimate, orig, replacement *Landmark) {
	if orig.ID == replacement.ID {
		return
	}
	vo := est.Validator
	if cls, ok := vo.LandmarkResult[orig.ID]; ok {
		delete(vo.LandmarkResult, orig.ID)
		if _, exists := vo.LandmarkResult[replacement.ID]; !exists {
			vo.LandmarkResult[replacement.ID] = cls
		}
	}
	for fpID, byLandmark := range vo.FPResult {
		if assessment, ok := byLandmark[orig.ID]; ok {
			byLandmark[replacement.ID] = assessment
			delete(byLandmark, orig.ID)
			_ = fpID
		}
	}
	if trans, ok := vo.LandmarkTrans[orig.ID]; ok {
		vo.LandmarkTrans[replacement.ID] = trans
		delete(vo.LandmarkTrans, orig.ID)
	}
	for _, fp := range replacement.FeaturePoints {
		if byLandmark, ok := vo.FPResult[fp.ID]; ok {
			if _, exists := byLandmark[replacement.ID]; !exists {
				byLandmark[replacement.ID] = &FPAssessment{Result: Unset}
			}
		}
	}
}

// GetError returns the total unweighted squared pixel reprojection error of est's
// landmark/frame scope under its own estimated positions, used by the
// focal-length search (spec.md §4.8.1) to rank candidate focal lengths.
func (o *Orchestrator) GetError(est *Estimate) float64 {
	vo := est.Validator
	total := 0.0
	for _, l := range est.Landmarks {
		pos, ok := vo.LandmarkTrans[l.ID]
		if !ok {
			continue
		}
		for _, fp := range l.FeaturePoints {
			frame, ok := est.FrameSet[fp.FrameID]
			if !ok {
				continue
			}
			pose, ok := vo.FramePose[frame.ID]
			if !ok {
				pose = frame.Pose
			}
			px, py, err := o.intrinsics.Project(pose, pos)
			if err != nil {
				continue
			}
			dx, dy := fp.Px-px, fp.Py-py
			total += dx*dx + dy*dy
		}
	}
	return total
}
