package slam

import (
	"math/rand"
	"sort"
	"time"

	"go.viam.com/monoslam/logging"
	"go.viam.com/monoslam/slamconfig"
)

// ProfileStage names one timed phase of PoseManager.AddFrame, mirroring the
// original's per-phase Timer instances (types.hpp's ProfileType, poseManager.hpp's
// frameExtTimer/matchTimer/ransacTimer/winnerTimer/validTimer/poseTimer).
// Supplements spec.md per SPEC_FULL.md §3; not part of the estimation logic
// itself.
type ProfileStage int

const (
	StageReferenceSelection ProfileStage = iota
	StageMatching
	StageRansac
	StageWinner
	StageRefine
	StageOverall
)

// Status classifies the outcome of one PoseManager.AddFrame call (spec.md
// §4.8, grounded on poseManager.hpp's add_frame and its BaHelperOutput
// status constants).
type Status int

const (
	StatusDefault Status = iota
	StatusValidMatch
	StatusNotInitialized
	StatusAlreadyInitialized
	StatusNotEnoughLandmarks
	StatusDidNotMatchAllFrames
	StatusNotEnoughMatchFrames
	StatusMatchInvalid
	StatusNotEnoughLandmarksForValid
)

func (s Status) String() string {
	switch s {
	case StatusDefault:
		return "DEFAULT"
	case StatusValidMatch:
		return "VALID_MATCH"
	case StatusNotInitialized:
		return "NOT_INITIALIZED"
	case StatusAlreadyInitialized:
		return "ALREADY_INITIALIZED"
	case StatusNotEnoughLandmarks:
		return "NOT_ENOUGH_LANDMARKS"
	case StatusDidNotMatchAllFrames:
		return "DID_NOT_MATCH_ALL_FRAMES"
	case StatusNotEnoughMatchFrames:
		return "NOT_ENOUGH_MATCH_FRAMES"
	case StatusMatchInvalid:
		return "MATCH_INVALID"
	case StatusNotEnoughLandmarksForValid:
		return "NOT_ENOUGH_LANDMARKS_FOR_VALID"
	default:
		return "UNKNOWN"
	}
}

// AddFrameOutput is everything add_frame computed about one frame: whether
// the pose was accepted, and the full trail of intermediate estimates kept
// for diagnostics the way BaHelperOutput history was kept per phase.
type AddFrameOutput struct {
	Frame             *Frame
	Valid             bool
	Status            Status
	MatchFrames       map[int]*Frame
	Results           [4][]*Estimate
	WinnerRansacIndex int
	Replacements      [][2]*Landmark
	Profile           map[ProfileStage]time.Duration
}

// frameSort is one candidate match frame scored for its angular and
// distance-ratio proximity to the frame under estimation
// (poseManager.hpp's FrameSort).
type frameSort struct {
	frame    *Frame
	degDiff  float64
	distRatio float64
	dist     float64
}

// PoseManager computes the pose of every new frame by orchestrating the
// matcher, the bundle-adjustment orchestrator and the frame manager
// (spec.md C8, grounded on managers/poseManager.hpp).
type PoseManager struct {
	cfg          slamconfig.Config
	gs           *GraphStore
	matcher      *Matcher
	fm           *FrameManager
	orchestrator *Orchestrator
	intrinsics   Intrinsics
	rng          *rand.Rand

	initialized bool
	scale       float64

	logger logging.Logger
}

// NewPoseManager builds a pose manager bound to the rest of the pipeline.
func NewPoseManager(cfg slamconfig.Config, gs *GraphStore, matcher *Matcher, fm *FrameManager, intrinsics Intrinsics, rng *rand.Rand, logger logging.Logger) *PoseManager {
	return &PoseManager{
		cfg:          cfg,
		gs:           gs,
		matcher:      matcher,
		fm:           fm,
		orchestrator: NewOrchestrator(gs, cfg, intrinsics, logger),
		intrinsics:   intrinsics,
		rng:          rng,
		scale:        1,
		logger:       logger.Sublogger("posemanager"),
	}
}

// IsInitialized reports whether the map has completed its bootstrap frame.
func (pm *PoseManager) IsInitialized() bool { return pm.initialized }

// computeDiff returns the angular difference and the distance ratio
// (distance over matchFrame's own landmark-distance threshold) between
// currFrame and matchFrame (poseManager.hpp's compute_diff).
func (pm *PoseManager) computeDiff(currFrame, matchFrame *Frame) (degDiff, distRatio, dist float64) {
	dist = currFrame.Pose.Trans.Sub(matchFrame.Pose.Trans).Norm()
	distRatio = dist / matchFrame.LandmarkDistThreshold
	degDiff = rotationDiffDegrees(currFrame.Pose, matchFrame.Pose)
	return degDiff, distRatio, dist
}

// generateKeyframeRanks scores and sorts frameSet's valid frames by
// proximity to currFrame, within mult*maxAngle / mult*maxDistRatio gates.
// When two candidates' angular differences from currFrame are within 15° of
// each other, the farther one ranks first (better triangulation baseline);
// otherwise the 0.1 distRatio split and then proximity (closer first)
// decide -- poseManager.hpp's generate_keyframe_ranks.
func (pm *PoseManager) generateKeyframeRanks(currFrame *Frame, frameSet map[int]*Frame, mult float64) []*frameSort {
	var ranks []*frameSort
	for _, matchFrame := range frameSet {
		if !matchFrame.Valid {
			continue
		}
		degDiff, distRatio, dist := pm.computeDiff(currFrame, matchFrame)
		if degDiff < pm.cfg.MaxAngle*mult && degDiff > -pm.cfg.MaxAngle*mult {
			if distRatio < pm.cfg.MaxDistRatio*mult {
				ranks = append(ranks, &frameSort{frame: matchFrame, degDiff: degDiff, distRatio: distRatio, dist: dist})
			}
		}
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		a, b := ranks[i], ranks[j]
		if absFloat(a.degDiff-b.degDiff) < 15 {
			return a.dist > b.dist
		}
		if a.distRatio > 0.1 && b.distRatio <= 0.1 {
			return false
		}
		if a.distRatio <= 0.1 && b.distRatio > 0.1 {
			return true
		}
		return a.dist < b.dist
	})
	return ranks
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// getMatchFrames picks the frames currFrame should be matched against: the
// origin frame alone before initialization, otherwise a priority-ordered
// mix of keyframes and recent frames, widening the angle/distance gates in
// stages until numKeyFrameMatches is satisfied or every stage is exhausted
// (poseManager.hpp's get_match_frames).
func (pm *PoseManager) getMatchFrames(currFrame *Frame) map[int]*Frame {
	matchFrames := make(map[int]*Frame)
	if !pm.initialized {
		if origin := pm.fm.OriginFrame(); origin != nil {
			matchFrames[origin.ID] = origin
		}
		return matchFrames
	}

	keyframes := pm.fm.Keyframes()
	prevFrameSet := make(map[int]*Frame)
	for _, f := range pm.fm.FrameList() {
		if f.ID == currFrame.ID {
			continue
		}
		if _, isKeyframe := keyframes[f.ID]; isKeyframe {
			continue
		}
		prevFrameSet[f.ID] = f
	}

	keyFrameRanks := pm.generateKeyframeRanks(currFrame, keyframes, 1.0)
	if len(keyFrameRanks) > 0 {
		matchFrames[keyFrameRanks[0].frame.ID] = keyFrameRanks[0].frame
		keyFrameRanks = keyFrameRanks[1:]
	}
	for len(matchFrames) < pm.cfg.NumKeyFrameMatches && len(keyFrameRanks) > 0 {
		idx := len(keyFrameRanks) / 2
		matchFrames[keyFrameRanks[idx].frame.ID] = keyFrameRanks[idx].frame
		keyFrameRanks = append(keyFrameRanks[:idx], keyFrameRanks[idx+1:]...)
	}

	if len(matchFrames) < pm.cfg.NumKeyFrameMatches {
		prevFrameRanks := pm.generateKeyframeRanks(currFrame, prevFrameSet, 1.0)
		for i := 0; len(matchFrames) < pm.cfg.NumKeyFrameMatches && i < len(prevFrameRanks); i++ {
			matchFrames[prevFrameRanks[i].frame.ID] = prevFrameRanks[i].frame
		}

		if len(matchFrames) < pm.cfg.NumKeyFrameMatches {
			keyFrameRanks = pm.generateKeyframeRanks(currFrame, keyframes, 2.0)
			for i := 0; len(matchFrames) < pm.cfg.NumKeyFrameMatches && i < len(keyFrameRanks); i++ {
				matchFrames[keyFrameRanks[i].frame.ID] = keyFrameRanks[i].frame
			}
			if len(matchFrames) < pm.cfg.NumKeyFrameMatches {
				prevFrameRanks = pm.generateKeyframeRanks(currFrame, prevFrameSet, 2.0)
				for i := 0; len(matchFrames) < pm.cfg.NumKeyFrameMatches && i < len(prevFrameRanks); i++ {
					matchFrames[prevFrameRanks[i].frame.ID] = prevFrameRanks[i].frame
				}
			}
		}
	}

	return matchFrames
}

// findFocus sweeps candidate focal lengths against the current keyframe
// set's valid landmarks, picking the one that minimizes error*focus -- a
// scale-invariant proxy since a wrong-but-self-consistent focal length can
// trivially drive raw reprojection error toward zero (spec.md §4.8.1,
// poseManager.hpp's find_focus).
func (pm *PoseManager) findFocus(currFrame *Frame, focusStart, focusEnd, divisions int) int {
	goodLandmarks := make(map[int]*Landmark)
	for _, frame := range pm.fm.Keyframes() {
		for _, fp := range frame.FeaturePoints {
			if !fp.HasLandmark() {
				continue
			}
			landmark, ok := pm.gs.Landmark(fp.Landmark)
			if ok && landmark.Valid {
				goodLandmarks[landmark.ID] = landmark
			}
		}
	}
	landmarkList := landmarkValues(goodLandmarks)

	minError := 1e18
	selectedFocus := 0
	fixedFrames := map[int]bool{}
	if origin := pm.fm.OriginFrame(); origin != nil {
		fixedFrames[origin.ID] = true
	}

	step := (focusEnd - focusStart) / divisions
	if step <= 0 {
		step = 1
	}
	for focus := focusStart; focus <= focusEnd; focus += step {
		orch := NewOrchestrator(pm.gs, pm.cfg, Intrinsics{F: float64(focus), CX: pm.intrinsics.CX, CY: pm.intrinsics.CY}, pm.logger)
		result, err := orch.Estimate(landmarkList, pm.fm.Keyframes(), map[int]bool{}, fixedFrames,
			30, 1, 0.5, 1.0, 0.7, true, nil, nil)
		if err != nil || !result.Validator.Valid {
			continue
		}
		errVal := orch.GetError(result)
		if minError > errVal*float64(focus) {
			minError = errVal * float64(focus)
			selectedFocus = focus
		}
	}
	if selectedFocus == 0 {
		return -1
	}
	return selectedFocus
}

func landmarkValues(m map[int]*Landmark) []*Landmark {
	out := make([]*Landmark, 0, len(m))
	for _, l := range m {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// addToLandmarks folds a batch of freshly-matched floating landmarks into
// the persistent landmark set: each floating landmark's feature points
// either start a new persistent landmark, join one already attached to one
// of their peers, or trigger a merge when two peers disagree about which
// persistent landmark they belong to (poseManager.hpp's add_to_landmarks).
func (pm *PoseManager) addToLandmarks(goodLandmarks []*Landmark) [][2]*Landmark {
	var replacements [][2]*Landmark
	for _, goodLandmark := range goodLandmarks {
		var landmark *Landmark
		for _, fp := range sortedFeaturePoints(goodLandmark.FeaturePoints) {
			switch {
			case landmark == nil:
				if !fp.HasLandmark() {
					l, err := pm.gs.CreateLandmark(fp, 0)
					if err == nil {
						landmark = l
					}
				} else {
					landmark, _ = pm.gs.Landmark(fp.Landmark)
				}
			case !fp.HasLandmark():
				pm.gs.Link(landmark, fp, 0)
			default:
				existing, ok := pm.gs.Landmark(fp.Landmark)
				if ok && existing.ID != landmark.ID {
					pm.gs.Merge(landmark, existing)
					replacements = append(replacements, [2]*Landmark{existing, landmark})
				}
			}
		}
		if landmark != nil {
			pm.gs.Dedupe(landmark)
			if landmark.ID != goodLandmark.ID {
				replacements = append(replacements, [2]*Landmark{goodLandmark, landmark})
			}
			if !landmark.Valid {
				landmark.Trans = goodLandmark.Trans
			}
		}
	}
	return replacements
}

func sortedFeaturePoints(m map[int]*FeaturePoint) []*FeaturePoint {
	out := make([]*FeaturePoint, 0, len(m))
	for _, fp := range m {
		out = append(out, fp)
	}
	sortFeaturePoints(out)
	return out
}

// rightScale rescales every tracked frame and landmark translation so the
// summed X-axis displacement between consecutive keyframes with ids in
// [startFrameID, stopFrameID] equals scale, standardizing the otherwise arbitrary monocular output scale
// (poseManager.hpp's right_scale).
func (pm *PoseManager) rightScale(startFrameID, stopFrameID int, scale float64) {
	totalDistance := 0.0
	var lastFrame *Frame
	for _, frame := range sortedFrames(pm.fm.Keyframes()) {
		if frame.ID >= startFrameID && frame.ID <= stopFrameID {
			if lastFrame != nil {
				totalDistance += absFloat(frame.Pose.Trans.X - lastFrame.Pose.Trans.X)
			}
			lastFrame = frame
		}
	}
	if totalDistance == 0 {
		return
	}
	scaleFactor := scale / totalDistance

	keyframes := pm.fm.Keyframes()
	for _, frame := range keyframes {
		frame.Pose.Trans = frame.Pose.Trans.Mul(scaleFactor)
	}
	for _, frame := range pm.fm.FrameList() {
		if _, ok := keyframes[frame.ID]; ok {
			continue
		}
		frame.Pose.Trans = frame.Pose.Trans.Mul(scaleFactor)
	}
	for _, landmark := range pm.gs.Landmarks() {
		landmark.Trans = landmark.Trans.Mul(scaleFactor)
	}
}

func sortedFrames(m map[int]*Frame) []*Frame {
	out := make([]*Frame, 0, len(m))
	for _, f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddFrame is the key pose-computation method (spec.md §4.8): identify
// candidate match frames, build a matched-landmark pool, run a RANSAC pool
// of small bundle-adjustment estimates, pick the best, refine it over the
// full match pool, and -- if that refinement validates -- commit the
// result, bootstrap the map on the very first call, and run the
// first-time-only scale/focus calibration (poseManager.hpp's add_frame).
func (pm *PoseManager) AddFrame(currFrame *Frame) *AddFrameOutput {
	out := &AddFrameOutput{Frame: currFrame, MatchFrames: make(map[int]*Frame), Profile: make(map[ProfileStage]time.Duration)}
	overallStart := time.Now()
	defer func() { out.Profile[StageOverall] = time.Since(overallStart) }()

	if len(pm.fm.FrameList()) == 1 {
		pm.fm.AddKeyframe(currFrame)
		currFrame.Level = 0
		currFrame.Valid = true
		out.Valid = true
		// No landmarks exist yet at bootstrap, so there is nothing for the
		// origin shift to re-anchor beyond the frame list itself.
		pm.fm.SetOriginFrame(currFrame)
		pm.logger.Infof("frame %d committed as origin frame", currFrame.ID)
		return out
	}

	refSelectionStart := time.Now()
	matchFrames := pm.getMatchFrames(currFrame)
	out.Profile[StageReferenceSelection] = time.Since(refSelectionStart)
	if len(matchFrames) == 0 {
		out.Status = StatusNotEnoughMatchFrames
		pm.logger.Infof("frame %d rejected: %v", currFrame.ID, out.Status)
		return out
	}
	for id, f := range matchFrames {
		out.MatchFrames[id] = f
	}

	ransacMatchSize := maxInt(6, len(matchFrames))
	ransacIters := 12
	if !pm.initialized {
		ransacIters = 18
	}
	totalMatches := ransacMatchSize * ransacIters
	maxMatchesPerFrame := totalMatches / len(matchFrames)
	maxMatchesPerFramePerIter := maxMatchesPerFrame / ransacIters

	descriptorFrames := make(map[int]*Frame)
	descriptorFrames[currFrame.ID] = currFrame
	for id, f := range matchFrames {
		descriptorFrames[id] = f
	}
	for id, f := range pm.fm.Keyframes() {
		descriptorFrames[id] = f
	}

	minAvgGap := pm.cfg.MinAvgGap
	if !pm.initialized {
		minAvgGap = pm.cfg.MinAvgGapInit
	}

	matchStart := time.Now()
	frameMatches := make(map[int][]*Landmark)
	var badFrames []int
	for id, frame := range matchFrames {
		matchSet := pm.matcher.MatchFPs(currFrame, sortedFeaturePoints(frame.FeaturePoints), descriptorFrames, maxMatchesPerFrame, minAvgGap, pm.rng)
		if len(matchSet) > 3 {
			frameMatches[id] = append(frameMatches[id], matchSet...)
			for i := 0; i < maxMatchesPerFrame-len(matchSet); i++ {
				frameMatches[id] = append(frameMatches[id], matchSet[pm.rng.Intn(len(matchSet))])
			}
		} else {
			badFrames = append(badFrames, id)
		}
	}
	for _, id := range badFrames {
		delete(matchFrames, id)
	}
	out.Profile[StageMatching] = time.Since(matchStart)
	if pm.initialized && len(matchFrames) < 2 {
		out.Status = StatusNotEnoughMatchFrames
		pm.logger.Infof("frame %d rejected: %v", currFrame.ID, out.Status)
		return out
	}

	frameSet := make(map[int]*Frame)
	frameSet[currFrame.ID] = currFrame
	for id, f := range matchFrames {
		frameSet[id] = f
		pm.fm.AddKeyframe(f)
	}

	// evalSet is a pool of correspondences shared by every RANSAC round: up
	// to 3 random matches per frame, drawn from a copy of each frame's match
	// list, so the same landmarks also stay available to the rounds' own
	// subsets.
	evalSet := make(map[int]*Landmark)
	for _, matches := range frameMatches {
		pool := make([]*Landmark, len(matches))
		copy(pool, matches)
		maxLen := minInt(3, len(pool))
		for i := 0; i < maxLen; i++ {
			var l *Landmark
			l, pool = popRandomLandmark(pool, pm.rng)
			evalSet[l.ID] = l
		}
	}
	evalLandmarks := landmarkValues(evalSet)

	ransacStart := time.Now()
	var ransacRounds []*Estimate
	for i := 0; i < ransacIters/2; i++ {
		ransacSet := make(map[int]*Landmark)
		for id := range matchFrames {
			for j := 0; j < maxMatchesPerFramePerIter; j++ {
				idx := i*maxMatchesPerFramePerIter + j
				if idx < len(frameMatches[id]) {
					l := frameMatches[id][idx]
					ransacSet[l.ID] = l
				}
			}
		}
		result, err := pm.orchestrator.Estimate(landmarkValues(ransacSet), frameSet, map[int]bool{}, matchFrames,
			9, 3*pm.cfg.ImgWidthRatio, 0.5, 1.0, 0.7, false, nil, nil)
		if err != nil {
			ransacRounds = append(ransacRounds, nil)
			continue
		}
		out.Results[0] = append(out.Results[0], result)
		ransacRounds = append(ransacRounds, result)
	}
	out.Profile[StageRansac] = time.Since(ransacStart)

	winnerStart := time.Now()
	var best *Estimate
	winnerIdx := -1
	for i := 0; i < ransacIters/2; i++ {
		result := ransacRounds[i]
		if result == nil {
			continue
		}
		ransacLandmarkFixed := make(map[int]bool, len(result.Landmarks))
		for _, l := range result.Landmarks {
			ransacLandmarkFixed[l.ID] = true
		}

		refined, err := pm.orchestrator.Estimate(evalLandmarks, frameSet, ransacLandmarkFixed, frameSet,
			3, 3*pm.cfg.ImgWidthRatio, 0.5, 0.0, 0.7, true, result.Validator.LandmarkTrans, result.Validator.FramePose)
		if err != nil {
			continue
		}
		out.Results[1] = append(out.Results[1], refined)
		candidate := GetBest(best, refined)
		if candidate == refined {
			best = refined
			winnerIdx = i
		}
	}
	out.WinnerRansacIndex = winnerIdx
	out.Profile[StageWinner] = time.Since(winnerStart)

	if best == nil {
		out.Status = StatusMatchInvalid
		pm.logger.Infof("frame %d rejected: %v", currFrame.ID, out.Status)
		return out
	}

	refineStart := time.Now()
	allSet := make(map[int]*Landmark)
	for _, matches := range frameMatches {
		for _, l := range matches {
			allSet[l.ID] = l
		}
	}
	refined, err := pm.orchestrator.Estimate(landmarkValues(allSet), frameSet, map[int]bool{}, frameSet,
		9, 10*pm.cfg.ImgWidthRatio, 0.6, 0.0, 0.5, true, best.Validator.LandmarkTrans, best.Validator.FramePose)
	if err == nil {
		out.Results[2] = append(out.Results[2], refined)
		best = refined
	}
	out.Profile[StageRefine] = time.Since(refineStart)

	if best == nil || !best.Validator.Valid {
		out.Status = StatusMatchInvalid
		pm.logger.Infof("frame %d rejected: %v", currFrame.ID, out.Status)
		return out
	}

	commitStart := time.Now()
	var replacements [][2]*Landmark
	replacements = append(replacements, pm.addToLandmarks(classifiedLandmarks(best, Valid))...)
	replacements = append(replacements, pm.addToLandmarks(classifiedLandmarks(best, Fixed))...)
	out.Replacements = replacements
	for _, outputVec := range out.Results {
		for _, est := range outputVec {
			for _, pair := range replacements {
				ReplaceLandmark(est, pair[0], pair[1])
			}
		}
	}

	landmarkSet := make(map[int]*Landmark)
	for _, fp := range currFrame.FeaturePoints {
		if !fp.HasLandmark() {
			continue
		}
		landmark, ok := pm.gs.Landmark(fp.Landmark)
		if !ok {
			continue
		}
		fpCount := 0
		for _, lFp := range landmark.FeaturePoints {
			if _, ok := frameSet[lFp.FrameID]; ok {
				fpCount++
				if fpCount >= 2 {
					landmarkSet[landmark.ID] = landmark
					break
				}
			}
		}
	}

	newFrameSet := make(map[int]*Frame)
	for id, f := range frameSet {
		newFrameSet[id] = f
	}
	for id, f := range pm.fm.Keyframes() {
		newFrameSet[id] = f
	}

	final, err := pm.orchestrator.Estimate(landmarkValues(landmarkSet), newFrameSet, map[int]bool{}, pm.fm.Keyframes(),
		18, 10*pm.cfg.ImgWidthRatio, 0.6, 1.0, 0.7, true, best.Validator.LandmarkTrans, best.Validator.FramePose)
	if err != nil {
		out.Profile[StageRefine] += time.Since(commitStart)
		out.Status = StatusMatchInvalid
		pm.logger.Infof("frame %d rejected: %v", currFrame.ID, out.Status)
		return out
	}
	out.Results[3] = append(out.Results[3], final)

	if !final.Validator.Valid {
		out.Profile[StageRefine] += time.Since(commitStart)
		out.Status = StatusMatchInvalid
		pm.logger.Infof("frame %d rejected: %v", currFrame.ID, out.Status)
		return out
	}

	pm.orchestrator.CopyEstimates(final, true, 1)
	pm.fm.PopulateFrameLandmarkDistThreshold(newFrameSet)
	currFrame.Valid = true
	out.Valid = true
	out.Status = StatusValidMatch
	pm.logger.Infof("frame %d committed: validFrameRatio=%.2f avgInlierRatio=%.2f",
		currFrame.ID, final.Validator.ValidFrameRatio, final.Validator.AvgInlierRatio)

	if !pm.initialized {
		pm.fm.AddKeyframe(currFrame)
		currFrame.Level = 0
		pm.initialized = true
		pm.rightScale(0, 100, pm.cfg.Scale)
		pm.fm.PopulateFrameLandmarkDistThreshold(newFrameSet)
		if pm.cfg.FindFocus {
			selectedFocus := pm.findFocus(currFrame, 200, 500, 5)
			if selectedFocus > 0 {
				pm.intrinsics.F = float64(selectedFocus)
				pm.cfg.FX, pm.cfg.FY = selectedFocus, selectedFocus
				pm.orchestrator = NewOrchestrator(pm.gs, pm.cfg, pm.intrinsics, pm.logger)
				pm.logger.Infof("selected focal length %d during bootstrap calibration", selectedFocus)
			}
		}
	}
	pm.fm.SetCurrTransSmoothed(currFrame)
	out.Profile[StageRefine] += time.Since(commitStart)

	return out
}

func classifiedLandmarks(est *Estimate, want Classification) []*Landmark {
	var out []*Landmark
	for _, l := range est.Landmarks {
		if est.Validator.LandmarkResult[l.ID] == want {
			out = append(out, l)
		}
	}
	return out
}
