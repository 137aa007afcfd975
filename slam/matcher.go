package slam

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/monoslam/logging"
	"go.viam.com/monoslam/slamconfig"
	"go.viam.com/monoslam/spatial"
)

// Matcher finds correspondences between a reference frame's feature points
// and a current frame's, gated by reprojected pixel gap and descriptor
// distance (spec.md §4.4, grounded on managers/matcher.hpp).
type Matcher struct {
	cfg        slamconfig.Config
	intrinsics Intrinsics
	gs         *GraphStore
	logger     logging.Logger
}

// NewMatcher builds a Matcher bound to a graph store's feature-point and
// landmark tables.
func NewMatcher(cfg slamconfig.Config, intrinsics Intrinsics, gs *GraphStore, logger logging.Logger) *Matcher {
	return &Matcher{cfg: cfg, intrinsics: intrinsics, gs: gs, logger: logger.Sublogger("matcher")}
}

// setDistances folds a new candidate distance into the running best-two,
// mirroring matcher.hpp's set_distances: distance1 is always the smallest
// seen, distance2 the second smallest.
func setDistances(distance float64, distance1, distance2 *float64) {
	switch {
	case *distance1 == -1:
		*distance1 = distance
	case distance < *distance1:
		*distance2 = *distance1
		*distance1 = distance
	case *distance2 == -1 || distance < *distance2:
		*distance2 = distance
	}
}

// validDistance applies the absolute and ratio gates: the best distance must
// clear DistanceThreshold, and (when a second-best exists) the best must be
// meaningfully smaller than the second-best -- Lowe's ratio test guarding
// against ambiguous matches.
func (m *Matcher) validDistance(distance1, distance2 float64) bool {
	if distance1 >= m.cfg.DistanceThreshold {
		return false
	}
	if distance2 != -1 && distance1 != -1 && distance1 > m.cfg.Ratio*distance2 {
		return false
	}
	return true
}

// validGap reprojects (matchX, matchY) through rotDiff and reports whether
// its normalized-coordinate distance to (refX, refY) falls within
// [MinGap, MaxGap].
func (m *Matcher) validGap(refX, refY, matchX, matchY float64, rotDiff quat.Number) (bool, float64) {
	px, py := m.intrinsics.RotatedProjection(rotDiff, matchX, matchY)
	gap := math.Hypot(refX-px, refY-py)
	if gap > float64(m.cfg.MaxGap) || gap < float64(m.cfg.MinGap) {
		return false, gap
	}
	return true, gap
}

// matchNodes is the hierarchical search over a match tree (matcher.hpp's
// match_nodes): it finds the nearest representative among nodes by
// descriptor distance and returns it when the geometric gate and the
// absolute distance threshold both pass at this level. When either check
// fails it descends into that representative's children, and reports no
// match if the representative has none.
func (m *Matcher) matchNodes(currFp *FeaturePoint, nodes []*MatchTreeNode, rotDiff quat.Number, descriptorFrames map[int]*Frame) (*FeaturePoint, float64, float64) {
	var minNode *MatchTreeNode
	minDistance := -1.0
	for _, node := range nodes {
		fp, ok := m.gs.featurePts[node.FeaturePointID]
		if !ok {
			continue
		}
		distance := descriptorDistance(m.gs, fp, currFp, descriptorFrames)
		if minDistance == -1 || minDistance > distance {
			minDistance = distance
			minNode = node
		}
	}
	if minNode == nil {
		return nil, -1, 0
	}
	repFp := m.gs.featurePts[minNode.FeaturePointID]
	valid, gap := m.validGap(currFp.NX, currFp.NY, repFp.NX, repFp.NY, rotDiff)
	if valid && minDistance <= m.cfg.DistanceThreshold {
		return repFp, minDistance, gap
	}
	if len(minNode.Children) > 0 {
		return m.matchNodes(currFp, minNode.Children, rotDiff, descriptorFrames)
	}
	return nil, minDistance, gap
}

// MatchFPs matches up to maxMatches feature points between prevFps (all
// belonging to one reference frame) and currFrame, returning the set of
// floating landmarks created from confirmed matches (spec.md §4.4). If the
// resulting average pixel gap is below minAvgGap the whole batch is
// discarded -- too little motion between frames to trust the match set for
// triangulation.
func (m *Matcher) MatchFPs(currFrame *Frame, prevFps []*FeaturePoint, descriptorFrames map[int]*Frame, maxMatches int, minAvgGap float64, rng *rand.Rand) []*Landmark {
	if len(prevFps) == 0 {
		return nil
	}
	prevFrame, ok := m.gs.frames[prevFps[0].FrameID]
	if !ok {
		panicInvariant("reference feature point belongs to an evicted frame")
	}
	rotDiff := quat.Mul(quat.Conj(currFrame.Pose.Rot), prevFrame.Pose.Rot)

	var landmarks []*Landmark
	totalGap := 0.0
	totalPts := 0

	pending := make([]*FeaturePoint, len(prevFps))
	copy(pending, prevFps)

	for len(pending) > 0 && len(landmarks) < maxMatches {
		var prevFp *FeaturePoint
		prevFp, pending = popRandom(pending, rng)

		var matchFp *FeaturePoint
		distance1, distance2 := -1.0, -1.0
		matchGap := 0.0

		if m.cfg.MatchHierarchy {
			for _, roots := range currFrame.MatchTree {
				fp, distance, gap := m.matchNodes(prevFp, roots, rotDiff, descriptorFrames)
				if fp == nil {
					continue
				}
				setDistances(distance, &distance1, &distance2)
				if distance1 == distance {
					matchFp = fp
					matchGap = gap
				}
			}
		} else {
			for _, currFp := range currFrame.FeaturePointSlice() {
				valid, gap := m.validGap(prevFp.NX, prevFp.NY, currFp.NX, currFp.NY, rotDiff)
				if !valid {
					continue
				}
				distance := descriptorDistance(m.gs, currFp, prevFp, descriptorFrames)
				setDistances(distance, &distance1, &distance2)
				if distance1 == distance {
					matchFp = currFp
					matchGap = gap
				}
			}
		}

		if matchFp == nil || !m.validDistance(distance1, distance2) {
			continue
		}
		landmark, err := m.gs.CreateFloatingLandmark(prevFp, matchFp)
		if err != nil {
			continue
		}
		landmarks = append(landmarks, landmark)
		totalGap += matchGap
		totalPts++
	}

	if totalPts == 0 || totalGap/float64(totalPts) < minAvgGap {
		m.logger.Debugf("frame %d: match batch against frame %d rejected, avg gap below %.2f", currFrame.ID, prevFrame.ID, minAvgGap)
		return nil
	}
	m.logger.Debugf("frame %d: matched %d points against frame %d, avg gap %.2f", currFrame.ID, len(landmarks), prevFrame.ID, totalGap/float64(totalPts))
	return landmarks
}

// rotationDiffDegrees is a small wrapper over spatial.AngularDiffDegrees kept
// here so pose-manager keyframe ranking (C8) reads like the original's
// TransformUtils::deg_diff call site.
func rotationDiffDegrees(a, b spatial.Pose) float64 {
	return spatial.AngularDiffDegrees(a.Rot, b.Rot)
}
