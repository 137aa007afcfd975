package slam

import "math/rand"

// descriptorDistance is the cross-frame descriptor distance used throughout
// C3/C4 (grounded on transformUtils.hpp's overloaded get_distance): when
// either feature point already belongs to a landmark, the comparison uses
// the landmark's closest (by frame translation) observation within
// descriptorFrames instead of the feature point's own descriptor directly.
// This lets an established landmark "vote" with its best-positioned
// evidence rather than whatever single detection happens to be on one side
// of the comparison. A distance above 100 is treated as no-match
// (InitialDistance).
func descriptorDistance(gs *GraphStore, fp1, fp2 *FeaturePoint, descriptorFrames map[int]*Frame) float64 {
	l1 := gs.landmarkOf(fp1)
	l2 := gs.landmarkOf(fp2)
	switch {
	case l1 == nil && l2 == nil:
		dist := float64(fp1.Desc.HammingDistance(fp2.Desc))
		if dist > 100 {
			return InitialDistance
		}
		return dist
	case l1 != nil && l2 == nil:
		return landmarkToDescriptorDistance(gs, l1, fp2, descriptorFrames)
	case l1 == nil && l2 != nil:
		return landmarkToDescriptorDistance(gs, l2, fp1, descriptorFrames)
	default:
		return landmarkToLandmarkDistance(gs, l1, l2, descriptorFrames)
	}
}

// landmarkOf returns fp's landmark, or nil if it has none (landmark.lock()
// returning empty in the original's weak_ptr terms).
func (g *GraphStore) landmarkOf(fp *FeaturePoint) *Landmark {
	if !fp.HasLandmark() {
		return nil
	}
	l, ok := g.landmarks[fp.Landmark]
	if !ok {
		return nil
	}
	return l
}

func landmarkToDescriptorDistance(gs *GraphStore, l *Landmark, fp *FeaturePoint, descriptorFrames map[int]*Frame) float64 {
	descFrame, ok := gs.frames[fp.FrameID]
	if !ok {
		return InitialDistance
	}
	var minFp *FeaturePoint
	minFrameDist := -1.0
	for _, candidate := range l.FeaturePoints {
		if _, ok := descriptorFrames[candidate.FrameID]; !ok {
			continue
		}
		candFrame, ok := gs.frames[candidate.FrameID]
		if !ok {
			continue
		}
		frameDist := candFrame.Pose.Trans.Sub(descFrame.Pose.Trans).Norm()
		if minFp == nil || minFrameDist > frameDist {
			minFrameDist = frameDist
			minFp = candidate
		}
	}
	if minFp == nil {
		panicInvariant("landmark has no observation within the requested descriptor frame set")
	}
	dist := float64(minFp.Desc.HammingDistance(fp.Desc))
	if dist > 100 {
		return InitialDistance
	}
	return dist
}

func landmarkToLandmarkDistance(gs *GraphStore, l1, l2 *Landmark, descriptorFrames map[int]*Frame) float64 {
	var minFp1, minFp2 *FeaturePoint
	minFrameDist := -1.0
	for _, fp1 := range l1.FeaturePoints {
		if _, ok := descriptorFrames[fp1.FrameID]; !ok {
			continue
		}
		frame1, ok := gs.frames[fp1.FrameID]
		if !ok {
			continue
		}
		for _, fp2 := range l2.FeaturePoints {
			if _, ok := descriptorFrames[fp2.FrameID]; !ok {
				continue
			}
			frame2, ok := gs.frames[fp2.FrameID]
			if !ok {
				continue
			}
			frameDist := frame1.Pose.Trans.Sub(frame2.Pose.Trans).Norm()
			if minFp1 == nil || minFrameDist > frameDist {
				minFrameDist = frameDist
				minFp1 = fp1
				minFp2 = fp2
			}
		}
	}
	if minFp1 == nil {
		panicInvariant("landmark pair shares no observation within the requested descriptor frame set")
	}
	dist := float64(minFp1.Desc.HammingDistance(minFp2.Desc))
	if dist > 100 {
		return InitialDistance
	}
	return dist
}

// BuildMatchTree replaces frame.MatchTree with treeCount independently
// randomized trees over frame's feature points (spec.md C3), each built by
// recursively clustering the remaining points under the nearest of up to
// branchSize representative children, bottoming out once a cluster holds
// leafSize or fewer points (frameManager.hpp's populate_match_node).
func BuildMatchTree(gs *GraphStore, frame *Frame, branchSize, leafSize, treeCount int, rng *rand.Rand) {
	frame.MatchTree = make([][]*MatchTreeNode, 0, treeCount)
	descriptorFrames := map[int]*Frame{frame.ID: frame}
	for t := 0; t < treeCount; t++ {
		pending := frame.FeaturePointSlice()
		var roots []*MatchTreeNode
		populateMatchNode(gs, &roots, pending, branchSize, leafSize, descriptorFrames, rng)
		frame.MatchTree = append(frame.MatchTree, roots)
	}
}

func populateMatchNode(gs *GraphStore, nodes *[]*MatchTreeNode, pending []*FeaturePoint, branchSize, leafSize int, descriptorFrames map[int]*Frame, rng *rand.Rand) {
	maxSize := branchSize
	if len(pending) <= leafSize {
		maxSize = len(pending)
	}
	for i := 0; i < maxSize && len(pending) > 0; i++ {
		var fp *FeaturePoint
		fp, pending = popRandom(pending, rng)
		*nodes = append(*nodes, &MatchTreeNode{FeaturePointID: fp.ID})
	}
	if len(pending) == 0 {
		return
	}

	byNode := make(map[*MatchTreeNode][]*FeaturePoint)
	for _, fp := range pending {
		var minNode *MatchTreeNode
		minDistance := -1.0
		for _, node := range *nodes {
			childFp, ok := gs.featurePts[node.FeaturePointID]
			if !ok {
				continue
			}
			distance := descriptorDistance(gs, fp, childFp, descriptorFrames)
			if minDistance == -1 || distance < minDistance {
				minDistance = distance
				minNode = node
			}
		}
		byNode[minNode] = append(byNode[minNode], fp)
	}
	for _, node := range *nodes {
		group, ok := byNode[node]
		if !ok {
			continue
		}
		populateMatchNode(gs, &node.Children, group, branchSize, leafSize, descriptorFrames, rng)
	}
}
