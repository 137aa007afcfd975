package slam

import (
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/monoslam/logging"
	"go.viam.com/monoslam/slamconfig"
	"go.viam.com/monoslam/spatial"
)

// FrameManager owns the ordered frame history, the keyframe subset used to
// estimate new frames, and the origin/smoothing state derived from it
// (spec.md C9, grounded on managers/frameManager.hpp).
type FrameManager struct {
	cfg  slamconfig.Config
	gs   *GraphStore
	conv spatial.EulerConvention

	order        []int // frame IDs in insertion order
	keyframes    map[int]bool
	originFrame  *Frame
	originRotInv quat.Number

	currTransSmooth r3.Vector
	currVelSmooth   r3.Vector
	lastTimestamp   int64

	ImgWidth, ImgHeight float64

	logger logging.Logger
}

// NewFrameManager builds a frame manager bound to a graph store and config.
func NewFrameManager(gs *GraphStore, cfg slamconfig.Config, conv spatial.EulerConvention, logger logging.Logger) *FrameManager {
	return &FrameManager{
		cfg:       cfg,
		gs:        gs,
		conv:      conv,
		keyframes: make(map[int]bool),
		logger:    logger.Sublogger("framemanager"),
	}
}

// Current returns the most recently created frame, or nil if none exist.
func (fm *FrameManager) Current() *Frame {
	if len(fm.order) == 0 {
		return nil
	}
	f, _ := fm.gs.Frame(fm.order[len(fm.order)-1])
	return f
}

// rotationFromOrientation converts a coarse orientation prior to a
// quaternion, honoring the DisableRotationInput config flag the way
// get_rotation did (identity when the caller's orientation input is not
// trusted).
func (fm *FrameManager) rotationFromOrientation(orientationDeg [3]float64) quat.Number {
	if fm.cfg.DisableRotationInput {
		return quat.Number{Real: 1}
	}
	return spatial.OrientationToQuat(orientationDeg[0], orientationDeg[1], orientationDeg[2], fm.conv)
}

// CreateFrame registers a new frame: its translation seeds from the current
// frame's translation unless the last 3 frames were all invalid (in which
// case it seeds at the origin, since nothing recent can be trusted), and its
// rotation comes from the supplied orientation prior.
//
// The original (frameManager.hpp's create_frame) additionally special-cased
// frame ids 2-4, forcing their seed translation to (1,0,0) regardless of the
// current frame's pose. Nothing else in the source references this range,
// it has no corresponding constant or comment, and it produces a visibly
// wrong bootstrap translation for exactly those three frames. We read it as
// a debugging leftover rather than an intentional behavior and do not port
// it; see DESIGN.md.
func (fm *FrameManager) CreateFrame(id int, imgWidth, imgHeight float64, orientationDeg [3]float64, timestamp int64) *Frame {
	trans := r3.Vector{}
	invalidCount := 0
	for i := 0; i < 3 && i < len(fm.order); i++ {
		f, _ := fm.gs.Frame(fm.order[len(fm.order)-1-i])
		if f != nil && !f.Valid {
			invalidCount++
		} else {
			break
		}
	}
	if len(fm.order) > 0 && invalidCount < 3 {
		trans = fm.Current().Pose.Trans
	}

	rot := fm.rotationFromOrientation(orientationDeg)
	// The frame is stored under the caller's id, not one drawn from the
	// store's counter, so callers can look it up by the id they passed in.
	frame := &Frame{
		ID:             id,
		Timestamp:      timestamp,
		Pose:           spatial.Pose{Trans: trans, Rot: rot},
		OrientationDeg: orientationDeg,
		Level:          999,
		FeaturePoints:  make(map[int]*FeaturePoint),
	}
	fm.gs.frames[id] = frame
	if len(fm.order) == 0 {
		fm.ImgWidth, fm.ImgHeight = imgWidth, imgHeight
	}
	fm.order = append(fm.order, frame.ID)
	fm.logger.Debugf("created frame %d at trans=%v", frame.ID, trans)
	return frame
}

// RemoveAFrame evicts the single oldest entry from the tracked frame order
// (sliding-window eviction, spec.md §4.9), unconditionally -- matching
// frameManager.hpp's remove_a_frame, which always pops frameList[0]. The
// evicted frame stays in the graph store (and, if it is a keyframe, in the
// keyframe set) unless it is neither the origin nor a keyframe, in which
// case it is also unlinked from every landmark it contributed to and removed
// from the store: nothing else references it, so this is the only place
// cleanup needs to happen.
func (fm *FrameManager) RemoveAFrame() *Frame {
	if len(fm.order) == 0 {
		return nil
	}
	id := fm.order[0]
	fm.order = fm.order[1:]
	f, ok := fm.gs.Frame(id)
	if !ok {
		return nil
	}
	isOrigin := fm.originFrame != nil && f.ID == fm.originFrame.ID
	if !isOrigin && !fm.keyframes[f.ID] {
		for _, fp := range f.FeaturePointSlice() {
			if !fp.HasLandmark() {
				continue
			}
			if l, ok := fm.gs.Landmark(fp.Landmark); ok {
				fm.gs.Unlink(l, fp)
			}
		}
		fm.gs.RemoveFrame(f)
	}
	return f
}

// MaintainSlidingWindow evicts the oldest tracked frame once if the window
// exceeds cfg.MaxFrames (spec.md §4.9's "when the frame ring exceeds
// maxFrames, detach the oldest"), meant to be called once per processed
// frame the way slam.hpp's process did.
func (fm *FrameManager) MaintainSlidingWindow() *Frame {
	if len(fm.order) > fm.cfg.MaxFrames {
		return fm.RemoveAFrame()
	}
	return nil
}

// SetOriginFrame re-anchors every tracked frame's translation relative to
// frame, returning frame's pre-anchoring translation so the caller can
// re-anchor landmarks by the same offset.
func (fm *FrameManager) SetOriginFrame(frame *Frame) r3.Vector {
	fm.originFrame = frame
	originTrans := frame.Pose.Trans
	for _, id := range fm.order {
		f, ok := fm.gs.Frame(id)
		if !ok {
			continue
		}
		f.Pose.Trans = f.Pose.Trans.Sub(originTrans)
	}
	fm.originRotInv = quat.Conj(frame.Pose.Rot)
	return originTrans
}

// AddKeyframe promotes an existing frame to the keyframe set. The first
// keyframe is level 0; subsequent keyframes take the level of the lowest
// already-keyframe level they share at least 4 landmark observations with,
// plus one, falling back to level 0 if they share none (frameManager.hpp's
// add_keyframe).
func (fm *FrameManager) AddKeyframe(frame *Frame) {
	fm.keyframes[frame.ID] = true
	if len(fm.keyframes) == 1 {
		frame.Level = 0
		frame.IsKeyFrame = true
		return
	}

	levelMatchCount := make(map[int]int)
	for _, fp := range frame.FeaturePoints {
		if !fp.HasLandmark() {
			continue
		}
		landmark, ok := fm.gs.Landmark(fp.Landmark)
		if !ok {
			continue
		}
		for _, otherFP := range landmark.FeaturePoints {
			if otherFP.ID == fp.ID {
				continue
			}
			if !fm.keyframes[otherFP.FrameID] {
				continue
			}
			otherFrame, ok := fm.gs.Frame(otherFP.FrameID)
			if !ok {
				continue
			}
			levelMatchCount[otherFrame.Level]++
		}
	}
	minLevel := -1
	for level, count := range levelMatchCount {
		if count < 4 {
			continue
		}
		if minLevel == -1 || level < minLevel {
			minLevel = level
		}
	}
	frame.Level = minLevel + 1
	frame.IsKeyFrame = true
	fm.logger.Debugf("frame %d promoted to keyframe, level %d", frame.ID, frame.Level)
}

// Keyframes returns the current keyframe set by ID.
func (fm *FrameManager) Keyframes() map[int]*Frame {
	out := make(map[int]*Frame, len(fm.keyframes))
	for id := range fm.keyframes {
		if f, ok := fm.gs.Frame(id); ok {
			out[id] = f
		}
	}
	return out
}

// CheckCurrentOrKeyframe reports whether frame is either the most recent
// frame or a keyframe.
func (fm *FrameManager) CheckCurrentOrKeyframe(frame *Frame) bool {
	if cur := fm.Current(); cur != nil && cur.ID == frame.ID {
		return true
	}
	return fm.keyframes[frame.ID]
}

// PopulateFrameLandmarkDistThreshold recomputes each frame's
// LandmarkDistThreshold as the median distance to its own valid landmarks
// (spec.md §4.9's keyframe-radius heuristic), used downstream to judge
// whether a new frame moved meaningfully relative to its neighborhood.
func (fm *FrameManager) PopulateFrameLandmarkDistThreshold(frameSet map[int]*Frame) {
	for _, frame := range frameSet {
		var distances []float64
		for _, fp := range frame.FeaturePoints {
			if !fp.HasLandmark() {
				continue
			}
			landmark, ok := fm.gs.Landmark(fp.Landmark)
			if !ok || !landmark.Valid {
				continue
			}
			distances = append(distances, frame.Pose.Trans.Sub(landmark.Trans).Norm())
		}
		if len(distances) == 0 {
			continue
		}
		sort.Float64s(distances)
		frame.LandmarkDistThreshold = stat.Quantile(0.5, stat.Empirical, distances, nil)
	}
}

// SetCurrTransSmoothed updates the smoothed translation/velocity estimate
// used to damp jitter in the live trajectory: small moves (relative to
// currFrame's own landmark-distance threshold) are absorbed entirely,
// larger ones are averaged halfway toward the raw estimate
// (frameManager.hpp's set_curr_trans_smoothed).
func (fm *FrameManager) SetCurrTransSmoothed(currFrame *Frame) {
	var prevTimestamp int64
	for i := 2; i <= len(fm.order); i++ {
		f, ok := fm.gs.Frame(fm.order[len(fm.order)-i])
		if !ok {
			continue
		}
		if f.Valid {
			prevTimestamp = f.Timestamp
			break
		}
	}

	prevTrans := fm.currTransSmooth
	frameDistance := currFrame.Pose.Trans.Sub(fm.currTransSmooth).Norm()
	if frameDistance <= fm.cfg.SmootheningTolerance*currFrame.LandmarkDistThreshold {
		fm.currTransSmooth = prevTrans
	} else {
		fm.currTransSmooth = currFrame.Pose.Trans.Add(prevTrans).Mul(0.5)
	}
	dt := float64(currFrame.Timestamp - prevTimestamp)
	if dt != 0 {
		fm.currVelSmooth = fm.currTransSmooth.Sub(prevTrans).Mul(1 / dt)
	}
}

// CurrTransSmoothed returns the current smoothed translation estimate.
func (fm *FrameManager) CurrTransSmoothed() r3.Vector { return fm.currTransSmooth }

// CurrVelSmoothed returns the current smoothed velocity estimate.
func (fm *FrameManager) CurrVelSmoothed() r3.Vector { return fm.currVelSmooth }

// FrameList returns every tracked frame, oldest first.
func (fm *FrameManager) FrameList() []*Frame {
	out := make([]*Frame, 0, len(fm.order))
	for _, id := range fm.order {
		if f, ok := fm.gs.Frame(id); ok {
			out = append(out, f)
		}
	}
	return out
}

// OriginFrame returns the frame last passed to SetOriginFrame, or nil.
func (fm *FrameManager) OriginFrame() *Frame { return fm.originFrame }
