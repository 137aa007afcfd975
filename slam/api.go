package slam

import (
	"math/rand"
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/monoslam/logging"
	"go.viam.com/monoslam/slamconfig"
	"go.viam.com/monoslam/spatial"
)

// Keypoint is one detected 2D feature within a frame, the per-keypoint half
// of spec.md §6's ExportData (feature detection and descriptor extraction
// are an external oracle; this is the boundary where their output enters the
// core).
type Keypoint struct {
	X, Y float64
	Desc Descriptor
}

// ExportData is one frame's worth of already-extracted keypoints, the
// external oracle's output as spec.md §6 defines it. Match-tree construction
// is in scope (C3) and runs inside Process, so ExportData carries only raw
// keypoints, not a serialized tree.
type ExportData struct {
	ImgWidth, ImgHeight float64
	Keypoints           []Keypoint
}

// LandmarkReplacement records that a floating landmark's identity was folded
// into a persistent one during commit (SPEC_FULL.md §3, the original's
// LandmarkPairVec), so a caller holding an earlier intermediate estimate can
// follow the substitution through.
type LandmarkReplacement struct {
	From, To int
}

// FrameReport is everything Process computed about one frame: whether it was
// accepted, the full AddFrame diagnostic trail, a replacement log, and a
// profiling breakdown (SPEC_FULL.md §3's supplemented features).
type FrameReport struct {
	Frame        *Frame
	Valid        bool
	Status       Status
	MatchFrames  map[int]*Frame
	Replacements []LandmarkReplacement
	Profile      map[ProfileStage]time.Duration
}

// Slam is the top-level embedded API surface (spec.md §6): it owns the
// graph store and wires together the matcher, frame manager and pose
// manager, exposing the same operations the original's Slam class exported
// to its host runtime (extract_keypoints is an external concern; process and
// the trajectory accessors are not).
type Slam struct {
	cfg        slamconfig.Config
	intrinsics Intrinsics
	gs         *GraphStore
	fm         *FrameManager
	matcher    *Matcher
	pm         *PoseManager
	rng        *rand.Rand
	logger     logging.Logger

	initialized bool
}

// NewSlam builds a Slam instance from a validated config. rng drives every
// randomized step (match-tree shuffling, matcher batch order, RANSAC subset
// selection) so callers that need reproducible runs can supply a seeded
// source; production callers should seed from a real entropy source.
func NewSlam(cfg slamconfig.Config, rng *rand.Rand, logger logging.Logger) *Slam {
	intrinsics := Intrinsics{F: float64(cfg.FX), CX: float64(cfg.CX), CY: float64(cfg.CY)}
	gs := NewGraphStore(intrinsics, float64(cfg.MaxDepth), logger)
	conv := spatial.TruePiEuler
	fm := NewFrameManager(gs, cfg, conv, logger)
	matcher := NewMatcher(cfg, intrinsics, gs, logger)
	pm := NewPoseManager(cfg, gs, matcher, fm, intrinsics, rng, logger)
	return &Slam{
		cfg:        cfg,
		intrinsics: intrinsics,
		gs:         gs,
		fm:         fm,
		matcher:    matcher,
		pm:         pm,
		rng:        rng,
		logger:     logger.Sublogger("slam"),
	}
}

// IsInitialized reports whether the map has completed its bootstrap frame.
func (s *Slam) IsInitialized() bool { return s.pm.IsInitialized() }

// Process ingests one frame (spec.md §6's process): it creates the frame,
// populates its feature points and match tree from data, runs the per-frame
// pose pipeline, and maintains the sliding window (spec.md §4.9) the way
// slam.hpp's process did around its call to PoseManager::add_frame.
func (s *Slam) Process(orientationDeg [3]float64, id int, timestamp int64, data ExportData) *FrameReport {
	overallStart := time.Now()

	frameCreateStart := time.Now()
	frame := s.fm.CreateFrame(id, data.ImgWidth, data.ImgHeight, orientationDeg, timestamp)
	for _, kp := range data.Keypoints {
		s.gs.AddFeaturePoint(frame, kp.X, kp.Y, kp.Desc)
	}
	BuildMatchTree(s.gs, frame, s.cfg.BranchSize, s.cfg.LeafSize, s.cfg.TreeSize, s.rng)
	frameCreateTime := time.Since(frameCreateStart)

	if evicted := s.fm.MaintainSlidingWindow(); evicted != nil {
		s.logger.Debugf("evicted frame %d to maintain sliding window", evicted.ID)
	}

	report := &FrameReport{
		Frame:       frame,
		MatchFrames: map[int]*Frame{},
		Profile:     map[ProfileStage]time.Duration{},
	}

	if len(s.fm.FrameList()) >= 1 {
		out := s.pm.AddFrame(frame)
		report.Valid = out.Valid
		report.Status = out.Status
		report.MatchFrames = out.MatchFrames
		for _, pair := range out.Replacements {
			report.Replacements = append(report.Replacements, LandmarkReplacement{From: pair[0].ID, To: pair[1].ID})
		}
		for stage, d := range out.Profile {
			report.Profile[stage] = d
		}
		if s.pm.IsInitialized() {
			s.initialized = true
		}
	}

	report.Profile[StageOverall] = time.Since(overallStart)
	_ = frameCreateTime
	return report
}

// CurrTransSmoothed returns the current smoothed trajectory translation
// (spec.md §6's accessor surface).
func (s *Slam) CurrTransSmoothed() r3.Vector { return s.fm.CurrTransSmoothed() }

// CurrVelSmoothed returns the current smoothed trajectory velocity.
func (s *Slam) CurrVelSmoothed() r3.Vector { return s.fm.CurrVelSmoothed() }

// CurrFrameTrans returns the most recently created frame's raw (unsmoothed)
// translation.
func (s *Slam) CurrFrameTrans() r3.Vector {
	if f := s.fm.Current(); f != nil {
		return f.Pose.Trans
	}
	return r3.Vector{}
}

// KeyframePose returns the pose of a keyframe, or of the current frame, by
// id.
func (s *Slam) KeyframePose(id int) (spatial.Pose, bool) {
	f, ok := s.gs.Frame(id)
	if !ok || !s.fm.CheckCurrentOrKeyframe(f) {
		return spatial.Pose{}, false
	}
	return f.Pose, true
}

// KeyframeCount returns the number of frames currently promoted to
// keyframes.
func (s *Slam) KeyframeCount() int { return len(s.fm.Keyframes()) }

// GraphStore exposes the underlying store for callers that need direct
// access to the committed map (landmark positions, frame list) beyond the
// accessor surface above.
func (s *Slam) GraphStore() *GraphStore { return s.gs }
