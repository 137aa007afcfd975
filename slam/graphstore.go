package slam

import (
	"sort"

	"github.com/golang/geo/r3"

	"go.viam.com/monoslam/logging"
	"go.viam.com/monoslam/spatial"
)

// GraphStore owns the three entity tables -- frames, feature points, and
// landmarks -- and is the only place their cross-references are mutated
// (spec.md §4.2, design note §9: "arena + stable identifier scheme"). All
// cross-entity links are ids looked up in these tables rather than pointers,
// so a stale reference is simply an id the table no longer contains.
type GraphStore struct {
	cfg        Intrinsics
	maxDepth   float64
	logger     logging.Logger
	ids        *idGen
	frames     map[int]*Frame
	landmarks  map[int]*Landmark
	featurePts map[int]*FeaturePoint // global index, frame-owned
}

// NewGraphStore builds an empty graph store for the given camera intrinsics.
func NewGraphStore(intrinsics Intrinsics, maxDepth float64, logger logging.Logger) *GraphStore {
	return &GraphStore{
		cfg:        intrinsics,
		maxDepth:   maxDepth,
		logger:     logger.Sublogger("graphstore"),
		ids:        newIDGen(),
		frames:     make(map[int]*Frame),
		landmarks:  make(map[int]*Landmark),
		featurePts: make(map[int]*FeaturePoint),
	}
}

// AddFrame creates and stores a new frame at the given pose/orientation
// prior, ready to receive feature points.
func (g *GraphStore) AddFrame(pose spatial.Pose, orientationDeg [3]float64, timestamp int64) *Frame {
	f := &Frame{
		ID:             g.ids.frameID(),
		Timestamp:      timestamp,
		Pose:           pose,
		OrientationDeg: orientationDeg,
		Level:          999,
		FeaturePoints:  make(map[int]*FeaturePoint),
	}
	g.frames[f.ID] = f
	return f
}

// AddFeaturePoint creates a feature point owned by frame, deriving its
// normalized coordinates from the store's intrinsics.
func (g *GraphStore) AddFeaturePoint(frame *Frame, px, py float64, desc Descriptor) *FeaturePoint {
	fp := &FeaturePoint{
		ID:            g.ids.featurePointID(),
		FrameID:       frame.ID,
		Px:            px,
		Py:            py,
		NX:            (px - g.cfg.CX) / g.cfg.F,
		NY:            (py - g.cfg.CY) / g.cfg.F,
		Desc:          desc,
		MatchDistance: InitialDistance,
	}
	frame.FeaturePoints[fp.ID] = fp
	g.featurePts[fp.ID] = fp
	return fp
}

// Frame looks up a frame by id; ok is false if it has been evicted.
func (g *GraphStore) Frame(id int) (*Frame, bool) {
	f, ok := g.frames[id]
	return f, ok
}

// Landmark looks up a landmark by id.
func (g *GraphStore) Landmark(id int) (*Landmark, bool) {
	l, ok := g.landmarks[id]
	return l, ok
}

// FeaturePoint looks up a feature point by its global id.
func (g *GraphStore) FeaturePoint(id int) (*FeaturePoint, bool) {
	fp, ok := g.featurePts[id]
	return fp, ok
}

// Frames returns every frame currently in the store, sorted by id for
// deterministic iteration.
func (g *GraphStore) Frames() []*Frame {
	out := make([]*Frame, 0, len(g.frames))
	for _, f := range g.frames {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Landmarks returns every persistent landmark, sorted by id.
func (g *GraphStore) Landmarks() []*Landmark {
	out := make([]*Landmark, 0, len(g.landmarks))
	for _, l := range g.landmarks {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RemoveFrame evicts a frame from the store without touching its feature
// points' landmark links; FrameManager.RemoveAFrame unlinks them before
// calling it for the sliding-window cleanup (spec.md §4.9).
func (g *GraphStore) RemoveFrame(f *Frame) {
	for id := range f.FeaturePoints {
		delete(g.featurePts, id)
	}
	delete(g.frames, f.ID)
}

// unprojectAtDepth returns fp unprojected at the given depth along its
// owning frame's pose, the shared helper behind create_landmark's "initial
// estimate" and create_floating_landmark's fallback initialization.
func (g *GraphStore) unprojectAtDepth(fp *FeaturePoint, depth float64) (r3.Vector, error) {
	frame, ok := g.frames[fp.FrameID]
	if !ok {
		panicInvariant("feature point references an evicted frame")
	}
	trans := g.cfg.Unproject(frame.Pose, fp.NX, fp.NY, depth)
	if trans == (r3.Vector{}) {
		return trans, ErrDegenerateInitialization
	}
	return trans, nil
}

// CreateLandmark allocates a persistent landmark seeded from fp, unprojected
// at the store's configured maximum depth -- "this guarantees a
// non-degenerate initial estimate, critical for the optimizer" (spec.md
// §4.2).
func (g *GraphStore) CreateLandmark(fp *FeaturePoint, matchDistance float64) (*Landmark, error) {
	trans, err := g.unprojectAtDepth(fp, g.maxDepth)
	if err != nil {
		return nil, err
	}
	l := &Landmark{
		ID:            g.ids.landmarkID(),
		Trans:         trans,
		FeaturePoints: map[int]*FeaturePoint{fp.ID: fp},
	}
	g.landmarks[l.ID] = l
	fp.Landmark = l.ID
	fp.MatchDistance = matchDistance
	return l, nil
}

// CreateFloatingLandmark allocates a transient landmark spanning two feature
// points (spec.md §4.2), never installed into the persistent table. Its
// initial position is taken from fp1's existing valid landmark, falling back
// to unprojecting fp1.
//
// Open Question (spec.md §9): the original create_floating_landmark_fp reads
//
//	auto landmarkFp1 = fp1->landmark.lock();
//	auto landmarkFp2 = fp1->landmark.lock();
//
// -- both lines dereference fp1, which looks like a typo for fp2 on the
// second line. We preserve this literally: the code below computes
// both "existing landmark" lookups from fp1, so fp2's own landmark (if any)
// is never consulted. This means a floating landmark's initial position is
// blind to whatever fp2 was already attached to; it is seeded from fp1's
// landmark (averaged with itself, which is just fp1's position) or, failing
// that, unprojects fp1 at max depth. A reader who wants the "probably
// intended" behavior should read fp2's own landmark here instead -- we do
// not, to keep this port's observable behavior identical to the source it
// was ported from.
func (g *GraphStore) CreateFloatingLandmark(fp1, fp2 *FeaturePoint) (*Landmark, error) {
	l := &Landmark{
		ID:            g.ids.landmarkID(),
		FeaturePoints: map[int]*FeaturePoint{fp1.ID: fp1, fp2.ID: fp2},
	}

	landmarkFp1 := g.validLandmarkOf(fp1)
	landmarkFp2 := g.validLandmarkOf(fp1) // preserved typo, see doc comment above.

	switch {
	case landmarkFp1 != nil && landmarkFp2 != nil:
		l.Trans = landmarkFp1.Trans.Add(landmarkFp2.Trans).Mul(0.5)
	case landmarkFp1 != nil:
		l.Trans = landmarkFp1.Trans
	case landmarkFp2 != nil:
		l.Trans = landmarkFp2.Trans
	default:
		trans, err := g.unprojectAtDepth(fp1, g.maxDepth)
		if err != nil {
			return nil, err
		}
		l.Trans = trans
	}
	return l, nil
}

func (g *GraphStore) validLandmarkOf(fp *FeaturePoint) *Landmark {
	if !fp.HasLandmark() {
		return nil
	}
	l, ok := g.landmarks[fp.Landmark]
	if !ok || !l.Valid {
		return nil
	}
	return l
}

// Link establishes the mutual reference between landmark and featurePoint,
// recording matchDistance, then deduplicates the landmark.
func (g *GraphStore) Link(l *Landmark, fp *FeaturePoint, matchDistance float64) {
	l.FeaturePoints[fp.ID] = fp
	fp.Landmark = l.ID
	fp.MatchDistance = matchDistance
	g.Dedupe(l)
}

// Unlink removes featurePoint from landmark. If fewer than 2 feature points
// remain, the landmark itself is removed and removed=true is returned
// (spec.md §4.2).
func (g *GraphStore) Unlink(l *Landmark, fp *FeaturePoint) (removed bool) {
	delete(l.FeaturePoints, fp.ID)
	if fp.Landmark == l.ID {
		fp.Landmark = noLandmark
		fp.MatchDistance = InitialDistance
	}
	if len(l.FeaturePoints) < 2 {
		g.removeLandmark(l)
		return true
	}
	return false
}

func (g *GraphStore) removeLandmark(l *Landmark) {
	for _, fp := range l.FeaturePoints {
		if fp.Landmark == l.ID {
			fp.Landmark = noLandmark
			fp.MatchDistance = InitialDistance
		}
	}
	delete(g.landmarks, l.ID)
}

// Merge moves every feature point from mergee into reference, transferring
// the position estimate if reference was invalid and mergee valid, then
// deduplicates reference and deletes mergee (spec.md §4.2).
func (g *GraphStore) Merge(reference, mergee *Landmark) {
	if reference.ID == mergee.ID {
		return
	}
	for id, fp := range mergee.FeaturePoints {
		reference.FeaturePoints[id] = fp
		fp.Landmark = reference.ID
	}
	if mergee.Valid && !reference.Valid {
		reference.Trans = mergee.Trans
		reference.Valid = true
	}
	g.Dedupe(reference)
	delete(g.landmarks, mergee.ID)
}

// Dedupe enforces invariant L-1: for each frame contributing more than one
// feature point to landmark, keep only the one whose descriptor has the
// minimum summed Hamming distance to the landmark's other feature points
// (ties go to the lowest id), detaching the rest
// (spec.md §4.2). Dedupe is idempotent: running it again on an
// already-deduplicated landmark is a no-op (spec.md §8 law).
func (g *GraphStore) Dedupe(l *Landmark) {
	byFrame := make(map[int][]*FeaturePoint)
	for _, fp := range l.FeaturePoints {
		byFrame[fp.FrameID] = append(byFrame[fp.FrameID], fp)
	}
	for _, dupes := range byFrame {
		if len(dupes) < 2 {
			continue
		}
		sortFeaturePoints(dupes)
		var selected *FeaturePoint
		minSum := -1
		for _, candidate := range dupes {
			sum := 0
			for _, other := range l.FeaturePoints {
				if other.ID == candidate.ID {
					continue
				}
				sum += candidate.Desc.HammingDistance(other.Desc)
			}
			if minSum == -1 || sum < minSum {
				minSum = sum
				selected = candidate
			}
		}
		for _, candidate := range dupes {
			if candidate.ID == selected.ID {
				continue
			}
			delete(l.FeaturePoints, candidate.ID)
			if candidate.Landmark == l.ID {
				candidate.Landmark = noLandmark
				candidate.MatchDistance = InitialDistance
			}
		}
	}
}

// CloneFloating returns a transient copy of every landmark in ls, sharing the
// same feature-point membership and translation but none of the persistent
// table's lifetime (the original's clone_landmarks, see SPEC_FULL.md §3).
// Nothing in the pipeline calls it: the BA orchestrator warm-starts from the
// position and pose maps passed to Estimate and leaves the store's
// committed estimates untouched.
func (g *GraphStore) CloneFloating(ls []*Landmark) []*Landmark {
	out := make([]*Landmark, 0, len(ls))
	for _, l := range ls {
		clone := &Landmark{
			ID:            l.ID,
			Trans:         l.Trans,
			Valid:         l.Valid,
			FeaturePoints: make(map[int]*FeaturePoint, len(l.FeaturePoints)),
		}
		for id, fp := range l.FeaturePoints {
			clone.FeaturePoints[id] = fp
		}
		out = append(out, clone)
	}
	return out
}

// ValidateInvariants panics with an *InvariantViolation if any persistent
// landmark currently violates L-1/L-2/L-3 (spec.md §8). It is called from
// tests; the pipeline itself does not call it.
func (g *GraphStore) ValidateInvariants() {
	for _, l := range g.landmarks {
		if len(l.FeaturePoints) < 2 {
			panicInvariant("landmark has fewer than 2 feature points")
		}
		seenFrames := make(map[int]struct{})
		for _, fp := range l.FeaturePoints {
			if _, dup := seenFrames[fp.FrameID]; dup {
				panicInvariant("landmark has two feature points in the same frame")
			}
			seenFrames[fp.FrameID] = struct{}{}
		}
	}
	for _, fp := range g.featurePts {
		if !fp.HasLandmark() {
			continue
		}
		l, ok := g.landmarks[fp.Landmark]
		if !ok {
			panicInvariant("feature point references a landmark no longer in the store")
		}
		if _, present := l.FeaturePoints[fp.ID]; !present {
			panicInvariant("feature point's landmark backlink is not reciprocated")
		}
	}
}
