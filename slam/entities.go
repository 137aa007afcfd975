package slam

import (
	"github.com/golang/geo/r3"

	"go.viam.com/monoslam/spatial"
)

// Descriptor is a fixed-width binary feature descriptor. Extraction is an
// external oracle (spec.md §1 Out of scope); we only ever compare descriptors
// by Hamming distance.
type Descriptor [32]byte

// HammingDistance returns the number of differing bits between d and other.
func (d Descriptor) HammingDistance(other Descriptor) int {
	dist := 0
	for i := range d {
		dist += popcount(d[i] ^ other[i])
	}
	return dist
}

func popcount(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}

// noLandmark is the sentinel feature-point.Landmark value meaning "unattached".
const noLandmark = 0

// FeaturePoint is a single 2D detection within a Frame (spec.md §3). Its
// pixel/normalized coordinates are immutable after construction; only its
// Landmark backlink may change.
type FeaturePoint struct {
	ID      int
	FrameID int
	// Px, Py are raw pixel coordinates; NX, NY are (px-cx)/f normalized.
	Px, Py   float64
	NX, NY   float64
	Desc     Descriptor
	Landmark int // 0 means unattached; see noLandmark.
	// MatchDistance is the Hamming distance recorded when this point was last
	// linked to a landmark (INITIAL_DISTANCE / unset otherwise).
	MatchDistance float64
}

// InitialDistance mirrors the original source's INITIAL_DISTANCE sentinel:
// "no meaningful match distance recorded yet".
const InitialDistance = 99999.0

// HasLandmark reports whether this point currently references a landmark.
func (fp *FeaturePoint) HasLandmark() bool { return fp.Landmark != noLandmark }

// NormalizedPoint returns the point's normalized image coordinates as a
// homogeneous ray (x̂, ŷ, 1), the form the projection kernel and matcher
// consume.
func (fp *FeaturePoint) NormalizedPoint() r3.Vector {
	return r3.Vector{X: fp.NX, Y: fp.NY, Z: 1}
}

// MatchTreeNode is a node of a frame's hierarchical descriptor tree (C3): it
// owns a representative feature point and an ordered set of children.
type MatchTreeNode struct {
	FeaturePointID int
	Children       []*MatchTreeNode
}

// Frame is a captured image at a known instant (spec.md §3). A frame owns its
// feature points exclusively; its pose mutates only during bundle adjustment
// or origin re-anchoring.
type Frame struct {
	ID        int
	Timestamp int64
	Pose      spatial.Pose
	// OrientationDeg is the caller-supplied coarse orientation prior
	// (pitch, roll, yaw in degrees).
	OrientationDeg [3]float64

	FeaturePoints map[int]*FeaturePoint // keyed by FeaturePoint.ID
	MatchTree     [][]*MatchTreeNode     // C3 forest: one root-level slice per tree

	Level                  int // 0 = root
	Valid                  bool
	IsKeyFrame             bool
	IsOrigin               bool
	LandmarkDistThreshold  float64
}

// FeaturePointSlice returns this frame's feature points in a stable order
// (ascending ID), useful wherever the original's set-iteration order must be
// made deterministic for Go.
func (f *Frame) FeaturePointSlice() []*FeaturePoint {
	out := make([]*FeaturePoint, 0, len(f.FeaturePoints))
	for _, fp := range f.FeaturePoints {
		out = append(out, fp)
	}
	sortFeaturePoints(out)
	return out
}

// Landmark is a hypothesized 3D world point observed in >= 2 frames
// (spec.md §3). The set of feature points referencing a landmark is keyed by
// FeaturePoint.ID; invariant L-1 (one feature point per distinct frame) is
// enforced by the graph store, not by this struct.
type Landmark struct {
	ID            int
	Trans         r3.Vector
	Valid         bool
	FeaturePoints map[int]*FeaturePoint // keyed by FeaturePoint.ID; owned elsewhere
}

// FrameIDs returns the set of distinct frame ids contributing feature points
// to this landmark.
func (l *Landmark) FrameIDs() map[int]struct{} {
	frames := make(map[int]struct{}, len(l.FeaturePoints))
	for _, fp := range l.FeaturePoints {
		frames[fp.FrameID] = struct{}{}
	}
	return frames
}
