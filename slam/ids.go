package slam

// idGen is the graph store's single source of identifiers, matching design
// note §9 ("no global mutable state beyond a monotonically-increasing id
// counter, encapsulated in the graph store"). The original source seeded its
// landmark counter at 989900000 to keep landmark ids visually distinct from
// frame/feature-point ids in debug logs; we keep that convention for
// landmarks and start frames/feature points at 1. Frames created through
// FrameManager.CreateFrame carry the caller's id instead of one from here.
type idGen struct {
	nextFrame       int
	nextFeaturePoint int
	nextLandmark    int
}

func newIDGen() *idGen {
	return &idGen{nextFrame: 1, nextFeaturePoint: 1, nextLandmark: 989900000}
}

func (g *idGen) frameID() int {
	id := g.nextFrame
	g.nextFrame++
	return id
}

func (g *idGen) featurePointID() int {
	id := g.nextFeaturePoint
	g.nextFeaturePoint++
	return id
}

func (g *idGen) landmarkID() int {
	id := g.nextLandmark
	g.nextLandmark++
	return id
}
