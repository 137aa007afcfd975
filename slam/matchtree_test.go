package slam

import (
	"math/rand"
	"testing"

	"go.viam.com/test"

	"go.viam.com/monoslam/logging"
	"go.viam.com/monoslam/spatial"
)

func TestBuildMatchTreeCoversEveryFeaturePoint(t *testing.T) {
	gs := NewGraphStore(Intrinsics{F: 400, CX: 320, CY: 240}, 10, logging.NewTestLogger(t))
	frame := gs.AddFrame(spatial.Identity(), [3]float64{}, 0)
	var ids []int
	for i := 0; i < 23; i++ {
		fp := gs.AddFeaturePoint(frame, float64(300+i), 240, Descriptor{byte(i)})
		ids = append(ids, fp.ID)
	}

	rng := rand.New(rand.NewSource(1))
	BuildMatchTree(gs, frame, 4, 5, 2, rng)

	test.That(t, len(frame.MatchTree), test.ShouldEqual, 2)
	for _, roots := range frame.MatchTree {
		seen := collectTreeIDs(roots)
		test.That(t, len(seen), test.ShouldEqual, len(ids))
		for _, id := range ids {
			_, ok := seen[id]
			test.That(t, ok, test.ShouldBeTrue)
		}
	}
}

func collectTreeIDs(nodes []*MatchTreeNode) map[int]struct{} {
	out := make(map[int]struct{})
	var walk func([]*MatchTreeNode)
	walk = func(ns []*MatchTreeNode) {
		for _, n := range ns {
			out[n.FeaturePointID] = struct{}{}
			walk(n.Children)
		}
	}
	walk(nodes)
	return out
}

func TestDescriptorDistanceUsesLandmarkClosestObservation(t *testing.T) {
	gs := NewGraphStore(Intrinsics{F: 400, CX: 320, CY: 240}, 10, logging.NewTestLogger(t))
	near := gs.AddFrame(spatial.Pose{Trans: spatial.Identity().Trans}, [3]float64{}, 0)
	far := gs.AddFrame(spatial.NewPose(spatial.Identity().Trans, spatial.Identity().Rot), [3]float64{}, 1)
	far.Pose.Trans.X = 1000
	query := gs.AddFrame(spatial.Identity(), [3]float64{}, 2)

	nearFp := gs.AddFeaturePoint(near, 320, 240, Descriptor{0x00})
	farFp := gs.AddFeaturePoint(far, 320, 240, Descriptor{0xff})
	l, err := gs.CreateLandmark(nearFp, 0)
	test.That(t, err, test.ShouldBeNil)
	gs.Link(l, farFp, 0)

	queryFp := gs.AddFeaturePoint(query, 320, 240, Descriptor{0x00})
	descriptorFrames := map[int]*Frame{near.ID: near, far.ID: far, query.ID: query}

	dist := descriptorDistance(gs, l.FeaturePoints[nearFp.ID], queryFp, descriptorFrames)
	test.That(t, dist, test.ShouldEqual, 0.0)
}
