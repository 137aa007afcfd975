package ba

import (
	"testing"

	"go.viam.com/test"
)

func TestHuberWeightInlierIsUnweighted(t *testing.T) {
	k := HuberKernel{Delta: 1.0}
	test.That(t, k.Weight(0.25), test.ShouldEqual, 1.0)
}

func TestHuberWeightDownweightsOutlier(t *testing.T) {
	k := HuberKernel{Delta: 1.0}
	w := k.Weight(4.0) // norm = 2, beyond delta
	test.That(t, w, test.ShouldEqual, 0.5)
}

func TestHuberWeightZeroDeltaDisablesKernel(t *testing.T) {
	k := HuberKernel{Delta: 0}
	test.That(t, k.Weight(100), test.ShouldEqual, 1.0)
}
