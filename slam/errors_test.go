package slam

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	"go.viam.com/test"
)

func TestSentinelErrorsAreDistinctAndComparable(t *testing.T) {
	test.That(t, ErrDegenerateInitialization == ErrDegenerateInitialization, test.ShouldBeTrue)
	test.That(t, ErrSolverIllPosed.Error() != ErrNoReferenceFrames.Error(), test.ShouldBeTrue)
}

func TestWrapPreservesUnderlyingErrorForErrorsIs(t *testing.T) {
	wrapped := wrap(ErrMatchInvalid, "refining estimate")
	test.That(t, pkgerrors.Is(wrapped, ErrMatchInvalid), test.ShouldBeTrue)
	test.That(t, wrapped.Error(), test.ShouldEqual, "refining estimate: "+ErrMatchInvalid.Error())
}

func TestInvariantViolationErrorIncludesReason(t *testing.T) {
	v := &InvariantViolation{Reason: "two feature points from the same frame"}
	test.That(t, v.Error(), test.ShouldEqual, "slam invariant violation: two feature points from the same frame")
}

func TestPanicInvariantPanicsWithInvariantViolation(t *testing.T) {
	defer func() {
		r := recover()
		test.That(t, r, test.ShouldNotBeNil)
		_, ok := r.(*InvariantViolation)
		test.That(t, ok, test.ShouldBeTrue)
	}()
	panicInvariant("boom")
}
