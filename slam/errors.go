package slam

import "github.com/pkg/errors"

// sentinelError is a comparable string-keyed error so errors.Is works without
// pulling in a registry; mirrors the small, local error values spec.md §7
// calls for ("Local to validator", "Fail fast; precondition violation", ...).
type sentinelError string

func (e sentinelError) Error() string { return string(e) }

func newSentinelError(msg string) error { return sentinelError(msg) }

// Errors from spec.md §7's error table. BehindCamera is declared in
// projection.go (ErrBehindCamera) since it is purely local to that
// component.
var (
	// ErrDegenerateInitialization is returned when a landmark would be
	// created from a feature point whose unprojected translation is exactly
	// zero -- a precondition violation upstream, not a recoverable runtime
	// condition.
	ErrDegenerateInitialization = newSentinelError("degenerate landmark initialization: translation is zero")

	// ErrSolverIllPosed would signal that every pose in a BA problem is
	// fixed; the bundle adjuster never actually returns this because it
	// repairs the condition instead of failing, by freeing one of the
	// problem's existing pose vertices (ba.Problem's repairIllPosedness). It
	// adds no synthetic pose or landmark. The sentinel is kept so a caller
	// bypassing the repair has something to check for.
	ErrSolverIllPosed = newSentinelError("bundle adjustment problem is ill-posed: every pose is fixed")

	// ErrNoReferenceFrames is Stage B's failure: fewer than
	// numKeyFrameMatches reference frames could be assembled even after
	// relaxing the angle/distance bounds.
	ErrNoReferenceFrames = newSentinelError("not enough reference frames for pose estimation")

	// ErrMatchInvalid is Stage F's failure: the full-refinement BA did not
	// pass validation.
	ErrMatchInvalid = newSentinelError("match invalid: final refinement failed validation")
)

// InvariantViolation is panicked, not returned, when graph store invariant
// L-1 cannot be repaired by deduplication (spec.md §7: "Fail fast; indicates
// upstream bug" / "the process is expected to abort").
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return "slam invariant violation: " + e.Reason
}

func panicInvariant(reason string) {
	panic(&InvariantViolation{Reason: reason})
}

// wrap is a thin alias kept so call sites read like the teacher's
// errors.Wrap(err, "doing X") idiom without an extra import at every site.
func wrap(err error, msg string) error { return errors.Wrap(err, msg) }
