package ba

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrIllPosed mirrors slam.ErrSolverIllPosed without importing the parent
// package (which imports ba), returned only in the degenerate case where a
// problem has no edges at all to anchor a synthetic vertex to.
var ErrIllPosed = errors.New("bundle adjustment problem has no edges to optimize")

const finiteDiffStep = 1e-6

// Problem is one bundle-adjustment graph: a set of pose and point vertices
// connected by reprojection edges, optimized by Schur-complement
// Levenberg-Marquardt (spec.md §4.5).
type Problem struct {
	Poses  []*PoseVertex
	Points []*PointVertex
	Edges  []*Edge
	Huber  HuberKernel

	poseIdx  map[int]*PoseVertex
	pointIdx map[int]*PointVertex
}

// NewProblem creates an empty problem with the standard Huber delta.
func NewProblem() *Problem {
	return &Problem{
		Huber:    HuberKernel{Delta: DefaultHuberDelta},
		poseIdx:  make(map[int]*PoseVertex),
		pointIdx: make(map[int]*PointVertex),
	}
}

// AddPose registers a pose vertex, replacing one with the same ID.
func (p *Problem) AddPose(v *PoseVertex) {
	if _, exists := p.poseIdx[v.ID]; !exists {
		p.Poses = append(p.Poses, v)
	}
	p.poseIdx[v.ID] = v
}

// AddPoint registers a point vertex, replacing one with the same ID.
func (p *Problem) AddPoint(v *PointVertex) {
	if _, exists := p.pointIdx[v.ID]; !exists {
		p.Points = append(p.Points, v)
	}
	p.pointIdx[v.ID] = v
}

// AddEdge appends a reprojection edge between an already-registered pose and
// point vertex.
func (p *Problem) AddEdge(e *Edge) {
	p.Edges = append(p.Edges, e)
}

// Result is the outcome of an Optimize call.
type Result struct {
	Iterations int
	FinalCost  float64
	Converged  bool
	// SyntheticPoseID is set when the solver had to free a pose vertex
	// the caller marked fixed, because otherwise nothing in the problem
	// was free to move (spec.md §4.5's ill-posed repair). Zero means no
	// repair was needed.
	SyntheticPoseID int
}

// Optimize runs up to maxIterations of Levenberg-Marquardt, eliminating
// point parameters via the Schur complement at each iteration so the
// reduced normal equations are solved only over pose parameters -- cheap
// when there are many more landmarks than poses, the typical shape of this
// problem. structureOnly additionally fixes every pose vertex for the
// duration of the solve. The BA orchestrator always passes false; its
// structure refinement passes fix poses through their Fixed flags instead.
func (p *Problem) Optimize(maxIterations int, structureOnly bool) (Result, error) {
	if len(p.Edges) == 0 {
		return Result{}, ErrIllPosed
	}

	if structureOnly {
		var forcedFree []*PoseVertex
		for _, v := range p.Poses {
			if !v.Fixed {
				forcedFree = append(forcedFree, v)
				v.Fixed = true
			}
		}
		defer func() {
			for _, v := range forcedFree {
				v.Fixed = false
			}
		}()
	}

	syntheticID := p.repairIllPosedness()
	p.assignParamIndices()

	lambda := 1e-3
	cost := p.chiSquare()
	result := Result{SyntheticPoseID: syntheticID}

	for iter := 0; iter < maxIterations; iter++ {
		result.Iterations = iter + 1
		H, b, points, ok := p.buildReducedSystem(lambda)
		if !ok {
			break
		}
		var poseDelta *mat.VecDense
		if H != nil {
			var err error
			poseDelta, err = solveSymmetric(H, b)
			if err != nil {
				lambda *= 10
				continue
			}
		}

		snapshot := p.snapshot()
		p.applyPoseDelta(poseDelta)
		p.applyPointDelta(points, poseDelta)

		newCost := p.chiSquare()
		if newCost < cost {
			improved := cost - newCost
			cost = newCost
			lambda = math.Max(lambda/10, 1e-12)
			if improved < 1e-9 {
				result.Converged = true
				break
			}
		} else {
			p.restore(snapshot)
			lambda *= 10
		}
	}
	result.FinalCost = cost
	return result, nil
}

// repairIllPosedness frees the pose vertex touched by the most edges when
// every pose and every point in the problem is fixed, which would
// otherwise leave nothing for the solver to adjust. It returns the freed
// vertex's ID, or 0 if no repair was necessary.
func (p *Problem) repairIllPosedness() int {
	for _, v := range p.Poses {
		if !v.Fixed {
			return 0
		}
	}
	for _, v := range p.Points {
		if !v.Fixed {
			return 0
		}
	}
	if len(p.Poses) == 0 {
		return 0
	}
	edgeCount := make(map[int]int)
	for _, e := range p.Edges {
		edgeCount[e.Pose.ID]++
	}
	var best *PoseVertex
	bestCount := -1
	for _, v := range p.Poses {
		if edgeCount[v.ID] > bestCount {
			bestCount = edgeCount[v.ID]
			best = v
		}
	}
	best.Fixed = false
	return best.ID
}

func (p *Problem) assignParamIndices() {
	idx := 0
	for _, v := range p.Poses {
		if v.Fixed {
			v.paramIdx = -1
			continue
		}
		v.paramIdx = idx
		idx += v.dims()
	}
	idx = 0
	for _, v := range p.Points {
		if v.Fixed {
			v.paramIdx = -1
			continue
		}
		v.paramIdx = idx
		idx += 3
	}
}

func (p *Problem) poseParamCount() int {
	n := 0
	for _, v := range p.Poses {
		n += v.dims()
	}
	return n
}

// pointMarginal holds the per-landmark data needed both to fold a point's
// contribution into the reduced pose system and, after the pose delta is
// known, to recover that point's own delta.
type pointMarginal struct {
	point   *PointVertex
	hppInv  *mat.Dense // 3x3
	bp      *mat.VecDense // 3x1, sign convention: solves Hpp*dp = bp - Hpq*dq
	contrib []edgeContribution
}

type edgeContribution struct {
	pose   *PoseVertex
	jPose  [][2]float64
	jPoint [][2]float64
	weight float64
}

// buildReducedSystem assembles H*dq = b over pose parameters only,
// marginalizing every free point analytically (spec.md §4.5's Schur
// complement).
func (p *Problem) buildReducedSystem(lambda float64) (*mat.SymDense, *mat.VecDense, []pointMarginal, bool) {
	n := p.poseParamCount()
	var H *mat.SymDense
	var b *mat.VecDense
	if n > 0 {
		H = mat.NewSymDense(n, nil)
		b = mat.NewVecDense(n, nil)
	}

	byPoint := make(map[int][]*Edge)
	var pointOrder []int
	for _, e := range p.Edges {
		if _, seen := byPoint[e.Point.ID]; !seen {
			pointOrder = append(pointOrder, e.Point.ID)
		}
		byPoint[e.Point.ID] = append(byPoint[e.Point.ID], e)
	}

	var marginals []pointMarginal
	for _, pid := range pointOrder {
		edges := byPoint[pid]
		point := edges[0].Point
		if point.Fixed {
			for _, e := range edges {
				if e.Pose.Fixed {
					continue
				}
				res, ok := e.residual()
				if !ok {
					continue
				}
				w := e.Weight * e.robustWeight(res)
				jPose := e.jacobianPose(finiteDiffStep)
				accumulateSelf(H, b, e.Pose.paramIdx, jPose, res, w)
			}
			continue
		}

		hpp := mat.NewSymDense(3, nil)
		bp := mat.NewVecDense(3, nil)
		var contribs []edgeContribution
		for _, e := range edges {
			res, ok := e.residual()
			if !ok {
				continue
			}
			w := e.Weight * e.robustWeight(res)
			jPoint := e.jacobianPoint(finiteDiffStep)
			accumulateSym3(hpp, bp, jPoint, res, w)
			var jPose [][2]float64
			if !e.Pose.Fixed {
				jPose = e.jacobianPose(finiteDiffStep)
			}
			contribs = append(contribs, edgeContribution{pose: e.Pose, jPose: jPose, jPoint: jPoint, weight: w})
		}
		for i := 0; i < 3; i++ {
			hpp.SetSym(i, i, hpp.At(i, i)+lambda)
		}
		var hppInv mat.Dense
		if err := hppInv.Inverse(hpp); err != nil {
			continue
		}

		for _, ci := range contribs {
			if ci.pose.Fixed {
				continue
			}
			hqp := crossBlock(ci.jPose, ci.jPoint, ci.weight) // dim(pose) x 3
			var tmp mat.Dense
			tmp.Mul(hqp, &hppInv) // dim(pose) x 3

			for _, cj := range contribs {
				if cj.pose.Fixed {
					continue
				}
				hpq := crossBlock(cj.jPose, cj.jPoint, cj.weight) // dim(pose) x 3
				var reduction mat.Dense
				reduction.Mul(&tmp, hpq.T())
				subtractInto(H, ci.pose.paramIdx, cj.pose.paramIdx, &reduction)
			}

			var reducedB mat.VecDense
			reducedB.MulVec(&tmp, bp)
			subtractVecInto(b, ci.pose.paramIdx, &reducedB)
		}

		marginals = append(marginals, pointMarginal{point: point, hppInv: &hppInv, bp: bp, contrib: contribs})
	}

	// Direct pose-pose contribution from edges whose point is fixed was
	// already folded in above via accumulateSelf; edges whose point is
	// free contribute to H only through the Schur reduction, plus their
	// own J_pose^T J_pose term which belongs in the reduced block too.
	for _, pid := range pointOrder {
		for _, e := range byPoint[pid] {
			if e.Pose.Fixed || e.Point.Fixed {
				continue
			}
			res, ok := e.residual()
			if !ok {
				continue
			}
			w := e.Weight * e.robustWeight(res)
			jPose := e.jacobianPose(finiteDiffStep)
			accumulateSelf(H, b, e.Pose.paramIdx, jPose, res, w)
		}
	}

	for i := 0; i < n; i++ {
		H.SetSym(i, i, H.At(i, i)+lambda)
	}
	if n == 0 && len(marginals) == 0 {
		return nil, nil, nil, false
	}
	return H, b, marginals, true
}

// robustWeight applies a Huber kernel with DefaultHuberDelta to an edge's
// residual.
func (e *Edge) robustWeight(res [2]float64) float64 {
	sqNorm := res[0]*res[0] + res[1]*res[1]
	return HuberKernel{Delta: DefaultHuberDelta}.Weight(sqNorm)
}

func accumulateSelf(H *mat.SymDense, b *mat.VecDense, baseIdx int, j [][2]float64, res [2]float64, w float64) {
	if baseIdx < 0 || len(j) == 0 {
		return
	}
	dims := len(j)
	for i := 0; i < dims; i++ {
		for k := i; k < dims; k++ {
			v := w * (j[i][0]*j[k][0] + j[i][1]*j[k][1])
			H.SetSym(baseIdx+i, baseIdx+k, H.At(baseIdx+i, baseIdx+k)+v)
		}
		grad := -w * (j[i][0]*res[0] + j[i][1]*res[1])
		b.SetVec(baseIdx+i, b.AtVec(baseIdx+i)+grad)
	}
}

func accumulateSym3(hpp *mat.SymDense, bp *mat.VecDense, j [][2]float64, res [2]float64, w float64) {
	if len(j) != 3 {
		return
	}
	for i := 0; i < 3; i++ {
		for k := i; k < 3; k++ {
			v := w * (j[i][0]*j[k][0] + j[i][1]*j[k][1])
			hpp.SetSym(i, k, hpp.At(i, k)+v)
		}
		grad := -w * (j[i][0]*res[0] + j[i][1]*res[1])
		bp.SetVec(i, bp.AtVec(i)+grad)
	}
}

// crossBlock returns the dim(jA) x 3 cross term sum_c w*jA[i][c]*jB[k][c].
func crossBlock(jA, jB [][2]float64, w float64) *mat.Dense {
	rows := len(jA)
	out := mat.NewDense(rows, 3, nil)
	if rows == 0 || len(jB) != 3 {
		return out
	}
	for i := 0; i < rows; i++ {
		for k := 0; k < 3; k++ {
			out.Set(i, k, w*(jA[i][0]*jB[k][0]+jA[i][1]*jB[k][1]))
		}
	}
	return out
}

func subtractInto(H *mat.SymDense, baseI, baseJ int, block *mat.Dense) {
	if baseI < 0 || baseJ < 0 {
		return
	}
	r, c := block.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			H.SetSym(baseI+i, baseJ+j, H.At(baseI+i, baseJ+j)-block.At(i, j))
		}
	}
}

func subtractVecInto(b *mat.VecDense, base int, v *mat.VecDense) {
	if base < 0 {
		return
	}
	n := v.Len()
	for i := 0; i < n; i++ {
		b.SetVec(base+i, b.AtVec(base+i)-v.AtVec(i))
	}
}

func solveSymmetric(H *mat.SymDense, b *mat.VecDense) (*mat.VecDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(H); !ok {
		return nil, errors.New("reduced system is not positive definite")
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, b); err != nil {
		return nil, err
	}
	return &x, nil
}

func (p *Problem) applyPoseDelta(delta *mat.VecDense) {
	for _, v := range p.Poses {
		if v.Fixed {
			continue
		}
		d := make([]float64, v.dims())
		for i := range d {
			d[i] = delta.AtVec(v.paramIdx + i)
		}
		v.retract(d)
	}
}

func (p *Problem) applyPointDelta(marginals []pointMarginal, poseDelta *mat.VecDense) {
	for _, m := range marginals {
		rhs := mat.NewVecDense(3, []float64{m.bp.AtVec(0), m.bp.AtVec(1), m.bp.AtVec(2)})
		for _, ci := range m.contrib {
			if ci.pose.Fixed || ci.pose.paramIdx < 0 {
				continue
			}
			dq := make([]float64, len(ci.jPose))
			for i := range dq {
				dq[i] = poseDelta.AtVec(ci.pose.paramIdx + i)
			}
			hpq := crossBlock(ci.jPose, ci.jPoint, ci.weight) // dim(pose) x 3
			var term mat.VecDense
			term.MulVec(hpq.T(), mat.NewVecDense(len(dq), dq))
			rhs.SubVec(rhs, &term)
		}
		var dp mat.VecDense
		dp.MulVec(m.hppInv, rhs)
		m.point.retract([]float64{dp.AtVec(0), dp.AtVec(1), dp.AtVec(2)})
	}
}

func (p *Problem) chiSquare() float64 {
	total := 0.0
	for _, e := range p.Edges {
		res, ok := e.residual()
		if !ok {
			continue
		}
		sqNorm := res[0]*res[0] + res[1]*res[1]
		w := e.Weight * e.robustWeight(res)
		total += w * sqNorm
	}
	return total
}

type stateSnapshot struct {
	poses  []poseState
	points []pointState
}
type poseState struct {
	v     *PoseVertex
	pose  [7]float64
}
type pointState struct {
	v     *PointVertex
	trans [3]float64
}

func (p *Problem) snapshot() stateSnapshot {
	var s stateSnapshot
	for _, v := range p.Poses {
		s.poses = append(s.poses, poseState{v: v, pose: [7]float64{
			v.Pose.Trans.X, v.Pose.Trans.Y, v.Pose.Trans.Z,
			v.Pose.Rot.Real, v.Pose.Rot.Imag, v.Pose.Rot.Jmag, v.Pose.Rot.Kmag,
		}})
	}
	for _, v := range p.Points {
		s.points = append(s.points, pointState{v: v, trans: [3]float64{v.Trans.X, v.Trans.Y, v.Trans.Z}})
	}
	return s
}

func (p *Problem) restore(s stateSnapshot) {
	for _, ps := range s.poses {
		ps.v.Pose.Trans.X, ps.v.Pose.Trans.Y, ps.v.Pose.Trans.Z = ps.pose[0], ps.pose[1], ps.pose[2]
		ps.v.Pose.Rot.Real, ps.v.Pose.Rot.Imag, ps.v.Pose.Rot.Jmag, ps.v.Pose.Rot.Kmag = ps.pose[3], ps.pose[4], ps.pose[5], ps.pose[6]
	}
	for _, pt := range s.points {
		pt.v.Trans.X, pt.v.Trans.Y, pt.v.Trans.Z = pt.trans[0], pt.trans[1], pt.trans[2]
	}
}
