// Package refine implements sub-voxel keypoint refinement (component
// C6): iterative adjustment of a candidate's (x,y,z,scale) position
// toward the true extremum of the DoG scale-space function, via
// either the spec's default "parabolic" per-axis estimator or an
// opt-in Newton step on the full scale-space Hessian.
package refine

import (
	"math"

	"github.com/rpankka/SIFT3D/internal/outcome"
	"github.com/rpankka/SIFT3D/keypoint"
	"github.com/rpankka/SIFT3D/pyramid"
	"github.com/rpankka/SIFT3D/volume"
	"gonum.org/v1/gonum/mat"
)

// Strategy selects the refinement update rule.
type Strategy int

const (
	// Parabolic computes each coordinate offset independently from a
	// 1D central-difference/curvature ratio (spec §4.5's default).
	// This is the source's unconditionally-enabled path; per spec
	// §9's open question, its denominator (D+ - D- + 2*D0) is not a
	// standard quadratic-fit curvature term, but is reproduced
	// verbatim rather than "corrected" to the textbook Newton form.
	Parabolic Strategy = iota
	// Newton solves the 4x4 scale-space Hessian system H*delta=-grad.
	Newton
)

// Params controls sub-voxel refinement.
type Params struct {
	Strategy Strategy
	MaxIters int
}

// DefaultParams returns spec §9's defaults: parabolic strategy, 5
// iterations.
func DefaultParams() Params { return Params{Strategy: Parabolic, MaxIters: 5} }

const clampEps = 1e-6

// Refine adjusts kp's (Xd,Yd,Zd,Sd) in place within the octave it was
// detected in, iterating up to p.MaxIters times. It returns
// outcome.Ok on success; Refine has no reject path of its own (spec
// §4.5 describes only iteration and clamping, with rejection
// deferred to later stages), so it returns outcome.Err only if the
// candidate's own (o,s) indices reference a level outside the DoG's
// allocated range, which indicates a caller bug rather than a normal
// per-keypoint failure.
func Refine(dog *pyramid.DoG, kp *keypoint.Keypoint, p Params) (outcome.Outcome, error) {
	o, l := kp.O, kp.S
	if l-1 < dog.Params.FirstLevel() || l+1 > dog.Params.LastLevel()-1 {
		return outcome.Err, nil
	}

	kp.Xd, kp.Yd, kp.Zd = float64(kp.Xi), float64(kp.Yi), float64(kp.Zi)
	kp.Sd = dog.At(o, l).Scale

	prevXi, prevYi, prevZi := kp.Xi, kp.Yi, kp.Zi

	for iter := 0; iter < p.MaxIters; iter++ {
		cur := dog.At(o, l)
		below := dog.At(o, l-1)
		above := dog.At(o, l+1)

		var dx, dy, dz, ds float64
		switch p.Strategy {
		case Newton:
			var singular bool
			dx, dy, dz, ds, singular = newtonStep(cur, below, above, kp.Xi, kp.Yi, kp.Zi)
			if singular {
				return outcome.Ok, nil
			}
		default:
			dx = parabolicOffset(cur.At(kp.Xi-1, kp.Yi, kp.Zi, 0), cur.At(kp.Xi+1, kp.Yi, kp.Zi, 0), cur.At(kp.Xi, kp.Yi, kp.Zi, 0))
			dy = parabolicOffset(cur.At(kp.Xi, kp.Yi-1, kp.Zi, 0), cur.At(kp.Xi, kp.Yi+1, kp.Zi, 0), cur.At(kp.Xi, kp.Yi, kp.Zi, 0))
			dz = parabolicOffset(cur.At(kp.Xi, kp.Yi, kp.Zi-1, 0), cur.At(kp.Xi, kp.Yi, kp.Zi+1, 0), cur.At(kp.Xi, kp.Yi, kp.Zi, 0))
			ds = parabolicOffset(below.At(kp.Xi, kp.Yi, kp.Zi, 0), above.At(kp.Xi, kp.Yi, kp.Zi, 0), cur.At(kp.Xi, kp.Yi, kp.Zi, 0))
		}

		kp.Xd += dx
		kp.Yd += dy
		kp.Zd += dz
		kp.Sd *= math.Pow(2, ds/float64(dog.Params.NumKpLevels))

		clamp(&kp.Xd, 1, float64(cur.NX-2)-clampEps)
		clamp(&kp.Yd, 1, float64(cur.NY-2)-clampEps)
		clamp(&kp.Zd, 1, float64(cur.NZ-2)-clampEps)
		clampScale(&kp.Sd, below.Scale, above.Scale)

		kp.Xi = int(math.Floor(kp.Xd))
		kp.Yi = int(math.Floor(kp.Yd))
		kp.Zi = int(math.Floor(kp.Zd))

		if kp.Xi == prevXi && kp.Yi == prevYi && kp.Zi == prevZi {
			break
		}
		prevXi, prevYi, prevZi = kp.Xi, kp.Yi, kp.Zi
	}

	kp.SdRel = kp.Sd * math.Pow(2, float64(-o))
	return outcome.Ok, nil
}

// parabolicOffset implements spec §4.5's default estimator:
// -0.5*(Dplus-Dminus)/(Dplus-Dminus+2*D0).
func parabolicOffset(dMinus, dPlus, d0 float64) float64 {
	num := dPlus - dMinus
	denom := num + 2*d0
	if denom == 0 {
		return 0
	}
	return -0.5 * num / denom
}

func clamp(v *float64, lo, hi float64) {
	if *v < lo {
		*v = lo
	}
	if *v > hi {
		*v = hi
	}
}

func clampScale(v *float64, lo, hi float64) {
	if lo > hi {
		lo, hi = hi, lo
	}
	clamp(v, lo, hi)
}

// newtonStep solves the 4x4 scale-space Hessian system H*delta=-grad
// via gonum/mat, following the same Dense/Solve pattern used
// throughout gonum's numerical routines. It returns singular=true
// (leaving delta undefined) when H cannot be inverted, in which case
// the caller accepts the keypoint at its current estimate per spec
// §4.5.
func newtonStep(cur, below, above *volume.Volume, x, y, z int) (dx, dy, dz, ds float64, singular bool) {
	d0 := cur.At(x, y, z, 0)

	gx := 0.5 * (cur.At(x+1, y, z, 0) - cur.At(x-1, y, z, 0))
	gy := 0.5 * (cur.At(x, y+1, z, 0) - cur.At(x, y-1, z, 0))
	gz := 0.5 * (cur.At(x, y, z+1, 0) - cur.At(x, y, z-1, 0))
	gs := 0.5 * (above.At(x, y, z, 0) - below.At(x, y, z, 0))

	hxx := cur.At(x+1, y, z, 0) - 2*d0 + cur.At(x-1, y, z, 0)
	hyy := cur.At(x, y+1, z, 0) - 2*d0 + cur.At(x, y-1, z, 0)
	hzz := cur.At(x, y, z+1, 0) - 2*d0 + cur.At(x, y, z-1, 0)
	hss := above.At(x, y, z, 0) - 2*d0 + below.At(x, y, z, 0)

	hxy := 0.25 * (cur.At(x+1, y+1, z, 0) - cur.At(x+1, y-1, z, 0) - cur.At(x-1, y+1, z, 0) + cur.At(x-1, y-1, z, 0))
	hxz := 0.25 * (cur.At(x+1, y, z+1, 0) - cur.At(x+1, y, z-1, 0) - cur.At(x-1, y, z+1, 0) + cur.At(x-1, y, z-1, 0))
	hyz := 0.25 * (cur.At(x, y+1, z+1, 0) - cur.At(x, y+1, z-1, 0) - cur.At(x, y-1, z+1, 0) + cur.At(x, y-1, z-1, 0))
	hxs := 0.25 * (above.At(x+1, y, z, 0) - above.At(x-1, y, z, 0) - below.At(x+1, y, z, 0) + below.At(x-1, y, z, 0))
	hys := 0.25 * (above.At(x, y+1, z, 0) - above.At(x, y-1, z, 0) - below.At(x, y+1, z, 0) + below.At(x, y-1, z, 0))
	hzs := 0.25 * (above.At(x, y, z+1, 0) - above.At(x, y, z-1, 0) - below.At(x, y, z+1, 0) + below.At(x, y, z-1, 0))

	H := mat.NewDense(4, 4, []float64{
		hxx, hxy, hxz, hxs,
		hxy, hyy, hyz, hys,
		hxz, hyz, hzz, hzs,
		hxs, hys, hzs, hss,
	})
	grad := mat.NewVecDense(4, []float64{gx, gy, gz, gs})
	negGrad := mat.NewVecDense(4, nil)
	negGrad.ScaleVec(-1, grad)

	var delta mat.VecDense
	if err := delta.SolveVec(H, negGrad); err != nil {
		return 0, 0, 0, 0, true
	}
	return delta.AtVec(0), delta.AtVec(1), delta.AtVec(2), delta.AtVec(3), false
}
