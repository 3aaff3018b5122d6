// Package orientation assigns each refined keypoint a local,
// right-handed rotation frame via the eigendecomposition of a
// windowed structure tensor (component C7). Keypoints whose structure
// tensor is unstable (near-degenerate eigenvalues, vanishing gradient
// energy, or a weak corner score) are rejected rather than assigned a
// frame.
package orientation

import (
	"math"

	"github.com/rpankka/SIFT3D/internal/outcome"
	"github.com/rpankka/SIFT3D/internal/vec3"
	"github.com/rpankka/SIFT3D/keypoint"
	"github.com/rpankka/SIFT3D/pyramid"
	"github.com/rpankka/SIFT3D/volume"
	"gonum.org/v1/gonum/mat"
)

// Params controls the orientation window and stability thresholds,
// per spec §4.6.
type Params struct {
	SigFctr      float64 // ori_sig_fctr
	RadFctr      float64 // ori_rad_fctr
	GradThresh   float64 // ori_grad_thresh
	MaxEigRatio  float64 // max_eig_ratio
	CornerThresh float64 // corner_thresh
}

// DefaultParams returns spec §4.6/§6's defaults.
func DefaultParams() Params {
	return Params{
		SigFctr:      1.5,
		RadFctr:      3.0,
		GradThresh:   1e-10,
		MaxEigRatio:  0.90,
		CornerThresh: 0.5,
	}
}

// Validate reports a reportable-misuse error for corner_thresh outside [0,1].
func (p Params) Validate() error {
	if p.CornerThresh < 0 || p.CornerThresh > 1 {
		return errOutOfRange
	}
	return nil
}

var errOutOfRange = errorString("orientation: corner_thresh must be in [0,1]")

type errorString string

func (e errorString) Error() string { return string(e) }

// Assign computes kp.R in place from the windowed structure tensor of
// the GPyr volume at (kp.O, kp.S) around (kp.Xd,kp.Yd,kp.Zd). It
// returns outcome.Reject if any stability check of spec §4.6 fails,
// leaving kp.R untouched; callers must remove rejected keypoints from
// their store (package keypoint's Store.CompactRemove).
func Assign(g *pyramid.GPyr, kp *keypoint.Keypoint, p Params) outcome.Outcome {
	vol := g.At(kp.O, kp.S)
	sigma := p.SigFctr * kp.SdRel
	radius := sigma * p.RadFctr
	r2 := radius * radius

	var A vec3.Mat
	var gWin vec3.Vec

	xlo, xhi := boundsFor(kp.Xd, radius, vol.NX)
	ylo, yhi := boundsFor(kp.Yd, radius, vol.NY)
	zlo, zhi := boundsFor(kp.Zd, radius, vol.NZ)

	twoSigmaSq := 2 * sigma * sigma
	for x := xlo; x <= xhi; x++ {
		dx := float64(x) - kp.Xd
		for y := ylo; y <= yhi; y++ {
			dy := float64(y) - kp.Yd
			for z := zlo; z <= zhi; z++ {
				dz := float64(z) - kp.Zd
				d2 := dx*dx + dy*dy + dz*dz
				if d2 > r2 {
					continue
				}
				w := math.Exp(-d2 / twoSigmaSq)
				gx, gy, gz := volume.GradientAt(vol, x, y, z)
				g := vec3.Vec{X: gx, Y: gy, Z: gz}
				outerAccum(&A, w, g)
				gWin = vec3.Add(gWin, g)
			}
		}
	}

	if vec3.Norm2(gWin) < p.GradThresh {
		return outcome.Reject
	}

	sym := mat.NewSymDense(3, []float64{
		A[0][0], A[0][1], A[0][2],
		A[1][0], A[1][1], A[1][2],
		A[2][0], A[2][1], A[2][2],
	})
	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return outcome.Reject
	}
	valsAsc := es.Values(nil)
	if len(valsAsc) < 3 {
		return outcome.Reject
	}
	var vecs mat.Dense
	vecs.EigenvectorsSym(&es)

	// L[i] is the i-th largest eigenvalue; Q[i] its eigenvector,
	// taken from the ascending-order columns as Q[:, m-1-i].
	m := len(valsAsc)
	L := [3]float64{valsAsc[m-1], valsAsc[m-2], valsAsc[m-3]}
	for i := 0; i < 2; i++ {
		// A ratio near 1 means the two eigenvalues are nearly equal:
		// no single dominant axis, so the frame would be unstable.
		// Computed as the smaller over the larger (in [0,1]) so the
		// 0.90 threshold rejects near-degenerate pairs rather than
		// well-separated ones.
		if L[i] == 0 {
			return outcome.Reject
		}
		if math.Abs(L[i+1]/L[i]) > p.MaxEigRatio {
			return outcome.Reject
		}
	}

	var R vec3.Mat
	for i := 0; i < 2; i++ {
		col := m - 1 - i
		v := vec3.Vec{X: vecs.At(0, col), Y: vecs.At(1, col), Z: vecs.At(2, col)}
		d := vec3.Dot(gWin, v)
		denom := vec3.Norm(v) * vec3.Norm(gWin)
		if denom == 0 || math.Abs(d)/denom < p.CornerThresh {
			return outcome.Reject
		}
		if d < 0 {
			v = vec3.Scale(-1, v)
		}
		R.SetCol(i, v)
	}
	v2 := vec3.Cross(R.Col(0), R.Col(1))
	R.SetCol(2, v2)

	kp.R = R
	return outcome.Ok
}

// AssignAll runs Assign over every keypoint in store, compacting out
// rejections while preserving the relative order of survivors (spec
// §4.6, "stable compact").
func AssignAll(g *pyramid.GPyr, store *keypoint.Store, p Params) {
	reject := make([]bool, len(store.KPs))
	for i := range store.KPs {
		if Assign(g, &store.KPs[i], p) == outcome.Reject {
			reject[i] = true
		}
	}
	store.CompactRemove(reject)
}

func boundsFor(center, radius float64, n int) (lo, hi int) {
	lo = int(math.Floor(center - radius))
	hi = int(math.Ceil(center + radius))
	if lo < 1 {
		lo = 1
	}
	if hi > n-2 {
		hi = n - 2
	}
	return lo, hi
}

func outerAccum(A *vec3.Mat, w float64, g vec3.Vec) {
	A[0][0] += w * g.X * g.X
	A[0][1] += w * g.X * g.Y
	A[0][2] += w * g.X * g.Z
	A[1][0] += w * g.Y * g.X
	A[1][1] += w * g.Y * g.Y
	A[1][2] += w * g.Y * g.Z
	A[2][0] += w * g.Z * g.X
	A[2][1] += w * g.Z * g.Y
	A[2][2] += w * g.Z * g.Z
}
