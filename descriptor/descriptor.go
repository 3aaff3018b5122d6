// Package descriptor builds rotation-aligned icosahedral gradient
// histogram descriptors for oriented keypoints (component C8), and
// persists them in the spec's flat CSV layout. The dense, per-voxel
// variant (component C9) lives in dense.go.
package descriptor

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/rpankka/SIFT3D/internal/outcome"
	"github.com/rpankka/SIFT3D/internal/vec3"
	"github.com/rpankka/SIFT3D/keypoint"
	"github.com/rpankka/SIFT3D/mesh"
	"github.com/rpankka/SIFT3D/pyramid"
	"github.com/rpankka/SIFT3D/volume"
)

// Params controls descriptor window sizing and normalization, per
// spec §4.7.
type Params struct {
	SigFctr     float64 // desc_sig_fctr, 5*sqrt(2)
	RadFctr     float64 // desc_rad_fctr, 2.0
	NHistPerDim int     // NHIST_PER_DIM, 4
	TruncThresh float64 // trunc_thresh, 0.2*128/DESC_NUMEL
}

// DefaultParams returns spec §3/§4.7/§9's defaults.
func DefaultParams() Params {
	const nHistPerDim = 4
	descNumel := nHistPerDim * nHistPerDim * nHistPerDim * mesh.NBins
	return Params{
		SigFctr:     5 * math.Sqrt2,
		RadFctr:     2.0,
		NHistPerDim: nHistPerDim,
		TruncThresh: 0.2 * 128 / float64(descNumel),
	}
}

// Descriptor is a NHistPerDim^3 grid of icosahedral histograms
// attached to one keypoint, per spec §3.
type Descriptor struct {
	O           int
	Xd, Yd, Zd  float64
	Sd          float64
	NHistPerDim int
	// Bins is laid out in (x,y,z) spatial-cell major order, then
	// orientation-bin order, matching the persisted CSV column order
	// of spec §6: bin(ix,iy,iz,k) at index ((ix*n+iy)*n+iz)*mesh.NBins+k.
	Bins []float64
}

func (d *Descriptor) binIndex(ix, iy, iz, k int) int {
	n := d.NHistPerDim
	return ((ix*n+iy)*n+iz)*mesh.NBins + k
}

// Extract builds the descriptor for kp from the GPyr volume at
// (kp.O, kp.S), per spec §4.7. It returns outcome.Reject if the
// accumulated descriptor has zero energy (no voxel in the window
// contributed a usable gradient direction).
func Extract(g *pyramid.GPyr, msh *mesh.Mesh, kp keypoint.Keypoint, p Params) (*Descriptor, outcome.Outcome) {
	vol := g.At(kp.O, kp.S)
	n := p.NHistPerDim

	sigmaD := kp.SdRel * p.SigFctr
	rd := p.RadFctr * sigmaD
	wd := rd / math.Sqrt2
	hd := wd / 2
	beta := float64(n) / wd

	d := &Descriptor{O: kp.O, Xd: kp.Xd, Yd: kp.Yd, Zd: kp.Zd, Sd: kp.Sd, NHistPerDim: n}
	d.Bins = make([]float64, n*n*n*mesh.NBins)

	r2 := rd * rd
	twoSigD2 := 2 * sigmaD * sigmaD
	R := vec3.Mat(kp.R)

	xlo, xhi := windowBounds(kp.Xd, rd, vol.NX)
	ylo, yhi := windowBounds(kp.Yd, rd, vol.NY)
	zlo, zhi := windowBounds(kp.Zd, rd, vol.NZ)

	for x := xlo; x <= xhi; x++ {
		for y := ylo; y <= yhi; y++ {
			for z := zlo; z <= zhi; z++ {
				vim := vec3.Vec{
					X: float64(x) + 0.5 - kp.Xd,
					Y: float64(y) + 0.5 - kp.Yd,
					Z: float64(z) + 0.5 - kp.Zd,
				}
				dist2 := vec3.Norm2(vim)
				if dist2 > r2 {
					continue
				}
				vkp := vec3.MulVec(R, vim)
				bx := (vkp.X + hd) * beta
				by := (vkp.Y + hd) * beta
				bz := (vkp.Z + hd) * beta
				if bx < 0 || bx >= float64(n) || by < 0 || by >= float64(n) || bz < 0 || bz >= float64(n) {
					continue
				}

				gx, gy, gz := volume.GradientAt(vol, x, y, z)
				grad := vec3.Vec{X: gx, Y: gy, Z: gz}
				gmag := vec3.Norm(grad)
				if gmag == 0 {
					continue
				}
				gRot := vec3.MulVec(R, grad)
				face, alpha, beta2, gamma, _, err := msh.BaryLookup(gRot)
				if err != nil {
					continue
				}
				f := &msh.Faces[face]

				wSpatial := math.Exp(-dist2 / twoSigD2)
				total := gmag * wSpatial

				d.accumulateTrilinear(bx, by, bz, f, total, alpha, beta2, gamma)
			}
		}
	}

	return postProcess(d, p)
}

// accumulateTrilinear spreads total*{alpha,beta,gamma} across the 8
// surrounding spatial histogram cells via trilinear interpolation on
// the fractional parts of (bx,by,bz), skipping any corner that falls
// outside the [0,NHistPerDim) grid rather than renormalizing the
// remaining weight (spec §4.7 does not specify renormalization for
// boundary-truncated trilinear contributions).
func (d *Descriptor) accumulateTrilinear(bx, by, bz float64, f *mesh.Face, total, alpha, beta, gamma float64) {
	ix0, fx := int(math.Floor(bx)), bx-math.Floor(bx)
	iy0, fy := int(math.Floor(by)), by-math.Floor(by)
	iz0, fz := int(math.Floor(bz)), bz-math.Floor(bz)
	n := d.NHistPerDim

	for dx := 0; dx <= 1; dx++ {
		ix := ix0 + dx
		if ix < 0 || ix >= n {
			continue
		}
		wx := fx
		if dx == 0 {
			wx = 1 - fx
		}
		for dy := 0; dy <= 1; dy++ {
			iy := iy0 + dy
			if iy < 0 || iy >= n {
				continue
			}
			wy := fy
			if dy == 0 {
				wy = 1 - fy
			}
			for dz := 0; dz <= 1; dz++ {
				iz := iz0 + dz
				if iz < 0 || iz >= n {
					continue
				}
				wz := fz
				if dz == 0 {
					wz = 1 - fz
				}
				spatialW := wx * wy * wz
				if spatialW == 0 {
					continue
				}
				amt := total * spatialW
				d.Bins[d.binIndex(ix, iy, iz, f.Idx[0])] += amt * alpha
				d.Bins[d.binIndex(ix, iy, iz, f.Idx[1])] += amt * beta
				d.Bins[d.binIndex(ix, iy, iz, f.Idx[2])] += amt * gamma
			}
		}
	}
}

// postProcess applies spec §4.7's L2-normalize / clamp / renormalize
// sequence over the whole concatenated descriptor (spec §9's "combined
// norm" open question) and scales the output coordinates by 2^o.
func postProcess(d *Descriptor, p Params) (*Descriptor, outcome.Outcome) {
	if !l2Normalize(d.Bins) {
		return nil, outcome.Reject
	}
	for i, v := range d.Bins {
		if v > p.TruncThresh {
			d.Bins[i] = p.TruncThresh
		} else if v < -p.TruncThresh {
			d.Bins[i] = -p.TruncThresh
		}
	}
	if !l2Normalize(d.Bins) {
		return nil, outcome.Reject
	}

	scale := pow2(d.O)
	d.Xd *= scale
	d.Yd *= scale
	d.Zd *= scale
	return d, outcome.Ok
}

func l2Normalize(bins []float64) bool {
	var sumSq float64
	for _, v := range bins {
		sumSq += v * v
	}
	if sumSq == 0 {
		return false
	}
	norm := math.Sqrt(sumSq)
	for i := range bins {
		bins[i] /= norm
	}
	return true
}

func windowBounds(center, radius float64, n int) (lo, hi int) {
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

func pow2(o int) float64 {
	if o >= 0 {
		return float64(int(1) << uint(o))
	}
	v := 1.0
	for i := 0; i < -o; i++ {
		v /= 2
	}
	return v
}

// WriteCSV writes one row per descriptor: NHistPerDim^3*mesh.NBins bin
// columns in (x,y,z) spatial-cell-major, then orientation-bin order,
// matching spec §6's descriptor file format.
func WriteCSV(w io.Writer, descs []*Descriptor) error {
	cw := csv.NewWriter(w)
	for _, d := range descs {
		row := make([]string, len(d.Bins))
		for i, v := range d.Bins {
			row[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads descriptors previously written by WriteCSV. nHistPerDim
// must match the value used at write time since the bin count alone
// does not disambiguate NHistPerDim from mesh.NBins.
func ReadCSV(r io.Reader, nHistPerDim int) ([]*Descriptor, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	want := nHistPerDim * nHistPerDim * nHistPerDim * mesh.NBins
	out := make([]*Descriptor, 0, len(rows))
	for i, row := range rows {
		if len(row) != want {
			return nil, fmt.Errorf("descriptor: row %d has %d columns, want %d", i, len(row), want)
		}
		d := &Descriptor{NHistPerDim: nHistPerDim, Bins: make([]float64, want)}
		for j, cell := range row {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("descriptor: row %d column %d: %w", i, j, err)
			}
			d.Bins[j] = v
		}
		out = append(out, d)
	}
	return out, nil
}

// GzipWriter and GzipReader mirror package keypoint's gzip wrappers.
func GzipWriter(w io.Writer) *gzip.Writer { return gzip.NewWriter(w) }
func GzipReader(r io.Reader) (*gzip.Reader, error) { return gzip.NewReader(r) }
