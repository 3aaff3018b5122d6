// Package detect implements 3D+scale local-extremum detection over a
// DoG pyramid (component C5). Candidates are accepted into a
// caller-owned keypoint.Store with integer (xi,yi,zi,o,s) positions;
// sub-voxel refinement (package refine) runs afterward.
package detect

import (
	"math"

	"github.com/rpankka/SIFT3D/keypoint"
	"github.com/rpankka/SIFT3D/pyramid"
	"github.com/rpankka/SIFT3D/volume"
)

// Params controls extremum acceptance, per spec §4.4 and §9's
// "compile-time feature flags ... surfaced as runtime configuration"
// design note.
type Params struct {
	PeakThresh float64
	// CuboidExtrema extends the same-level comparison from the 6
	// face-neighbors (the default) to the full 26-neighborhood,
	// matching the source's CUBOID_EXTREMA compile-time flag.
	CuboidExtrema bool
}

// DefaultParams returns spec §6's default peak_thresh with
// CuboidExtrema off, matching the source's defaults (spec §9).
func DefaultParams() Params {
	return Params{PeakThresh: 0.03, CuboidExtrema: false}
}

// maxAbs returns the maximum absolute voxel value in v, used to
// compute peak_thresh_eff for each scanned level (spec §4.4).
func maxAbs(v *volume.Volume) float64 {
	var m float64
	for _, val := range v.Data {
		a := math.Abs(val)
		if a > m {
			m = a
		}
	}
	return m
}

// sameLevelOffsets returns the neighbor offsets compared within the
// center voxel's own level: the 6 face neighbors by default, or the
// full 26-neighborhood (3x3x3 minus center) when CuboidExtrema is set.
func sameLevelOffsets(cuboid bool) [][3]int {
	if !cuboid {
		return [][3]int{
			{-1, 0, 0}, {1, 0, 0},
			{0, -1, 0}, {0, 1, 0},
			{0, 0, -1}, {0, 0, 1},
		}
	}
	var offs [][3]int
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				offs = append(offs, [3]int{dx, dy, dz})
			}
		}
	}
	return offs
}

// Detect scans every interior DoG level except the first and last of
// each octave and appends accepted candidates to store. store is not
// reset first; callers that want a fresh detection pass should call
// store.Reset().
//
// Per spec §4.4, a voxel is accepted when |p| exceeds
// peak_thresh*max|DoG[o][s]| and p is strictly greater than, or
// strictly less than, every neighbor in a 3x3x3 window of the two
// adjacent scale levels (the literal (x±{0,1},y±{0,1},z±{0,1}) ranges
// of spec §4.4) together with the same-level neighbors of
// sameLevelOffsets. The spec's summary prose calls this a
// "26-neighborhood" and separately counts "18 voxels" across the two
// neighboring levels; taken literally, the explicit per-axis ranges
// it gives yield 27 voxels per neighboring level (including the
// axis-aligned voxel directly above/below the center), not 9. This
// implementation follows the explicit ranges rather than the summary
// count, since the ranges are the operative part of the definition.
func Detect(dog *pyramid.DoG, p Params, store *keypoint.Store) error {
	offs := sameLevelOffsets(p.CuboidExtrema)
	nDoG := dog.Params.NumDoGLevels()

	for oi := 0; oi < dog.NumOctaves; oi++ {
		o := dog.FirstOctave + oi
		for li := 1; li < nDoG-1; li++ {
			l := dog.Params.FirstLevel() + li
			cur := dog.At(o, l)
			below := dog.At(o, l-1)
			above := dog.At(o, l+1)
			threshEff := p.PeakThresh * maxAbs(cur)

			for x := 1; x < cur.NX-1; x++ {
				for y := 1; y < cur.NY-1; y++ {
					for z := 1; z < cur.NZ-1; z++ {
						val := cur.At(x, y, z, 0)
						if math.Abs(val) <= threshEff {
							continue
						}
						if isExtremum(val, cur, below, above, x, y, z, offs) {
							store.KPs = append(store.KPs, keypoint.Keypoint{
								O: o, S: l, Xi: x, Yi: y, Zi: z,
							})
						}
					}
				}
			}
		}
	}
	return nil
}

func isExtremum(val float64, cur, below, above *volume.Volume, x, y, z int, offs [][3]int) bool {
	isMax, isMin := true, true
	check := func(v float64) {
		if v >= val {
			isMax = false
		}
		if v <= val {
			isMin = false
		}
	}
	for _, o := range offs {
		check(cur.At(x+o[0], y+o[1], z+o[2], 0))
		if !isMax && !isMin {
			return false
		}
	}
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				check(below.At(x+dx, y+dy, z+dz, 0))
				check(above.At(x+dx, y+dy, z+dz, 0))
				if !isMax && !isMin {
					return false
				}
			}
		}
	}
	return isMax || isMin
}
