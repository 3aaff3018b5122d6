// Package match implements brute-force L2 nearest-neighbor matching
// between two descriptor sets (component C10), with Lowe's ratio test,
// an optional forward-backward consistency check, and an optional
// max-distance gate.
package match

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"github.com/rpankka/SIFT3D/descriptor"
)

// Params controls match acceptance, per spec §4.9 and §6's nn_thresh
// parameter.
type Params struct {
	NNThresh    float64 // nn_thresh, caller-specified, > 0
	ForwardBack bool
	MaxDist     float64 // max image-coordinate distance of a match; 0 disables the gate
}

// Matches holds, for each index in A, the matched index in B, or -1
// if unmatched. Its length always equals len(A), per spec §6.
type Matches []int

// Match runs brute-force L2 nearest-neighbor matching from A to B,
// per spec §4.9. Entries of the result are in descriptor-index order
// of A.
func Match(a, b []*descriptor.Descriptor, p Params) Matches {
	fwd := matchOneWay(a, b, p)
	if !p.ForwardBack {
		return fwd
	}
	back := matchOneWay(b, a, p)
	out := make(Matches, len(fwd))
	for i, j := range fwd {
		if j < 0 {
			out[i] = -1
			continue
		}
		if back[j] == i {
			out[i] = j
		} else {
			out[i] = -1
		}
	}
	return out
}

func matchOneWay(a, b []*descriptor.Descriptor, p Params) Matches {
	out := make(Matches, len(a))
	for i, da := range a {
		bestIdx, secondIdx := -1, -1
		bestSSD, secondSSD := math.Inf(1), math.Inf(1)
		for j, db := range b {
			ssd := ssdOf(da.Bins, db.Bins)
			switch {
			case ssd < bestSSD:
				secondSSD, secondIdx = bestSSD, bestIdx
				bestSSD, bestIdx = ssd, j
			case ssd < secondSSD:
				secondSSD, secondIdx = ssd, j
			}
		}
		out[i] = -1
		if bestIdx < 0 || secondIdx < 0 {
			continue
		}
		if secondSSD == 0 {
			continue
		}
		if bestSSD/secondSSD >= p.NNThresh*p.NNThresh {
			continue
		}
		if p.MaxDist > 0 {
			db := b[bestIdx]
			dx, dy, dz := da.Xd-db.Xd, da.Yd-db.Yd, da.Zd-db.Zd
			if math.Sqrt(dx*dx+dy*dy+dz*dz) > p.MaxDist {
				continue
			}
		}
		out[i] = bestIdx
	}
	return out
}

func ssdOf(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// Coords returns the matched (x,y,z) coordinate pairs for the two
// descriptor sides, in A's order, for the spec §6 match-pair file
// format: two n×3 coordinate matrices, only valid matches included.
func Coords(a, b []*descriptor.Descriptor, m Matches) (ca, cb [][3]float64) {
	for i, j := range m {
		if j < 0 {
			continue
		}
		ca = append(ca, [3]float64{a[i].Xd, a[i].Yd, a[i].Zd})
		cb = append(cb, [3]float64{b[j].Xd, b[j].Yd, b[j].Zd})
	}
	return ca, cb
}

// WriteCoordsCSV writes one side of a match-pair file: one row per
// coordinate triple, per spec §6's match-pair format.
func WriteCoordsCSV(w io.Writer, coords [][3]float64) error {
	cw := csv.NewWriter(w)
	for _, c := range coords {
		row := []string{
			strconv.FormatFloat(c[0], 'g', -1, 64),
			strconv.FormatFloat(c[1], 'g', -1, 64),
			strconv.FormatFloat(c[2], 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
