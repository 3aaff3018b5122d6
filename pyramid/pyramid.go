// Package pyramid builds the Gaussian and difference-of-Gaussian
// scale-space pyramids (components C3 and C4 of the spec): a 2D grid
// of volumes indexed by (octave, level), with per-level scale
// bookkeeping and precomputed 1D Gaussian kernels shared across
// octaves.
package pyramid

import (
	"fmt"
	"math"

	"github.com/rpankka/SIFT3D/internal/gauss"
	"github.com/rpankka/SIFT3D/volume"
)

// Params controls pyramid shape. It mirrors the tunables of spec §6
// that affect pyramid geometry; the remaining parameters (peak/corner
// thresholds, nn_thresh) live with the consumers that use them.
type Params struct {
	FirstOctave int
	NumOctaves  int // -1 means auto, per spec §3
	NumKpLevels int
	SigmaN      float64
	Sigma0      float64
}

// DefaultParams returns the spec §6 defaults.
func DefaultParams() Params {
	return Params{
		FirstOctave: 0,
		NumOctaves:  -1,
		NumKpLevels: 3,
		SigmaN:      1.15,
		Sigma0:      1.6,
	}
}

// Validate reports a reportable-misuse error (spec §7) if p is out of
// domain.
func (p Params) Validate() error {
	if p.NumKpLevels <= 0 {
		return fmt.Errorf("pyramid: num_kp_levels must be positive, got %d", p.NumKpLevels)
	}
	if p.NumOctaves <= 0 && p.NumOctaves != -1 {
		return fmt.Errorf("pyramid: num_octaves must be positive or -1, got %d", p.NumOctaves)
	}
	if p.SigmaN < 0 {
		return fmt.Errorf("pyramid: sigma_n must be >= 0, got %g", p.SigmaN)
	}
	if p.Sigma0 < 0 {
		return fmt.Errorf("pyramid: sigma0 must be >= 0, got %g", p.Sigma0)
	}
	return nil
}

// NumLevels returns the number of Gaussian levels per octave,
// num_kp_levels+3 per spec §3's invariant.
func (p Params) NumLevels() int { return p.NumKpLevels + 3 }

// FirstLevel and LastLevel bound the per-octave Gaussian level index
// range (inclusive). Levels are numbered so that level 0 is the
// sigma0 level, matching spec §4.2's "base octave ... blurred ... to
// sigma0" description; scale still grows as
// sigma0*2^(o+l/num_kp_levels) as required by spec §3.
func (p Params) FirstLevel() int { return 0 }
func (p Params) LastLevel() int  { return p.NumKpLevels + 2 }

// resolvedNumOctaves computes num_octaves from the base (octave 0)
// dimensions when p.NumOctaves == -1, per spec §3.
func (p Params) resolvedNumOctaves(nx, ny, nz int) int {
	if p.NumOctaves != -1 {
		return p.NumOctaves
	}
	minDim := nx
	if ny < minDim {
		minDim = ny
	}
	if nz < minDim {
		minDim = nz
	}
	return int(math.Floor(math.Log2(float64(minDim)))) - 3 - p.FirstOctave + 1
}

// localSigma returns the blur sigma of level l, expressed in that
// octave's own (downsampled) pixel coordinates: sigma0*2^(l/S). This
// is identical across every octave, which is what makes the Gaussian
// kernel set precomputable once per parameter change (spec §4.2).
func (p Params) localSigma(l int) float64 {
	return p.Sigma0 * math.Pow(2, float64(l)/float64(p.NumKpLevels))
}

// AbsoluteScale returns the scale assigned to level l of octave o per
// spec §3: sigma0*2^(o+l/num_kp_levels).
func (p Params) AbsoluteScale(o, l int) float64 {
	return p.Sigma0 * math.Pow(2, float64(o)+float64(l)/float64(p.NumKpLevels))
}

// Kernels is the set of precomputed 1D Gaussian kernels needed to
// advance from level l-1 to level l within an octave (index l-1, for
// l in [FirstLevel+1, LastLevel]), plus the kernel used to bring a
// freshly (re)sampled octave-seed volume from sigma_n to sigma0.
type Kernels struct {
	Seed  gauss.Kernel   // sigma_n(local) -> sigma0
	Step  []gauss.Kernel // Step[i] blurs level i to level i+1, i in [0, NumLevels()-1)
	Valid bool
}

// BuildKernels precomputes the kernel set for p. It should be called
// once whenever a shape-affecting parameter changes (spec §5).
func BuildKernels(p Params) (Kernels, error) {
	if err := p.Validate(); err != nil {
		return Kernels{}, err
	}
	var k Kernels
	localSigmaN := p.SigmaN * math.Pow(2, float64(-p.FirstOctave))
	if s := gauss.BlurSigma(localSigmaN, p.localSigma(p.FirstLevel())); s > 0 {
		k.Seed = gauss.New(s)
	}
	for l := p.FirstLevel() + 1; l <= p.LastLevel(); l++ {
		s := gauss.BlurSigma(p.localSigma(l-1), p.localSigma(l))
		if s <= 0 {
			return Kernels{}, fmt.Errorf("pyramid: non-increasing sigma between levels %d and %d", l-1, l)
		}
		k.Step = append(k.Step, gauss.New(s))
	}
	k.Valid = true
	return k, nil
}

// Level is one (octave, level) volume of a pyramid.
type Level struct {
	Octave, LevelIdx int
	Vol              *volume.Volume
}

// GPyr is the Gaussian pyramid: a 2D grid indexed [octave-firstOctave][level-firstLevel].
type GPyr struct {
	Params      Params
	FirstOctave int
	NumOctaves  int
	Levels      [][]*volume.Volume // Levels[oi][li]
}

// Octave returns the level volumes of octave o.
func (g *GPyr) Octave(o int) []*volume.Volume { return g.Levels[o-g.FirstOctave] }

// At returns the volume at (octave o, level l).
func (g *GPyr) At(o, l int) *volume.Volume { return g.Levels[o-g.FirstOctave][l-g.Params.FirstLevel()] }

// seedOctave produces the resampled base volume for the pyramid's
// first octave: upsampled (nearest) if FirstOctave<0, downsampled if
// FirstOctave>0, or the input unchanged if FirstOctave==0.
func seedOctave(base *volume.Volume, firstOctave int) (*volume.Volume, error) {
	switch {
	case firstOctave == 0:
		return volume.Clone(base), nil
	case firstOctave > 0:
		cur := base
		for i := 0; i < firstOctave; i++ {
			next := volume.New(1, 1, 1, 1)
			if err := volume.Downsample2x(cur, next); err != nil {
				return nil, err
			}
			cur = next
		}
		return cur, nil
	default:
		return upsampleNearest(base, -firstOctave), nil
	}
}

// upsampleNearest doubles each axis `times` times using nearest
// neighbor replication, the inverse of volume.Downsample2x.
func upsampleNearest(src *volume.Volume, times int) *volume.Volume {
	cur := src
	for i := 0; i < times; i++ {
		next := volume.New(cur.NX*2, cur.NY*2, cur.NZ*2, cur.NC)
		for x := 0; x < next.NX; x++ {
			for y := 0; y < next.NY; y++ {
				for z := 0; z < next.NZ; z++ {
					for c := 0; c < cur.NC; c++ {
						next.Set(x, y, z, c, cur.At(x/2, y/2, z/2, c))
					}
				}
			}
		}
		cur = next
	}
	return cur
}

// BuildGPyr constructs the Gaussian pyramid from a single-channel
// base volume (spec §4.2). base is assumed to carry nc=1.
func BuildGPyr(base *volume.Volume, p Params, k Kernels) (*GPyr, error) {
	if base.NC != 1 {
		return nil, fmt.Errorf("pyramid: base volume must be single-channel, got nc=%d", base.NC)
	}
	if !k.Valid {
		return nil, fmt.Errorf("pyramid: kernels not built")
	}
	numOctaves := p.resolvedNumOctaves(base.NX, base.NY, base.NZ)
	if numOctaves <= 0 {
		return nil, fmt.Errorf("pyramid: resolved num_octaves=%d is not positive", numOctaves)
	}
	nLevels := p.NumLevels()

	g := &GPyr{Params: p, FirstOctave: p.FirstOctave, NumOctaves: numOctaves}
	g.Levels = make([][]*volume.Volume, numOctaves)

	seed, err := seedOctave(base, p.FirstOctave)
	if err != nil {
		return nil, err
	}

	for oi := 0; oi < numOctaves; oi++ {
		o := p.FirstOctave + oi
		levels := make([]*volume.Volume, nLevels)

		var level0 *volume.Volume
		if oi == 0 {
			level0 = volume.New(1, 1, 1, 1)
			if k.Seed.Radius > 0 {
				if err := volume.ApplySepFIR(seed, level0, k.Seed.Coeffs); err != nil {
					return nil, err
				}
			} else {
				level0 = volume.Clone(seed)
			}
		} else {
			prevTop := g.Levels[oi-1][p.NumKpLevels-p.FirstLevel()]
			level0 = volume.New(1, 1, 1, 1)
			if err := volume.Downsample2x(prevTop, level0); err != nil {
				return nil, err
			}
		}
		level0.Scale = p.AbsoluteScale(o, p.FirstLevel())
		levels[0] = level0

		for li := 1; li < nLevels; li++ {
			l := p.FirstLevel() + li
			kern := k.Step[li-1]
			lvl := volume.New(1, 1, 1, 1)
			if err := volume.ApplySepFIR(levels[li-1], lvl, kern.Coeffs); err != nil {
				return nil, err
			}
			lvl.Scale = p.AbsoluteScale(o, l)
			levels[li] = lvl
		}
		g.Levels[oi] = levels
	}
	return g, nil
}

// DoG is the difference-of-Gaussian pyramid: one fewer level per
// octave than the source GPyr (spec §3, §4.3).
type DoG struct {
	Params      Params
	FirstOctave int
	NumOctaves  int
	Levels      [][]*volume.Volume
}

// At returns the DoG volume at (octave o, level l), l in
// [FirstLevel, LastLevel-1].
func (d *DoG) At(o, l int) *volume.Volume {
	return d.Levels[o-d.FirstOctave][l-d.Params.FirstLevel()]
}

// NumDoGLevels returns the number of DoG levels per octave.
func (p Params) NumDoGLevels() int { return p.NumKpLevels + 2 }

// BuildDoG computes dog[o][l] = gpyr[o][l+1] - gpyr[o][l] for every
// octave and level (spec §4.3). The only failure mode is allocation
// failure, which in Go surfaces as a panic rather than an error; like
// the rest of this package, BuildDoG returns an error only for
// dimension mismatches that would indicate a logic error upstream.
func BuildDoG(g *GPyr) (*DoG, error) {
	d := &DoG{Params: g.Params, FirstOctave: g.FirstOctave, NumOctaves: g.NumOctaves}
	d.Levels = make([][]*volume.Volume, g.NumOctaves)
	nDoG := g.Params.NumDoGLevels()
	for oi := range g.Levels {
		levels := make([]*volume.Volume, nDoG)
		for li := 0; li < nDoG; li++ {
			dst := volume.New(1, 1, 1, 1)
			if err := volume.Subtract(g.Levels[oi][li+1], g.Levels[oi][li], dst); err != nil {
				return nil, err
			}
			dst.Scale = g.Levels[oi][li].Scale
			levels[li] = dst
		}
		d.Levels[oi] = levels
	}
	return d, nil
}
