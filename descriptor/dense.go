package descriptor

import (
	"fmt"
	"math"

	"github.com/rpankka/SIFT3D/internal/gauss"
	"github.com/rpankka/SIFT3D/internal/outcome"
	"github.com/rpankka/SIFT3D/internal/vec3"
	"github.com/rpankka/SIFT3D/keypoint"
	"github.com/rpankka/SIFT3D/mesh"
	"github.com/rpankka/SIFT3D/orientation"
	"github.com/rpankka/SIFT3D/pyramid"
	"github.com/rpankka/SIFT3D/volume"
	"gorgonia.org/tensor"
)

// DenseParams controls dense (per-voxel) descriptor extraction, per
// spec §4.8.
type DenseParams struct {
	SigmaN      float64
	Sigma0      float64
	DescSigFctr float64
	NHistPerDim int // derives sigma_win and the per-voxel clamp; dense mode has one histogram per voxel
	TruncThresh float64
	Rotate      bool
	Orientation orientation.Params
}

// DefaultDenseParams returns spec §4.8/§9's defaults.
func DefaultDenseParams() DenseParams {
	const nHistPerDim = 4
	descNumel := nHistPerDim * nHistPerDim * nHistPerDim * mesh.NBins
	return DenseParams{
		SigmaN:      1.15,
		Sigma0:      1.6,
		DescSigFctr: 5 * math.Sqrt2,
		NHistPerDim: nHistPerDim,
		TruncThresh: 0.2 * 128 / float64(descNumel),
		Rotate:      false,
		Orientation: orientation.DefaultParams(),
	}
}

// Tensor wraps v (which must carry mesh.NBins channels) in a
// gorgonia.org/tensor.Dense view over the same backing slice, for
// interop with downstream tensor-based consumers. The view shares
// storage with v; mutating one mutates the other.
func Tensor(v *volume.Volume) (*tensor.Dense, error) {
	if v.NC != mesh.NBins {
		return nil, fmt.Errorf("descriptor: dense volume must carry %d channels, got %d", mesh.NBins, v.NC)
	}
	return tensor.New(tensor.WithShape(v.NX, v.NY, v.NZ, v.NC), tensor.WithBacking(v.Data)), nil
}

// BuildDense computes the dense per-voxel descriptor volume of spec
// §4.8 from a single-channel source volume. The returned volume
// carries mesh.NBins channels per voxel, channel-minor (matching
// package volume's layout), ready to be wrapped via Tensor.
func BuildDense(base *volume.Volume, msh *mesh.Mesh, p DenseParams) (*volume.Volume, error) {
	if base.NC != 1 {
		return nil, fmt.Errorf("descriptor: dense mode requires a single-channel source, got nc=%d", base.NC)
	}

	smoothed := volume.New(base.NX, base.NY, base.NZ, 1)
	if s := gauss.BlurSigma(p.SigmaN, p.Sigma0); s > 0 {
		k := gauss.New(s)
		if err := volume.ApplySepFIR(base, smoothed, k.Coeffs); err != nil {
			return nil, err
		}
	} else {
		volume.CopyDims(base, smoothed)
		copy(smoothed.Data, base.Data)
	}

	out := volume.New(base.NX, base.NY, base.NZ, mesh.NBins)

	var synth *pyramid.GPyr
	if p.Rotate {
		synth = &pyramid.GPyr{
			Params:      pyramid.Params{NumKpLevels: 3},
			FirstOctave: 0,
			NumOctaves:  1,
			Levels:      [][]*volume.Volume{{smoothed}},
		}
	}

	for x := 1; x < smoothed.NX-1; x++ {
		for y := 1; y < smoothed.NY-1; y++ {
			for z := 1; z < smoothed.NZ-1; z++ {
				R := vec3.Identity()
				if p.Rotate {
					kp := keypoint.Keypoint{
						O: 0, S: 0,
						Xi: x, Yi: y, Zi: z,
						Xd: float64(x), Yd: float64(y), Zd: float64(z),
						Sd: p.Sigma0, SdRel: p.Sigma0,
					}
					if orientation.Assign(synth, &kp, p.Orientation) == outcome.Ok {
						R = vec3.Mat(kp.R)
					}
				}

				gx, gy, gz := volume.GradientAt(smoothed, x, y, z)
				g := vec3.Vec{X: gx, Y: gy, Z: gz}
				gmag := vec3.Norm(g)
				if gmag == 0 {
					continue
				}
				gRot := vec3.MulVec(R, g)
				face, alpha, beta, gamma, _, err := msh.BaryLookup(gRot)
				if err != nil {
					continue
				}
				f := &msh.Faces[face]
				out.Set(x, y, z, f.Idx[0], out.At(x, y, z, f.Idx[0])+gmag*alpha)
				out.Set(x, y, z, f.Idx[1], out.At(x, y, z, f.Idx[1])+gmag*beta)
				out.Set(x, y, z, f.Idx[2], out.At(x, y, z, f.Idx[2])+gmag*gamma)
			}
		}
	}

	sigmaWin := p.Sigma0 * p.DescSigFctr / float64(p.NHistPerDim)
	if sigmaWin > 0 {
		blurred := volume.New(out.NX, out.NY, out.NZ, out.NC)
		k := gauss.New(sigmaWin)
		if err := volume.ApplySepFIR(out, blurred, k.Coeffs); err != nil {
			return nil, err
		}
		out = blurred
	}

	postProcessDense(out, base, p)
	return out, nil
}

// postProcessDense applies spec §4.8's per-voxel refine -> L2-normalize
// -> clamp -> L2-normalize -> scale-by-source-intensity sequence in
// place. "Refine" here is the clamp/renormalize pass itself (no
// separate sub-voxel step applies to a per-voxel dense histogram);
// "source intensity" is the original, unsmoothed base volume per spec
// §4.8's final line.
func postProcessDense(out *volume.Volume, base *volume.Volume, p DenseParams) {
	clamp := p.TruncThresh * float64(p.NHistPerDim*p.NHistPerDim*p.NHistPerDim)
	bin := make([]float64, mesh.NBins)
	for x := 0; x < out.NX; x++ {
		for y := 0; y < out.NY; y++ {
			for z := 0; z < out.NZ; z++ {
				for c := 0; c < mesh.NBins; c++ {
					bin[c] = out.At(x, y, z, c)
				}
				if !l2Normalize(bin) {
					for c := range bin {
						bin[c] = 0
					}
				} else {
					for c := range bin {
						if bin[c] > clamp {
							bin[c] = clamp
						} else if bin[c] < -clamp {
							bin[c] = -clamp
						}
					}
					l2Normalize(bin)
				}
				intensity := base.At(x, y, z, 0)
				for c := 0; c < mesh.NBins; c++ {
					out.Set(x, y, z, c, bin[c]*intensity)
				}
			}
		}
	}
}
