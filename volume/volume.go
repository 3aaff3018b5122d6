// Package volume implements the image-algebra collaborator contract
// of spec §6: a single-channel (or, for the dense descriptor mode,
// fixed multi-channel) 3D scalar field with separable FIR convolution,
// subtraction, 2x decimation, and central-difference gradients.
//
// This is deliberately the least interesting package in the module —
// spec §1 places image I/O, resampling, and convolution primitives
// out of scope for the detection core, treating them as an external
// "image algebra" library. The implementation here exists so the rest
// of the pipeline has a concrete collaborator to compile and test
// against; it favors a flat, strided []float64 backing (channel-minor,
// matching the dense descriptor volume's layout in package
// descriptor) over a shaped tensor type, since every hot loop in this
// module indexes by explicit (x,y,z[,c]) rather than by arbitrary
// rank, and reflection-based indexing has no place in that loop.
package volume

import "fmt"

// Volume is a 3D scalar (or fixed-channel) field.
type Volume struct {
	NX, NY, NZ, NC int
	Scale          float64
	Data           []float64
}

// New allocates a zeroed volume of the given dimensions and channel
// count.
func New(nx, ny, nz, nc int) *Volume {
	v := &Volume{}
	Resize(v, nx, ny, nz, nc)
	return v
}

// index returns the flat offset of voxel (x,y,z), channel c.
func (v *Volume) index(x, y, z, c int) int {
	return ((x*v.NY+y)*v.NZ+z)*v.NC + c
}

// At returns the value of voxel (x,y,z) on channel c (0 for
// single-channel volumes).
func (v *Volume) At(x, y, z, c int) float64 {
	return v.Data[v.index(x, y, z, c)]
}

// Set sets the value of voxel (x,y,z) on channel c.
func (v *Volume) Set(x, y, z, c int, val float64) {
	v.Data[v.index(x, y, z, c)] = val
}

// InBounds reports whether (x,y,z) is within the volume.
func (v *Volume) InBounds(x, y, z int) bool {
	return x >= 0 && x < v.NX && y >= 0 && y < v.NY && z >= 0 && z < v.NZ
}

// Resize reallocates v's backing storage to the given dimensions if
// they differ from v's current dimensions, zeroing the contents.
// Resize is idempotent: calling it again with the same dimensions is
// a no-op on the backing slice (though contents are not re-zeroed in
// that case, matching §5's "safe to call when no image is set").
func Resize(v *Volume, nx, ny, nz, nc int) {
	n := nx * ny * nz * nc
	if v.NX == nx && v.NY == ny && v.NZ == nz && v.NC == nc && len(v.Data) == n {
		return
	}
	v.NX, v.NY, v.NZ, v.NC = nx, ny, nz, nc
	v.Data = make([]float64, n)
}

// CopyDims resizes dst to match src's dimensions, without copying
// voxel data.
func CopyDims(src, dst *Volume) {
	Resize(dst, src.NX, src.NY, src.NZ, src.NC)
	dst.Scale = src.Scale
}

// Zero sets every voxel of v to 0, preserving dimensions.
func Zero(v *Volume) {
	for i := range v.Data {
		v.Data[i] = 0
	}
}

// Clone returns a deep copy of v.
func Clone(v *Volume) *Volume {
	dst := New(v.NX, v.NY, v.NZ, v.NC)
	dst.Scale = v.Scale
	copy(dst.Data, v.Data)
	return dst
}

// checkSameShape returns an error if a and b do not have identical
// dimensions, used by Subtract and similar voxel-wise operators.
func checkSameShape(a, b *Volume) error {
	if a.NX != b.NX || a.NY != b.NY || a.NZ != b.NZ || a.NC != b.NC {
		return fmt.Errorf("volume: shape mismatch: (%d,%d,%d,%d) vs (%d,%d,%d,%d)",
			a.NX, a.NY, a.NZ, a.NC, b.NX, b.NY, b.NZ, b.NC)
	}
	return nil
}

// Subtract computes dst = a - b voxel-wise. dst is resized to match
// a's dimensions. Subtract returns an error if a and b do not share
// dimensions.
func Subtract(a, b, dst *Volume) error {
	if err := checkSameShape(a, b); err != nil {
		return err
	}
	CopyDims(a, dst)
	for i := range a.Data {
		dst.Data[i] = a.Data[i] - b.Data[i]
	}
	return nil
}

// Downsample2x decimates src by a factor of 2 along each axis using
// nearest-neighbor (stride-2) sampling, writing the result into dst.
// dst is resized to ceil(n/2) along each axis.
func Downsample2x(src, dst *Volume) error {
	nx, ny, nz := (src.NX+1)/2, (src.NY+1)/2, (src.NZ+1)/2
	Resize(dst, nx, ny, nz, src.NC)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				for c := 0; c < src.NC; c++ {
					dst.Set(x, y, z, c, src.At(2*x, 2*y, 2*z, c))
				}
			}
		}
	}
	return nil
}

// GradientAt returns the central-difference gradient of channel 0 of
// im at interior integer lattice point (x,y,z). Callers must ensure
// 1 <= x <= NX-2 (and similarly for y,z); GradientAt does not bounds
// check, matching the collaborator contract's "interior voxels" note
// in spec §3.
func GradientAt(im *Volume, x, y, z int) (gx, gy, gz float64) {
	gx = 0.5 * (im.At(x+1, y, z, 0) - im.At(x-1, y, z, 0))
	gy = 0.5 * (im.At(x, y+1, z, 0) - im.At(x, y-1, z, 0))
	gz = 0.5 * (im.At(x, y, z+1, 0) - im.At(x, y, z-1, 0))
	return gx, gy, gz
}

// ApplySepFIR convolves src with the 1D kernel separably along each
// of the three axes, writing the result into dst. dst is resized to
// match src. The kernel is treated as centered (length must be odd)
// and boundary voxels are handled by clamping to the nearest interior
// sample (replicate-edge padding), since the spec treats padding as
// part of this collaborator's concern (§1) without mandating a
// specific boundary policy.
func ApplySepFIR(src, dst *Volume, kernel []float64) error {
	if len(kernel)%2 == 0 {
		return fmt.Errorf("volume: kernel length %d must be odd", len(kernel))
	}
	half := len(kernel) / 2
	CopyDims(src, dst)

	tmp1 := New(src.NX, src.NY, src.NZ, src.NC)
	tmp2 := New(src.NX, src.NY, src.NZ, src.NC)

	// Pass 1: along X.
	for x := 0; x < src.NX; x++ {
		for y := 0; y < src.NY; y++ {
			for z := 0; z < src.NZ; z++ {
				for c := 0; c < src.NC; c++ {
					var acc float64
					for k := -half; k <= half; k++ {
						xs := clamp(x+k, src.NX)
						acc += kernel[k+half] * src.At(xs, y, z, c)
					}
					tmp1.Set(x, y, z, c, acc)
				}
			}
		}
	}
	// Pass 2: along Y.
	for x := 0; x < src.NX; x++ {
		for y := 0; y < src.NY; y++ {
			for z := 0; z < src.NZ; z++ {
				for c := 0; c < src.NC; c++ {
					var acc float64
					for k := -half; k <= half; k++ {
						ys := clamp(y+k, src.NY)
						acc += kernel[k+half] * tmp1.At(x, ys, z, c)
					}
					tmp2.Set(x, y, z, c, acc)
				}
			}
		}
	}
	// Pass 3: along Z, writing directly into dst.
	for x := 0; x < src.NX; x++ {
		for y := 0; y < src.NY; y++ {
			for z := 0; z < src.NZ; z++ {
				for c := 0; c < src.NC; c++ {
					var acc float64
					for k := -half; k <= half; k++ {
						zs := clamp(z+k, src.NZ)
						acc += kernel[k+half] * tmp2.At(x, y, zs, c)
					}
					dst.Set(x, y, z, c, acc)
				}
			}
		}
	}
	return nil
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
