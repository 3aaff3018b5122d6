package volume

import (
	"math"
	"testing"
)

func TestResizeIdempotent(t *testing.T) {
	v := New(4, 4, 4, 1)
	v.Set(1, 1, 1, 0, 7)
	Resize(v, 4, 4, 4, 1) // same dims: no-op, contents preserved
	if v.At(1, 1, 1, 0) != 7 {
		t.Fatalf("idempotent resize should not clear contents")
	}
	Resize(v, 2, 2, 2, 1) // different dims: reallocates
	if v.At(1, 1, 1, 0) != 0 {
		t.Fatalf("resized volume should be zeroed")
	}
}

func TestSubtractShapeMismatch(t *testing.T) {
	a := New(4, 4, 4, 1)
	b := New(3, 4, 4, 1)
	dst := New(1, 1, 1, 1)
	if err := Subtract(a, b, dst); err == nil {
		t.Fatalf("expected shape mismatch error")
	}
}

func TestSubtract(t *testing.T) {
	a := New(2, 2, 2, 1)
	b := New(2, 2, 2, 1)
	for i := range a.Data {
		a.Data[i] = float64(i)
		b.Data[i] = 1
	}
	dst := New(1, 1, 1, 1)
	if err := Subtract(a, b, dst); err != nil {
		t.Fatal(err)
	}
	for i, v := range dst.Data {
		if v != float64(i)-1 {
			t.Errorf("dst[%d] = %v, want %v", i, v, float64(i)-1)
		}
	}
}

func TestDownsample2x(t *testing.T) {
	src := New(4, 4, 4, 1)
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 4; z++ {
				src.Set(x, y, z, 0, float64(x+y+z))
			}
		}
	}
	dst := New(1, 1, 1, 1)
	if err := Downsample2x(src, dst); err != nil {
		t.Fatal(err)
	}
	if dst.NX != 2 || dst.NY != 2 || dst.NZ != 2 {
		t.Fatalf("unexpected dims %d %d %d", dst.NX, dst.NY, dst.NZ)
	}
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			for z := 0; z < 2; z++ {
				want := src.At(2*x, 2*y, 2*z, 0)
				if got := dst.At(x, y, z, 0); got != want {
					t.Errorf("dst(%d,%d,%d)=%v, want %v", x, y, z, got, want)
				}
			}
		}
	}
}

func TestGradientAtLinearField(t *testing.T) {
	// f(x,y,z) = 2x + 3y + 5z has constant gradient (2,3,5).
	v := New(6, 6, 6, 1)
	for x := 0; x < 6; x++ {
		for y := 0; y < 6; y++ {
			for z := 0; z < 6; z++ {
				v.Set(x, y, z, 0, 2*float64(x)+3*float64(y)+5*float64(z))
			}
		}
	}
	gx, gy, gz := GradientAt(v, 3, 3, 3)
	if math.Abs(gx-2) > 1e-9 || math.Abs(gy-3) > 1e-9 || math.Abs(gz-5) > 1e-9 {
		t.Fatalf("gradient = (%v,%v,%v), want (2,3,5)", gx, gy, gz)
	}
}

func TestApplySepFIRPreservesConstant(t *testing.T) {
	v := New(5, 5, 5, 1)
	for i := range v.Data {
		v.Data[i] = 4.0
	}
	kernel := []float64{0.25, 0.5, 0.25}
	dst := New(1, 1, 1, 1)
	if err := ApplySepFIR(v, dst, kernel); err != nil {
		t.Fatal(err)
	}
	for i, got := range dst.Data {
		if math.Abs(got-4.0) > 1e-9 {
			t.Errorf("dst[%d] = %v, want 4 (constant field preserved by unit-sum kernel)", i, got)
		}
	}
}

func TestApplySepFIRRejectsEvenKernel(t *testing.T) {
	v := New(3, 3, 3, 1)
	dst := New(1, 1, 1, 1)
	if err := ApplySepFIR(v, dst, []float64{0.5, 0.5}); err == nil {
		t.Fatalf("expected error for even-length kernel")
	}
}
