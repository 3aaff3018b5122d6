package pyramid

import (
	"math"
	"testing"

	"github.com/rpankka/SIFT3D/volume"
)

func gaussianBall(n int) *volume.Volume {
	v := volume.New(n, n, n, 1)
	c := float64(n) / 2
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				dx, dy, dz := float64(x)-c, float64(y)-c, float64(z)-c
				v.Set(x, y, z, 0, math.Exp(-(dx*dx+dy*dy+dz*dz)/50))
			}
		}
	}
	return v
}

// TestNumOctavesAuto is scenario S6: a 128^3 input with num_octaves
// unspecified yields last_octave=4, num_octaves=5.
func TestNumOctavesAuto(t *testing.T) {
	p := DefaultParams()
	got := p.resolvedNumOctaves(128, 128, 128)
	if got != 5 {
		t.Fatalf("resolvedNumOctaves = %d, want 5", got)
	}
	lastOctave := p.FirstOctave + got - 1
	if lastOctave != 4 {
		t.Fatalf("last octave = %d, want 4", lastOctave)
	}
}

func TestShapeInvariants(t *testing.T) {
	p := DefaultParams()
	p.NumOctaves = 3
	k, err := BuildKernels(p)
	if err != nil {
		t.Fatal(err)
	}
	base := gaussianBall(32)
	g, err := BuildGPyr(base, p, k)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Levels) != 3 {
		t.Fatalf("got %d octaves, want 3", len(g.Levels))
	}
	wantLevels := p.NumLevels()
	for oi, levels := range g.Levels {
		if len(levels) != wantLevels {
			t.Fatalf("octave %d has %d levels, want %d", oi, len(levels), wantLevels)
		}
	}

	dog, err := BuildDoG(g)
	if err != nil {
		t.Fatal(err)
	}
	wantDoG := p.NumDoGLevels()
	for oi, levels := range dog.Levels {
		if len(levels) != wantDoG {
			t.Fatalf("dog octave %d has %d levels, want %d", oi, len(levels), wantDoG)
		}
	}
	if wantLevels != wantDoG+1 {
		t.Fatalf("gpyr levels (%d) should be one more than dog levels (%d)", wantLevels, wantDoG)
	}
}

func TestScaleAssignment(t *testing.T) {
	p := DefaultParams()
	p.NumOctaves = 2
	k, err := BuildKernels(p)
	if err != nil {
		t.Fatal(err)
	}
	base := gaussianBall(32)
	g, err := BuildGPyr(base, p, k)
	if err != nil {
		t.Fatal(err)
	}
	for o := p.FirstOctave; o < p.FirstOctave+g.NumOctaves; o++ {
		for l := p.FirstLevel(); l <= p.LastLevel(); l++ {
			want := p.AbsoluteScale(o, l)
			got := g.At(o, l).Scale
			if math.Abs(got-want) > 1e-9 {
				t.Errorf("scale(o=%d,l=%d) = %v, want %v", o, l, got, want)
			}
		}
	}
}

// TestIdempotence is property 7: building the pyramid twice on the
// same image with the same parameters yields identical outputs.
func TestIdempotence(t *testing.T) {
	p := DefaultParams()
	p.NumOctaves = 2
	k, err := BuildKernels(p)
	if err != nil {
		t.Fatal(err)
	}
	base := gaussianBall(24)
	g1, err := BuildGPyr(base, p, k)
	if err != nil {
		t.Fatal(err)
	}
	g2, err := BuildGPyr(base, p, k)
	if err != nil {
		t.Fatal(err)
	}
	for oi := range g1.Levels {
		for li := range g1.Levels[oi] {
			a, b := g1.Levels[oi][li], g2.Levels[oi][li]
			for i := range a.Data {
				if a.Data[i] != b.Data[i] {
					t.Fatalf("octave %d level %d voxel %d differs between runs", oi, li, i)
				}
			}
		}
	}
}

func TestInvalidParams(t *testing.T) {
	p := DefaultParams()
	p.NumKpLevels = 0
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for num_kp_levels=0")
	}
}
