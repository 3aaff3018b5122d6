package refine

import (
	"math"
	"testing"

	"github.com/rpankka/SIFT3D/keypoint"
	"github.com/rpankka/SIFT3D/pyramid"
	"github.com/rpankka/SIFT3D/volume"
)

func buildDoG(vols []*volume.Volume, p pyramid.Params) *pyramid.DoG {
	g := &pyramid.GPyr{Params: p, FirstOctave: p.FirstOctave, NumOctaves: 1, Levels: [][]*volume.Volume{vols}}
	dog, err := pyramid.BuildDoG(g)
	if err != nil {
		panic(err)
	}
	return dog
}

// TestRefineInvariants checks property 3: after refinement,
// 1<=xi<=nx-2 (same for y,z) and sigma(prev)<=sd<=sigma(next).
func TestRefineInvariants(t *testing.T) {
	p := pyramid.DefaultParams()
	p.NumOctaves = 1
	nLevels := p.NumLevels()
	n := 12
	vols := make([]*volume.Volume, nLevels)
	for i := range vols {
		v := volume.New(n, n, n, 1)
		v.Scale = p.AbsoluteScale(0, i)
		vols[i] = v
	}
	c := n / 2
	// Build a smooth bump across levels so the parabolic estimator has
	// well-conditioned local curvature in every axis, including scale.
	for i, v := range vols {
		amp := 10.0 - math.Abs(float64(i-2))
		for x := 0; x < n; x++ {
			for y := 0; y < n; y++ {
				for z := 0; z < n; z++ {
					dx, dy, dz := float64(x-c), float64(y-c), float64(z-c)
					v.Set(x, y, z, 0, amp*math.Exp(-(dx*dx+dy*dy+dz*dz)/20))
				}
			}
		}
	}
	dog := buildDoG(vols, p)

	kp := keypoint.Keypoint{O: 0, S: 2, Xi: c, Yi: c, Zi: c}
	strategies := []Strategy{Parabolic, Newton}
	for _, strat := range strategies {
		kpCopy := kp
		pr := Params{Strategy: strat, MaxIters: 5}
		res, err := Refine(dog, &kpCopy, pr)
		if err != nil {
			t.Fatal(err)
		}
		if res != 0 {
			t.Fatalf("strategy %v: unexpected outcome %v", strat, res)
		}
		if kpCopy.Xi < 1 || kpCopy.Xi > n-2 || kpCopy.Yi < 1 || kpCopy.Yi > n-2 || kpCopy.Zi < 1 || kpCopy.Zi > n-2 {
			t.Fatalf("strategy %v: xi/yi/zi out of bounds: %+v", strat, kpCopy)
		}
		lo, hi := dog.At(0, 1).Scale, dog.At(0, 3).Scale
		if kpCopy.Sd < lo-1e-9 || kpCopy.Sd > hi+1e-9 {
			t.Fatalf("strategy %v: sd=%v out of [%v,%v]", strat, kpCopy.Sd, lo, hi)
		}
	}
}

func TestParabolicOffsetZeroDenominator(t *testing.T) {
	// (dPlus-dMinus) + 2*d0 = (2-0) + 2*(-1) = 0.
	if got := parabolicOffset(0, 2, -1); got != 0 {
		t.Fatalf("expected 0 offset on zero denominator, got %v", got)
	}
}
