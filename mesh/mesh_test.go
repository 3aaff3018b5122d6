package mesh

import (
	"math"
	"testing"

	"github.com/rpankka/SIFT3D/internal/vec3"
)

const edgeTol = 1e-6

// TestInvariants checks property 1 from spec §8: every face's normal
// points away from the origin, every face's three edges are equal in
// length within 1e-6, and every vertex lies on the unit sphere.
func TestInvariants(t *testing.T) {
	m := New()
	for fi, f := range m.Faces {
		n := normalOf(f.V)
		if vec3.Dot(n, f.V[0]) < 0 {
			t.Errorf("face %d: normal points inward", fi)
		}
		e0 := vec3.Norm(vec3.Sub(f.V[1], f.V[0]))
		e1 := vec3.Norm(vec3.Sub(f.V[2], f.V[1]))
		e2 := vec3.Norm(vec3.Sub(f.V[0], f.V[2]))
		if math.Abs(e0-e1) > edgeTol || math.Abs(e1-e2) > edgeTol {
			t.Errorf("face %d: edges not equal: %v %v %v", fi, e0, e1, e2)
		}
		for vi, v := range f.V {
			if math.Abs(vec3.Norm(v)-1) > 1e-9 {
				t.Errorf("face %d vertex %d: not on unit sphere, norm=%v", fi, vi, vec3.Norm(v))
			}
		}
	}
}

// TestBaryLookupConsistency checks property 8: for every face and a
// convex combination of its vertices, BaryLookup recovers the same
// face and the same barycentric weights. A vertex is shared by five
// faces, so for the vertex cases the expected face is the first one in
// declared order that has the vertex, with weight 1 on its slot.
func TestBaryLookupConsistency(t *testing.T) {
	m := New()
	rng := []struct{ a, b, c float64 }{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{0.5, 0.3, 0.2}, {0.2, 0.2, 0.6}, {0.1, 0.8, 0.1},
	}
	for fi, f := range m.Faces {
		for _, w := range rng {
			p := vec3.Add(vec3.Add(vec3.Scale(w.a, f.V[0]), vec3.Scale(w.b, f.V[1])), vec3.Scale(w.c, f.V[2]))
			wantFace, want := fi, [3]float64{w.a, w.b, w.c}
			for vi, wv := range want {
				if wv == 1 {
					wantFace, want = firstFaceWithVertex(m, f.V[vi])
					break
				}
			}
			got, alpha, beta, gamma, k, err := m.BaryLookup(p)
			if err != nil {
				t.Fatalf("face %d weights %v: unexpected error %v", fi, w, err)
			}
			if got != wantFace {
				t.Errorf("face %d weights %v: got face %d, want %d", fi, w, got, wantFace)
			}
			if math.Abs(alpha-want[0]) > 1e-4 || math.Abs(beta-want[1]) > 1e-4 || math.Abs(gamma-want[2]) > 1e-4 {
				t.Errorf("face %d weights %v: got (%v,%v,%v)", fi, w, alpha, beta, gamma)
			}
			if k < 0 {
				t.Errorf("face %d weights %v: k=%v should be nonnegative", fi, w, k)
			}
		}
	}
}

// firstFaceWithVertex returns the lowest-indexed face of m that has v
// as a vertex, and the barycentric weights of v on that face.
func firstFaceWithVertex(m *Mesh, v vec3.Vec) (int, [3]float64) {
	for fi, f := range m.Faces {
		for si, fv := range f.V {
			if fv == v {
				var w [3]float64
				w[si] = 1
				return fi, w
			}
		}
	}
	return -1, [3]float64{}
}

func TestBaryLookupDegenerate(t *testing.T) {
	m := New()
	_, _, _, _, _, err := m.BaryLookup(vec3.Vec{})
	if err != ErrDegenerate {
		t.Fatalf("expected ErrDegenerate for zero vector, got %v", err)
	}
}

func TestDefaultIsShared(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Fatalf("Default() should return the same shared instance")
	}
}
