// Package mesh builds the regular icosahedron used as the bin layout
// for icosahedral gradient histograms, and provides barycentric
// ray-triangle lookup against it.
//
// The vertex/face generation follows the same canonical icosahedron
// construction as gonum.org/v1/gonum/spatial/r3's icosphere example
// (golden-ratio permutations of (0, ±1, ±φ) projected onto the unit
// sphere), extended with the bin-index bookkeeping and outward-normal
// orientation this spec requires.
package mesh

import (
	"errors"
	"math"

	"github.com/rpankka/SIFT3D/internal/vec3"
)

// NBins is the number of histogram bins, one per icosahedron vertex.
const NBins = 12

// NFaces is the number of icosahedron faces.
const NFaces = 20

// barycentric rejection epsilon, FLT_EPSILON*10 per spec §4.1.
const baryEps = 1.1920929e-07 * 10

// Face is one triangular face of the mesh: three unit-length vertices
// and the three histogram bin indices they populate.
type Face struct {
	V   [3]vec3.Vec
	Idx [3]int
}

// Mesh is the ordered sequence of icosahedron faces.
type Mesh struct {
	Faces [NFaces]Face
}

// New constructs a fresh icosahedral mesh. Construction is cheap and
// side-effect free; callers that want a single shared, read-only
// instance should use Default.
func New() *Mesh {
	verts := icosahedronVertices()
	faceIdx := icosahedronFaces()

	m := &Mesh{}
	for fi, tri := range faceIdx {
		f := Face{
			V:   [3]vec3.Vec{verts[tri[0]], verts[tri[1]], verts[tri[2]]},
			Idx: tri,
		}
		orient(&f)
		m.Faces[fi] = f
	}
	return m
}

var defaultMesh *Mesh

// Default returns the process-wide shared icosahedral mesh, built once.
// The mesh is immutable after construction and safe for concurrent
// read-only use by independent pipelines.
func Default() *Mesh {
	if defaultMesh == nil {
		defaultMesh = New()
	}
	return defaultMesh
}

// icosahedronVertices returns the 12 canonical icosahedron vertices,
// permutations of (0, ±1, ±φ) scaled to the unit sphere.
func icosahedronVertices() [12]vec3.Vec {
	phi := (1 + math.Sqrt(5)) / 2
	s := 1 / math.Sqrt(1+phi*phi)
	x, z := 1*s, phi*s
	return [12]vec3.Vec{
		{-x, 0, z}, {x, 0, z}, {-x, 0, -z}, {x, 0, -z},
		{0, z, x}, {0, z, -x}, {0, -z, x}, {0, -z, -x},
		{z, x, 0}, {-z, x, 0}, {z, -x, 0}, {-z, -x, 0},
	}
}

// icosahedronFaces returns the 20 canonical face vertex-index triplets.
func icosahedronFaces() [20][3]int {
	return [20][3]int{
		{0, 1, 4}, {0, 4, 9}, {9, 4, 5}, {4, 8, 5},
		{4, 1, 8}, {8, 1, 10}, {8, 10, 3}, {5, 8, 3},
		{5, 3, 2}, {2, 3, 7}, {7, 3, 10}, {7, 10, 6},
		{7, 6, 11}, {11, 6, 0}, {0, 6, 1}, {6, 10, 1},
		{9, 11, 0}, {9, 2, 11}, {9, 5, 2}, {7, 11, 2},
	}
}

// orient ensures f's normal points away from the origin, per spec
// §4.1: n = (v2-v1)x(v1-v0); if n.v0 < 0, swap v0 and v1 and recompute.
func orient(f *Face) {
	n := normalOf(f.V)
	if vec3.Dot(n, f.V[0]) < 0 {
		f.V[0], f.V[1] = f.V[1], f.V[0]
		f.Idx[0], f.Idx[1] = f.Idx[1], f.Idx[0]
	}
}

func normalOf(v [3]vec3.Vec) vec3.Vec {
	return vec3.Cross(vec3.Sub(v[2], v[1]), vec3.Sub(v[1], v[0]))
}

// ErrDegenerate is returned by BaryLookup when the query vector is too
// close to the origin to determine a ray direction.
var ErrDegenerate = errors.New("mesh: query vector too close to origin")

// BaryLookup finds the face whose supporting plane the ray from the
// origin through x intersects, returning the face index, barycentric
// weights (alpha, beta, gamma), and the scalar k such that
// k*x = alpha*v0 + beta*v1 + gamma*v2. Faces are scanned in their
// declared order and the first one accepted by the Möller–Trumbore
// test wins. BaryLookup returns ErrDegenerate only when ||x||^2 <
// baryEps; any other non-intersection is a logic error in mesh
// construction, not a reportable failure mode, and is asserted in
// tests rather than handled at runtime.
func (m *Mesh) BaryLookup(x vec3.Vec) (face int, alpha, beta, gamma, k float64, err error) {
	if vec3.Norm2(x) < baryEps {
		return -1, 0, 0, 0, 0, ErrDegenerate
	}
	for fi := range m.Faces {
		f := &m.Faces[fi]
		e1 := vec3.Sub(f.V[1], f.V[0])
		e2 := vec3.Sub(f.V[2], f.V[0])
		pvec := vec3.Cross(x, e2)
		det := vec3.Dot(e1, pvec)
		if math.Abs(det) < baryEps {
			continue
		}
		invDet := 1 / det
		tvec := vec3.Scale(-1, f.V[0])
		u := vec3.Dot(tvec, pvec) * invDet
		qvec := vec3.Cross(tvec, e1)
		v := vec3.Dot(x, qvec) * invDet
		kk := vec3.Dot(e2, qvec) * invDet
		w := 1 - u - v
		if u < -baryEps || v < -baryEps || w < -baryEps || kk < 0 {
			continue
		}
		return fi, w, u, v, kk, nil
	}
	return -1, 0, 0, 0, 0, errors.New("mesh: no face accepted query vector (mesh invariant violated)")
}
