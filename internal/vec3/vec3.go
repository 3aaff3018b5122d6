// Package vec3 provides a minimal 3D vector and 3x3 matrix type used
// throughout the pipeline for gradients, displacements, and rotation
// frames. The API follows gonum.org/v1/gonum/spatial/r3's Vec/Mat
// shape: plain value types with free-function operators rather than
// a general-purpose linear algebra package, since every use site here
// is fixed at dimension 3.
package vec3

import "math"

// Vec is a point or direction in 3D space.
type Vec struct {
	X, Y, Z float64
}

// Add returns the vector sum of p and q.
func Add(p, q Vec) Vec { return Vec{p.X + q.X, p.Y + q.Y, p.Z + q.Z} }

// Sub returns the vector difference p-q.
func Sub(p, q Vec) Vec { return Vec{p.X - q.X, p.Y - q.Y, p.Z - q.Z} }

// Scale returns p scaled by f.
func Scale(f float64, p Vec) Vec { return Vec{f * p.X, f * p.Y, f * p.Z} }

// Dot returns the dot product of p and q.
func Dot(p, q Vec) float64 { return p.X*q.X + p.Y*q.Y + p.Z*q.Z }

// Cross returns the cross product p x q.
func Cross(p, q Vec) Vec {
	return Vec{
		X: p.Y*q.Z - p.Z*q.Y,
		Y: p.Z*q.X - p.X*q.Z,
		Z: p.X*q.Y - p.Y*q.X,
	}
}

// Norm2 returns the squared Euclidean length of p.
func Norm2(p Vec) float64 { return Dot(p, p) }

// Norm returns the Euclidean length of p.
func Norm(p Vec) float64 { return math.Sqrt(Norm2(p)) }

// Unit returns p scaled to unit length. Unit panics if p is the zero
// vector.
func Unit(p Vec) Vec {
	n := Norm(p)
	if n == 0 {
		panic("vec3: zero vector has no unit direction")
	}
	return Scale(1/n, p)
}

// Mat is a row-major 3x3 matrix, used for rotation frames and the
// structure tensor.
type Mat [3][3]float64

// Identity returns the 3x3 identity matrix.
func Identity() Mat {
	return Mat{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Col returns column j of m as a Vec.
func (m Mat) Col(j int) Vec {
	return Vec{m[0][j], m[1][j], m[2][j]}
}

// SetCol sets column j of m to v.
func (m *Mat) SetCol(j int, v Vec) {
	m[0][j] = v.X
	m[1][j] = v.Y
	m[2][j] = v.Z
}

// MulVec returns the matrix-vector product m*v.
func MulVec(m Mat, v Vec) Vec {
	return Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Det returns the determinant of m, using the same cofactor expansion
// as gonum's spatial/r3 Mat.Det.
//
//	    ⎡a b c⎤
//	m = ⎢d e f⎥
//	    ⎣g h i⎦
//	det(m) = a(ei − fh) − b(di − fg) + c(dh − eg)
func (m Mat) Det() float64 {
	a, b, c := m[0][0], m[0][1], m[0][2]
	d, e, f := m[1][0], m[1][1], m[1][2]
	g, h, i := m[2][0], m[2][1], m[2][2]
	return a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
}

// Transpose returns the transpose of m.
func (m Mat) Transpose() Mat {
	var t Mat
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[j][i] = m[i][j]
		}
	}
	return t
}

// Mul returns the matrix product a*b.
func Mul(a, b Mat) Mat {
	var r Mat
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += a[i][k] * b[k][j]
			}
			r[i][j] = s
		}
	}
	return r
}

// FrobeniusDistance returns ||a-b||_F, the square root of the sum of
// squared element-wise differences.
func FrobeniusDistance(a, b Mat) float64 {
	var s float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d := a[i][j] - b[i][j]
			s += d * d
		}
	}
	return math.Sqrt(s)
}
