// Package vec provides the small set of 3D vector operations the voice
// scheduler needs for listener-relative distance and orientation math.
//
// All operations take and return values; none of them allocate.
package vec

import "math"

// Vec3 is a 3D vector in world or listener space.
type Vec3 struct {
	X, Y, Z float64
}

// Zero is the zero vector.
var Zero = Vec3{}

// New returns the vector (x, y, z).
func New(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// LenSq returns the squared length of v.
func (v Vec3) LenSq() float64 {
	return v.Dot(v)
}

// Len returns the Euclidean length of v.
func (v Vec3) Len() float64 {
	return math.Sqrt(v.LenSq())
}

// Normalize returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	inv := 1 / l
	return Vec3{v.X * inv, v.Y * inv, v.Z * inv}
}

// IsZero reports whether all components are zero.
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Vec3) float64 {
	return a.Sub(b).Len()
}
