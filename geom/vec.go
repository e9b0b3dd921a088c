// Package geom provides the small vector and shape types shared by the trap,
// ensemble and collision packages.
package geom

import "math"

// Vec3 is a vector in 3-D space, in SI units.
type Vec3 struct {
	X, Y, Z float64
}

// UnitX, UnitY and UnitZ are the axis unit vectors.
var (
	UnitX = Vec3{X: 1}
	UnitY = Vec3{Y: 1}
	UnitZ = Vec3{Z: 1}
)

// Add returns v + u.
func (v Vec3) Add(u Vec3) Vec3 {
	return Vec3{v.X + u.X, v.Y + u.Y, v.Z + u.Z}
}

// Sub returns v - u.
func (v Vec3) Sub(u Vec3) Vec3 {
	return Vec3{v.X - u.X, v.Y - u.Y, v.Z - u.Z}
}

// Scale returns s * v.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{s * v.X, s * v.Y, s * v.Z}
}

// Dot returns the inner product of v and u.
func (v Vec3) Dot(u Vec3) float64 {
	return v.X*u.X + v.Y*u.Y + v.Z*u.Z
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Sphere is a ball with a center and a radius.
type Sphere struct {
	Center Vec3
	Radius float64
}

// Contains tells if p lies inside the sphere or on its surface.
func (s Sphere) Contains(p Vec3) bool {
	d := p.Sub(s.Center)
	return d.Dot(d) <= s.Radius*s.Radius
}
