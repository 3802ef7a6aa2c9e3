package geom

import "math"

// Vec3 is a world-space position. Serialized with per-axis keys to match the
// wire format shared with the Unity client.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Euler is a rotation in degrees around each axis.
type Euler struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Scale is a per-axis scale factor.
type Scale struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func UniformScale(v float64) Scale { return Scale{X: v, Y: v, Z: v} }

func (a Vec3) Sub(b Vec3) Vec3 {
	return Vec3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

func (a Vec3) Dist(b Vec3) float64 {
	d := a.Sub(b)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

// DistXZ ignores height; chunk membership and most gameplay range checks are
// horizontal.
func (a Vec3) DistXZ(b Vec3) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dz*dz)
}
