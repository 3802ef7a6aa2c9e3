package env

import (
	"math"

	"github.com/KBVE/bugwars-sub002/internal/geom"
)

// ChunkCoord addresses a square column of the world on the XZ plane.
type ChunkCoord struct {
	X int32
	Z int32
}

// ChunkOf maps a world position onto its chunk. Floor division, so
// negative coordinates land in negative chunks rather than chunk zero.
func ChunkOf(pos geom.Vec3, chunkSize float64) ChunkCoord {
	return ChunkCoord{
		X: int32(math.Floor(pos.X / chunkSize)),
		Z: int32(math.Floor(pos.Z / chunkSize)),
	}
}

// Neighbors returns the (2r+1)^2 square of chunks centered on c,
// including c itself.
func (c ChunkCoord) Neighbors(radius int32) []ChunkCoord {
	out := make([]ChunkCoord, 0, (2*radius+1)*(2*radius+1))
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			out = append(out, ChunkCoord{X: c.X + dx, Z: c.Z + dz})
		}
	}
	return out
}
