// Package envgen places trees, rocks, bushes and grass into chunks.
// Generation is deterministic per (seed, chunk), so any server process with
// the same seed produces the same world without persisting placements.
package envgen

import (
	"fmt"
	"math/bits"
	"math/rand"
	"time"

	"github.com/KBVE/bugwars-sub002/internal/geom"
	"github.com/KBVE/bugwars-sub002/internal/protocol"
	"github.com/KBVE/bugwars-sub002/internal/sim/env"
)

// mixSeed folds chunk coordinates into the world seed. Plain xor of the raw
// coordinates makes mirrored chunks correlate, so each axis gets its own
// multiplier with a rotate in between.
func mixSeed(base uint64, x, z int32) uint64 {
	h := base ^ 0x9E3779B97F4A7C15
	h ^= uint64(int64(x)) * 0xBF58476D1CE4E5B9
	h = bits.RotateLeft64(h, 27)
	h ^= uint64(int64(z)) * 0x94D049BB133111EB
	return h
}

// density hashes a per-concern channel into [0,1). Coarse stand-in for
// gradient noise: adjacent chunks are uncorrelated, but the value is stable
// for the lifetime of the seed, which is all the biome variation needs.
func density(base uint64, x, z int32, channel uint64) float64 {
	h := mixSeed(base+channel, x, z)
	return float64(h>>11) / float64(1<<53)
}

const (
	chanTreeDensity = 1000
	chanTreeType    = 2000
	chanRockDensity = 3000
	chanBushDensity = 4000
)

// Generator produces environment objects chunk by chunk.
type Generator struct {
	seed      uint64
	chunkSize float64
}

func New(seed uint64, chunkSize float64) *Generator {
	return &Generator{seed: seed, chunkSize: chunkSize}
}

// GenerateChunk builds every object for one chunk. Calling it twice for the
// same chunk yields identical objects.
func (g *Generator) GenerateChunk(chunk env.ChunkCoord) []*env.Object {
	rng := rand.New(rand.NewSource(int64(mixSeed(g.seed, chunk.X, chunk.Z))))
	var objects []*env.Object

	// Forest chunks get up to 20 trees, open plains as few as 2.
	treeCount := 2 + int(density(g.seed, chunk.X, chunk.Z, chanTreeDensity)*18)
	for i := 0; i < treeCount; i++ {
		objects = append(objects, g.tree(rng, chunk, i))
	}

	rockCount := int(density(g.seed, chunk.X, chunk.Z, chanRockDensity) * 12)
	for i := 0; i < rockCount; i++ {
		objects = append(objects, g.rock(rng, chunk, i))
	}

	bushCount := 3 + int(density(g.seed, chunk.X, chunk.Z, chanBushDensity)*22)
	for i := 0; i < bushCount; i++ {
		objects = append(objects, g.bush(rng, chunk, i))
	}

	// Grass is uniform everywhere.
	grassCount := 10 + rng.Intn(21)
	for i := 0; i < grassCount; i++ {
		objects = append(objects, g.grass(rng, chunk, i))
	}

	return objects
}

// GenerateArea covers the square of chunks within radius of center.
func (g *Generator) GenerateArea(center env.ChunkCoord, radius int32) []*env.Object {
	var all []*env.Object
	for _, c := range center.Neighbors(radius) {
		all = append(all, g.GenerateChunk(c)...)
	}
	return all
}

func (g *Generator) scatter(rng *rand.Rand, chunk env.ChunkCoord) geom.Vec3 {
	return geom.Vec3{
		X: float64(chunk.X)*g.chunkSize + rng.Float64()*g.chunkSize,
		Y: 0, // terrain height is resolved client-side
		Z: float64(chunk.Z)*g.chunkSize + rng.Float64()*g.chunkSize,
	}
}

func yaw(rng *rand.Rand) geom.Euler {
	return geom.Euler{Y: rng.Float64() * 360}
}

func scaleBetween(rng *rand.Rand, lo, hi float64) geom.Scale {
	return geom.UniformScale(lo + rng.Float64()*(hi-lo))
}

func (g *Generator) tree(rng *rand.Rand, chunk env.ChunkCoord, index int) *env.Object {
	pos := g.scatter(rng, chunk)

	// Pine in the high half of the type channel, oak in the low half.
	var asset string
	if density(g.seed, chunk.X, chunk.Z, chanTreeType) > 0.5 {
		asset = pick(rng, "Tree_Pine_01", "Tree_Pine_02")
	} else {
		asset = pick(rng, "Tree_Oak_01", "Tree_Oak_02")
	}

	return &env.Object{
		ObjectID:       fmt.Sprintf("tree_%d_%d_idx_%d", chunk.X, chunk.Z, index),
		AssetName:      asset,
		Position:       pos,
		Rotation:       yaw(rng),
		Scale:          scaleBetween(rng, 0.8, 1.2),
		ObjectType:     protocol.ObjectTree,
		ResourceType:   protocol.ResourceWood,
		ResourceAmount: 3 + rng.Intn(6),
		HarvestTime:    3.0,
		RespawnAfter:   5 * time.Minute,
	}
}

func (g *Generator) rock(rng *rand.Rand, chunk env.ChunkCoord, index int) *env.Object {
	return &env.Object{
		ObjectID:       fmt.Sprintf("rock_%d_%d_idx_%d", chunk.X, chunk.Z, index),
		AssetName:      pick(rng, "Rock_01", "Rock_02", "Rock_03"),
		Position:       g.scatter(rng, chunk),
		Rotation:       yaw(rng),
		Scale:          scaleBetween(rng, 0.9, 1.3),
		ObjectType:     protocol.ObjectRock,
		ResourceType:   protocol.ResourceStone,
		ResourceAmount: 2 + rng.Intn(5),
		HarvestTime:    4.0,
		RespawnAfter:   10 * time.Minute,
	}
}

func (g *Generator) bush(rng *rand.Rand, chunk env.ChunkCoord, index int) *env.Object {
	return &env.Object{
		ObjectID:       fmt.Sprintf("bush_%d_%d_idx_%d", chunk.X, chunk.Z, index),
		AssetName:      pick(rng, "Bush_01", "Bush_02"),
		Position:       g.scatter(rng, chunk),
		Rotation:       yaw(rng),
		Scale:          scaleBetween(rng, 0.7, 1.1),
		ObjectType:     protocol.ObjectBush,
		ResourceType:   protocol.ResourceBerries,
		ResourceAmount: 1 + rng.Intn(4),
		HarvestTime:    1.5,
		RespawnAfter:   3 * time.Minute,
	}
}

func (g *Generator) grass(rng *rand.Rand, chunk env.ChunkCoord, index int) *env.Object {
	return &env.Object{
		ObjectID:       fmt.Sprintf("grass_%d_%d_idx_%d", chunk.X, chunk.Z, index),
		AssetName:      "Grass_Patch_01",
		Position:       g.scatter(rng, chunk),
		Scale:          geom.UniformScale(1),
		ObjectType:     protocol.ObjectGrass,
		ResourceType:   protocol.ResourceHerbs,
		ResourceAmount: 1,
		HarvestTime:    0.5,
		RespawnAfter:   2 * time.Minute,
	}
}

func pick(rng *rand.Rand, variants ...string) string {
	return variants[rng.Intn(len(variants))]
}
