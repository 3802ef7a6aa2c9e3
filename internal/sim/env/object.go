package env

import (
	"time"

	"github.com/KBVE/bugwars-sub002/internal/geom"
	"github.com/KBVE/bugwars-sub002/internal/protocol"
)

// Object is the server-authoritative record for a single world object.
// Harvested objects stay in the registry so they can respawn in place.
type Object struct {
	ObjectID       string
	AssetName      string
	Position       geom.Vec3
	Rotation       geom.Euler
	Scale          geom.Scale
	ObjectType     protocol.ObjectType
	ResourceType   protocol.ResourceType
	ResourceAmount int
	HarvestTime    float64

	Harvested    bool
	HarvestedAt  time.Time
	RespawnAfter time.Duration // zero means never respawn
}

// ShouldRespawn reports whether enough time has passed since the harvest.
func (o *Object) ShouldRespawn(now time.Time) bool {
	if !o.Harvested || o.RespawnAfter <= 0 {
		return false
	}
	return now.Sub(o.HarvestedAt) >= o.RespawnAfter
}

func (o *Object) MarkHarvested(now time.Time) {
	o.Harvested = true
	o.HarvestedAt = now
}

func (o *Object) Respawn() {
	o.Harvested = false
	o.HarvestedAt = time.Time{}
}

// NetworkData strips server-only lifecycle fields for the wire.
func (o *Object) NetworkData() protocol.EnvironmentObjectData {
	return protocol.EnvironmentObjectData{
		ObjectID:       o.ObjectID,
		AssetName:      o.AssetName,
		Position:       o.Position,
		Rotation:       o.Rotation,
		Scale:          o.Scale,
		ObjectType:     o.ObjectType,
		ResourceType:   o.ResourceType,
		ResourceAmount: o.ResourceAmount,
		HarvestTime:    o.HarvestTime,
	}
}
