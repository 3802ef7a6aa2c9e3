package env

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/KBVE/bugwars-sub002/internal/geom"
	"github.com/KBVE/bugwars-sub002/internal/protocol"
)

// Registry is the server-side authority for environment objects and for
// which chunks each player currently sees. Handlers run on connection
// goroutines, the respawn loop on its own ticker, so everything is guarded
// by one RWMutex; the object count stays small enough that sharding is
// not worth the complexity.
type Registry struct {
	mu           sync.RWMutex
	objects      map[string]*Object
	chunkObjects map[ChunkCoord][]string
	playerChunks map[string]map[ChunkCoord]struct{}

	chunkSize    float64
	viewDistance int32
	harvestRange float64

	log *log.Logger
	now func() time.Time
}

func NewRegistry(chunkSize float64, viewDistance int32, harvestRange float64, logger *log.Logger) *Registry {
	return &Registry{
		objects:      make(map[string]*Object),
		chunkObjects: make(map[ChunkCoord][]string),
		playerChunks: make(map[string]map[ChunkCoord]struct{}),
		chunkSize:    chunkSize,
		viewDistance: viewDistance,
		harvestRange: harvestRange,
		log:          logger,
		now:          time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

func (r *Registry) ChunkSize() float64    { return r.chunkSize }
func (r *Registry) ViewDistance() int32   { return r.viewDistance }
func (r *Registry) HarvestRange() float64 { return r.harvestRange }

// Add registers an object and indexes it under its chunk. Re-adding an
// existing id replaces the record without duplicating the chunk index entry.
func (r *Registry) Add(o *Object) {
	chunk := ChunkOf(o.Position, r.chunkSize)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.objects[o.ObjectID]; !exists {
		r.chunkObjects[chunk] = append(r.chunkObjects[chunk], o.ObjectID)
	}
	r.objects[o.ObjectID] = o
}

// ObjectsInChunks returns wire data for every standing object in the given
// chunks. Harvested objects are invisible until they respawn.
func (r *Registry) ObjectsInChunks(chunks []ChunkCoord) []protocol.EnvironmentObjectData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []protocol.EnvironmentObjectData
	for _, c := range chunks {
		for _, id := range r.chunkObjects[c] {
			if o := r.objects[id]; o != nil && !o.Harvested {
				out = append(out, o.NetworkData())
			}
		}
	}
	return out
}

// NearbyChunks is the interest square around a position.
func (r *Registry) NearbyChunks(pos geom.Vec3) []ChunkCoord {
	return ChunkOf(pos, r.chunkSize).Neighbors(r.viewDistance)
}

// InitialObjects records the joining player's interest set and returns the
// objects it should be told about.
func (r *Registry) InitialObjects(playerID string, pos geom.Vec3) []protocol.EnvironmentObjectData {
	chunks := r.NearbyChunks(pos)

	set := make(map[ChunkCoord]struct{}, len(chunks))
	for _, c := range chunks {
		set[c] = struct{}{}
	}
	r.mu.Lock()
	r.playerChunks[playerID] = set
	r.mu.Unlock()

	objects := r.ObjectsInChunks(chunks)
	r.logf("[env] sending %d objects to player %s", len(objects), playerID)
	return objects
}

// UpdatePlayerChunks diffs the player's interest set against their new
// position. Returned slices are nil when nothing entered or left view.
func (r *Registry) UpdatePlayerChunks(playerID string, pos geom.Vec3) (spawn []protocol.EnvironmentObjectData, despawn []string) {
	chunks := r.NearbyChunks(pos)
	newSet := make(map[ChunkCoord]struct{}, len(chunks))
	for _, c := range chunks {
		newSet[c] = struct{}{}
	}

	r.mu.Lock()
	oldSet := r.playerChunks[playerID]
	var entered, exited []ChunkCoord
	for c := range newSet {
		if _, ok := oldSet[c]; !ok {
			entered = append(entered, c)
		}
	}
	for c := range oldSet {
		if _, ok := newSet[c]; !ok {
			exited = append(exited, c)
		}
	}
	r.playerChunks[playerID] = newSet

	for _, c := range entered {
		for _, id := range r.chunkObjects[c] {
			if o := r.objects[id]; o != nil && !o.Harvested {
				spawn = append(spawn, o.NetworkData())
			}
		}
	}
	for _, c := range exited {
		despawn = append(despawn, r.chunkObjects[c]...)
	}
	r.mu.Unlock()
	return spawn, despawn
}

// HandleHarvest validates a harvest request and, on success, marks the
// object harvested and returns the granted resources. Range is checked
// server-side against the reported player position.
func (r *Registry) HandleHarvest(playerID string, req protocol.HarvestObjectMsg) protocol.HarvestResultMsg {
	r.mu.Lock()
	defer r.mu.Unlock()

	fail := func(code, msg string) protocol.HarvestResultMsg {
		return protocol.HarvestResultMsg{
			Type:     protocol.TypeHarvestResult,
			Success:  false,
			ObjectID: req.ObjectID,
			PlayerID: playerID,
			Code:     code,
			Message:  msg,
		}
	}

	o, ok := r.objects[req.ObjectID]
	if !ok {
		return fail(protocol.ErrInvalidTarget, "Object not found")
	}
	if o.Harvested {
		return fail(protocol.ErrConflict, "Already harvested")
	}
	if d := o.Position.Dist(req.PlayerPosition); d > r.harvestRange {
		r.logf("[env] player %s harvest %s rejected: %.1fm > %.1fm", playerID, req.ObjectID, d, r.harvestRange)
		return fail(protocol.ErrOutOfRange, fmt.Sprintf("Too far: %.1fm > %.1fm", d, r.harvestRange))
	}

	o.MarkHarvested(r.now())
	r.logf("[env] player %s harvested %s for %dx %s", playerID, req.ObjectID, o.ResourceAmount, o.ResourceType)

	return protocol.HarvestResultMsg{
		Type:     protocol.TypeHarvestResult,
		Success:  true,
		ObjectID: req.ObjectID,
		PlayerID: playerID,
		Resources: []protocol.ResourceStack{
			{ResourceType: o.ResourceType, Amount: o.ResourceAmount},
		},
	}
}

// RespawnReady lists ids whose respawn delay has elapsed.
func (r *Registry) RespawnReady() []string {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, o := range r.objects {
		if o.ShouldRespawn(now) {
			ids = append(ids, id)
		}
	}
	return ids
}

// RespawnObject puts a harvested object back into the world and returns its
// wire data for rebroadcast. Second return is false for unknown ids.
func (r *Registry) RespawnObject(objectID string) (protocol.EnvironmentObjectData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.objects[objectID]
	if !ok {
		return protocol.EnvironmentObjectData{}, false
	}
	o.Respawn()
	r.logf("[env] respawned object %s", objectID)
	return o.NetworkData(), true
}

// PlayersSeeingChunk lists players whose interest set includes the chunk.
func (r *Registry) PlayersSeeingChunk(chunk ChunkCoord) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var players []string
	for id, set := range r.playerChunks {
		if _, ok := set[chunk]; ok {
			players = append(players, id)
		}
	}
	return players
}

// ObjectChunk resolves an object id to its chunk.
func (r *Registry) ObjectChunk(objectID string) (ChunkCoord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.objects[objectID]
	if !ok {
		return ChunkCoord{}, false
	}
	return ChunkOf(o.Position, r.chunkSize), true
}

// RemovePlayer drops the player's interest tracking on disconnect.
func (r *Registry) RemovePlayer(playerID string) {
	r.mu.Lock()
	delete(r.playerChunks, playerID)
	r.mu.Unlock()
}

type Stats struct {
	TotalObjects     int `json:"total_objects"`
	ActiveObjects    int `json:"active_objects"`
	HarvestedObjects int `json:"harvested_objects"`
	TrackedPlayers   int `json:"tracked_players"`
	LoadedChunks     int `json:"loaded_chunks"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	harvested := 0
	for _, o := range r.objects {
		if o.Harvested {
			harvested++
		}
	}
	return Stats{
		TotalObjects:     len(r.objects),
		ActiveObjects:    len(r.objects) - harvested,
		HarvestedObjects: harvested,
		TrackedPlayers:   len(r.playerChunks),
		LoadedChunks:     len(r.chunkObjects),
	}
}

func (r *Registry) logf(format string, args ...any) {
	if r.log != nil {
		r.log.Printf(format, args...)
	}
}
