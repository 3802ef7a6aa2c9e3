package protocol

import "github.com/KBVE/bugwars-sub002/internal/geom"

// ObjectType classifies an environment object. Values match the Unity enum.
type ObjectType string

const (
	ObjectTree  ObjectType = "Tree"
	ObjectRock  ObjectType = "Rock"
	ObjectBush  ObjectType = "Bush"
	ObjectGrass ObjectType = "Grass"
)

// ResourceType is what harvesting an object yields. Values match the Unity enum.
type ResourceType string

const (
	ResourceWood    ResourceType = "Wood"
	ResourceStone   ResourceType = "Stone"
	ResourceBerries ResourceType = "Berries"
	ResourceHerbs   ResourceType = "Herbs"
	ResourceNone    ResourceType = "None"
)

// EnvironmentObjectData is the client-visible state of one environment object.
// The server is authoritative over the full object; this is the projection it
// shares.
type EnvironmentObjectData struct {
	ObjectID       string       `json:"object_id"`
	AssetName      string       `json:"asset_name"`
	Position       geom.Vec3    `json:"position"`
	Rotation       geom.Euler   `json:"rotation"`
	Scale          geom.Scale   `json:"scale"`
	ObjectType     ObjectType   `json:"object_type"`
	ResourceType   ResourceType `json:"resource_type"`
	ResourceAmount int          `json:"resource_amount"`
	HarvestTime    float64      `json:"harvest_time"`
}

// ResourceStack is one granted resource in a harvest result.
type ResourceStack struct {
	ResourceType ResourceType `json:"resource_type"`
	Amount       int          `json:"amount"`
}

// join (client -> server)
type JoinMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	PlayerName      string    `json:"player_name"`
	Position        geom.Vec3 `json:"position"`
}

// welcome (server -> client)
type WelcomeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	PlayerID        string  `json:"player_id"`
	ChunkSize       float64 `json:"chunk_size"`
	ViewDistance    int     `json:"view_distance_chunks"`
	HarvestRange    float64 `json:"harvest_range"`
	Seed            int64   `json:"seed"`
}

// environment_objects (server -> client): bulk spawn for chunks entering the
// player's interest set.
type EnvironmentObjectsMsg struct {
	Type    string                  `json:"type"`
	Objects []EnvironmentObjectData `json:"objects"`
}

// environment_despawn (server -> client): objects leaving the interest set.
type EnvironmentDespawnMsg struct {
	Type      string   `json:"type"`
	ObjectIDs []string `json:"object_ids"`
}

// harvest_object (client -> server). The player position rides along so the
// server can re-validate range independently of the client's own checks.
type HarvestObjectMsg struct {
	Type           string    `json:"type"`
	ObjectID       string    `json:"object_id"`
	PlayerPosition geom.Vec3 `json:"player_position"`
}

// harvest_result (server -> client)
type HarvestResultMsg struct {
	Type      string          `json:"type"`
	Success   bool            `json:"success"`
	ObjectID  string          `json:"object_id"`
	PlayerID  string          `json:"player_id"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Resources []ResourceStack `json:"resources,omitempty"`
}

// object_respawned (server -> client)
type ObjectRespawnedMsg struct {
	Type       string                `json:"type"`
	ObjectID   string                `json:"object_id"`
	ObjectData EnvironmentObjectData `json:"object_data"`
}

// player_move (client -> server): drives interest management.
type PlayerMoveMsg struct {
	Type     string    `json:"type"`
	Position geom.Vec3 `json:"position"`
}
