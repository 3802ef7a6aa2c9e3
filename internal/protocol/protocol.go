package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeJoin               = "join"
	TypeWelcome            = "welcome"
	TypeEnvironmentObjects = "environment_objects"
	TypeEnvironmentDespawn = "environment_despawn"
	TypeHarvestObject      = "harvest_object"
	TypeHarvestResult      = "harvest_result"
	TypeObjectRespawned    = "object_respawned"
	TypePlayerMove         = "player_move"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
