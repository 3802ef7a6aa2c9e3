package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/KBVE/bugwars-sub002/internal/protocol"
	"github.com/KBVE/bugwars-sub002/internal/sim/env"
)

const (
	writeWait     = 5 * time.Second
	handshakeWait = 5 * time.Second
	// pongWait bounds how long a connection may stay silent. Clients ping
	// well inside it, so only a dead peer ever trips the deadline.
	pongWait = 60 * time.Second
)

// Hooks receive gameplay events for persistence. Either may be nil.
type Hooks struct {
	OnHarvest func(playerID string, res protocol.HarvestResultMsg)
	OnRespawn func(objectID string)
}

// Server accepts player connections and drives the environment registry.
// Each connection gets a buffered outbound queue drained by its own writer
// goroutine; a full queue drops the connection rather than the message.
type Server struct {
	registry *env.Registry
	seed     int64
	log      *log.Logger
	hooks    Hooks

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	playerID string
	out      chan []byte
	cancel   context.CancelFunc
}

func NewServer(registry *env.Registry, seed int64, logger *log.Logger, hooks Hooks) *Server {
	return &Server{
		registry: registry,
		seed:     seed,
		log:      logger,
		hooks:    hooks,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sessions: make(map[string]*session),
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess := s.handshake(conn, cancel)
		if sess == nil {
			return
		}
		defer s.dropSession(sess.playerID)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-sess.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Pings from idle-but-healthy clients keep the deadline moving.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPingHandler(func(appData string) error {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		})

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeHarvestObject:
				var req protocol.HarvestObjectMsg
				if err := json.Unmarshal(msg, &req); err != nil {
					continue
				}
				s.handleHarvest(sess, req)
			case protocol.TypePlayerMove:
				var mv protocol.PlayerMoveMsg
				if err := json.Unmarshal(msg, &mv); err != nil {
					continue
				}
				s.handleMove(sess, mv)
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn, cancel context.CancelFunc) *session {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeJoin {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected join"), time.Now().Add(time.Second))
		return nil
	}
	var join protocol.JoinMsg
	if err := json.Unmarshal(msg, &join); err != nil {
		return nil
	}
	if join.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}

	sess := &session{
		playerID: uuid.NewString(),
		out:      make(chan []byte, 64),
		cancel:   cancel,
	}
	s.mu.Lock()
	s.sessions[sess.playerID] = sess
	s.mu.Unlock()

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        sess.playerID,
		ChunkSize:       s.registry.ChunkSize(),
		ViewDistance:    int(s.registry.ViewDistance()),
		HarvestRange:    s.registry.HarvestRange(),
		Seed:            s.seed,
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.dropSession(sess.playerID)
		return nil
	}

	objects := s.registry.InitialObjects(sess.playerID, join.Position)
	if err := writeJSON(conn, protocol.EnvironmentObjectsMsg{
		Type:    protocol.TypeEnvironmentObjects,
		Objects: objects,
	}); err != nil {
		s.dropSession(sess.playerID)
		return nil
	}

	s.logf("[ws] player %s joined (%q), sent %d objects", sess.playerID, join.PlayerName, len(objects))
	return sess
}

func (s *Server) handleHarvest(sess *session, req protocol.HarvestObjectMsg) {
	// Resolve the chunk before the harvest: a successful harvest does not
	// move the object, and unknown ids simply skip the broadcast.
	chunk, known := s.registry.ObjectChunk(req.ObjectID)

	res := s.registry.HandleHarvest(sess.playerID, req)
	if s.hooks.OnHarvest != nil {
		s.hooks.OnHarvest(sess.playerID, res)
	}

	if res.Success && known {
		// Everyone watching the chunk sees the result; clients grant the
		// reward only to the matching player_id.
		s.broadcastToChunk(chunk, res)
		return
	}
	s.sendTo(sess.playerID, res)
}

func (s *Server) handleMove(sess *session, mv protocol.PlayerMoveMsg) {
	spawn, despawn := s.registry.UpdatePlayerChunks(sess.playerID, mv.Position)
	if len(spawn) > 0 {
		s.sendTo(sess.playerID, protocol.EnvironmentObjectsMsg{
			Type:    protocol.TypeEnvironmentObjects,
			Objects: spawn,
		})
	}
	if len(despawn) > 0 {
		s.sendTo(sess.playerID, protocol.EnvironmentDespawnMsg{
			Type:      protocol.TypeEnvironmentDespawn,
			ObjectIDs: despawn,
		})
	}
}

// RunRespawnLoop periodically returns harvested objects to the world and
// tells every player whose interest set covers them. Blocks until ctx ends.
func (s *Server) RunRespawnLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.respawnPass()
		}
	}
}

func (s *Server) respawnPass() {
	for _, id := range s.registry.RespawnReady() {
		data, ok := s.registry.RespawnObject(id)
		if !ok {
			continue
		}
		if s.hooks.OnRespawn != nil {
			s.hooks.OnRespawn(id)
		}
		if chunk, ok := s.registry.ObjectChunk(id); ok {
			s.broadcastToChunk(chunk, protocol.ObjectRespawnedMsg{
				Type:       protocol.TypeObjectRespawned,
				ObjectID:   id,
				ObjectData: data,
			})
		}
	}
}

func (s *Server) broadcastToChunk(chunk env.ChunkCoord, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	for _, playerID := range s.registry.PlayersSeeingChunk(chunk) {
		s.enqueue(playerID, b)
	}
}

func (s *Server) sendTo(playerID string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.enqueue(playerID, b)
}

func (s *Server) enqueue(playerID string, b []byte) {
	s.mu.RLock()
	sess := s.sessions[playerID]
	s.mu.RUnlock()
	if sess == nil {
		return
	}
	select {
	case sess.out <- b:
	default:
		// Slow consumer: kill the connection instead of blocking the world.
		s.logf("[ws] player %s send queue full, dropping connection", playerID)
		sess.cancel()
	}
}

func (s *Server) dropSession(playerID string) {
	s.mu.Lock()
	sess := s.sessions[playerID]
	delete(s.sessions, playerID)
	s.mu.Unlock()
	if sess == nil {
		return
	}
	sess.cancel()
	s.registry.RemovePlayer(playerID)
	s.logf("[ws] player %s disconnected", playerID)
}

// SessionCount reports connected players, for /statz.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
