package envsync

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/KBVE/bugwars-sub002/internal/geom"
	"github.com/KBVE/bugwars-sub002/internal/protocol"
	"github.com/KBVE/bugwars-sub002/internal/sim/action"
)

// Transport is the message channel the reconciler rides on. Reconnect,
// backoff, and heartbeat are the transport's problem; the reconciler only
// fails fast when the link is down.
type Transport interface {
	IsConnected() bool
	Send(v any) error
}

// DefaultRequestTimeout bounds one harvest round-trip.
const DefaultRequestTimeout = 5 * time.Second

// Sync reconciles the local environment registry against the
// server-authoritative object state, and correlates harvest requests with
// their asynchronous responses by object id. There is no local prediction: an
// object leaves the world only when the server says so.
type Sync struct {
	log       *log.Logger
	transport Transport
	registry  *Registry
	sink      action.Sink
	playerPos func() geom.Vec3

	timeout time.Duration

	mu       sync.Mutex
	playerID string
	welcome  protocol.WelcomeMsg
	pending  map[string]chan protocol.HarvestResultMsg
}

type Option func(*Sync)

// WithRequestTimeout overrides the harvest round-trip bound (tests).
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Sync) { s.timeout = d }
}

func New(transport Transport, registry *Registry, sink action.Sink, playerPos func() geom.Vec3, logger *log.Logger, opts ...Option) *Sync {
	s := &Sync{
		log:       logger,
		transport: transport,
		registry:  registry,
		sink:      sink,
		playerPos: playerPos,
		timeout:   DefaultRequestTimeout,
		pending:   map[string]chan protocol.HarvestResultMsg{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sync) Registry() *Registry { return s.registry }

func (s *Sync) PlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

// Welcome returns the server-issued session parameters.
func (s *Sync) Welcome() protocol.WelcomeMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.welcome
}

// Completer adapts the reconciler into the harvest completion authority: the
// action core's timer still runs locally, but the payout and the despawn come
// from the server.
func (s *Sync) Completer() action.Completer { return networkCompleter{s} }

type networkCompleter struct{ s *Sync }

func (c networkCompleter) CompleteHarvest(_ action.Actor, target action.Interactable) action.Result {
	resp := c.s.RequestHarvest(context.Background(), target.ObjectID())
	// No Harvest payload here: the reward is delivered once, on the
	// authoritative harvest_result path.
	return action.Result{Success: resp.Success, Code: resp.Code, Message: resp.Message}
}

// RequestHarvest sends one harvest_object request and blocks until the server
// responds, the timeout fires, or ctx is cancelled. A second request for an
// object already in flight is rejected immediately rather than displacing the
// first waiter.
func (s *Sync) RequestHarvest(ctx context.Context, objectID string) protocol.HarvestResultMsg {
	if !s.transport.IsConnected() {
		return s.failResult(objectID, protocol.ErrNotConnected, "Not connected")
	}

	s.mu.Lock()
	if _, inFlight := s.pending[objectID]; inFlight {
		s.mu.Unlock()
		return s.failResult(objectID, protocol.ErrConflict, "Harvest already requested")
	}
	ch := make(chan protocol.HarvestResultMsg, 1)
	s.pending[objectID] = ch
	s.mu.Unlock()

	req := protocol.HarvestObjectMsg{
		Type:           protocol.TypeHarvestObject,
		ObjectID:       objectID,
		PlayerPosition: s.playerPos(),
	}
	if err := s.transport.Send(req); err != nil {
		s.dropPending(objectID)
		return s.failResult(objectID, protocol.ErrNotConnected, "Not connected")
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res
	case <-timer.C:
		s.dropPending(objectID)
		return s.failResult(objectID, protocol.ErrTimeout, "Request timed out")
	case <-ctx.Done():
		s.dropPending(objectID)
		return s.failResult(objectID, protocol.ErrTimeout, "Request cancelled")
	}
}

// PendingRequests reports how many harvest responses are outstanding.
func (s *Sync) PendingRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// HandleMessage applies one inbound server message. The transport calls it
// for every received frame; unknown types are ignored.
func (s *Sync) HandleMessage(raw []byte) {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		s.logf("envsync: undecodable message: %v", err)
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var msg protocol.WelcomeMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		s.mu.Lock()
		s.playerID = msg.PlayerID
		s.welcome = msg
		s.mu.Unlock()

	case protocol.TypeEnvironmentObjects:
		var msg protocol.EnvironmentObjectsMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		for _, data := range msg.Objects {
			s.registry.Upsert(data)
		}

	case protocol.TypeEnvironmentDespawn:
		var msg protocol.EnvironmentDespawnMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		for _, id := range msg.ObjectIDs {
			s.registry.Remove(id)
		}

	case protocol.TypeHarvestResult:
		var msg protocol.HarvestResultMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		s.applyHarvestResult(msg)

	case protocol.TypeObjectRespawned:
		var msg protocol.ObjectRespawnedMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		s.registry.Upsert(msg.ObjectData)
	}
}

func (s *Sync) applyHarvestResult(msg protocol.HarvestResultMsg) {
	if !protocol.IsKnownCode(msg.Code) {
		s.logf("envsync: unknown failure code %q for %s", msg.Code, msg.ObjectID)
	}
	mine := msg.PlayerID == "" || msg.PlayerID == s.PlayerID()

	if msg.Success {
		s.registry.Remove(msg.ObjectID)
		// Results are broadcast to everyone interested in the chunk; only
		// the harvesting player collects.
		if mine && s.sink != nil {
			for _, stack := range msg.Resources {
				s.sink.AddResource(string(stack.ResourceType), stack.Amount)
			}
		}
	}

	if mine {
		s.mu.Lock()
		ch, ok := s.pending[msg.ObjectID]
		if ok {
			delete(s.pending, msg.ObjectID)
		}
		s.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (s *Sync) dropPending(objectID string) {
	s.mu.Lock()
	delete(s.pending, objectID)
	s.mu.Unlock()
}

func (s *Sync) failResult(objectID, code, message string) protocol.HarvestResultMsg {
	return protocol.HarvestResultMsg{
		Type:     protocol.TypeHarvestResult,
		Success:  false,
		ObjectID: objectID,
		Code:     code,
		Message:  message,
	}
}

func (s *Sync) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
