package envsync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/KBVE/bugwars-sub002/internal/geom"
	"github.com/KBVE/bugwars-sub002/internal/protocol"
)

type mockTransport struct {
	mu        sync.Mutex
	connected bool
	sent      []any
}

func (t *mockTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *mockTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, v)
	return nil
}

func (t *mockTransport) sentHarvests() []protocol.HarvestObjectMsg {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []protocol.HarvestObjectMsg
	for _, v := range t.sent {
		if m, ok := v.(protocol.HarvestObjectMsg); ok {
			out = append(out, m)
		}
	}
	return out
}

type countingSink struct {
	mu  sync.Mutex
	got map[string]int
}

func (s *countingSink) AddResource(resourceType string, amount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.got == nil {
		s.got = map[string]int{}
	}
	s.got[resourceType] += amount
}

func (s *countingSink) total(resourceType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.got[resourceType]
}

func treeData(id string) protocol.EnvironmentObjectData {
	return protocol.EnvironmentObjectData{
		ObjectID:       id,
		AssetName:      "Tree_Oak_01",
		ObjectType:     protocol.ObjectTree,
		ResourceType:   protocol.ResourceWood,
		ResourceAmount: 5,
		HarvestTime:    3.0,
	}
}

func newSyncFixture(t *testing.T, opts ...Option) (*Sync, *mockTransport, *countingSink) {
	t.Helper()
	tr := &mockTransport{connected: true}
	sink := &countingSink{}
	s := New(tr, NewRegistry(), sink, func() geom.Vec3 { return geom.Vec3{X: 1} }, nil, opts...)

	welcome, _ := json.Marshal(protocol.WelcomeMsg{
		Type:     protocol.TypeWelcome,
		PlayerID: "P1",
	})
	s.HandleMessage(welcome)
	return s, tr, sink
}

func deliver(t *testing.T, s *Sync, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s.HandleMessage(raw)
}

func TestSync_BulkSpawnIsIdempotent(t *testing.T) {
	s, _, _ := newSyncFixture(t)

	deliver(t, s, protocol.EnvironmentObjectsMsg{
		Type:    protocol.TypeEnvironmentObjects,
		Objects: []protocol.EnvironmentObjectData{treeData("tree_1"), treeData("tree_2")},
	})
	if got := s.Registry().Len(); got != 2 {
		t.Fatalf("registry size = %d, want 2", got)
	}

	// Same batch again: replaced in place, no duplicates.
	deliver(t, s, protocol.EnvironmentObjectsMsg{
		Type:    protocol.TypeEnvironmentObjects,
		Objects: []protocol.EnvironmentObjectData{treeData("tree_1")},
	})
	if got := s.Registry().Len(); got != 2 {
		t.Fatalf("registry size after re-spawn = %d, want 2", got)
	}
}

func TestSync_HarvestRoundTrip(t *testing.T) {
	s, tr, sink := newSyncFixture(t)
	deliver(t, s, protocol.EnvironmentObjectsMsg{
		Type:    protocol.TypeEnvironmentObjects,
		Objects: []protocol.EnvironmentObjectData{treeData("tree_1")},
	})

	done := make(chan protocol.HarvestResultMsg, 1)
	go func() { done <- s.RequestHarvest(context.Background(), "tree_1") }()

	// Exactly one harvest_object goes out, carrying the object id and the
	// requester position.
	waitFor(t, func() bool { return len(tr.sentHarvests()) == 1 })
	req := tr.sentHarvests()[0]
	if req.ObjectID != "tree_1" || req.PlayerPosition.X != 1 {
		t.Fatalf("request = %+v", req)
	}

	deliver(t, s, protocol.HarvestResultMsg{
		Type:     protocol.TypeHarvestResult,
		Success:  true,
		ObjectID: "tree_1",
		PlayerID: "P1",
		Resources: []protocol.ResourceStack{
			{ResourceType: protocol.ResourceWood, Amount: 5},
		},
	})

	res := <-done
	if !res.Success {
		t.Fatalf("response success = false: %s", res.Message)
	}
	if _, ok := s.Registry().Get("tree_1"); ok {
		t.Fatalf("object still in registry after confirmed harvest")
	}
	if got := sink.total(string(protocol.ResourceWood)); got != 5 {
		t.Fatalf("sink wood = %d, want 5", got)
	}
	if s.PendingRequests() != 0 {
		t.Fatalf("pending entries remain after response")
	}
}

func TestSync_HarvestTimeout(t *testing.T) {
	s, tr, _ := newSyncFixture(t, WithRequestTimeout(50*time.Millisecond))

	start := time.Now()
	res := s.RequestHarvest(context.Background(), "tree_1")
	if res.Success {
		t.Fatalf("timed-out request succeeded")
	}
	if res.Code != protocol.ErrTimeout || res.Message != "Request timed out" {
		t.Fatalf("timeout result = %+v", res)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("resolved before timeout: %v", elapsed)
	}
	if s.PendingRequests() != 0 {
		t.Fatalf("dangling pending entry after timeout")
	}
	if len(tr.sentHarvests()) != 1 {
		t.Fatalf("sent %d requests, want 1 (no retry)", len(tr.sentHarvests()))
	}
}

func TestSync_NotConnectedFailsFast(t *testing.T) {
	s, tr, _ := newSyncFixture(t)
	tr.mu.Lock()
	tr.connected = false
	tr.mu.Unlock()

	res := s.RequestHarvest(context.Background(), "tree_1")
	if res.Success || res.Code != protocol.ErrNotConnected || res.Message != "Not connected" {
		t.Fatalf("result = %+v", res)
	}
	if len(tr.sentHarvests()) != 0 {
		t.Fatalf("request sent while disconnected")
	}
}

func TestSync_ConcurrentRequestForSameObjectRejected(t *testing.T) {
	s, tr, _ := newSyncFixture(t, WithRequestTimeout(time.Second))

	first := make(chan protocol.HarvestResultMsg, 1)
	go func() { first <- s.RequestHarvest(context.Background(), "tree_1") }()
	waitFor(t, func() bool { return s.PendingRequests() == 1 })

	// The duplicate is rejected outright; the first waiter keeps its slot.
	dup := s.RequestHarvest(context.Background(), "tree_1")
	if dup.Success || dup.Code != protocol.ErrConflict {
		t.Fatalf("duplicate result = %+v", dup)
	}
	if got := len(tr.sentHarvests()); got != 1 {
		t.Fatalf("sent %d requests, want 1", got)
	}

	deliver(t, s, protocol.HarvestResultMsg{
		Type:     protocol.TypeHarvestResult,
		Success:  true,
		ObjectID: "tree_1",
		PlayerID: "P1",
	})
	if res := <-first; !res.Success {
		t.Fatalf("first waiter got %+v, want success", res)
	}
}

func TestSync_BroadcastResultForOtherPlayer(t *testing.T) {
	s, _, sink := newSyncFixture(t)
	deliver(t, s, protocol.EnvironmentObjectsMsg{
		Type:    protocol.TypeEnvironmentObjects,
		Objects: []protocol.EnvironmentObjectData{treeData("tree_1")},
	})

	// Someone else harvested the tree: it despawns here, but the reward is
	// theirs, not ours.
	deliver(t, s, protocol.HarvestResultMsg{
		Type:     protocol.TypeHarvestResult,
		Success:  true,
		ObjectID: "tree_1",
		PlayerID: "P2",
		Resources: []protocol.ResourceStack{
			{ResourceType: protocol.ResourceWood, Amount: 6},
		},
	})
	if _, ok := s.Registry().Get("tree_1"); ok {
		t.Fatalf("object not despawned on broadcast result")
	}
	if got := sink.total(string(protocol.ResourceWood)); got != 0 {
		t.Fatalf("collected another player's reward: %d", got)
	}
}

func TestSync_RespawnRematerializes(t *testing.T) {
	s, _, _ := newSyncFixture(t)
	deliver(t, s, protocol.ObjectRespawnedMsg{
		Type:       protocol.TypeObjectRespawned,
		ObjectID:   "tree_1",
		ObjectData: treeData("tree_1"),
	})
	o, ok := s.Registry().Get("tree_1")
	if !ok || !o.Alive() {
		t.Fatalf("respawned object not materialized")
	}
}

func TestSync_DespawnInvalidatesHandles(t *testing.T) {
	s, _, _ := newSyncFixture(t)
	deliver(t, s, protocol.EnvironmentObjectsMsg{
		Type:    protocol.TypeEnvironmentObjects,
		Objects: []protocol.EnvironmentObjectData{treeData("tree_1")},
	})
	handle, _ := s.Registry().Get("tree_1")

	deliver(t, s, protocol.EnvironmentDespawnMsg{
		Type:      protocol.TypeEnvironmentDespawn,
		ObjectIDs: []string{"tree_1"},
	})
	if handle.Alive() {
		t.Fatalf("stale handle still reads alive after despawn")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within 2s")
}
