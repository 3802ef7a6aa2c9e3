package action

import (
	"testing"

	"github.com/KBVE/bugwars-sub002/internal/geom"
	"github.com/KBVE/bugwars-sub002/internal/protocol"
)

type testActor struct {
	id  string
	pos geom.Vec3
}

func (a *testActor) ID() string          { return a.id }
func (a *testActor) Position() geom.Vec3 { return a.pos }

// testObject is a minimal interactable world object with the single-holder
// lock the capability contract requires.
type testObject struct {
	id          string
	pos         geom.Vec3
	alive       bool
	harvestTime float64
	resource    protocol.ResourceType
	holder      Actor
}

func newTestObject(id string, harvestTime float64, res protocol.ResourceType) *testObject {
	return &testObject{id: id, alive: true, harvestTime: harvestTime, resource: res}
}

func (o *testObject) ObjectID() string                { return o.id }
func (o *testObject) Position() geom.Vec3             { return o.pos }
func (o *testObject) Alive() bool                     { return o.alive }
func (o *testObject) HarvestTime() float64            { return o.harvestTime }
func (o *testObject) Resource() protocol.ResourceType { return o.resource }

func (o *testObject) BeginInteraction(actor Actor) bool {
	if o.holder != nil {
		return false
	}
	o.holder = actor
	return true
}

func (o *testObject) EndInteraction() { o.holder = nil }

// scriptedHooks drives the base state machine directly.
type scriptedHooks struct {
	startOK    bool
	progressed []float64
	completed  bool
	cancelled  bool
	result     Result
}

func (s *scriptedHooks) OnActionStart() bool { return s.startOK }
func (s *scriptedHooks) OnProgressUpdate(p float64) {
	s.progressed = append(s.progressed, p)
}
func (s *scriptedHooks) OnActionComplete() Result {
	s.completed = true
	return s.result
}
func (s *scriptedHooks) OnActionCancel() { s.cancelled = true }

func tickFor(a *Action, dt, total float64) {
	for t := 0.0; t < total; t += dt {
		a.Update(dt)
	}
}

func TestAction_LifecycleToCompleted(t *testing.T) {
	hooks := &scriptedHooks{startOK: true, result: Result{Success: true}}
	a := New("test", hooks, nil)
	a.SetDuration(1.0)

	actor := &testActor{id: "E1"}
	obj := newTestObject("obj_1", 1.0, protocol.ResourceWood)

	ch := a.Execute(actor, obj)
	if got := a.State(); got != InProgress {
		t.Fatalf("state after Execute = %s, want InProgress", got)
	}

	tickFor(a, 0.1, 1.05)
	if got := a.State(); got != Completed {
		t.Fatalf("state after full duration = %s, want Completed", got)
	}
	if a.Progress() != 1 {
		t.Fatalf("progress = %v, want 1", a.Progress())
	}
	if !hooks.completed {
		t.Fatalf("OnActionComplete not invoked")
	}

	select {
	case res := <-ch:
		if !res.Success {
			t.Fatalf("result.Success = false, want true")
		}
	default:
		t.Fatalf("result channel empty after completion")
	}

	// Grace delay returns the instance to Idle for reuse.
	tickFor(a, 0.05, 0.2)
	if got := a.State(); got != Idle {
		t.Fatalf("state after grace delay = %s, want Idle", got)
	}
}

func TestAction_ExecuteWhileActiveIsNoOp(t *testing.T) {
	hooks := &scriptedHooks{startOK: true, result: Result{Success: true}}
	a := New("test", hooks, nil)
	a.SetDuration(2.0)

	actor := &testActor{id: "E1"}
	obj := newTestObject("obj_1", 2.0, protocol.ResourceWood)

	a.Execute(actor, obj)
	a.Update(0.5)
	progressBefore := a.Progress()

	ch := a.Execute(actor, obj)
	if _, ok := <-ch; ok {
		t.Fatalf("second Execute yielded a result, want closed empty channel")
	}
	if a.State() != InProgress || a.Progress() != progressBefore {
		t.Fatalf("second Execute disturbed the running action: state=%s progress=%v", a.State(), a.Progress())
	}
}

func TestAction_StartFailureReachesFailedThenIdle(t *testing.T) {
	hooks := &scriptedHooks{startOK: false}
	a := New("test", hooks, nil)

	ch := a.Execute(&testActor{id: "E1"}, newTestObject("obj_1", 1, protocol.ResourceWood))
	if got := a.State(); got != Failed {
		t.Fatalf("state = %s, want Failed", got)
	}
	res := <-ch
	if res.Success {
		t.Fatalf("start failure reported Success=true")
	}
	if len(hooks.progressed) != 0 {
		t.Fatalf("failed action ticked %d times", len(hooks.progressed))
	}

	tickFor(a, 0.05, 0.2)
	if got := a.State(); got != Idle {
		t.Fatalf("state after grace delay = %s, want Idle", got)
	}
}

func TestAction_CancelMidFlight(t *testing.T) {
	hooks := &scriptedHooks{startOK: true, result: Result{Success: true}}
	a := New("test", hooks, nil)
	a.SetDuration(2.0)

	var cancelSignal bool
	a.OnCancelled(func() { cancelSignal = true })

	a.Execute(&testActor{id: "E1"}, newTestObject("obj_1", 2, protocol.ResourceWood))
	a.Update(0.5)
	a.Cancel()

	if got := a.State(); got != Cancelled {
		t.Fatalf("state = %s, want Cancelled", got)
	}
	if a.Progress() != 0 {
		t.Fatalf("progress after cancel = %v, want 0", a.Progress())
	}
	if !hooks.cancelled || !cancelSignal {
		t.Fatalf("cancel hook/signal not invoked: hook=%v signal=%v", hooks.cancelled, cancelSignal)
	}

	tickFor(a, 0.05, 0.2)
	if got := a.State(); got != Idle {
		t.Fatalf("state after grace delay = %s, want Idle", got)
	}
}

func TestAction_CancelIgnoredWhenNotCancellable(t *testing.T) {
	hooks := &scriptedHooks{startOK: true, result: Result{Success: true}}
	a := New("test", hooks, nil)
	a.SetDuration(1.0)
	a.SetCancellable(false)

	a.Execute(&testActor{id: "E1"}, newTestObject("obj_1", 1, protocol.ResourceWood))
	a.Update(0.2)
	a.Cancel()
	if got := a.State(); got != InProgress {
		t.Fatalf("state = %s, want InProgress", got)
	}
}

func TestAction_CancelIgnoredWhenIdle(t *testing.T) {
	hooks := &scriptedHooks{startOK: true}
	a := New("test", hooks, nil)
	a.Cancel()
	if got := a.State(); got != Idle {
		t.Fatalf("state = %s, want Idle", got)
	}
	if hooks.cancelled {
		t.Fatalf("cancel hook invoked on idle action")
	}
}

func TestState_Active(t *testing.T) {
	active := []State{Starting, InProgress, Completing}
	for _, s := range active {
		if !s.Active() {
			t.Errorf("%s.Active() = false, want true", s)
		}
	}
	inactive := []State{Idle, Completed, Cancelled, Failed}
	for _, s := range inactive {
		if s.Active() {
			t.Errorf("%s.Active() = true, want false", s)
		}
	}
}
