package action

import (
	"log"

	"github.com/KBVE/bugwars-sub002/internal/geom"
	"github.com/KBVE/bugwars-sub002/internal/protocol"
)

// Actor is the entity performing an action. The action never owns the actor's
// lifetime; it only reads position for range checks.
type Actor interface {
	ID() string
	Position() geom.Vec3
}

// Target is any world object an action can be aimed at. Alive stands in for
// "has this referent been destroyed": targets are handles into a registry, not
// owned references.
type Target interface {
	ObjectID() string
	Position() geom.Vec3
	Alive() bool
}

// Interactable is a Target that supports the single-holder interaction lock.
// BeginInteraction returns false when another actor already holds the lock;
// EndInteraction is an idempotent release.
type Interactable interface {
	Target
	BeginInteraction(actor Actor) bool
	EndInteraction()
	HarvestTime() float64
	Resource() protocol.ResourceType
}

// HarvestOutcome is the payload of a successful harvest.
type HarvestOutcome struct {
	ResourceType protocol.ResourceType
	Amount       int
	ObjectID     string
}

// Result is the terminal outcome of one action execution. Completion always
// reaches the Completed state; Success in the payload tells the caller whether
// the action actually paid out (a completion-time race reports Success=false).
type Result struct {
	Success bool
	Code    string
	Message string
	Harvest *HarvestOutcome
}

// Hooks is the contract a concrete action implements against the base state
// machine.
type Hooks interface {
	// OnActionStart validates preconditions and acquires resources. Returning
	// false is the sole explicit-failure path; the action transitions to
	// Failed and never ticks.
	OnActionStart() bool
	// OnProgressUpdate runs once per tick while InProgress. It may call
	// Cancel on the base action (target destroyed, actor walked away).
	OnProgressUpdate(progress float64)
	// OnActionComplete produces the terminal result. It runs inside the
	// Completing transition on the tick that progress reaches 1.
	OnActionComplete() Result
	// OnActionCancel releases anything OnActionStart acquired.
	OnActionCancel()
}

// resetGrace is how long a finished action stays observable in its terminal
// state before snapping back to Idle for reuse.
const resetGrace = 0.1

// Action is the reusable state machine for one entity's in-flight interaction.
// All transitions happen on the owner's tick goroutine; there is no internal
// locking.
type Action struct {
	name  string
	hooks Hooks
	log   *log.Logger

	state    State
	progress float64
	elapsed  float64
	duration float64

	canCancel bool
	resetIn   float64

	actor  Actor
	target Target

	result      chan Result
	onCompleted []func(Result)
	onCancelled []func()
}

func New(name string, hooks Hooks, logger *log.Logger) *Action {
	return &Action{
		name:      name,
		hooks:     hooks,
		log:       logger,
		state:     Idle,
		canCancel: true,
	}
}

func (a *Action) Name() string      { return a.name }
func (a *Action) State() State      { return a.state }
func (a *Action) Progress() float64 { return a.progress }
func (a *Action) Actor() Actor      { return a.actor }
func (a *Action) Target() Target    { return a.target }

// SetName lets a concrete action derive a human-readable name per target.
func (a *Action) SetName(name string) { a.name = name }

// SetDuration is called from OnActionStart so the duration always reflects the
// current target, not a previous one.
func (a *Action) SetDuration(seconds float64) { a.duration = seconds }

func (a *Action) SetCancellable(v bool) { a.canCancel = v }

// OnCompleted registers an observer for terminal results (Completed and
// Failed). Observers persist across executions.
func (a *Action) OnCompleted(fn func(Result)) {
	a.onCompleted = append(a.onCompleted, fn)
}

// OnCancelled registers an observer for cancellations.
func (a *Action) OnCancelled(fn func()) {
	a.onCancelled = append(a.onCancelled, fn)
}

// Execute starts the action against target. The returned channel yields the
// terminal Result; it is closed without a value when the action was not Idle
// (logged, not an error).
func (a *Action) Execute(actor Actor, target Target) <-chan Result {
	if a.state != Idle {
		if a.log != nil {
			a.log.Printf("%s: Execute called in state %s, ignoring", a.name, a.state)
		}
		ch := make(chan Result)
		close(ch)
		return ch
	}

	a.actor = actor
	a.target = target
	a.elapsed = 0
	a.progress = 0
	a.result = make(chan Result, 1)
	a.state = Starting

	if !a.hooks.OnActionStart() {
		a.state = Failed
		a.resetIn = resetGrace
		res := Result{Success: false, Code: protocol.ErrBadRequest, Message: a.name + " could not start"}
		a.publish(res)
		return a.result
	}

	a.state = InProgress
	return a.result
}

// Update advances the action by dt seconds. The owner calls it once per tick;
// it is a no-op outside InProgress except for the grace countdown back to
// Idle.
func (a *Action) Update(dt float64) {
	switch a.state {
	case InProgress:
		a.elapsed += dt
		if a.duration <= 0 {
			a.progress = 1
		} else {
			a.progress = clamp01(a.elapsed / a.duration)
		}
		a.hooks.OnProgressUpdate(a.progress)
		if a.state != InProgress {
			// Cancelled from inside the hook.
			return
		}
		if a.progress >= 1 {
			a.state = Completing
			a.complete()
		}
	case Completed, Cancelled, Failed:
		a.resetIn -= dt
		if a.resetIn <= 0 {
			a.reset()
		}
	}
}

// Cancel requests cooperative cancellation. It is a no-op unless the action is
// InProgress and cancellable. Cancelled actions return to Idle after the same
// grace delay as completed ones.
func (a *Action) Cancel() {
	if !a.canCancel || a.state != InProgress {
		return
	}
	a.state = Cancelled
	a.progress = 0
	a.resetIn = resetGrace
	a.hooks.OnActionCancel()
	for _, fn := range a.onCancelled {
		fn()
	}
	if a.result != nil {
		a.result <- Result{Success: false, Code: protocol.ErrConflict, Message: a.name + " cancelled"}
		a.result = nil
	}
}

func (a *Action) complete() {
	res := a.hooks.OnActionComplete()
	a.state = Completed
	a.progress = 1
	a.resetIn = resetGrace
	a.publish(res)
}

func (a *Action) publish(res Result) {
	for _, fn := range a.onCompleted {
		fn(res)
	}
	if a.result != nil {
		a.result <- res
		a.result = nil
	}
}

func (a *Action) reset() {
	a.state = Idle
	a.progress = 0
	a.elapsed = 0
	a.actor = nil
	a.target = nil
	a.result = nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
