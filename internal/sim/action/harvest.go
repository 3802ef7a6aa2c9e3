package action

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/KBVE/bugwars-sub002/internal/protocol"
)

// DefaultHarvestRange must match whatever proximity check the caller uses for
// affordance highlighting, or objects that look harvestable will refuse to
// start.
const DefaultHarvestRange = 5.5

// Completer finalizes a harvest once the timer has run down and the range and
// liveness re-checks have passed. The networked completer round-trips to the server,
// which stays authoritative over object existence and rewards; in that mode
// the result carries no Harvest payload because the reward is delivered on the
// authoritative harvest_result path instead.
type Completer interface {
	CompleteHarvest(actor Actor, target Interactable) Result
}

// HarvestAction gathers a resource from a locked interactable. One instance
// lives per entity and is reused for every target that entity harvests.
type HarvestAction struct {
	base *Action
	log  *log.Logger

	harvestRange  float64
	destroyTarget func(Interactable)
	completer     Completer
	rng           *rand.Rand

	// Re-resolved from the base target on every start; never carried across
	// invocations.
	interactable Interactable
	resourceType protocol.ResourceType
}

type HarvestOption func(*HarvestAction)

func WithHarvestRange(r float64) HarvestOption {
	return func(h *HarvestAction) { h.harvestRange = r }
}

// WithDestroy installs the callback that removes the target from the world on
// local completion. Leave unset in networked mode: the server confirms removal.
func WithDestroy(fn func(Interactable)) HarvestOption {
	return func(h *HarvestAction) { h.destroyTarget = fn }
}

// WithCompleter switches completion to an external authority.
func WithCompleter(c Completer) HarvestOption {
	return func(h *HarvestAction) { h.completer = c }
}

func WithRand(rng *rand.Rand) HarvestOption {
	return func(h *HarvestAction) { h.rng = rng }
}

func NewHarvestAction(logger *log.Logger, opts ...HarvestOption) *HarvestAction {
	h := &HarvestAction{
		log:          logger,
		harvestRange: DefaultHarvestRange,
	}
	h.base = New("Harvest", h, logger)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Base exposes the underlying state machine for Execute/Update/Cancel and
// observer wiring.
func (h *HarvestAction) Base() *Action { return h.base }

func (h *HarvestAction) HarvestRange() float64 { return h.harvestRange }

// CanHarvest is a pure range and capability check with no side effects, usable
// for UI affordance without mutating state.
func (h *HarvestAction) CanHarvest(actor Actor, candidate Target) bool {
	if actor == nil || candidate == nil || !candidate.Alive() {
		return false
	}
	if _, ok := candidate.(Interactable); !ok {
		return false
	}
	return actor.Position().Dist(candidate.Position()) <= h.harvestRange
}

func (h *HarvestAction) OnActionStart() bool {
	actor := h.base.Actor()
	target := h.base.Target()
	if actor == nil || target == nil || !target.Alive() {
		h.logf("harvest: no target")
		return false
	}

	// Re-resolve from the current target every start: the same instance
	// serves different targets over its lifetime and the duration must
	// always be the current target's.
	it, ok := target.(Interactable)
	if !ok {
		h.logf("harvest: target %s is not interactable", target.ObjectID())
		return false
	}
	h.configureFrom(it)

	if actor.Position().Dist(target.Position()) > h.harvestRange {
		h.logf("harvest: %s out of range", target.ObjectID())
		return false
	}
	if !it.BeginInteraction(actor) {
		h.logf("harvest: %s already being harvested", target.ObjectID())
		return false
	}
	h.interactable = it
	return true
}

func (h *HarvestAction) configureFrom(it Interactable) {
	h.base.SetDuration(it.HarvestTime())
	h.resourceType = it.Resource()
	h.base.SetName(fmt.Sprintf("Harvest %s", h.resourceType))
}

func (h *HarvestAction) OnProgressUpdate(float64) {
	// Guard against spurious calls during the Completing transition: the
	// completion path itself destroys the target and we must not read that as
	// a mid-flight destruction.
	if h.base.State() != InProgress {
		return
	}
	actor := h.base.Actor()
	target := h.base.Target()
	if target == nil || !target.Alive() {
		h.logf("harvest: target destroyed mid-harvest")
		h.base.Cancel()
		return
	}
	if actor == nil || actor.Position().Dist(target.Position()) > h.harvestRange {
		h.logf("harvest: actor left range mid-harvest")
		h.base.Cancel()
	}
}

func (h *HarvestAction) OnActionComplete() Result {
	actor := h.base.Actor()
	target := h.base.Target()
	it := h.interactable
	h.interactable = nil

	// The target can vanish between the last progress tick and this exact
	// instant; no reward in that case.
	if target == nil || !target.Alive() || it == nil {
		return Result{Success: false, Code: protocol.ErrInvalidTarget, Message: "target destroyed"}
	}
	// Same for range: starting a harvest and walking away must not pay out.
	if actor == nil || actor.Position().Dist(target.Position()) > h.harvestRange {
		it.EndInteraction()
		return Result{Success: false, Code: protocol.ErrOutOfRange, Message: "out of range"}
	}

	if h.completer != nil {
		res := h.completer.CompleteHarvest(actor, it)
		it.EndInteraction()
		return res
	}

	amount := h.rollAmount()
	objectID := it.ObjectID()

	// Release the lock before destroying, and destroy before reporting: the
	// reward is never granted for an object that is already gone.
	it.EndInteraction()
	if h.destroyTarget != nil {
		h.destroyTarget(it)
	}

	return Result{
		Success: true,
		Message: fmt.Sprintf("harvested %d %s", amount, h.resourceType),
		Harvest: &HarvestOutcome{
			ResourceType: h.resourceType,
			Amount:       amount,
			ObjectID:     objectID,
		},
	}
}

func (h *HarvestAction) OnActionCancel() {
	if h.interactable != nil {
		h.interactable.EndInteraction()
		h.interactable = nil
	}
}

func (h *HarvestAction) rollAmount() int {
	switch h.resourceType {
	case protocol.ResourceWood:
		return 5 + h.intn(3)
	case protocol.ResourceNone, "":
		return 1 + h.intn(2)
	default:
		return 3 + h.intn(3)
	}
}

func (h *HarvestAction) intn(n int) int {
	if h.rng != nil {
		return h.rng.Intn(n)
	}
	return rand.Intn(n)
}

func (h *HarvestAction) logf(format string, args ...any) {
	if h.log != nil {
		h.log.Printf(format, args...)
	}
}
