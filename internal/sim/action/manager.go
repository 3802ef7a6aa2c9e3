package action

import "log"

// Manager owns at most one active action for one entity. A second start while
// one is active is rejected, not queued.
type Manager struct {
	actor Actor
	log   *log.Logger

	harvest *HarvestAction
	sink    Sink

	current    *Action
	performing bool
}

// Sink is the reward destination. The manager only dispatches; it never
// mutates inventory itself.
type Sink interface {
	AddResource(resourceType string, amount int)
}

func NewManager(actor Actor, harvest *HarvestAction, sink Sink, logger *log.Logger) *Manager {
	m := &Manager{
		actor:   actor,
		log:     logger,
		harvest: harvest,
		sink:    sink,
	}
	if harvest != nil {
		harvest.Base().OnCompleted(m.onActionCompleted)
		harvest.Base().OnCancelled(m.onActionCancelled)
	}
	return m
}

// StartHarvest begins harvesting target. It reports false when the entity is
// already performing an action or has no harvest capability configured.
func (m *Manager) StartHarvest(target Target) bool {
	if m.performing {
		m.logf("action manager: already performing %s, rejecting harvest", m.currentName())
		return false
	}
	if m.harvest == nil {
		m.logf("action manager: no harvest action configured")
		return false
	}
	if m.harvest.Base().State() != Idle {
		// Still in the grace window after the previous run; treat like busy.
		m.logf("action manager: harvest action not ready (%s)", m.harvest.Base().State())
		return false
	}
	m.current = m.harvest.Base()
	m.performing = true
	m.current.Execute(m.actor, target)
	return true
}

// Update ticks the owned actions. The harvest action is ticked even after the
// current slot clears so its grace reset back to Idle still runs.
func (m *Manager) Update(dt float64) {
	if m.harvest != nil {
		m.harvest.Base().Update(dt)
	}
}

// CancelCurrentAction delegates to the active action; no-op when none.
func (m *Manager) CancelCurrentAction() {
	if m.current != nil {
		m.current.Cancel()
	}
}

func (m *Manager) IsPerformingAction() bool { return m.performing }

// CurrentActionProgress returns 0 when no action is active.
func (m *Manager) CurrentActionProgress() float64 {
	if m.current == nil {
		return 0
	}
	return m.current.Progress()
}

// CurrentActionState returns Idle when no action is active.
func (m *Manager) CurrentActionState() State {
	if m.current == nil {
		return Idle
	}
	return m.current.State()
}

func (m *Manager) onActionCompleted(res Result) {
	m.current = nil
	m.performing = false
	if res.Success && res.Harvest != nil && m.sink != nil {
		m.sink.AddResource(string(res.Harvest.ResourceType), res.Harvest.Amount)
	}
	if !res.Success && res.Message != "" {
		m.logf("action manager: %s", res.Message)
	}
}

func (m *Manager) onActionCancelled() {
	m.current = nil
	m.performing = false
}

func (m *Manager) currentName() string {
	if m.current == nil {
		return "nothing"
	}
	return m.current.Name()
}

func (m *Manager) logf(format string, args ...any) {
	if m.log != nil {
		m.log.Printf(format, args...)
	}
}
