// Package reconcile folds raw fault/alarm events into component state
// snapshots. The engine is deterministic: the same previous snapshot,
// event batch and model always produce the same result, so a cycle can
// safely be re-run at any cadence.
package reconcile

import (
	"time"

	"github.com/carverauto/faultradar/pkg/equipment"
	"github.com/carverauto/faultradar/pkg/models"
)

// Engine reconciles event batches for one source against one model.
// Rebuild the engine when the model or the active source changes.
type Engine struct {
	model  *equipment.Model
	mode   models.ReconcileMode
	source string
}

// NewEngine creates an engine for the given model and source
// reconciliation mode.
func NewEngine(model *equipment.Model, mode models.ReconcileMode, source string) (*Engine, error) {
	if model == nil {
		return nil, ErrNilModel
	}

	return &Engine{model: model, mode: mode, source: source}, nil
}

// Mode returns the reconciliation mode the engine applies.
func (e *Engine) Mode() models.ReconcileMode {
	return e.mode
}

// Apply produces the next snapshot from the previous one and this
// cycle's event batch. prev may be nil for the first cycle. Individual
// events never fail reconciliation: codes that resolve to no component
// land on the unassigned pseudo-component.
func (e *Engine) Apply(prev *models.Snapshot, events []models.RawEvent, now time.Time) *models.Snapshot {
	active := e.seedActive(prev)

	for i := range events {
		e.applyEvent(active, &events[i])
	}

	return e.buildSnapshot(prev, active, now)
}

// Baseline returns an all-normal snapshot for the engine's model, used
// when a source starts or a new model is installed.
func (e *Engine) Baseline(now time.Time) *models.Snapshot {
	return e.buildSnapshot(nil, map[string]map[string]models.EventKind{}, now)
}

// seedActive builds the working code sets this cycle starts from. In
// snapshot mode the batch is the whole truth, so the seed is empty; in
// edge mode previously active codes persist until explicitly cleared.
func (e *Engine) seedActive(prev *models.Snapshot) map[string]map[string]models.EventKind {
	active := make(map[string]map[string]models.EventKind)

	if e.mode != models.ModeEdge || prev == nil {
		return active
	}

	for id, cs := range prev.Components {
		if len(cs.ActiveCodes) == 0 {
			continue
		}

		codes := make(map[string]models.EventKind, len(cs.ActiveCodes))
		for code, kind := range cs.ActiveCodes {
			codes[code] = kind
		}

		active[id] = codes
	}

	return active
}

func (e *Engine) applyEvent(active map[string]map[string]models.EventKind, ev *models.RawEvent) {
	if ev.Kind == models.KindClear {
		e.applyClear(active, ev)
		return
	}

	target := e.resolve(ev)

	codes, ok := active[target]
	if !ok {
		codes = make(map[string]models.EventKind)
		active[target] = codes
	}

	codes[ev.Code] = ev.Kind
}

// applyClear removes codes. A clear with no code empties everything
// (the simulator's clear-all); a clear naming a code removes just that
// code from its component.
func (e *Engine) applyClear(active map[string]map[string]models.EventKind, ev *models.RawEvent) {
	if ev.Code == "" {
		for id := range active {
			delete(active, id)
		}

		return
	}

	target := e.resolve(ev)
	if codes, ok := active[target]; ok {
		delete(codes, ev.Code)

		if len(codes) == 0 {
			delete(active, target)
		}
	}
}

// resolve picks the component an event belongs to. A valid component
// hint from the source wins; otherwise the model's code maps decide;
// unresolved codes go to the unassigned bucket.
func (e *Engine) resolve(ev *models.RawEvent) string {
	if ev.ComponentHint != "" && e.model.HasComponent(ev.ComponentHint) {
		return ev.ComponentHint
	}

	switch ev.Kind {
	case models.KindFault:
		return e.model.ResolveFault(ev.Code)
	case models.KindAlarm:
		return e.model.ResolveAlarm(ev.Code)
	case models.KindClear:
		// A cleared code may be either kind; try both maps.
		if id := e.model.ResolveFault(ev.Code); id != models.UnassignedComponent {
			return id
		}

		return e.model.ResolveAlarm(ev.Code)
	default:
		return models.UnassignedComponent
	}
}

func (e *Engine) buildSnapshot(prev *models.Snapshot, active map[string]map[string]models.EventKind, now time.Time) *models.Snapshot {
	snap := &models.Snapshot{
		Sequence:    1,
		Source:      e.source,
		GeneratedAt: now,
		Components:  make(map[string]models.ComponentState, len(e.model.Components)+1),
	}

	if prev != nil {
		snap.Sequence = prev.Sequence + 1
	}

	for i := range e.model.Components {
		id := e.model.Components[i].ID
		snap.Components[id] = e.componentState(prev, id, active[id], now)
	}

	snap.Components[models.UnassignedComponent] = e.componentState(
		prev, models.UnassignedComponent, active[models.UnassignedComponent], now)

	return snap
}

// componentState derives one component's entry. lastChanged moves only
// on a status transition, which is the renderer's debounce signal.
func (*Engine) componentState(prev *models.Snapshot, id string, codes map[string]models.EventKind, now time.Time) models.ComponentState {
	cs := models.ComponentState{
		ComponentID: id,
		Status:      statusOf(codes),
		LastChanged: now,
	}

	if len(codes) > 0 {
		cs.ActiveCodes = make(map[string]models.EventKind, len(codes))
		for code, kind := range codes {
			cs.ActiveCodes[code] = kind
		}
	}

	if prev != nil {
		if prevCS, ok := prev.Components[id]; ok && prevCS.Status == cs.Status {
			cs.LastChanged = prevCS.LastChanged
		}
	}

	return cs
}

// statusOf applies the display precedence: fault over alarm over normal.
func statusOf(codes map[string]models.EventKind) models.Status {
	status := models.StatusNormal

	for _, kind := range codes {
		if kind == models.KindFault {
			return models.StatusFault
		}

		if kind == models.KindAlarm {
			status = models.StatusAlarm
		}
	}

	return status
}
