// Package equipment loads and validates the equipment model document:
// the components on the diagram, their connections, the fault/alarm
// code maps and the display palette. A model is immutable after load;
// installing a different model is a wholesale swap, never an in-place
// edit.
package equipment

import (
	"fmt"

	"github.com/carverauto/faultradar/pkg/config"
	"github.com/carverauto/faultradar/pkg/models"
)

// Component is one diagram element.
type Component struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	W    int    `json:"w"`
	H    int    `json:"h"`
}

// Connection is a directed edge between two components.
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StateColors is the fill/outline pair used to render one status.
type StateColors struct {
	Fill    string `json:"fill"`
	Outline string `json:"outline"`
}

// Model is the validated equipment model.
type Model struct {
	Title       string                        `json:"title"`
	Components  []Component                   `json:"components"`
	Connections []Connection                  `json:"connections"`
	FaultMap    map[string]string             `json:"fault_map"`
	AlarmMap    map[string]string             `json:"alarm_map"`
	Colors      map[models.Status]StateColors `json:"colors"`

	byID map[string]*Component
}

var defaultColors = map[models.Status]StateColors{
	models.StatusNormal: {Fill: "#2e3440", Outline: "#4c566a"},
	models.StatusFault:  {Fill: "#bf616a", Outline: "#d08770"},
	models.StatusAlarm:  {Fill: "#ebcb8b", Outline: "#d08770"},
}

// Load reads a model document from path and validates it. Invalid or
// partial documents are rejected; the caller's previous model, if any,
// stays untouched.
func Load(path string) (*Model, error) {
	var m Model

	if err := config.LoadFile(path, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	return &m, nil
}

// Validate checks the structural invariants: unique non-empty component
// ids, connection endpoints and code map targets that all resolve. On
// success it also prepares the model's lookup index, so a model built
// in memory is usable once Validate returns nil.
func (m *Model) Validate() error {
	if len(m.Components) == 0 {
		return ErrNoComponents
	}

	seen := make(map[string]struct{}, len(m.Components))

	for i := range m.Components {
		id := m.Components[i].ID
		if id == "" {
			return fmt.Errorf("%w: component %d", ErrEmptyComponentID, i)
		}

		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateComponentID, id)
		}

		seen[id] = struct{}{}
	}

	for _, c := range m.Connections {
		if _, ok := seen[c.From]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownConnectionEnd, c.From)
		}

		if _, ok := seen[c.To]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownConnectionEnd, c.To)
		}
	}

	for code, target := range m.FaultMap {
		if _, ok := seen[target]; !ok {
			return fmt.Errorf("%w: %s -> %q", ErrUnknownFaultTarget, code, target)
		}
	}

	for code, target := range m.AlarmMap {
		if _, ok := seen[target]; !ok {
			return fmt.Errorf("%w: %s -> %q", ErrUnknownAlarmTarget, code, target)
		}
	}

	m.index()

	return nil
}

func (m *Model) index() {
	m.byID = make(map[string]*Component, len(m.Components))
	for i := range m.Components {
		m.byID[m.Components[i].ID] = &m.Components[i]
	}

	if m.Title == "" {
		m.Title = "Equipment"
	}

	if m.Colors == nil {
		m.Colors = make(map[models.Status]StateColors, len(defaultColors))
	}

	for status, colors := range defaultColors {
		if _, ok := m.Colors[status]; !ok {
			m.Colors[status] = colors
		}
	}
}

// Component returns the component definition for id.
func (m *Model) Component(id string) (*Component, bool) {
	c, ok := m.byID[id]
	return c, ok
}

// HasComponent reports whether id names a component in this model.
func (m *Model) HasComponent(id string) bool {
	_, ok := m.byID[id]
	return ok
}

// ResolveFault maps a fault code to its component id. Unknown codes
// land in the unassigned bucket, never an error.
func (m *Model) ResolveFault(code string) string {
	if id, ok := m.FaultMap[code]; ok {
		return id
	}

	return models.UnassignedComponent
}

// ResolveAlarm maps an alarm code to its component id.
func (m *Model) ResolveAlarm(code string) string {
	if id, ok := m.AlarmMap[code]; ok {
		return id
	}

	return models.UnassignedComponent
}

// StateColors returns the palette entry for status.
func (m *Model) StateColors(status models.Status) StateColors {
	if c, ok := m.Colors[status]; ok {
		return c
	}

	return defaultColors[status]
}
