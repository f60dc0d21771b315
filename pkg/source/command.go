package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/carverauto/faultradar/pkg/config"
	"github.com/carverauto/faultradar/pkg/models"
)

const defaultShell = "/bin/sh"

// CommandConfig configures a command source.
type CommandConfig struct {
	Command string          `json:"command"`
	Shell   string          `json:"shell,omitempty"`
	Timeout config.Duration `json:"timeout,omitempty"`
}

// CommandSource polls by running a command and decoding a single JSON
// document from its stdout:
//
//	{"faults": [{"id": "F30012", "desc": "...", "component": "..."}], "alarms": [...]}
//
// Each run reports the complete current state, so the source operates
// in snapshot mode and a successful run with no entries clears
// everything. The process is spawned fresh on every poll and killed
// when the poll deadline expires.
type CommandSource struct {
	name   string
	config CommandConfig

	mu         sync.Mutex
	connected  bool
	lastPollOK bool
}

// NewCommandSource is the registry factory for command sources.
func NewCommandSource(_ context.Context, name string, raw json.RawMessage) (Source, error) {
	var cfg CommandConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse command source config: %w", err)
		}
	}

	if cfg.Command == "" {
		return nil, errEmptyCommand
	}

	if cfg.Shell == "" {
		cfg.Shell = defaultShell
	}

	return &CommandSource{name: name, config: cfg, lastPollOK: true}, nil
}

func (c *CommandSource) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = true
	c.lastPollOK = true

	return nil
}

func (c *CommandSource) Poll(ctx context.Context) ([]models.RawEvent, error) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil, ErrNotConnected
	}

	if timeout := time.Duration(c.config.Timeout); timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.config.Shell, "-c", c.config.Command)

	output, err := cmd.Output()
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.setPollOK(false)

		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, c.config.Command)
		}

		return nil, ctxErr
	}

	if err != nil {
		c.setPollOK(false)

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr := bytes.TrimSpace(exitErr.Stderr)
			if len(stderr) > 0 {
				return nil, fmt.Errorf("%w: %s: %s", ErrAdapterFailed, exitErr, stderr)
			}

			return nil, fmt.Errorf("%w: %s", ErrAdapterFailed, exitErr)
		}

		return nil, fmt.Errorf("failed to run %q: %w", c.config.Command, err)
	}

	events, err := parseCommandOutput(output)
	if err != nil {
		c.setPollOK(false)
		return nil, err
	}

	c.setPollOK(true)

	return events, nil
}

func (c *CommandSource) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false

	return nil
}

func (c *CommandSource) Health() models.SourceHealth {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.connected:
		return models.HealthDisconnected
	case !c.lastPollOK:
		return models.HealthDegraded
	default:
		return models.HealthConnected
	}
}

func (*CommandSource) Mode() models.ReconcileMode {
	return models.ModeSnapshot
}

func (c *CommandSource) Name() string {
	return c.name
}

func (c *CommandSource) setPollOK(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastPollOK = ok
}

type commandPayload struct {
	Faults []commandEntry `json:"faults"`
	Alarms []commandEntry `json:"alarms"`
}

type commandEntry struct {
	ID          string `json:"id"`
	Description string `json:"desc,omitempty"`
	Component   string `json:"component,omitempty"`
}

func parseCommandOutput(output []byte) ([]models.RawEvent, error) {
	doc := bytes.TrimSpace(output)
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrMalformed)
	}

	var payload commandPayload
	if err := json.Unmarshal(doc, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	events := make([]models.RawEvent, 0, len(payload.Faults)+len(payload.Alarms))

	for _, f := range payload.Faults {
		if f.ID == "" {
			return nil, fmt.Errorf("%w: fault entry without id", ErrMalformed)
		}

		events = append(events, models.RawEvent{
			Kind:          models.KindFault,
			Code:          f.ID,
			Description:   f.Description,
			ComponentHint: f.Component,
		})
	}

	for _, a := range payload.Alarms {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: alarm entry without id", ErrMalformed)
		}

		events = append(events, models.RawEvent{
			Kind:          models.KindAlarm,
			Code:          a.ID,
			Description:   a.Description,
			ComponentHint: a.Component,
		})
	}

	return events, nil
}
