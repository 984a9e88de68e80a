// Package power switches the USB hub ports that feed the device chains.
package power

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mfkiwl/SRAM-Acquisition/logger"
)

const (
	// DefaultCommand is the hub control utility.
	DefaultCommand = "ykushcmd"
	// AllPorts selects every downstream hub port.
	AllPorts = "a"
)

// ErrCommandFailed is returned when the hub utility exits unsuccessfully.
var ErrCommandFailed = errors.New("power: command failed")

// Switch turns the chains on and off.
type Switch interface {
	On(ctx context.Context) error
	Off(ctx context.Context) error
}

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command through os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()

	return out.Bytes(), err
}

// Hub drives a YKUSH style hub: "<cmd> -u <port>" powers up, "<cmd> -d
// <port>" powers down. The utility usually needs superuser rights.
type Hub struct {
	command string
	port    string
	run     Runner
	logger  logger.Logger
}

var _ Switch = (*Hub)(nil)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithPort selects the hub port, AllPorts by default.
func WithPort(port string) HubOption {
	return func(h *Hub) {
		if port != "" {
			h.port = port
		}
	}
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) HubOption {
	return func(h *Hub) {
		if r != nil {
			h.run = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates a hub switch running command. An empty command uses
// DefaultCommand.
func NewHub(command string, opts ...HubOption) *Hub {
	if command == "" {
		command = DefaultCommand
	}

	h := &Hub{
		command: command,
		port:    AllPorts,
		run:     ExecRunner,
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Port returns the selected hub port.
func (h *Hub) Port() string { return h.port }

// On powers the selected hub port up.
func (h *Hub) On(ctx context.Context) error {
	return h.exec(ctx, "-u")
}

// Off powers the selected hub port down.
func (h *Hub) Off(ctx context.Context) error {
	return h.exec(ctx, "-d")
}

func (h *Hub) exec(ctx context.Context, flag string) error {
	h.logger.Debug("power: run", "command", h.command, "flag", flag, "port", h.port)

	out, err := h.run(ctx, h.command, flag, h.port)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%w: %s %s %s: %v: %s", ErrCommandFailed, h.command, flag, h.port, err, msg)
		}

		return fmt.Errorf("%w: %s %s %s: %v", ErrCommandFailed, h.command, flag, h.port, err)
	}

	return nil
}

// Nop is a Switch that does nothing, for setups without a controllable hub.
type Nop struct{}

func (Nop) On(context.Context) error  { return nil }
func (Nop) Off(context.Context) error { return nil }
