// Package launcher prepares the environment the debug adapter is started in:
// it finds a usable runtime and describes the command an editor must spawn.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrBusy            = errors.New("environment preparation already in progress")
	ErrRuntimeNotFound = errors.New("no runtime found")
	ErrEntryNotFound   = errors.New("adapter entry point not found")
)

// Descriptor is everything needed to spawn the adapter process.
type Descriptor struct {
	ExecutablePath string   `json:"executablePath"`
	Args           []string `json:"args"`
	Cwd            string   `json:"cwd"`
	Env            []string `json:"env"`
}

// ProbeFunc checks whether command can be run.
type ProbeFunc func(ctx context.Context, command string) error

// Provisioner locates a runtime and builds a Descriptor for Entry. Only one
// preparation runs at a time per Provisioner.
type Provisioner struct {
	// Candidates are tried in order; the first that passes Probe wins.
	Candidates []string
	// Entry is the script or binary handed to the runtime as first argument.
	// When Candidates is empty Entry is executed directly.
	Entry string
	Args  []string
	// Env overrides entries of the inherited environment.
	Env map[string]string

	Probe   ProbeFunc
	Environ func() []string

	mu sync.Mutex
}

// VersionProbe runs `command --version` and reports whether it succeeded.
func VersionProbe(ctx context.Context, command string) error {
	return exec.CommandContext(ctx, command, "--version").Run()
}

// Prepare finds a runtime and returns the launch descriptor. It fails with
// ErrBusy when another Prepare on p has not returned yet.
func (p *Provisioner) Prepare(ctx context.Context) (Descriptor, error) {
	if !p.mu.TryLock() {
		return Descriptor{}, ErrBusy
	}
	defer p.mu.Unlock()

	entry, err := filepath.Abs(p.Entry)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %s: %v", ErrEntryNotFound, p.Entry, err)
	}
	if _, err := os.Stat(entry); err != nil {
		return Descriptor{}, fmt.Errorf("%w at: %s", ErrEntryNotFound, entry)
	}

	d := Descriptor{
		Cwd: filepath.Dir(entry),
		Env: p.environment(),
	}
	if len(p.Candidates) == 0 {
		d.ExecutablePath = entry
		d.Args = append([]string{}, p.Args...)
		return d, nil
	}

	command, err := p.locate(ctx)
	if err != nil {
		return Descriptor{}, err
	}
	d.ExecutablePath = command
	d.Args = append([]string{entry}, p.Args...)
	return d, nil
}

func (p *Provisioner) locate(ctx context.Context) (string, error) {
	probe := p.Probe
	if probe == nil {
		probe = VersionProbe
	}
	for _, c := range p.Candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := probe(ctx, c); err != nil {
			continue
		}
		return c, nil
	}
	return "", fmt.Errorf("%w in PATH (tried %s)", ErrRuntimeNotFound, strings.Join(p.Candidates, ", "))
}

func (p *Provisioner) environment() []string {
	environ := p.Environ
	if environ == nil {
		environ = os.Environ
	}
	env := map[string]string{}
	for _, kv := range environ() {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	for k, v := range p.Env {
		env[k] = v
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
