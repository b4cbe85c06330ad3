package launcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adapter")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func probeOnly(ok ...string) ProbeFunc {
	return func(_ context.Context, command string) error {
		for _, c := range ok {
			if c == command {
				return nil
			}
		}
		return errors.New("not found")
	}
}

func TestPrepareFirstWorkingCandidate(t *testing.T) {
	entry := entryFile(t)
	p := &Provisioner{
		Candidates: []string{"python3", "python"},
		Entry:      entry,
		Args:       []string{"--stdin"},
		Env:        map[string]string{"RUST_LOG": "debug", "HOME": "/override"},
		Probe:      probeOnly("python"),
		Environ:    func() []string { return []string{"HOME=/home/me", "PATH=/bin"} },
	}
	d, err := p.Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "python", d.ExecutablePath)
	assert.Equal(t, []string{entry, "--stdin"}, d.Args)
	assert.Equal(t, filepath.Dir(entry), d.Cwd)
	assert.Equal(t, []string{"HOME=/override", "PATH=/bin", "RUST_LOG=debug"}, d.Env)
}

func TestPrepareWithoutCandidatesRunsEntry(t *testing.T) {
	entry := entryFile(t)
	p := &Provisioner{Entry: entry, Args: []string{"-d", "-s"}, Environ: func() []string { return nil }}
	d, err := p.Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entry, d.ExecutablePath)
	assert.Equal(t, []string{"-d", "-s"}, d.Args)
	assert.Empty(t, d.Env)
}

func TestPrepareRuntimeNotFound(t *testing.T) {
	p := &Provisioner{Candidates: []string{"python3"}, Entry: entryFile(t), Probe: probeOnly()}
	_, err := p.Prepare(context.Background())
	assert.ErrorIs(t, err, ErrRuntimeNotFound)
}

func TestPrepareEntryNotFound(t *testing.T) {
	p := &Provisioner{Entry: filepath.Join(t.TempDir(), "missing")}
	_, err := p.Prepare(context.Background())
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestPrepareBusy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	p := &Provisioner{
		Candidates: []string{"slow"},
		Entry:      entryFile(t),
		Probe: func(ctx context.Context, command string) error {
			close(entered)
			<-release
			return nil
		},
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Prepare(context.Background())
		done <- err
	}()
	<-entered

	_, err := p.Prepare(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)

	// The guard is released once the first preparation returns.
	p.Probe = probeOnly("slow")
	_, err = p.Prepare(context.Background())
	assert.NoError(t, err)
}

func TestPrepareReleasesGuardOnError(t *testing.T) {
	p := &Provisioner{Candidates: []string{"x"}, Entry: entryFile(t), Probe: probeOnly()}
	_, err := p.Prepare(context.Background())
	require.Error(t, err)
	_, err = p.Prepare(context.Background())
	assert.ErrorIs(t, err, ErrRuntimeNotFound)
}

func TestPrepareCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Provisioner{Candidates: []string{"x"}, Entry: entryFile(t), Probe: probeOnly("x")}
	_, err := p.Prepare(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
