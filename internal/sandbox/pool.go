package sandbox

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the lifecycle state of a sandbox container.
type State int

const (
	StateAbsent State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Container describes one long-lived sandbox container. One container is
// maintained per build-tool kind.
type Container struct {
	Name  string
	Kind  string
	Image string
	State State
}

// Config controls pool behavior.
type Config struct {
	// Images maps build-tool kind to container image.
	Images map[string]string
	// ExecTimeout is the hard wall-clock budget for a single Exec.
	ExecTimeout time.Duration
	// StuckWindow terminates an Exec that produces no new output line for
	// this long. Must be <= ExecTimeout.
	StuckWindow time.Duration
}

// Pool owns the registry of sandbox containers, one per build-tool kind, and
// exposes the start/exec/copy/cleanup primitives the grading engine runs on.
//
// The registry is shared across all grading runs: lookup-or-create is atomic
// per kind, and all execs against one container serialize behind its lock.
type Pool struct {
	cfg    Config
	docker dockerCLI

	mu      sync.Mutex
	entries map[string]*poolEntry // keyed by build-tool kind
}

type poolEntry struct {
	// mu serializes container starts and execs. The pool never runs two
	// commands concurrently in one container.
	mu        sync.Mutex
	container Container
}

// NewPool creates a pool with the given configuration.
func NewPool(cfg Config) *Pool {
	if cfg.ExecTimeout == 0 {
		cfg.ExecTimeout = 180 * time.Second
	}
	if cfg.StuckWindow == 0 || cfg.StuckWindow > cfg.ExecTimeout {
		cfg.StuckWindow = cfg.ExecTimeout / 3
	}
	return &Pool{
		cfg:     cfg,
		docker:  newSystemDocker(),
		entries: make(map[string]*poolEntry),
	}
}

// ContainerName returns the fixed container name for a build-tool kind.
func ContainerName(kind string) string {
	return "grader-" + kind
}

// EnsureRunning returns a running container for the given build-tool kind,
// starting one only if none is registered or the registered one is no longer
// alive. Idempotent: concurrent callers for the same kind share one start.
func (p *Pool) EnsureRunning(ctx context.Context, kind string) (Container, error) {
	image, ok := p.cfg.Images[kind]
	if !ok {
		return Container{}, &PoolError{Op: "resolve_image",
			Err: fmt.Errorf("%w: no image configured for kind %q", ErrContainerUnavailable, kind)}
	}

	e := p.entry(kind)

	e.mu.Lock()
	defer e.mu.Unlock()

	name := ContainerName(kind)

	// Liveness is re-checked, never trusted from the cached state: the
	// container may have died or been removed out-of-band.
	if p.isRunning(ctx, name) {
		e.container = Container{Name: name, Kind: kind, Image: image, State: StateRunning}
		return e.container, nil
	}

	e.container = Container{Name: name, Kind: kind, Image: image, State: StateStarting}
	log.Info().Str("kind", kind).Str("image", image).Msg("starting sandbox container")

	// Remove any stale container holding the name before starting fresh.
	_ = p.docker.run(ctx, io.Discard, io.Discard, "rm", "-f", name)

	err := p.docker.run(ctx, io.Discard, io.Discard,
		"run", "-d",
		"--name", name,
		"--entrypoint", "sleep",
		image,
		"infinity",
	)
	if err != nil {
		e.container.State = StateAbsent
		return Container{}, &PoolError{Container: name, Op: "start",
			Err: fmt.Errorf("%w: %v", ErrContainerUnavailable, err)}
	}

	if !p.isRunning(ctx, name) {
		e.container.State = StateAbsent
		return Container{}, &PoolError{Container: name, Op: "start",
			Err: fmt.Errorf("%w: container did not reach running state", ErrContainerUnavailable)}
	}

	e.container.State = StateRunning
	return e.container, nil
}

// Shutdown removes all registered containers. Called on process exit.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	entries := make([]*poolEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		c := e.container
		if c.State != StateAbsent {
			if err := p.docker.run(ctx, io.Discard, io.Discard, "rm", "-f", c.Name); err != nil {
				log.Warn().Err(err).Str("container", c.Name).Msg("failed to remove sandbox container")
			}
			e.container.State = StateAbsent
		}
		e.mu.Unlock()
	}
}

// Size reports how many containers are currently registered as running.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int
	for _, e := range p.entries {
		if e.container.State == StateRunning {
			n++
		}
	}
	return n
}

func (p *Pool) entry(kind string) *poolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[kind]
	if !ok {
		e = &poolEntry{container: Container{Kind: kind, State: StateAbsent}}
		p.entries[kind] = e
	}
	return e
}

func (p *Pool) entryByName(name string) *poolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.container.Name == name {
			return e
		}
	}
	return nil
}

func (p *Pool) isRunning(ctx context.Context, name string) bool {
	out, err := p.docker.output(ctx, "inspect", "-f", "{{.State.Running}}", name)
	return err == nil && out == "true"
}
