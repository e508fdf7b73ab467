// Package registry tracks live plugin instances in a generation-checked arena.
// It is the only path to releasing an instance, so each one is released at
// most once however many owners (explicit Free, reclamation, scope exit) try.
package registry

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/plugwire/plugwire-go/domain/errors"
	"github.com/plugwire/plugwire-go/domain/ports"
)

// Ref identifies an entry. A Ref outlives its entry: once released, lookups
// with it fail even if the slot is reused.
type Ref struct {
	index      uint32
	generation uint32
}

// IsZero reports whether r was never issued.
func (r Ref) IsZero() bool {
	return r.generation == 0
}

func (r Ref) String() string {
	return fmt.Sprintf("%d#%d", r.index, r.generation)
}

type slot struct {
	inst       ports.Instance
	generation uint32
}

// Registry is an arena of live instances. It is safe for concurrent use.
type Registry struct {
	slots  []slot
	free   []uint32
	mu     sync.Mutex
	live   int
	closed bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry used when a plugin is built
// without one.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

// Register records inst and returns its Ref.
func (r *Registry) Register(inst ports.Instance) (Ref, error) {
	if inst == nil {
		return Ref{}, &errors.MisuseError{Op: "register", Detail: "nil instance"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Ref{}, &errors.UseAfterFreeError{Resource: "registry"}
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots)) //nolint:gosec // G115: slot counts stay far below 2^32
		r.slots = append(r.slots, slot{})
	}
	s := &r.slots[idx]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.inst = inst
	r.live++
	return Ref{index: idx, generation: s.generation}, nil
}

// lookup returns the slot for ref while r.mu is held.
func (r *Registry) lookup(ref Ref) *slot {
	if ref.IsZero() || int(ref.index) >= len(r.slots) {
		return nil
	}
	s := &r.slots[ref.index]
	if s.generation != ref.generation || s.inst == nil {
		return nil
	}
	return s
}

// Lookup returns the instance behind ref while it is live.
func (r *Registry) Lookup(ref Ref) (ports.Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.lookup(ref)
	if s == nil {
		return nil, false
	}
	return s.inst, true
}

// Release removes the entry behind ref and closes its instance. It reports
// whether this call did the release; releasing a stale Ref is a no-op.
// Removal happens under the lock, so exactly one caller wins; the close runs
// after unlocking because it waits for the instance's in-flight call, and
// that call may itself use the registry.
func (r *Registry) Release(ctx context.Context, ref Ref) (bool, error) {
	r.mu.Lock()
	s := r.lookup(ref)
	if s == nil {
		r.mu.Unlock()
		return false, nil
	}
	inst := s.inst
	s.inst = nil
	r.free = append(r.free, ref.index)
	r.live--
	r.mu.Unlock()

	slog.DebugContext(ctx, "registry: releasing plugin", "plugin", inst.ID(), "ref", ref.String())
	if err := inst.Close(ctx); err != nil {
		return true, fmt.Errorf("failed to close plugin %s: %w", inst.ID(), err)
	}
	return true, nil
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// Close releases every live entry and refuses further registrations.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	var refs []Ref
	for i := range r.slots {
		if s := &r.slots[i]; s.inst != nil {
			refs = append(refs, Ref{index: uint32(i), generation: s.generation}) //nolint:gosec // G115: see Register
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, ref := range refs {
		if _, err := r.Release(ctx, ref); err != nil {
			errs = append(errs, err)
		}
	}
	return stdErrors.Join(errs...)
}
