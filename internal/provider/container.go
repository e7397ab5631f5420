// Package provider implements the typed, scope-aware dependency container
// described by the destination resolver and plugin runner's wiring needs:
// services are registered once (singleton or transient) and resolved by
// type, with cycle detection across a single resolve chain.
package provider

import (
	"bytes"
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"sync"

	"github.com/samber/do/v2"
	"golang.org/x/sync/singleflight"

	"github.com/cardinal-rs/cardinal/internal/cardinalerr"
)

// Scope selects whether a provider's value is cached across resolves.
type Scope int

const (
	Singleton Scope = iota
	Transient
)

// Container is Cardinal's typed provider graph. Singleton providers are
// delegated to a do.Injector, which gives at-most-once construction under
// concurrent first resolves for free; transient providers are kept in a
// small local factory table since they must construct fresh on every call.
// Cycle detection is layered on top of both paths via a per-goroutine
// in-flight path of type names.
type Container struct {
	injector do.Injector

	mu         sync.Mutex
	singletons map[string]struct{}
	transients map[string]func() (any, error)

	// pathMu guards pathByGoroutine, the in-flight resolution path for
	// cycle detection. It is keyed per goroutine rather than shared
	// across the whole container: a resolve chain only ever recurses
	// within the goroutine that started it (a factory calling Get for
	// one of its own dependencies), so keying on the calling goroutine
	// keeps concurrent, unrelated resolves of the same type from
	// observing each other's in-flight path and tripping a spurious
	// cycle error.
	pathMu          sync.Mutex
	pathByGoroutine map[uint64][]string

	// singletonGroup deduplicates concurrent first-resolves of the same
	// singleton type: do.Invoke already serialises construction, but
	// folding every concurrent caller onto one in-flight call here avoids
	// each of them blocking on the injector's own lock individually and
	// keeps the at-most-once guarantee visible at the Cardinal boundary
	// (spec.md §4.1, §5's "cached reads lock-free after first construction").
	singletonGroup singleflight.Group
}

// NewContainer builds an empty container.
func NewContainer() *Container {
	return &Container{
		injector:        do.New(),
		singletons:      make(map[string]struct{}),
		transients:      make(map[string]func() (any, error)),
		pathByGoroutine: make(map[uint64][]string),
	}
}

func typeName[T any]() string {
	var zero T
	t := reflect.TypeOf(&zero).Elem()
	return t.String()
}

// Register associates T with a factory under the given scope. Duplicate
// registration replaces the previous entry.
func Register[T any](c *Container, scope Scope, factory func(*Container) (T, error)) {
	RegisterWithFactory[T](c, scope, factory)
}

// RegisterWithFactory associates T with an explicit factory under scope.
func RegisterWithFactory[T any](c *Container, scope Scope, factory func(*Container) (T, error)) {
	name := typeName[T]()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch scope {
	case Transient:
		delete(c.singletons, name)
		c.transients[name] = func() (any, error) { return factory(c) }
	default:
		delete(c.transients, name)
		c.singletons[name] = struct{}{}
		do.Provide(c.injector, func(do.Injector) (T, error) {
			return factory(c)
		})
	}
}

// RegisterSingletonInstance inserts a pre-built value; its scope is
// implicitly Singleton.
func RegisterSingletonInstance[T any](c *Container, value T) {
	name := typeName[T]()

	c.mu.Lock()
	c.singletons[name] = struct{}{}
	delete(c.transients, name)
	c.mu.Unlock()

	do.ProvideValue(c.injector, value)
}

// Get resolves T, triggering its factory if this is the first resolve (for
// Singleton scope) or every time (Transient).
func Get[T any](c *Container) (T, error) {
	var zero T
	name := typeName[T]()

	if err := c.enterResolve(name); err != nil {
		return zero, err
	}
	defer c.exitResolve()

	c.mu.Lock()
	transientFactory, isTransient := c.transients[name]
	_, isSingleton := c.singletons[name]
	c.mu.Unlock()

	switch {
	case isTransient:
		v, err := transientFactory()
		if err != nil {
			return zero, &cardinalerr.FactoryError{Type: name, Err: err}
		}
		typed, ok := v.(T)
		if !ok {
			return zero, &cardinalerr.FactoryError{Type: name, Err: fmt.Errorf("transient factory returned wrong type")}
		}
		return typed, nil
	case isSingleton:
		v, err, _ := c.singletonGroup.Do(name, func() (any, error) {
			return do.Invoke[T](c.injector)
		})
		if err != nil {
			return zero, &cardinalerr.FactoryError{Type: name, Err: err}
		}
		return v.(T), nil
	default:
		return zero, &cardinalerr.ProviderNotRegistered{Type: name}
	}
}

// MustGet panics if resolution fails. Used at startup wiring where a
// missing provider is already a fatal configuration error.
func MustGet[T any](c *Container) T {
	v, err := Get[T](c)
	if err != nil {
		panic(fmt.Sprintf("provider: %v", err))
	}
	return v
}

// enterResolve tracks in-flight type names on the calling goroutine's own
// resolution path. A cycle can only occur when a factory recurses into
// Get for one of its own dependencies, which happens synchronously on the
// same goroutine that started the resolve — keying the path per goroutine
// means two goroutines independently resolving the same type (e.g. two
// concurrent requests both constructing the same Transient) never see
// each other's in-flight entry.
func (c *Container) enterResolve(name string) error {
	gid := currentGoroutineID()

	c.pathMu.Lock()
	defer c.pathMu.Unlock()

	path := c.pathByGoroutine[gid]
	for _, p := range path {
		if p == name {
			full := append(append([]string(nil), path...), name)
			return &cardinalerr.CycleDetected{Path: full}
		}
	}
	c.pathByGoroutine[gid] = append(path, name)
	return nil
}

func (c *Container) exitResolve() {
	gid := currentGoroutineID()

	c.pathMu.Lock()
	defer c.pathMu.Unlock()

	path := c.pathByGoroutine[gid]
	if n := len(path); n > 0 {
		path = path[:n-1]
	}
	if len(path) == 0 {
		delete(c.pathByGoroutine, gid)
		return
	}
	c.pathByGoroutine[gid] = path
}

// currentGoroutineID parses the calling goroutine's id out of its own
// stack trace header ("goroutine 123 [running]: ..."). It exists purely
// to key the per-resolution cycle-detection path in enterResolve/
// exitResolve and is never used to make scheduling or lifetime decisions.
func currentGoroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if idx := bytes.IndexByte(buf, ' '); idx >= 0 {
		buf = buf[:idx]
	}
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Shutdown releases every constructed singleton, matching do.Injector's
// own teardown order.
func (c *Container) Shutdown() error {
	return c.injector.Shutdown()
}
