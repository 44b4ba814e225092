package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/covidstat/internal/tabular"
)

// Env gives a step access to other named tables at run time.
type Env interface {
	Series(name string) (tabular.Table, error)
}

// Builder turns a configured step into a transform. Builders validate
// their parameters eagerly; env may be nil during validation and is only
// consulted when the returned transform runs.
type Builder func(s Step, env Env) (tabular.Transform, error)

var (
	registry   = make(map[string]Builder)
	registryMu sync.RWMutex
)

// Register adds an op to the registry.
// Panics if an op with the same name is already registered.
func Register(op string, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[op]; exists {
		panic(fmt.Sprintf("op already registered: %s", op))
	}
	registry[op] = b
}

// Lookup returns the builder for op.
// Returns false if not found.
func Lookup(op string) (Builder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	b, ok := registry[op]
	return b, ok
}

// Ops returns all registered op names, sorted.
func Ops() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]string, 0, len(registry))
	for op := range registry {
		result = append(result, op)
	}
	sort.Strings(result)
	return result
}

// Compile resolves the step's op and builds its transform.
func (s Step) Compile(env Env) (tabular.Transform, error) {
	b, ok := Lookup(s.Op)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, s.Op)
	}
	t, err := b(s, env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Op, err)
	}
	return t, nil
}
