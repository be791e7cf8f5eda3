package ai

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Backend kinds selectable through participant.kind.
const (
	KindArk    = "ark"
	KindOpenAI = "openai"
	KindGemini = "gemini"
)

// GenerateOptions tune a single generation call.
type GenerateOptions struct {
	Model       string
	Temperature *float32
	MaxTokens   int
}

// Reply is either a live stream of deltas or one complete text.
type Reply struct {
	Stream *schema.StreamReader[*schema.Message]
	Text   string
	Usage  *schema.TokenUsage
}

// Streaming reports whether the reply delivers incremental deltas.
func (r *Reply) Streaming() bool {
	return r != nil && r.Stream != nil
}

// Backend generates one turn from an ordered history. The history starts with
// the system prompt when one is configured.
type Backend interface {
	GenerateTurn(ctx context.Context, history []*schema.Message, opts GenerateOptions) (*Reply, error)
}

// Registry maps participant kinds to backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register binds a backend to a kind, replacing any previous binding.
func (r *Registry) Register(kind string, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[kind] = backend
}

// Get returns the backend for a kind.
func (r *Registry) Get(kind string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	backend, ok := r.backends[kind]
	if !ok {
		return nil, fmt.Errorf("no ai backend registered for kind %q", kind)
	}
	return backend, nil
}

// Has reports whether a kind is registered.
func (r *Registry) Has(kind string) bool {
	_, err := r.Get(kind)
	return err == nil
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.backends))
	for kind := range r.backends {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
