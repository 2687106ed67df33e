// ABOUTME: Process-wide AI provider selector with explicit get/set operations
// ABOUTME: Read by the engine at call time; mutated via the REST model endpoint

package reply

import (
	"errors"
	"fmt"
	"sync"
)

// Provider names accepted by the selector
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ErrUnknownProvider is returned when setting a provider outside {openai, gemini}
var ErrUnknownProvider = errors.New("unknown provider")

// Selector holds the process-wide choice of backing model provider.
// The engine reads it on every call, so a switch applies to the next reply.
type Selector struct {
	mu      sync.RWMutex
	current string
}

// NewSelector creates a selector with the given initial provider.
func NewSelector(initial string) (*Selector, error) {
	if initial != ProviderOpenAI && initial != ProviderGemini {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, initial)
	}
	return &Selector{current: initial}, nil
}

// Current returns the active provider name
func (s *Selector) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set switches the active provider. Returns ErrUnknownProvider for anything
// other than "openai" or "gemini".
func (s *Selector) Set(name string) error {
	if name != ProviderOpenAI && name != ProviderGemini {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	s.mu.Lock()
	s.current = name
	s.mu.Unlock()
	return nil
}
