package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/myndlens/myndlens-p-sub000/pkg/provider/stt"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/tts"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned when no factory has been registered
// under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its configuration block.
type Factory[T any] func(ProviderEntry) (T, error)

// family holds the factories of one provider kind.
type family[T any] struct {
	kind      string
	factories map[string]Factory[T]
}

func newFamily[T any](kind string) family[T] {
	return family[T]{kind: kind, factories: make(map[string]Factory[T])}
}

func (f family[T]) lookup(name string) (Factory[T], error) {
	factory, ok := f.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%q (available: %s)",
			ErrProviderNotRegistered, f.kind, name, strings.Join(f.names(), ", "))
	}
	return factory, nil
}

func (f family[T]) names() []string {
	names := make([]string, 0, len(f.factories))
	for n := range f.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Registry maps the names under providers.stt, providers.tts and
// providers.vad to constructors. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt family[stt.Provider]
	tts family[tts.Provider]
	vad family[vad.Engine]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: newFamily[stt.Provider]("stt"),
		tts: newFamily[tts.Provider]("tts"),
		vad: newFamily[vad.Engine]("vad"),
	}
}

// RegisterSTT registers an STT provider factory under name, replacing any
// earlier registration.
func (r *Registry) RegisterSTT(name string, factory Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.factories[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.factories[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory Factory[vad.Engine]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad.factories[name] = factory
}

// Check reports every provider in pc that has no registered factory, so a
// misspelt name fails startup before any vendor client is dialled.
func (r *Registry) Check(pc ProvidersConfig) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	if _, err := r.stt.lookup(pc.STT.Name); err != nil {
		errs = append(errs, err)
	}
	if _, err := r.tts.lookup(pc.TTS.Name); err != nil {
		errs = append(errs, err)
	}
	if _, err := r.vad.lookup(pc.VAD.Name); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CreateSTT instantiates the STT provider registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, err := r.stt.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateTTS instantiates the TTS provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, err := r.tts.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateVAD instantiates the VAD engine registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	factory, err := r.vad.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(entry)
}
