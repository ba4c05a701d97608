// Package rpcserializer implements the byte <-> rpcvalue.Value codec
// contract from spec §4.2/§6.2: a name-keyed registry of serializers, each
// mapping the value model to a wire byte frame and back. Grounded on
// pkg/config.Registry's name-keyed, RWMutex-guarded table shape.
package rpcserializer

import (
	"fmt"
	"sync"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// Codec serializes and deserializes a single rpcvalue.Value.
type Codec interface {
	// Name is the registry key, e.g. "json", "msgpack", "yaml".
	Name() string
	Serialize(v *rpcvalue.Value) ([]byte, error)
	Deserialize(b []byte) (*rpcvalue.Value, error)
}

// Registry is a name -> Codec table (spec §6.2). Grounded on
// pkg/config.Registry's map-behind-RWMutex shape.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// Register adds codec under its own Name(), overwriting any prior codec
// registered under that name.
func (r *Registry) Register(codec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[codec.Name()] = codec
}

// Lookup returns the codec registered under name, or (nil, false).
func (r *Registry) Lookup(name string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	return c, ok
}

// Names returns the registered codec names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.codecs))
	for n := range r.codecs {
		names = append(names, n)
	}
	return names
}

// ErrUnknownCodec is returned by Default's convenience wrappers when name
// is not registered.
type ErrUnknownCodec string

func (e ErrUnknownCodec) Error() string { return fmt.Sprintf("rpcserializer: unknown codec %q", string(e)) }

// defaultRegistry is pre-populated with the conforming implementations named
// in spec §6.2 (json, msgpack, yaml) plus xdr, an RFC 4506 binary codec.
var defaultRegistry = func() *Registry {
	r := NewRegistry()
	r.Register(NewJSONCodec())
	r.Register(NewMsgpackCodec())
	r.Register(NewYAMLCodec())
	r.Register(NewXDRCodec())
	return r
}()

// Default returns the process-wide registry pre-populated with the json,
// msgpack, yaml, and xdr codecs.
func Default() *Registry { return defaultRegistry }

// Serialize looks up name in the default registry and serializes v.
func Serialize(name string, v *rpcvalue.Value) ([]byte, error) {
	c, ok := defaultRegistry.Lookup(name)
	if !ok {
		return nil, ErrUnknownCodec(name)
	}
	return c.Serialize(v)
}

// Deserialize looks up name in the default registry and deserializes b.
func Deserialize(name string, b []byte) (*rpcvalue.Value, error) {
	c, ok := defaultRegistry.Lookup(name)
	if !ok {
		return nil, ErrUnknownCodec(name)
	}
	return c.Deserialize(b)
}
