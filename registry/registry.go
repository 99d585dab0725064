// Package registry implements the job type registry (spec component C1):
// a stable type_tag string maps to a decoder that reconstructs a concrete
// job value from its opaque JSON payload. A registry is built once per job
// family, typically at program start, though nothing here prevents
// registering additional types later — the map is guarded by a
// sync.RWMutex for exactly that reason.
package registry

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/bobmcallan/jobqueue"
)

// discriminatorField is the JSON field every encoded payload carries, set
// to the job's type_tag. No registered job's schema may use this name for
// its own field.
const discriminatorField = "type"

// Registry maps type_tag <-> concrete Job[D] values for one job family.
type Registry[D any] struct {
	mu       sync.RWMutex
	decoders map[string]func(payload []byte) (jobqueue.Job[D], error)
	tags     map[reflect.Type]string
}

// New creates an empty registry. Register concrete job types before use.
func New[D any]() *Registry[D] {
	return &Registry[D]{
		decoders: make(map[string]func([]byte) (jobqueue.Job[D], error)),
		tags:     make(map[reflect.Type]string),
	}
}

// Register binds typeTag to T within the family. sample is only used to
// capture T's reflect.Type for Encode's discriminator lookup; its value is
// discarded. Register is safe to call concurrently with Encode/Decode,
// including after the registry is already in use.
func Register[D any, T jobqueue.Job[D]](r *Registry[D], typeTag string, sample T) {
	t := reflect.TypeOf(sample)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[t] = typeTag
	r.decoders[typeTag] = func(payload []byte) (jobqueue.Job[D], error) {
		v := reflect.New(t.Elem()).Interface().(T)
		if err := json.Unmarshal(payload, v); err != nil {
			return nil, jobqueue.NewMalformedPayloadError(err)
		}
		return v, nil
	}
}

// Encode marshals job to JSON with its registered type_tag set on the
// discriminator field, and returns the tag alongside the payload bytes.
func (r *Registry[D]) Encode(job jobqueue.Job[D]) (typeTag string, payload []byte, err error) {
	r.mu.RLock()
	tag, ok := r.tags[reflect.TypeOf(job)]
	r.mu.RUnlock()
	if !ok {
		return "", nil, jobqueue.ErrUnknownType
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return "", nil, jobqueue.NewSerializationError(err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", nil, jobqueue.NewSerializationError(err)
	}
	tagJSON, _ := json.Marshal(tag)
	fields[discriminatorField] = tagJSON

	payload, err = json.Marshal(fields)
	if err != nil {
		return "", nil, jobqueue.NewSerializationError(err)
	}
	return tag, payload, nil
}

// Decode reconstructs the concrete job value registered under typeTag.
func (r *Registry[D]) Decode(typeTag string, payload []byte) (jobqueue.Job[D], error) {
	r.mu.RLock()
	decode, ok := r.decoders[typeTag]
	r.mu.RUnlock()
	if !ok {
		return nil, jobqueue.ErrUnknownType
	}
	return decode(payload)
}
