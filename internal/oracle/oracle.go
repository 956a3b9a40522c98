// Package oracle provides a deliberately simple, in-memory reference model
// of the hashmap engine's publicly observable behavior.
//
// The model is intentionally easy to audit: it favors clarity over
// performance and does not attempt to mirror the region's byte layout,
// freelist geometry, or probe order. Property tests apply identical
// operation sequences to the model and to the real engine and assert the
// observable results match; capacity errors from the real engine are
// checked separately, because which of NO_SPACE / NO_EMPTY_BUCKET /
// NO_EMPTY_FREE_BLOCK fires first depends on layout details the model
// deliberately does not know about.
package oracle

import (
	"sort"
)

// Oracle is the reference model. The zero value is not usable; construct
// with [New].
type Oracle struct {
	entries map[string][]byte
}

// New returns an empty model.
func New() *Oracle {
	return &Oracle{entries: make(map[string][]byte)}
}

// Set records key -> value, overwriting any previous value. The model has
// no capacity; the harness only applies Set after the real engine accepted
// the same operation.
func (o *Oracle) Set(key, value []byte) {
	o.entries[string(key)] = append([]byte(nil), value...)
}

// Get returns a copy of the latest value for key, or ok=false when the key
// is absent.
func (o *Oracle) Get(key []byte) ([]byte, bool) {
	v, ok := o.entries[string(key)]
	if !ok {
		return nil, false
	}

	return append([]byte{}, v...), true
}

// Delete removes key, reporting whether it was present.
func (o *Oracle) Delete(key []byte) bool {
	_, ok := o.entries[string(key)]
	delete(o.entries, string(key))

	return ok
}

// Len returns the number of live keys. This must equal the real engine's
// bucket-flag popcount after any successful operation.
func (o *Oracle) Len() int {
	return len(o.entries)
}

// Keys returns every live key in lexicographic order, for deterministic
// walks in test harnesses.
func (o *Oracle) Keys() [][]byte {
	keys := make([]string, 0, len(o.entries))
	for k := range o.entries {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}

	return out
}
