// SPDX-License-Identifier: MIT

package store

import "fmt"

// Backend names accepted by Open.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Open constructs a StateStore for the configured backend. The badger
// backend requires a data path; memory ignores it.
func Open(backend, path string) (StateStore, error) {
	switch backend {
	case BackendBadger:
		if path == "" {
			return nil, fmt.Errorf("store: badger backend requires a path")
		}
		return OpenBadger(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}
