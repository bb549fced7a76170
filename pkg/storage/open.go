package storage

import "fmt"

// Open selects a Store implementation by backend name ("memory", "bolt",
// "leveldb"), the same role neo-go's storage.NewStore dispatch plays for its
// own multi-backend DBConfiguration.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "bolt":
		return NewBoltStore(path)
	case "leveldb":
		return NewLevelDBStore(path)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
