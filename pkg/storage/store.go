// Package storage provides the key-value abstraction the contract registry
// persists its indices through, with swappable backends, the same role
// neo-go's pkg/core/storage.Store plays for blockchain state — one
// interface, several on-disk implementations selected by configuration.
package storage

import "errors"

// ErrKeyNotFound is returned by Get when the key is absent.
var ErrKeyNotFound = errors.New("storage: key not found")

// KeyPrefix namespaces a logical map within a single flat keyspace, mirroring
// neo-go's storage.KeyPrefix byte used to separate DAO collections inside one
// physical store.
type KeyPrefix byte

const (
	// PrefixContract stores the by_id map: contract_id -> Contract.
	PrefixContract KeyPrefix = 0x01
	// PrefixBillingInfo stores contract_id -> ContractBillingInformation.
	PrefixBillingInfo KeyPrefix = 0x02
	// PrefixLock stores contract_id -> ContractLock.
	PrefixLock KeyPrefix = 0x03
	// PrefixResources stores contract_id -> NodeContractResources.
	PrefixResources KeyPrefix = 0x04
	// PrefixByNodeHash stores (node_id,hash) -> contract_id.
	PrefixByNodeHash KeyPrefix = 0x05
	// PrefixByName stores name -> contract_id.
	PrefixByName KeyPrefix = 0x06
	// PrefixActiveByNode stores node_id -> []contract_id.
	PrefixActiveByNode KeyPrefix = 0x07
	// PrefixActiveRentByNode stores node_id -> contract_id.
	PrefixActiveRentByNode KeyPrefix = 0x08
	// PrefixBillingSlot stores slot_index -> []contract_id.
	PrefixBillingSlot KeyPrefix = 0x09
	// PrefixSolutionProvider stores solution_provider_id -> SolutionProvider.
	PrefixSolutionProvider KeyPrefix = 0x0A
	// PrefixMeta stores engine-wide counters (contract_id, solution_provider_id).
	PrefixMeta KeyPrefix = 0x0B
)

// Store is a minimal ordered key-value store. Implementations must be safe
// for concurrent use; the registry itself is single-threaded (spec.md §5)
// but the websocket/metrics surfaces may read concurrently.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// Seek invokes f for every key with the given prefix, in key order,
	// until f returns false.
	Seek(prefix []byte, f func(k, v []byte) bool) error
	Close() error
}

// Key builds a namespaced key out of a prefix and a suffix.
func Key(prefix KeyPrefix, suffix []byte) []byte {
	k := make([]byte, 1+len(suffix))
	k[0] = byte(prefix)
	copy(k[1:], suffix)
	return k
}
