package registry

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/threefoldtech/tfchain-billing/pkg/contracttypes"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
	"github.com/threefoldtech/tfchain-billing/pkg/storage"
)

// dao is a typed read/write layer over a storage.Store, the same role
// neo-go's pkg/core/dao.Simple plays over a raw storage.Store: callers never
// see a []byte key, only domain types.
type dao struct {
	store storage.Store
}

func newDAO(store storage.Store) *dao {
	return &dao{store: store}
}

func u64key(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func u32key(id uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, id)
	return b
}

func (d *dao) getJSON(prefix storage.KeyPrefix, suffix []byte, out any) (bool, error) {
	raw, err := d.store.Get(storage.Key(prefix, suffix))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("dao: decode: %w", err)
	}
	return true, nil
}

func (d *dao) putJSON(prefix storage.KeyPrefix, suffix []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("dao: encode: %w", err)
	}
	return d.store.Put(storage.Key(prefix, suffix), raw)
}

func (d *dao) del(prefix storage.KeyPrefix, suffix []byte) error {
	return d.store.Delete(storage.Key(prefix, suffix))
}

// --- Contract ---

func (d *dao) GetContract(id uint64) (*contracttypes.Contract, bool, error) {
	var c contracttypes.Contract
	ok, err := d.getJSON(storage.PrefixContract, u64key(id), &c)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &c, true, nil
}

func (d *dao) PutContract(c *contracttypes.Contract) error {
	return d.putJSON(storage.PrefixContract, u64key(c.ID), c)
}

func (d *dao) DeleteContract(id uint64) error {
	return d.del(storage.PrefixContract, u64key(id))
}

// --- BillingInfo ---

func (d *dao) GetBillingInfo(id uint64) (contracttypes.BillingInfo, error) {
	var bi contracttypes.BillingInfo
	_, err := d.getJSON(storage.PrefixBillingInfo, u64key(id), &bi)
	return bi, err
}

func (d *dao) PutBillingInfo(id uint64, bi contracttypes.BillingInfo) error {
	return d.putJSON(storage.PrefixBillingInfo, u64key(id), bi)
}

func (d *dao) DeleteBillingInfo(id uint64) error {
	return d.del(storage.PrefixBillingInfo, u64key(id))
}

// --- Lock ---

func (d *dao) GetLock(id uint64) (contracttypes.Lock, error) {
	var l contracttypes.Lock
	_, err := d.getJSON(storage.PrefixLock, u64key(id), &l)
	return l, err
}

func (d *dao) PutLock(id uint64, l contracttypes.Lock) error {
	return d.putJSON(storage.PrefixLock, u64key(id), l)
}

func (d *dao) DeleteLock(id uint64) error {
	return d.del(storage.PrefixLock, u64key(id))
}

// --- Resources ---

func (d *dao) GetResources(id uint64) (contracttypes.NodeContractResources, error) {
	var r contracttypes.NodeContractResources
	_, err := d.getJSON(storage.PrefixResources, u64key(id), &r)
	return r, err
}

func (d *dao) PutResources(id uint64, r contracttypes.NodeContractResources) error {
	return d.putJSON(storage.PrefixResources, u64key(id), r)
}

func (d *dao) DeleteResources(id uint64) error {
	return d.del(storage.PrefixResources, u64key(id))
}

// --- by (node_id, hash) ---

func nodeHashKey(node iface.NodeID, hash [32]byte) []byte {
	k := make([]byte, 4+32)
	binary.BigEndian.PutUint32(k[:4], uint32(node))
	copy(k[4:], hash[:])
	return k
}

func (d *dao) GetByNodeHash(node iface.NodeID, hash [32]byte) (uint64, bool, error) {
	var id uint64
	ok, err := d.getJSON(storage.PrefixByNodeHash, nodeHashKey(node, hash), &id)
	return id, ok, err
}

func (d *dao) PutByNodeHash(node iface.NodeID, hash [32]byte, id uint64) error {
	return d.putJSON(storage.PrefixByNodeHash, nodeHashKey(node, hash), id)
}

func (d *dao) DeleteByNodeHash(node iface.NodeID, hash [32]byte) error {
	return d.del(storage.PrefixByNodeHash, nodeHashKey(node, hash))
}

// --- by name ---

func (d *dao) GetByName(name string) (uint64, bool, error) {
	var id uint64
	ok, err := d.getJSON(storage.PrefixByName, []byte(name), &id)
	return id, ok, err
}

func (d *dao) PutByName(name string, id uint64) error {
	return d.putJSON(storage.PrefixByName, []byte(name), id)
}

func (d *dao) DeleteByName(name string) error {
	return d.del(storage.PrefixByName, []byte(name))
}

// --- active_by_node ---

func (d *dao) GetActiveByNode(node iface.NodeID) ([]uint64, error) {
	var ids []uint64
	_, err := d.getJSON(storage.PrefixActiveByNode, u32key(uint32(node)), &ids)
	return ids, err
}

func (d *dao) PutActiveByNode(node iface.NodeID, ids []uint64) error {
	return d.putJSON(storage.PrefixActiveByNode, u32key(uint32(node)), ids)
}

func (d *dao) AddActiveByNode(node iface.NodeID, id uint64) error {
	ids, err := d.GetActiveByNode(node)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	return d.PutActiveByNode(node, ids)
}

func (d *dao) RemoveActiveByNode(node iface.NodeID, id uint64) error {
	ids, err := d.GetActiveByNode(node)
	if err != nil {
		return err
	}
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return d.PutActiveByNode(node, out)
}

// --- active_rent_by_node ---

func (d *dao) GetActiveRentByNode(node iface.NodeID) (uint64, bool, error) {
	var id uint64
	ok, err := d.getJSON(storage.PrefixActiveRentByNode, u32key(uint32(node)), &id)
	return id, ok, err
}

func (d *dao) PutActiveRentByNode(node iface.NodeID, id uint64) error {
	return d.putJSON(storage.PrefixActiveRentByNode, u32key(uint32(node)), id)
}

func (d *dao) DeleteActiveRentByNode(node iface.NodeID) error {
	return d.del(storage.PrefixActiveRentByNode, u32key(uint32(node)))
}

// --- billing_slots ---

func (d *dao) GetBillingSlot(slot uint64) ([]uint64, error) {
	var ids []uint64
	_, err := d.getJSON(storage.PrefixBillingSlot, u64key(slot), &ids)
	return ids, err
}

func (d *dao) PutBillingSlot(slot uint64, ids []uint64) error {
	return d.putJSON(storage.PrefixBillingSlot, u64key(slot), ids)
}

// --- solution providers ---

func (d *dao) GetSolutionProvider(id uint64) (*contracttypes.SolutionProvider, bool, error) {
	var sp contracttypes.SolutionProvider
	ok, err := d.getJSON(storage.PrefixSolutionProvider, u64key(id), &sp)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &sp, true, nil
}

func (d *dao) PutSolutionProvider(sp *contracttypes.SolutionProvider) error {
	return d.putJSON(storage.PrefixSolutionProvider, u64key(sp.ID), sp)
}

// --- counters ---

var (
	metaContractCounter         = []byte("contract_id")
	metaSolutionProviderCounter = []byte("solution_provider_id")
)

func (d *dao) nextCounter(key []byte) (uint64, error) {
	var cur uint64
	_, err := d.getJSON(storage.PrefixMeta, key, &cur)
	if err != nil {
		return 0, err
	}
	cur++
	if err := d.putJSON(storage.PrefixMeta, key, cur); err != nil {
		return 0, err
	}
	return cur, nil
}

func (d *dao) NextContractID() (uint64, error) {
	return d.nextCounter(metaContractCounter)
}

func (d *dao) NextSolutionProviderID() (uint64, error) {
	return d.nextCounter(metaSolutionProviderCounter)
}
