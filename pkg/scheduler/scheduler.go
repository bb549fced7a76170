// Package scheduler implements the Billing Scheduler (spec.md §4.3):
// contract_id mod F slotting and the per-block, signed off-chain dispatch
// of bill_contract for every contract registered in the current slot.
package scheduler

import (
	"crypto/sha256"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/metrics"
	"github.com/threefoldtech/tfchain-billing/pkg/registry"
)

// Authority is the off-chain dispatcher's signing identity: the key that
// must match the current block's designated author before a dispatch is
// accepted. This is the Go analogue of the Rust pallet's
// Signer::any_account()/SendSignedTransaction flow, since this engine has no
// consensus layer of its own to derive "next author" from.
type Authority struct {
	priv *secp256k1.PrivateKey
}

// NewAuthority wraps a signing key. A nil priv simulates the original
// pallet's "no local account available" offchain worker state.
func NewAuthority(priv *secp256k1.PrivateKey) *Authority {
	return &Authority{priv: priv}
}

// PublicKey returns the authority's public key, or nil if it has none.
func (a *Authority) PublicKey() *secp256k1.PublicKey {
	if a == nil || a.priv == nil {
		return nil
	}
	return a.priv.PubKey()
}

func (a *Authority) sign(payload []byte) ([]byte, error) {
	if a == nil || a.priv == nil {
		return nil, contracterrors.ErrOffchainSignedTxNoLocalAccountAvailable
	}
	h := sha256.Sum256(payload)
	sig := ecdsa.Sign(a.priv, h[:])
	return sig.Serialize(), nil
}

// Scheduler dispatches billing for whatever contracts sit in a block's slot.
// It owns no goroutine and no clock: callers drive it with externally
// supplied block numbers, per spec.md §5.
type Scheduler struct {
	reg       *registry.Registry
	biller    registry.Biller
	authority *Authority
	bus       *events.Bus
	log       *zap.Logger

	dispatched map[uint64]struct{}
}

// New creates a Scheduler. authority may be nil if this process never
// dispatches (e.g. a read-only follower).
func New(reg *registry.Registry, biller registry.Biller, authority *Authority, bus *events.Bus, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		reg:        reg,
		biller:     biller,
		authority:  authority,
		bus:        bus,
		log:        log.With(zap.String("component", "scheduler")),
		dispatched: make(map[uint64]struct{}),
	}
}

// DispatchBlock bills every contract slotted at blockNumber (billing.rs
// bill_contracts_for_block), gated by a signature check against
// expectedAuthor — this engine's equivalent of is_next_block_author. Each
// dispatch is tagged with a fresh correlation UUID for log correlation
// across the submitted contracts.
func (s *Scheduler) DispatchBlock(expectedAuthor *secp256k1.PublicKey, blockNumber, now uint64) error {
	if _, sent := s.dispatched[blockNumber]; sent {
		return contracterrors.ErrOffchainSignedTxAlreadySent
	}
	if s.authority == nil || s.authority.priv == nil {
		metrics.DispatchFailed()
		return contracterrors.ErrOffchainSignedTxNoLocalAccountAvailable
	}
	if expectedAuthor == nil || !s.authority.PublicKey().IsEqual(expectedAuthor) {
		metrics.DispatchFailed()
		return contracterrors.ErrWrongAuthority
	}

	correlationID := uuid.New()
	payload := []byte(fmt.Sprintf("%d:%s", blockNumber, correlationID))
	if _, err := s.authority.sign(payload); err != nil {
		metrics.DispatchFailed()
		return fmt.Errorf("%w: %v", contracterrors.ErrOffchainSignedTxCannotSign, err)
	}
	s.dispatched[blockNumber] = struct{}{}

	slot := blockNumber % s.reg.BillingFrequency()
	ids, err := s.reg.BillingSlot(slot)
	if err != nil {
		return err
	}

	metrics.SetLastSlotSize(len(ids))
	s.log.Info("dispatching billing slot",
		zap.Uint64("block", blockNumber),
		zap.Uint64("slot", slot),
		zap.String("correlation_id", correlationID.String()),
		zap.Int("count", len(ids)))

	for _, id := range ids {
		if err := s.biller.Bill(id, blockNumber, now); err != nil {
			metrics.DispatchFailed()
			s.log.Error("billing dispatch failed",
				zap.Uint64("contract_id", id),
				zap.String("correlation_id", correlationID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// IncreaseFrequency raises F, the slotting modulus. The original pallet
// only ever allows an increase (_change_billing_frequency) — a decrease
// would silently relocate already-inserted contracts into colliding slots.
func (s *Scheduler) IncreaseFrequency(newFrequency uint64) error {
	if newFrequency <= s.reg.BillingFrequency() {
		return contracterrors.ErrCanOnlyIncreaseFrequency
	}
	s.reg.SetBillingFrequency(newFrequency)
	s.bus.Emit(events.BillingFrequencyChanged, map[string]any{"frequency": newFrequency})
	return nil
}
