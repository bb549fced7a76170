package iface

import "github.com/mr-tron/base58"

// Account is an opaque on-chain account identifier. The registry and billing
// engine never interpret its bytes; they only move it around and, for logs
// and CLI output, render it as base58 the same way neo-go renders a script
// hash address.
type Account [32]byte

// String renders the account as a base58 string for logging/CLI display.
func (a Account) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether the account is the default (unset) value.
func (a Account) IsZero() bool {
	return a == Account{}
}

// TwinID identifies a twin (on-chain identity owning contracts/balances).
type TwinID uint32

// NodeID identifies a node within a farm.
type NodeID uint32

// FarmID identifies a farm, a collection of nodes sharing one IP pool and
// pricing policy.
type FarmID uint32
