// Package iface declares the collaborators the billing engine consumes but
// does not implement: the tfgrid node/farm/twin registry, the TFT/USD price
// oracle and the native currency. Per spec.md §6, these are "external
// collaborators" — the engine only ever reads through these interfaces, it
// never mutates registry or currency state directly except through
// Currency's explicit lock/transfer/withdraw operations and Registry's
// ReserveIPs/FreeIPs.
package iface

// CertificationLevel mirrors the tfgrid certification types that affect
// pricing (node dedication discount, the 1.25x certified multiplier).
type CertificationLevel uint8

const (
	// CertificationDIY marks a self-certified, uncertified node/farm.
	CertificationDIY CertificationLevel = iota
	// CertificationCertified marks a TFChain-certified node/farm, subject to
	// the 1.25x billing multiplier.
	CertificationCertified
)

// Resources is the CRU/SRU/HRU/MRU resource vector used both for a node's
// total capacity and for a deployment contract's reported usage.
type Resources struct {
	CRU uint64 // compute units
	SRU uint64 // SSD storage, bytes
	HRU uint64 // HDD storage, bytes
	MRU uint64 // memory, bytes
}

// Node is the subset of tfgrid node state the billing engine needs.
type Node struct {
	ID            NodeID
	FarmID        FarmID
	TwinID        TwinID
	Dedicated     bool
	Resources     Resources
	Certification CertificationLevel
}

// PublicIP is one entry of a farm's IP pool. ContractID is zero when free.
type PublicIP struct {
	IP         string
	Gateway    string
	ContractID uint64
}

// Farm is the subset of tfgrid farm state the billing engine needs.
type Farm struct {
	ID              FarmID
	TwinID          TwinID
	PricingPolicyID uint32
	PublicIPs       []PublicIP
	Certification   CertificationLevel
}

// Price is a { value, unit_factor } price pair as used by tfgrid's pricing
// policy: the effective price is Value / UnitFactor USD-units per hour.
type Price struct {
	Value      uint64
	UnitFactor uint64
}

// PricingPolicy is the subset of tfgrid pricing policy state the billing
// engine needs.
type PricingPolicy struct {
	ID                         uint32
	SU                         Price
	CU                         Price
	NU                         Price
	IPU                        Price
	UniqueName                 Price
	DomainName                 Price
	FoundationAccount          Account
	CertifiedSalesAccount      Account
	DiscountForDedicationNodes uint8 // percent, e.g. 50
}

// Registry is the tfgrid collaborator: node/farm/twin identity, resources
// and pricing, consumed read-only by the contract registry and billing
// engine.
type Registry interface {
	TwinIDOf(account Account) (TwinID, bool)
	TwinAccount(twin TwinID) (Account, bool)
	Node(id NodeID) (Node, bool)
	Farm(id FarmID) (Farm, bool)
	PricingPolicy(id uint32) (PricingPolicy, bool)

	// ReserveIPs and FreeIPs atomically mutate a farm's public IP pool; they
	// are the only mutating surface Registry exposes, consumed by
	// pkg/ipreservation.
	ReserveIPs(farm FarmID, contractID uint64, count uint32) ([]PublicIP, error)
	FreeIPs(farm FarmID, contractID uint64) ([]PublicIP, error)
}

// Oracle is the price-oracle collaborator.
type Oracle interface {
	// AverageTFTPriceMUSD returns the current average TFT/USD price in
	// milli-USD per TFT (matches average_tft_price_musd() in spec.md §6).
	AverageTFTPriceMUSD() uint64
}

// Currency is the native-token collaborator: balances, locks and transfers.
type Currency interface {
	FreeBalance(account Account) uint64
	UsableBalance(account Account) uint64
	// StashBalance returns the usable balance of a twin's bound stash
	// account, if any (0 otherwise). See SPEC_FULL.md §4 "Stash balance".
	StashBalance(twin TwinID) uint64
	MinimumBalance() uint64

	Transfer(from, to Account, amount uint64) error
	Withdraw(account Account, amount uint64) (uint64, error)

	SetLock(lockID string, account Account, amount uint64) error
	ExtendLock(lockID string, account Account, amount uint64) error
	RemoveLock(lockID string, account Account) error
}

// GridLockID is the fixed per-twin lock identifier billing uses to earmark
// balance for all of a twin's live contracts (spec.md §4.2 "Lock / cycle
// accounting").
const GridLockID = "tfgridlk"
