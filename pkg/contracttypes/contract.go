// Package contracttypes holds the data model of spec.md §3: the Contract
// tagged union, its three contract type variants, billing/lock/resource
// side-state and the solution-provider record.
package contracttypes

import "github.com/threefoldtech/tfchain-billing/pkg/iface"

// Cause records why a contract was deleted.
type Cause uint8

const (
	CauseNone Cause = iota
	CauseCanceledByUser
	CauseOutOfFunds
)

func (c Cause) String() string {
	switch c {
	case CauseCanceledByUser:
		return "CanceledByUser"
	case CauseOutOfFunds:
		return "OutOfFunds"
	default:
		return "None"
	}
}

// StateKind discriminates the Contract.State tagged union.
type StateKind uint8

const (
	StateCreated StateKind = iota
	StateGracePeriod
	StateDeleted
)

// State is the contract's lifecycle state: Created, GracePeriod(block
// started) or Deleted(cause).
type State struct {
	Kind        StateKind
	GraceBlock  uint64 // valid when Kind == StateGracePeriod
	DeleteCause Cause  // valid when Kind == StateDeleted
}

func Created() State                       { return State{Kind: StateCreated} }
func GracePeriod(block uint64) State        { return State{Kind: StateGracePeriod, GraceBlock: block} }
func Deleted(cause Cause) State             { return State{Kind: StateDeleted, DeleteCause: cause} }
func (s State) IsDeleted() bool             { return s.Kind == StateDeleted }
func (s State) IsGracePeriod() bool         { return s.Kind == StateGracePeriod }
func (s State) IsCreated() bool             { return s.Kind == StateCreated }

func (s State) String() string {
	switch s.Kind {
	case StateGracePeriod:
		return "GracePeriod"
	case StateDeleted:
		return "Deleted(" + s.DeleteCause.String() + ")"
	default:
		return "Created"
	}
}

// TypeKind discriminates the ContractType tagged union.
type TypeKind uint8

const (
	TypeDeployment TypeKind = iota
	TypeName
	TypeRent
)

// IPAllocation is one public IP handed out to a deployment contract.
type IPAllocation struct {
	IP      string
	Gateway string
}

// DeploymentContract is the node-bound contract variant.
type DeploymentContract struct {
	NodeID             iface.NodeID
	DeploymentHash     [32]byte
	DeploymentData     []byte
	PublicIPsRequested uint32
	PublicIPsAllocated []IPAllocation
}

// NameContract reserves a unique DNS-like name.
type NameContract struct {
	Name string
}

// RentContract reserves an entire dedicated node.
type RentContract struct {
	NodeID iface.NodeID
}

// ContractType is the tagged union of the three contract kinds. Exactly one
// of Deployment/Name/Rent is meaningful, selected by Kind.
type ContractType struct {
	Kind       TypeKind
	Deployment DeploymentContract
	Name       NameContract
	Rent       RentContract
}

// NodeID returns the node this contract is bound to, if any (Deployment and
// Rent contracts are node-bound, Name contracts are not).
func (ct ContractType) NodeID() (iface.NodeID, bool) {
	switch ct.Kind {
	case TypeDeployment:
		return ct.Deployment.NodeID, true
	case TypeRent:
		return ct.Rent.NodeID, true
	default:
		return 0, false
	}
}

// Contract is the top-level per-contract record (spec.md §3 "Contract").
type Contract struct {
	ID                 uint64
	Version            uint32
	TwinID             iface.TwinID
	State              State
	Type               ContractType
	SolutionProviderID uint64 // 0 means none
}

// BillingInfo is the per-contract metered-consumption accumulator (spec.md
// §3 "ContractBillingInformation").
type BillingInfo struct {
	LastUpdated      uint64 // unix seconds
	AmountUnbilled   uint64 // integer milli-USD
	PreviousNUReported uint64
}

// Lock is the per-contract lock bookkeeping (spec.md §3 "ContractLock").
type Lock struct {
	LockUpdated       uint64 // unix seconds
	AmountLocked      uint64 // native token units
	ExtraAmountLocked uint64 // rent-contract extra fee bucket
	Cycles            uint32
}

// TotalAmountLocked is the sum of the regular and extra lock buckets.
func (l Lock) TotalAmountLocked() uint64 {
	return l.AmountLocked + l.ExtraAmountLocked
}

// HasSomeAmountLocked reports whether any balance is earmarked by this lock.
func (l Lock) HasSomeAmountLocked() bool {
	return l.TotalAmountLocked() > 0
}

// NodeContractResources is the last-reported usage snapshot for a
// deployment contract (spec.md §3 "NodeContractResources").
type NodeContractResources struct {
	Used  iface.Resources
	Total iface.Resources
}

// SolutionProviderShare is one payee of a solution provider's cut.
type SolutionProviderShare struct {
	Account iface.Account
	Take    uint8 // percent
}

// SolutionProvider is an optional third party splitting the sales share of
// a contract's bill (spec.md §3 "SolutionProvider").
type SolutionProvider struct {
	ID          uint64
	Description string
	Link        string
	Providers   []SolutionProviderShare
	Approved    bool
}

// TotalTake sums the aggregate percentage taken by all payees.
func (sp SolutionProvider) TotalTake() uint8 {
	var total uint8
	for _, p := range sp.Providers {
		total += p.Take
	}
	return total
}
