// Package contracterrors defines the taxonomy of observable error kinds the
// billing engine can return (spec.md §7). Every extrinsic-facing error is a
// sentinel so call sites can compare with errors.Is and so an offchain
// indexer can stringify the exact failure name from spec.md §6.
package contracterrors

import "errors"

// Kind classifies an error for observability/metrics purposes.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindExistence     Kind = "existence"
	KindUniqueness    Kind = "uniqueness"
	KindResource      Kind = "resource"
	KindOracle        Kind = "oracle"
	KindState         Kind = "state"
	KindConfiguration Kind = "configuration"
)

// Error pairs a sentinel with its Kind.
type Error struct {
	kind Kind
	err  error
}

func (e *Error) Error() string { return e.err.Error() }
func (e *Error) Unwrap() error { return e.err }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

func newErr(kind Kind, msg string) *Error {
	return &Error{kind: kind, err: errors.New(msg)}
}

// Sentinel errors, named after the extrinsic-facing identifiers in spec.md §6.
var (
	ErrTwinNotExists             = newErr(KindExistence, "twin not exists")
	ErrNodeNotExists             = newErr(KindExistence, "node not exists")
	ErrFarmNotExists             = newErr(KindExistence, "farm not exists")
	ErrPricingPolicyNotExists    = newErr(KindExistence, "pricing policy not exists")
	ErrContractNotExists         = newErr(KindExistence, "contract not exists")
	ErrNoSuchSolutionProvider    = newErr(KindExistence, "no such solution provider")

	ErrNodeNotAvailableToDeploy  = newErr(KindAuthorization, "node not available to deploy")
	ErrTwinNotAuthorizedToUpdateContract = newErr(KindAuthorization, "twin not authorized to update contract")
	ErrTwinNotAuthorizedToCancelContract = newErr(KindAuthorization, "twin not authorized to cancel contract")
	ErrNodeNotAuthorizedToComputeReport  = newErr(KindAuthorization, "node not authorized to compute report")

	ErrContractIsNotUnique = newErr(KindUniqueness, "contract is not unique")
	ErrNameExists          = newErr(KindUniqueness, "name exists")
	ErrNodeHasRentContract = newErr(KindUniqueness, "node has rent contract")

	ErrFarmHasNotEnoughPublicIPs = newErr(KindResource, "farm has not enough public ips")
	ErrNodeHasActiveContracts    = newErr(KindResource, "node has active contracts")
	ErrInsufficientBalance       = newErr(KindResource, "insufficient balance")

	ErrTFTPriceValueError = newErr(KindOracle, "tft price value error")

	ErrCannotUpdateContractInGraceState = newErr(KindState, "cannot update contract in grace state")

	ErrNameNotValid                 = newErr(KindConfiguration, "name not valid")
	ErrNodeIsNotDedicated           = newErr(KindConfiguration, "node is not dedicated")
	ErrSolutionProviderNotApproved  = newErr(KindConfiguration, "solution provider not approved")
	ErrInvalidProviderConfiguration = newErr(KindConfiguration, "invalid provider configuration")

	// Off-chain dispatcher errors, kept from billing.rs's
	// bill_contract_using_signed_transaction/is_next_block_author
	// (see SPEC_FULL.md §4 "Supplemented features").
	ErrWrongAuthority                        = newErr(KindAuthorization, "wrong authority")
	ErrIsNotAnAuthority                      = newErr(KindAuthorization, "is not an authority")
	ErrOffchainSignedTxCannotSign            = newErr(KindState, "offchain signed tx cannot sign")
	ErrOffchainSignedTxAlreadySent           = newErr(KindState, "offchain signed tx already sent")
	ErrOffchainSignedTxNoLocalAccountAvailable = newErr(KindState, "offchain signed tx no local account available")

	ErrContractWrongBillingLoopIndex = newErr(KindState, "contract wrong billing loop index")
	ErrCanOnlyIncreaseFrequency      = newErr(KindConfiguration, "can only increase billing frequency")

	ErrInvalidContractType = newErr(KindConfiguration, "invalid contract type")
)
