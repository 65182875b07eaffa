package feepool

import "errors"

var (
	// ErrDuplicateFee is returned when a pool with the same fee is already registered.
	ErrDuplicateFee = errors.New("pool is already on the list")
	// ErrFirstPoolAdded is returned when both hints are empty but the registry is not.
	ErrFirstPoolAdded = errors.New("first pool is already added")
	// ErrNotFirst is returned when a head insertion does not name the current head
	// or the fee does not sit below it.
	ErrNotFirst = errors.New("given pool is not the first")
	// ErrNotLast is returned when a tail insertion does not name the current tail
	// or the fee does not sit above it.
	ErrNotLast = errors.New("given pool is not the last")
	// ErrNotBetween is returned when the hinted neighbours are not adjacent or the
	// fee is not strictly between them.
	ErrNotBetween = errors.New("fee must be between prev and next values")
	// ErrPoolNotFound is returned when an operation targets an absent fee.
	ErrPoolNotFound = errors.New("pool is not on the list")
	// ErrReservedFee is returned when a pool is submitted with the NoFee key.
	ErrReservedFee = errors.New("fee key 0 is reserved")
	// ErrCorruptChain is returned when a registry or a view breaks the chain invariants.
	ErrCorruptChain = errors.New("fee pool chain is corrupt")
)

// Reason maps an error returned by the registry to a short, stable label
// suitable for metrics and logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDuplicateFee):
		return "duplicate_fee"
	case errors.Is(err, ErrFirstPoolAdded):
		return "first_pool_added"
	case errors.Is(err, ErrNotFirst):
		return "not_first"
	case errors.Is(err, ErrNotLast):
		return "not_last"
	case errors.Is(err, ErrNotBetween):
		return "not_between"
	case errors.Is(err, ErrPoolNotFound):
		return "not_found"
	case errors.Is(err, ErrReservedFee):
		return "reserved_fee"
	case errors.Is(err, ErrCorruptChain):
		return "corrupt_chain"
	default:
		return "unknown"
	}
}
