package staking

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the engine. Callers match with errors.Is.
var (
	// ErrStakeNotFound - referenced stake does not exist.
	ErrStakeNotFound = errors.New("stake not found")
	// ErrForbidden - caller is not the stake's owner. The record is left untouched.
	ErrForbidden = errors.New("address does not own stake")
	// ErrInvalidState - operation attempted against a record not in the required state.
	ErrInvalidState = errors.New("stake not in required state")
	// ErrNoPendingRewards - business no-op, not a fault; callers should not retry.
	ErrNoPendingRewards = errors.New("no pending rewards")
	// ErrOwnerLockTimeout - transient; callers may retry with backoff.
	ErrOwnerLockTimeout = errors.New("timed out waiting for owner lock")
	// ErrStoreUnavailable - underlying persistence failure; no partial writes occurred.
	ErrStoreUnavailable = errors.New("stake store unavailable")
	// ErrAssetAlreadyStaked - the asset already has an active or pending stake.
	ErrAssetAlreadyStaked = errors.New("asset already staked")
	// ErrUnknownTier - tier is not present in the configured tier table.
	ErrUnknownTier = errors.New("unknown tier")
)

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
