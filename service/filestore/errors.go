package filestore

import (
	"fmt"

	"github.com/layerfs/scmstore/api"
)

// KeyedFetchError is a single tier's failure attributed to one key. It is
// not fatal: the orchestrator keeps probing later tiers, and the error is
// dropped from the result if a later tier resolves the key.
type KeyedFetchError struct {
	Key   api.Key
	Tier  string
	Cause error
}

func (e *KeyedFetchError) Error() string {
	return fmt.Sprintf("filestore: %s: tier %s: %v", e.Key.Path, e.Tier, e.Cause)
}

func (e *KeyedFetchError) Unwrap() error { return e.Cause }

// TierError is a batch-granularity failure: the whole tier contributed
// nothing to this request.
type TierError struct {
	Tier  string
	Cause error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("filestore: tier %s failed: %v", e.Tier, e.Cause)
}

func (e *TierError) Unwrap() error { return e.Cause }

// PolicyError surfaces immediately: the caller attempted an operation the
// store does not support in this configuration.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string { return "filestore: policy violation: " + e.Reason }

// FlushError is recorded per tier by FileStore.Flush; every tier is still
// attempted regardless of earlier failures.
type FlushError struct {
	Tier  string
	Cause error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("filestore: flush of tier %s failed: %v", e.Tier, e.Cause)
}

func (e *FlushError) Unwrap() error { return e.Cause }

// FetchErrors accumulates keyed and tier-level errors across one
// FetchState's lifetime.
type FetchErrors struct {
	perKey map[api.Key][]error
	other  []error
}

func newFetchErrors() *FetchErrors {
	return &FetchErrors{perKey: make(map[api.Key][]error)}
}

// keyedError records a per-key, non-fatal failure.
func (e *FetchErrors) keyedError(key api.Key, tier string, cause error) {
	e.perKey[key] = append(e.perKey[key], &KeyedFetchError{Key: key, Tier: tier, Cause: cause})
}

// otherError records a tier-level failure not attributable to one key.
func (e *FetchErrors) otherError(tier string, cause error) {
	e.other = append(e.other, &TierError{Tier: tier, Cause: cause})
}

// forKey returns the accumulated errors for a single key, or nil.
func (e *FetchErrors) forKey(key api.Key) []error {
	return e.perKey[key]
}

// drop removes any accumulated errors for a key once it resolves.
func (e *FetchErrors) drop(key api.Key) {
	delete(e.perKey, key)
}
