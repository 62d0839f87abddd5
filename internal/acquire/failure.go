// Package acquire runs ordered acquisition tiers for a startup resource.
//
// The package is mechanism only: it tries tiers in priority order and stops at
// the first one that produces a resource. Deciding what an exhausted tier list
// means (degraded mode or a fatal startup error) is left to the caller.
package acquire

import (
	"fmt"
)

// FailureKind classifies why a tier did not yield a resource.
type FailureKind int

const (
	// KindNotConfigured means the tier's prerequisites were absent and nothing was attempted.
	KindNotConfigured FailureKind = iota + 1
	// KindProbeError means the attempt was made and the underlying capability failed.
	KindProbeError
	// KindVerificationFailed means the attempt reported success but the artifact failed a local check.
	KindVerificationFailed
)

// String returns the snake_case name used in logs and metrics.
func (k FailureKind) String() string {
	switch k {
	case KindNotConfigured:
		return "not_configured"
	case KindProbeError:
		return "probe_error"
	case KindVerificationFailed:
		return "verification_failed"
	default:
		return "unknown"
	}
}

// TierFailure describes one failed tier.
type TierFailure struct {
	Tier   string
	Kind   FailureKind
	Reason string
	Err    error
}

// Error implements error.
func (f *TierFailure) Error() string {
	prefix := f.Kind.String()
	if f.Tier != "" {
		prefix = f.Tier + ": " + prefix
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, f.Reason, f.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, f.Reason)
}

// Unwrap exposes the underlying cause.
func (f *TierFailure) Unwrap() error {
	return f.Err
}

// NotConfigured builds a failure for a tier that was skipped.
func NotConfigured(reason string) *TierFailure {
	return &TierFailure{Kind: KindNotConfigured, Reason: reason}
}

// ProbeFailed builds a failure for a tier whose capability returned an error.
func ProbeFailed(reason string, err error) *TierFailure {
	return &TierFailure{Kind: KindProbeError, Reason: reason, Err: err}
}

// VerificationFailed builds a failure for a tier whose result did not pass a sanity check.
func VerificationFailed(reason string, err error) *TierFailure {
	return &TierFailure{Kind: KindVerificationFailed, Reason: reason, Err: err}
}

// FailureView is the serializable form of a TierFailure.
type FailureView struct {
	Tier   string `json:"tier"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

// View converts the failure for reports.
func (f *TierFailure) View() FailureView {
	v := FailureView{Tier: f.Tier, Kind: f.Kind.String(), Reason: f.Reason}
	if f.Err != nil {
		v.Error = f.Err.Error()
	}
	return v
}
