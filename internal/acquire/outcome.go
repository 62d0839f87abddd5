package acquire

// OutcomeKind is the classification produced by a resolver.
type OutcomeKind int

const (
	// OutcomeAcquired means a tier produced a usable resource.
	OutcomeAcquired OutcomeKind = iota + 1
	// OutcomeDegraded means the process continues without the resource.
	OutcomeDegraded
	// OutcomeFatal means the process must not continue.
	OutcomeFatal
)

// String returns the lower-case name of the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAcquired:
		return "acquired"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the result of one resolution pass.
type Outcome[R any] struct {
	Kind     OutcomeKind
	Resource R
	Tier     string
	Reason   string
	Failures []*TierFailure
}

// Acquired builds a success outcome.
func Acquired[R any](resource R, tier string) Outcome[R] {
	return Outcome[R]{Kind: OutcomeAcquired, Resource: resource, Tier: tier}
}

// Degraded builds a degraded outcome.
func Degraded[R any](reason string, failures []*TierFailure) Outcome[R] {
	return Outcome[R]{Kind: OutcomeDegraded, Reason: reason, Failures: failures}
}

// Fatal builds a fatal outcome.
func Fatal[R any](reason string, failures []*TierFailure) Outcome[R] {
	return Outcome[R]{Kind: OutcomeFatal, Reason: reason, Failures: failures}
}

// Summary is the resource-independent view of an Outcome.
type Summary struct {
	Outcome  string        `json:"outcome"`
	Tier     string        `json:"tier,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Failures []FailureView `json:"failures,omitempty"`
}

// Summary drops the resource so outcomes of different types can be reported together.
func (o Outcome[R]) Summary() Summary {
	s := Summary{Outcome: o.Kind.String(), Tier: o.Tier, Reason: o.Reason}
	for _, f := range o.Failures {
		s.Failures = append(s.Failures, f.View())
	}
	return s
}
