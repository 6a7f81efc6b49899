package domain

import "strings"

// DegradationPolicyMode enumerates how revocation checks behave when no store tier answers.
type DegradationPolicyMode string

const (
	// DegradationPolicyModeLenient accepts tokens whose revocation state cannot be read (fail-open).
	DegradationPolicyModeLenient DegradationPolicyMode = "lenient"
	// DegradationPolicyModeStrict rejects tokens whose revocation state cannot be read (fail-closed).
	DegradationPolicyModeStrict DegradationPolicyMode = "strict"
)

// DegradationReason captures which lookup failed when a policy decision is taken.
type DegradationReason string

const (
	// DegradationReasonBlacklistUnavailable denotes that neither the cache nor the durable table answered.
	DegradationReasonBlacklistUnavailable DegradationReason = "blacklist_unavailable"
	// DegradationReasonVersionUnavailable denotes the token version counter could not be read.
	DegradationReasonVersionUnavailable DegradationReason = "version_unavailable"
)

// DegradationPolicy centralises how the engine responds when revocation data is unavailable.
type DegradationPolicy struct {
	mode DegradationPolicyMode
}

// NewDegradationPolicy constructs a policy with the provided mode, defaulting to strict when unspecified.
func NewDegradationPolicy(mode DegradationPolicyMode) DegradationPolicy {
	if mode != DegradationPolicyModeLenient {
		mode = DegradationPolicyModeStrict
	}
	return DegradationPolicy{mode: mode}
}

// ParseDegradationPolicyMode normalises textual input into a supported policy mode.
func ParseDegradationPolicyMode(value string) DegradationPolicyMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(DegradationPolicyModeLenient), "fail-open", "fail_open":
		return DegradationPolicyModeLenient
	default:
		return DegradationPolicyModeStrict
	}
}

// Mode returns the underlying policy mode.
func (p DegradationPolicy) Mode() DegradationPolicyMode {
	if p.mode == "" {
		return DegradationPolicyModeStrict
	}
	return p.mode
}

// IsStrict indicates whether the policy rejects degraded states.
func (p DegradationPolicy) IsStrict() bool {
	return p.Mode() == DegradationPolicyModeStrict
}

// AllowsFallback determines if the policy permits continuing when the supplied reason occurs.
func (p DegradationPolicy) AllowsFallback(reason DegradationReason) bool {
	return !p.IsStrict()
}
