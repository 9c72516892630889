package vault

import "fmt"

// Policy carries the safety knobs that vary between vault deployments. The
// engine stamps its configured policy onto the vault record at initialization
// so every later operation is judged against the rules that vault was created
// with. A zero value disables the corresponding guard.
type Policy struct {
	// MinStakeGapSeconds is the minimum gap between stake or unstake
	// operations by the same user.
	MinStakeGapSeconds int64
	// MinClaimGapSeconds is the minimum gap before a user may claim again.
	MinClaimGapSeconds int64
	// MaxElapsedSeconds bounds the accrual window of a single operation.
	// Elapsed time beyond the bound rejects the operation instead of
	// silently capping the reward.
	MaxElapsedSeconds int64
	// FailureThreshold is the failure count that trips the circuit breaker.
	FailureThreshold uint32
	// BreakerCooldownSeconds is the window after the last failure during
	// which a tripped breaker keeps rejecting operations.
	BreakerCooldownSeconds int64
	// MaxStakesPerDay caps stake operations per rolling day.
	MaxStakesPerDay uint32
	// MaxClaimsPerDay caps claim operations per rolling day.
	MaxClaimsPerDay uint32
	// MaxRewardPerDay caps the total reward paid out per rolling day.
	MaxRewardPerDay uint64
	// RBACEnabled selects role-grant authorization for privileged
	// operations. When disabled, only the vault authority may perform them.
	RBACEnabled bool
}

// DefaultPolicy returns the production defaults: five minute stake gap, one
// minute claim gap, a 48 hour accrual window and the full safety stack.
func DefaultPolicy() Policy {
	return Policy{
		MinStakeGapSeconds:     300,
		MinClaimGapSeconds:     60,
		MaxElapsedSeconds:      172_800,
		FailureThreshold:       10,
		BreakerCooldownSeconds: 600,
		MaxStakesPerDay:        100,
		MaxClaimsPerDay:        50,
		MaxRewardPerDay:        1_000_000_000,
		RBACEnabled:            true,
	}
}

// Validate ensures the supplied policy falls within safe operating ranges.
func (p Policy) Validate() error {
	if p.MinStakeGapSeconds < 0 {
		return fmt.Errorf("min stake gap must not be negative")
	}
	if p.MinClaimGapSeconds < 0 {
		return fmt.Errorf("min claim gap must not be negative")
	}
	if p.MaxElapsedSeconds < 0 {
		return fmt.Errorf("max elapsed window must not be negative")
	}
	if p.BreakerCooldownSeconds < 0 {
		return fmt.Errorf("breaker cooldown must not be negative")
	}
	return nil
}
