package vault

// CircuitBreakerState tracks repeated operation failures for a vault and
// blocks guarded operations once the configured threshold is hit. The state is
// embedded in the vault record so guard checks and the operation they guard
// commit as one unit.
type CircuitBreakerState struct {
	FailureCount       uint32
	LastFailureUnix    int64
	Blocked            bool
	TotalTransactions  uint64
	FailedTransactions uint64
}

// CanExecute reports whether a guarded operation may proceed. A tripped
// breaker recovers softly: once the cooldown since the last failure passes,
// operations are admitted again even though Blocked stays set until OnSuccess
// decays the failure count to zero.
func (b *CircuitBreakerState) CanExecute(now int64, p Policy) bool {
	if p.FailureThreshold == 0 {
		return true
	}
	if !b.Blocked {
		return true
	}
	if p.BreakerCooldownSeconds > 0 && now-b.LastFailureUnix > p.BreakerCooldownSeconds {
		return true
	}
	return b.FailureCount < p.FailureThreshold
}

// OnSuccess records a completed operation. While blocked, each success decays
// the failure count by one; the breaker closes when the count reaches zero.
func (b *CircuitBreakerState) OnSuccess() {
	b.TotalTransactions++
	if b.Blocked && b.FailureCount > 0 {
		b.FailureCount--
		if b.FailureCount == 0 {
			b.Blocked = false
		}
	}
}

// OnFailure records a failed operation and trips the breaker once the
// threshold is reached.
func (b *CircuitBreakerState) OnFailure(now int64, p Policy) {
	b.TotalTransactions++
	b.FailedTransactions++
	b.FailureCount++
	b.LastFailureUnix = now
	if p.FailureThreshold > 0 && b.FailureCount >= p.FailureThreshold {
		b.Blocked = true
	}
}
