package vault

const secondsPerDay = 86_400

// DailyLimits holds the rolling 24h counters embedded in the vault record. A
// day boundary is whenever the gap since the last reset exceeds 24 hours, so
// the window shifts with activity rather than tracking calendar days.
type DailyLimits struct {
	StakesToday         uint32
	ClaimsToday         uint32
	RewardsClaimedToday uint64
	LastResetUnix       int64
}

// ResetIfNewDay zeroes the counters once more than a day has passed since the
// previous reset.
func (d *DailyLimits) ResetIfNewDay(now int64) {
	if now-d.LastResetUnix > secondsPerDay {
		d.StakesToday = 0
		d.ClaimsToday = 0
		d.RewardsClaimedToday = 0
		d.LastResetUnix = now
	}
}

// CanStake reports whether another stake fits in today's quota.
func (d *DailyLimits) CanStake(p Policy) bool {
	return p.MaxStakesPerDay == 0 || d.StakesToday < p.MaxStakesPerDay
}

// CanClaim reports whether a claim of the given amount fits in today's count
// and payout quotas.
func (d *DailyLimits) CanClaim(amount uint64, p Policy) bool {
	if p.MaxClaimsPerDay > 0 && d.ClaimsToday >= p.MaxClaimsPerDay {
		return false
	}
	if p.MaxRewardPerDay > 0 {
		if amount > p.MaxRewardPerDay {
			return false
		}
		if d.RewardsClaimedToday > p.MaxRewardPerDay-amount {
			return false
		}
	}
	return true
}

// RecordStake counts a completed stake. Call only after the operation has
// fully succeeded.
func (d *DailyLimits) RecordStake() {
	d.StakesToday++
}

// RecordClaim counts a completed claim and its payout. Call only after the
// operation has fully succeeded.
func (d *DailyLimits) RecordClaim(amount uint64) {
	d.ClaimsToday++
	d.RewardsClaimedToday += amount
}
