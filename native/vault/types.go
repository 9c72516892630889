package vault

// Vault is the singleton aggregate of a deployment: staking totals,
// configuration, the upgrade state machine and the embedded safety state.
type Vault struct {
	Authority           [20]byte
	TotalStaked         uint32
	RewardToken         string
	RewardRatePerSecond uint64
	Collection          [32]byte
	Paused              bool
	// CreatedAtUnix is stamped once at initialization and serves as the
	// reference point for the theoretical claim cap.
	CreatedAtUnix    int64
	UpgradeAuthority [20]byte
	Version          uint32
	UpgradeLocked    bool
	Pending          *PendingUpgrade
	Breaker          CircuitBreakerState
	Limits           DailyLimits
	Policy           Policy
}

// Copy returns a deep copy safe to hand to callers.
func (v *Vault) Copy() *Vault {
	if v == nil {
		return nil
	}
	out := *v
	if v.Pending != nil {
		pending := *v.Pending
		out.Pending = &pending
	}
	return &out
}

// UserStake is the per-user staking record, created lazily on first stake.
// Items lists the staked units in custody order; its length always equals
// StakedCount.
type UserStake struct {
	User           [20]byte
	StakedCount    uint32
	PendingRewards uint64
	LastUpdateUnix int64
	Items          [][32]byte
}

// Copy returns a deep copy safe to hand to callers.
func (u *UserStake) Copy() *UserStake {
	if u == nil {
		return nil
	}
	out := *u
	if u.Items != nil {
		out.Items = make([][32]byte, len(u.Items))
		copy(out.Items, u.Items)
	}
	return &out
}

// PendingUpgrade is the single in-flight version bump proposal.
type PendingUpgrade struct {
	NewVersion    uint32
	ScheduledUnix int64
	Proposer      [20]byte
}

// RoleGrant records the privilege tier granted to an account and who granted
// it. Revocation deletes the record; absence means no authority.
type RoleGrant struct {
	User          [20]byte
	Role          Role
	GrantedBy     [20]byte
	GrantedAtUnix int64
}

// UserPosition is the query-side view of a user's stake. ProjectedRewards adds
// the accrual earned since the last update to the stored pending balance; when
// the accrual window is exceeded it falls back to the stored balance alone.
type UserPosition struct {
	User             [20]byte
	StakedCount      uint32
	PendingRewards   uint64
	ProjectedRewards uint64
	LastUpdateUnix   int64
	Items            [][32]byte
}
