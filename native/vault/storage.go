package vault

import (
	"fmt"

	"stakevault/core/state"
)

var (
	vaultRecordKey    = []byte("vault/ledger")
	vaultUserPrefix   = []byte("vault/users/")
	vaultUserIndexKey = []byte("vault/users/index")
	vaultRolePrefix   = []byte("vault/roles/")
)

func userKey(addr [20]byte) []byte {
	buf := make([]byte, len(vaultUserPrefix)+len(addr))
	copy(buf, vaultUserPrefix)
	copy(buf[len(vaultUserPrefix):], addr[:])
	return buf
}

func roleKey(addr [20]byte) []byte {
	buf := make([]byte, len(vaultRolePrefix)+len(addr))
	copy(buf, vaultRolePrefix)
	copy(buf[len(vaultRolePrefix):], addr[:])
	return buf
}

// Storage persists vault records through the ledger state manager. The stored
// mirror structs keep timestamps unsigned for the RLP codec; negative values
// are clamped to zero on write.

type storedBreaker struct {
	FailureCount       uint32
	LastFailureUnix    uint64
	Blocked            bool
	TotalTransactions  uint64
	FailedTransactions uint64
}

type storedLimits struct {
	StakesToday         uint32
	ClaimsToday         uint32
	RewardsClaimedToday uint64
	LastResetUnix       uint64
}

type storedPolicy struct {
	MinStakeGapSeconds     uint64
	MinClaimGapSeconds     uint64
	MaxElapsedSeconds      uint64
	FailureThreshold       uint32
	BreakerCooldownSeconds uint64
	MaxStakesPerDay        uint32
	MaxClaimsPerDay        uint32
	MaxRewardPerDay        uint64
	RBACEnabled            bool
}

type storedVault struct {
	Authority            [20]byte
	TotalStaked          uint32
	RewardToken          string
	RewardRatePerSecond  uint64
	Collection           [32]byte
	Paused               bool
	CreatedAtUnix        uint64
	UpgradeAuthority     [20]byte
	Version              uint32
	UpgradeLocked        bool
	HasPending           bool
	PendingVersion       uint32
	PendingScheduledUnix uint64
	PendingProposer      [20]byte
	Breaker              storedBreaker
	Limits               storedLimits
	Policy               storedPolicy
}

type storedUserStake struct {
	User           [20]byte
	StakedCount    uint32
	PendingRewards uint64
	LastUpdateUnix uint64
	Items          [][32]byte
}

type storedRoleGrant struct {
	User          [20]byte
	Role          uint8
	GrantedBy     [20]byte
	GrantedAtUnix uint64
}

func clampUnix(ts int64) uint64 {
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func newStoredVault(v *Vault) *storedVault {
	if v == nil {
		v = &Vault{}
	}
	stored := &storedVault{
		Authority:           v.Authority,
		TotalStaked:         v.TotalStaked,
		RewardToken:         v.RewardToken,
		RewardRatePerSecond: v.RewardRatePerSecond,
		Collection:          v.Collection,
		Paused:              v.Paused,
		CreatedAtUnix:       clampUnix(v.CreatedAtUnix),
		UpgradeAuthority:    v.UpgradeAuthority,
		Version:             v.Version,
		UpgradeLocked:       v.UpgradeLocked,
		Breaker: storedBreaker{
			FailureCount:       v.Breaker.FailureCount,
			LastFailureUnix:    clampUnix(v.Breaker.LastFailureUnix),
			Blocked:            v.Breaker.Blocked,
			TotalTransactions:  v.Breaker.TotalTransactions,
			FailedTransactions: v.Breaker.FailedTransactions,
		},
		Limits: storedLimits{
			StakesToday:         v.Limits.StakesToday,
			ClaimsToday:         v.Limits.ClaimsToday,
			RewardsClaimedToday: v.Limits.RewardsClaimedToday,
			LastResetUnix:       clampUnix(v.Limits.LastResetUnix),
		},
		Policy: storedPolicy{
			MinStakeGapSeconds:     clampUnix(v.Policy.MinStakeGapSeconds),
			MinClaimGapSeconds:     clampUnix(v.Policy.MinClaimGapSeconds),
			MaxElapsedSeconds:      clampUnix(v.Policy.MaxElapsedSeconds),
			FailureThreshold:       v.Policy.FailureThreshold,
			BreakerCooldownSeconds: clampUnix(v.Policy.BreakerCooldownSeconds),
			MaxStakesPerDay:        v.Policy.MaxStakesPerDay,
			MaxClaimsPerDay:        v.Policy.MaxClaimsPerDay,
			MaxRewardPerDay:        v.Policy.MaxRewardPerDay,
			RBACEnabled:            v.Policy.RBACEnabled,
		},
	}
	if v.Pending != nil {
		stored.HasPending = true
		stored.PendingVersion = v.Pending.NewVersion
		stored.PendingScheduledUnix = clampUnix(v.Pending.ScheduledUnix)
		stored.PendingProposer = v.Pending.Proposer
	}
	return stored
}

func (s *storedVault) toVault() *Vault {
	if s == nil {
		return &Vault{}
	}
	v := &Vault{
		Authority:           s.Authority,
		TotalStaked:         s.TotalStaked,
		RewardToken:         s.RewardToken,
		RewardRatePerSecond: s.RewardRatePerSecond,
		Collection:          s.Collection,
		Paused:              s.Paused,
		CreatedAtUnix:       int64(s.CreatedAtUnix),
		UpgradeAuthority:    s.UpgradeAuthority,
		Version:             s.Version,
		UpgradeLocked:       s.UpgradeLocked,
		Breaker: CircuitBreakerState{
			FailureCount:       s.Breaker.FailureCount,
			LastFailureUnix:    int64(s.Breaker.LastFailureUnix),
			Blocked:            s.Breaker.Blocked,
			TotalTransactions:  s.Breaker.TotalTransactions,
			FailedTransactions: s.Breaker.FailedTransactions,
		},
		Limits: DailyLimits{
			StakesToday:         s.Limits.StakesToday,
			ClaimsToday:         s.Limits.ClaimsToday,
			RewardsClaimedToday: s.Limits.RewardsClaimedToday,
			LastResetUnix:       int64(s.Limits.LastResetUnix),
		},
		Policy: Policy{
			MinStakeGapSeconds:     int64(s.Policy.MinStakeGapSeconds),
			MinClaimGapSeconds:     int64(s.Policy.MinClaimGapSeconds),
			MaxElapsedSeconds:      int64(s.Policy.MaxElapsedSeconds),
			FailureThreshold:       s.Policy.FailureThreshold,
			BreakerCooldownSeconds: int64(s.Policy.BreakerCooldownSeconds),
			MaxStakesPerDay:        s.Policy.MaxStakesPerDay,
			MaxClaimsPerDay:        s.Policy.MaxClaimsPerDay,
			MaxRewardPerDay:        s.Policy.MaxRewardPerDay,
			RBACEnabled:            s.Policy.RBACEnabled,
		},
	}
	if s.HasPending {
		v.Pending = &PendingUpgrade{
			NewVersion:    s.PendingVersion,
			ScheduledUnix: int64(s.PendingScheduledUnix),
			Proposer:      s.PendingProposer,
		}
	}
	return v
}

func newStoredUserStake(u *UserStake) *storedUserStake {
	if u == nil {
		u = &UserStake{}
	}
	stored := &storedUserStake{
		User:           u.User,
		StakedCount:    u.StakedCount,
		PendingRewards: u.PendingRewards,
		LastUpdateUnix: clampUnix(u.LastUpdateUnix),
		Items:          make([][32]byte, len(u.Items)),
	}
	copy(stored.Items, u.Items)
	return stored
}

func (s *storedUserStake) toUserStake() *UserStake {
	if s == nil {
		return &UserStake{}
	}
	u := &UserStake{
		User:           s.User,
		StakedCount:    s.StakedCount,
		PendingRewards: s.PendingRewards,
		LastUpdateUnix: int64(s.LastUpdateUnix),
		Items:          make([][32]byte, len(s.Items)),
	}
	copy(u.Items, s.Items)
	return u
}

func newStoredRoleGrant(g *RoleGrant) *storedRoleGrant {
	if g == nil {
		g = &RoleGrant{}
	}
	return &storedRoleGrant{
		User:          g.User,
		Role:          uint8(g.Role),
		GrantedBy:     g.GrantedBy,
		GrantedAtUnix: clampUnix(g.GrantedAtUnix),
	}
}

func (s *storedRoleGrant) toRoleGrant() *RoleGrant {
	if s == nil {
		return &RoleGrant{}
	}
	return &RoleGrant{
		User:          s.User,
		Role:          Role(s.Role),
		GrantedBy:     s.GrantedBy,
		GrantedAtUnix: int64(s.GrantedAtUnix),
	}
}

// Storage adapts the ledger state manager to the persistence surface the
// engine needs.
type Storage struct {
	mgr *state.Manager
}

func NewStorage(mgr *state.Manager) *Storage {
	return &Storage{mgr: mgr}
}

func (s *Storage) VaultGet() (*Vault, bool, error) {
	stored := new(storedVault)
	found, err := s.mgr.KVGet(vaultRecordKey, stored)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return stored.toVault(), true, nil
}

func (s *Storage) VaultPut(v *Vault) error {
	if v == nil {
		return fmt.Errorf("vault: nil vault record")
	}
	return s.mgr.KVPut(vaultRecordKey, newStoredVault(v))
}

func (s *Storage) UserGet(addr [20]byte) (*UserStake, bool, error) {
	stored := new(storedUserStake)
	found, err := s.mgr.KVGet(userKey(addr), stored)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return stored.toUserStake(), true, nil
}

func (s *Storage) UserPut(u *UserStake) error {
	if u == nil {
		return fmt.Errorf("vault: nil user record")
	}
	return s.mgr.KVPut(userKey(u.User), newStoredUserStake(u))
}

func (s *Storage) UserIndexAppend(addr [20]byte) error {
	return s.mgr.KVAppend(vaultUserIndexKey, addr[:])
}

func (s *Storage) UserIndex() ([][20]byte, error) {
	var raw [][]byte
	if err := s.mgr.KVGetList(vaultUserIndexKey, &raw); err != nil {
		return nil, err
	}
	users := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("vault: malformed user index entry of %d bytes", len(entry))
		}
		var addr [20]byte
		copy(addr[:], entry)
		users = append(users, addr)
	}
	return users, nil
}

func (s *Storage) RoleGet(addr [20]byte) (*RoleGrant, bool, error) {
	stored := new(storedRoleGrant)
	found, err := s.mgr.KVGet(roleKey(addr), stored)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return stored.toRoleGrant(), true, nil
}

func (s *Storage) RolePut(g *RoleGrant) error {
	if g == nil {
		return fmt.Errorf("vault: nil role grant")
	}
	return s.mgr.KVPut(roleKey(g.User), newStoredRoleGrant(g))
}

func (s *Storage) RoleDelete(addr [20]byte) error {
	return s.mgr.KVDelete(roleKey(addr))
}
