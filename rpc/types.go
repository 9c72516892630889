package rpc

import (
	"encoding/hex"
	"fmt"
	"strings"

	"stakevault/crypto"
	"stakevault/native/vault"
)

// VaultInfoResult summarises the vault record for RPC consumers.
type VaultInfoResult struct {
	Authority        string                `json:"authority"`
	RewardToken      string                `json:"rewardToken"`
	Collection       string                `json:"collection"`
	RatePerSecond    uint64                `json:"ratePerSecond"`
	TotalStaked      uint32                `json:"totalStaked"`
	Paused           bool                  `json:"paused"`
	Version          uint32                `json:"version"`
	CreatedAt        int64                 `json:"createdAt"`
	UpgradeAuthority string                `json:"upgradeAuthority"`
	UpgradesLocked   bool                  `json:"upgradesLocked"`
	PendingUpgrade   *PendingUpgradeResult `json:"pendingUpgrade,omitempty"`
}

// UserPositionResult reflects a user's staking position including the reward
// projection to the current time.
type UserPositionResult struct {
	User             string   `json:"user"`
	StakedCount      uint32   `json:"stakedCount"`
	PendingRewards   uint64   `json:"pendingRewards"`
	ProjectedRewards uint64   `json:"projectedRewards"`
	LastUpdate       int64    `json:"lastUpdate"`
	Items            []string `json:"items"`
}

// StakePositionResult is the post-operation view returned by stake and
// unstake.
type StakePositionResult struct {
	User           string   `json:"user"`
	StakedCount    uint32   `json:"stakedCount"`
	PendingRewards uint64   `json:"pendingRewards"`
	LastUpdate     int64    `json:"lastUpdate"`
	Items          []string `json:"items"`
	ReleasedItem   string   `json:"releasedItem,omitempty"`
}

// ClaimResult reports the amount minted by a claim.
type ClaimResult struct {
	User   string `json:"user"`
	Amount uint64 `json:"amount"`
}

// RoleResult reports a role grant.
type RoleResult struct {
	User      string `json:"user"`
	Role      string `json:"role"`
	GrantedBy string `json:"grantedBy,omitempty"`
	GrantedAt int64  `json:"grantedAt,omitempty"`
}

// PendingUpgradeResult reports the in-flight version bump, if any.
type PendingUpgradeResult struct {
	NewVersion  uint32 `json:"newVersion"`
	ScheduledAt int64  `json:"scheduledAt"`
	Proposer    string `json:"proposer"`
}

// BreakerResult reports the circuit breaker counters.
type BreakerResult struct {
	FailureCount       uint32 `json:"failureCount"`
	LastFailureAt      int64  `json:"lastFailureAt"`
	Blocked            bool   `json:"blocked"`
	TotalTransactions  uint64 `json:"totalTransactions"`
	FailedTransactions uint64 `json:"failedTransactions"`
}

// LimitsResult reports the rolling daily counters.
type LimitsResult struct {
	StakesToday         uint32 `json:"stakesToday"`
	ClaimsToday         uint32 `json:"claimsToday"`
	RewardsClaimedToday uint64 `json:"rewardsClaimedToday"`
	LastReset           int64  `json:"lastReset"`
}

// EventsPage is one page of the durable event journal.
type EventsPage struct {
	Events     []EventRecord `json:"events"`
	NextCursor uint64        `json:"nextCursor"`
}

// EventRecord mirrors a stored journal entry.
type EventRecord struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	EmittedAt  int64             `json:"emittedAt"`
}

func formatAddress(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.SVTPrefix, addr[:]).String()
}

func formatID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func formatItems(items [][32]byte) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, formatID(item))
	}
	return out
}

func parseAddressParam(raw string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseIDParam(raw string) ([32]byte, error) {
	var out [32]byte
	cleaned := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, err
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("id must be %d bytes, got %d", len(out), len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func vaultInfoResult(v *vault.Vault) VaultInfoResult {
	result := VaultInfoResult{
		Authority:        formatAddress(v.Authority),
		RewardToken:      v.RewardToken,
		Collection:       formatID(v.Collection),
		RatePerSecond:    v.RewardRatePerSecond,
		TotalStaked:      v.TotalStaked,
		Paused:           v.Paused,
		Version:          v.Version,
		CreatedAt:        v.CreatedAtUnix,
		UpgradeAuthority: formatAddress(v.UpgradeAuthority),
		UpgradesLocked:   v.UpgradeLocked,
	}
	if v.Pending != nil {
		pending := pendingUpgradeResult(v.Pending)
		result.PendingUpgrade = &pending
	}
	return result
}

func pendingUpgradeResult(p *vault.PendingUpgrade) PendingUpgradeResult {
	return PendingUpgradeResult{
		NewVersion:  p.NewVersion,
		ScheduledAt: p.ScheduledUnix,
		Proposer:    formatAddress(p.Proposer),
	}
}

func stakePositionResult(u *vault.UserStake) StakePositionResult {
	return StakePositionResult{
		User:           formatAddress(u.User),
		StakedCount:    u.StakedCount,
		PendingRewards: u.PendingRewards,
		LastUpdate:     u.LastUpdateUnix,
		Items:          formatItems(u.Items),
	}
}

func userPositionResult(p *vault.UserPosition) UserPositionResult {
	return UserPositionResult{
		User:             formatAddress(p.User),
		StakedCount:      p.StakedCount,
		PendingRewards:   p.PendingRewards,
		ProjectedRewards: p.ProjectedRewards,
		LastUpdate:       p.LastUpdateUnix,
		Items:            formatItems(p.Items),
	}
}
