package core

import (
	"stakevault/native/vault"
)

// VaultInitialize creates the singleton vault with the caller as authority.
func (n *Node) VaultInitialize(caller [20]byte, params vault.InitParams) (*vault.Vault, error) {
	return n.engine.Initialize(caller, params)
}

// VaultStake places one collection item into custody for the caller.
func (n *Node) VaultStake(caller [20]byte, itemID [32]byte) (*vault.UserStake, error) {
	return n.engine.Stake(caller, itemID)
}

// VaultUnstake releases a staked item back to the caller. A nil itemID
// releases the most recently staked item.
func (n *Node) VaultUnstake(caller [20]byte, itemID *[32]byte) (*vault.UserStake, [32]byte, error) {
	return n.engine.Unstake(caller, itemID)
}

// VaultClaim mints the caller's accumulated rewards.
func (n *Node) VaultClaim(caller [20]byte) (uint64, error) {
	return n.engine.Claim(caller)
}

// VaultPause halts vault operations.
func (n *Node) VaultPause(caller [20]byte) error {
	return n.engine.Pause(caller)
}

// VaultUnpause resumes vault operations.
func (n *Node) VaultUnpause(caller [20]byte) error {
	return n.engine.Unpause(caller)
}

// VaultGrantRole assigns a role to the subject.
func (n *Node) VaultGrantRole(caller, subject [20]byte, role vault.Role) error {
	return n.engine.GrantRole(caller, subject, role)
}

// VaultRevokeRole removes the subject's role grant.
func (n *Node) VaultRevokeRole(caller, subject [20]byte) error {
	return n.engine.RevokeRole(caller, subject)
}

// VaultProposeUpgrade schedules a version bump behind a timelock.
func (n *Node) VaultProposeUpgrade(caller [20]byte, newVersion uint32, timelockSeconds int64) (*vault.PendingUpgrade, error) {
	return n.engine.ProposeUpgrade(caller, newVersion, timelockSeconds)
}

// VaultExecuteUpgrade applies the pending version bump.
func (n *Node) VaultExecuteUpgrade(caller [20]byte) (uint32, error) {
	return n.engine.ExecuteUpgrade(caller)
}

// VaultCancelUpgrade withdraws the pending proposal.
func (n *Node) VaultCancelUpgrade(caller [20]byte) error {
	return n.engine.CancelUpgrade(caller)
}

// VaultLockUpgrades permanently disables upgrade proposals.
func (n *Node) VaultLockUpgrades(caller [20]byte) error {
	return n.engine.LockUpgrades(caller)
}

// VaultUpdateConfig adjusts the reward rate and/or accepted collection.
func (n *Node) VaultUpdateConfig(caller [20]byte, newRate *uint64, newCollection *[32]byte) error {
	return n.engine.UpdateConfig(caller, newRate, newCollection)
}

// VaultInfo returns the vault record.
func (n *Node) VaultInfo() (*vault.Vault, error) {
	return n.engine.VaultInfo()
}

// VaultUserInfo returns the user's position projected to now.
func (n *Node) VaultUserInfo(addr [20]byte) (*vault.UserPosition, error) {
	return n.engine.UserInfo(addr)
}

// VaultUsers lists every address that has ever staked.
func (n *Node) VaultUsers() ([][20]byte, error) {
	return n.engine.Users()
}

// VaultRoleOf returns the subject's role grant, if any.
func (n *Node) VaultRoleOf(addr [20]byte) (*vault.RoleGrant, bool, error) {
	return n.engine.RoleOf(addr)
}

// VaultPendingUpgrade returns the in-flight proposal, if any.
func (n *Node) VaultPendingUpgrade() (*vault.PendingUpgrade, bool, error) {
	return n.engine.PendingUpgradeInfo()
}

// VaultBreakerInfo returns the circuit breaker counters.
func (n *Node) VaultBreakerInfo() (vault.CircuitBreakerState, error) {
	return n.engine.BreakerInfo()
}

// VaultLimitsInfo returns the rolling daily counters.
func (n *Node) VaultLimitsInfo() (vault.DailyLimits, error) {
	return n.engine.LimitsInfo()
}
