package vault

import (
	"encoding/hex"
	"strconv"

	"stakevault/core/types"
)

const (
	EventTypeInitialized      = "vault.initialized"
	EventTypeStaked           = "vault.staked"
	EventTypeUnstaked         = "vault.unstaked"
	EventTypeRewardsClaimed   = "vault.rewardsClaimed"
	EventTypePaused           = "vault.paused"
	EventTypeUnpaused         = "vault.unpaused"
	EventTypeRoleGranted      = "vault.roleGranted"
	EventTypeRoleRevoked      = "vault.roleRevoked"
	EventTypeUpgradeProposed  = "vault.upgradeProposed"
	EventTypeUpgradeExecuted  = "vault.upgradeExecuted"
	EventTypeUpgradeCancelled = "vault.upgradeCancelled"
	EventTypeUpgradesLocked   = "vault.upgradesLocked"
	EventTypeConfigUpdated    = "vault.configUpdated"
)

type vaultEvent struct {
	evt *types.Event
}

func (v vaultEvent) EventType() string {
	if v.evt == nil {
		return ""
	}
	return v.evt.Type
}

func (v vaultEvent) Event() *types.Event { return v.evt }

func newInitializedEvent(v *Vault, ts int64) *types.Event {
	attrs := make(map[string]string)
	if v != nil {
		attrs["authority"] = hex.EncodeToString(v.Authority[:])
		attrs["rewardToken"] = v.RewardToken
		attrs["collection"] = hex.EncodeToString(v.Collection[:])
		attrs["ratePerSecond"] = strconv.FormatUint(v.RewardRatePerSecond, 10)
	}
	attrs["timestamp"] = strconv.FormatInt(ts, 10)
	return &types.Event{Type: EventTypeInitialized, Attributes: attrs}
}

func newStakedEvent(user [20]byte, itemID [32]byte, ts int64) *types.Event {
	return &types.Event{Type: EventTypeStaked, Attributes: map[string]string{
		"user":      hex.EncodeToString(user[:]),
		"item":      hex.EncodeToString(itemID[:]),
		"timestamp": strconv.FormatInt(ts, 10),
	}}
}

func newUnstakedEvent(user [20]byte, itemID [32]byte, ts int64) *types.Event {
	return &types.Event{Type: EventTypeUnstaked, Attributes: map[string]string{
		"user":      hex.EncodeToString(user[:]),
		"item":      hex.EncodeToString(itemID[:]),
		"timestamp": strconv.FormatInt(ts, 10),
	}}
}

func newRewardsClaimedEvent(user [20]byte, amount uint64, ts int64) *types.Event {
	return &types.Event{Type: EventTypeRewardsClaimed, Attributes: map[string]string{
		"user":      hex.EncodeToString(user[:]),
		"amount":    strconv.FormatUint(amount, 10),
		"timestamp": strconv.FormatInt(ts, 10),
	}}
}

func newPausedEvent(authority [20]byte, ts int64) *types.Event {
	return &types.Event{Type: EventTypePaused, Attributes: map[string]string{
		"authority": hex.EncodeToString(authority[:]),
		"timestamp": strconv.FormatInt(ts, 10),
	}}
}

func newUnpausedEvent(authority [20]byte, ts int64) *types.Event {
	return &types.Event{Type: EventTypeUnpaused, Attributes: map[string]string{
		"authority": hex.EncodeToString(authority[:]),
		"timestamp": strconv.FormatInt(ts, 10),
	}}
}

func newRoleGrantedEvent(user [20]byte, role Role, grantedBy [20]byte, ts int64) *types.Event {
	return &types.Event{Type: EventTypeRoleGranted, Attributes: map[string]string{
		"user":      hex.EncodeToString(user[:]),
		"role":      role.String(),
		"grantedBy": hex.EncodeToString(grantedBy[:]),
		"timestamp": strconv.FormatInt(ts, 10),
	}}
}

func newRoleRevokedEvent(user [20]byte, revokedBy [20]byte, ts int64) *types.Event {
	return &types.Event{Type: EventTypeRoleRevoked, Attributes: map[string]string{
		"user":      hex.EncodeToString(user[:]),
		"revokedBy": hex.EncodeToString(revokedBy[:]),
		"timestamp": strconv.FormatInt(ts, 10),
	}}
}

func newUpgradeProposedEvent(p *PendingUpgrade, ts int64) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["newVersion"] = strconv.FormatUint(uint64(p.NewVersion), 10)
		attrs["scheduledTimestamp"] = strconv.FormatInt(p.ScheduledUnix, 10)
		attrs["proposer"] = hex.EncodeToString(p.Proposer[:])
	}
	attrs["timestamp"] = strconv.FormatInt(ts, 10)
	return &types.Event{Type: EventTypeUpgradeProposed, Attributes: attrs}
}

func newUpgradeExecutedEvent(newVersion uint32, executor [20]byte, ts int64) *types.Event {
	return &types.Event{Type: EventTypeUpgradeExecuted, Attributes: map[string]string{
		"newVersion": strconv.FormatUint(uint64(newVersion), 10),
		"executor":   hex.EncodeToString(executor[:]),
		"timestamp":  strconv.FormatInt(ts, 10),
	}}
}

func newUpgradeCancelledEvent(cancelledBy [20]byte, ts int64) *types.Event {
	return &types.Event{Type: EventTypeUpgradeCancelled, Attributes: map[string]string{
		"cancelledBy": hex.EncodeToString(cancelledBy[:]),
		"timestamp":   strconv.FormatInt(ts, 10),
	}}
}

func newUpgradesLockedEvent(lockedBy [20]byte, ts int64) *types.Event {
	return &types.Event{Type: EventTypeUpgradesLocked, Attributes: map[string]string{
		"lockedBy":  hex.EncodeToString(lockedBy[:]),
		"timestamp": strconv.FormatInt(ts, 10),
	}}
}

func newConfigUpdatedEvent(updatedBy [20]byte, ts int64) *types.Event {
	return &types.Event{Type: EventTypeConfigUpdated, Attributes: map[string]string{
		"updatedBy": hex.EncodeToString(updatedBy[:]),
		"timestamp": strconv.FormatInt(ts, 10),
	}}
}
