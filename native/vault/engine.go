package vault

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"stakevault/core/events"
	"stakevault/core/types"
	"stakevault/observability/metrics"
)

// minUpgradeTimelockSeconds is the floor on the delay between proposing and
// executing a version bump.
const minUpgradeTimelockSeconds int64 = 3_600

type vaultState interface {
	VaultGet() (*Vault, bool, error)
	VaultPut(v *Vault) error
	UserGet(addr [20]byte) (*UserStake, bool, error)
	UserPut(u *UserStake) error
	UserIndexAppend(addr [20]byte) error
	UserIndex() ([][20]byte, error)
	RoleGet(addr [20]byte) (*RoleGrant, bool, error)
	RolePut(g *RoleGrant) error
	RoleDelete(addr [20]byte) error
}

// AssetTransfer is the custody and minting capability of the token ledger.
// Item transfers move one non-fungible unit; Mint issues new reward units
// under the authority previously delegated to the vault custodian.
type AssetTransfer interface {
	TransferItem(itemID [32]byte, from, to [20]byte) error
	Mint(symbol string, to [20]byte, amount uint64) error
	SetMintAuthority(symbol string, authority [20]byte) error
	MintAuthority(symbol string) ([20]byte, bool, error)
}

// CollectionLookup resolves the descriptive metadata of a non-fungible item.
type CollectionLookup interface {
	ItemInfo(itemID [32]byte) (*ItemInfo, error)
}

// ItemInfo is the metadata view consulted before accepting an item: supply
// and decimals establish that the unit is genuinely non-fungible, the
// collection fields establish provenance.
type ItemInfo struct {
	Collection    [32]byte
	HasCollection bool
	Verified      bool
	Supply        uint64
	Decimals      uint8
}

// InitParams carries the one-time configuration fixed at vault creation.
type InitParams struct {
	RewardToken         string
	Collection          [32]byte
	RewardRatePerSecond uint64
}

// Engine orchestrates every vault operation: staking, accrual, claims and the
// governance surface. Operations are serialized through an internal mutex so
// guard checks and the mutations they guard commit as one unit.
type Engine struct {
	mu        sync.Mutex
	state     vaultState
	emitter   events.Emitter
	nowFn     func() int64
	assets    AssetTransfer
	metadata  CollectionLookup
	custodian [20]byte
	policy    Policy
	telemetry *metrics.VaultMetrics
}

// NewEngine constructs a vault engine with default no-op dependencies and the
// production policy.
func NewEngine() *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().UTC().Unix() },
		policy:    DefaultPolicy(),
		telemetry: metrics.Vault(),
	}
}

// SetState wires the engine to the state backend providing persistence helpers.
func (e *Engine) SetState(state vaultState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used to stamp operations. Nil restores
// the default UTC clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().UTC().Unix() }
		return
	}
	e.nowFn = now
}

// SetAssets wires the token ledger capability used for custody and minting.
func (e *Engine) SetAssets(assets AssetTransfer) { e.assets = assets }

// SetMetadata wires the collection metadata lookup.
func (e *Engine) SetMetadata(metadata CollectionLookup) { e.metadata = metadata }

// SetCustodian sets the ledger account that holds staked items and the reward
// mint authority on behalf of the vault.
func (e *Engine) SetCustodian(addr [20]byte) { e.custodian = addr }

// SetPolicy replaces the policy stamped onto the vault at initialization.
// Existing vaults keep the policy they were created with.
func (e *Engine) SetPolicy(p Policy) { e.policy = p }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(vaultEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().UTC().Unix()
	}
	return e.nowFn()
}

// loadVault fetches the singleton vault record.
func (e *Engine) loadVault() (*Vault, error) {
	v, found, err := e.state.VaultGet()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotInitialized
	}
	return v, nil
}

// failOp records a rejected operation on the circuit breaker and persists the
// vault record, including any daily-counter reset already applied. User
// record mutations from the failed operation are discarded.
func (e *Engine) failOp(v *Vault, now int64, cause error) error {
	v.Breaker.OnFailure(now, v.Policy)
	e.telemetry.RecordRejection(guardLabel(cause))
	e.observeBreaker(v)
	if err := e.state.VaultPut(v); err != nil {
		return err
	}
	return cause
}

func (e *Engine) observeBreaker(v *Vault) {
	e.telemetry.SetBreakerOpen(v.Breaker.Blocked)
}

// guardLabel maps a rejection cause onto a stable metric label.
func guardLabel(err error) string {
	switch {
	case errors.Is(err, ErrDailyLimitExceeded):
		return "daily_limit"
	case errors.Is(err, ErrStakeTooFrequent), errors.Is(err, ErrClaimTooFrequent):
		return "rate_gap"
	case errors.Is(err, ErrInvalidItem), errors.Is(err, ErrNoCollection),
		errors.Is(err, ErrCollectionNotVerified), errors.Is(err, ErrWrongCollection):
		return "collection"
	case errors.Is(err, ErrExcessiveRewardClaim):
		return "payout_cap"
	case errors.Is(err, ErrInvalidMintAuthority):
		return "mint_authority"
	case errors.Is(err, ErrNoRewardsToClaim):
		return "nothing_accrued"
	case errors.Is(err, ErrMathOverflow), errors.Is(err, ErrMathUnderflow), errors.Is(err, ErrInvalidTimeElapsed):
		return "arithmetic"
	default:
		return "other"
	}
}

// authorize resolves the caller's privilege for an operation. With RBAC
// enabled the caller needs a role grant passing the supplied predicate; with
// RBAC disabled only the vault authority is admitted.
func (e *Engine) authorize(v *Vault, caller [20]byte, allowed func(Role) bool) error {
	if !v.Policy.RBACEnabled {
		if caller != v.Authority {
			return ErrUnauthorized
		}
		return nil
	}
	grant, found, err := e.state.RoleGet(caller)
	if err != nil {
		return err
	}
	if !found || !allowed(grant.Role) {
		return ErrInsufficientPermissions
	}
	return nil
}

// Initialize creates the singleton vault, delegates the reward token's mint
// authority to the custodian and verifies the delegation by re-reading the
// authority before committing.
func (e *Engine) Initialize(caller [20]byte, params InitParams) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	if e.assets == nil {
		return nil, errAssetsNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if params.RewardRatePerSecond == 0 {
		return nil, ErrInvalidRewardRate
	}
	symbol := strings.ToUpper(strings.TrimSpace(params.RewardToken))
	if symbol == "" {
		return nil, fmt.Errorf("vault: reward token symbol must not be empty")
	}
	if e.custodian == ([20]byte{}) {
		return nil, fmt.Errorf("vault: custodian not configured")
	}
	if _, found, err := e.state.VaultGet(); err != nil {
		return nil, err
	} else if found {
		return nil, ErrAlreadyInitialized
	}

	now := e.now()
	v := &Vault{
		Authority:           caller,
		RewardToken:         symbol,
		RewardRatePerSecond: params.RewardRatePerSecond,
		Collection:          params.Collection,
		CreatedAtUnix:       now,
		UpgradeAuthority:    caller,
		Version:             1,
		Policy:              e.policy,
	}

	if err := e.assets.SetMintAuthority(symbol, e.custodian); err != nil {
		return nil, fmt.Errorf("vault: transfer mint authority: %w", err)
	}
	authority, ok, err := e.assets.MintAuthority(symbol)
	if err != nil {
		return nil, fmt.Errorf("vault: verify mint authority: %w", err)
	}
	if !ok || authority != e.custodian {
		return nil, ErrMintAuthorityTransfer
	}

	if err := e.state.VaultPut(v); err != nil {
		return nil, err
	}
	// The creator bootstraps the role registry; further grants go through
	// GrantRole.
	grant := &RoleGrant{User: caller, Role: RoleSuperAdmin, GrantedBy: caller, GrantedAtUnix: now}
	if err := e.state.RolePut(grant); err != nil {
		return nil, err
	}

	e.emit(newInitializedEvent(v, now))
	return v.Copy(), nil
}

// Stake takes custody of one collection item for the caller and begins reward
// accrual on it. Accrued rewards for items already staked are banked before
// the count changes.
func (e *Engine) Stake(caller [20]byte, itemID [32]byte) (*UserStake, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	now := e.now()

	if v.Paused {
		return nil, ErrVaultPaused
	}
	if !v.Breaker.CanExecute(now, v.Policy) {
		return nil, ErrBreakerActive
	}

	v.Limits.ResetIfNewDay(now)
	if !v.Limits.CanStake(v.Policy) {
		return nil, e.failOp(v, now, ErrDailyLimitExceeded)
	}

	if e.metadata == nil {
		return nil, errMetadataNotConfigured
	}
	info, err := e.metadata.ItemInfo(itemID)
	if err != nil {
		return nil, e.failOp(v, now, fmt.Errorf("vault: item metadata: %w", err))
	}
	if info.Decimals != 0 || info.Supply != 1 {
		return nil, e.failOp(v, now, ErrInvalidItem)
	}
	if !info.HasCollection {
		return nil, e.failOp(v, now, ErrNoCollection)
	}
	if !info.Verified {
		return nil, e.failOp(v, now, ErrCollectionNotVerified)
	}
	if info.Collection != v.Collection {
		return nil, e.failOp(v, now, ErrWrongCollection)
	}

	user, found, err := e.state.UserGet(caller)
	if err != nil {
		return nil, err
	}
	if !found {
		user = &UserStake{User: caller}
	}

	if user.LastUpdateUnix > 0 && v.Policy.MinStakeGapSeconds > 0 {
		if now-user.LastUpdateUnix < v.Policy.MinStakeGapSeconds {
			return nil, e.failOp(v, now, ErrStakeTooFrequent)
		}
	}

	if user.StakedCount > 0 {
		earned, err := calculateRewards(now-user.LastUpdateUnix, v.RewardRatePerSecond, uint64(user.StakedCount), v.Policy.MaxElapsedSeconds)
		if err != nil {
			return nil, e.failOp(v, now, err)
		}
		if user.PendingRewards > math.MaxUint64-earned {
			return nil, e.failOp(v, now, ErrMathOverflow)
		}
		user.PendingRewards += earned
	}

	// All arithmetic is validated before custody moves so a rejection never
	// strands a transferred item.
	if user.StakedCount == math.MaxUint32 || v.TotalStaked == math.MaxUint32 {
		return nil, e.failOp(v, now, ErrMathOverflow)
	}
	if e.assets == nil {
		return nil, errAssetsNotConfigured
	}
	if err := e.assets.TransferItem(itemID, caller, e.custodian); err != nil {
		return nil, e.failOp(v, now, fmt.Errorf("vault: stake transfer: %w", err))
	}

	user.StakedCount++
	user.LastUpdateUnix = now
	user.Items = append(user.Items, itemID)
	v.TotalStaked++
	v.Limits.RecordStake()
	v.Breaker.OnSuccess()
	e.observeBreaker(v)

	if err := e.state.UserPut(user); err != nil {
		return nil, err
	}
	if !found {
		if err := e.state.UserIndexAppend(caller); err != nil {
			return nil, err
		}
	}
	if err := e.state.VaultPut(v); err != nil {
		return nil, err
	}

	e.telemetry.RecordStake()
	e.emit(newStakedEvent(caller, itemID, now))
	return user.Copy(), nil
}

// Unstake returns one staked item to the caller after banking the accrued
// rewards. A nil itemID releases the most recently staked item; a specific
// itemID must be in the caller's custody list.
func (e *Engine) Unstake(caller [20]byte, itemID *[32]byte) (*UserStake, [32]byte, error) {
	var released [32]byte
	if e == nil || e.state == nil {
		return nil, released, errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return nil, released, err
	}
	now := e.now()

	if v.Paused {
		return nil, released, ErrVaultPaused
	}
	user, found, err := e.state.UserGet(caller)
	if err != nil {
		return nil, released, err
	}
	if !found || user.StakedCount == 0 {
		return nil, released, ErrNoItemsStaked
	}
	if v.Policy.MinStakeGapSeconds > 0 && now-user.LastUpdateUnix < v.Policy.MinStakeGapSeconds {
		return nil, released, ErrStakeTooFrequent
	}

	earned, err := calculateRewards(now-user.LastUpdateUnix, v.RewardRatePerSecond, uint64(user.StakedCount), v.Policy.MaxElapsedSeconds)
	if err != nil {
		return nil, released, err
	}
	if user.PendingRewards > math.MaxUint64-earned {
		return nil, released, ErrMathOverflow
	}

	idx := len(user.Items) - 1
	if itemID != nil {
		idx = -1
		for i, item := range user.Items {
			if item == *itemID {
				idx = i
				break
			}
		}
	}
	if idx < 0 || idx >= len(user.Items) {
		return nil, released, ErrItemNotStaked
	}
	released = user.Items[idx]

	if v.TotalStaked == 0 {
		return nil, released, ErrMathUnderflow
	}
	if e.assets == nil {
		return nil, released, errAssetsNotConfigured
	}
	if err := e.assets.TransferItem(released, e.custodian, caller); err != nil {
		return nil, released, fmt.Errorf("vault: unstake transfer: %w", err)
	}

	user.PendingRewards += earned
	user.Items = append(user.Items[:idx], user.Items[idx+1:]...)
	user.StakedCount--
	user.LastUpdateUnix = now
	v.TotalStaked--

	if err := e.state.UserPut(user); err != nil {
		return nil, released, err
	}
	if err := e.state.VaultPut(v); err != nil {
		return nil, released, err
	}

	e.telemetry.RecordUnstake()
	e.emit(newUnstakedEvent(caller, released, now))
	return user.Copy(), released, nil
}

// Claim mints the caller's banked and freshly accrued rewards, bounded by the
// daily payout quota, a one-day-per-item ceiling and the total theoretically
// accruable since the vault was created.
func (e *Engine) Claim(caller [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return 0, err
	}
	now := e.now()

	if v.Paused {
		return 0, ErrVaultPaused
	}
	if !v.Breaker.CanExecute(now, v.Policy) {
		return 0, ErrBreakerActive
	}

	user, found, err := e.state.UserGet(caller)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNoRewardsToClaim
	}

	if v.Policy.MinClaimGapSeconds > 0 && now-user.LastUpdateUnix < v.Policy.MinClaimGapSeconds {
		return 0, e.failOp(v, now, ErrClaimTooFrequent)
	}

	earned, err := calculateRewards(now-user.LastUpdateUnix, v.RewardRatePerSecond, uint64(user.StakedCount), v.Policy.MaxElapsedSeconds)
	if err != nil {
		return 0, e.failOp(v, now, err)
	}
	if user.PendingRewards > math.MaxUint64-earned {
		return 0, e.failOp(v, now, ErrMathOverflow)
	}
	total := user.PendingRewards + earned
	if total == 0 {
		return 0, e.failOp(v, now, ErrNoRewardsToClaim)
	}

	v.Limits.ResetIfNewDay(now)
	if !v.Limits.CanClaim(total, v.Policy) {
		return 0, e.failOp(v, now, ErrDailyLimitExceeded)
	}

	staked := uint64(user.StakedCount)
	if v.RewardRatePerSecond > math.MaxUint64/secondsPerDay {
		return 0, e.failOp(v, now, ErrMathOverflow)
	}
	perItemDayCap := v.RewardRatePerSecond * secondsPerDay
	if staked != 0 && perItemDayCap > math.MaxUint64/staked {
		return 0, e.failOp(v, now, ErrMathOverflow)
	}
	if total > perItemDayCap*staked {
		return 0, e.failOp(v, now, ErrExcessiveRewardClaim)
	}

	sinceCreation := now - v.CreatedAtUnix
	if sinceCreation < 0 {
		sinceCreation = 0
	}
	if v.RewardRatePerSecond != 0 && uint64(sinceCreation) > math.MaxUint64/v.RewardRatePerSecond {
		return 0, e.failOp(v, now, ErrMathOverflow)
	}
	theoretical := v.RewardRatePerSecond * uint64(sinceCreation)
	if staked != 0 && theoretical > math.MaxUint64/staked {
		return 0, e.failOp(v, now, ErrMathOverflow)
	}
	if total > theoretical*staked {
		return 0, e.failOp(v, now, ErrExcessiveRewardClaim)
	}

	if e.assets == nil {
		return 0, errAssetsNotConfigured
	}
	authority, ok, err := e.assets.MintAuthority(v.RewardToken)
	if err != nil {
		return 0, fmt.Errorf("vault: read mint authority: %w", err)
	}
	if !ok || authority != e.custodian {
		return 0, e.failOp(v, now, ErrInvalidMintAuthority)
	}
	if err := e.assets.Mint(v.RewardToken, caller, total); err != nil {
		return 0, e.failOp(v, now, fmt.Errorf("vault: mint rewards: %w", err))
	}

	user.PendingRewards = 0
	user.LastUpdateUnix = now
	v.Limits.RecordClaim(total)
	v.Breaker.OnSuccess()
	e.observeBreaker(v)

	if err := e.state.UserPut(user); err != nil {
		return 0, err
	}
	if err := e.state.VaultPut(v); err != nil {
		return 0, err
	}

	e.telemetry.RecordClaim(total)
	e.emit(newRewardsClaimedEvent(caller, total, now))
	return total, nil
}

// Pause halts staking, unstaking and claims.
func (e *Engine) Pause(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return err
	}
	if v.Paused {
		return ErrAlreadyPaused
	}
	if err := e.authorize(v, caller, Role.CanPauseVault); err != nil {
		return err
	}

	v.Paused = true
	if err := e.state.VaultPut(v); err != nil {
		return err
	}
	e.telemetry.SetPaused(true)
	e.emit(newPausedEvent(caller, e.now()))
	return nil
}

// Unpause resumes vault operations.
func (e *Engine) Unpause(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return err
	}
	if !v.Paused {
		return ErrNotPaused
	}
	if err := e.authorize(v, caller, Role.CanPauseVault); err != nil {
		return err
	}

	v.Paused = false
	if err := e.state.VaultPut(v); err != nil {
		return err
	}
	e.telemetry.SetPaused(false)
	e.emit(newUnpausedEvent(caller, e.now()))
	return nil
}

// GrantRole creates or overwrites the subject's role grant.
func (e *Engine) GrantRole(caller, subject [20]byte, role Role) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return err
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	if err := e.authorize(v, caller, Role.CanManageRoles); err != nil {
		return err
	}

	now := e.now()
	grant := &RoleGrant{User: subject, Role: role, GrantedBy: caller, GrantedAtUnix: now}
	if err := e.state.RolePut(grant); err != nil {
		return err
	}
	e.emit(newRoleGrantedEvent(subject, role, caller, now))
	return nil
}

// RevokeRole deletes the subject's role grant, leaving the explicit absent
// state rather than a residual low-privilege tier.
func (e *Engine) RevokeRole(caller, subject [20]byte) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := e.authorize(v, caller, Role.CanManageRoles); err != nil {
		return err
	}
	_, found, err := e.state.RoleGet(subject)
	if err != nil {
		return err
	}
	if !found {
		return ErrRoleNotGranted
	}
	if err := e.state.RoleDelete(subject); err != nil {
		return err
	}
	e.emit(newRoleRevokedEvent(subject, caller, e.now()))
	return nil
}

// ProposeUpgrade schedules a version bump after the timelock delay. Only one
// proposal may be pending at a time.
func (e *Engine) ProposeUpgrade(caller [20]byte, newVersion uint32, timelockSeconds int64) (*PendingUpgrade, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if v.UpgradeLocked {
		return nil, ErrUpgradesLocked
	}
	if v.Pending != nil {
		return nil, ErrUpgradePending
	}
	if err := e.authorize(v, caller, Role.CanManageUpgrades); err != nil {
		return nil, err
	}
	if newVersion <= v.Version {
		return nil, ErrInvalidVersion
	}
	if timelockSeconds < minUpgradeTimelockSeconds {
		return nil, ErrInvalidTimelock
	}

	now := e.now()
	v.Pending = &PendingUpgrade{
		NewVersion:    newVersion,
		ScheduledUnix: now + timelockSeconds,
		Proposer:      caller,
	}
	if err := e.state.VaultPut(v); err != nil {
		return nil, err
	}
	e.emit(newUpgradeProposedEvent(v.Pending, now))
	pending := *v.Pending
	return &pending, nil
}

// ExecuteUpgrade applies the pending version bump once its timelock expires.
func (e *Engine) ExecuteUpgrade(caller [20]byte) (uint32, error) {
	if e == nil || e.state == nil {
		return 0, errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return 0, err
	}
	if err := e.authorize(v, caller, Role.CanManageUpgrades); err != nil {
		return 0, err
	}
	if v.Pending == nil {
		return 0, ErrNoUpgradePending
	}
	now := e.now()
	if now < v.Pending.ScheduledUnix {
		return 0, ErrTimelockNotExpired
	}

	v.Version = v.Pending.NewVersion
	v.Pending = nil
	if err := e.state.VaultPut(v); err != nil {
		return 0, err
	}
	e.emit(newUpgradeExecutedEvent(v.Version, caller, now))
	return v.Version, nil
}

// CancelUpgrade withdraws the pending proposal.
func (e *Engine) CancelUpgrade(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := e.authorize(v, caller, Role.CanManageUpgrades); err != nil {
		return err
	}
	if v.Pending == nil {
		return ErrNoUpgradePending
	}

	v.Pending = nil
	if err := e.state.VaultPut(v); err != nil {
		return err
	}
	e.emit(newUpgradeCancelledEvent(caller, e.now()))
	return nil
}

// LockUpgrades permanently forbids further upgrade proposals and discards any
// pending one. There is no unlock.
func (e *Engine) LockUpgrades(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := e.authorize(v, caller, Role.CanManageUpgrades); err != nil {
		return err
	}
	if v.UpgradeLocked {
		return ErrUpgradesAlreadyLocked
	}

	v.UpgradeLocked = true
	v.Pending = nil
	if err := e.state.VaultPut(v); err != nil {
		return err
	}
	e.emit(newUpgradesLockedEvent(caller, e.now()))
	return nil
}

// UpdateConfig adjusts the reward rate and/or the accepted collection. Nil
// arguments leave the corresponding setting untouched; the creation timestamp
// is never restamped.
func (e *Engine) UpdateConfig(caller [20]byte, newRate *uint64, newCollection *[32]byte) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := e.authorize(v, caller, Role.CanUpdateConfig); err != nil {
		return err
	}
	if newRate != nil {
		if *newRate == 0 {
			return ErrInvalidRewardRate
		}
		v.RewardRatePerSecond = *newRate
	}
	if newCollection != nil {
		v.Collection = *newCollection
	}
	if err := e.state.VaultPut(v); err != nil {
		return err
	}
	e.emit(newConfigUpdatedEvent(caller, e.now()))
	return nil
}

// VaultInfo returns a copy of the vault record.
func (e *Engine) VaultInfo() (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	return v.Copy(), nil
}

// UserInfo returns the stored stake record projected to the current time. An
// unknown user yields an empty position rather than an error.
func (e *Engine) UserInfo(addr [20]byte) (*UserPosition, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	user, found, err := e.state.UserGet(addr)
	if err != nil {
		return nil, err
	}
	if !found {
		return &UserPosition{User: addr}, nil
	}

	position := &UserPosition{
		User:             addr,
		StakedCount:      user.StakedCount,
		PendingRewards:   user.PendingRewards,
		ProjectedRewards: user.PendingRewards,
		LastUpdateUnix:   user.LastUpdateUnix,
		Items:            make([][32]byte, len(user.Items)),
	}
	copy(position.Items, user.Items)

	if user.StakedCount > 0 {
		earned, err := calculateRewards(e.now()-user.LastUpdateUnix, v.RewardRatePerSecond, uint64(user.StakedCount), v.Policy.MaxElapsedSeconds)
		if err == nil && user.PendingRewards <= math.MaxUint64-earned {
			position.ProjectedRewards = user.PendingRewards + earned
		}
	}
	return position, nil
}

// RoleOf returns the subject's role grant, if any.
func (e *Engine) RoleOf(addr [20]byte) (*RoleGrant, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.RoleGet(addr)
}

// PendingUpgradeInfo returns the in-flight upgrade proposal, if any.
func (e *Engine) PendingUpgradeInfo() (*PendingUpgrade, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return nil, false, err
	}
	if v.Pending == nil {
		return nil, false, nil
	}
	pending := *v.Pending
	return &pending, true, nil
}

// BreakerInfo returns the circuit breaker counters.
func (e *Engine) BreakerInfo() (CircuitBreakerState, error) {
	if e == nil || e.state == nil {
		return CircuitBreakerState{}, errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return CircuitBreakerState{}, err
	}
	return v.Breaker, nil
}

// LimitsInfo returns the rolling daily counters.
func (e *Engine) LimitsInfo() (DailyLimits, error) {
	if e == nil || e.state == nil {
		return DailyLimits{}, errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.loadVault()
	if err != nil {
		return DailyLimits{}, err
	}
	return v.Limits, nil
}

// Users lists every address that has ever staked.
func (e *Engine) Users() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.UserIndex()
}
